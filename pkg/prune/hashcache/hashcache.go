// Package hashcache provides a Badger DB-backed cache of file content
// hashes keyed by project-relative path. A cached hash is reused only when
// both size and modification time match, so resumed sessions skip
// rehashing unchanged files without ever trusting a stale digest.
package hashcache

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// Entry is one cached hash record.
type Entry struct {
	Size    int64  `json:"size"`
	MtimeNS int64  `json:"mtime_ns"`
	Hash    string `json:"hash"`
}

// Cache is the hash cache backed by Badger DB.
type Cache struct {
	db *badger.DB
}

// Open opens or creates a cache at the given directory.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable badger's own logging.

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Cache{db: db}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached hash for a path when size and mtime match the
// stored entry. A mismatch is treated as a miss.
func (c *Cache) Lookup(relPath string, size int64, mtimeNS int64) (string, bool) {
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(relPath))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return "", false
	}

	if entry.Size != size || entry.MtimeNS != mtimeNS {
		return "", false
	}
	return entry.Hash, true
}

// Store records the hash for a path.
func (c *Cache) Store(relPath string, size int64, mtimeNS int64, hash string) error {
	data, err := json.Marshal(Entry{Size: size, MtimeNS: mtimeNS, Hash: hash})
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(relPath), data)
	})
}

// Invalidate removes the entry for a path. Missing entries are not an error.
func (c *Cache) Invalidate(relPath string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(relPath))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Len returns the number of cached entries.
func (c *Cache) Len() (int, error) {
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
