// Package scanner provides parallel project scanning for the deadwood
// pruning pipeline. It walks the project tree with a bounded worker pool,
// hashing file content and classifying each file against the configured
// pattern sets. Scanning is read-only: a cancelled scan leaves no state
// behind.
package scanner

import (
	"runtime"

	"github.com/jamesainslie/deadwood/pkg/prune/config"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// HashCache is an optional cache that lets the scanner skip rehashing
// files whose size and modification time have not changed.
type HashCache interface {
	// Lookup returns the cached hash for the path when size and mtime
	// match the cached entry.
	Lookup(relPath string, size int64, mtimeNS int64) (hash string, ok bool)

	// Store records the hash for a path.
	Store(relPath string, size int64, mtimeNS int64, hash string) error
}

// Options configures the scanner behavior.
type Options struct {
	// Root is the project directory to scan.
	Root string

	// IgnoreDirs are directory names skipped entirely.
	IgnoreDirs []string

	// ProtectedPatterns mark files that must never be proposed for removal.
	ProtectedPatterns []string

	// TempPatterns mark files as likely temporary.
	TempPatterns []string

	// TestPatterns mark files as test files.
	TestPatterns []string

	// MaxFileSize is the largest file that will be hashed. Larger files
	// are recorded without a content hash and marked protected, since an
	// unhashed file cannot be safely migrated.
	MaxFileSize int64

	// Workers is the walk/hash worker count. Zero or negative sizes the
	// pool to the available CPUs.
	Workers int

	// Cache is an optional hash cache. If nil, caching is disabled.
	Cache HashCache

	// OnProgress is called periodically with progress updates. It must be
	// safe to call from multiple goroutines.
	OnProgress func(Progress)
}

// Progress reports real-time scan progress.
type Progress struct {
	// DirsScanned is the number of directories processed so far.
	DirsScanned int64

	// FilesScanned is the number of files examined so far.
	FilesScanned int64

	// BytesScanned is the total bytes of all files examined so far.
	BytesScanned int64

	// CacheHits is the number of files whose hash came from the cache.
	CacheHits int64

	// CurrentPath is the path currently being scanned.
	CurrentPath string
}

// DefaultOptions returns options with the configured defaults applied.
func DefaultOptions(root string) Options {
	maxSize, _ := types.ParseSize(config.DefaultMaxFileSize)
	return Options{
		Root:              root,
		IgnoreDirs:        config.DefaultIgnoreDirs,
		ProtectedPatterns: config.DefaultProtectedPatterns,
		TempPatterns:      config.DefaultTempPatterns,
		TestPatterns:      config.DefaultTestPatterns,
		MaxFileSize:       maxSize,
		Workers:           0,
	}
}

// Validate applies defaults for unset options.
func (o *Options) Validate() error {
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize, _ = types.ParseSize(config.DefaultMaxFileSize)
	}
	return nil
}
