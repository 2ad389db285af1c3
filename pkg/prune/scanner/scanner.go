package scanner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// Result contains the aggregated output of a scan.
type Result struct {
	// Files contains one record per regular file discovered.
	Files []*types.FileRecord

	// DirsScanned is the total number of directories traversed.
	DirsScanned int64

	// FilesScanned is the total number of files examined.
	FilesScanned int64

	// TotalSize is the sum of all file sizes in bytes.
	TotalSize int64

	// CacheHits is the number of hashes served from the cache.
	CacheHits int64

	// Elapsed is the total time taken to complete the scan.
	Elapsed time.Duration

	// Issues contains per-file errors encountered during scanning.
	// They never abort the scan.
	Issues []types.ScanIssue
}

// Scanner performs parallel project scanning using fastwalk.
type Scanner struct {
	opts Options

	// Atomic counters for thread-safe progress reporting.
	dirsScanned  atomic.Int64
	filesScanned atomic.Int64
	bytesScanned atomic.Int64
	cacheHits    atomic.Int64

	// currentPath is the path currently being scanned (for progress).
	currentPath atomic.Value

	// issues collects scan errors without stopping the scan.
	issues   []types.ScanIssue
	issuesMu sync.Mutex

	// results collects file records.
	results   []*types.FileRecord
	resultsMu sync.Mutex

	// lastProgress throttles progress callbacks.
	lastProgress atomic.Int64

	// root is the resolved absolute path being scanned.
	root string
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	_ = opts.Validate()

	s := &Scanner{
		opts:    opts,
		issues:  make([]types.ScanIssue, 0),
		results: make([]*types.FileRecord, 0),
	}
	s.currentPath.Store("")
	return s
}

// Scan walks the project and returns one hashed, classified record per
// regular file. It blocks until complete or the context is cancelled;
// cancellation aborts cleanly with ctx.Err() and no persisted side effects.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	root, err := s.validateRoot()
	if err != nil {
		return nil, err
	}
	s.root = root

	s.currentPath.Store(root)
	s.reportProgressForce()

	conf := fastwalk.Config{
		Follow:     false, // Don't follow symlinks.
		NumWorkers: s.opts.Workers,
	}

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		<-walkCtx.Done()
		close(done)
	}()

	walkErr := fastwalk.Walk(&conf, root, s.walkCallback(done))
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		return nil, walkErr
	}

	s.reportProgressForce()

	return &Result{
		Files:        s.results,
		DirsScanned:  s.dirsScanned.Load(),
		FilesScanned: s.filesScanned.Load(),
		TotalSize:    s.bytesScanned.Load(),
		CacheHits:    s.cacheHits.Load(),
		Elapsed:      time.Since(startTime),
		Issues:       s.issues,
	}, nil
}

// validateRoot resolves the root path to absolute and verifies it exists.
func (s *Scanner) validateRoot() (string, error) {
	root, err := filepath.Abs(s.opts.Root)
	if err != nil {
		return "", err
	}

	rootInfo, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !rootInfo.IsDir() {
		return "", os.ErrInvalid
	}

	return root, nil
}

// walkCallback returns the callback function for fastwalk.Walk.
func (s *Scanner) walkCallback(done <-chan struct{}) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		// Check for cancellation.
		select {
		case <-done:
			return fastwalk.ErrSkipFiles
		default:
		}

		// Handle errors gracefully - log and continue.
		if err != nil {
			s.addIssue(path, err)
			return nil
		}

		if d.IsDir() {
			if s.isIgnoredDir(path) {
				return fastwalk.SkipDir
			}
			s.dirsScanned.Add(1)
			s.currentPath.Store(path)
			s.reportProgress()
			return nil
		}

		if d.Type().IsRegular() {
			s.processFile(path, d)
		}

		return nil
	}
}

// processFile stats, hashes, and classifies a regular file.
func (s *Scanner) processFile(path string, d fs.DirEntry) {
	info, err := d.Info()
	if err != nil {
		s.addIssue(path, err)
		return
	}

	relPath, err := filepath.Rel(s.root, path)
	if err != nil {
		s.addIssue(path, err)
		return
	}
	relPath = filepath.ToSlash(relPath)

	size := info.Size()
	s.filesScanned.Add(1)
	s.bytesScanned.Add(size)

	rec := &types.FileRecord{
		Path:      path,
		RelPath:   relPath,
		Size:      size,
		Mode:      info.Mode(),
		ModTime:   info.ModTime(),
		Protected: s.matchesAny(relPath, s.opts.ProtectedPatterns),
		IsTest:    s.matchesAny(relPath, s.opts.TestPatterns),
		IsTemp:    s.matchesAny(relPath, s.opts.TempPatterns),
		Action:    types.ActionKeep,
	}

	if size > s.opts.MaxFileSize {
		// Unhashed files cannot be verified through a migration, so they
		// are kept out of harm's way.
		rec.Protected = true
	} else {
		hash, err := s.hashFile(path, rec, info)
		if err != nil {
			s.addIssue(path, err)
			return
		}
		rec.Hash = hash
	}

	s.resultsMu.Lock()
	s.results = append(s.results, rec)
	s.resultsMu.Unlock()

	s.reportProgress()
}

// hashFile returns the content hash for a file, consulting the cache first.
func (s *Scanner) hashFile(path string, rec *types.FileRecord, info os.FileInfo) (string, error) {
	mtimeNS := info.ModTime().UnixNano()

	if s.opts.Cache != nil {
		if hash, ok := s.opts.Cache.Lookup(rec.RelPath, rec.Size, mtimeNS); ok {
			s.cacheHits.Add(1)
			return hash, nil
		}
	}

	hash, err := HashFile(path)
	if err != nil {
		return "", err
	}

	if s.opts.Cache != nil {
		if err := s.opts.Cache.Store(rec.RelPath, rec.Size, mtimeNS, hash); err != nil {
			s.addIssue(path, err)
		}
	}

	return hash, nil
}

// isIgnoredDir checks whether a directory name is in the ignore list.
func (s *Scanner) isIgnoredDir(path string) bool {
	name := filepath.Base(path)
	for _, ignored := range s.opts.IgnoreDirs {
		if name == ignored {
			return true
		}
	}
	return false
}

// matchesAny checks a relative path against glob patterns. Patterns match
// the base name, the relative path, or any doublestar expansion of it.
func (s *Scanner) matchesAny(relPath string, patterns []string) bool {
	base := filepath.Base(relPath)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, err := doublestar.Match("**/"+pattern, relPath); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// addIssue adds a scan issue thread-safely.
func (s *Scanner) addIssue(path string, err error) {
	s.issuesMu.Lock()
	s.issues = append(s.issues, types.ScanIssue{
		Path:  path,
		Error: err.Error(),
	})
	s.issuesMu.Unlock()
}

// reportProgress calls the progress callback if configured, throttled to
// every 10ms to avoid excessive overhead.
func (s *Scanner) reportProgress() {
	if s.opts.OnProgress == nil {
		return
	}

	now := time.Now().UnixMilli()
	last := s.lastProgress.Load()
	if now-last < 10 {
		return
	}
	if !s.lastProgress.CompareAndSwap(last, now) {
		return // Another goroutine updated it.
	}

	s.sendProgress()
}

// reportProgressForce calls the progress callback immediately, bypassing
// the throttle. Use for important state changes like scan start/end.
func (s *Scanner) reportProgressForce() {
	if s.opts.OnProgress == nil {
		return
	}
	s.lastProgress.Store(time.Now().UnixMilli())
	s.sendProgress()
}

// sendProgress sends the current progress to the callback.
func (s *Scanner) sendProgress() {
	currentPath, _ := s.currentPath.Load().(string)

	s.opts.OnProgress(Progress{
		DirsScanned:  s.dirsScanned.Load(),
		FilesScanned: s.filesScanned.Load(),
		BytesScanned: s.bytesScanned.Load(),
		CacheHits:    s.cacheHits.Load(),
		CurrentPath:  currentPath,
	})
}

// ReadLimit bounds how much of a file reference extraction reads.
const ReadLimit = 4 * types.MiB

// ReadForExtraction reads at most ReadLimit bytes of a file for the
// reference extractors.
func ReadForExtraction(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, ReadLimit))
	if err != nil {
		return nil, err
	}
	return data, nil
}
