package types

import (
	"errors"
	"fmt"
)

// ErrConcurrentSession is returned when a second session is started against
// a project whose state directory is already locked.
var ErrConcurrentSession = errors.New("another session is active for this project")

// ErrTestExecution marks an ambiguous test-run failure (timeout, runner
// crash). It never triggers automatic rollback.
var ErrTestExecution = errors.New("test execution failed")

// ErrRegression marks a detected test regression after a transaction.
var ErrRegression = errors.New("test regression detected")

// HashMismatchError reports that a file's content hash no longer matches the
// recorded expected hash. It is fatal to the current operation and aborts
// its transaction.
type HashMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %q: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// RollbackFailure describes one inverse operation that could not be applied.
type RollbackFailure struct {
	// Path is the original path the file should have been restored to.
	Path string `json:"path"`

	// ArchivePath is where the archived copy was expected.
	ArchivePath string `json:"archive_path"`

	// ExpectedHash is the recorded content hash.
	ExpectedHash string `json:"expected_hash"`

	// ActualHash is the hash found on disk, if anything was found.
	ActualHash string `json:"actual_hash,omitempty"`

	// Reason explains why the restore could not proceed.
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e *RollbackFailure) Error() string {
	return fmt.Sprintf("cannot restore %q: %s", e.Path, e.Reason)
}

// RollbackIncompleteError reports a rollback that could not fully restore
// the filesystem. It carries enough detail for manual recovery and is never
// swallowed: the tool surfaces it rather than leaving silent inconsistency.
type RollbackIncompleteError struct {
	RestorePointID string
	Failures       []RollbackFailure
}

// Error implements the error interface.
func (e *RollbackIncompleteError) Error() string {
	return fmt.Sprintf("rollback to %s incomplete: %d file(s) could not be restored",
		e.RestorePointID, len(e.Failures))
}

// ConcurrentSessionError reports a refused session start due to an existing
// advisory lock.
type ConcurrentSessionError struct {
	LockPath  string
	SessionID string
	PID       int
}

// Error implements the error interface.
func (e *ConcurrentSessionError) Error() string {
	return fmt.Sprintf("session %s (pid %d) holds the lock at %s", e.SessionID, e.PID, e.LockPath)
}

// Unwrap lets errors.Is match ErrConcurrentSession.
func (e *ConcurrentSessionError) Unwrap() error {
	return ErrConcurrentSession
}
