//go:build unix

package session

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// AcquireLock takes the advisory lock for the project's state directory.
// The flock is released by the kernel if the process dies, so a lock file
// left behind by a crashed session never blocks the next run. A held lock
// yields ConcurrentSessionError with the holder's identity and performs
// no writes.
func AcquireLock(stateDir, sessionID string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := lockPath(stateDir)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, holderError(path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	if err := writeInfo(f, sessionID); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("write lock info: %w", err)
	}
	return &Lock{path: path, file: f}, nil
}

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	os.Remove(l.path)
	return err
}
