//go:build !unix

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// AcquireLock takes the advisory lock by creating the lock file
// exclusively. Without flock semantics, a crashed session leaves the file
// behind; staleness is detected by probing the recorded pid.
func AcquireLock(stateDir, sessionID string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := lockPath(stateDir)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			if werr := writeInfo(f, sessionID); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("write lock info: %w", werr)
			}
			return &Lock{path: path, file: f}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !holderAlive(path) {
			os.Remove(path)
			continue
		}
		return nil, holderError(path)
	}
	return nil, holderError(path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	l.file.Close()
	l.file = nil
	return os.Remove(l.path)
}

func holderAlive(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.PID <= 0 {
		return false
	}
	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return false
	}
	// On non-unix platforms FindProcess errors for dead pids.
	_ = proc
	return true
}
