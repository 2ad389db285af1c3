package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// LockFileName is the advisory lock inside the state directory.
const LockFileName = "session.lock"

// lockInfo is written into the lock file so a refused second session can
// report who holds it.
type lockInfo struct {
	PID       int       `json:"pid"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
}

// Lock is the held advisory lock on a project's state directory.
type Lock struct {
	path string
	file *os.File
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// holderError reads the lock file and builds the refusal error. The lock
// content is best-effort; the refusal stands even if it is unreadable.
func holderError(path string) error {
	info := lockInfo{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &info)
	}
	return &types.ConcurrentSessionError{
		LockPath:  path,
		SessionID: info.SessionID,
		PID:       info.PID,
	}
}

// writeInfo records the holder's identity into the acquired lock file.
func writeInfo(f *os.File, sessionID string) error {
	data, err := json.Marshal(lockInfo{
		PID:       os.Getpid(),
		SessionID: sessionID,
		Time:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}

func lockPath(stateDir string) string {
	return filepath.Join(stateDir, LockFileName)
}
