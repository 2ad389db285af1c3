// Package audit writes an append-only JSONL trail of everything a session
// does: scans, proposals, user decisions, file operations, test runs,
// rollbacks, and errors. Each entry carries a unique ID, a timestamp, and
// a content checksum so tampering is detectable after the fact.
package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// DirName is the audit directory inside the state directory.
const DirName = "audit"

// Event classifies an audit entry.
type Event string

const (
	SessionStart Event = "session_start"
	SessionEnd   Event = "session_end"
	Scan         Event = "scan"
	Proposal     Event = "proposal"
	UserDecision Event = "user_decision"
	FileOp       Event = "file_operation"
	TestRun      Event = "test_run"
	Rollback     Event = "rollback"
	Error        Event = "error"
)

// Entry is one audit record.
type Entry struct {
	SchemaVersion int            `json:"schema_version"`
	ID            string         `json:"id"`
	Time          time.Time      `json:"time"`
	SessionID     string         `json:"session_id,omitempty"`
	Event         Event          `json:"event"`
	Description   string         `json:"description"`
	Details       map[string]any `json:"details,omitempty"`

	// Checksum is the hex BLAKE3 of the entry serialized with this
	// field empty.
	Checksum string `json:"checksum"`
}

// Logger appends audit entries to a per-day JSONL file.
type Logger struct {
	dir       string
	sessionID string

	mu   sync.Mutex
	file *os.File
	day  string

	log *logging.Logger
}

// New creates an audit logger writing under stateDir/audit. Entries are
// tagged with sessionID.
func New(stateDir, sessionID string) (*Logger, error) {
	dir := filepath.Join(stateDir, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &Logger{
		dir:       dir,
		sessionID: sessionID,
		log:       logging.Get("audit"),
	}, nil
}

// Record appends one entry. Audit failures are logged and returned but
// callers generally proceed; the audit trail documents the run, it does
// not gate it.
func (a *Logger) Record(event Event, description string, details map[string]any) error {
	entry := Entry{
		SchemaVersion: types.SchemaVersion,
		ID:            uuid.NewString(),
		Time:          time.Now().UTC(),
		SessionID:     a.sessionID,
		Event:         event,
		Description:   description,
		Details:       details,
	}

	unsummed, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	sum := blake3.Sum256(unsummed)
	entry.Checksum = hex.EncodeToString(sum[:])

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.currentFile()
	if err != nil {
		a.log.Error("audit append failed", "error", err)
		return err
	}
	if _, err := f.Write(data); err != nil {
		a.log.Error("audit append failed", "error", err)
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Verify recomputes each entry's checksum in the named log file and
// returns the IDs of entries whose stored checksum does not match.
func Verify(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var bad []string
	for _, line := range splitLines(data) {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		want := entry.Checksum
		entry.Checksum = ""
		unsummed, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		sum := blake3.Sum256(unsummed)
		if hex.EncodeToString(sum[:]) != want {
			bad = append(bad, entry.ID)
		}
	}
	return bad, nil
}

// Close releases the current log file.
func (a *Logger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// currentFile returns the open handle for today's log, rotating to a new
// file at the date boundary. Callers hold mu.
func (a *Logger) currentFile() (*os.File, error) {
	day := time.Now().UTC().Format("20060102")
	if a.file != nil && day == a.day {
		return a.file, nil
	}
	if a.file != nil {
		a.file.Close()
		a.file = nil
	}

	path := filepath.Join(a.dir, "audit-"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a.file = f
	a.day = day
	return f, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
