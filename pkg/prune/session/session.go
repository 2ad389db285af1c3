// Package session owns the pruning control loop. A Session is an explicit,
// versioned, persisted entity: every phase transition is checkpointed with
// an atomic write, so a crashed or interrupted run resumes exactly at the
// last completed phase instead of repeating committed work. One session
// holds an advisory lock on the project's state directory for its whole
// lifetime; a second process refuses to start.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/deadwood/pkg/prune/guardian"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// Phase is the session's position in the control loop.
type Phase string

const (
	PhaseCreated          Phase = "created"
	PhaseScanning         Phase = "scanning"
	PhaseScoring          Phase = "scoring"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseBaselineCaptured Phase = "baseline_captured"
	PhaseExecuting        Phase = "executing"
	PhaseValidating       Phase = "validating"
	PhaseRolledBack       Phase = "rolled_back"
	// PhaseAwaitingDecision is entered on ambiguous test outcomes; the
	// session holds until the user retries or rolls back explicitly.
	PhaseAwaitingDecision Phase = "awaiting_decision"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
	PhaseAborted          Phase = "aborted"
)

// terminal reports whether the phase ends the session.
func (p Phase) terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseAborted:
		return true
	}
	return false
}

// Stats summarizes a session for the final report.
type Stats struct {
	FilesScanned   int   `json:"files_scanned"`
	DirsScanned    int   `json:"dirs_scanned"`
	TotalSize      int64 `json:"total_size"`
	Orphans        int   `json:"orphans"`
	Proposed       int   `json:"proposed"`
	Approved       int   `json:"approved"`
	Archived       int   `json:"archived"`
	BytesReclaimed int64 `json:"bytes_reclaimed"`
	ScanIssues     int   `json:"scan_issues"`
}

// Session is the persisted checkpoint entity.
type Session struct {
	SchemaVersion int    `json:"schema_version"`
	ID            string `json:"id"`
	ProjectRoot   string `json:"project_root"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Phase Phase `json:"phase"`

	// Proposals carries the scored actions and their approval state.
	Proposals []*types.ProposedAction `json:"proposals,omitempty"`

	// Baseline is the guardian fingerprint captured before execution.
	Baseline *guardian.Baseline `json:"baseline,omitempty"`

	// RestorePointID names the restore point protecting the last
	// transaction.
	RestorePointID string `json:"restore_point_id,omitempty"`

	// TxIDs lists transactions committed by this session, in order.
	TxIDs []string `json:"tx_ids,omitempty"`

	// Verdict is the guardian's last validation outcome.
	Verdict string `json:"verdict,omitempty"`

	Stats Stats `json:"stats"`

	// Issues are per-file scan errors, reported but never fatal.
	Issues []types.ScanIssue `json:"issues,omitempty"`

	// Error holds the failure detail for failed sessions.
	Error string `json:"error,omitempty"`
}

// SessionFileName is the active checkpoint inside the state directory.
const SessionFileName = "session.json"

// ArchivedDirName holds finished session records.
const ArchivedDirName = "sessions"

// NewSession creates a fresh session for the project root.
func NewSession(root string) *Session {
	now := time.Now().UTC()
	return &Session{
		SchemaVersion: types.SchemaVersion,
		ID:            now.Format("20060102-150405") + "-" + uuid.NewString()[:8],
		ProjectRoot:   root,
		CreatedAt:     now,
		UpdatedAt:     now,
		Phase:         PhaseCreated,
	}
}

// Checkpoint persists the session atomically into the state directory.
func (s *Session) Checkpoint(stateDir string) error {
	s.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	path := filepath.Join(stateDir, SessionFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize session: %w", err)
	}
	return nil
}

// Archive moves a finished session record under sessions/ and removes the
// active checkpoint.
func (s *Session) Archive(stateDir string) error {
	if err := s.Checkpoint(stateDir); err != nil {
		return err
	}
	dir := filepath.Join(stateDir, ArchivedDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	src := filepath.Join(stateDir, SessionFileName)
	dst := filepath.Join(dir, s.ID+".json")
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

// LoadActive reads the active checkpoint, nil when none exists.
func LoadActive(stateDir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, SessionFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if s.SchemaVersion > types.SchemaVersion {
		return nil, fmt.Errorf("session schema v%d is newer than supported v%d",
			s.SchemaVersion, types.SchemaVersion)
	}
	return &s, nil
}

// ListArchived returns finished session records, oldest first.
func ListArchived(stateDir string) ([]*Session, error) {
	dir := filepath.Join(stateDir, ArchivedDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var out []*Session
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}
