// Package rollback restores the project tree to the state captured by a
// restore point. A restore point is a lightweight marker into the durable
// operation log; rolling back replays the log backwards from its tail to
// the marker, reversing each committed archive that has not already been
// undone. The replay is idempotent: running it twice leaves the tree in
// the same state as running it once.
package rollback

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/migrate"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// DirName holds restore point records inside the state directory.
const DirName = "restorepoints"

// RestorePoint marks a position in the operation log. Everything logged
// after the marker can be reversed to return the tree to this moment.
type RestorePoint struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`

	// LogSeq is the last operation log sequence number at creation time.
	LogSeq int64 `json:"log_seq"`
}

// Manager creates restore points and rolls the tree back to them.
type Manager struct {
	stateDir string
	log      *migrate.OpLog
	engine   *migrate.Engine
	logger   *logging.Logger
}

// NewManager creates a manager over the given state directory and engine.
func NewManager(stateDir string, log *migrate.OpLog, engine *migrate.Engine) *Manager {
	return &Manager{
		stateDir: stateDir,
		log:      log,
		engine:   engine,
		logger:   logging.Get("rollback"),
	}
}

// Create records a restore point at the current log position.
func (m *Manager) Create(description string) (*RestorePoint, error) {
	rp := &RestorePoint{
		SchemaVersion: types.SchemaVersion,
		ID:            time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8],
		Description:   description,
		CreatedAt:     time.Now().UTC(),
		LogSeq:        m.log.Seq(),
	}

	dir := filepath.Join(m.stateDir, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create restore point dir: %w", err)
	}

	data, err := json.MarshalIndent(rp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal restore point: %w", err)
	}

	path := filepath.Join(dir, rp.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write restore point: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("finalize restore point: %w", err)
	}

	m.logger.Info("restore point created", "id", rp.ID, "log_seq", rp.LogSeq)
	return rp, nil
}

// Load reads a restore point by ID.
func (m *Manager) Load(id string) (*RestorePoint, error) {
	path := filepath.Join(m.stateDir, DirName, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read restore point %s: %w", id, err)
	}
	var rp RestorePoint
	if err := json.Unmarshal(data, &rp); err != nil {
		return nil, fmt.Errorf("parse restore point %s: %w", id, err)
	}
	return &rp, nil
}

// List returns all restore points, newest first.
func (m *Manager) List() ([]*RestorePoint, error) {
	dir := filepath.Join(m.stateDir, DirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read restore point dir: %w", err)
	}

	var points []*RestorePoint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rp, err := m.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			m.logger.Warn("skipping unreadable restore point", "file", name, "error", err)
			continue
		}
		points = append(points, rp)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].CreatedAt.After(points[j].CreatedAt)
	})
	return points, nil
}

// RollbackTo reverses every archive committed after the restore point, in
// reverse log order. Failures to restore individual files are collected
// rather than aborting the pass, and reported together so every remaining
// inconsistency is visible at once. When nothing needs reversing the call
// is a no-op.
func (m *Manager) RollbackTo(rp *RestorePoint) error {
	ops, err := m.pendingSince(rp.LogSeq)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		m.logger.Info("nothing to roll back", "restore_point", rp.ID)
		return nil
	}

	m.logger.Info("rolling back", "restore_point", rp.ID, "operations", len(ops))

	var failures []types.RollbackFailure
	for _, op := range ops {
		if err := m.engine.RestoreOperation(op); err != nil {
			var rf *types.RollbackFailure
			if errors.As(err, &rf) {
				m.logger.Error("restore failed", "path", op.RelPath, "reason", rf.Reason)
				failures = append(failures, *rf)
				continue
			}
			return fmt.Errorf("restore %s: %w", op.RelPath, err)
		}
	}

	if len(failures) > 0 {
		return &types.RollbackIncompleteError{RestorePointID: rp.ID, Failures: failures}
	}
	m.logger.Info("rollback complete", "restore_point", rp.ID)
	return nil
}

// pendingSince replays the log and returns the committed archive
// operations after seq that have not since been rolled back, most recent
// first.
func (m *Manager) pendingSince(seq int64) ([]migrate.Operation, error) {
	all, err := m.log.Replay()
	if err != nil {
		return nil, err
	}

	// Latest state per file wins. A later rolled_back or restore record
	// cancels an earlier committed archive of the same path.
	latest := make(map[string]migrate.Operation)
	for _, op := range all {
		if op.Seq <= seq {
			continue
		}
		switch {
		case op.Type == migrate.OpArchive && op.Status == migrate.StatusCommitted:
			latest[op.RelPath] = op
		case op.Status == migrate.StatusRolledBack:
			delete(latest, op.RelPath)
		}
	}

	ops := make([]migrate.Operation, 0, len(latest))
	for _, op := range latest {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Seq > ops[j].Seq })
	return ops, nil
}
