// Package report formats the final run summary: actions taken and skipped,
// space reclaimed, the guardian verdict, and any per-file errors.
//
// The package uses a registry pattern so the output format can be selected
// at runtime:
//
//	formatter, err := report.Get("pretty")
//	var buf bytes.Buffer
//	formatter.Format(&buf, rep)
package report

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/deadwood/pkg/prune/session"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// Action is one proposed or executed file action for display.
type Action struct {
	Path       string  `json:"path"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Approved   bool    `json:"approved"`
	Archived   bool    `json:"archived"`
	Size       int64   `json:"size"`
	SizeHuman  string  `json:"size_human"`
}

// Report is the assembled run summary handed to formatters.
type Report struct {
	SessionID string    `json:"session_id"`
	Root      string    `json:"root"`
	Phase     string    `json:"phase"`
	Verdict   string    `json:"verdict,omitempty"`
	StartedAt time.Time `json:"started_at"`
	DryRun    bool      `json:"dry_run"`

	FilesScanned   int    `json:"files_scanned"`
	Orphans        int    `json:"orphans"`
	Proposed       int    `json:"proposed"`
	Archived       int    `json:"archived"`
	BytesReclaimed int64  `json:"bytes_reclaimed"`
	SpaceReclaimed string `json:"space_reclaimed"`

	Actions []Action          `json:"actions"`
	Skipped []Action          `json:"skipped,omitempty"`
	Issues  []types.ScanIssue `json:"issues,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Build assembles a report from a finished or in-flight session.
func Build(sess *session.Session, dryRun bool) *Report {
	r := &Report{
		SessionID:      sess.ID,
		Root:           sess.ProjectRoot,
		Phase:          string(sess.Phase),
		Verdict:        sess.Verdict,
		StartedAt:      sess.CreatedAt,
		DryRun:         dryRun,
		FilesScanned:   sess.Stats.FilesScanned,
		Orphans:        sess.Stats.Orphans,
		Proposed:       sess.Stats.Proposed,
		Archived:       sess.Stats.Archived,
		BytesReclaimed: sess.Stats.BytesReclaimed,
		SpaceReclaimed: humanize.IBytes(uint64(sess.Stats.BytesReclaimed)),
		Issues:         sess.Issues,
		Error:          sess.Error,
	}

	for _, p := range sess.Proposals {
		a := Action{
			Path:       p.File.RelPath,
			Action:     string(p.Action),
			Confidence: p.Confidence,
			Reason:     p.Reason,
			Approved:   p.Approved(),
			Archived:   p.File.Archived,
			Size:       p.File.Size,
			SizeHuman:  humanize.IBytes(uint64(p.File.Size)),
		}
		if a.Approved {
			r.Actions = append(r.Actions, a)
		} else {
			r.Skipped = append(r.Skipped, a)
		}
	}
	sort.Slice(r.Actions, func(i, j int) bool { return r.Actions[i].Path < r.Actions[j].Path })
	sort.Slice(r.Skipped, func(i, j int) bool { return r.Skipped[i].Path < r.Skipped[j].Path })
	return r
}

// Formatter renders a report into a buffer.
type Formatter interface {
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory creates a new formatter instance.
type FormatterFactory func() Formatter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]FormatterFactory)
)

// Register adds a formatter factory under the given name.
func Register(name string, factory FormatterFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get returns a new formatter for the given name.
func Get(name string) (Formatter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown format %q (available: %v)", name, Names())
	}
	return factory(), nil
}

// Names lists registered formats in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
