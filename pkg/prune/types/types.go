// Package types provides core data types for the deadwood pruning pipeline.
// It includes the file and reference records shared across components,
// the action and importance enumerations, and utility functions for
// parsing and formatting file sizes.
package types

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// SchemaVersion is written into every persisted record (sessions, operations,
// transactions, restore points) so a newer build can resume state written by
// an older one.
const SchemaVersion = 1

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// FileAction is the action recommended or approved for a file.
type FileAction string

const (
	// ActionKeep leaves the file untouched.
	ActionKeep FileAction = "keep"
	// ActionArchive moves the file into the recoverable archive.
	ActionArchive FileAction = "archive"
	// ActionConsolidate merges the file into another document before archiving.
	ActionConsolidate FileAction = "consolidate"
)

// ErrInvalidAction indicates that an action string could not be parsed.
var ErrInvalidAction = errors.New("invalid file action")

// ParseAction parses a string into a FileAction.
func ParseAction(s string) (FileAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keep":
		return ActionKeep, nil
	case "archive", "delete":
		// The pipeline never deletes; delete requests degrade to archive.
		return ActionArchive, nil
	case "consolidate":
		return ActionConsolidate, nil
	default:
		return ActionKeep, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// ReferenceKind classifies how one file refers to another. The set is open:
// external extractors may report kinds not listed here.
type ReferenceKind string

// Well-known reference kinds.
const (
	KindImport     ReferenceKind = "import"
	KindInclude    ReferenceKind = "include"
	KindScript     ReferenceKind = "script"
	KindStyle      ReferenceKind = "style"
	KindLink       ReferenceKind = "link"
	KindDependency ReferenceKind = "dependency"
	KindMarkdown   ReferenceKind = "markdown"
	KindProject    ReferenceKind = "project"
)

// DocImportance is the documentation-importance classification supplied by
// the markdown collaborator for a file.
type DocImportance int

const (
	// ImportanceUnknown means no documentation mentions the file.
	ImportanceUnknown DocImportance = iota
	// ImportanceCritical marks files documentation calls essential.
	ImportanceCritical
	// ImportanceRequired marks files documentation lists as required.
	ImportanceRequired
	// ImportanceStandard marks files mentioned without qualification.
	ImportanceStandard
	// ImportanceOptional marks files documentation calls optional.
	ImportanceOptional
	// ImportanceTemporary marks files documentation flags as temporary.
	ImportanceTemporary
	// ImportanceDeprecated marks files documentation flags as deprecated.
	ImportanceDeprecated
)

// String returns the string representation of the importance level.
func (d DocImportance) String() string {
	switch d {
	case ImportanceCritical:
		return "critical"
	case ImportanceRequired:
		return "required"
	case ImportanceStandard:
		return "standard"
	case ImportanceOptional:
		return "optional"
	case ImportanceTemporary:
		return "temporary"
	case ImportanceDeprecated:
		return "deprecated"
	default:
		return "unknown"
	}
}

// FileRecord describes one file discovered during the scan. Records are
// created by the scanner, scored by the confidence scorer, and updated by
// the migration engine when the file moves; they are never destroyed.
type FileRecord struct {
	// Path is the absolute path to the file.
	Path string `json:"path"`

	// RelPath is the path relative to the project root.
	RelPath string `json:"rel_path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// Mode is the file's permission and mode bits.
	Mode os.FileMode `json:"mode"`

	// ModTime is the last modification time of the file.
	ModTime time.Time `json:"mod_time"`

	// Hash is the hex-encoded BLAKE3 digest of the file content.
	Hash string `json:"hash"`

	// Protected marks files that must never be proposed for removal,
	// regardless of reference count.
	Protected bool `json:"protected"`

	// RefCount is the number of incoming references discovered for the file.
	RefCount int `json:"ref_count"`

	// Importance is the documentation-importance signal for the file.
	Importance DocImportance `json:"importance"`

	// InProject reports whether a project/build file lists this file.
	InProject bool `json:"in_project"`

	// IsTest reports whether the file matches the configured test patterns.
	IsTest bool `json:"is_test"`

	// IsTemp reports whether the file matches the configured temp patterns.
	IsTemp bool `json:"is_temp"`

	// Action is the current action for the file. Defaults to keep.
	Action FileAction `json:"action"`

	// Archived is set once the file has been moved into the archive.
	Archived bool `json:"archived"`

	// ArchivePath is the file's location inside the archive, when archived.
	ArchivePath string `json:"archive_path,omitempty"`
}

// Age returns the time elapsed since the file was last modified.
func (f *FileRecord) Age() time.Duration {
	return time.Since(f.ModTime)
}

// HumanSize returns the file size formatted as a human-readable string.
func (f *FileRecord) HumanSize() string {
	return FormatSize(f.Size)
}

// Reference is a directed edge in the reference graph: Source mentions
// Target. References are immutable once created.
type Reference struct {
	// Source is the relative path of the referring file.
	Source string `json:"source"`

	// Target is the relative path of the referenced file.
	Target string `json:"target"`

	// Kind classifies the reference.
	Kind ReferenceKind `json:"kind"`

	// Line is the 1-based line number where the reference was found,
	// or 0 when the extractor does not track locations.
	Line int `json:"line,omitempty"`
}

// RawReference is a reference fact as reported by an extractor, before the
// target hint has been resolved against the scanned file set.
type RawReference struct {
	// TargetHint is the import path, link target, or file name as written
	// in the source file.
	TargetHint string

	// Kind classifies the reference.
	Kind ReferenceKind

	// Line is the 1-based line number of the reference.
	Line int
}

// Factor is one weighted input to a confidence score.
type Factor struct {
	// Name identifies the factor (e.g. "orphaned", "doc_temporary").
	Name string `json:"name"`

	// Weight is the signed contribution of the factor to the score.
	Weight float64 `json:"weight"`
}

// ProposedAction is a scored removal proposal awaiting human approval.
type ProposedAction struct {
	// File is the record the proposal applies to.
	File *FileRecord `json:"file"`

	// Action is the recommended action.
	Action FileAction `json:"action"`

	// Confidence is the removal confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Factors is the breakdown of score contributions.
	Factors []Factor `json:"factors"`

	// Reason is a human-readable justification for the proposal.
	Reason string `json:"reason"`

	// UserApproved records the user's decision. Nil until decided.
	UserApproved *bool `json:"user_approved,omitempty"`
}

// Approved reports whether the user approved the proposal.
func (p *ProposedAction) Approved() bool {
	return p.UserApproved != nil && *p.UserApproved
}

// Decided reports whether the user has made a decision on the proposal.
func (p *ProposedAction) Decided() bool {
	return p.UserApproved != nil
}

// ScanIssue records a per-file error encountered during scanning.
// Scan issues are reported in the final summary and never abort the run.
type ScanIssue struct {
	// Path is the file or directory where the error occurred.
	Path string `json:"path"`

	// Error is the error message describing what went wrong.
	Error string `json:"error"`
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in
// bytes. Plain byte counts, "512B", "100K", "50MiB", "2GB" and similar
// forms are accepted; decimal values are truncated to the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
