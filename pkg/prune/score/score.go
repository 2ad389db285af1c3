// Package score computes per-file removal confidence. The scorer is a pure
// function of its inputs: identical records and signals always produce the
// same score and recommendation, which keeps test scenarios reproducible.
package score

import (
	"fmt"
	"time"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// Factor weights. The model is an additive combination of normalized
// signals clamped to [0,1], starting from a neutral base.
const (
	baseScore      = 0.5
	weightOrphaned = 0.2
	weightTemp     = 0.2
	weightStale    = 0.1
	weightProject  = -0.4
	weightTest     = -0.2
)

// importanceWeights maps the documentation-importance signal to a fixed
// penalty or bonus. Files documentation never mentions get a small bonus;
// files documentation calls critical get a large penalty.
var importanceWeights = map[types.DocImportance]float64{
	types.ImportanceUnknown:    0.1,
	types.ImportanceCritical:   -0.5,
	types.ImportanceRequired:   -0.4,
	types.ImportanceStandard:   -0.2,
	types.ImportanceOptional:   0.0,
	types.ImportanceTemporary:  0.3,
	types.ImportanceDeprecated: 0.2,
}

// Thresholds are the confidence cutoffs between recommendations.
// Comparisons are strict: a score exactly at a threshold keeps the file,
// so ties always break toward the safe action.
type Thresholds struct {
	// High is the confidence above which archiving is recommended.
	High float64

	// Medium is the confidence above which archiving is suggested.
	Medium float64
}

// Scorer computes removal confidence for file records.
type Scorer struct {
	thresholds Thresholds
	staleAge   time.Duration
	now        time.Time
}

// New creates a Scorer. The reference time is fixed at construction so a
// scorer instance gives stable answers for the whole scoring phase.
func New(thresholds Thresholds, staleAge time.Duration, now time.Time) *Scorer {
	return &Scorer{thresholds: thresholds, staleAge: staleAge, now: now}
}

// Score computes the removal confidence and recommended action for a file.
// Protected files and files listed by a project file are always kept.
func (s *Scorer) Score(f *types.FileRecord) *types.ProposedAction {
	factors := s.factors(f)

	confidence := baseScore
	for _, fct := range factors {
		confidence += fct.Weight
	}
	confidence = clamp(confidence)

	action, reason := s.recommend(f, confidence)

	return &types.ProposedAction{
		File:       f,
		Action:     action,
		Confidence: confidence,
		Factors:    factors,
		Reason:     reason,
	}
}

// factors computes the signed score contributions for a file.
func (s *Scorer) factors(f *types.FileRecord) []types.Factor {
	var factors []types.Factor

	if f.RefCount == 0 {
		factors = append(factors, types.Factor{Name: "orphaned", Weight: weightOrphaned})
	}

	if w, ok := importanceWeights[f.Importance]; ok && w != 0 {
		factors = append(factors, types.Factor{
			Name:   "doc_" + f.Importance.String(),
			Weight: w,
		})
	}

	if f.InProject {
		factors = append(factors, types.Factor{Name: "project_member", Weight: weightProject})
	}

	if f.IsTest {
		factors = append(factors, types.Factor{Name: "test_file", Weight: weightTest})
	}

	if f.IsTemp {
		factors = append(factors, types.Factor{Name: "temp_pattern", Weight: weightTemp})
	}

	if s.staleAge > 0 && s.now.Sub(f.ModTime) > s.staleAge {
		factors = append(factors, types.Factor{Name: "stale", Weight: weightStale})
	}

	return factors
}

// recommend maps a confidence to an action. False negatives (keeping a
// removable file) are preferred over false positives, so every ambiguous
// case resolves to keep.
func (s *Scorer) recommend(f *types.FileRecord, confidence float64) (types.FileAction, string) {
	if f.Protected {
		return types.ActionKeep, "protected by configuration"
	}
	if f.InProject {
		return types.ActionKeep, "listed in a project or build file"
	}

	switch {
	case confidence > s.thresholds.High:
		if f.IsTemp {
			return types.ActionArchive, "temporary file with no references"
		}
		return types.ActionArchive, "unreferenced file, safe to archive"
	case confidence > s.thresholds.Medium:
		return types.ActionArchive, "possibly unused, recommend archiving"
	default:
		return types.ActionKeep, fmt.Sprintf("confidence %.2f below threshold", confidence)
	}
}

// clamp bounds a score to [0,1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
