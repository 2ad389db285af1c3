package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

var testThresholds = Thresholds{High: 0.7, Medium: 0.5}

func newTestScorer() *Scorer {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return New(testThresholds, 180*24*time.Hour, now)
}

func recentFile(rel string) *types.FileRecord {
	return &types.FileRecord{
		RelPath: rel,
		ModTime: time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC),
		RefCount: 1,
		Importance: types.ImportanceStandard,
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	t.Run("orphaned unknown file is archived", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("old/helper.py")
		f.RefCount = 0
		f.Importance = types.ImportanceUnknown

		// base 0.5 + orphaned 0.2 + unknown 0.1 = 0.8
		p := s.Score(f)
		require.InDelta(t, 0.8, p.Confidence, 1e-9)
		assert.Equal(t, types.ActionArchive, p.Action)
	})

	t.Run("referenced standard file is kept", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("pkg/core.go")

		// base 0.5 + standard -0.2 = 0.3
		p := s.Score(f)
		require.InDelta(t, 0.3, p.Confidence, 1e-9)
		assert.Equal(t, types.ActionKeep, p.Action)
	})

	t.Run("score at threshold keeps the file", func(t *testing.T) {
		t.Parallel()
		s := New(Thresholds{High: 0.8, Medium: 0.7}, 0, time.Now())
		f := recentFile("maybe.go")
		f.RefCount = 0
		f.Importance = types.ImportanceUnknown

		// base 0.5 + orphaned 0.2 + unknown 0.1 = 0.7 == Medium exactly
		p := s.Score(f)
		require.InDelta(t, 0.7, p.Confidence, 1e-9)
		assert.Equal(t, types.ActionKeep, p.Action, "ties must break toward keep")
	})

	t.Run("protected file is always kept", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("LICENSE")
		f.Protected = true
		f.RefCount = 0
		f.Importance = types.ImportanceUnknown
		f.IsTemp = true

		p := s.Score(f)
		assert.Equal(t, types.ActionKeep, p.Action)
		assert.Equal(t, "protected by configuration", p.Reason)
	})

	t.Run("project member is always kept", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("scripts/build.sh")
		f.RefCount = 0
		f.Importance = types.ImportanceUnknown
		f.InProject = true

		p := s.Score(f)
		assert.Equal(t, types.ActionKeep, p.Action)
	})

	t.Run("orphaned temp file scores high", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("debug.log")
		f.RefCount = 0
		f.Importance = types.ImportanceUnknown
		f.IsTemp = true

		// base 0.5 + orphaned 0.2 + unknown 0.1 + temp 0.2 = 1.0
		p := s.Score(f)
		require.InDelta(t, 1.0, p.Confidence, 1e-9)
		assert.Equal(t, types.ActionArchive, p.Action)
		assert.Equal(t, "temporary file with no references", p.Reason)
	})

	t.Run("stale age adds weight", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("ancient.txt")
		f.RefCount = 0
		f.Importance = types.ImportanceUnknown
		f.ModTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		// base 0.5 + orphaned 0.2 + unknown 0.1 + stale 0.1 = 0.9
		p := s.Score(f)
		require.InDelta(t, 0.9, p.Confidence, 1e-9)
	})

	t.Run("critical documentation pins the file", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("deploy.sh")
		f.RefCount = 0
		f.Importance = types.ImportanceCritical

		// base 0.5 + orphaned 0.2 + critical -0.5 = 0.2
		p := s.Score(f)
		require.InDelta(t, 0.2, p.Confidence, 1e-9)
		assert.Equal(t, types.ActionKeep, p.Action)
	})

	t.Run("confidence is clamped", func(t *testing.T) {
		t.Parallel()
		s := newTestScorer()
		f := recentFile("tests/test_old.py")
		f.Importance = types.ImportanceCritical
		f.InProject = false
		f.IsTest = true

		// base 0.5 + critical -0.5 + test -0.2 = -0.2 -> clamped to 0
		p := s.Score(f)
		assert.Equal(t, 0.0, p.Confidence)
	})
}

func TestScoreDeterminism(t *testing.T) {
	t.Parallel()

	s := newTestScorer()
	f := recentFile("maybe/unused.ts")
	f.RefCount = 0
	f.Importance = types.ImportanceUnknown

	first := s.Score(f)
	for i := 0; i < 10; i++ {
		p := s.Score(f)
		require.Equal(t, first.Confidence, p.Confidence)
		require.Equal(t, first.Action, p.Action)
		require.Equal(t, first.Factors, p.Factors)
	}
}
