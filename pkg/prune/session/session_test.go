package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

func TestSessionCheckpointRoundTrip(t *testing.T) {
	stateDir := t.TempDir()

	sess := NewSession("/tmp/project")
	sess.Phase = PhaseScoring
	sess.Stats.FilesScanned = 15
	approved := true
	sess.Proposals = []*types.ProposedAction{{
		File:         &types.FileRecord{RelPath: "old.py", Size: 42},
		Action:       types.ActionArchive,
		Confidence:   0.8,
		UserApproved: &approved,
	}}

	require.NoError(t, sess.Checkpoint(stateDir))

	loaded, err := LoadActive(stateDir)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, PhaseScoring, loaded.Phase)
	assert.Equal(t, 15, loaded.Stats.FilesScanned)
	require.Len(t, loaded.Proposals, 1)
	assert.Equal(t, "old.py", loaded.Proposals[0].File.RelPath)
	assert.True(t, loaded.Proposals[0].Approved())
}

func TestLoadActiveNone(t *testing.T) {
	loaded, err := LoadActive(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadActiveRejectsNewerSchema(t *testing.T) {
	stateDir := t.TempDir()
	data := []byte(`{"schema_version": 999, "id": "future", "phase": "created"}`)
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, SessionFileName), data, 0o644))

	_, err := LoadActive(stateDir)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestSessionArchive(t *testing.T) {
	stateDir := t.TempDir()

	sess := NewSession("/tmp/project")
	sess.Phase = PhaseCompleted
	require.NoError(t, sess.Checkpoint(stateDir))
	require.NoError(t, sess.Archive(stateDir))

	active, err := LoadActive(stateDir)
	require.NoError(t, err)
	assert.Nil(t, active, "active checkpoint must be gone after archiving")

	archived, err := ListArchived(stateDir)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, sess.ID, archived[0].ID)
	assert.Equal(t, PhaseCompleted, archived[0].Phase)
}

func TestListArchivedEmpty(t *testing.T) {
	archived, err := ListArchived(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseCompleted, PhaseFailed, PhaseAborted} {
		assert.True(t, p.terminal(), string(p))
	}
	for _, p := range []Phase{PhaseCreated, PhaseExecuting, PhaseAwaitingDecision, PhaseRolledBack} {
		assert.False(t, p.terminal(), string(p))
	}
}

func TestAcquireLockConflict(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir, "first")
	require.NoError(t, err)

	_, err = AcquireLock(stateDir, "second")
	require.Error(t, err)

	var concurrent *types.ConcurrentSessionError
	require.ErrorAs(t, err, &concurrent)
	assert.Equal(t, "first", concurrent.SessionID)
	assert.Equal(t, os.Getpid(), concurrent.PID)

	require.NoError(t, lock.Release())

	relock, err := AcquireLock(stateDir, "third")
	require.NoError(t, err)
	require.NoError(t, relock.Release())
}
