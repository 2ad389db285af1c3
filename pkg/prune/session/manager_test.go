package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/deadwood/pkg/prune/config"
	"github.com/jamesainslie/deadwood/pkg/prune/guardian"
	"github.com/jamesainslie/deadwood/pkg/prune/migrate"
	"github.com/jamesainslie/deadwood/pkg/prune/rollback"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

func testConfig() *config.Config {
	return &config.Config{
		ProtectedPatterns: []string{"README*", "go.mod"},
		TempPatterns:      []string{"*.tmp"},
		TestPatterns:      []string{"*_test.py"},
		IgnoreDirs:        []string{".git"},
		MaxFileSize:       "10MB",
		StaleAgeDays:      180,
		Workers:           2,
		Thresholds:        config.ThresholdConfig{High: 0.7, Medium: 0.5},
		Guardian: config.GuardianConfig{
			Timeout:                 "30s",
			MissingTestIsRegression: true,
		},
	}
}

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func proposalPaths(proposals []*types.ProposedAction) []string {
	out := make([]string, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, p.File.RelPath)
	}
	return out
}

// The project under test has no discoverable test suite, so the guardian
// runs with zero runners and validation passes on an empty baseline.
func TestManagerLifecycle(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "app.py", "from utils.helpers import greet\n\ngreet()\n")
	writeProjectFile(t, root, "utils/helpers.py", "def greet():\n    print('hi')\n")
	writeProjectFile(t, root, "lonely.py", "print('nobody imports me')\n")
	writeProjectFile(t, root, "scratch.tmp", "leftover junk\n")

	cfg := testConfig()
	m, err := New(root, cfg)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	proposals, err := m.ProposeActions(ctx)
	require.NoError(t, err)

	paths := proposalPaths(proposals)
	assert.Contains(t, paths, "lonely.py")
	assert.Contains(t, paths, "scratch.tmp")
	assert.NotContains(t, paths, "app.py", "entry points are project members")

	sess := m.Session()
	assert.Equal(t, PhaseAwaitingApproval, sess.Phase)
	assert.Equal(t, 4, sess.Stats.FilesScanned)
	assert.Equal(t, len(proposals), sess.Stats.Proposed)

	require.NoError(t, m.Approve("lonely.py", true))
	require.NoError(t, m.Approve("scratch.tmp", true))
	for _, p := range proposals {
		if !p.Decided() {
			require.NoError(t, m.Approve(p.File.RelPath, false))
		}
	}

	tx, verdict, err := m.Execute(ctx)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.NotNil(t, verdict)
	assert.Equal(t, guardian.Passed, verdict.State)
	assert.Len(t, tx.CommittedOps(), 2)

	assert.NoFileExists(t, filepath.Join(root, "lonely.py"))
	assert.NoFileExists(t, filepath.Join(root, "scratch.tmp"))
	assert.FileExists(t, filepath.Join(root, "utils", "helpers.py"))

	stateDir := config.StateDir(root)
	assert.FileExists(t, filepath.Join(stateDir, migrate.ArchiveDirName, tx.ID, "lonely.py"))
	assert.FileExists(t, filepath.Join(stateDir, migrate.ArchiveDirName, tx.ID, "scratch.tmp"))

	assert.Equal(t, PhaseCompleted, sess.Phase)
	assert.Equal(t, 2, sess.Stats.Archived)
	assert.Positive(t, sess.Stats.BytesReclaimed)
	assert.NotEmpty(t, sess.RestorePointID)

	active, err := LoadActive(stateDir)
	require.NoError(t, err)
	assert.Nil(t, active, "completed sessions leave no active checkpoint")

	archived, err := ListArchived(stateDir)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, sess.ID, archived[0].ID)
}

func TestManagerRefusesSecondSession(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "app.py", "pass\n")

	m, err := New(root, testConfig())
	require.NoError(t, err)
	defer m.Close()

	_, err = New(root, testConfig())
	var concurrent *types.ConcurrentSessionError
	require.ErrorAs(t, err, &concurrent)
	assert.Equal(t, m.Session().ID, concurrent.SessionID)
}

func TestExecuteWithoutApprovals(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "app.py", "pass\n")

	m, err := New(root, testConfig())
	require.NoError(t, err)
	defer m.Close()

	_, _, err = m.Execute(context.Background())
	assert.ErrorContains(t, err, "no approved actions")
}

func TestManagerAbort(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "app.py", "pass\n")

	m, err := New(root, testConfig())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Abort())

	stateDir := config.StateDir(root)
	active, err := LoadActive(stateDir)
	require.NoError(t, err)
	assert.Nil(t, active)

	archived, err := ListArchived(stateDir)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, PhaseAborted, archived[0].Phase)
}

// A configured test command that fails once its file is archived must
// trigger the automatic rollback and leave the tree as it was.
func TestManagerRollsBackOnRegression(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "app.py", "pass\n")
	writeProjectFile(t, root, "canary.py", "print('needed at runtime')\n")
	writeProjectFile(t, root, "check.sh", "test -f canary.py\n")

	cfg := testConfig()
	cfg.Guardian.Commands = []string{"sh check.sh"}

	m, err := New(root, cfg)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	proposals, err := m.ProposeActions(ctx)
	require.NoError(t, err)
	require.Contains(t, proposalPaths(proposals), "canary.py")

	for _, p := range proposals {
		require.NoError(t, m.Approve(p.File.RelPath, p.File.RelPath == "canary.py"))
	}

	tx, verdict, err := m.Execute(ctx)
	require.ErrorIs(t, err, types.ErrRegression)
	require.NotNil(t, tx)
	require.NotNil(t, verdict)
	assert.Equal(t, guardian.Regressed, verdict.State)

	// The archive was reversed; the tree is back to its pre-execute state.
	data, rerr := os.ReadFile(filepath.Join(root, "canary.py"))
	require.NoError(t, rerr)
	assert.Equal(t, "print('needed at runtime')\n", string(data))

	sess := m.Session()
	assert.Equal(t, PhaseRolledBack, sess.Phase)
	assert.Equal(t, string(guardian.Regressed), sess.Verdict)
	assert.Equal(t, 0, sess.Stats.Archived)

	stateDir := config.StateDir(root)
	active, err := LoadActive(stateDir)
	require.NoError(t, err)
	assert.Nil(t, active, "rolled-back sessions leave no active checkpoint")

	archived, err := ListArchived(stateDir)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, PhaseRolledBack, archived[0].Phase)
}

func TestResumeRequiresCheckpoint(t *testing.T) {
	root := t.TempDir()
	_, err := Resume(root, testConfig())
	assert.ErrorContains(t, err, "no session to resume")
}

// A transaction whose process died between moving files and finalizing the
// transaction record must be reversed on resume.
func TestResumeRecoversInterruptedTransaction(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "doomed.py", "original content\n")
	stateDir := config.StateDir(root)
	require.NoError(t, os.MkdirAll(stateDir, 0o755))

	// Archive the file through the engine, then erase the finalized
	// transaction record to simulate a crash mid-transaction.
	oplog, err := migrate.OpenOpLog(stateDir)
	require.NoError(t, err)
	engine := migrate.NewEngine(root, stateDir, oplog)

	approved := true
	tx, err := engine.Execute(context.Background(), "interrupted", []*types.ProposedAction{{
		File:         &types.FileRecord{RelPath: "doomed.py"},
		Action:       types.ActionArchive,
		UserApproved: &approved,
	}})
	require.NoError(t, err)
	require.NoError(t, oplog.Close())
	require.NoError(t, os.Remove(filepath.Join(stateDir, migrate.TxDirName, tx.ID+".json")))
	require.NoFileExists(t, filepath.Join(root, "doomed.py"))

	sess := NewSession(root)
	sess.Phase = PhaseExecuting
	require.NoError(t, sess.Checkpoint(stateDir))

	m, err := Resume(root, testConfig())
	require.NoError(t, err)
	defer m.Close()

	data, err := os.ReadFile(filepath.Join(root, "doomed.py"))
	require.NoError(t, err)
	assert.Equal(t, "original content\n", string(data))
}

// Starting fresh over a dead session's checkpoint must refuse rather than
// overwrite it; its transaction may still need recovery.
func TestNewRefusesUnfinishedSession(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "doomed.py", "original content\n")
	stateDir := config.StateDir(root)
	require.NoError(t, os.MkdirAll(stateDir, 0o755))

	oplog, err := migrate.OpenOpLog(stateDir)
	require.NoError(t, err)
	engine := migrate.NewEngine(root, stateDir, oplog)

	approved := true
	tx, err := engine.Execute(context.Background(), "interrupted", []*types.ProposedAction{{
		File:         &types.FileRecord{RelPath: "doomed.py"},
		Action:       types.ActionArchive,
		UserApproved: &approved,
	}})
	require.NoError(t, err)
	require.NoError(t, oplog.Close())
	require.NoError(t, os.Remove(filepath.Join(stateDir, migrate.TxDirName, tx.ID+".json")))

	crashed := NewSession(root)
	crashed.Phase = PhaseExecuting
	require.NoError(t, crashed.Checkpoint(stateDir))

	_, err = New(root, testConfig())
	require.ErrorContains(t, err, "--resume")

	// The dead session's checkpoint survives and the archive was not
	// touched.
	active, err := LoadActive(stateDir)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, crashed.ID, active.ID)
	assert.NoFileExists(t, filepath.Join(root, "doomed.py"))

	// Resume still recovers the interrupted transaction.
	m, err := Resume(root, testConfig())
	require.NoError(t, err)
	defer m.Close()
	assert.FileExists(t, filepath.Join(root, "doomed.py"))
}

// parkAwaitingDecision archives rel through the engine and checkpoints a
// session in the awaiting-decision phase, the state an inconclusive test
// run leaves behind.
func parkAwaitingDecision(t *testing.T, root, rel string) {
	t.Helper()
	stateDir := config.StateDir(root)
	require.NoError(t, os.MkdirAll(stateDir, 0o755))

	oplog, err := migrate.OpenOpLog(stateDir)
	require.NoError(t, err)
	engine := migrate.NewEngine(root, stateDir, oplog)
	restore := rollback.NewManager(stateDir, oplog, engine)

	rp, err := restore.Create("before validation")
	require.NoError(t, err)

	approved := true
	_, err = engine.Execute(context.Background(), "parked", []*types.ProposedAction{{
		File:         &types.FileRecord{RelPath: rel},
		Action:       types.ActionArchive,
		UserApproved: &approved,
	}})
	require.NoError(t, err)
	require.NoError(t, oplog.Close())

	sess := NewSession(root)
	sess.Phase = PhaseAwaitingDecision
	sess.RestorePointID = rp.ID
	sess.Error = "test run timed out"
	sess.Stats.Archived = 1
	require.NoError(t, sess.Checkpoint(stateDir))
}

func TestResolveRollsBack(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "flaky.py", "body\n")
	parkAwaitingDecision(t, root, "flaky.py")

	m, err := Resume(root, testConfig())
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, PhaseAwaitingDecision, m.Session().Phase)

	require.NoError(t, m.Resolve(false))

	data, err := os.ReadFile(filepath.Join(root, "flaky.py"))
	require.NoError(t, err)
	assert.Equal(t, "body\n", string(data))
	assert.Equal(t, PhaseRolledBack, m.Session().Phase)
	assert.Equal(t, 0, m.Session().Stats.Archived)

	active, err := LoadActive(config.StateDir(root))
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestResolveKeepsArchive(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "flaky.py", "body\n")
	parkAwaitingDecision(t, root, "flaky.py")

	m, err := Resume(root, testConfig())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Resolve(true))

	assert.NoFileExists(t, filepath.Join(root, "flaky.py"))
	assert.Equal(t, PhaseCompleted, m.Session().Phase)

	active, err := LoadActive(config.StateDir(root))
	require.NoError(t, err)
	assert.Nil(t, active)

	// A settled session cannot be resolved twice.
	assert.Error(t, m.Resolve(true))
}
