package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/deadwood/pkg/prune/audit"
	"github.com/jamesainslie/deadwood/pkg/prune/config"
	"github.com/jamesainslie/deadwood/pkg/prune/extract"
	"github.com/jamesainslie/deadwood/pkg/prune/graph"
	"github.com/jamesainslie/deadwood/pkg/prune/guardian"
	"github.com/jamesainslie/deadwood/pkg/prune/hashcache"
	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/migrate"
	"github.com/jamesainslie/deadwood/pkg/prune/rollback"
	"github.com/jamesainslie/deadwood/pkg/prune/scanner"
	"github.com/jamesainslie/deadwood/pkg/prune/score"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// Manager drives a session through the control loop. It is the only
// component that calls the scorer, the migration engine, and the guardian.
// All methods are single-writer; a Manager must not be shared across
// goroutines.
type Manager struct {
	cfg      *config.Config
	root     string
	stateDir string

	sess     *Session
	lock     *Lock
	oplog    *migrate.OpLog
	engine   *migrate.Engine
	restore  *rollback.Manager
	guard    *guardian.Guardian
	auditor  *audit.Logger
	cache    *hashcache.Cache
	resolver *extract.Resolver

	logger *logging.Logger
}

// New starts a fresh session for the project root, acquiring the advisory
// lock. It fails fast with ConcurrentSessionError when another session
// holds the project, before any state is written.
func New(root string, cfg *config.Config) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", absRoot)
	}

	m := &Manager{
		cfg:      cfg,
		root:     absRoot,
		stateDir: config.StateDir(absRoot),
		sess:     NewSession(absRoot),
		logger:   logging.Get("session"),
	}
	if err := m.open(); err != nil {
		return nil, err
	}

	// The lock is held, so any active checkpoint belongs to a process that
	// died. Refuse to overwrite it; its transaction may still need
	// recovery, and resume handles that.
	prior, err := LoadActive(m.stateDir)
	if err != nil {
		m.Close()
		return nil, err
	}
	if prior != nil && !prior.Phase.terminal() {
		m.Close()
		return nil, fmt.Errorf("session %s is unfinished (phase %s): resume it with --resume or abort it first", prior.ID, prior.Phase)
	}

	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		m.Close()
		return nil, err
	}
	m.auditor.Record(audit.SessionStart, "session started", map[string]any{"root": absRoot})
	return m, nil
}

// Resume reattaches to the active checkpoint, recovering any transaction
// that was in flight when the previous process died.
func Resume(root string, cfg *config.Config) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	stateDir := config.StateDir(absRoot)

	sess, err := LoadActive(stateDir)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("no session to resume in %s", stateDir)
	}

	m := &Manager{
		cfg:      cfg,
		root:     absRoot,
		stateDir: stateDir,
		sess:     sess,
		logger:   logging.Get("session"),
	}
	if err := m.open(); err != nil {
		return nil, err
	}
	m.guard.SetBaseline(sess.Baseline)

	if err := m.recoverInFlight(); err != nil {
		m.Close()
		return nil, err
	}

	m.logger.Info("session resumed", "id", sess.ID, "phase", sess.Phase)
	m.auditor.Record(audit.SessionStart, "session resumed", map[string]any{"phase": string(sess.Phase)})
	return m, nil
}

// open acquires the lock and wires the session's collaborators.
func (m *Manager) open() error {
	lock, err := AcquireLock(m.stateDir, m.sess.ID)
	if err != nil {
		return err
	}
	m.lock = lock

	m.oplog, err = migrate.OpenOpLog(m.stateDir)
	if err != nil {
		m.lock.Release()
		return err
	}
	m.engine = migrate.NewEngine(m.root, m.stateDir, m.oplog)
	m.restore = rollback.NewManager(m.stateDir, m.oplog, m.engine)

	m.cache, err = hashcache.Open(filepath.Join(m.stateDir, "hashcache"))
	if err != nil {
		m.logger.Warn("hash cache unavailable", "error", err)
		m.cache = nil
	}

	runners := guardian.Discover(m.root, m.cfg.Guardian.Commands)
	m.guard = guardian.New(runners, m.cfg.Guardian.MissingTestIsRegression)

	m.auditor, err = audit.New(m.stateDir, m.sess.ID)
	if err != nil {
		m.closeInfra()
		return err
	}
	return nil
}

// Session returns the session entity.
func (m *Manager) Session() *Session { return m.sess }

// ProposeActions runs the scan and score phases and returns the proposed
// actions awaiting approval. Cancellation aborts cleanly; nothing has been
// moved yet.
func (m *Manager) ProposeActions(ctx context.Context) ([]*types.ProposedAction, error) {
	m.sess.Phase = PhaseScanning
	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		return nil, err
	}

	result, err := m.scan(ctx)
	if err != nil {
		return nil, err
	}
	m.sess.Stats.FilesScanned = int(result.FilesScanned)
	m.sess.Stats.DirsScanned = int(result.DirsScanned)
	m.sess.Stats.TotalSize = result.TotalSize
	m.sess.Stats.ScanIssues = len(result.Issues)
	m.sess.Issues = result.Issues
	m.auditor.Record(audit.Scan, "scan complete", map[string]any{
		"files": result.FilesScanned, "issues": len(result.Issues),
	})

	g, err := m.buildGraph(ctx, result.Files)
	if err != nil {
		return nil, err
	}
	m.sess.Stats.Orphans = len(g.OrphanedFiles())

	m.sess.Phase = PhaseScoring
	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		return nil, err
	}

	sc := score.New(score.Thresholds{
		High:   m.cfg.Thresholds.High,
		Medium: m.cfg.Thresholds.Medium,
	}, m.cfg.StaleAge(), time.Now())

	var proposals []*types.ProposedAction
	for _, f := range g.Files() {
		p := sc.Score(f)
		if p.Action == types.ActionArchive {
			proposals = append(proposals, p)
		}
	}
	m.sess.Proposals = proposals
	m.sess.Stats.Proposed = len(proposals)

	m.sess.Phase = PhaseAwaitingApproval
	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		return nil, err
	}
	m.auditor.Record(audit.Proposal, "proposals generated", map[string]any{"count": len(proposals)})
	return proposals, nil
}

// Approve records the user's decision for one proposed action.
func (m *Manager) Approve(relPath string, approved bool) error {
	for _, p := range m.sess.Proposals {
		if p.File.RelPath == relPath {
			p.UserApproved = &approved
			m.auditor.Record(audit.UserDecision, "decision recorded", map[string]any{
				"path": relPath, "approved": approved,
			})
			return nil
		}
	}
	return fmt.Errorf("no proposal for %q", relPath)
}

// ApproveAll records one decision for every pending proposal.
func (m *Manager) ApproveAll(approved bool) {
	for _, p := range m.sess.Proposals {
		if p.UserApproved == nil {
			v := approved
			p.UserApproved = &v
		}
	}
	m.auditor.Record(audit.UserDecision, "blanket decision recorded", map[string]any{
		"approved": approved, "count": len(m.sess.Proposals),
	})
}

// Execute runs the destructive phase: baseline capture, restore point,
// transaction, validation, and automatic rollback on regression. It is
// never entered without at least one explicitly approved proposal.
func (m *Manager) Execute(ctx context.Context) (*migrate.Transaction, *guardian.Verdict, error) {
	approved := m.approvedProposals()
	if len(approved) == 0 {
		return nil, nil, fmt.Errorf("no approved actions to execute")
	}
	m.sess.Stats.Approved = len(approved)
	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		return nil, nil, err
	}

	if m.sess.Baseline == nil {
		baseline, err := m.captureBaseline(ctx)
		if err != nil {
			return nil, nil, err
		}
		m.sess.Baseline = baseline
		m.sess.Phase = PhaseBaselineCaptured
		if err := m.sess.Checkpoint(m.stateDir); err != nil {
			return nil, nil, err
		}
	}

	rp, err := m.restore.Create("before session " + m.sess.ID)
	if err != nil {
		return nil, nil, err
	}
	m.sess.RestorePointID = rp.ID

	m.sess.Phase = PhaseExecuting
	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		return nil, nil, err
	}

	tx, execErr := m.engine.Execute(ctx, "session "+m.sess.ID, approved)
	if tx != nil {
		m.sess.TxIDs = append(m.sess.TxIDs, tx.ID)
		for _, op := range tx.CommittedOps() {
			m.auditor.Record(audit.FileOp, "archived", map[string]any{
				"path": op.RelPath, "tx": op.TxID,
			})
		}
	}
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			// Interruption: the current operation finished and the partial
			// transaction was reverted. Checkpoint and let resume continue.
			m.sess.Phase = PhaseAwaitingApproval
			m.sess.Checkpoint(m.stateDir)
			return tx, nil, execErr
		}
		m.fail(fmt.Errorf("transaction failed: %w", execErr))
		return tx, nil, execErr
	}

	for _, op := range tx.CommittedOps() {
		m.sess.Stats.Archived++
		m.sess.Stats.BytesReclaimed += op.Size
		m.markArchived(op)
	}
	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		return tx, nil, err
	}

	verdict, err := m.validate(ctx, tx)
	return tx, verdict, err
}

// validate runs the guardian after a committed transaction and reacts to
// the verdict: commit on pass, automatic rollback plus re-validation on
// regression, hold for decision on ambiguous outcomes.
func (m *Manager) validate(ctx context.Context, tx *migrate.Transaction) (*guardian.Verdict, error) {
	m.sess.Phase = PhaseValidating
	if err := m.sess.Checkpoint(m.stateDir); err != nil {
		return nil, err
	}

	verdict, err := m.runGuardian(ctx)
	if err != nil {
		// Ambiguous outcome. The archive stays as-is and the user decides.
		m.sess.Phase = PhaseAwaitingDecision
		m.sess.Verdict = string(guardian.ErrorState)
		m.sess.Error = err.Error()
		m.sess.Checkpoint(m.stateDir)
		m.auditor.Record(audit.TestRun, "validation inconclusive", map[string]any{"error": err.Error()})
		return nil, err
	}
	m.sess.Verdict = string(verdict.State)

	if verdict.State == guardian.Regressed {
		m.auditor.Record(audit.TestRun, "regression detected", map[string]any{
			"regressions": verdict.Regressions,
		})
		if err := m.rollbackAndConfirm(ctx, tx); err != nil {
			m.fail(err)
			return verdict, err
		}
		m.sess.Phase = PhaseRolledBack
		if aerr := m.sess.Archive(m.stateDir); aerr != nil {
			m.logger.Error("archive rolled-back session", "error", aerr)
		}
		m.auditor.Record(audit.SessionEnd, "session rolled back", nil)
		return verdict, types.ErrRegression
	}

	m.sess.Phase = PhaseCompleted
	if err := m.sess.Archive(m.stateDir); err != nil {
		return verdict, err
	}
	m.auditor.Record(audit.SessionEnd, "session completed", map[string]any{
		"archived": m.sess.Stats.Archived, "bytes": m.sess.Stats.BytesReclaimed,
	})
	return verdict, nil
}

// rollbackAndConfirm reverses the transaction and re-validates to confirm
// recovery. Failure to recover is fatal, never retried.
func (m *Manager) rollbackAndConfirm(ctx context.Context, tx *migrate.Transaction) error {
	rp, err := m.restore.Load(m.sess.RestorePointID)
	if err != nil {
		return err
	}
	if err := m.restore.RollbackTo(rp); err != nil {
		return err
	}
	m.auditor.Record(audit.Rollback, "rolled back after regression", map[string]any{
		"restore_point": rp.ID, "tx": tx.ID,
	})
	m.sess.Stats.Archived = 0
	m.sess.Stats.BytesReclaimed = 0

	confirm, err := m.runGuardian(ctx)
	if err != nil {
		return fmt.Errorf("re-validation after rollback: %w", err)
	}
	if confirm.State != guardian.Passed {
		return fmt.Errorf("%w: tests still failing after rollback", types.ErrRegression)
	}
	return nil
}

// Rollback restores the project to the named restore point on explicit
// user request.
func (m *Manager) Rollback(restorePointID string) error {
	rp, err := m.restore.Load(restorePointID)
	if err != nil {
		return err
	}
	if err := m.restore.RollbackTo(rp); err != nil {
		return err
	}
	m.auditor.Record(audit.Rollback, "explicit rollback", map[string]any{"restore_point": rp.ID})
	m.sess.Stats.Archived = 0
	m.sess.Stats.BytesReclaimed = 0
	m.sess.Phase = PhaseRolledBack
	return m.sess.Archive(m.stateDir)
}

// Resolve settles a session that validation left awaiting a decision.
// keep finalizes the archive as it stands; otherwise the transaction is
// rolled back to the session's restore point. The already-moved files are
// never re-executed.
func (m *Manager) Resolve(keep bool) error {
	if m.sess.Phase != PhaseAwaitingDecision {
		return fmt.Errorf("session %s is not awaiting a decision (phase %s)", m.sess.ID, m.sess.Phase)
	}
	if keep {
		m.sess.Phase = PhaseCompleted
		m.sess.Error = ""
		m.auditor.Record(audit.SessionEnd, "archive kept after inconclusive validation", nil)
		return m.sess.Archive(m.stateDir)
	}
	return m.Rollback(m.sess.RestorePointID)
}

// Abort checkpoints the session as aborted.
func (m *Manager) Abort() error {
	if m.sess.Phase.terminal() {
		return nil
	}
	m.sess.Phase = PhaseAborted
	m.auditor.Record(audit.SessionEnd, "session aborted", nil)
	return m.sess.Archive(m.stateDir)
}

// Close releases the lock and all infrastructure.
func (m *Manager) Close() error {
	m.closeInfra()
	if m.auditor != nil {
		m.auditor.Close()
	}
	return nil
}

func (m *Manager) closeInfra() {
	if m.cache != nil {
		m.cache.Close()
	}
	if m.oplog != nil {
		m.oplog.Close()
	}
	if m.lock != nil {
		m.lock.Release()
	}
}

func (m *Manager) fail(err error) {
	m.sess.Phase = PhaseFailed
	m.sess.Error = err.Error()
	m.sess.Checkpoint(m.stateDir)
	m.auditor.Record(audit.Error, "session failed", map[string]any{"error": err.Error()})
}

func (m *Manager) approvedProposals() []*types.ProposedAction {
	var out []*types.ProposedAction
	for _, p := range m.sess.Proposals {
		if p.Approved() {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) captureBaseline(ctx context.Context) (*guardian.Baseline, error) {
	timeout, err := m.cfg.GuardianTimeout()
	if err != nil {
		return nil, fmt.Errorf("guardian timeout: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	baseline, err := m.guard.CaptureBaseline(runCtx)
	if err != nil {
		m.auditor.Record(audit.TestRun, "baseline capture failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	m.auditor.Record(audit.TestRun, "baseline captured", map[string]any{"suites": len(baseline.Suites)})
	return baseline, nil
}

func (m *Manager) runGuardian(ctx context.Context) (*guardian.Verdict, error) {
	timeout, err := m.cfg.GuardianTimeout()
	if err != nil {
		return nil, fmt.Errorf("guardian timeout: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.guard.Validate(runCtx)
}

// scan builds scanner options from config and runs the parallel scan.
func (m *Manager) scan(ctx context.Context) (*scanner.Result, error) {
	maxSize, err := m.cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, fmt.Errorf("max file size: %w", err)
	}
	opts := scanner.Options{
		Root:              m.root,
		IgnoreDirs:        append([]string{config.DefaultStateDirName}, m.cfg.IgnoreDirs...),
		ProtectedPatterns: m.cfg.ProtectedPatterns,
		TempPatterns:      m.cfg.TempPatterns,
		TestPatterns:      m.cfg.TestPatterns,
		MaxFileSize:       maxSize,
		Workers:           m.cfg.Workers,
	}
	if m.cache != nil {
		opts.Cache = m.cache
	}
	return scanner.New(opts).Scan(ctx)
}

// buildGraph assembles the reference graph from extractor output.
func (m *Manager) buildGraph(ctx context.Context, files []*types.FileRecord) (*graph.Graph, error) {
	g := graph.New()
	relPaths := make([]string, 0, len(files))
	byRel := make(map[string]*types.FileRecord, len(files))
	for _, f := range files {
		g.AddFile(f)
		relPaths = append(relPaths, f.RelPath)
		byRel[f.RelPath] = f
	}
	m.resolver = extract.NewResolver(relPaths)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		extractors := extract.For(f.RelPath)
		if len(extractors) == 0 {
			continue
		}
		if extract.IsEntryPoint(f.RelPath) {
			f.InProject = true
		}

		content, err := scanner.ReadForExtraction(filepath.Join(m.root, filepath.FromSlash(f.RelPath)))
		if err != nil {
			m.sess.Issues = append(m.sess.Issues, types.ScanIssue{Path: f.RelPath, Error: err.Error()})
			continue
		}

		for _, x := range extractors {
			for _, raw := range x.Extract(f.RelPath, content) {
				target := m.resolver.Resolve(f.RelPath, raw.TargetHint)
				if target == "" {
					continue
				}
				g.AddReference(types.Reference{
					Source: f.RelPath,
					Target: target,
					Kind:   raw.Kind,
					Line:   raw.Line,
				})
				rec := byRel[target]
				if rec == nil {
					continue
				}
				switch raw.Kind {
				case types.KindProject, types.KindDependency:
					rec.InProject = true
				case types.KindMarkdown, types.KindLink:
					imp := extract.ClassifyImportance(content, raw.TargetHint)
					if imp != types.ImportanceUnknown &&
						(rec.Importance == types.ImportanceUnknown || imp < rec.Importance) {
						rec.Importance = imp
					}
				}
			}
		}
	}

	g.Annotate()
	return g, nil
}

// markArchived updates the proposal records after a committed operation.
func (m *Manager) markArchived(op migrate.Operation) {
	for _, p := range m.sess.Proposals {
		if p.File.RelPath == op.RelPath {
			p.File.Archived = true
			p.File.ArchivePath = op.ArchivePath
			return
		}
	}
}

// recoverInFlight reverts any transaction the previous process left open:
// committed operations in the log whose transaction never finalized are
// restored in reverse order, so resume always starts from a consistent
// tree.
func (m *Manager) recoverInFlight() error {
	ops, err := m.oplog.Replay()
	if err != nil {
		return err
	}

	finalized := make(map[string]bool)
	for _, txID := range knownTransactions(m.stateDir) {
		finalized[txID] = true
	}

	// Latest committed archive per path within unfinalized transactions.
	dangling := make(map[string]migrate.Operation)
	for _, op := range ops {
		if finalized[op.TxID] {
			continue
		}
		switch {
		case op.Type == migrate.OpArchive && op.Status == migrate.StatusCommitted:
			dangling[op.RelPath] = op
		case op.Status == migrate.StatusRolledBack:
			delete(dangling, op.RelPath)
		}
	}
	if len(dangling) == 0 {
		return nil
	}

	m.logger.Warn("recovering interrupted transaction", "operations", len(dangling))
	var failures []types.RollbackFailure
	for _, op := range dangling {
		if err := m.engine.RestoreOperation(op); err != nil {
			var rf *types.RollbackFailure
			if errors.As(err, &rf) {
				failures = append(failures, *rf)
				continue
			}
			return fmt.Errorf("recover %s: %w", op.RelPath, err)
		}
	}
	if len(failures) > 0 {
		return &types.RollbackIncompleteError{RestorePointID: "crash-recovery", Failures: failures}
	}
	m.auditor.Record(audit.Rollback, "recovered interrupted transaction", map[string]any{
		"operations": len(dangling),
	})
	return nil
}

func knownTransactions(stateDir string) []string {
	txs, err := migrate.ListTransactions(stateDir)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return ids
}
