package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/scanner"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

const (
	// ArchiveDirName is the archive root inside the state directory.
	ArchiveDirName = "archive"
	// TxDirName holds finalized transaction records.
	TxDirName = "transactions"
)

// Engine moves files between the project tree and the archive under
// transactional, hash-verified operations. Moves within a transaction are
// sequential; each is logged before it begins and after it commits.
type Engine struct {
	root     string
	stateDir string
	log      *OpLog
	logger   *logging.Logger
}

// NewEngine creates an engine rooted at the project directory. stateDir is
// the durable state directory (normally <root>/.deadwood).
func NewEngine(root, stateDir string, log *OpLog) *Engine {
	return &Engine{
		root:     root,
		stateDir: stateDir,
		log:      log,
		logger:   logging.Get("migrate"),
	}
}

// NewTxID returns a transaction identifier that sorts chronologically.
func NewTxID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Execute runs the approved archive actions as one transaction. Operations
// execute in order; the first failure reverts every already-committed
// operation in reverse order and the transaction is reported as rolled
// back. Cancellation via ctx is honored between operations, never mid-move.
func (e *Engine) Execute(ctx context.Context, description string, actions []*types.ProposedAction) (*Transaction, error) {
	tx := &Transaction{
		SchemaVersion: types.SchemaVersion,
		ID:            NewTxID(),
		Description:   description,
		StartedAt:     time.Now().UTC(),
		Status:        TxOpen,
	}

	inflight := make(map[string]bool)
	var execErr error

	for _, action := range actions {
		if !action.Approved() || action.Action != types.ActionArchive {
			continue
		}
		rel := action.File.RelPath
		if inflight[rel] {
			e.logger.Warn("duplicate action for path, skipping", "path", rel)
			continue
		}
		inflight[rel] = true

		if err := ctx.Err(); err != nil {
			execErr = err
			break
		}

		op, err := e.archiveOne(tx, action.File)
		if op != nil {
			tx.Operations = append(tx.Operations, *op)
		}
		if err != nil {
			execErr = err
			break
		}
	}

	tx.EndedAt = time.Now().UTC()
	if execErr == nil {
		tx.Status = TxCommitted
		if err := e.writeTransaction(tx); err != nil {
			return tx, err
		}
		e.logger.Info("transaction committed", "tx", tx.ID, "operations", len(tx.Operations))
		return tx, nil
	}

	e.logger.Error("transaction failed, reverting", "tx", tx.ID, "error", execErr)
	if revertErr := e.revert(tx); revertErr != nil {
		tx.Status = TxPartial
		if werr := e.writeTransaction(tx); werr != nil {
			e.logger.Error("write transaction record", "tx", tx.ID, "error", werr)
		}
		return tx, revertErr
	}
	tx.Status = TxRolledBack
	if err := e.writeTransaction(tx); err != nil {
		return tx, err
	}
	return tx, execErr
}

// archiveOne moves a single file into the archive and verifies it. The
// operation is logged as pending before the move and committed after the
// post-image hash check, each record flushed before the next step.
func (e *Engine) archiveOne(tx *Transaction, f *types.FileRecord) (*Operation, error) {
	src := filepath.Join(e.root, filepath.FromSlash(f.RelPath))

	info, err := os.Lstat(src)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.RelPath, err)
	}

	preHash := f.Hash
	if preHash == "" {
		preHash, err = scanner.HashFile(src)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", f.RelPath, err)
		}
	}

	op := &Operation{
		SchemaVersion: types.SchemaVersion,
		TxID:          tx.ID,
		Type:          OpArchive,
		RelPath:       f.RelPath,
		ArchivePath:   filepath.ToSlash(filepath.Join(ArchiveDirName, tx.ID, f.RelPath)),
		Hash:          preHash,
		Size:          info.Size(),
		Mode:          info.Mode().Perm(),
		ModTime:       info.ModTime(),
		Status:        StatusPending,
	}
	if err := e.log.Append(op); err != nil {
		return nil, err
	}

	dst := filepath.Join(e.stateDir, filepath.FromSlash(op.ArchivePath))
	if err := e.moveVerified(src, dst, op); err != nil {
		op.Status = StatusFailed
		op.Error = err.Error()
		if lerr := e.log.Append(op); lerr != nil {
			e.logger.Error("log failed operation", "path", op.RelPath, "error", lerr)
		}
		return op, err
	}

	op.Status = StatusCommitted
	if err := e.log.Append(op); err != nil {
		return op, err
	}
	e.logger.Debug("archived", "path", op.RelPath, "tx", tx.ID)
	return op, nil
}

// RestoreOperation moves an archived file back to its original location,
// with the same verification as the forward move. The destination must be
// vacant or already hold identical content.
func (e *Engine) RestoreOperation(op Operation) error {
	src := filepath.Join(e.stateDir, filepath.FromSlash(op.ArchivePath))
	dst := filepath.Join(e.root, filepath.FromSlash(op.RelPath))

	if _, err := os.Lstat(dst); err == nil {
		hash, herr := scanner.HashFile(dst)
		if herr == nil && hash == op.Hash {
			// Destination already holds the expected content; remove the
			// archive copy so the restore is idempotent.
			rec := op
			rec.Status = StatusRolledBack
			if lerr := e.log.Append(&rec); lerr != nil {
				return lerr
			}
			return os.Remove(src)
		}
		return &types.RollbackFailure{
			Path:         op.RelPath,
			ArchivePath:  op.ArchivePath,
			ExpectedHash: op.Hash,
			ActualHash:   hash,
			Reason:       "destination occupied by different content",
		}
	}

	if _, err := os.Lstat(src); err != nil {
		return &types.RollbackFailure{
			Path:        op.RelPath,
			ArchivePath: op.ArchivePath,
			Reason:      fmt.Sprintf("archive copy missing: %v", err),
		}
	}

	rec := op
	rec.Type = OpRestore
	rec.Status = StatusPending
	if err := e.log.Append(&rec); err != nil {
		return err
	}

	if err := e.moveVerified(src, dst, &rec); err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		if lerr := e.log.Append(&rec); lerr != nil {
			e.logger.Error("log failed restore", "path", rec.RelPath, "error", lerr)
		}
		return err
	}

	rec.Status = StatusRolledBack
	if err := e.log.Append(&rec); err != nil {
		return err
	}
	e.logger.Debug("restored", "path", op.RelPath, "tx", op.TxID)
	return nil
}

// RestoreTransaction reverses every committed operation of a finalized
// transaction, most recent first.
func (e *Engine) RestoreTransaction(tx *Transaction) error {
	var failures []types.RollbackFailure
	ops := tx.CommittedOps()
	for i := len(ops) - 1; i >= 0; i-- {
		if err := e.RestoreOperation(ops[i]); err != nil {
			var rf *types.RollbackFailure
			if errors.As(err, &rf) {
				failures = append(failures, *rf)
				continue
			}
			return err
		}
	}
	if len(failures) > 0 {
		return &types.RollbackIncompleteError{RestorePointID: tx.ID, Failures: failures}
	}
	return nil
}

// revert undoes every committed operation of an open transaction in
// reverse order after a mid-transaction failure.
func (e *Engine) revert(tx *Transaction) error {
	for i := len(tx.Operations) - 1; i >= 0; i-- {
		op := tx.Operations[i]
		if op.Status != StatusCommitted {
			continue
		}
		if err := e.RestoreOperation(op); err != nil {
			return fmt.Errorf("revert %s: %w", op.RelPath, err)
		}
		tx.Operations[i].Status = StatusRolledBack
	}
	return nil
}

// moveVerified moves src to dst preserving mode and mtime, then verifies
// the destination content hash against the operation's pre-image hash.
func (e *Engine) moveVerified(src, dst string, op *Operation) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", op.RelPath, err)
	}

	if err := os.Rename(src, dst); err != nil {
		// Cross-device moves fall back to copy then remove.
		if cerr := copyFile(src, dst, op.Mode); cerr != nil {
			return fmt.Errorf("move %s: %w", op.RelPath, cerr)
		}
		if rerr := os.Remove(src); rerr != nil {
			os.Remove(dst)
			return fmt.Errorf("remove source %s: %w", op.RelPath, rerr)
		}
	}

	// The bytes now live at dst. Any failure past this point returns them
	// to src, so a failed operation never strands the file away from its
	// original location.
	fail := func(err error) error {
		if berr := moveBack(dst, src); berr != nil {
			return &types.RollbackFailure{
				Path:         op.RelPath,
				ArchivePath:  op.ArchivePath,
				ExpectedHash: op.Hash,
				Reason:       fmt.Sprintf("%v; returning file also failed: %v", err, berr),
			}
		}
		return err
	}

	if err := os.Chmod(dst, op.Mode); err != nil {
		return fail(fmt.Errorf("restore mode %s: %w", op.RelPath, err))
	}
	if err := os.Chtimes(dst, time.Now(), op.ModTime); err != nil {
		return fail(fmt.Errorf("restore mtime %s: %w", op.RelPath, err))
	}

	hash, err := scanner.HashFile(dst)
	if err != nil {
		return fail(fmt.Errorf("verify %s: %w", op.RelPath, err))
	}
	if hash != op.Hash {
		return fail(&types.HashMismatchError{Path: op.RelPath, Expected: op.Hash, Actual: hash})
	}
	return nil
}

// moveBack undoes a completed physical move.
func moveBack(from, to string) error {
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	info, err := os.Lstat(from)
	if err != nil {
		return err
	}
	if err := copyFile(from, to, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Remove(from)
}

// writeTransaction persists the finalized transaction record atomically
// under the transactions directory.
func (e *Engine) writeTransaction(tx *Transaction) error {
	dir := filepath.Join(e.stateDir, TxDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transactions dir: %w", err)
	}

	data, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	path := filepath.Join(dir, tx.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write transaction: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize transaction: %w", err)
	}
	return nil
}

// LoadTransaction reads a finalized transaction record by ID.
func LoadTransaction(stateDir, id string) (*Transaction, error) {
	path := filepath.Join(stateDir, TxDirName, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transaction %s: %w", id, err)
	}
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("parse transaction %s: %w", id, err)
	}
	return &tx, nil
}

// ListTransactions returns all finalized transactions, oldest first.
func ListTransactions(stateDir string) ([]*Transaction, error) {
	dir := filepath.Join(stateDir, TxDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transactions dir: %w", err)
	}

	var txs []*Transaction
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		tx, err := LoadTransaction(stateDir, strings.TrimSuffix(name, ".json"))
		if err != nil {
			logging.Get("migrate").Warn("skipping unreadable transaction", "file", name, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
