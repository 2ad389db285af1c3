// Package migrate executes approved file actions as hash-verified,
// individually reversible operations grouped into all-or-nothing
// transactions. Every mutation is reified as an Operation value recorded
// in a durable append-only log before and after the move, so the log's
// last entry is always consistent with filesystem state and a crash at
// any point leaves a replayable record.
package migrate

import (
	"os"
	"time"
)

// OperationType is the direction of a tracked move.
type OperationType string

const (
	// OpArchive moves a file from the project into the archive.
	OpArchive OperationType = "archive"
	// OpRestore moves a file from the archive back into the project.
	OpRestore OperationType = "restore"
)

// OperationStatus tracks the lifecycle of an operation.
type OperationStatus string

const (
	// StatusPending means the move has been recorded but not verified.
	StatusPending OperationStatus = "pending"
	// StatusCommitted means the move completed and hashes matched.
	StatusCommitted OperationStatus = "committed"
	// StatusRolledBack means a committed move was later reversed.
	StatusRolledBack OperationStatus = "rolled_back"
	// StatusFailed means the move or its verification failed.
	StatusFailed OperationStatus = "failed"
)

// TransactionStatus tracks the lifecycle of a transaction.
type TransactionStatus string

const (
	// TxOpen means the transaction is executing.
	TxOpen TransactionStatus = "open"
	// TxCommitted means every operation committed and verified.
	TxCommitted TransactionStatus = "committed"
	// TxRolledBack means the transaction was fully reversed.
	TxRolledBack TransactionStatus = "rolled_back"
	// TxPartial means a revert could not complete; manual intervention
	// is required and the failure detail has been surfaced.
	TxPartial TransactionStatus = "partial"
)

// Operation is one reversible filesystem mutation. After commit the record
// is immutable except for the status transition to rolled_back.
type Operation struct {
	// SchemaVersion allows forward-compatible resume across upgrades.
	SchemaVersion int `json:"schema_version"`

	// Seq is the operation's position in the append-only log. It is
	// assigned by the log and totally orders all operations.
	Seq int64 `json:"seq"`

	// TxID is the owning transaction.
	TxID string `json:"tx_id"`

	// Type is the move direction.
	Type OperationType `json:"type"`

	// RelPath is the file's project-relative path.
	RelPath string `json:"rel_path"`

	// ArchivePath is the file's project-relative location inside the
	// archive directory.
	ArchivePath string `json:"archive_path"`

	// Hash is the hex BLAKE3 pre-image content hash. The post-image at
	// the destination must match it exactly.
	Hash string `json:"hash"`

	// Size is the pre-image file size in bytes.
	Size int64 `json:"size"`

	// Mode is the pre-image permission bits, restored on the far side.
	Mode os.FileMode `json:"mode"`

	// ModTime is the pre-image modification time, restored on the far side.
	ModTime time.Time `json:"mod_time"`

	// Status is the operation lifecycle state.
	Status OperationStatus `json:"status"`

	// Time is when this log record was written.
	Time time.Time `json:"time"`

	// Error holds the failure detail for failed operations.
	Error string `json:"error,omitempty"`
}

// Transaction is an ordered sequence of operations executed as a unit.
type Transaction struct {
	// SchemaVersion allows forward-compatible resume across upgrades.
	SchemaVersion int `json:"schema_version"`

	// ID uniquely identifies the transaction and names its archive folder.
	ID string `json:"id"`

	// Description is a human-readable summary of the batch.
	Description string `json:"description"`

	// StartedAt and EndedAt bound the transaction's execution.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	// Status is the overall outcome. A transaction is committed only if
	// every operation's post-image hash matched its recorded hash.
	Status TransactionStatus `json:"status"`

	// Operations are the contained moves in execution order.
	Operations []Operation `json:"operations"`
}

// CommittedOps returns the operations that committed, in execution order.
func (t *Transaction) CommittedOps() []Operation {
	var out []Operation
	for _, op := range t.Operations {
		if op.Status == StatusCommitted {
			out = append(out, op)
		}
	}
	return out
}
