package migrate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// OpLogName is the oplog filename inside the state directory.
const OpLogName = "oplog.jsonl"

// OpLog is the durable append-only operation log. Each record is one JSON
// line. Records are appended and fsynced before the next filesystem move
// begins, so replaying the log after a crash reconstructs exactly which
// moves were in flight and which had completed.
type OpLog struct {
	path string
	file *os.File
	seq  int64
}

// OpenOpLog opens (or creates) the log at dir/oplog.jsonl and positions the
// sequence counter after the last existing record.
func OpenOpLog(dir string) (*OpLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, OpLogName)

	l := &OpLog{path: path}
	existing, err := l.Replay()
	if err != nil {
		return nil, err
	}
	for _, op := range existing {
		if op.Seq > l.seq {
			l.seq = op.Seq
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open oplog: %w", err)
	}
	l.file = f
	return l, nil
}

// Append writes one record, assigns it the next sequence number, and
// flushes it to stable storage before returning.
func (l *OpLog) Append(op *Operation) error {
	l.seq++
	op.Seq = l.seq
	op.Time = time.Now().UTC()

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("append oplog: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync oplog: %w", err)
	}
	return nil
}

// Seq returns the sequence number of the last appended record.
func (l *OpLog) Seq() int64 {
	return l.seq
}

// Replay reads every record from the log in order. A truncated final line,
// the signature of a crash mid-append, is skipped rather than treated as
// corruption.
func (l *OpLog) Replay() ([]Operation, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open oplog: %w", err)
	}
	defer f.Close()

	var ops []Operation
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var op Operation
		if err := json.Unmarshal(line, &op); err != nil {
			// Partial trailing write from an interrupted append.
			continue
		}
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read oplog: %w", err)
	}
	return ops, nil
}

// Close releases the underlying file.
func (l *OpLog) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
