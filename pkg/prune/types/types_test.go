package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		input   string
		want    FileAction
		wantErr bool
	}{
		{"keep", ActionKeep, false},
		{"archive", ActionArchive, false},
		{"  Archive ", ActionArchive, false},
		{"delete", ActionArchive, false},
		{"consolidate", ActionConsolidate, false},
		{"shred", ActionKeep, true},
		{"", ActionKeep, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAction(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr error
	}{
		{"0", 0, nil},
		{"512", 512, nil},
		{"512B", 512, nil},
		{"100K", 100 * KiB, nil},
		{"100KB", 100 * KiB, nil},
		{"50MiB", 50 * MiB, nil},
		{"2g", 2 * GiB, nil},
		{"1T", TiB, nil},
		{"1.5M", MiB + MiB/2, nil},
		{" 10 M ", 10 * MiB, nil},
		{"", 0, ErrInvalidSize},
		{"abc", 0, ErrInvalidSize},
		{"10Q", 0, ErrInvalidSize},
		{"-5M", 0, ErrNegativeSize},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocImportanceOrdering(t *testing.T) {
	// Lower nonzero values carry more weight; unknown sorts before all.
	assert.Less(t, int(ImportanceCritical), int(ImportanceRequired))
	assert.Less(t, int(ImportanceRequired), int(ImportanceStandard))
	assert.Less(t, int(ImportanceStandard), int(ImportanceTemporary))
	assert.Equal(t, 0, int(ImportanceUnknown))
	assert.Equal(t, "critical", ImportanceCritical.String())
	assert.Equal(t, "unknown", ImportanceUnknown.String())
}

func TestProposedActionDecisionState(t *testing.T) {
	p := &ProposedAction{File: &FileRecord{RelPath: "a.py"}}
	assert.False(t, p.Decided())
	assert.False(t, p.Approved())

	no := false
	p.UserApproved = &no
	assert.True(t, p.Decided())
	assert.False(t, p.Approved())

	yes := true
	p.UserApproved = &yes
	assert.True(t, p.Approved())
}

func TestFileRecordAge(t *testing.T) {
	f := &FileRecord{ModTime: time.Now().Add(-48 * time.Hour)}
	age := f.Age()
	assert.Greater(t, age, 47*time.Hour)
	assert.Less(t, age, 49*time.Hour)
}

func TestConcurrentSessionErrorUnwrap(t *testing.T) {
	err := error(&ConcurrentSessionError{LockPath: "/x/session.lock", SessionID: "s1", PID: 42})
	assert.ErrorIs(t, err, ErrConcurrentSession)
	assert.Contains(t, err.Error(), "s1")
}

func TestRollbackIncompleteError(t *testing.T) {
	err := &RollbackIncompleteError{
		RestorePointID: "rp-1",
		Failures: []RollbackFailure{
			{Path: "a.py", Reason: "destination occupied"},
			{Path: "b.py", Reason: "archive copy missing"},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "rp-1")

	var single *RollbackFailure
	assert.False(t, errors.As(error(err), &single))
	assert.Contains(t, err.Failures[0].Error(), "a.py")
}
