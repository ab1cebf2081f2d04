package tx_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
)

type recordingSync struct {
	name      string
	events    *[]string
	commitErr error
}

func (s *recordingSync) BeforeCommit(ctx context.Context) error {
	*s.events = append(*s.events, s.name+":before")
	return s.commitErr
}

func (s *recordingSync) AfterCompletion(ctx context.Context, committed bool) {
	if committed {
		*s.events = append(*s.events, s.name+":committed")
		return
	}
	*s.events = append(*s.events, s.name+":rolledback")
}

func TestResourceless_CommitRunsHooksInOrder(t *testing.T) {
	var events []string
	tm := tx.NewResourcelessTransactionManager()
	txn, err := tm.Begin(context.Background())
	require.NoError(t, err)

	txn.RegisterSynchronization(&recordingSync{name: "a", events: &events})
	txn.RegisterSynchronization(&recordingSync{name: "b", events: &events})

	require.NoError(t, tm.Commit(txn))
	assert.Equal(t, []string{"a:before", "b:before", "a:committed", "b:committed"}, events)

	// Rollback after commit is a no-op.
	require.NoError(t, tm.Rollback(txn))
	assert.Len(t, events, 4)
}

func TestResourceless_BeforeCommitErrorRollsBack(t *testing.T) {
	var events []string
	boom := errors.New("flush failed")
	tm := tx.NewResourcelessTransactionManager()
	txn, _ := tm.Begin(context.Background())
	txn.RegisterSynchronization(&recordingSync{name: "a", events: &events, commitErr: boom})
	txn.RegisterSynchronization(&recordingSync{name: "b", events: &events})

	err := tm.Commit(txn)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:before", "a:rolledback", "b:rolledback"}, events)
}

func TestResourceless_Rollback(t *testing.T) {
	var events []string
	tm := tx.NewResourcelessTransactionManager()
	txn, _ := tm.Begin(context.Background())
	txn.RegisterSynchronization(&recordingSync{name: "a", events: &events})

	require.NoError(t, tm.Rollback(txn))
	assert.Equal(t, []string{"a:rolledback"}, events)

	_, err := txn.ExecuteSQL(context.Background(), "INSERT INTO book(title, year) VALUES (?, ?)", "x", 1)
	assert.ErrorIs(t, err, tx.ErrNoTransactionalResource)
}

func TestParseIsolationLevel(t *testing.T) {
	level, err := tx.ParseIsolationLevel("READ_COMMITTED")
	require.NoError(t, err)
	assert.Equal(t, sql.LevelReadCommitted, level)

	level, err = tx.ParseIsolationLevel("")
	require.NoError(t, err)
	assert.Equal(t, sql.LevelDefault, level)

	_, err = tx.ParseIsolationLevel("read committed")
	assert.Error(t, err)
}
