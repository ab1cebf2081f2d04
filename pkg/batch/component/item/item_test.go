package item_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bookbatch/pkg/batch/component/item"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/core/tx"
	batchtest "github.com/tigerroll/bookbatch/pkg/batch/test"
)

type failingLifecycleWriter struct {
	batchtest.RecordingItemWriter[int]
	openErr, closeErr error
}

func (w *failingLifecycleWriter) Open(ctx context.Context, ec model.ExecutionContext) error {
	return w.openErr
}

func (w *failingLifecycleWriter) Close(ctx context.Context) error {
	return w.closeErr
}

func TestPassThroughItemProcessor(t *testing.T) {
	p := item.NewPassThroughItemProcessor[string]()
	out, err := p.Process(context.Background(), "book")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "book", *out)
}

func TestCompositeItemWriter_SameChunkSameTransaction(t *testing.T) {
	ctx := context.Background()
	first, second := &batchtest.RecordingItemWriter[int]{}, &batchtest.RecordingItemWriter[int]{}
	w := item.NewCompositeItemWriter[int](first, second)
	tm := tx.NewResourcelessTransactionManager()

	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	txn, err := tm.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, txn, []int{1, 2, 3}))
	require.NoError(t, tm.Commit(txn))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, [][]int{{1, 2, 3}}, first.Committed)
	assert.Equal(t, [][]int{{1, 2, 3}}, second.Committed)
	assert.True(t, first.Opened && second.Opened && first.Closed && second.Closed)
	assert.Len(t, w.Delegates(), 2)
}

func TestCompositeItemWriter_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	first := &batchtest.RecordingItemWriter[int]{FailOnCall: 1, Err: boom}
	second := &batchtest.RecordingItemWriter[int]{}
	w := item.NewCompositeItemWriter[int](first, second)
	tm := tx.NewResourcelessTransactionManager()

	txn, err := tm.Begin(ctx)
	require.NoError(t, err)
	err = w.Write(ctx, txn, []int{1})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, tm.Rollback(txn))

	assert.Empty(t, second.Calls, "later delegates are not invoked")
	assert.Empty(t, first.Committed)
}

func TestCompositeItemWriter_AggregatesLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	a := &failingLifecycleWriter{openErr: errors.New("open a"), closeErr: errors.New("close a")}
	b := &failingLifecycleWriter{openErr: errors.New("open b")}
	w := item.NewCompositeItemWriter[int](a, b)

	err := w.Open(ctx, model.NewExecutionContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open a")
	assert.Contains(t, err.Error(), "open b")

	err = w.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close a")
}
