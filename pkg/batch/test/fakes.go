package test

import (
	"context"
	"errors"
	"sync"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
)

// ListItemReader yields the items of a slice. FailAt (1-based) makes that read fail with Err.
type ListItemReader[T any] struct {
	Items  []T
	FailAt int
	Err    error

	pos    int
	Reads  int
	Opened bool
	Closed bool
}

// NewListItemReader creates a reader over items.
func NewListItemReader[T any](items ...T) *ListItemReader[T] {
	return &ListItemReader[T]{Items: items}
}

func (r *ListItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.Opened = true
	return nil
}

func (r *ListItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	r.Reads++
	if r.FailAt > 0 && r.Reads == r.FailAt {
		if r.Err == nil {
			return zero, errors.New("read failed")
		}
		return zero, r.Err
	}
	if r.pos >= len(r.Items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.Items[r.pos]
	r.pos++
	return item, nil
}

func (r *ListItemReader[T]) Close(ctx context.Context) error {
	r.Closed = true
	return nil
}

func (r *ListItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}

// RecordingItemWriter records every chunk it is given. FailOnCall (1-based) makes that call
// fail with Err. Chunks written inside a transaction are only kept once it commits.
type RecordingItemWriter[T any] struct {
	FailOnCall int
	Err        error

	mu        sync.Mutex
	Calls     [][]T
	Committed [][]T
	Opened    bool
	Closed    bool
}

func (w *RecordingItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.Opened = true
	return nil
}

func (w *RecordingItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	chunk := append([]T(nil), items...)
	w.Calls = append(w.Calls, chunk)
	if w.FailOnCall > 0 && len(w.Calls) == w.FailOnCall {
		if w.Err == nil {
			return errors.New("write failed")
		}
		return w.Err
	}
	if t == nil {
		w.Committed = append(w.Committed, chunk)
		return nil
	}
	t.RegisterSynchronization(&recordOnCommit[T]{writer: w, chunk: chunk})
	return nil
}

func (w *RecordingItemWriter[T]) Close(ctx context.Context) error {
	w.Closed = true
	return nil
}

// CallSizes returns the length of every chunk passed to Write.
func (w *RecordingItemWriter[T]) CallSizes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	sizes := make([]int, 0, len(w.Calls))
	for _, c := range w.Calls {
		sizes = append(sizes, len(c))
	}
	return sizes
}

type recordOnCommit[T any] struct {
	writer *RecordingItemWriter[T]
	chunk  []T
}

func (r *recordOnCommit[T]) BeforeCommit(ctx context.Context) error { return nil }

func (r *recordOnCommit[T]) AfterCompletion(ctx context.Context, committed bool) {
	if !committed {
		return
	}
	r.writer.mu.Lock()
	defer r.writer.mu.Unlock()
	r.writer.Committed = append(r.writer.Committed, r.chunk)
}

// EventRecorder implements every listener interface and records the callbacks in order.
type EventRecorder struct {
	mu     sync.Mutex
	Events []string
}

func (r *EventRecorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
}

func (r *EventRecorder) BeforeJob(ctx context.Context, je *model.JobExecution) { r.add("beforeJob") }
func (r *EventRecorder) AfterJob(ctx context.Context, je *model.JobExecution) {
	r.add("afterJob:" + je.Status.String())
}
func (r *EventRecorder) BeforeStep(ctx context.Context, se *model.StepExecution) {
	r.add("beforeStep:" + se.StepName)
}
func (r *EventRecorder) AfterStep(ctx context.Context, se *model.StepExecution) {
	r.add("afterStep:" + se.StepName + ":" + se.Status.String())
}
func (r *EventRecorder) BeforeChunk(ctx context.Context, se *model.StepExecution) { r.add("beforeChunk") }
func (r *EventRecorder) AfterChunk(ctx context.Context, se *model.StepExecution) { r.add("afterChunk") }
func (r *EventRecorder) OnChunkError(ctx context.Context, se *model.StepExecution, err error) {
	r.add("chunkError")
}

var (
	_ port.ItemReader[int]       = (*ListItemReader[int])(nil)
	_ port.ItemWriter[int]       = (*RecordingItemWriter[int])(nil)
	_ port.JobExecutionListener  = (*EventRecorder)(nil)
	_ port.StepExecutionListener = (*EventRecorder)(nil)
	_ port.ChunkListener         = (*EventRecorder)(nil)
)
