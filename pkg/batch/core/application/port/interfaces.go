// Package port defines the core interfaces (ports) for the batch application.
// These interfaces abstract the application's capabilities and dependencies,
// allowing for flexible implementation and testing.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the source is exhausted.
// It is an end-of-stream signal, not a failure.
var ErrNoMoreItems = errors.New("no more items to read")

// Job is the interface for an executable batch job.
type Job interface {
	// Run executes the entire job flow.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   jobParameters: The job parameters for the execution.
	//
	// Returns:
	//   error: An error if the job execution fails.
	Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error
	// JobName returns the logical name of the job.
	JobName() string
}

// Step is the interface for a single step executed within a job.
// It is implemented as chunk-oriented or tasklet-oriented.
type Step interface {
	// Execute executes the business logic of the step and leaves the final status on stepExecution.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   stepExecution: The current StepExecution instance.
	//
	// Returns:
	//   error: An error if the step execution encounters a fatal issue.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
	// StepName returns the logical name of the step.
	StepName() string
	// ID returns the unique ID of the step definition.
	ID() string
}

// ItemReader is the interface for a data reading step.
// O is the type of item produced.
type ItemReader[O any] interface {
	// Open opens resources and restores state from ExecutionContext.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read returns the next item, or ErrNoMoreItems when the source is exhausted.
	Read(ctx context.Context) (O, error)
	// Close releases resources.
	Close(ctx context.Context) error
	// GetExecutionContext returns the reader's current state.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor transforms an item. Returning a nil output filters the item out of the chunk.
type ItemProcessor[I, O any] interface {
	// Process transforms item.
	//
	// Returns:
	//   *O: The transformed item, or nil when the item is filtered.
	//   error: A TransformError when the item is rejected.
	Process(ctx context.Context, item I) (*O, error)
}

// ItemWriter is the interface for a data writing step.
// I is the type of item to be written.
type ItemWriter[I any] interface {
	// Open opens resources and restores state from ExecutionContext.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Write persists one chunk of items inside the chunk transaction.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   tx: The transaction shared by every writer of the chunk.
	//   items: The ordered chunk.
	//
	// Returns:
	//   error: A WriteError when the sink rejects the chunk.
	Write(ctx context.Context, tx tx.Tx, items []I) error
	// Close closes resources.
	Close(ctx context.Context) error
}

// Tasklet is the interface for a step that performs a single operation.
type Tasklet interface {
	// Execute runs the tasklet once.
	// Returns RepeatStatusFinished when done or RepeatStatusContinuable to be invoked again.
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.RepeatStatus, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// StepExecutionListener is an interface for handling step execution events.
type StepExecutionListener interface {
	// BeforeStep is called just before a step execution starts.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called after a step execution completes (regardless of success or failure).
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is an interface for handling chunk processing events.
type ChunkListener interface {
	// BeforeChunk is called just before chunk processing (read, process, write) begins.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after a chunk has been committed.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	// OnChunkError is called after a chunk has been rolled back.
	OnChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}

// JobExecutionListener is an interface for handling job execution events.
type JobExecutionListener interface {
	// BeforeJob is called just before a job execution starts.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called after a job execution completes (regardless of success or failure).
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

type contextKey string

// StepExecutionKey is the context key under which the running StepExecution is stored.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores a StepExecution in the Context.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext retrieves a StepExecution from the Context. Returns nil if not found.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
