// Package item implements the chunk-oriented step: items are read and processed one at a time,
// gathered into chunks and written with one transaction per chunk.
package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	itemcomponent "github.com/tigerroll/bookbatch/pkg/batch/component/item"
	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// DefaultChunkSize is used when a step is built with a non-positive chunk size.
const DefaultChunkSize = 10

// Option configures a ChunkStep.
type Option func(*stepOptions)

type stepOptions struct {
	stepExecutionListeners []port.StepExecutionListener
	chunkListeners         []port.ChunkListener
	metricRecorder         metrics.MetricRecorder
	tracer                 metrics.Tracer
	isolationLevel         sql.IsolationLevel
}

// WithStepExecutionListeners registers step listeners, notified in order.
func WithStepExecutionListeners(listeners ...port.StepExecutionListener) Option {
	return func(o *stepOptions) {
		o.stepExecutionListeners = append(o.stepExecutionListeners, listeners...)
	}
}

// WithChunkListeners registers chunk listeners, notified in order.
func WithChunkListeners(listeners ...port.ChunkListener) Option {
	return func(o *stepOptions) {
		o.chunkListeners = append(o.chunkListeners, listeners...)
	}
}

// WithMetricRecorder sets the recorder. The default records nothing.
func WithMetricRecorder(recorder metrics.MetricRecorder) Option {
	return func(o *stepOptions) {
		if recorder != nil {
			o.metricRecorder = recorder
		}
	}
}

// WithTracer sets the tracer. The default traces nothing.
func WithTracer(tracer metrics.Tracer) Option {
	return func(o *stepOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithIsolationLevel sets the isolation level of chunk transactions. Unknown levels keep the driver default.
func WithIsolationLevel(level string) Option {
	return func(o *stepOptions) {
		l, err := tx.ParseIsolationLevel(level)
		if err != nil {
			logger.Warnf("ChunkStep: %v, using the driver default.", err)
		}
		o.isolationLevel = l
	}
}

// ChunkStep is an implementation of port.Step for chunk-oriented processing.
// I is the type produced by the reader and O the type handed to the writer.
type ChunkStep[I, O any] struct {
	id                     string
	reader                 port.ItemReader[I]
	processor              port.ItemProcessor[I, O]
	writer                 port.ItemWriter[O]
	chunkSize              int
	jobRepository          repository.JobRepository
	txManager              tx.TransactionManager
	stepExecutionListeners []port.StepExecutionListener
	chunkListeners         []port.ChunkListener
	metricRecorder         metrics.MetricRecorder
	tracer                 metrics.Tracer
	isolationLevel         sql.IsolationLevel
}

// NewChunkStep creates a ChunkStep.
//
// Parameters:
//
//	id: The step name.
//	reader: The source of items.
//	processor: Transforms items. Nil means identity, which requires I and O to be the same type.
//	writer: Receives every chunk inside the chunk transaction.
//	chunkSize: The number of items per chunk. Non-positive values fall back to DefaultChunkSize.
//	jobRepository: Persists the StepExecution.
//	txManager: Begins one transaction per chunk.
//	opts: Listeners, metrics and tracing.
func NewChunkStep[I, O any](
	id string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	chunkSize int,
	jobRepository repository.JobRepository,
	txManager tx.TransactionManager,
	opts ...Option,
) (*ChunkStep[I, O], error) {
	if reader == nil || writer == nil {
		return nil, exception.NewBatchErrorf(id, "chunk step requires a reader and a writer")
	}
	if jobRepository == nil || txManager == nil {
		return nil, exception.NewBatchErrorf(id, "chunk step requires a job repository and a transaction manager")
	}
	if processor == nil {
		if reflect.TypeFor[I]() != reflect.TypeFor[O]() {
			return nil, exception.NewBatchErrorf(id, "chunk step without processor needs matching item types, got %s and %s", reflect.TypeFor[I](), reflect.TypeFor[O]())
		}
		processor = any(itemcomponent.NewPassThroughItemProcessor[I]()).(port.ItemProcessor[I, O])
	}
	if chunkSize <= 0 {
		logger.Warnf("ChunkStep '%s': Invalid chunk size %d, using %d.", id, chunkSize, DefaultChunkSize)
		chunkSize = DefaultChunkSize
	}

	o := stepOptions{
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &ChunkStep[I, O]{
		id:                     id,
		reader:                 reader,
		processor:              processor,
		writer:                 writer,
		chunkSize:              chunkSize,
		jobRepository:          jobRepository,
		txManager:              txManager,
		stepExecutionListeners: o.stepExecutionListeners,
		chunkListeners:         o.chunkListeners,
		metricRecorder:         o.metricRecorder,
		tracer:                 o.tracer,
		isolationLevel:         o.isolationLevel,
	}, nil
}

// ID returns the step ID.
func (s *ChunkStep[I, O]) ID() string {
	return s.id
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.id
}

// ChunkSize returns the configured chunk size.
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// GetTransactionOptions returns the options every chunk transaction is started with.
func (s *ChunkStep[I, O]) GetTransactionOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: s.isolationLevel}
}

// Execute runs the chunk loop until the reader is exhausted, a chunk fails or ctx is cancelled.
// The final status is left on stepExecution. The returned error is the cause of a failure.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)

	logger.Infof("ChunkStep '%s' executing (chunk size %d).", s.id, s.chunkSize)

	stepExecution.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(s.id, "Failed to update StepExecution status to STARTED", err, false, false)
	}
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	stepErr := s.run(ctx, stepExecution)

	switch {
	case stepErr == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(stepErr, context.Canceled) || errors.Is(stepErr, context.DeadlineExceeded):
		stepExecution.MarkAsStopped()
		stepExecution.AddFailureException(stepErr)
	default:
		s.tracer.RecordError(ctx, s.id, stepErr)
		stepExecution.MarkAsFailed(stepErr)
	}

	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	// Persistence must not depend on the (possibly cancelled) step context.
	if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); err != nil {
		logger.Errorf("ChunkStep '%s': Failed to update final StepExecution state: %v", s.id, err)
		if stepErr == nil {
			stepErr = err
		}
	}

	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s, %s", s.id, stepExecution.ExitStatus, stepExecution.DebugString())
	return stepErr
}

// run opens the reader and writer, processes chunks and closes both.
func (s *ChunkStep[I, O]) run(ctx context.Context, stepExecution *model.StepExecution) (err error) {
	if stepExecution.ExecutionContext == nil {
		stepExecution.ExecutionContext = model.NewExecutionContext()
	}
	if err := s.reader.Open(ctx, stepExecution.ExecutionContext); err != nil {
		return exception.NewBatchError(s.id, "Failed to open ItemReader", err, false, false)
	}
	if err := s.writer.Open(ctx, stepExecution.ExecutionContext); err != nil {
		s.closeReader(ctx)
		return exception.NewBatchError(s.id, "Failed to open ItemWriter", err, false, false)
	}
	defer func() {
		s.closeReader(ctx)
		if closeErr := s.writer.Close(ctx); closeErr != nil {
			logger.Warnf("ChunkStep '%s': Failed to close ItemWriter: %v", s.id, closeErr)
		}
		s.mergeReaderContext(ctx, stepExecution)
	}()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warnf("ChunkStep '%s': Interrupted before chunk %d: %v", s.id, stepExecution.CommitCount+1, ctxErr)
			return exception.NewBatchError(s.id, "Step interrupted", ctxErr, false, false)
		}
		eof, chunkErr := s.processChunk(ctx, stepExecution)
		if chunkErr != nil {
			return chunkErr
		}
		if eof {
			logger.Debugf("ChunkStep '%s': Reached end of input. Exiting chunk loop.", s.id)
			return nil
		}
	}
}

// processChunk reads, processes and writes one chunk in one transaction.
// It reports whether the reader is exhausted.
func (s *ChunkStep[I, O]) processChunk(ctx context.Context, stepExecution *model.StepExecution) (bool, error) {
	txn, err := s.txManager.Begin(ctx, s.GetTransactionOptions())
	if err != nil {
		return false, exception.NewBatchError(s.id, "Failed to begin transaction for chunk", err, false, false)
	}

	for _, l := range s.chunkListeners {
		l.BeforeChunk(ctx, stepExecution)
	}

	chunk := make([]O, 0, s.chunkSize)
	eof := false
	for len(chunk) < s.chunkSize {
		item, readErr := s.reader.Read(ctx)
		if errors.Is(readErr, port.ErrNoMoreItems) {
			eof = true
			break
		}
		if readErr != nil {
			return false, s.failChunk(ctx, stepExecution, txn, exception.NewBatchError(s.id, "Item read failed", readErr, false, false))
		}
		stepExecution.ReadCount++
		s.metricRecorder.RecordItemRead(ctx, stepExecution)

		out, processErr := s.processor.Process(ctx, item)
		if processErr != nil {
			return false, s.failChunk(ctx, stepExecution, txn, exception.NewBatchError(s.id, "Item process failed", processErr, false, false))
		}
		if out == nil {
			stepExecution.FilterCount++
			s.metricRecorder.RecordItemFilter(ctx, stepExecution)
			continue
		}
		chunk = append(chunk, *out)
	}

	if len(chunk) == 0 {
		// Trailing empty transaction: discarded, not counted.
		if rbErr := s.txManager.Rollback(txn); rbErr != nil {
			logger.Warnf("ChunkStep '%s': Failed to discard empty chunk transaction: %v", s.id, rbErr)
		}
		for _, l := range s.chunkListeners {
			l.AfterChunk(ctx, stepExecution)
		}
		return eof, nil
	}

	if writeErr := s.writer.Write(ctx, txn, chunk); writeErr != nil {
		return false, s.failChunk(ctx, stepExecution, txn, exception.NewBatchError(s.id, fmt.Sprintf("Item write failed for chunk of %d items", len(chunk)), writeErr, false, false))
	}
	s.metricRecorder.RecordItemWrite(ctx, stepExecution, len(chunk))

	if commitErr := s.txManager.Commit(txn); commitErr != nil {
		// The manager has already rolled the transaction back.
		return false, s.chunkRolledBack(ctx, stepExecution, exception.NewBatchError(s.id, "Failed to commit transaction for chunk", commitErr, false, false))
	}
	stepExecution.WriteCount += len(chunk)
	stepExecution.CommitCount++
	s.metricRecorder.RecordChunkCommit(ctx, stepExecution, len(chunk))
	logger.Debugf("ChunkStep '%s': Committed chunk %d (%d items).", s.id, stepExecution.CommitCount, len(chunk))

	for _, l := range s.chunkListeners {
		l.AfterChunk(ctx, stepExecution)
	}

	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		logger.Warnf("ChunkStep '%s': Failed to save progress after commit: %v", s.id, err)
	}
	return eof, nil
}

// failChunk rolls txn back and reports cause.
func (s *ChunkStep[I, O]) failChunk(ctx context.Context, stepExecution *model.StepExecution, txn tx.Tx, cause error) error {
	if rbErr := s.txManager.Rollback(txn); rbErr != nil {
		logger.Errorf("ChunkStep '%s': Failed to roll back chunk transaction: %v", s.id, rbErr)
	}
	return s.chunkRolledBack(ctx, stepExecution, cause)
}

func (s *ChunkStep[I, O]) chunkRolledBack(ctx context.Context, stepExecution *model.StepExecution, cause error) error {
	stepExecution.RollbackCount++
	s.metricRecorder.RecordChunkRollback(ctx, stepExecution)
	logger.Errorf("ChunkStep '%s': Chunk %d rolled back: %v", s.id, stepExecution.CommitCount+1, cause)
	for _, l := range s.chunkListeners {
		l.OnChunkError(ctx, stepExecution, cause)
	}
	return cause
}

func (s *ChunkStep[I, O]) closeReader(ctx context.Context) {
	if err := s.reader.Close(ctx); err != nil {
		logger.Warnf("ChunkStep '%s': Failed to close ItemReader: %v", s.id, err)
	}
}

// mergeReaderContext copies the reader state into the StepExecution.
func (s *ChunkStep[I, O]) mergeReaderContext(ctx context.Context, stepExecution *model.StepExecution) {
	ec, err := s.reader.GetExecutionContext(ctx)
	if err != nil {
		logger.Warnf("ChunkStep '%s': Failed to get ExecutionContext from ItemReader: %v", s.id, err)
		return
	}
	for k, v := range ec {
		stepExecution.ExecutionContext.Put(k, v)
	}
}

var _ port.Step = (*ChunkStep[any, any])(nil)
