// Package tasklet implements the step that runs a single port.Tasklet until it reports FINISHED.
package tasklet

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// DefaultMaxIterations bounds the number of CONTINUABLE invocations of a tasklet.
const DefaultMaxIterations = 1000

// ErrMaxIterationsExceeded is returned when a tasklet keeps returning CONTINUABLE.
var ErrMaxIterationsExceeded = errors.New("tasklet exceeded the maximum number of iterations")

// Option configures a TaskletStep.
type Option func(*TaskletStep)

// WithStepExecutionListeners registers step listeners, notified in order.
func WithStepExecutionListeners(listeners ...port.StepExecutionListener) Option {
	return func(s *TaskletStep) {
		s.stepExecutionListeners = append(s.stepExecutionListeners, listeners...)
	}
}

// WithMaxIterations overrides DefaultMaxIterations. Non-positive values are ignored.
func WithMaxIterations(n int) Option {
	return func(s *TaskletStep) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithMetricRecorder sets the recorder.
func WithMetricRecorder(recorder metrics.MetricRecorder) Option {
	return func(s *TaskletStep) {
		if recorder != nil {
			s.metricRecorder = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer metrics.Tracer) Option {
	return func(s *TaskletStep) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// TaskletStep is an implementation of port.Step for Tasklet-oriented processing.
type TaskletStep struct {
	id                     string
	tasklet                port.Tasklet
	jobRepository          repository.JobRepository
	stepExecutionListeners []port.StepExecutionListener
	maxIterations          int
	metricRecorder         metrics.MetricRecorder
	tracer                 metrics.Tracer
}

// NewTaskletStep creates a new TaskletStep instance.
func NewTaskletStep(id string, tasklet port.Tasklet, jobRepository repository.JobRepository, opts ...Option) *TaskletStep {
	s := &TaskletStep{
		id:             id,
		tasklet:        tasklet,
		jobRepository:  jobRepository,
		maxIterations:  DefaultMaxIterations,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the step ID.
func (s *TaskletStep) ID() string {
	return s.id
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.id
}

// Execute invokes the tasklet while it returns CONTINUABLE, then closes it.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (err error) {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)

	logger.Infof("TaskletStep '%s' executing.", s.id)

	stepExecution.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(s.id, "Failed to update StepExecution status to STARTED", err, false, false)
	}
	if stepExecution.ExecutionContext == nil {
		stepExecution.ExecutionContext = model.NewExecutionContext()
	}
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	err = s.repeat(ctx, stepExecution)

	if closeErr := s.tasklet.Close(ctx); closeErr != nil {
		logger.Errorf("TaskletStep '%s': Failed to close Tasklet: %v", s.id, closeErr)
		if err == nil {
			err = exception.NewBatchError(s.id, "Failed to close Tasklet", closeErr, false, false)
		}
	}

	switch {
	case err == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		stepExecution.MarkAsStopped()
		stepExecution.AddFailureException(err)
	default:
		s.tracer.RecordError(ctx, s.id, err)
		stepExecution.MarkAsFailed(err)
	}

	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	if updateErr := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); updateErr != nil {
		logger.Errorf("TaskletStep '%s': Failed to update final StepExecution state: %v", s.id, updateErr)
		if err == nil {
			err = updateErr
		}
	}

	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.id, stepExecution.ExitStatus)
	return err
}

func (s *TaskletStep) repeat(ctx context.Context, stepExecution *model.StepExecution) error {
	for i := 1; ; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return exception.NewBatchError(s.id, "Step interrupted", ctxErr, false, false)
		}
		if i > s.maxIterations {
			return exception.NewBatchError(s.id, fmt.Sprintf("Tasklet still CONTINUABLE after %d iterations", s.maxIterations), ErrMaxIterationsExceeded, false, false)
		}

		status, err := s.tasklet.Execute(ctx, stepExecution)
		if err != nil {
			return exception.NewBatchError(s.id, "Tasklet execution failed", err, false, false)
		}
		if status != model.RepeatStatusContinuable {
			logger.Debugf("TaskletStep '%s': Tasklet finished after %d iteration(s).", s.id, i)
			return nil
		}
	}
}

// Verify that TaskletStep implements the port.Step interface.
var _ port.Step = (*TaskletStep)(nil)
