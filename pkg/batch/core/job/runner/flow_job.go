// Package runner provides the sequential job implementation and the runner that launches it.
package runner

import (
	"context"
	"errors"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

const moduleName = "job_runner"

// FlowJobOption configures a FlowJob.
type FlowJobOption func(*FlowJob)

// WithJobListeners registers job listeners, notified in order.
func WithJobListeners(listeners ...port.JobExecutionListener) FlowJobOption {
	return func(j *FlowJob) {
		j.jobListeners = append(j.jobListeners, listeners...)
	}
}

// WithMetricRecorder sets the recorder.
func WithMetricRecorder(recorder metrics.MetricRecorder) FlowJobOption {
	return func(j *FlowJob) {
		if recorder != nil {
			j.metricRecorder = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer metrics.Tracer) FlowJobOption {
	return func(j *FlowJob) {
		if tracer != nil {
			j.tracer = tracer
		}
	}
}

// FlowJob is an implementation of port.Job that runs its steps one after another in declared order.
// The first step that does not complete ends the job; the remaining steps are skipped.
type FlowJob struct {
	name           string
	steps          []port.Step
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Verify that FlowJob implements the port.Job interface.
var _ port.Job = (*FlowJob)(nil)

// NewFlowJob creates a new instance of FlowJob.
func NewFlowJob(name string, steps []port.Step, jobRepository repository.JobRepository, opts ...FlowJobOption) *FlowJob {
	j := &FlowJob{
		name:           name,
		steps:          steps,
		jobRepository:  jobRepository,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JobName returns the job name.
func (j *FlowJob) JobName() string {
	return j.name
}

// Steps returns the steps in execution order.
func (j *FlowJob) Steps() []port.Step {
	return j.steps
}

// Run executes the steps sequentially and leaves the final status on jobExecution.
// AfterJob listeners always run and observe that final status.
// The returned error is the failure that ended the job, if any.
func (j *FlowJob) Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)
	logger.Debugf("Job '%s': Parameters: %s", j.name, jobParameters.String())

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	if jobExecution.Status == model.BatchStatusStarting {
		jobExecution.MarkAsStarted()
	}
	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}

	runErr := j.runSteps(ctx, jobExecution)
	if runErr == nil {
		jobExecution.MarkAsCompleted()
	}
	jobExecution.CurrentStepName = ""

	// Listeners and persistence still run when the job was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	for _, l := range j.jobListeners {
		l.AfterJob(finishCtx, jobExecution)
	}
	j.metricRecorder.RecordJobEnd(finishCtx, jobExecution)
	if err := j.jobRepository.UpdateJobExecution(finishCtx, jobExecution); err != nil {
		logger.Errorf("Job '%s': Failed to update JobExecution (ID: %s): %v", j.name, jobExecution.ID, err)
	}

	logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, Exit Status: %s",
		j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	for _, se := range jobExecution.StepExecutions {
		logger.Debugf("  StepExecution Details (Step: %s): %s", se.StepName, se.DebugString())
	}
	return runErr
}

func (j *FlowJob) runSteps(ctx context.Context, jobExecution *model.JobExecution) error {
	for i, step := range j.steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warnf("Context cancelled, interrupting execution of Job '%s' before step '%s': %v", j.name, step.StepName(), ctxErr)
			err := exception.NewBatchError(j.name, "Job interrupted", ctxErr, false, false)
			jobExecution.MarkAsStopped()
			jobExecution.AddFailureException(err)
			j.tracer.RecordError(ctx, moduleName, err)
			return err
		}

		stepName := step.StepName()
		jobExecution.CurrentStepName = stepName
		stepExecution := model.NewStepExecution(model.NewID(), jobExecution, stepName)
		jobExecution.AddStepExecution(stepExecution)
		if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
			wrapped := exception.NewBatchError(j.name, "Error saving new StepExecution", err, false, false)
			jobExecution.MarkAsFailed(wrapped)
			j.tracer.RecordError(ctx, moduleName, wrapped)
			return wrapped
		}
		logger.Debugf("Job '%s': Created StepExecution (ID: %s) for step '%s'.", j.name, stepExecution.ID, stepName)

		stepErr := step.Execute(ctx, jobExecution, stepExecution)
		if stepErr == nil && stepExecution.Status == model.BatchStatusCompleted {
			logger.Infof("Job '%s': Step '%s' completed successfully. ExitStatus: %s", j.name, stepName, stepExecution.ExitStatus)
			continue
		}

		if stepErr == nil {
			stepErr = exception.NewBatchErrorf(j.name, "Step '%s' ended with status %s", stepName, stepExecution.Status)
		}
		logger.Errorf("Job '%s': Step '%s' did not complete: %v", j.name, stepName, stepErr)
		if remaining := len(j.steps) - i - 1; remaining > 0 {
			logger.Warnf("Job '%s': Skipping %d remaining step(s).", j.name, remaining)
		}
		j.tracer.RecordError(ctx, moduleName, stepErr)
		if stepExecution.Status == model.BatchStatusStopped || errors.Is(stepErr, context.Canceled) {
			jobExecution.MarkAsStopped()
			jobExecution.AddFailureException(stepErr)
		} else {
			jobExecution.MarkAsFailed(stepErr)
		}
		return stepErr
	}
	return nil
}
