package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// SimpleJobRunner creates a JobExecution, runs the job synchronously and persists the outcome.
type SimpleJobRunner struct {
	jobRepository repository.JobRepository
}

// NewSimpleJobRunner creates an instance of SimpleJobRunner.
func NewSimpleJobRunner(repo repository.JobRepository) *SimpleJobRunner {
	return &SimpleJobRunner{jobRepository: repo}
}

// Run launches job with params.
//
// Returns:
//
//	*model.JobExecution: The finished execution. It is returned whenever it could be created, also on failure.
//	error: The failure that ended the job, or a repository error that prevented it from starting.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error) {
	jobExecution := model.NewJobExecution(job.JobName(), params)
	if err := r.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError(moduleName, "Failed to save JobExecution", err, false, false)
	}

	jobExecution.MarkAsStarted()
	if err := r.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobRunner: Failed to update JobExecution (ID: %s) status to STARTED: %v", jobExecution.ID, err)
	}

	err := job.Run(ctx, jobExecution, params)

	if err != nil {
		if jobExecution.Status.IsFinished() {
			logger.Debugf("JobRunner: Job '%s' ended with status %s: %v", job.JobName(), jobExecution.Status, err)
		} else {
			jobExecution.MarkAsFailed(err)
		}
	} else if !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsCompleted()
	}
	if jobExecution.EndTime == nil {
		now := time.Now()
		jobExecution.EndTime = &now
	}

	if updateErr := r.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); updateErr != nil {
		// Metadata problems are not added to the job's failures.
		logger.Errorf("JobRunner: Failed to update final JobExecution (ID: %s) state: %v", jobExecution.ID, updateErr)
	}
	return jobExecution, err
}
