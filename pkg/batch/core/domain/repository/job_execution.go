package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

// ErrJobExecutionNotFound is the error returned when a JobExecution is not found.
var ErrJobExecutionNotFound = errors.New("job execution not found")

// JobExecution stores JobExecutions.
type JobExecution interface {
	// SaveJobExecution persists a new JobExecution.
	SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// UpdateJobExecution updates the state of an existing JobExecution.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// FindJobExecutionByID finds a JobExecution by its ID, with its StepExecutions.
	FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error)

	// FindJobExecutionsByJobName returns every execution of jobName, oldest first.
	FindJobExecutionsByJobName(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}
