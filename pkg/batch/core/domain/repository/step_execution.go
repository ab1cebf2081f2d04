package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

// ErrStepExecutionNotFound is the error returned when a StepExecution is not found.
var ErrStepExecutionNotFound = errors.New("step execution not found")

// StepExecution stores StepExecutions.
type StepExecution interface {
	// SaveStepExecution persists a new StepExecution.
	SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// UpdateStepExecution updates the state of an existing StepExecution.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// FindStepExecutionByID finds a StepExecution by its ID.
	FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error)
}
