package inmemory

import (
	"context"
	"fmt"

	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
)

// SaveStepExecution persists a new StepExecution.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	r.stepExecutions[stepExecution.ID] = snapshotStep(stepExecution)
	return nil
}

// UpdateStepExecution updates an existing StepExecution.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; !exists {
		return fmt.Errorf("StepExecution with ID %s not found for update: %w", stepExecution.ID, repository.ErrStepExecutionNotFound)
	}
	r.stepExecutions[stepExecution.ID] = snapshotStep(stepExecution)
	return nil
}

// FindStepExecutionByID finds a StepExecution by its ID.
func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	se, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	clone := *se
	return &clone, nil
}

func snapshotStep(se *model.StepExecution) *model.StepExecution {
	clone := *se
	clone.Failures = append(model.FailureList(nil), se.Failures...)
	clone.ExecutionContext = se.ExecutionContext.Copy()
	return &clone
}
