package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
)

// SaveJobExecution persists a new JobExecution.
// It returns an error if a JobExecution with the same ID already exists.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	r.jobExecutions[jobExecution.ID] = snapshotJob(jobExecution)
	return nil
}

// UpdateJobExecution updates an existing JobExecution.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	r.jobExecutions[jobExecution.ID] = snapshotJob(jobExecution)
	return nil
}

// FindJobExecutionByID finds a JobExecution by its ID and attaches its StepExecutions
// ordered by StartTime.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(stored), nil
}

// FindJobExecutionsByJobName returns every execution of jobName, oldest first.
func (r *InMemoryJobRepository) FindJobExecutionsByJobName(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.JobExecution, 0)
	for _, je := range r.jobExecutions {
		if je.JobName == jobName {
			result = append(result, r.withSteps(je))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreateTime.Before(result[j].CreateTime)
	})
	return result, nil
}

func (r *InMemoryJobRepository) withSteps(stored *model.JobExecution) *model.JobExecution {
	clone := snapshotJob(stored)
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == clone.ID {
			step := *se
			step.JobExecution = clone
			clone.StepExecutions = append(clone.StepExecutions, &step)
		}
	}
	sort.Slice(clone.StepExecutions, func(i, j int) bool {
		return clone.StepExecutions[i].StartTime.Before(clone.StepExecutions[j].StartTime)
	})
	return clone
}

func snapshotJob(je *model.JobExecution) *model.JobExecution {
	clone := *je
	clone.Failures = append(model.FailureList(nil), je.Failures...)
	clone.ExecutionContext = je.ExecutionContext.Copy()
	clone.StepExecutions = make([]*model.StepExecution, 0)
	return &clone
}
