// Package inmemory provides an in-memory implementation of the JobRepository interface.
// It is the repository of a single process run; nothing survives the process.
package inmemory

import (
	"sync"

	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository is an in-memory implementation of the JobRepository interface.
// Stored executions are snapshots; callers get copies back.
type InMemoryJobRepository struct {
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	mu             sync.RWMutex
}

// NewInMemoryJobRepository creates and initializes a new instance of InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
	}
}

// Close releases resources used by the repository. It holds none.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)
