// Package listener holds framework listeners that are not tied to a single concern.
package listener

import (
	"context"
	"sync"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// JobCompletionSignaler is a JobExecutionListener that closes a channel when a job finishes,
// so the process lifecycle can shut down.
type JobCompletionSignaler struct {
	done chan struct{}
	once sync.Once
}

// NewJobCompletionSignaler creates a new instance of JobCompletionSignaler.
func NewJobCompletionSignaler() *JobCompletionSignaler {
	return &JobCompletionSignaler{done: make(chan struct{})}
}

// Done is closed once AfterJob has run.
func (l *JobCompletionSignaler) Done() <-chan struct{} {
	return l.done
}

// BeforeJob does nothing.
func (l *JobCompletionSignaler) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {}

// AfterJob closes the done channel. Later calls are no-ops.
func (l *JobCompletionSignaler) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.once.Do(func() {
		logger.Debugf("JobCompletionSignaler: Job '%s' (ID: %s) finished with %s.", jobExecution.JobName, jobExecution.ID, jobExecution.Status)
		close(l.done)
	})
}

// Verify that JobCompletionSignaler implements the port.JobExecutionListener interface.
var _ port.JobExecutionListener = (*JobCompletionSignaler)(nil)
