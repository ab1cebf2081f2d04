// Package metrics defines the observability ports the job runner and steps report to.
// Implementations live in pkg/batch/infrastructure/metrics.
package metrics

import (
	"context"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

// MetricRecorder receives job, step and chunk level measurements.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution. EndTime is set.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the end of a StepExecution. EndTime is set.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)
	// RecordItemRead records one item read.
	RecordItemRead(ctx context.Context, execution *model.StepExecution)
	// RecordItemFilter records one item dropped by the processor.
	RecordItemFilter(ctx context.Context, execution *model.StepExecution)
	// RecordItemWrite records count items handed to the writer.
	RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int)
	// RecordChunkCommit records a committed chunk of count items.
	RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int)
	// RecordChunkRollback records a rolled back chunk.
	RecordChunkRollback(ctx context.Context, execution *model.StepExecution)
}

// CompositeMetricRecorder fans every measurement out to its delegates in order.
type CompositeMetricRecorder struct {
	recorders []MetricRecorder
}

// NewCompositeMetricRecorder creates a recorder that forwards to all recorders.
func NewCompositeMetricRecorder(recorders ...MetricRecorder) *CompositeMetricRecorder {
	return &CompositeMetricRecorder{recorders: recorders}
}

func (c *CompositeMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c.recorders {
		r.RecordJobStart(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c.recorders {
		r.RecordJobEnd(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordStepStart(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordStepEnd(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordItemRead(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordItemFilter(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	for _, r := range c.recorders {
		r.RecordItemWrite(ctx, execution, count)
	}
}

func (c *CompositeMetricRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int) {
	for _, r := range c.recorders {
		r.RecordChunkCommit(ctx, execution, count)
	}
}

func (c *CompositeMetricRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordChunkRollback(ctx, execution)
	}
}

var _ MetricRecorder = (*CompositeMetricRecorder)(nil)
