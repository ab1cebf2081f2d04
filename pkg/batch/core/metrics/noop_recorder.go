package metrics

import (
	"context"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution)   {}
func (r *NoOpMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution)     {}
func (r *NoOpMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution)   {}
func (r *NoOpMetricRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution)  {}
func (r *NoOpMetricRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution) {
}
func (r *NoOpMetricRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
}
func (r *NoOpMetricRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int) {
}
func (r *NoOpMetricRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
}

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var (
	_ MetricRecorder = (*NoOpMetricRecorder)(nil)
	_ Tracer         = (*NoOpTracer)(nil)
)
