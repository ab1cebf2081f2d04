package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
)

// OpenTelemetryRecorder records batch measurements as OpenTelemetry instruments.
type OpenTelemetryRecorder struct {
	jobDuration   metric.Float64Histogram
	stepDuration  metric.Float64Histogram
	itemsRead     metric.Int64Counter
	itemsFiltered metric.Int64Counter
	itemsWritten  metric.Int64Counter
	commits       metric.Int64Counter
	rollbacks     metric.Int64Counter
}

// NewOpenTelemetryRecorder creates the instruments on a meter from mp.
func NewOpenTelemetryRecorder(mp metric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}
	var err error

	if r.jobDuration, err = meter.Float64Histogram("batch.job.duration",
		metric.WithUnit("s"), metric.WithDescription("Duration of batch job executions.")); err != nil {
		return nil, err
	}
	if r.stepDuration, err = meter.Float64Histogram("batch.step.duration",
		metric.WithUnit("s"), metric.WithDescription("Duration of batch step executions.")); err != nil {
		return nil, err
	}
	if r.itemsRead, err = meter.Int64Counter("batch.step.items.read",
		metric.WithDescription("Items read by step.")); err != nil {
		return nil, err
	}
	if r.itemsFiltered, err = meter.Int64Counter("batch.step.items.filtered",
		metric.WithDescription("Items filtered by step.")); err != nil {
		return nil, err
	}
	if r.itemsWritten, err = meter.Int64Counter("batch.step.items.written",
		metric.WithDescription("Items written by step.")); err != nil {
		return nil, err
	}
	if r.commits, err = meter.Int64Counter("batch.step.chunks.committed",
		metric.WithDescription("Chunks committed by step.")); err != nil {
		return nil, err
	}
	if r.rollbacks, err = meter.Int64Counter("batch.step.chunks.rolledback",
		metric.WithDescription("Chunks rolled back by step.")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(),
		metric.WithAttributes(
			attribute.String("job_name", execution.JobName),
			attribute.String("status", execution.Status.String()),
		))
}

func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
}

func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	attrs := append(stepAttributes(execution), attribute.String("status", execution.Status.String()))
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), metric.WithAttributes(attrs...))
}

func (r *OpenTelemetryRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	r.itemsRead.Add(ctx, 1, metric.WithAttributes(stepAttributes(execution)...))
}

func (r *OpenTelemetryRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution) {
	r.itemsFiltered.Add(ctx, 1, metric.WithAttributes(stepAttributes(execution)...))
}

func (r *OpenTelemetryRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemsWritten.Add(ctx, int64(count), metric.WithAttributes(stepAttributes(execution)...))
}

func (r *OpenTelemetryRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int) {
	r.commits.Add(ctx, 1, metric.WithAttributes(stepAttributes(execution)...))
}

func (r *OpenTelemetryRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	r.rollbacks.Add(ctx, 1, metric.WithAttributes(stepAttributes(execution)...))
}

func stepAttributes(execution *model.StepExecution) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("step_name", execution.StepName),
	}
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
