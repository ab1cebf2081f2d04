package metrics

import (
	"context"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

// Tracer opens spans around job and step executions.
type Tracer interface {
	// StartJobSpan starts a span for a JobExecution. The returned func ends it.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	// StartStepSpan starts a span for a StepExecution. The returned func ends it.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// RecordError records an error on the span in ctx.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
