package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	coremetrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/infrastructure/metrics"
)

func finishedStep(t *testing.T) *model.StepExecution {
	t.Helper()
	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "XMLToCSV")
	se.MarkAsStarted()
	se.ReadCount, se.WriteCount, se.CommitCount = 23, 23, 3
	time.Sleep(time.Millisecond)
	se.MarkAsCompleted()
	return se
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	rec := metrics.NewPrometheusRecorder("batch", false)
	se := finishedStep(t)
	ctx := context.Background()

	for i := 0; i < 23; i++ {
		rec.RecordItemRead(ctx, se)
	}
	rec.RecordItemFilter(ctx, se)
	rec.RecordItemWrite(ctx, se, 10)
	rec.RecordItemWrite(ctx, se, 10)
	rec.RecordItemWrite(ctx, se, 2)
	rec.RecordChunkCommit(ctx, se, 10)
	rec.RecordChunkCommit(ctx, se, 10)
	rec.RecordChunkRollback(ctx, se)
	rec.RecordStepEnd(ctx, se)

	families, err := rec.GetRegistry().Gather()
	require.NoError(t, err)

	assert.Equal(t, float64(23), counterValue(t, families, "batch_step_read_total"))
	assert.Equal(t, float64(1), counterValue(t, families, "batch_step_filter_total"))
	assert.Equal(t, float64(22), counterValue(t, families, "batch_step_write_total"))
	assert.Equal(t, float64(2), counterValue(t, families, "batch_step_commit_total"))
	assert.Equal(t, float64(1), counterValue(t, families, "batch_step_rollback_total"))
	assert.Equal(t, float64(1), counterValue(t, families, "batch_step_status_total"))
}

func TestPrometheusRecorder_JobEnd(t *testing.T) {
	rec := metrics.NewPrometheusRecorder("batch", true)
	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("boom"))

	rec.RecordJobStart(context.Background(), je)
	rec.RecordJobEnd(context.Background(), je)

	families, err := rec.GetRegistry().Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, families, "batch_job_status_total"))
}

func TestOpenTelemetryTracer_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := metrics.NewOpenTelemetryTracer(tp)

	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	je.MarkAsStarted()
	ctx, endJob := tracer.StartJobSpan(context.Background(), je)

	se := model.NewStepExecution(model.NewID(), je, "XMLToCSV")
	se.MarkAsStarted()
	stepCtx, endStep := tracer.StartStepSpan(ctx, se)
	tracer.RecordEvent(stepCtx, "chunk.committed", map[string]interface{}{"size": 10, "last": false})
	tracer.RecordError(stepCtx, "XMLToCSV", errors.New("write failed"))
	se.MarkAsFailed(errors.New("write failed"))
	endStep()

	je.MarkAsFailed(errors.New("write failed"))
	endJob()

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "step XMLToCSV", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.Len(t, ended[0].Events(), 2)
	assert.Equal(t, "chunk.committed", ended[0].Events()[0].Name)
	assert.Equal(t, "job simpleJob", ended[1].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestOpenTelemetryRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := metrics.NewOpenTelemetryRecorder(mp)
	require.NoError(t, err)

	se := finishedStep(t)
	ctx := context.Background()
	rec.RecordItemRead(ctx, se)
	rec.RecordItemRead(ctx, se)
	rec.RecordItemWrite(ctx, se, 2)
	rec.RecordChunkCommit(ctx, se, 2)
	rec.RecordStepEnd(ctx, se)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), findSum(t, rm, "batch.step.items.read"))
	assert.Equal(t, int64(2), findSum(t, rm, "batch.step.items.written"))
	assert.Equal(t, int64(1), findSum(t, rm, "batch.step.chunks.committed"))
}

func TestCompositeMetricRecorder_FansOut(t *testing.T) {
	first := metrics.NewPrometheusRecorder("first", false)
	second := metrics.NewPrometheusRecorder("second", false)
	composite := coremetrics.NewCompositeMetricRecorder(first, second)

	se := finishedStep(t)
	composite.RecordItemRead(context.Background(), se)

	for prefix, rec := range map[string]*metrics.PrometheusRecorder{"first": first, "second": second} {
		families, err := rec.GetRegistry().Gather()
		require.NoError(t, err)
		assert.Equal(t, float64(1), counterValue(t, families, prefix+"_step_read_total"))
	}
}

func TestNewTelemetry_Disabled(t *testing.T) {
	tel, err := metrics.NewTelemetry(context.Background(), metrics.OTLPConfig{ServiceName: "bookbatch"})
	require.NoError(t, err)
	require.NotNil(t, tel.TracerProvider)
	require.NotNil(t, tel.MeterProvider)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewTelemetry_UnknownProtocol(t *testing.T) {
	_, err := metrics.NewTelemetry(context.Background(), metrics.OTLPConfig{Enabled: true, Protocol: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}
