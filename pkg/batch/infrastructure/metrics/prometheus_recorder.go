package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// It owns its registry so several recorders can coexist in one process (and in tests).
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepFilterCount     *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec
	stepRollbackCount   *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder whose metric names are prefixed by namespace.
// withRuntime also registers the Go and process collectors.
func NewPrometheusRecorder(namespace string, withRuntime bool) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	if withRuntime {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	stepCounter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"job_name", "step_name"})
	}

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of batch job executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_name", "status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_status_total",
			Help:      "Total number of finished batch job executions by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of batch step executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_status_total",
			Help:      "Total number of finished batch step executions by status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount:     stepCounter("step_read_total", "Total items read by step."),
		stepWriteCount:    stepCounter("step_write_total", "Total items written by step."),
		stepFilterCount:   stepCounter("step_filter_total", "Total items filtered by step."),
		stepCommitCount:   stepCounter("step_commit_total", "Total chunk commits by step."),
		stepRollbackCount: stepCounter("step_rollback_total", "Total chunk rollbacks by step."),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepWriteCount,
		r.stepFilterCount,
		r.stepCommitCount,
		r.stepRollbackCount,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd records the duration and final status of a JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.jobDurationSeconds.WithLabelValues(execution.JobName, execution.Status.String()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

// RecordStepStart records the start of a StepExecution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

// RecordStepEnd records the duration and final status of a StepExecution.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := jobNameOf(execution)
	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

// RecordItemRead records a successful item read.
func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	r.stepReadCount.WithLabelValues(jobNameOf(execution), execution.StepName).Inc()
}

// RecordItemFilter records an item filtered by the processor.
func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution) {
	r.stepFilterCount.WithLabelValues(jobNameOf(execution), execution.StepName).Inc()
}

// RecordItemWrite records items handed to the writer.
func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.stepWriteCount.WithLabelValues(jobNameOf(execution), execution.StepName).Add(float64(count))
}

// RecordChunkCommit records a chunk commit.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int) {
	r.stepCommitCount.WithLabelValues(jobNameOf(execution), execution.StepName).Inc()
}

// RecordChunkRollback records a chunk rollback.
func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	r.stepRollbackCount.WithLabelValues(jobNameOf(execution), execution.StepName).Inc()
}

func jobNameOf(execution *model.StepExecution) string {
	if execution.JobExecution == nil {
		return ""
	}
	return execution.JobExecution.JobName
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
