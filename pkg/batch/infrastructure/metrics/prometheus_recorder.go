package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	stepsActive         *prometheus.GaugeVec
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	lockWaitSeconds     *prometheus.HistogramVec
	itemReadCount       *prometheus.CounterVec
	itemWriteCount      *prometheus.CounterVec
	chunkCommitCount    *prometheus.CounterVec
	chunkRollbackCount  *prometheus.CounterVec
	interruptionCount   *prometheus.CounterVec

	// started holds the IDs of executions counted in stepsActive.
	started sync.Map
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry.
// Go runtime and process collectors are registered alongside the step metrics.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		stepsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_step_active",
			Help: "Step executions currently holding their lock.",
		}, []string{"job_name", "step_name"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by terminal status.",
		}, []string{"job_name", "step_name", "status"}),
		lockWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_lock_wait_seconds",
			Help:    "Time spent waiting for the step execution synchronizer.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"step_name"}),
		itemReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by step.",
		}, []string{"step_name"}),
		itemWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, []string{"step_name"}),
		chunkCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"step_name"}),
		chunkRollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_rollback_total",
			Help: "Total chunk rollbacks by step.",
		}, []string{"step_name"}),
		interruptionCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_interrupted_total",
			Help: "Total step executions that ended with an interruption.",
		}, []string{"step_name"}),
	}

	registry.MustRegister(
		r.stepsActive,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.lockWaitSeconds,
		r.itemReadCount,
		r.itemWriteCount,
		r.chunkCommitCount,
		r.chunkRollbackCount,
		r.interruptionCount,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordStepStart implements metrics.MetricRecorder.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepsActive.WithLabelValues(execution.JobName(), execution.StepName).Inc()
	r.started.Store(execution.ID, struct{}{})
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

// RecordStepEnd implements metrics.MetricRecorder. Steps that never started only count their status.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := execution.JobName()
	if _, ok := r.started.LoadAndDelete(execution.ID); ok {
		r.stepsActive.WithLabelValues(jobName, execution.StepName).Dec()
	}
	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(
		jobName,
		execution.StepName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

// RecordLockWait implements metrics.MetricRecorder.
func (r *PrometheusRecorder) RecordLockWait(ctx context.Context, stepName string, wait time.Duration) {
	r.lockWaitSeconds.WithLabelValues(stepName).Observe(wait.Seconds())
}

// RecordItemRead implements metrics.MetricRecorder.
func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemReadCount.WithLabelValues(stepName).Add(float64(count))
}

// RecordItemWrite implements metrics.MetricRecorder.
func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemWriteCount.WithLabelValues(stepName).Add(float64(count))
}

// RecordChunkCommit implements metrics.MetricRecorder.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommitCount.WithLabelValues(stepName).Inc()
}

// RecordChunkRollback implements metrics.MetricRecorder.
func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.chunkRollbackCount.WithLabelValues(stepName).Inc()
}

// RecordInterruption implements metrics.MetricRecorder.
func (r *PrometheusRecorder) RecordInterruption(ctx context.Context, stepName string) {
	r.interruptionCount.WithLabelValues(stepName).Inc()
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
