package tasklet

import (
	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
)

// Option configures a TaskletStep.
type Option func(*TaskletStep)

// WithSynchronizer sets the synchronizer that serialises executions of the step. Required.
func WithSynchronizer(s port.StepExecutionSynchronizer) Option {
	return func(step *TaskletStep) { step.synchronizer = s }
}

// WithTransactionManager sets the transaction manager bracketing each tasklet iteration. Required.
func WithTransactionManager(m tx.TransactionManager) Option {
	return func(step *TaskletStep) { step.txManager = m }
}

// WithJobRepository sets the repository the step persists its execution to. Required.
func WithJobRepository(r repository.JobRepository) Option {
	return func(step *TaskletStep) { step.jobRepository = r }
}

// WithTasklet sets the unit of work. Required.
func WithTasklet(t port.Tasklet) Option {
	return func(step *TaskletStep) { step.tasklet = t }
}

// WithAllowStartIfComplete marks the step as restartable after completion.
func WithAllowStartIfComplete(allow bool) Option {
	return func(step *TaskletStep) { step.allowStartIfComplete = allow }
}

// WithStartLimit caps how many times the step may be started. Zero means unlimited.
func WithStartLimit(limit int) Option {
	return func(step *TaskletStep) { step.startLimit = limit }
}

// WithIterationLimit caps the number of tasklet iterations per execution. Zero means unlimited.
func WithIterationLimit(limit int) Option {
	return func(step *TaskletStep) { step.iterationLimit = limit }
}

// WithStepExecutionListeners adds step listeners.
func WithStepExecutionListeners(listeners ...port.StepExecutionListener) Option {
	return func(step *TaskletStep) { step.stepListeners = append(step.stepListeners, listeners...) }
}

// WithChunkListeners adds chunk listeners. They are notified by chunk-oriented tasklets.
func WithChunkListeners(listeners ...port.ChunkListener) Option {
	return func(step *TaskletStep) { step.chunkListeners = append(step.chunkListeners, listeners...) }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(step *TaskletStep) {
		if r != nil {
			step.metricRecorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(step *TaskletStep) {
		if t != nil {
			step.tracer = t
		}
	}
}
