package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution)   {}
func (r *NoOpMetricRecorder) RecordLockWait(ctx context.Context, stepName string, wait time.Duration) {
}
func (r *NoOpMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int)    {}
func (r *NoOpMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int)   {}
func (r *NoOpMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {}
func (r *NoOpMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string)          {}
func (r *NoOpMetricRecorder) RecordInterruption(ctx context.Context, stepName string)           {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartChunkSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
