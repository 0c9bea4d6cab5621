package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
)

// InstrumentationName names the tracer obtained from the TracerProvider.
const InstrumentationName = "github.com/tigerroll/stepguard/pkg/batch"

// OpenTelemetryTracer implements metrics.Tracer with OpenTelemetry spans.
// A step span is the parent of one span per chunk.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer from tp.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(InstrumentationName)}
}

// StartStepSpan implements metrics.Tracer. The returned function records the final counts and
// status before ending the span.
func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+execution.StepName,
		trace.WithAttributes(
			attribute.String("batch.job_name", execution.JobName()),
			attribute.String("batch.step_name", execution.StepName),
			attribute.String("batch.step_execution_id", execution.ID),
		),
	)
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.status", execution.Status.String()),
			attribute.String("batch.exit_status", execution.ExitStatus.String()),
			attribute.Int("batch.read_count", execution.ReadCount),
			attribute.Int("batch.write_count", execution.WriteCount),
			attribute.Int("batch.commit_count", execution.CommitCount),
			attribute.Int("batch.rollback_count", execution.RollbackCount),
		)
		if execution.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, execution.Failures.Primary().String())
		}
		span.End()
	}
}

// StartChunkSpan implements metrics.Tracer.
func (t *OpenTelemetryTracer) StartChunkSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "chunk "+execution.StepName,
		trace.WithAttributes(attribute.Int("batch.commit_count", execution.CommitCount)),
	)
	return ctx, func() { span.End() }
}

// RecordError implements metrics.Tracer.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
}

// RecordEvent implements metrics.Tracer.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(values map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(values))
	for k, v := range values {
		switch x := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, x))
		case int:
			attrs = append(attrs, attribute.Int(k, x))
		case int64:
			attrs = append(attrs, attribute.Int64(k, x))
		case float64:
			attrs = append(attrs, attribute.Float64(k, x))
		case bool:
			attrs = append(attrs, attribute.Bool(k, x))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(x)))
		}
	}
	return attrs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
