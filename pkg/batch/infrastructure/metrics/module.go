package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
)

// NewMetricRecorder returns a PrometheusRecorder when metrics are enabled and a no-op otherwise.
func NewMetricRecorder(cfg *config.ObservabilityConfig) metrics.MetricRecorder {
	if !cfg.MetricsEnabled {
		return metrics.NewNoOpMetricRecorder()
	}
	return NewPrometheusRecorder()
}

// NewTracer builds the OpenTelemetry tracer, installs its provider globally and flushes it on stop.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tp, err := NewTracerProvider(context.Background(), cfg.Stepguard.Observability, cfg.Stepguard.Batch.JobName)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return NewOpenTelemetryTracer(tp), nil
}

// Module provides the configured MetricRecorder and an OpenTelemetry Tracer.
// It replaces core/metrics.Module.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
