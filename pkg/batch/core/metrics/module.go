package metrics

import (
	"go.uber.org/fx"
)

// Module provides the no-op recorder and tracer.
// Applications that enable observability use infrastructure/metrics.Module instead.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
