package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
)

// Module provides the logging listeners in the "stepListeners" and "chunkListeners" groups.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewLoggingStepListener,
			fx.As(new(port.StepExecutionListener)),
			fx.ResultTags(`group:"stepListeners"`),
		),
		fx.Annotate(
			NewLoggingChunkListener,
			fx.As(new(port.ChunkListener)),
			fx.ResultTags(`group:"chunkListeners"`),
		),
	),
)
