package synchronizer

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
)

// NewStepExecutionSynchronizer selects the synchronizer named by stepguard.batch.synchronizer.
func NewStepExecutionSynchronizer(cfg *config.Config) port.StepExecutionSynchronizer {
	if cfg.Stepguard.Batch.Synchronizer == config.SynchronizerNoOp {
		return NewNoOpSynchronizer()
	}
	return NewKeyedSynchronizer()
}

// Module provides the configured StepExecutionSynchronizer.
var Module = fx.Options(
	fx.Provide(NewStepExecutionSynchronizer),
)
