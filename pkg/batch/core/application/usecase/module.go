// Package usecase provides the entry points operators use to launch and stop steps.
package usecase

import (
	"go.uber.org/fx"
)

// Module is the Fx module for StepLauncher and StepOperator.
var Module = fx.Options(
	fx.Provide(NewSimpleStepLauncher),
	fx.Provide(func(launcher *SimpleStepLauncher) StepLauncher { return launcher }),
	fx.Provide(NewStepOperator),
)
