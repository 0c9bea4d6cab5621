package port

import (
	"context"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// StepExecutionSynchronizer serialises executions of the same step.
type StepExecutionSynchronizer interface {
	// Lock blocks until the execution may run. It fails with exception.ErrCancelled, without holding
	// the lock, when ctx is cancelled before or while waiting.
	Lock(ctx context.Context, stepExecution *model.StepExecution) error
	// Release gives the lock back. It is called at most once per successful Lock.
	Release(stepExecution *model.StepExecution) error
}
