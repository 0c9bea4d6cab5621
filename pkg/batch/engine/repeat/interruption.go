package repeat

import (
	"context"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// InterruptionPolicy decides whether a loop must stop before its next callback.
type InterruptionPolicy interface {
	// CheckInterrupted returns an error matching exception.ErrCancelled when the loop must stop.
	CheckInterrupted(ctx context.Context, rc *port.RepeatContext) error
}

// ContextInterruptionPolicy stops the loop once ctx is cancelled.
type ContextInterruptionPolicy struct{}

// NewContextInterruptionPolicy creates a ContextInterruptionPolicy.
func NewContextInterruptionPolicy() *ContextInterruptionPolicy {
	return &ContextInterruptionPolicy{}
}

// CheckInterrupted implements InterruptionPolicy.
func (p *ContextInterruptionPolicy) CheckInterrupted(ctx context.Context, rc *port.RepeatContext) error {
	if err := ctx.Err(); err != nil {
		return exception.NewCancelledError("repeat", err)
	}
	return nil
}

// StepInterruptionPolicy stops the loop when ctx is cancelled or a stop was requested for the
// step execution, either on the instance or through the job repository.
type StepInterruptionPolicy struct {
	stepExecution *model.StepExecution
	repo          repository.StepExecution
}

// NewStepInterruptionPolicy creates a StepInterruptionPolicy. repo may be nil, in which case only
// the in-memory flag is consulted.
func NewStepInterruptionPolicy(stepExecution *model.StepExecution, repo repository.StepExecution) *StepInterruptionPolicy {
	return &StepInterruptionPolicy{stepExecution: stepExecution, repo: repo}
}

// CheckInterrupted implements InterruptionPolicy.
// A stop found in the repository is copied onto the instance so that later checks and the final
// status agree with it.
func (p *StepInterruptionPolicy) CheckInterrupted(ctx context.Context, rc *port.RepeatContext) error {
	if err := ctx.Err(); err != nil {
		return exception.NewCancelledError(p.stepExecution.StepName, err)
	}
	if p.stepExecution.IsTerminateOnly() {
		return exception.NewCancelledError(p.stepExecution.StepName, nil)
	}
	if p.repo == nil {
		return nil
	}
	requested, err := p.repo.IsCancellationRequested(ctx, p.stepExecution)
	if err != nil {
		logger.Warnf("Step '%s': could not check for a stop request: %v", p.stepExecution.StepName, err)
		return nil
	}
	if requested {
		p.stepExecution.SetTerminateOnly()
		return exception.NewCancelledError(p.stepExecution.StepName, nil)
	}
	return nil
}
