package port

import (
	"context"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// Tasklet is the unit of work a step runs repeatedly until it reports FINISHED.
type Tasklet interface {
	// Execute runs one iteration. Counters on stepExecution are updated by the tasklet itself.
	Execute(ctx context.Context, stepExecution *model.StepExecution) (RepeatStatus, error)
}

// TaskletFunc adapts a function to the Tasklet interface.
type TaskletFunc func(ctx context.Context, stepExecution *model.StepExecution) (RepeatStatus, error)

// Execute calls f(ctx, stepExecution).
func (f TaskletFunc) Execute(ctx context.Context, stepExecution *model.StepExecution) (RepeatStatus, error) {
	return f(ctx, stepExecution)
}

// Step is an executable step. Execute returns nil unless the step was interrupted.
type Step interface {
	StepName() string
	Execute(ctx context.Context, stepExecution *model.StepExecution) error
	IsAllowStartIfComplete() bool
	StartLimit() int
}
