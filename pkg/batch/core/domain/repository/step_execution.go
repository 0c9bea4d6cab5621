package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// ErrStepExecutionNotFound is the error returned when StepExecution is not found.
var ErrStepExecutionNotFound = errors.New("step execution not found")

// StepExecution is the execution context store consulted by the step executor.
//
// Implementations store a snapshot on every save or update so that concurrent readers never see a
// half-written record. A persisted terminate-only flag is never cleared by an update.
type StepExecution interface {
	// SaveStepExecution persists a new StepExecution.
	SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// UpdateStepExecution updates the state of an existing StepExecution.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// FindStepExecutionByID finds a StepExecution by its ID.
	FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error)

	// IsCancellationRequested reports whether a stop was requested for the execution, either on the
	// persisted record or on the in-memory instance.
	IsCancellationRequested(ctx context.Context, stepExecution *model.StepExecution) (bool, error)

	// RequestStop sets the persisted terminate-only flag of the execution.
	RequestStop(ctx context.Context, executionID string) error
}
