package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// StepOperator performs operations on running step executions.
type StepOperator struct {
	jobRepository repository.JobRepository
	launcher      *SimpleStepLauncher
}

// NewStepOperator creates a new StepOperator. launcher may be nil when this process only
// requests stops for executions running elsewhere.
func NewStepOperator(repo repository.JobRepository, launcher *SimpleStepLauncher) *StepOperator {
	return &StepOperator{jobRepository: repo, launcher: launcher}
}

// Stop requests that the execution stops.
//
// The terminate-only flag is persisted first, so an executor in another process observes it at its
// next chunk boundary. If the execution was launched here, its in-memory flag is set and its
// context cancelled, which also interrupts a wait for the step lock.
func (o *StepOperator) Stop(ctx context.Context, stepExecutionID string) error {
	const op = "StepOperator.Stop"
	logger.Infof("StepOperator: Stop called. Execution ID: %s", stepExecutionID)

	se, err := o.jobRepository.FindStepExecutionByID(ctx, stepExecutionID)
	if err != nil {
		return exception.NewBatchError(op, exception.KindRepository, fmt.Sprintf("failed to load StepExecution (ID: %s)", stepExecutionID), err)
	}
	if se.Status.IsFinished() {
		logger.Warnf("StepExecution (ID: %s) cannot be stopped as it is already %s.", stepExecutionID, se.Status)
		return exception.NewBatchErrorf(op, exception.KindRepository, "StepExecution (ID: %s) is already in a finished state (%s)", stepExecutionID, se.Status)
	}

	if err := o.jobRepository.RequestStop(ctx, stepExecutionID); err != nil {
		return exception.NewBatchError(op, exception.KindRepository, fmt.Sprintf("failed to request stop for StepExecution (ID: %s)", stepExecutionID), err)
	}

	if o.launcher != nil && o.launcher.interrupt(stepExecutionID) {
		logger.Infof("Sent stop signal to StepExecution (ID: %s).", stepExecutionID)
		return nil
	}
	logger.Infof("Stop requested for StepExecution (ID: %s); it will stop at its next chunk boundary.", stepExecutionID)
	return nil
}

// GetStepExecution returns the persisted state of an execution.
func (o *StepOperator) GetStepExecution(ctx context.Context, stepExecutionID string) (*model.StepExecution, error) {
	return o.jobRepository.FindStepExecutionByID(ctx, stepExecutionID)
}
