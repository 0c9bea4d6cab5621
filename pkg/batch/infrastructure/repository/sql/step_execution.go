package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// SaveStepExecution implements repository.StepExecution.
func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	if err := r.conn(ctx).Create(fromDomainStepExecution(stepExecution)).Error; err != nil {
		return repoError(fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err)
	}
	return nil
}

// UpdateStepExecution implements repository.StepExecution.
// The terminate-only column is written only when the instance carries the flag, and a stored flag is
// copied back onto the instance, so a stop requested by another process survives the update.
func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	originalVersion := stepExecution.Version
	now := time.Now()

	updates := map[string]interface{}{
		"step_name":         stepExecution.StepName,
		"job_execution_id":  stepExecution.JobExecutionID,
		"start_time":        stepExecution.StartTime,
		"end_time":          stepExecution.EndTime,
		"status":            stepExecution.Status,
		"exit_status":       stepExecution.ExitStatus,
		"failures":          stepExecution.Failures,
		"read_count":        stepExecution.ReadCount,
		"write_count":       stepExecution.WriteCount,
		"commit_count":      stepExecution.CommitCount,
		"rollback_count":    stepExecution.RollbackCount,
		"execution_context": stepExecution.ExecutionContext,
		"last_updated":      now,
		"version":           originalVersion + 1,
	}
	if stepExecution.IsTerminateOnly() {
		updates["terminate_only"] = true
	}

	result := r.conn(ctx).Model(&StepExecutionEntity{}).
		Where("id = ? AND version = ?", stepExecution.ID, originalVersion).
		Updates(updates)
	if result.Error != nil {
		return repoError(fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), result.Error)
	}
	if result.RowsAffected == 0 {
		return r.missingOrStale(ctx, &StepExecutionEntity{}, stepExecution.ID, originalVersion, repository.ErrStepExecutionNotFound)
	}
	stepExecution.Version = originalVersion + 1
	stepExecution.LastUpdated = now

	stored, err := r.storedTerminateOnly(ctx, stepExecution.ID)
	if err != nil {
		logger.Warnf("StepExecution (ID: %s) updated but its stop flag could not be read back: %v", stepExecution.ID, err)
		return nil
	}
	if stored {
		stepExecution.SetTerminateOnly()
	}
	return nil
}

// FindStepExecutionByID implements repository.StepExecution. The owning JobExecution is attached
// when it exists.
func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	var entity StepExecutionEntity
	if err := r.conn(ctx).Where("id = ?", executionID).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, repoError(fmt.Sprintf("failed to find StepExecution (ID: %s)", executionID), err)
	}
	se := toDomainStepExecution(&entity)

	if entity.JobExecutionID != "" {
		var jobEntity JobExecutionEntity
		err := r.conn(ctx).Where("id = ?", entity.JobExecutionID).Take(&jobEntity).Error
		switch {
		case err == nil:
			se.JobExecution = toDomainJobExecution(&jobEntity)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, repoError(fmt.Sprintf("failed to find JobExecution (ID: %s)", entity.JobExecutionID), err)
		}
	}
	return se, nil
}

// IsCancellationRequested implements repository.StepExecution.
// An unknown execution has no stop request.
func (r *SQLJobRepository) IsCancellationRequested(ctx context.Context, stepExecution *model.StepExecution) (bool, error) {
	if stepExecution.IsTerminateOnly() {
		return true, nil
	}
	stored, err := r.storedTerminateOnly(ctx, stepExecution.ID)
	if err != nil {
		return false, repoError(fmt.Sprintf("failed to read stop flag of StepExecution (ID: %s)", stepExecution.ID), err)
	}
	return stored, nil
}

// RequestStop implements repository.StepExecution. The version is left alone so the running step's
// next update still succeeds.
func (r *SQLJobRepository) RequestStop(ctx context.Context, executionID string) error {
	result := r.conn(ctx).Model(&StepExecutionEntity{}).
		Where("id = ?", executionID).
		Update("terminate_only", true)
	if result.Error != nil {
		return repoError(fmt.Sprintf("failed to request stop of StepExecution (ID: %s)", executionID), result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the flag was already set.
	var count int64
	if err := r.conn(ctx).Model(&StepExecutionEntity{}).Where("id = ?", executionID).Count(&count).Error; err != nil {
		return repoError(fmt.Sprintf("failed to check StepExecution (ID: %s)", executionID), err)
	}
	if count == 0 {
		return repository.ErrStepExecutionNotFound
	}
	return nil
}

func (r *SQLJobRepository) storedTerminateOnly(ctx context.Context, id string) (bool, error) {
	var flags []bool
	if err := r.conn(ctx).Model(&StepExecutionEntity{}).Where("id = ?", id).Pluck("terminate_only", &flags).Error; err != nil {
		return false, err
	}
	return len(flags) > 0 && flags[0], nil
}
