package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
)

// SaveJobExecution implements repository.JobExecution.
func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	if err := r.conn(ctx).Create(fromDomainJobExecution(jobExecution)).Error; err != nil {
		return repoError(fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err)
	}
	return nil
}

// UpdateJobExecution implements repository.JobExecution. The stored version must match.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	originalVersion := jobExecution.Version
	now := time.Now()

	result := r.conn(ctx).Model(&JobExecutionEntity{}).
		Where("id = ? AND version = ?", jobExecution.ID, originalVersion).
		Updates(map[string]interface{}{
			"job_name":          jobExecution.JobName,
			"start_time":        jobExecution.StartTime,
			"end_time":          jobExecution.EndTime,
			"status":            jobExecution.Status,
			"exit_status":       jobExecution.ExitStatus,
			"execution_context": jobExecution.ExecutionContext,
			"last_updated":      now,
			"version":           originalVersion + 1,
		})
	if result.Error != nil {
		return repoError(fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), result.Error)
	}
	if result.RowsAffected == 0 {
		return r.missingOrStale(ctx, &JobExecutionEntity{}, jobExecution.ID, originalVersion, repository.ErrJobExecutionNotFound)
	}
	jobExecution.Version = originalVersion + 1
	jobExecution.LastUpdated = now
	return nil
}

// FindJobExecutionByID implements repository.JobExecution. Owned step executions are attached.
func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	var entity JobExecutionEntity
	if err := r.conn(ctx).Where("id = ?", executionID).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, repoError(fmt.Sprintf("failed to find JobExecution (ID: %s)", executionID), err)
	}
	je := toDomainJobExecution(&entity)

	var steps []StepExecutionEntity
	if err := r.conn(ctx).Where("job_execution_id = ?", executionID).Order("start_time").Find(&steps).Error; err != nil {
		return nil, repoError(fmt.Sprintf("failed to find StepExecutions of JobExecution (ID: %s)", executionID), err)
	}
	for i := range steps {
		se := toDomainStepExecution(&steps[i])
		se.JobExecution = je
		je.StepExecutions = append(je.StepExecutions, se)
	}
	return je, nil
}

// missingOrStale tells a missing row from a version mismatch after an update matched nothing.
func (r *SQLJobRepository) missingOrStale(ctx context.Context, entity interface{}, id string, version int, notFound error) error {
	var count int64
	if err := r.conn(ctx).Model(entity).Where("id = ?", id).Count(&count).Error; err != nil {
		return repoError(fmt.Sprintf("failed to check record (ID: %s)", id), err)
	}
	if count == 0 {
		return fmt.Errorf("record with ID %s not found for update: %w", id, notFound)
	}
	return fmt.Errorf("record (ID: %s) version %d is stale: %w", id, version, repository.ErrOptimisticLock)
}
