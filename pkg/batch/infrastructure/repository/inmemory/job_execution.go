package inmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
)

// SaveJobExecution persists a new JobExecution.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	r.jobExecutions[jobExecution.ID] = jobExecution.Clone()
	return nil
}

// UpdateJobExecution updates an existing JobExecution, bumping its version.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	if stored.Version != jobExecution.Version {
		return fmt.Errorf("JobExecution (ID: %s) version %d, stored %d: %w", jobExecution.ID, jobExecution.Version, stored.Version, repository.ErrOptimisticLock)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	r.jobExecutions[jobExecution.ID] = jobExecution.Clone()
	return nil
}

// FindJobExecutionByID finds a JobExecution by its ID, along with the step executions it owns.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	je := stored.Clone()
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == id {
			c := se.Clone()
			c.JobExecution = je
			je.StepExecutions = append(je.StepExecutions, c)
		}
	}
	return je, nil
}
