package inmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
)

// SaveStepExecution persists a new StepExecution.
// It returns an error if a StepExecution with the same ID already exists.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	r.stepExecutions[stepExecution.ID] = stepExecution.Clone()
	return nil
}

// UpdateStepExecution replaces the stored snapshot of an existing StepExecution.
// A stop requested on the stored record survives the update and is copied back to the caller's instance.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.stepExecutions[stepExecution.ID]
	if !exists {
		return fmt.Errorf("StepExecution with ID %s not found for update: %w", stepExecution.ID, repository.ErrStepExecutionNotFound)
	}
	if stored.Version != stepExecution.Version {
		return fmt.Errorf("StepExecution (ID: %s) version %d, stored %d: %w", stepExecution.ID, stepExecution.Version, stored.Version, repository.ErrOptimisticLock)
	}
	if stored.IsTerminateOnly() {
		stepExecution.SetTerminateOnly()
	}
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	r.stepExecutions[stepExecution.ID] = stepExecution.Clone()
	return nil
}

// FindStepExecutionByID finds a StepExecution by its ID.
// It returns an error if the StepExecution is not found.
func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stepExecution, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return stepExecution.Clone(), nil
}

// IsCancellationRequested reports the stored flag OR the flag on the given instance.
func (r *InMemoryJobRepository) IsCancellationRequested(ctx context.Context, stepExecution *model.StepExecution) (bool, error) {
	if stepExecution.IsTerminateOnly() {
		return true, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.stepExecutions[stepExecution.ID]
	if !ok {
		return false, nil
	}
	return stored.IsTerminateOnly(), nil
}

// RequestStop marks the stored StepExecution as terminate-only.
func (r *InMemoryJobRepository) RequestStop(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.stepExecutions[id]
	if !ok {
		return repository.ErrStepExecutionNotFound
	}
	stored.SetTerminateOnly()
	return nil
}
