// Package inmemory provides an in-memory implementation of the JobRepository interface.
// It stores all execution records in maps within memory, suitable for tests and for deployments
// where the step executor and its operators live in the same process.
package inmemory

import (
	"sync"

	"github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// InMemoryJobRepository is an in-memory implementation of the JobRepository interface.
// Records are stored as snapshots; callers always receive copies.
type InMemoryJobRepository struct {
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	mu             sync.RWMutex // Mutex to protect concurrent access to maps.
}

// NewInMemoryJobRepository creates and initializes a new instance of InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
	}
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryJobRepository) Close() error {
	return nil
}
