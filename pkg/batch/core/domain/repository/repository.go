// Package repository defines the persistence ports for batch execution metadata.
// The step executor records every status change through these interfaces, and operators use them
// to observe executions and request stops from other goroutines or processes.
package repository

import (
	"errors"
)

// ErrOptimisticLock is returned when an update is based on a stale version of a record.
var ErrOptimisticLock = errors.New("optimistic lock failure: record was modified concurrently")

// JobRepository is the interface for persisting and managing batch execution metadata.
// It embeds smaller repository interfaces to separate concerns.
type JobRepository interface {
	JobExecution  // definition in job_execution.go
	StepExecution // definition in step_execution.go

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}
