// Package metrics defines the observability ports of the step executor.
// Backends live in the infrastructure layer; this package only ships no-op fallbacks.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording metrics related to step execution.
// Implementations must be safe for concurrent use by several executing steps.
type MetricRecorder interface {
	// RecordStepStart records that a StepExecution acquired its lock and started.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)

	// RecordStepEnd records the terminal status of a StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordLockWait records how long the executor waited for the synchronizer.
	RecordLockWait(ctx context.Context, stepName string, wait time.Duration)

	// RecordItemRead records items read within one chunk.
	RecordItemRead(ctx context.Context, stepName string, count int)

	// RecordItemWrite records items written within one chunk.
	RecordItemWrite(ctx context.Context, stepName string, count int)

	// RecordChunkCommit records a committed chunk and the number of items it carried.
	RecordChunkCommit(ctx context.Context, stepName string, count int)

	// RecordChunkRollback records a rolled back chunk.
	RecordChunkRollback(ctx context.Context, stepName string)

	// RecordInterruption records that a step ended with an interruption signal.
	RecordInterruption(ctx context.Context, stepName string)
}
