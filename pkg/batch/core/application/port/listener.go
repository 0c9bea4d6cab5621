package port

import (
	"context"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// StepExecutionListener is an interface for handling step execution events.
type StepExecutionListener interface {
	// BeforeStep is called after the lock is acquired and the STARTED status persisted.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called once the terminal status is known, before it is persisted.
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is an interface for handling chunk processing events.
type ChunkListener interface {
	// BeforeChunk is called after the chunk transaction began.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after the chunk committed.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunkError is called after the chunk rolled back.
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}
