// Package logging provides listeners that write step and chunk events to the batch logger.
package logging

import (
	"context"
	"time"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.WithFields(map[string]interface{}{
		"step_name":         stepExecution.StepName,
		"step_execution_id": stepExecution.ID,
		"job_name":          stepExecution.JobName(),
	}).Infof("StepExecutionListener: BeforeStep")
}

// AfterStep logs a summary of the execution. Anything other than COMPLETED is logged as a warning.
func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	duration := time.Duration(0)
	if stepExecution.EndTime != nil {
		duration = stepExecution.EndTime.Sub(stepExecution.StartTime)
	}
	entry := logger.WithFields(map[string]interface{}{
		"step_name":         stepExecution.StepName,
		"step_execution_id": stepExecution.ID,
		"status":            stepExecution.Status.String(),
		"exit_status":       string(stepExecution.ExitStatus),
		"read_count":        stepExecution.ReadCount,
		"write_count":       stepExecution.WriteCount,
		"commit_count":      stepExecution.CommitCount,
		"rollback_count":    stepExecution.RollbackCount,
		"duration":          duration.String(),
	})
	if stepExecution.Status == model.BatchStatusCompleted {
		entry.Infof("StepExecutionListener: AfterStep")
		return
	}
	if len(stepExecution.Failures) > 0 {
		entry = entry.WithField("failures", stepExecution.Failures.String())
	}
	entry.Warnf("StepExecutionListener: AfterStep")
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s", stepExecution.StepName)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d, Commits: %d",
		stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.CommitCount)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	logger.Warnf("ChunkListener: AfterChunkError - StepName: %s, Rollbacks: %d, Error: %v",
		stepExecution.StepName, stepExecution.RollbackCount, err)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)
