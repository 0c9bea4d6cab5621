package sql

import (
	"time"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// JobExecutionEntity is the persisted form of model.JobExecution.
type JobExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	JobName          string
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.BatchStatus
	ExitStatus       model.ExitStatus
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext model.ExecutionContext
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is the persisted form of model.StepExecution.
// TerminateOnly is only ever set to true by an update; a stop request is never cleared.
type StepExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	StepName         string
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.BatchStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	TerminateOnly    bool
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
	Version          int
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
