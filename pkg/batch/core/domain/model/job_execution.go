package model

import (
	"fmt"
	"time"

	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// JobExecution is the parent record of the step executions it owns.
// The step executor only reads its identity; orchestration of jobs happens elsewhere.
type JobExecution struct {
	ID               string
	JobName          string
	StartTime        time.Time
	EndTime          *time.Time
	Status           BatchStatus
	ExitStatus       ExitStatus
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
}

// NewJobExecution creates a new JobExecution in the STARTING state.
func NewJobExecution(jobName string) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobName:          jobName,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// CreateStepExecution creates a StepExecution owned by this JobExecution.
func (je *JobExecution) CreateStepExecution(stepName string) *StepExecution {
	se := NewStepExecution(NewID(), je, stepName)
	je.StepExecutions = append(je.StepExecutions, se)
	return se
}

// TransitionTo safely transitions the state of JobExecution.
func (je *JobExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidStepTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

// UpgradeStatus moves the JobExecution to the status its step finished with.
// Invalid transitions are logged and ignored.
func (je *JobExecution) UpgradeStatus(status BatchStatus) {
	if je.Status == BatchStatusStarting && status.IsFinished() {
		_ = je.TransitionTo(BatchStatusStarted)
	}
	if err := je.TransitionTo(status); err != nil {
		logger.Debugf("%v", err)
		return
	}
	je.ExitStatus = status.ToExitStatus()
	if status.IsFinished() {
		now := time.Now()
		je.EndTime = &now
	}
}

// Clone returns a copy of the JobExecution without its step executions.
func (je *JobExecution) Clone() *JobExecution {
	c := *je
	c.StepExecutions = nil
	c.ExecutionContext = je.ExecutionContext.Copy()
	if je.EndTime != nil {
		t := *je.EndTime
		c.EndTime = &t
	}
	return &c
}
