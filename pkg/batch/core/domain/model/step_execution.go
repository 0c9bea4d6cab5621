package model

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// StepExecution is the mutable record of one run of a step.
//
// Only the goroutine executing the step mutates it. The terminate-only flag is the exception:
// any goroutine may set it to ask the step to stop at its next chunk boundary.
type StepExecution struct {
	ID             string
	StepName       string
	JobExecutionID string
	JobExecution   *JobExecution
	StartTime      time.Time
	EndTime        *time.Time
	Status         BatchStatus
	ExitStatus     ExitStatus
	Failures       FailureList
	ReadCount      int
	WriteCount     int
	CommitCount    int
	RollbackCount  int
	// ExecutionContext holds step-scoped state such as reader positions.
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int

	terminateOnly atomic.Bool
}

// NewStepExecution creates a new instance of StepExecution in the STARTING state.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		JobExecution:     jobExecution,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	if jobExecution != nil {
		se.JobExecutionID = jobExecution.ID
	}
	return se
}

// JobName returns the name of the owning job, or an empty string if it is unknown.
func (se *StepExecution) JobName() string {
	if se.JobExecution == nil {
		return ""
	}
	return se.JobExecution.JobName
}

// SetTerminateOnly asks the step to stop at the next chunk boundary. Safe for concurrent use.
func (se *StepExecution) SetTerminateOnly() {
	se.terminateOnly.Store(true)
}

// IsTerminateOnly reports whether a stop was requested. Safe for concurrent use.
func (se *StepExecution) IsTerminateOnly() bool {
	return se.terminateOnly.Load()
}

// TransitionTo safely transitions the state of StepExecution.
func (se *StepExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted updates the StepExecution status to STARTED.
func (se *StepExecution) MarkAsStarted() {
	if err := se.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to STARTED: %v", se.ID, err)
		return
	}
	se.ExitStatus = ExitStatusExecuting
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted)
}

// MarkAsStopped updates the StepExecution status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped)
}

// MarkAsFailed updates the StepExecution status to FAILED and records err as a primary failure.
func (se *StepExecution) MarkAsFailed(kind FailureKind, err error) {
	if se.Status.IsFinished() {
		logger.Warnf("StepExecution (ID: %s) already finished with %s; ignoring failure: %v", se.ID, se.Status, err)
		return
	}
	se.AddFailure(kind, err)
	se.finish(BatchStatusFailed)
}

func (se *StepExecution) finish(status BatchStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to %s: %v", se.ID, status, err)
		return
	}
	se.ExitStatus = status.ToExitStatus()
	now := time.Now()
	se.EndTime = &now
}

// AddFailure records a primary failure. Cancellations are signalled, never recorded.
func (se *StepExecution) AddFailure(kind FailureKind, err error) {
	se.addFailure(kind, err, false)
}

// AddSecondaryFailure records a failure that must not change the primary outcome.
func (se *StepExecution) AddSecondaryFailure(kind FailureKind, err error) {
	se.addFailure(kind, err, true)
}

func (se *StepExecution) addFailure(kind FailureKind, err error, secondary bool) {
	if err == nil || kind == exception.KindCancelled {
		return
	}
	f := NewFailure(kind, err)
	f.Secondary = secondary
	se.Failures = append(se.Failures, f)
	se.LastUpdated = time.Now()
}

// Clone returns a deep copy suitable for handing to readers outside the executing goroutine.
func (se *StepExecution) Clone() *StepExecution {
	c := &StepExecution{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   se.JobExecutionID,
		JobExecution:     se.JobExecution,
		StartTime:        se.StartTime,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		Failures:         append(FailureList(nil), se.Failures...),
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		ExecutionContext: se.ExecutionContext.Copy(),
		LastUpdated:      se.LastUpdated,
		Version:          se.Version,
	}
	if se.EndTime != nil {
		t := *se.EndTime
		c.EndTime = &t
	}
	if se.IsTerminateOnly() {
		c.SetTerminateOnly()
	}
	return c
}

// DebugString returns a debug string representation of StepExecution, excluding ExecutionContext details.
func (se *StepExecution) DebugString() string {
	endTimeStr := "nil"
	if se.EndTime != nil {
		endTimeStr = se.EndTime.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf(
		"&{ID:%s StepName:%s JobExecutionID:%s Status:%s ExitStatus:%s TerminateOnly:%t Failures:%s ReadCount:%d WriteCount:%d CommitCount:%d RollbackCount:%d StartTime:%s EndTime:%s Version:%d}",
		se.ID, se.StepName, se.JobExecutionID, se.Status, se.ExitStatus, se.IsTerminateOnly(), se.Failures,
		se.ReadCount, se.WriteCount, se.CommitCount, se.RollbackCount,
		se.StartTime.Format(time.RFC3339Nano), endTimeStr, se.Version,
	)
}
