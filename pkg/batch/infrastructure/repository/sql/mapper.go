package sql

import (
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:               je.ID,
		JobName:          je.JobName,
		StartTime:        je.StartTime,
		EndTime:          je.EndTime,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		Version:          je.Version,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	ec := entity.ExecutionContext
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	return &model.JobExecution{
		ID:               entity.ID,
		JobName:          entity.JobName,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Version:          entity.Version,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
		StepExecutions:   make([]*model.StepExecution, 0),
		ExecutionContext: ec,
	}
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   se.JobExecutionID,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		Failures:         se.Failures,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		TerminateOnly:    se.IsTerminateOnly(),
		ExecutionContext: se.ExecutionContext,
		LastUpdated:      se.LastUpdated,
		Version:          se.Version,
	}
}

// toDomainStepExecution maps entity back to a StepExecution. The JobExecution pointer is left for
// the caller to attach.
func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	failures := entity.Failures
	if failures == nil {
		failures = make(model.FailureList, 0)
	}
	ec := entity.ExecutionContext
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	se := &model.StepExecution{
		ID:               entity.ID,
		StepName:         entity.StepName,
		JobExecutionID:   entity.JobExecutionID,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Failures:         failures,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		CommitCount:      entity.CommitCount,
		RollbackCount:    entity.RollbackCount,
		ExecutionContext: ec,
		LastUpdated:      entity.LastUpdated,
		Version:          entity.Version,
	}
	if entity.TerminateOnly {
		se.SetTerminateOnly()
	}
	return se
}
