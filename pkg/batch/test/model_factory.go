package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
)

// NewTestJobExecution creates a JobExecution for testing.
func NewTestJobExecution(jobName string) *model.JobExecution {
	return model.NewJobExecution(jobName)
}

// NewTestStepExecution creates a StepExecution for testing.
func NewTestStepExecution(jobExecution *model.JobExecution, stepName string) *model.StepExecution {
	return jobExecution.CreateStepExecution(stepName)
}

// NewSavedStepExecution creates a job and step execution and saves both to repo,
// the way a launcher does before running a step.
func NewSavedStepExecution(t testing.TB, repo repository.JobRepository, jobName, stepName string) *model.StepExecution {
	t.Helper()
	ctx := context.Background()
	je := NewTestJobExecution(jobName)
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	se := NewTestStepExecution(je, stepName)
	require.NoError(t, repo.SaveStepExecution(ctx, se))
	return se
}

// NewTestExecutionContext creates an ExecutionContext for testing.
func NewTestExecutionContext(data map[string]interface{}) model.ExecutionContext {
	ec := model.NewExecutionContext()
	for k, v := range data {
		ec.Put(k, v)
	}
	return ec
}
