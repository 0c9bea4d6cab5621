package usecase

import (
	"context"
	"errors"
	"sync"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// ErrStepNotLaunched is returned by Wait for an execution this launcher did not start.
var ErrStepNotLaunched = errors.New("step execution was not launched by this launcher")

// StepLauncher starts a step on its own goroutine.
type StepLauncher interface {
	// Launch creates and saves the Job and Step executions, then runs step asynchronously.
	// The returned StepExecution is a snapshot taken before the step started.
	Launch(ctx context.Context, jobName string, step port.Step) (*model.StepExecution, error)
	// Wait blocks until the execution ends and returns its final state and the step's error.
	Wait(ctx context.Context, stepExecutionID string) (*model.StepExecution, error)
}

// StepResult is the outcome of a launched step.
type StepResult struct {
	Execution *model.StepExecution
	Err       error
}

type launchedStep struct {
	execution *model.StepExecution
	cancel    context.CancelFunc
	done      chan struct{}
	result    StepResult
}

// SimpleStepLauncher implements StepLauncher for local execution.
type SimpleStepLauncher struct {
	jobRepository repository.JobRepository

	mu       sync.Mutex
	launched map[string]*launchedStep
}

// NewSimpleStepLauncher creates a new SimpleStepLauncher.
func NewSimpleStepLauncher(repo repository.JobRepository) *SimpleStepLauncher {
	return &SimpleStepLauncher{
		jobRepository: repo,
		launched:      make(map[string]*launchedStep),
	}
}

// Launch launches a step execution.
func (l *SimpleStepLauncher) Launch(ctx context.Context, jobName string, step port.Step) (*model.StepExecution, error) {
	const op = "SimpleStepLauncher.Launch"
	logger.Infof("Launching step '%s' of job '%s'.", step.StepName(), jobName)

	jobExecution := model.NewJobExecution(jobName)
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError(op, exception.KindRepository, "failed to save JobExecution", err)
	}
	stepExecution := jobExecution.CreateStepExecution(step.StepName())
	if err := l.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
		return nil, exception.NewBatchError(op, exception.KindRepository, "failed to save StepExecution", err)
	}
	snapshot := stepExecution.Clone()

	stepCtx, cancel := context.WithCancel(ctx)
	ls := &launchedStep{execution: stepExecution, cancel: cancel, done: make(chan struct{})}
	l.mu.Lock()
	l.launched[stepExecution.ID] = ls
	l.mu.Unlock()
	logger.Debugf("Registered CancelFunc for StepExecution (ID: %s).", stepExecution.ID)

	go l.run(stepCtx, ls, jobExecution, step)

	return snapshot, nil
}

func (l *SimpleStepLauncher) run(ctx context.Context, ls *launchedStep, jobExecution *model.JobExecution, step port.Step) {
	defer close(ls.done)
	defer ls.cancel()

	err := step.Execute(ctx, ls.execution)

	jobExecution.UpgradeStatus(ls.execution.Status)
	if uerr := l.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); uerr != nil {
		logger.Errorf("Failed to persist JobExecution (ID: %s) status %s: %v", jobExecution.ID, jobExecution.Status, uerr)
	}

	l.mu.Lock()
	ls.result = StepResult{Execution: ls.execution.Clone(), Err: err}
	l.mu.Unlock()
	logger.Infof("Step '%s' (execution %s) of job '%s' ended with %s.",
		step.StepName(), ls.execution.ID, jobExecution.JobName, ls.execution.Status)
}

// Wait blocks until the step ends or ctx is done.
func (l *SimpleStepLauncher) Wait(ctx context.Context, stepExecutionID string) (*model.StepExecution, error) {
	l.mu.Lock()
	ls, ok := l.launched[stepExecutionID]
	l.mu.Unlock()
	if !ok {
		return nil, ErrStepNotLaunched
	}
	select {
	case <-ls.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return ls.result.Execution, ls.result.Err
}

// interrupt flags the running execution as terminate-only and cancels its context.
// It reports false when the execution is unknown here or has already ended.
func (l *SimpleStepLauncher) interrupt(stepExecutionID string) bool {
	l.mu.Lock()
	ls, ok := l.launched[stepExecutionID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-ls.done:
		return false
	default:
	}
	ls.execution.SetTerminateOnly()
	ls.cancel()
	return true
}

// Running returns the IDs of executions that have not ended yet.
func (l *SimpleStepLauncher) Running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for id, ls := range l.launched {
		select {
		case <-ls.done:
		default:
			ids = append(ids, id)
		}
	}
	return ids
}

var _ StepLauncher = (*SimpleStepLauncher)(nil)
