// Package tasklet provides the step executor and the chunk-oriented tasklet it usually runs.
package tasklet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/stepguard/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/engine/repeat"
	exception "github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// stepBoundTasklet is implemented by tasklets that manage their own transactions and need the
// collaborators of the step that runs them.
type stepBoundTasklet interface {
	bind(s *TaskletStep)
}

// TaskletStep runs a tasklet repeatedly under the step's synchronizer lock until the tasklet
// reports FINISHED, a stop is requested or an iteration fails.
type TaskletStep struct {
	name                 string
	synchronizer         port.StepExecutionSynchronizer
	txManager            tx.TransactionManager
	jobRepository        repository.JobRepository
	tasklet              port.Tasklet
	allowStartIfComplete bool
	startLimit           int
	iterationLimit       int

	stepListeners  []port.StepExecutionListener
	chunkListeners []port.ChunkListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewTaskletStep creates a new TaskletStep.
// The synchronizer, transaction manager, job repository and tasklet options are required.
func NewTaskletStep(name string, opts ...Option) (*TaskletStep, error) {
	s := &TaskletStep{
		name:           name,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var missing []string
	if s.synchronizer == nil {
		missing = append(missing, "synchronizer")
	}
	if s.txManager == nil {
		missing = append(missing, "transaction manager")
	}
	if s.jobRepository == nil {
		missing = append(missing, "job repository")
	}
	if s.tasklet == nil {
		missing = append(missing, "tasklet")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("step '%s': missing %s", name, strings.Join(missing, ", "))
	}

	if bt, ok := s.tasklet.(stepBoundTasklet); ok {
		bt.bind(s)
	} else {
		s.tasklet = &transactionalTasklet{delegate: s.tasklet, txManager: s.txManager}
	}
	return s, nil
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string { return s.name }

// IsAllowStartIfComplete reports whether a completed step may be started again.
func (s *TaskletStep) IsAllowStartIfComplete() bool { return s.allowStartIfComplete }

// StartLimit returns the maximum number of starts, zero meaning unlimited.
func (s *TaskletStep) StartLimit() int { return s.startLimit }

// Execute runs the step for stepExecution, which must already be saved in the job repository.
//
// On return the execution is in a terminal status and that status has been persisted. The only
// error returned is a *exception.JobInterruptedError, when the step was stopped by a context
// cancellation or a terminate-only request. Failures are recorded on the execution instead.
// The synchronizer lock is released exactly once if, and only if, it was acquired.
func (s *TaskletStep) Execute(ctx context.Context, se *model.StepExecution) error {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, se)
	defer endSpan()
	if se.Status.IsFinished() {
		logger.Warnf("Step '%s' (execution %s) is already %s; not executing.", s.name, se.ID, se.Status)
		return nil
	}
	logger.Infof("Step '%s' (execution %s) requested.", s.name, se.ID)

	lockStart := time.Now()
	if err := s.synchronizer.Lock(ctx, se); err != nil {
		if exception.IsCancelledBy(ctx, err) {
			logger.Infof("Step '%s' (execution %s) interrupted before acquiring its lock.", s.name, se.ID)
			se.MarkAsStopped()
			return s.finish(ctx, se, true, err)
		}
		logger.Errorf("Step '%s' (execution %s) could not acquire its lock: %v", s.name, se.ID, err)
		s.tracer.RecordError(ctx, "synchronizer", err)
		se.MarkAsFailed(exception.KindSynchronizer, err)
		return s.finish(ctx, se, false, err)
	}
	s.metricRecorder.RecordLockWait(ctx, s.name, time.Since(lockStart))

	runErr, releaseErr := s.runLocked(ctx, se)

	interrupted := false
	switch {
	case runErr == nil && se.IsTerminateOnly():
		se.MarkAsStopped()
		interrupted = true
	case runErr == nil:
		se.MarkAsCompleted()
	case exception.IsCancelledBy(ctx, runErr):
		se.MarkAsStopped()
		interrupted = true
	default:
		kind := exception.KindOf(runErr)
		if kind == exception.KindUnknown || kind == exception.KindCancelled {
			kind = exception.KindTasklet
		}
		logger.Errorf("Step '%s' (execution %s) failed: %v", s.name, se.ID, runErr)
		s.tracer.RecordError(ctx, string(kind), runErr)
		se.MarkAsFailed(kind, runErr)
	}

	if releaseErr != nil {
		logger.Errorf("Step '%s' (execution %s) could not release its lock: %v", s.name, se.ID, releaseErr)
		s.tracer.RecordError(ctx, "synchronizer", releaseErr)
		se.AddSecondaryFailure(exception.KindRelease, releaseErr)
	}
	return s.finish(ctx, se, interrupted, runErr)
}

// runLocked runs the step body while the lock is held and releases the lock on the way out,
// whether the body returns, fails or panics.
func (s *TaskletStep) runLocked(ctx context.Context, se *model.StepExecution) (runErr, releaseErr error) {
	defer func() {
		releaseErr = s.synchronizer.Release(se)
	}()
	defer func() {
		if r := recover(); r != nil {
			runErr = exception.NewBatchErrorf(s.name, exception.KindTasklet, "panic during step execution: %s", fmt.Sprint(r))
		}
	}()

	se.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, se); err != nil {
		if exception.IsCancelledBy(ctx, err) {
			return exception.NewCancelledError(s.name, err), nil
		}
		return exception.NewBatchError(s.name, exception.KindRepository, "failed to persist STARTED status", err), nil
	}
	s.metricRecorder.RecordStepStart(ctx, se)
	s.notifyBeforeStep(ctx, se)

	stream, isStream := s.tasklet.(port.ItemStream)
	if isStream {
		if err := stream.Open(ctx, se.ExecutionContext); err != nil {
			return err, nil
		}
		defer func() {
			if err := stream.Close(context.WithoutCancel(ctx)); err != nil {
				if runErr == nil {
					runErr = err
					return
				}
				logger.Warnf("Step '%s': failed to close streams after an earlier error: %v", s.name, err)
			}
		}()
	}

	_, runErr = s.stepOperations(se).Iterate(ctx, func(ctx context.Context, rc *port.RepeatContext) (port.RepeatStatus, error) {
		return s.tasklet.Execute(ctx, se)
	})
	return runErr, nil
}

func (s *TaskletStep) stepOperations(se *model.StepExecution) *repeat.RepeatTemplate {
	var policy port.CompletionPolicy = repeat.NewDefaultResultCompletionPolicy()
	if s.iterationLimit > 0 {
		policy = repeat.NewCompositeCompletionPolicy(policy, repeat.NewSimpleCompletionPolicy(s.iterationLimit))
	}
	return repeat.NewRepeatTemplate(
		repeat.WithCompletionPolicy(policy),
		repeat.WithInterruptionPolicy(repeat.NewStepInterruptionPolicy(se, s.jobRepository)),
	)
}

// finish persists the terminal status and turns an interruption into the error returned to the caller.
func (s *TaskletStep) finish(ctx context.Context, se *model.StepExecution, interrupted bool, cause error) error {
	s.notifyAfterStep(ctx, se)

	// The terminal status is persisted even when ctx was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.jobRepository.UpdateStepExecution(persistCtx, se); err != nil {
		logger.Errorf("Step '%s' (execution %s): failed to persist terminal status %s: %v", s.name, se.ID, se.Status, err)
	}
	s.metricRecorder.RecordStepEnd(persistCtx, se)
	logger.Infof("Step '%s' (execution %s) finished with status %s (read: %d, written: %d, commits: %d, rollbacks: %d).",
		s.name, se.ID, se.Status, se.ReadCount, se.WriteCount, se.CommitCount, se.RollbackCount)

	if !interrupted {
		return nil
	}
	s.metricRecorder.RecordInterruption(persistCtx, s.name)
	if cause == nil || !exception.IsCancellation(cause) {
		cause = exception.ErrCancelled
	}
	return exception.NewJobInterruptedError(s.name, se.Status.String(), cause)
}

func (s *TaskletStep) notifyBeforeStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, se)
	}
}

func (s *TaskletStep) notifyAfterStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.stepListeners {
		l.AfterStep(ctx, se)
	}
}

// transactionalTasklet runs each iteration of a plain tasklet in its own transaction.
type transactionalTasklet struct {
	delegate  port.Tasklet
	txManager tx.TransactionManager
}

func (t *transactionalTasklet) Execute(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
	handle, err := t.txManager.Begin(ctx)
	if err != nil {
		if exception.IsCancelledBy(ctx, err) {
			return port.RepeatStatusFinished, exception.NewCancelledError(se.StepName, err)
		}
		return port.RepeatStatusFinished, exception.NewBatchError(se.StepName, exception.KindTransaction, "failed to begin transaction", err)
	}

	defer func() {
		if r := recover(); r != nil {
			se.RollbackCount++
			_ = t.txManager.Rollback(handle)
			panic(r)
		}
	}()

	status, err := t.delegate.Execute(tx.WithTx(ctx, handle), se)
	if err == nil {
		if err = t.txManager.Commit(handle); err == nil {
			se.CommitCount++
			return status, nil
		}
		err = exception.NewBatchError(se.StepName, exception.KindTransaction, "failed to commit transaction", err)
	} else if exception.IsCancelledBy(ctx, err) {
		err = exception.NewCancelledError(se.StepName, err)
	} else if kind := exception.KindOf(err); kind == exception.KindUnknown || kind == exception.KindCancelled {
		err = exception.NewBatchError(se.StepName, exception.KindTasklet, "tasklet failed", err)
	}

	se.RollbackCount++
	if rbErr := t.txManager.Rollback(handle); rbErr != nil {
		err = exception.Append(err, exception.NewBatchError(se.StepName, exception.KindTransaction, "failed to roll back transaction", rbErr))
	}
	return port.RepeatStatusFinished, err
}

// Open forwards to the delegate when it is an item stream.
func (t *transactionalTasklet) Open(ctx context.Context, ec model.ExecutionContext) error {
	if s, ok := t.delegate.(port.ItemStream); ok {
		return s.Open(ctx, ec)
	}
	return nil
}

// Update forwards to the delegate when it is an item stream.
func (t *transactionalTasklet) Update(ctx context.Context, ec model.ExecutionContext) error {
	if s, ok := t.delegate.(port.ItemStream); ok {
		return s.Update(ctx, ec)
	}
	return nil
}

// Close forwards to the delegate when it is an item stream.
func (t *transactionalTasklet) Close(ctx context.Context) error {
	if s, ok := t.delegate.(port.ItemStream); ok {
		return s.Close(ctx)
	}
	return nil
}

// ErrStartLimitExceeded is returned by CheckStartLimit.
var ErrStartLimitExceeded = errors.New("step start limit exceeded")

// CheckStartLimit reports whether the step may start again after priorStarts earlier executions.
func (s *TaskletStep) CheckStartLimit(priorStarts int) error {
	if s.startLimit > 0 && priorStarts >= s.startLimit {
		return fmt.Errorf("step '%s' started %d time(s), limit %d: %w", s.name, priorStarts, s.startLimit, ErrStartLimitExceeded)
	}
	return nil
}

var _ port.Step = (*TaskletStep)(nil)
