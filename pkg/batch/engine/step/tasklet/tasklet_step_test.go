package tasklet_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/engine/step/synchronizer"
	"github.com/tigerroll/stepguard/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/stepguard/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepguard/pkg/batch/test"
)

// itemsThenNil returns a reader yielding n items and then nil forever.
func itemsThenNil(n int) test.FuncReader[*string] {
	var count atomic.Int32
	return func(ctx context.Context) (*string, error) {
		if int(count.Add(1)) > n {
			return nil, nil
		}
		s := "item"
		return &s, nil
	}
}

// endlessItems returns a reader that never runs out of input.
func endlessItems() test.FuncReader[int] {
	var count atomic.Int32
	return func(ctx context.Context) (int, error) {
		return int(count.Add(1)), nil
	}
}

func newStep(t *testing.T, name string, opts ...tasklet.Option) *tasklet.TaskletStep {
	t.Helper()
	step, err := tasklet.NewTaskletStep(name, opts...)
	require.NoError(t, err)
	return step
}

func assertPersistedStatus(t *testing.T, repo *inmemory.InMemoryJobRepository, se *model.StepExecution, want model.BatchStatus) {
	t.Helper()
	stored, err := repo.FindStepExecutionByID(context.Background(), se.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Status)
}

func TestTaskletStep_InterruptStep(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "interruptStep")

	// CPU-bound reads that never look at the context.
	reader := test.FuncReader[int](func(ctx context.Context) (int, error) {
		deadline := time.Now().Add(5 * time.Millisecond)
		for time.Now().Before(deadline) {
		}
		return 1, nil
	})
	chunk, err := tasklet.NewChunkOrientedTasklet[int](reader, &test.RecordingWriter[int]{}, 2)
	require.NoError(t, err)
	txm := tx.NewResourcelessTransactionManager()
	step := newStep(t, "interruptStep",
		tasklet.WithSynchronizer(synchronizer.NewKeyedSynchronizer()),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- step.Execute(ctx, se) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, exception.ErrJobInterrupted)
	case <-time.After(20 * time.Second):
		t.Fatal("step did not stop within 20s of cancellation")
	}
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Equal(t, model.ExitStatusStopped, se.ExitStatus)
	assert.Empty(t, se.Failures, "cancellation is signalled, not recorded")
	assert.Equal(t, txm.Begins(), txm.Commits()+txm.Rollbacks(), "every chunk transaction ends")
	assert.EqualValues(t, se.CommitCount, txm.Commits())
	assertPersistedStatus(t, repo, se, model.BatchStatusStopped)
}

func TestTaskletStep_InterruptDuringLongReadRollsBackChunk(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "longRead")

	reader := test.FuncReader[int](func(ctx context.Context) (int, error) {
		deadline := time.Now().Add(5 * time.Millisecond)
		for time.Now().Before(deadline) {
		}
		return 1, nil
	})
	writer := &test.RecordingWriter[int]{}
	// The chunk cannot fill up before the cancellation arrives.
	chunk, err := tasklet.NewChunkOrientedTasklet[int](reader, writer, 100000)
	require.NoError(t, err)
	txm := tx.NewResourcelessTransactionManager()
	step := newStep(t, "longRead",
		tasklet.WithSynchronizer(synchronizer.NewKeyedSynchronizer()),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- step.Execute(ctx, se) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, exception.ErrJobInterrupted)
	case <-time.After(20 * time.Second):
		t.Fatal("step did not stop within 20s of cancellation")
	}
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.EqualValues(t, 1, txm.Begins())
	assert.EqualValues(t, 1, txm.Rollbacks())
	assert.Zero(t, txm.Commits())
	assert.Zero(t, se.CommitCount)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Zero(t, se.ReadCount, "items of a rolled back chunk are not counted")
	assert.Empty(t, writer.Chunks())
	assertPersistedStatus(t, repo, se, model.BatchStatusStopped)
}

func TestTaskletStep_CollaboratorTimeoutIsAFailure(t *testing.T) {
	timeout := fmt.Errorf("query timed out: %w", context.DeadlineExceeded)

	cases := []struct {
		name     string
		reader   test.FuncReader[*string]
		writer   *test.RecordingWriter[*string]
		lock     func(ctx context.Context, se *model.StepExecution) error
		wantKind exception.Kind
		released bool
	}{
		{
			name:     "reader",
			reader:   func(ctx context.Context) (*string, error) { return nil, timeout },
			wantKind: exception.KindReader,
			released: true,
		},
		{
			name:     "writer",
			reader:   itemsThenNil(3),
			writer:   &test.RecordingWriter[*string]{Err: timeout},
			wantKind: exception.KindWriter,
			released: true,
		},
		{
			name:     "synchronizer",
			reader:   itemsThenNil(3),
			lock:     func(ctx context.Context, se *model.StepExecution) error { return timeout },
			wantKind: exception.KindSynchronizer,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := inmemory.NewInMemoryJobRepository()
			se := test.NewSavedStepExecution(t, repo, "job", "slowSource")
			sync := &test.RecordingSynchronizer{OnLock: tc.lock}
			var writer port.ItemWriter[*string]
			if tc.writer != nil {
				writer = tc.writer
			}
			chunk, err := tasklet.NewChunkOrientedTasklet[*string](tc.reader, writer, 2)
			require.NoError(t, err)
			step := newStep(t, "slowSource",
				tasklet.WithSynchronizer(sync),
				tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
				tasklet.WithJobRepository(repo),
				tasklet.WithTasklet(chunk),
			)

			err = step.Execute(context.Background(), se)

			require.NoError(t, err, "a collaborator's own deadline is not an interruption")
			assert.Equal(t, model.BatchStatusFailed, se.Status)
			require.NotEmpty(t, se.Failures)
			assert.Equal(t, tc.wantKind, se.Failures[0].Kind)
			assert.Equal(t, timeout.Error(), se.Failures[0].Message)
			assert.Equal(t, tc.released, sync.ReleaseCount() == 1)
			assertPersistedStatus(t, repo, se, model.BatchStatusFailed)
		})
	}
}

func TestTaskletStep_PlainTaskletTimeoutIsAFailure(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "plain")
	step := newStep(t, "plain",
		tasklet.WithSynchronizer(synchronizer.NewNoOpSynchronizer()),
		tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
			return port.RepeatStatusFinished, fmt.Errorf("remote call: %w", context.DeadlineExceeded)
		})),
	)

	require.NoError(t, step.Execute(context.Background(), se))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	require.Len(t, se.Failures, 1)
	assert.Equal(t, exception.KindTasklet, se.Failures[0].Kind)
}

func TestTaskletStep_InterruptOnInterruptedException(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "interruptedStep")
	txm := tx.NewResourcelessTransactionManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sync := &test.RecordingSynchronizer{
		OnLock: func(ctx context.Context, se *model.StepExecution) error {
			cancel()
			return exception.NewCancelledError("synchronizer", ctx.Err())
		},
	}
	chunk, err := tasklet.NewChunkOrientedTasklet[*string](itemsThenNil(0), nil, 1)
	require.NoError(t, err)
	step := newStep(t, "interruptedStep",
		tasklet.WithSynchronizer(sync),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	err = step.Execute(ctx, se)

	assert.ErrorIs(t, err, exception.ErrJobInterrupted)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Equal(t, []string{"lock"}, sync.Events(), "release must not be called when the lock was never acquired")
	assert.Zero(t, txm.Begins())
	assertPersistedStatus(t, repo, se, model.BatchStatusStopped)
}

func TestTaskletStep_LockNotReleasedIfChunkFails(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "failingStep")
	sync := &test.RecordingSynchronizer{}
	mockTx := &test.MockTx{}
	txm := test.NewPermissiveTxManager(mockTx)

	reader := test.FuncReader[int](func(ctx context.Context) (int, error) {
		return 0, errors.New("Planned!")
	})
	chunk, err := tasklet.NewChunkOrientedTasklet[int](reader, &test.RecordingWriter[int]{}, 1)
	require.NoError(t, err)
	step := newStep(t, "failingStep",
		tasklet.WithSynchronizer(sync),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	err = step.Execute(context.Background(), se)

	require.NoError(t, err, "failures are recorded, not returned")
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	require.NotEmpty(t, se.Failures)
	assert.Equal(t, "Planned!", se.Failures[0].Message)
	assert.Equal(t, exception.KindReader, se.Failures[0].Kind)
	assert.Equal(t, []string{"lock", "acquired", "release"}, sync.Events())
	assert.Equal(t, 1, se.RollbackCount)
	txm.AssertCalled(t, "Rollback", mockTx)
	txm.AssertNotCalled(t, "Commit", mock.Anything)
	assertPersistedStatus(t, repo, se, model.BatchStatusFailed)
}

func TestTaskletStep_NormalCompletion(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "normalStep")
	txm := tx.NewResourcelessTransactionManager()
	writer := &test.RecordingWriter[*string]{}
	sync := &test.RecordingSynchronizer{}

	chunk, err := tasklet.NewChunkOrientedTasklet[*string](itemsThenNil(4), writer, 1)
	require.NoError(t, err)
	step := newStep(t, "normalStep",
		tasklet.WithSynchronizer(sync),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus)
	assert.Equal(t, 4, se.ReadCount)
	assert.Equal(t, 4, se.WriteCount)
	assert.Equal(t, 4, se.CommitCount)
	assert.Zero(t, se.RollbackCount)
	assert.Len(t, writer.Chunks(), 4)
	assert.EqualValues(t, 5, txm.Commits(), "the empty terminal chunk commits but is not counted")
	assert.Equal(t, 1, sync.ReleaseCount())
	assertPersistedStatus(t, repo, se, model.BatchStatusCompleted)
}

func TestTaskletStep_NormalCompletionSingleChunk(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "singleChunk")
	writer := &test.RecordingWriter[*string]{}

	chunk, err := tasklet.NewChunkOrientedTasklet[*string](itemsThenNil(4), writer, 10)
	require.NoError(t, err)
	step := newStep(t, "singleChunk",
		tasklet.WithSynchronizer(synchronizer.NewNoOpSynchronizer()),
		tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 4, se.ReadCount)
	assert.Equal(t, 1, se.CommitCount)
	require.Len(t, writer.Chunks(), 1)
	assert.Len(t, writer.Chunks()[0], 4)
}

func TestTaskletStep_CancellationFlagOnly(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "flagStep")
	mockTx := &test.MockTx{}
	txm := &test.MockTxManager{}
	txm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil)
	// The operator flips the flag right after the first chunk commits.
	txm.On("Commit", mockTx).Run(func(args mock.Arguments) { se.SetTerminateOnly() }).Return(nil).Once()
	txm.On("Commit", mockTx).Return(nil)
	txm.On("Rollback", mockTx).Return(nil)

	writer := &test.RecordingWriter[int]{}
	chunk, err := tasklet.NewChunkOrientedTasklet[int](endlessItems(), writer, 2)
	require.NoError(t, err)
	step := newStep(t, "flagStep",
		tasklet.WithSynchronizer(synchronizer.NewKeyedSynchronizer()),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	err = step.Execute(context.Background(), se)

	assert.ErrorIs(t, err, exception.ErrJobInterrupted)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 2, se.ReadCount)
	assert.Empty(t, se.Failures)
	txm.AssertNumberOfCalls(t, "Commit", 1)
	assert.Equal(t, [][]int{{1, 2}}, writer.Chunks())
	assertPersistedStatus(t, repo, se, model.BatchStatusStopped)
}

func TestTaskletStep_StopRequestedThroughRepositoryBeforeCommit(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "repoStop")
	txm := tx.NewResourcelessTransactionManager()

	var reads atomic.Int32
	reader := test.FuncReader[int](func(ctx context.Context) (int, error) {
		if reads.Add(1) == 1 {
			require.NoError(t, repo.RequestStop(context.Background(), se.ID))
		}
		return 1, nil
	})
	chunk, err := tasklet.NewChunkOrientedTasklet[int](reader, &test.RecordingWriter[int]{}, 5)
	require.NoError(t, err)
	step := newStep(t, "repoStop",
		tasklet.WithSynchronizer(synchronizer.NewKeyedSynchronizer()),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	err = step.Execute(context.Background(), se)

	assert.ErrorIs(t, err, exception.ErrJobInterrupted)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Zero(t, se.CommitCount, "a stop requested before any commit leaves nothing committed")
	assert.Zero(t, txm.Commits())
	assert.EqualValues(t, 1, txm.Rollbacks())
	assert.Equal(t, 1, se.RollbackCount)

	stored, err := repo.FindStepExecutionByID(context.Background(), se.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminateOnly(), "the persisted stop request survives the executor's updates")
}

func TestTaskletStep_InterruptBeforeAcquire(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "earlyStop")
	txm := tx.NewResourcelessTransactionManager()
	sync := synchronizer.NewKeyedSynchronizer()

	chunk, err := tasklet.NewChunkOrientedTasklet[int](endlessItems(), nil, 1)
	require.NoError(t, err)
	step := newStep(t, "earlyStop",
		tasklet.WithSynchronizer(sync),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = step.Execute(ctx, se)

	var interrupted *exception.JobInterruptedError
	require.ErrorAs(t, err, &interrupted)
	assert.Equal(t, "earlyStop", interrupted.StepName)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Zero(t, txm.Begins(), "no transaction is begun when interrupted before acquiring the lock")
	assert.False(t, sync.IsLocked(se))
	assertPersistedStatus(t, repo, se, model.BatchStatusStopped)
}

func TestTaskletStep_SynchronizerFailure(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "lockFails")
	sync := &test.MockSynchronizer{}
	sync.On("Lock", mock.Anything, se).Return(errors.New("lock service unavailable"))

	step := newStep(t, "lockFails",
		tasklet.WithSynchronizer(sync),
		tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
			t.Fatal("tasklet must not run without the lock")
			return port.RepeatStatusFinished, nil
		})),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusFailed, se.Status)
	require.Len(t, se.Failures, 1)
	assert.Equal(t, exception.KindSynchronizer, se.Failures[0].Kind)
	assert.Equal(t, "lock service unavailable", se.Failures[0].Message)
	sync.AssertNotCalled(t, "Release", mock.Anything)
}

func TestTaskletStep_ReleaseFailureKeepsPrimaryStatus(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "releaseFails")
	sync := &test.RecordingSynchronizer{ReleaseErr: errors.New("release boom")}

	chunk, err := tasklet.NewChunkOrientedTasklet[*string](itemsThenNil(2), &test.RecordingWriter[*string]{}, 1)
	require.NoError(t, err)
	step := newStep(t, "releaseFails",
		tasklet.WithSynchronizer(sync),
		tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	require.Len(t, se.Failures, 1)
	assert.True(t, se.Failures[0].Secondary)
	assert.Equal(t, exception.KindRelease, se.Failures[0].Kind)
	assert.Empty(t, se.Failures.Primary())
	assert.Equal(t, 1, sync.ReleaseCount())
}

func TestTaskletStep_PanicIsRecordedAndLockReleased(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "panics")
	sync := &test.RecordingSynchronizer{}
	txm := tx.NewResourcelessTransactionManager()

	step := newStep(t, "panics",
		tasklet.WithSynchronizer(sync),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
			panic("unexpected state")
		})),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusFailed, se.Status)
	require.NotEmpty(t, se.Failures)
	assert.Equal(t, exception.KindTasklet, se.Failures[0].Kind)
	assert.Contains(t, se.Failures[0].Message, "unexpected state")
	assert.Equal(t, 1, sync.ReleaseCount())
	assert.EqualValues(t, 1, txm.Rollbacks())
	assertPersistedStatus(t, repo, se, model.BatchStatusFailed)
}

func TestTaskletStep_WriterFailureWithRollbackFailure(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "writerFails")
	mockTx := &test.MockTx{}
	txm := &test.MockTxManager{}
	txm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil)
	txm.On("Rollback", mockTx).Return(errors.New("connection lost"))

	chunk, err := tasklet.NewChunkOrientedTasklet[int](endlessItems(), &test.RecordingWriter[int]{Err: errors.New("disk full")}, 3)
	require.NoError(t, err)
	step := newStep(t, "writerFails",
		tasklet.WithSynchronizer(synchronizer.NewKeyedSynchronizer()),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusFailed, se.Status)
	require.NotEmpty(t, se.Failures)
	assert.Equal(t, exception.KindWriter, se.Failures[0].Kind)
	assert.Equal(t, "disk full", se.Failures[0].Message)
	assert.Contains(t, se.Failures[0].Causes, "failed to roll back chunk transaction")
	assert.Zero(t, se.CommitCount)
	txm.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestTaskletStep_PlainTaskletRunsInTransactions(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "plain")
	txm := tx.NewResourcelessTransactionManager()

	calls := 0
	step := newStep(t, "plain",
		tasklet.WithSynchronizer(synchronizer.NewNoOpSynchronizer()),
		tasklet.WithTransactionManager(txm),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
			_, ok := tx.FromContext(ctx)
			assert.True(t, ok, "the iteration transaction is on the context")
			calls++
			if calls == 3 {
				return port.RepeatStatusFinished, nil
			}
			return port.RepeatStatusContinuable, nil
		})),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, se.CommitCount)
	assert.EqualValues(t, 3, txm.Commits())
}

func TestTaskletStep_IterationLimit(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	se := test.NewSavedStepExecution(t, repo, "job", "limited")

	chunk, err := tasklet.NewChunkOrientedTasklet[int](endlessItems(), &test.RecordingWriter[int]{}, 2)
	require.NoError(t, err)
	step := newStep(t, "limited",
		tasklet.WithSynchronizer(synchronizer.NewKeyedSynchronizer()),
		tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
		tasklet.WithJobRepository(repo),
		tasklet.WithTasklet(chunk),
		tasklet.WithIterationLimit(3),
	)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 3, se.CommitCount)
	assert.Equal(t, 6, se.ReadCount)
}

func TestTaskletStep_ContendedStepWaitsForRelease(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	sync := synchronizer.NewKeyedSynchronizer()
	je := test.NewTestJobExecution("job")
	require.NoError(t, repo.SaveJobExecution(context.Background(), je))
	first := test.NewTestStepExecution(je, "shared")
	second := test.NewTestStepExecution(je, "shared")
	require.NoError(t, repo.SaveStepExecution(context.Background(), first))
	require.NoError(t, repo.SaveStepExecution(context.Background(), second))

	var running atomic.Int32
	var overlap atomic.Bool
	work := port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return port.RepeatStatusFinished, nil
	})
	build := func() *tasklet.TaskletStep {
		return newStep(t, "shared",
			tasklet.WithSynchronizer(sync),
			tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
			tasklet.WithJobRepository(repo),
			tasklet.WithTasklet(work),
		)
	}

	stepA, stepB := build(), build()
	done := make(chan error, 2)
	go func() { done <- stepA.Execute(context.Background(), first) }()
	go func() { done <- stepB.Execute(context.Background(), second) }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	assert.False(t, overlap.Load(), "executions of the same step must not overlap")
	assert.Equal(t, model.BatchStatusCompleted, first.Status)
	assert.Equal(t, model.BatchStatusCompleted, second.Status)
}

func TestNewTaskletStep_RequiresCollaborators(t *testing.T) {
	_, err := tasklet.NewTaskletStep("incomplete", tasklet.WithJobRepository(inmemory.NewInMemoryJobRepository()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synchronizer")
	assert.Contains(t, err.Error(), "transaction manager")
	assert.Contains(t, err.Error(), "tasklet")
	assert.NotContains(t, err.Error(), "job repository")
}

func TestTaskletStep_PassThroughAccessors(t *testing.T) {
	step := newStep(t, "accessors",
		tasklet.WithSynchronizer(synchronizer.NewNoOpSynchronizer()),
		tasklet.WithTransactionManager(tx.NewResourcelessTransactionManager()),
		tasklet.WithJobRepository(inmemory.NewInMemoryJobRepository()),
		tasklet.WithTasklet(port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) (port.RepeatStatus, error) {
			return port.RepeatStatusFinished, nil
		})),
		tasklet.WithAllowStartIfComplete(true),
		tasklet.WithStartLimit(3),
	)

	assert.Equal(t, "accessors", step.StepName())
	assert.True(t, step.IsAllowStartIfComplete())
	assert.Equal(t, 3, step.StartLimit())
	assert.NoError(t, step.CheckStartLimit(2))
	assert.ErrorIs(t, step.CheckStartLimit(3), tasklet.ErrStartLimitExceeded)
}
