package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
)

func TestNewBatchErrorf_TrailingErrorIsWrapped(t *testing.T) {
	cause := errors.New("disk full")
	err := exception.NewBatchErrorf("writer", exception.KindWriter, "chunk %d failed", 3, cause)

	assert.Equal(t, "chunk 3 failed", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[writer] chunk 3 failed: disk full", err.Error())
	assert.Equal(t, exception.KindWriter, exception.KindOf(err))
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, exception.IsCancellation(context.Canceled))
	assert.True(t, exception.IsCancellation(fmt.Errorf("read: %w", context.DeadlineExceeded)))
	assert.True(t, exception.IsCancellation(exception.NewCancelledError("step", nil)))
	assert.True(t, exception.IsCancellation(exception.NewBatchError("step", exception.KindCancelled, "stop", nil)))
	assert.False(t, exception.IsCancellation(errors.New("boom")))
	assert.False(t, exception.IsCancellation(nil))
}

func TestNewCancelledError_KeepsCause(t *testing.T) {
	err := exception.NewCancelledError("reader", context.Canceled)
	assert.ErrorIs(t, err, exception.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, exception.KindCancelled, exception.KindOf(err))
}

func TestJobInterruptedError(t *testing.T) {
	err := exception.NewJobInterruptedError("step", "STOPPED", exception.ErrCancelled)
	var wrapped error = fmt.Errorf("launcher: %w", err)

	assert.True(t, exception.IsJobInterrupted(wrapped))
	assert.ErrorIs(t, wrapped, exception.ErrCancelled)
	assert.Equal(t, "step 'step' interrupted (status: STOPPED)", err.Error())
	assert.False(t, exception.IsJobInterrupted(errors.New("boom")))
}

func TestAppend_PrimaryStaysFirst(t *testing.T) {
	primary := exception.NewBatchError("reader", exception.KindReader, "read failed", errors.New("Planned!"))
	release := exception.NewBatchError("sync", exception.KindRelease, "unlock failed", nil)

	err := exception.Append(primary, nil, release)
	require.Error(t, err)
	assert.Equal(t, exception.KindReader, exception.KindOf(err))
	assert.Equal(t, "Planned!", exception.ExtractErrorMessage(err))
	assert.Contains(t, err.Error(), "unlock failed")

	assert.Same(t, primary, exception.Append(primary))
	assert.Equal(t, exception.KindRelease, exception.KindOf(exception.Append(nil, release)))
}

func TestAppend_CancellationFirstIsCancellation(t *testing.T) {
	err := exception.Append(exception.NewCancelledError("step", nil), errors.New("rollback failed"))
	assert.True(t, exception.IsCancellation(err))

	err = exception.Append(errors.New("rollback failed"), exception.NewCancelledError("step", nil))
	assert.False(t, exception.IsCancellation(err))
}

func TestCauseChain(t *testing.T) {
	err := exception.NewBatchError("step", exception.KindTasklet, "chunk failed",
		exception.NewBatchError("writer", exception.KindWriter, "insert failed", errors.New("constraint")))
	assert.Equal(t, []string{"chunk failed", "insert failed", "constraint"}, exception.CauseChain(err))
	assert.Equal(t, exception.KindUnknown, exception.KindOf(errors.New("plain")))
}

func TestIsCancelledBy_OnlyWhenContextIsDone(t *testing.T) {
	timeout := fmt.Errorf("query timed out: %w", context.DeadlineExceeded)

	live := context.Background()
	assert.False(t, exception.IsCancelledBy(live, timeout), "a collaborator's own deadline is a failure")
	assert.False(t, exception.IsCancelledBy(live, context.Canceled))
	assert.False(t, exception.IsCancelledBy(live, nil))
	assert.True(t, exception.IsCancelledBy(live, exception.ErrCancelled))
	assert.True(t, exception.IsCancelledBy(live, exception.NewCancelledError("step", nil)))

	done, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, exception.IsCancelledBy(done, timeout))
	assert.True(t, exception.IsCancelledBy(done, fmt.Errorf("read: %w", context.Canceled)))
	assert.False(t, exception.IsCancelledBy(done, errors.New("boom")))
}

func TestKindOf_PrefersBatchErrorKind(t *testing.T) {
	timeout := fmt.Errorf("query timed out: %w", context.DeadlineExceeded)
	assert.Equal(t, exception.KindReader, exception.KindOf(exception.NewBatchError("step", exception.KindReader, "read failed", timeout)))
	assert.Equal(t, exception.KindCancelled, exception.KindOf(timeout))
}
