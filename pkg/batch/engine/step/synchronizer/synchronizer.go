// Package synchronizer provides StepExecutionSynchronizer implementations.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// ErrLockNotHeld is returned by Release when the lock is held by another execution.
var ErrLockNotHeld = errors.New("lock is held by another step execution")

type lockKey struct {
	stepName       string
	jobExecutionID string
}

func keyOf(se *model.StepExecution) lockKey {
	return lockKey{stepName: se.StepName, jobExecutionID: se.JobExecutionID}
}

type keyedLock struct {
	sem    chan struct{}
	holder string
	// refs counts the holder and the waiters; the entry is dropped when it reaches zero.
	refs int
}

// KeyedSynchronizer lets one execution at a time run a given step of a given job execution.
// Waiting is cancellable through the context passed to Lock.
type KeyedSynchronizer struct {
	mu    sync.Mutex
	locks map[lockKey]*keyedLock
}

// NewKeyedSynchronizer creates a KeyedSynchronizer.
func NewKeyedSynchronizer() *KeyedSynchronizer {
	return &KeyedSynchronizer{locks: make(map[lockKey]*keyedLock)}
}

func (s *KeyedSynchronizer) lockFor(k lockKey) *keyedLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		s.locks[k] = l
	}
	l.refs++
	return l
}

func (s *KeyedSynchronizer) unref(k lockKey, l *keyedLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 && s.locks[k] == l {
		delete(s.locks, k)
	}
}

// Lock implements port.StepExecutionSynchronizer.
func (s *KeyedSynchronizer) Lock(ctx context.Context, se *model.StepExecution) error {
	if err := ctx.Err(); err != nil {
		return exception.NewCancelledError(se.StepName, err)
	}
	k := keyOf(se)
	l := s.lockFor(k)

	select {
	case l.sem <- struct{}{}:
		// select picks at random when both are ready; cancellation wins.
		if err := ctx.Err(); err != nil {
			<-l.sem
			s.unref(k, l)
			return exception.NewCancelledError(se.StepName, err)
		}
		s.mu.Lock()
		l.holder = se.ID
		s.mu.Unlock()
		logger.Debugf("Step '%s' (execution %s) acquired its lock.", se.StepName, se.ID)
		return nil
	case <-ctx.Done():
		s.unref(k, l)
		return exception.NewCancelledError(se.StepName, ctx.Err())
	}
}

// Release implements port.StepExecutionSynchronizer.
// Releasing a lock that is not held is a no-op.
func (s *KeyedSynchronizer) Release(se *model.StepExecution) error {
	k := keyOf(se)
	s.mu.Lock()
	l, ok := s.locks[k]
	if !ok || l.holder == "" {
		s.mu.Unlock()
		return nil
	}
	if l.holder != se.ID {
		holder := l.holder
		s.mu.Unlock()
		return fmt.Errorf("release of step '%s' by execution %s, held by %s: %w", se.StepName, se.ID, holder, ErrLockNotHeld)
	}
	l.holder = ""
	s.mu.Unlock()

	<-l.sem
	s.unref(k, l)
	logger.Debugf("Step '%s' (execution %s) released its lock.", se.StepName, se.ID)
	return nil
}

// IsLocked reports whether an execution currently holds the lock of se's step.
func (s *KeyedSynchronizer) IsLocked(se *model.StepExecution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[keyOf(se)]
	return ok && l.holder != ""
}

// NoOpSynchronizer never blocks. It suits deployments with a single executor per step.
type NoOpSynchronizer struct{}

// NewNoOpSynchronizer creates a NoOpSynchronizer.
func NewNoOpSynchronizer() *NoOpSynchronizer {
	return &NoOpSynchronizer{}
}

// Lock fails only when ctx is already cancelled.
func (s *NoOpSynchronizer) Lock(ctx context.Context, se *model.StepExecution) error {
	if err := ctx.Err(); err != nil {
		return exception.NewCancelledError(se.StepName, err)
	}
	return nil
}

// Release does nothing.
func (s *NoOpSynchronizer) Release(se *model.StepExecution) error {
	return nil
}

var (
	_ port.StepExecutionSynchronizer = (*KeyedSynchronizer)(nil)
	_ port.StepExecutionSynchronizer = (*NoOpSynchronizer)(nil)
)
