package test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// MockSynchronizer is a mock implementation of port.StepExecutionSynchronizer.
type MockSynchronizer struct {
	mock.Mock
}

// Lock mocks the Lock method.
func (m *MockSynchronizer) Lock(ctx context.Context, se *model.StepExecution) error {
	args := m.Called(ctx, se)
	return args.Error(0)
}

// Release mocks the Release method.
func (m *MockSynchronizer) Release(se *model.StepExecution) error {
	args := m.Called(se)
	return args.Error(0)
}

// RecordingSynchronizer never blocks and records the order of Lock and Release calls.
// OnLock, when set, replaces the default behaviour of Lock.
type RecordingSynchronizer struct {
	OnLock     func(ctx context.Context, se *model.StepExecution) error
	ReleaseErr error

	mu     sync.Mutex
	events []string
}

// Lock records "lock" and, when it succeeds, "acquired".
func (s *RecordingSynchronizer) Lock(ctx context.Context, se *model.StepExecution) error {
	s.record("lock")
	if s.OnLock != nil {
		if err := s.OnLock(ctx, se); err != nil {
			return err
		}
	}
	s.record("acquired")
	return nil
}

// Release records "release".
func (s *RecordingSynchronizer) Release(se *model.StepExecution) error {
	s.record("release")
	return s.ReleaseErr
}

func (s *RecordingSynchronizer) record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns the recorded calls in order.
func (s *RecordingSynchronizer) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// ReleaseCount returns how many times Release was called.
func (s *RecordingSynchronizer) ReleaseCount() int {
	n := 0
	for _, e := range s.Events() {
		if e == "release" {
			n++
		}
	}
	return n
}

var (
	_ port.StepExecutionSynchronizer = (*MockSynchronizer)(nil)
	_ port.StepExecutionSynchronizer = (*RecordingSynchronizer)(nil)
)
