// Package listener holds step listeners that are not tied to a particular backend.
package listener

import (
	"context"
	"sync"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// StepCompletionSignaler closes Done when a step reaches its terminal status,
// signaling completion to components that do not own the step's goroutine.
type StepCompletionSignaler struct {
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	status model.BatchStatus
}

// NewStepCompletionSignaler creates a signaler with an open Done channel.
func NewStepCompletionSignaler() *StepCompletionSignaler {
	return &StepCompletionSignaler{done: make(chan struct{})}
}

// Done is closed after the first AfterStep.
func (l *StepCompletionSignaler) Done() <-chan struct{} {
	return l.done
}

// Status returns the terminal status seen by AfterStep, or "" before it ran.
func (l *StepCompletionSignaler) Status() model.BatchStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// BeforeStep does nothing.
func (l *StepCompletionSignaler) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {}

// AfterStep records the status and closes Done once.
func (l *StepCompletionSignaler) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.mu.Lock()
	l.status = stepExecution.Status
	l.mu.Unlock()
	l.once.Do(func() {
		logger.Infof("StepCompletionSignaler: Step '%s' (ID: %s) ended with %s. Closing Done.",
			stepExecution.StepName, stepExecution.ID, stepExecution.Status)
		close(l.done)
	})
}

var _ port.StepExecutionListener = (*StepCompletionSignaler)(nil)
