// Package exception provides the error types shared by the stepguard batch packages.
// Errors raised while a step runs are classified by Kind so that the step executor can decide
// between a FAILED status with a recorded failure and a STOPPED status with an interruption signal.
package exception

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies where a batch failure originated.
type Kind string

const (
	KindCancelled    Kind = "CANCELLED"
	KindReader       Kind = "READER"
	KindWriter       Kind = "WRITER"
	KindTransaction  Kind = "TRANSACTION"
	KindSynchronizer Kind = "SYNCHRONIZER"
	KindRelease      Kind = "RELEASE"
	KindRepository   Kind = "REPOSITORY"
	KindTasklet      Kind = "TASKLET"
	KindConfig       Kind = "CONFIG"
	KindUnknown      Kind = "UNKNOWN"
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// ErrCancelled is returned by blocking operations that observed a cancellation request
// (context cancellation or a terminate-only flag) instead of completing their work.
var ErrCancelled = errors.New("cancelled")

// ErrJobInterrupted is the sentinel matched by every JobInterruptedError.
var ErrJobInterrupted = errors.New("job interrupted")

// BatchError is a custom error type that occurs during batch processing.
// It holds the module where the error occurred, its kind, a message and the wrapped original error.
type BatchError struct {
	// Module indicates the component where the error occurred (usually the step name).
	Module string
	// Kind classifies the failure.
	Kind Kind
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBatchError creates a new BatchError instance.
func NewBatchError(module string, kind Kind, message string, originalErr error) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchErrorf creates a new BatchError using a format string.
// If the last argument is an error it becomes the wrapped error and is not used for formatting.
func NewBatchErrorf(module string, kind Kind, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, kind, fmt.Sprintf(format, a...), originalErr)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// JobInterruptedError is the only error a step executor returns to its caller.
// It tells the orchestrator that an operator stopped the step, as opposed to the work failing.
type JobInterruptedError struct {
	StepName string
	Status   string
	Cause    error
}

// NewJobInterruptedError creates a JobInterruptedError for the named step.
func NewJobInterruptedError(stepName, status string, cause error) *JobInterruptedError {
	return &JobInterruptedError{StepName: stepName, Status: status, Cause: cause}
}

// Error implements the error interface.
func (e *JobInterruptedError) Error() string {
	return fmt.Sprintf("step '%s' interrupted (status: %s)", e.StepName, e.Status)
}

// Is reports ErrJobInterrupted as a match.
func (e *JobInterruptedError) Is(target error) bool {
	return target == ErrJobInterrupted
}

// Unwrap returns the cancellation cause.
func (e *JobInterruptedError) Unwrap() error {
	return e.Cause
}

// IsJobInterrupted reports whether err signals an interrupted step.
func IsJobInterrupted(err error) bool {
	return errors.Is(err, ErrJobInterrupted)
}

// IsCancellation reports whether err represents a cancellation request rather than a failure.
// Only the primary error of a joined error is considered.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if merr, ok := err.(*multierror.Error); ok && len(merr.Errors) > 0 {
		return IsCancellation(merr.Errors[0])
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var be *BatchError
	return errors.As(err, &be) && be.Kind == KindCancelled
}

// IsCancelledBy reports whether err, returned by a collaborator running under ctx, is a cancellation
// of ctx rather than a failure of the collaborator. An explicit ErrCancelled always counts. A wrapped
// context.Canceled or context.DeadlineExceeded counts only once ctx itself is done, so a collaborator's
// own timeout (a query deadline, a lock-service timeout) stays a failure.
func IsCancelledBy(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if merr, ok := err.(*multierror.Error); ok && len(merr.Errors) > 0 {
		return IsCancelledBy(ctx, merr.Errors[0])
	}
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var be *BatchError
	if errors.As(err, &be) && be.Kind == KindCancelled {
		return true
	}
	return ctx.Err() != nil && IsCancellation(err)
}

// NewCancelledError wraps the cause of a cancellation so that it matches ErrCancelled.
func NewCancelledError(module string, cause error) *BatchError {
	if cause == nil || errors.Is(cause, ErrCancelled) {
		return NewBatchError(module, KindCancelled, "cancellation requested", ErrCancelled)
	}
	return NewBatchError(module, KindCancelled, "cancellation requested", errors.Join(ErrCancelled, cause))
}

// KindOf returns the kind of the outermost BatchError in the chain. Errors without one are
// KindCancelled when they are cancellations and KindUnknown otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if merr, ok := err.(*multierror.Error); ok && len(merr.Errors) > 0 {
		return KindOf(merr.Errors[0])
	}
	var be *BatchError
	if errors.As(err, &be) && be.Kind != "" {
		return be.Kind
	}
	if IsCancellation(err) {
		return KindCancelled
	}
	return KindUnknown
}

// ExtractErrorMessage returns the message that best describes err for a failure record.
// BatchErrors are unwrapped down to the error that caused them, so the message recorded for a
// reader that returned errors.New("Planned!") is exactly "Planned!".
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if merr, ok := err.(*multierror.Error); ok && len(merr.Errors) > 0 {
		return ExtractErrorMessage(merr.Errors[0])
	}
	if be, ok := err.(*BatchError); ok {
		if be.OriginalErr != nil {
			return ExtractErrorMessage(be.OriginalErr)
		}
		return be.Message
	}
	return err.Error()
}

// CauseChain returns the messages of every error wrapped below err, outermost first.
// Joined errors contribute every branch.
func CauseChain(err error) []string {
	var chain []string
	var walk func(error)
	walk = func(e error) {
		for e != nil {
			switch x := e.(type) {
			case *multierror.Error:
				for _, inner := range x.Errors {
					walk(inner)
				}
				return
			case interface{ Unwrap() []error }:
				for _, inner := range x.Unwrap() {
					walk(inner)
				}
				return
			}
			if be, ok := e.(*BatchError); ok {
				chain = append(chain, be.Message)
			} else {
				chain = append(chain, e.Error())
			}
			e = errors.Unwrap(e)
		}
	}
	walk(err)
	return chain
}

// Append joins a secondary error onto a primary one without losing either.
// The result keeps the primary error first so that KindOf and ExtractErrorMessage still describe it.
func Append(primary error, secondary ...error) error {
	var rest []error
	for _, err := range secondary {
		if err != nil {
			rest = append(rest, err)
		}
	}
	if len(rest) == 0 {
		return primary
	}
	if primary == nil {
		if len(rest) == 1 {
			return rest[0]
		}
		return multierror.Append(rest[0], rest[1:]...)
	}
	merr := multierror.Append(primary, rest...)
	merr.ErrorFormat = func(errs []error) string {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return strings.Join(msgs, "; ")
	}
	return merr
}
