// Package repeat provides the loop driver used at both levels of a chunk step:
// the step loop that runs the tasklet until it is finished, and the chunk loop that reads items.
package repeat

import (
	"context"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
)

type repeatContextKey struct{}

// withRepeatContext stores rc so that loops started inside the callback nest under it.
func withRepeatContext(ctx context.Context, rc *port.RepeatContext) context.Context {
	return context.WithValue(ctx, repeatContextKey{}, rc)
}

// CurrentContext returns the innermost RepeatContext active on ctx, or nil.
func CurrentContext(ctx context.Context) *port.RepeatContext {
	rc, _ := ctx.Value(repeatContextKey{}).(*port.RepeatContext)
	return rc
}

// RepeatTemplate runs a callback serially until its completion policy is satisfied, the callback
// reports FINISHED, an interruption is detected or the callback fails.
type RepeatTemplate struct {
	completionPolicy   port.CompletionPolicy
	interruptionPolicy InterruptionPolicy
}

// Option configures a RepeatTemplate.
type Option func(*RepeatTemplate)

// WithCompletionPolicy sets the completion policy. The default completes on FINISHED only.
func WithCompletionPolicy(p port.CompletionPolicy) Option {
	return func(t *RepeatTemplate) {
		if p != nil {
			t.completionPolicy = p
		}
	}
}

// WithInterruptionPolicy sets the check run before every callback. The default observes ctx only.
func WithInterruptionPolicy(p InterruptionPolicy) Option {
	return func(t *RepeatTemplate) {
		if p != nil {
			t.interruptionPolicy = p
		}
	}
}

// NewRepeatTemplate creates a RepeatTemplate.
func NewRepeatTemplate(opts ...Option) *RepeatTemplate {
	t := &RepeatTemplate{
		completionPolicy:   NewDefaultResultCompletionPolicy(),
		interruptionPolicy: NewContextInterruptionPolicy(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Iterate runs callback until the loop is complete.
//
// The interruption policy is consulted before every callback, including the first. When it reports
// an interruption Iterate returns FINISHED together with an error matching exception.ErrCancelled.
// A callback error ends the loop and is returned unchanged.
func (t *RepeatTemplate) Iterate(ctx context.Context, callback port.RepeatCallback) (port.RepeatStatus, error) {
	rc := t.completionPolicy.Start(CurrentContext(ctx))
	ctx = withRepeatContext(ctx, rc)

	result := port.RepeatStatusContinuable
	for {
		if err := t.interruptionPolicy.CheckInterrupted(ctx, rc); err != nil {
			return port.RepeatStatusFinished, err
		}
		if rc.IsCompleteOnly() || t.completionPolicy.IsComplete(rc, nil) {
			return result, nil
		}

		rc.Increment()
		status, err := callback(ctx, rc)
		if err != nil {
			return port.RepeatStatusFinished, err
		}
		t.completionPolicy.Update(rc)
		result = status

		if !status.IsContinuable() || t.completionPolicy.IsComplete(rc, &status) {
			return status, nil
		}
	}
}

var _ port.RepeatOperations = (*RepeatTemplate)(nil)
