package repeat

import (
	"fmt"
	"time"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
)

// DefaultResultCompletionPolicy completes when a callback reports FINISHED.
type DefaultResultCompletionPolicy struct{}

// NewDefaultResultCompletionPolicy creates a DefaultResultCompletionPolicy.
func NewDefaultResultCompletionPolicy() *DefaultResultCompletionPolicy {
	return &DefaultResultCompletionPolicy{}
}

func (p *DefaultResultCompletionPolicy) Start(parent *port.RepeatContext) *port.RepeatContext {
	return port.NewRepeatContext(parent)
}

func (p *DefaultResultCompletionPolicy) IsComplete(rc *port.RepeatContext, result *port.RepeatStatus) bool {
	return result != nil && !result.IsContinuable()
}

func (p *DefaultResultCompletionPolicy) Update(rc *port.RepeatContext) {}

// SimpleCompletionPolicy completes after a fixed number of callbacks, or earlier on FINISHED.
// It is the chunk size policy of a chunk step.
type SimpleCompletionPolicy struct {
	chunkSize int
}

// NewSimpleCompletionPolicy creates a SimpleCompletionPolicy. Sizes below 1 are treated as 1.
func NewSimpleCompletionPolicy(chunkSize int) *SimpleCompletionPolicy {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &SimpleCompletionPolicy{chunkSize: chunkSize}
}

// ChunkSize returns the number of callbacks per loop.
func (p *SimpleCompletionPolicy) ChunkSize() int { return p.chunkSize }

func (p *SimpleCompletionPolicy) Start(parent *port.RepeatContext) *port.RepeatContext {
	return port.NewRepeatContext(parent)
}

func (p *SimpleCompletionPolicy) IsComplete(rc *port.RepeatContext, result *port.RepeatStatus) bool {
	if result != nil && !result.IsContinuable() {
		return true
	}
	return rc.StartedCount() >= p.chunkSize
}

func (p *SimpleCompletionPolicy) Update(rc *port.RepeatContext) {}

// TimeoutTerminationPolicy completes once the loop has run for longer than a timeout.
// The callback in progress is never cut short.
type TimeoutTerminationPolicy struct {
	timeout time.Duration
	now     func() time.Time
}

// NewTimeoutTerminationPolicy creates a TimeoutTerminationPolicy.
func NewTimeoutTerminationPolicy(timeout time.Duration) *TimeoutTerminationPolicy {
	return &TimeoutTerminationPolicy{timeout: timeout, now: time.Now}
}

func (p *TimeoutTerminationPolicy) key() string {
	return fmt.Sprintf("repeat.timeout.start.%p", p)
}

func (p *TimeoutTerminationPolicy) Start(parent *port.RepeatContext) *port.RepeatContext {
	rc := port.NewRepeatContext(parent)
	rc.SetAttribute(p.key(), p.now())
	return rc
}

func (p *TimeoutTerminationPolicy) IsComplete(rc *port.RepeatContext, result *port.RepeatStatus) bool {
	if result != nil && !result.IsContinuable() {
		return true
	}
	v, ok := rc.Attribute(p.key())
	if !ok {
		return false
	}
	return p.now().Sub(v.(time.Time)) >= p.timeout
}

func (p *TimeoutTerminationPolicy) Update(rc *port.RepeatContext) {}

// CompositeCompletionPolicy completes as soon as any of its policies is complete.
type CompositeCompletionPolicy struct {
	policies []port.CompletionPolicy
}

// NewCompositeCompletionPolicy creates a CompositeCompletionPolicy.
func NewCompositeCompletionPolicy(policies ...port.CompletionPolicy) *CompositeCompletionPolicy {
	return &CompositeCompletionPolicy{policies: policies}
}

func (p *CompositeCompletionPolicy) key() string {
	return fmt.Sprintf("repeat.composite.children.%p", p)
}

// Start creates one child context per policy and keeps them on the returned context.
func (p *CompositeCompletionPolicy) Start(parent *port.RepeatContext) *port.RepeatContext {
	rc := port.NewRepeatContext(parent)
	children := make([]*port.RepeatContext, len(p.policies))
	for i, policy := range p.policies {
		children[i] = policy.Start(parent)
	}
	rc.SetAttribute(p.key(), children)
	return rc
}

func (p *CompositeCompletionPolicy) children(rc *port.RepeatContext) []*port.RepeatContext {
	v, ok := rc.Attribute(p.key())
	if !ok {
		return nil
	}
	return v.([]*port.RepeatContext)
}

func (p *CompositeCompletionPolicy) IsComplete(rc *port.RepeatContext, result *port.RepeatStatus) bool {
	children := p.children(rc)
	for i, policy := range p.policies {
		if i < len(children) && policy.IsComplete(children[i], result) {
			return true
		}
	}
	return false
}

// Update advances every child context by one callback.
func (p *CompositeCompletionPolicy) Update(rc *port.RepeatContext) {
	children := p.children(rc)
	for i, policy := range p.policies {
		if i < len(children) {
			children[i].Increment()
			policy.Update(children[i])
		}
	}
}

var (
	_ port.CompletionPolicy = (*DefaultResultCompletionPolicy)(nil)
	_ port.CompletionPolicy = (*SimpleCompletionPolicy)(nil)
	_ port.CompletionPolicy = (*TimeoutTerminationPolicy)(nil)
	_ port.CompletionPolicy = (*CompositeCompletionPolicy)(nil)
)
