package port

import (
	"context"
	"sync"
)

// RepeatStatus is the result of one repeat callback.
type RepeatStatus int

const (
	// RepeatStatusContinuable means there may be more work to do.
	RepeatStatusContinuable RepeatStatus = iota
	// RepeatStatusFinished means the work is exhausted.
	RepeatStatusFinished
)

// String returns the string representation of the RepeatStatus.
func (s RepeatStatus) String() string {
	if s == RepeatStatusFinished {
		return "FINISHED"
	}
	return "CONTINUABLE"
}

// IsContinuable reports whether s is CONTINUABLE.
func (s RepeatStatus) IsContinuable() bool {
	return s == RepeatStatusContinuable
}

// And combines two statuses; the result is CONTINUABLE only if both are.
func (s RepeatStatus) And(other RepeatStatus) RepeatStatus {
	if s.IsContinuable() && other.IsContinuable() {
		return RepeatStatusContinuable
	}
	return RepeatStatusFinished
}

// RepeatContext is the state of one repeat loop. Nested loops link to their parent.
type RepeatContext struct {
	parent       *RepeatContext
	startedCount int
	completeOnly bool
	mu           sync.Mutex
	attributes   map[string]interface{}
}

// NewRepeatContext creates a RepeatContext nested in parent, which may be nil.
func NewRepeatContext(parent *RepeatContext) *RepeatContext {
	return &RepeatContext{parent: parent, attributes: make(map[string]interface{})}
}

// Parent returns the enclosing context, or nil for an outermost loop.
func (rc *RepeatContext) Parent() *RepeatContext { return rc.parent }

// StartedCount returns how many callbacks have been started.
func (rc *RepeatContext) StartedCount() int { return rc.startedCount }

// Increment counts one more started callback.
func (rc *RepeatContext) Increment() { rc.startedCount++ }

// SetCompleteOnly asks the loop to stop before the next callback.
func (rc *RepeatContext) SetCompleteOnly() { rc.completeOnly = true }

// IsCompleteOnly reports whether SetCompleteOnly was called.
func (rc *RepeatContext) IsCompleteOnly() bool { return rc.completeOnly }

// SetAttribute stores a value for policies and callbacks that share the loop.
func (rc *RepeatContext) SetAttribute(key string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.attributes[key] = value
}

// Attribute returns a stored value.
func (rc *RepeatContext) Attribute(key string) (interface{}, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.attributes[key]
	return v, ok
}

// CompletionPolicy decides when a repeat loop is complete.
type CompletionPolicy interface {
	// Start creates the context of a new loop.
	Start(parent *RepeatContext) *RepeatContext
	// IsComplete is consulted before each callback (result is nil) and after it.
	IsComplete(rc *RepeatContext, result *RepeatStatus) bool
	// Update is called after each callback.
	Update(rc *RepeatContext)
}

// RepeatCallback is the body of a repeat loop.
type RepeatCallback func(ctx context.Context, rc *RepeatContext) (RepeatStatus, error)

// RepeatOperations runs a callback repeatedly.
type RepeatOperations interface {
	Iterate(ctx context.Context, callback RepeatCallback) (RepeatStatus, error)
}
