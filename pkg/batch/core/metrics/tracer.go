package metrics

import (
	"context"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of step executions.
type Tracer interface {
	// StartStepSpan starts a Span for a StepExecution.
	//
	// Returns: A context with the new Span set, and a function to end the Span.
	//          It is recommended to call the returned function in a defer statement.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())

	// StartChunkSpan starts a child Span for one chunk iteration.
	StartChunkSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())

	// RecordError records an error in the current Span.
	// module names the component where the error occurred (e.g., "reader", "synchronizer").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current Span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
