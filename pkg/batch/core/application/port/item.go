package port

import (
	"context"
	"errors"
	"io"
	"reflect"

	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by an ItemReader when its input is exhausted.
var ErrNoMoreItems = errors.New("no more items")

// ItemReader is the interface for reading items one at a time.
type ItemReader[O any] interface {
	// Read reads the next item.
	// End of input is reported with ErrNoMoreItems or io.EOF.
	Read(ctx context.Context) (O, error)
}

// ItemWriter is the interface for writing one chunk of items.
type ItemWriter[I any] interface {
	// Write writes the items of one chunk within the chunk transaction.
	// It is called at most once per chunk and never with an empty slice.
	Write(ctx context.Context, tx tx.Tx, items []I) error
}

// ItemStream is implemented by readers and writers that hold resources or restart state.
// The step opens streams before the first chunk and closes them after the last.
type ItemStream interface {
	// Open prepares the stream, restoring state from ec if present.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Update stores the current stream position into ec after a committed chunk.
	Update(ctx context.Context, ec model.ExecutionContext) error
	// Close releases the resources held by the stream.
	Close(ctx context.Context) error
}

// IsEndOfInput reports whether err marks the end of a reader's input.
func IsEndOfInput(err error) bool {
	return errors.Is(err, ErrNoMoreItems) || errors.Is(err, io.EOF)
}

// IsNilItem reports whether item is a nil value, which readers of pointer or interface types may
// return to signal end of input.
func IsNilItem(item any) bool {
	if item == nil {
		return true
	}
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}
