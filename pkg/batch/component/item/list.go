// Package item provides ready-made item readers and writers for chunk steps.
package item

import (
	"context"
	"fmt"
	"sync"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// ListItemReader reads items from an in-memory slice.
// Its position is saved in the ExecutionContext under "<name>.read.count" after every committed
// chunk, so a restarted step resumes after the last committed item.
type ListItemReader[T any] struct {
	name  string
	items []T

	mu  sync.Mutex
	pos int
}

// NewListItemReader creates a reader over a copy of items.
func NewListItemReader[T any](name string, items []T) *ListItemReader[T] {
	return &ListItemReader[T]{name: name, items: append([]T(nil), items...)}
}

func (r *ListItemReader[T]) positionKey() string {
	return fmt.Sprintf("%s.read.count", r.name)
}

// Read returns the next item, or port.ErrNoMoreItems once the slice is exhausted.
func (r *ListItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

// Open restores the read position from ec.
func (r *ListItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	if n, ok := ec.GetInt(r.positionKey()); ok && n > 0 {
		if n > len(r.items) {
			n = len(r.items)
		}
		r.pos = n
		logger.Debugf("ListItemReader '%s': resuming at position %d.", r.name, n)
	}
	return nil
}

// Update saves the read position into ec.
func (r *ListItemReader[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec.Put(r.positionKey(), r.pos)
	return nil
}

// Close is a no-op.
func (r *ListItemReader[T]) Close(ctx context.Context) error {
	return nil
}

// ListItemWriter collects written chunks in memory. Mostly useful in tests and demos.
type ListItemWriter[T any] struct {
	mu     sync.Mutex
	chunks [][]T
}

// NewListItemWriter creates an empty ListItemWriter.
func NewListItemWriter[T any]() *ListItemWriter[T] {
	return &ListItemWriter[T]{}
}

// Write appends a copy of items as one chunk.
func (w *ListItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, append([]T(nil), items...))
	logger.Debugf("ListItemWriter: wrote chunk #%d with %d items.", len(w.chunks), len(items))
	return nil
}

// Chunks returns the written chunks in order.
func (w *ListItemWriter[T]) Chunks() [][]T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]T(nil), w.chunks...)
}

// Items returns every written item in order.
func (w *ListItemWriter[T]) Items() []T {
	var out []T
	for _, c := range w.Chunks() {
		out = append(out, c...)
	}
	return out
}

var (
	_ port.ItemReader[any] = (*ListItemReader[any])(nil)
	_ port.ItemStream      = (*ListItemReader[any])(nil)
	_ port.ItemWriter[any] = (*ListItemWriter[any])(nil)
)
