package test

import (
	"context"
	"sync"

	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
)

// FuncReader adapts a function to port.ItemReader.
type FuncReader[T any] func(ctx context.Context) (T, error)

// Read calls f(ctx).
func (f FuncReader[T]) Read(ctx context.Context) (T, error) {
	return f(ctx)
}

// RecordingWriter is an ItemWriter that keeps every chunk it was given.
// Err, when set, is returned from every Write and nothing is recorded.
type RecordingWriter[T any] struct {
	Err error

	mu     sync.Mutex
	chunks [][]T
}

// Write records the chunk.
func (w *RecordingWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if w.Err != nil {
		return w.Err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, append([]T(nil), items...))
	return nil
}

// Chunks returns the recorded chunks.
func (w *RecordingWriter[T]) Chunks() [][]T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]T(nil), w.chunks...)
}

// Items returns every recorded item in write order.
func (w *RecordingWriter[T]) Items() []T {
	var out []T
	for _, c := range w.Chunks() {
		out = append(out, c...)
	}
	return out
}
