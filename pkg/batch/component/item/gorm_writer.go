package item

import (
	"context"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// GormItemWriter inserts items through the chunk transaction, so a rolled back chunk leaves no rows.
// When conflictColumns is set the writer upserts instead, updating updateColumns on conflict
// (or doing nothing when updateColumns is empty).
type GormItemWriter[T any] struct {
	name            string
	tableName       string
	batchSize       int
	conflictColumns []string
	updateColumns   []string
}

// GormItemWriterOption configures a GormItemWriter.
type GormItemWriterOption func(*gormItemWriterOptions)

type gormItemWriterOptions struct {
	batchSize       int
	conflictColumns []string
	updateColumns   []string
}

// WithBatchSize splits each chunk into statements of at most n rows.
func WithBatchSize(n int) GormItemWriterOption {
	return func(o *gormItemWriterOptions) { o.batchSize = n }
}

// WithUpsert turns inserts into upserts on conflictColumns.
func WithUpsert(conflictColumns []string, updateColumns []string) GormItemWriterOption {
	return func(o *gormItemWriterOptions) {
		o.conflictColumns = conflictColumns
		o.updateColumns = updateColumns
	}
}

// NewGormItemWriter creates a writer for tableName. An empty tableName lets GORM derive it from T.
func NewGormItemWriter[T any](name string, tableName string, opts ...GormItemWriterOption) *GormItemWriter[T] {
	o := gormItemWriterOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return &GormItemWriter[T]{
		name:            name,
		tableName:       tableName,
		batchSize:       o.batchSize,
		conflictColumns: o.conflictColumns,
		updateColumns:   o.updateColumns,
	}
}

// Write writes items within t.
func (w *GormItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if t == nil {
		return exception.NewBatchErrorf("GormItemWriter", exception.KindWriter, "writer '%s' requires a chunk transaction", w.name)
	}

	size := w.batchSize
	if size <= 0 {
		size = len(items)
	}
	var total int64
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		rows := items[i:end]

		var (
			n   int64
			err error
		)
		if len(w.conflictColumns) > 0 {
			n, err = t.ExecuteUpsert(ctx, &rows, w.tableName, w.conflictColumns, w.updateColumns)
		} else {
			n, err = t.ExecuteUpdate(ctx, &rows, "CREATE", w.tableName, nil)
		}
		if err != nil {
			return exception.NewBatchErrorf("GormItemWriter", exception.KindWriter,
				"writer '%s' failed at chunk offset %d", w.name, i, err)
		}
		total += n
	}

	logger.Debugf("GormItemWriter '%s': wrote %d rows to '%s'.", w.name, total, w.tableName)
	return nil
}

var _ port.ItemWriter[any] = (*GormItemWriter[any])(nil)
