package item

import (
	"context"
	"sync"

	"gorm.io/gorm"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepguard/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// GormPagingReader reads rows of T page by page in orderBy order.
//
// The position saved in the ExecutionContext under "<name>.read.count" counts items handed out up
// to the last committed chunk, so a restarted step resumes after the last committed row. Rows are
// read outside the chunk transaction.
type GormPagingReader[T any] struct {
	db       *gorm.DB
	name     string
	orderBy  string
	pageSize int
	scope    func(*gorm.DB) *gorm.DB

	mu     sync.Mutex
	page   []T
	next   int
	offset int
	read   int
	done   bool
}

// NewGormPagingReader creates a reader over the table of T. orderBy must give a stable order.
// scope, if not nil, narrows the query (e.g. a Where clause).
func NewGormPagingReader[T any](db *gorm.DB, name string, orderBy string, pageSize int, scope func(*gorm.DB) *gorm.DB) *GormPagingReader[T] {
	if pageSize < 1 {
		pageSize = 100
	}
	return &GormPagingReader[T]{db: db, name: name, orderBy: orderBy, pageSize: pageSize, scope: scope}
}

func (r *GormPagingReader[T]) positionKey() string {
	return r.name + ".read.count"
}

// Open restores the position from ec.
func (r *GormPagingReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page, r.next, r.done = nil, 0, false
	r.read = 0
	if n, ok := ec.GetInt(r.positionKey()); ok && n > 0 {
		r.read = n
	}
	r.offset = r.read
	if r.read > 0 {
		logger.Infof("GormPagingReader '%s': resuming from offset %d.", r.name, r.read)
	} else {
		logger.Infof("GormPagingReader '%s': starting new read.", r.name)
	}
	return nil
}

// Read returns the next row, fetching a new page when the current one is used up.
func (r *GormPagingReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.page) && !r.done {
		if err := r.fetch(ctx); err != nil {
			return zero, err
		}
	}
	if r.next >= len(r.page) {
		return zero, port.ErrNoMoreItems
	}
	item := r.page[r.next]
	r.next++
	r.read++
	return item, nil
}

func (r *GormPagingReader[T]) fetch(ctx context.Context) error {
	q := r.db.WithContext(ctx).Model(new(T))
	if r.scope != nil {
		q = r.scope(q)
	}
	var page []T
	if err := q.Order(r.orderBy).Offset(r.offset).Limit(r.pageSize).Find(&page).Error; err != nil {
		if ctx.Err() != nil {
			return exception.NewCancelledError("GormPagingReader", ctx.Err())
		}
		return exception.NewBatchErrorf("GormPagingReader", exception.KindReader, "failed to fetch page at offset %d for '%s'", r.offset, r.name, err)
	}
	logger.Debugf("GormPagingReader '%s': fetched %d rows at offset %d.", r.name, len(page), r.offset)
	r.page, r.next = page, 0
	r.offset += len(page)
	if len(page) < r.pageSize {
		r.done = true
	}
	return nil
}

// Update saves the position into ec.
func (r *GormPagingReader[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec.Put(r.positionKey(), r.read)
	return nil
}

// Close drops the buffered page.
func (r *GormPagingReader[T]) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page = nil
	logger.Infof("GormPagingReader '%s': closed after %d rows.", r.name, r.read)
	return nil
}

var (
	_ port.ItemReader[any] = (*GormPagingReader[any])(nil)
	_ port.ItemStream      = (*GormPagingReader[any])(nil)
)
