// Package sql provides a GORM implementation of repository.JobRepository.
// It lets operators in other processes observe step executions and request stops through the
// shared batch_step_execution table.
package sql

import (
	"context"

	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/stepguard/pkg/batch/adaptor/database/gorm"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
)

const moduleName = "SQLJobRepository"

// SQLJobRepository implements repository.JobRepository over a *gorm.DB.
type SQLJobRepository struct {
	db *gorm.DB
}

// NewSQLJobRepository creates a new instance of SQLJobRepository.
// The schema must already exist; see Migrate.
func NewSQLJobRepository(db *gorm.DB) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

// conn returns the session to run a statement on. A GORM chunk transaction carried by ctx is
// joined, otherwise the statement runs on its own connection.
func (r *SQLJobRepository) conn(ctx context.Context) *gorm.DB {
	if t, ok := tx.FromContext(ctx); ok {
		if gtx, ok := t.(*gormadaptor.GormTxAdapter); ok {
			return gtx.DB().WithContext(ctx)
		}
	}
	return r.db.WithContext(ctx)
}

// Close is a no-op. The connection belongs to whoever opened it.
func (r *SQLJobRepository) Close() error {
	return nil
}

func repoError(message string, err error) error {
	return exception.NewBatchError(moduleName, exception.KindRepository, message, err)
}
