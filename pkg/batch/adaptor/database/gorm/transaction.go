package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
)

// ErrTxCompleted is returned when a committed transaction is committed or rolled back again.
var ErrTxCompleted = errors.New("transaction already committed")

// GormTxAdapter implements tx.Tx on top of a GORM transaction.
type GormTxAdapter struct {
	db        *gorm.DB
	committed bool
}

// DB returns the transaction's *gorm.DB for writers that need more than tx.TxExecutor.
func (t *GormTxAdapter) DB() *gorm.DB {
	return t.db
}

// ExecuteUpdate implements tx.TxExecutor.
func (t *GormTxAdapter) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error) {
	db := t.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case "CREATE":
		// model must be a pointer to an entity or a slice of entities.
		result = db.Create(model)
	case "UPDATE":
		result = db.Model(model).Where(query).Updates(model)
	case "DELETE":
		if query != nil {
			db = db.Where(query)
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteUpsert implements tx.TxExecutor.
func (t *GormTxAdapter) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error) {
	db := t.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Savepoint implements tx.Tx.
func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// GormTransactionManager implements tx.TransactionManager with one database transaction per Begin.
type GormTransactionManager struct {
	db *gorm.DB
}

// NewGormTransactionManager creates a new GormTransactionManager over db.
func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

// Begin implements tx.TransactionManager. A cancelled ctx fails fast without touching the database.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	gormTx := m.db.WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx}, nil
}

// Commit implements tx.TransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	adapter, err := asGormTx(t)
	if err != nil {
		return err
	}
	if adapter.committed {
		return ErrTxCompleted
	}
	if err := adapter.db.Commit().Error; err != nil {
		return err
	}
	adapter.committed = true
	return nil
}

// Rollback implements tx.TransactionManager.
// database/sql already rolls back a transaction whose context was cancelled, so sql.ErrTxDone is
// not an error here.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	adapter, err := asGormTx(t)
	if err != nil {
		return err
	}
	if adapter.committed {
		return ErrTxCompleted
	}
	if err := adapter.db.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func asGormTx(t tx.Tx) (*GormTxAdapter, error) {
	adapter, ok := t.(*GormTxAdapter)
	if !ok {
		return nil, fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return adapter, nil
}
