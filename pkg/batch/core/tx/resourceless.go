package tx

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
)

// ErrNoResource is returned by write operations on a resourceless transaction.
var ErrNoResource = errors.New("resourceless transaction does not hold a resource")

// ResourcelessTransactionManager brackets chunks for steps whose writers are not transactional,
// such as in-memory or file writers. It only counts lifecycle calls.
type ResourcelessTransactionManager struct {
	begins    atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
}

// NewResourcelessTransactionManager creates a new ResourcelessTransactionManager.
func NewResourcelessTransactionManager() *ResourcelessTransactionManager {
	return &ResourcelessTransactionManager{}
}

// Begin implements TransactionManager.
func (m *ResourcelessTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.begins.Add(1)
	return &resourcelessTx{}, nil
}

// Commit implements TransactionManager.
func (m *ResourcelessTransactionManager) Commit(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return errors.New("invalid transaction type: expected resourceless transaction")
	}
	if !rt.done.CompareAndSwap(false, true) {
		return errors.New("transaction already completed")
	}
	m.commits.Add(1)
	return nil
}

// Rollback implements TransactionManager.
func (m *ResourcelessTransactionManager) Rollback(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return errors.New("invalid transaction type: expected resourceless transaction")
	}
	if !rt.done.CompareAndSwap(false, true) {
		return errors.New("transaction already completed")
	}
	m.rollbacks.Add(1)
	return nil
}

// Begins returns how many transactions were started.
func (m *ResourcelessTransactionManager) Begins() int64 { return m.begins.Load() }

// Commits returns how many transactions were committed.
func (m *ResourcelessTransactionManager) Commits() int64 { return m.commits.Load() }

// Rollbacks returns how many transactions were rolled back.
func (m *ResourcelessTransactionManager) Rollbacks() int64 { return m.rollbacks.Load() }

type resourcelessTx struct {
	done atomic.Bool
}

func (t *resourcelessTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return 0, ErrNoResource
}

func (t *resourcelessTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return 0, ErrNoResource
}

func (t *resourcelessTx) Savepoint(name string) error { return nil }

func (t *resourcelessTx) RollbackToSavepoint(name string) error { return nil }
