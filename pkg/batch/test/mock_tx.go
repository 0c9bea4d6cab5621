package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"
	tx "github.com/tigerroll/stepguard/pkg/batch/core/tx"
)

// MockTx is a chunk transaction handle whose executor calls are recorded.
// Writers that never touch the handle can use the zero value without expectations.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, model, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	args := m.Called(ctx, model, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) Savepoint(name string) error {
	return m.Called(name).Error(0)
}

func (m *MockTx) RollbackToSavepoint(name string) error {
	return m.Called(name).Error(0)
}

// MockTxManager records the begin/commit/rollback sequence of a step.
// Tests that need to act at a precise point of the chunk (for instance raising the
// terminate-only flag on commit) attach Run callbacks to the expectations.
type MockTxManager struct {
	mock.Mock
}

// NewPermissiveTxManager returns a MockTxManager whose every call succeeds with t.
// Tests assert on the recorded calls afterwards.
func NewPermissiveTxManager(t tx.Tx) *MockTxManager {
	m := &MockTxManager{}
	m.On("Begin", mock.Anything, mock.Anything).Return(t, nil)
	m.On("Commit", t).Return(nil)
	m.On("Rollback", t).Return(nil)
	return m
}

func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

func (m *MockTxManager) Commit(t tx.Tx) error {
	return m.Called(t).Error(0)
}

func (m *MockTxManager) Rollback(t tx.Tx) error {
	return m.Called(t).Error(0)
}

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
)
