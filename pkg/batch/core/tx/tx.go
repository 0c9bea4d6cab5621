// Package tx provides an abstraction for transaction management in the stepguard batch packages.
// One transaction brackets each chunk: its reads, its single write and its commit or rollback.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor is an interface that defines common write operations executable within a transaction.
// Item writers use it to join the chunk transaction instead of opening their own.
type TxExecutor interface {
	// ExecuteUpdate performs database write operations (CREATE, UPDATE, DELETE) on the specified model.
	//
	// operation: "CREATE", "UPDATE" or "DELETE".
	// query: column/value conditions for UPDATE or DELETE, combined with AND.
	// Returns: The number of affected rows and any error that occurred during the operation.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert performs an UPSERT operation (INSERT ... ON CONFLICT DO UPDATE).
	// If updateColumns is nil or empty, conflicts are treated as DO NOTHING.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// Tx represents an ongoing transaction. It is an opaque handle for the step executor.
type Tx interface {
	TxExecutor

	// Savepoint creates a new savepoint within the current transaction.
	Savepoint(name string) error

	// RollbackToSavepoint rolls back the transaction to the savepoint with the specified name.
	RollbackToSavepoint(name string) error
}

// TransactionManager manages the lifecycle of transactions (begin, commit, rollback).
type TransactionManager interface {
	// Begin starts a new transaction. opts may carry the isolation level or read-only flag.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits the specified transaction, persisting all changes made within it.
	Commit(tx Tx) error
	// Rollback rolls back the specified transaction, undoing all changes made within it.
	Rollback(tx Tx) error
}
