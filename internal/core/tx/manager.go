// Package tx provides transaction management abstractions.
// Domain code depends on these contracts; the pgx implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, and nested transaction support.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
// Used for dry-run planning, which must never write.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	// Attempts to modify data will fail.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Isolation names the isolation level a unit of work runs with.
type Isolation string

// Stock batches need at least snapshot isolation, so read committed is not offered.
const (
	IsolationRepeatableRead Isolation = "repeatable_read"
	IsolationSerializable   Isolation = "serializable"
)

// ParseIsolation maps a config string to an Isolation, defaulting to repeatable read.
func ParseIsolation(s string) Isolation {
	switch Isolation(s) {
	case IsolationSerializable:
		return IsolationSerializable
	default:
		return IsolationRepeatableRead
	}
}
