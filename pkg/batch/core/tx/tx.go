// Package tx provides the transaction abstraction the chunk step commits through.
// A chunk is written inside one Tx; every writer of the chunk shares it, so the chunk is
// applied to all sinks or to none.
package tx

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoTransactionalResource is returned by transactions that are not backed by a database.
var ErrNoTransactionalResource = errors.New("transaction has no database resource")

// TxExecutor defines the write operations executable within a transaction.
type TxExecutor interface {
	// ExecuteSQL runs a parameterized statement inside the transaction.
	//
	// ctx: The context for the operation.
	// statement: SQL with positional (?) placeholders.
	// args: The values bound to the placeholders.
	// Returns: The number of affected rows and any error reported by the driver.
	ExecuteSQL(ctx context.Context, statement string, args ...interface{}) (rowsAffected int64, err error)
}

// Synchronization takes part in the completion of a transaction.
// Non-database resources (such as a buffered file sink) register one to publish or
// discard their staged work together with the database.
type Synchronization interface {
	// BeforeCommit runs before the database commit. An error aborts the commit and
	// rolls the transaction back.
	BeforeCommit(ctx context.Context) error
	// AfterCompletion runs once the transaction has ended; committed reports the outcome.
	AfterCompletion(ctx context.Context, committed bool)
}

// Tx represents an ongoing transaction.
type Tx interface {
	TxExecutor

	// RegisterSynchronization attaches s to this transaction.
	RegisterSynchronization(s Synchronization)
}

// TransactionManager manages the lifecycle of transactions (begin, commit, rollback).
type TransactionManager interface {
	// Begin starts a new transaction.
	// opts: Optional arguments specifying transaction options (e.g., isolation level).
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit runs registered BeforeCommit hooks, then commits. A hook error rolls back.
	Commit(tx Tx) error
	// Rollback undoes all changes made within the transaction.
	Rollback(tx Tx) error
}

// SynchronizationSupport stores a transaction's synchronizations and triggers them.
// Transaction implementations embed it.
type SynchronizationSupport struct {
	ctx   context.Context
	syncs []Synchronization
}

// NewSynchronizationSupport creates a SynchronizationSupport bound to ctx.
func NewSynchronizationSupport(ctx context.Context) SynchronizationSupport {
	return SynchronizationSupport{ctx: ctx}
}

// RegisterSynchronization implements Tx.
func (s *SynchronizationSupport) RegisterSynchronization(sync Synchronization) {
	s.syncs = append(s.syncs, sync)
}

// TriggerBeforeCommit runs every BeforeCommit hook in registration order, stopping at the first error.
func (s *SynchronizationSupport) TriggerBeforeCommit() error {
	for _, sync := range s.syncs {
		if err := sync.BeforeCommit(s.context()); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompletion runs every AfterCompletion hook and clears the registrations.
func (s *SynchronizationSupport) TriggerAfterCompletion(committed bool) {
	syncs := s.syncs
	s.syncs = nil
	for _, sync := range syncs {
		sync.AfterCompletion(s.context(), committed)
	}
}

func (s *SynchronizationSupport) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}
