package tx

import (
	"context"
	"database/sql"
	"fmt"
)

// ResourcelessTransactionManager drives synchronizations without a database.
// It is used by steps and tests whose writers are all non-relational.
type ResourcelessTransactionManager struct{}

// NewResourcelessTransactionManager creates a ResourcelessTransactionManager.
func NewResourcelessTransactionManager() *ResourcelessTransactionManager {
	return &ResourcelessTransactionManager{}
}

type resourcelessTx struct {
	SynchronizationSupport
	done bool
}

// ExecuteSQL always fails: there is no database behind this transaction.
func (t *resourcelessTx) ExecuteSQL(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	return 0, ErrNoTransactionalResource
}

// Begin implements TransactionManager.
func (m *ResourcelessTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	return &resourcelessTx{SynchronizationSupport: NewSynchronizationSupport(ctx)}, nil
}

// Commit implements TransactionManager.
func (m *ResourcelessTransactionManager) Commit(t Tx) error {
	rt, err := m.cast(t)
	if err != nil {
		return err
	}
	if err := rt.TriggerBeforeCommit(); err != nil {
		rt.done = true
		rt.TriggerAfterCompletion(false)
		return err
	}
	rt.done = true
	rt.TriggerAfterCompletion(true)
	return nil
}

// Rollback implements TransactionManager.
func (m *ResourcelessTransactionManager) Rollback(t Tx) error {
	rt, err := m.cast(t)
	if err != nil {
		return err
	}
	if rt.done {
		return nil
	}
	rt.done = true
	rt.TriggerAfterCompletion(false)
	return nil
}

func (m *ResourcelessTransactionManager) cast(t Tx) (*resourcelessTx, error) {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return nil, fmt.Errorf("invalid transaction type: expected resourceless transaction, got %T", t)
	}
	return rt, nil
}

var _ TransactionManager = (*ResourcelessTransactionManager)(nil)
