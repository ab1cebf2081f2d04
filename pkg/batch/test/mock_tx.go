package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
)

// MockTx is a mock implementation of the tx.Tx interface.
// Registered synchronizations are kept so tests can complete the transaction by hand.
type MockTx struct {
	mock.Mock
	Syncs []tx.Synchronization
}

// ExecuteSQL mocks the ExecuteSQL method of tx.TxExecutor.
// The variadic arguments are recorded as a single []interface{} argument.
func (m *MockTx) ExecuteSQL(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	called := m.Called(ctx, statement, args)
	return called.Get(0).(int64), called.Error(1)
}

// RegisterSynchronization implements tx.Tx. It does not record a mock call.
func (m *MockTx) RegisterSynchronization(s tx.Synchronization) {
	m.Syncs = append(m.Syncs, s)
}

// Complete runs the registered synchronizations as a commit (committed=true) or a rollback.
func (m *MockTx) Complete(ctx context.Context, committed bool) error {
	if committed {
		for _, s := range m.Syncs {
			if err := s.BeforeCommit(ctx); err != nil {
				for _, s := range m.Syncs {
					s.AfterCompletion(ctx, false)
				}
				m.Syncs = nil
				return err
			}
		}
	}
	for _, s := range m.Syncs {
		s.AfterCompletion(ctx, committed)
	}
	m.Syncs = nil
	return nil
}

// MockTxManager is a mock implementation of the tx.TransactionManager interface.
// It allows for mocking the lifecycle of transactions (Begin, Commit, Rollback).
type MockTxManager struct {
	mock.Mock
}

// Begin mocks the Begin method of tx.TransactionManager.
// It records the call and returns a mock Tx instance or an error.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

// Commit mocks the Commit method of tx.TransactionManager.
// It records the call and returns the predefined error.
func (m *MockTxManager) Commit(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

// Rollback mocks the Rollback method of tx.TransactionManager.
// It records the call and returns the predefined error.
func (m *MockTxManager) Rollback(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
)
