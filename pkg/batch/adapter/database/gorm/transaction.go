package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
)

// GormTx implements tx.Tx on a gorm transaction.
type GormTx struct {
	tx.SynchronizationSupport
	db *gorm.DB
}

// ExecuteSQL implements tx.TxExecutor.
func (t *GormTx) ExecuteSQL(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	result := t.db.WithContext(ctx).Exec(statement, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// GormTransactionManager implements tx.TransactionManager.
type GormTransactionManager struct {
	conn *GormDBAdapter
}

// NewGormTransactionManager creates a transaction manager over conn.
func NewGormTransactionManager(conn *GormDBAdapter) *GormTransactionManager {
	return &GormTransactionManager{conn: conn}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	gormTx := m.conn.GetGormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.conn.Name(), gormTx.Error)
	}
	return &GormTx{SynchronizationSupport: tx.NewSynchronizationSupport(ctx), db: gormTx}, nil
}

// Commit implements tx.TransactionManager.
// A failing BeforeCommit hook rolls the database transaction back and is returned.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gt, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	if err := gt.TriggerBeforeCommit(); err != nil {
		rbErr := gt.db.Rollback().Error
		gt.TriggerAfterCompletion(false)
		if rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := gt.db.Commit().Error; err != nil {
		gt.TriggerAfterCompletion(false)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	gt.TriggerAfterCompletion(true)
	return nil
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gt, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	err := gt.db.Rollback().Error
	gt.TriggerAfterCompletion(false)
	return err
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)
