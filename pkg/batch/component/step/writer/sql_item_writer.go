// Package writer provides implementations for various item writers used in batch processing,
// facilitating the persistence of data to external systems.
package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/core/tx"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// ArgsMapper returns the statement arguments for one item, in placeholder order.
type ArgsMapper[I any] func(item I) []interface{}

// SQLItemWriter is an implementation of [port.ItemWriter] that executes one parameterized
// statement per item inside the chunk transaction, like Spring Batch's JdbcBatchItemWriter.
type SQLItemWriter[I any] struct {
	name      string        // name is the unique name of the writer instance, used for logging.
	target    string        // target names the table written to, used in errors.
	statement string        // statement is the SQL executed per item, with ? placeholders.
	mapper    ArgsMapper[I] // mapper binds an item to the statement placeholders.
}

// NewSQLItemWriter creates a new instance of [SQLItemWriter].
//
// Parameters:
//
//	name: A unique name for this writer instance.
//	target: The table the statement writes to.
//	statement: The SQL statement, e.g. "INSERT INTO book(title, year) VALUES (?, ?)".
//	mapper: Produces the statement arguments of an item.
//
// Returns:
//
//	A new [SQLItemWriter] instance.
func NewSQLItemWriter[I any](name, target, statement string, mapper ArgsMapper[I]) *SQLItemWriter[I] {
	return &SQLItemWriter[I]{
		name:      name,
		target:    target,
		statement: statement,
		mapper:    mapper,
	}
}

// Open initializes the writer. The statement runs on the chunk transaction, so nothing is prepared here.
func (w *SQLItemWriter[I]) Open(ctx context.Context, ec model.ExecutionContext) error {
	logger.Infof("SQLItemWriter '%s': Opened (target: %s).", w.name, w.target)
	return nil
}

// Write executes the statement once per item, in order, on tx.
// It stops at the first failing item; the caller rolls the chunk back.
//
// Parameters:
//
//	ctx: The context for the operation.
//	tx: The chunk transaction. It is required.
//	items: The chunk.
//
// Returns:
//
//	A [exception.WriteError] of kind Sql if the transaction is missing or a statement fails.
func (w *SQLItemWriter[I]) Write(ctx context.Context, tx tx.Tx, items []I) error {
	if tx == nil {
		return exception.NewWriteError(exception.WriteErrorSql, w.target, errors.New("no transaction; SQLItemWriter must run inside a chunk transaction"))
	}
	for i, item := range items {
		if _, err := tx.ExecuteSQL(ctx, w.statement, w.mapper(item)...); err != nil {
			return exception.NewWriteError(exception.WriteErrorSql, w.target, fmt.Errorf("item %d of %d: %w", i+1, len(items), err))
		}
	}
	logger.Debugf("SQLItemWriter '%s': Wrote %d items to %s.", w.name, len(items), w.target)
	return nil
}

// Close releases resources. There are none to release.
func (w *SQLItemWriter[I]) Close(ctx context.Context) error {
	logger.Debugf("SQLItemWriter '%s': Closed.", w.name)
	return nil
}

// Verify that [SQLItemWriter] implements the [port.ItemWriter] interface at compile time.
var _ port.ItemWriter[any] = (*SQLItemWriter[any])(nil)
