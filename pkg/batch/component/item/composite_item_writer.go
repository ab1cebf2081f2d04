package item

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/bookbatch/pkg/batch/core/tx"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// CompositeItemWriter passes every chunk to its delegates in declared order, all on the same
// transaction. It stops at the first delegate that fails.
//
// Only delegates that take part in the transaction (by executing on it or registering a
// synchronization) are undone by a rollback. Work a non-participating delegate did before a
// later delegate failed stays in place.
type CompositeItemWriter[I any] struct {
	delegates []port.ItemWriter[I]
}

// NewCompositeItemWriter creates a CompositeItemWriter over delegates.
func NewCompositeItemWriter[I any](delegates ...port.ItemWriter[I]) *CompositeItemWriter[I] {
	return &CompositeItemWriter[I]{delegates: delegates}
}

// Delegates returns the delegate writers in order.
func (w *CompositeItemWriter[I]) Delegates() []port.ItemWriter[I] {
	return w.delegates
}

// Open opens every delegate, even after a failure, and returns all errors combined.
func (w *CompositeItemWriter[I]) Open(ctx context.Context, ec model.ExecutionContext) error {
	var result *multierror.Error
	for i, d := range w.delegates {
		if err := d.Open(ctx, ec); err != nil {
			result = multierror.Append(result, fmt.Errorf("delegate %d (%T): %w", i, d, err))
		}
	}
	return result.ErrorOrNil()
}

// Write implements port.ItemWriter.
func (w *CompositeItemWriter[I]) Write(ctx context.Context, t tx.Tx, items []I) error {
	for _, d := range w.delegates {
		if err := d.Write(ctx, t, items); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every delegate and returns all errors combined.
func (w *CompositeItemWriter[I]) Close(ctx context.Context) error {
	var result *multierror.Error
	for i, d := range w.delegates {
		if err := d.Close(ctx); err != nil {
			logger.Warnf("CompositeItemWriter: Failed to close delegate %d: %v", i, err)
			result = multierror.Append(result, fmt.Errorf("delegate %d (%T): %w", i, d, err))
		}
	}
	return result.ErrorOrNil()
}

var _ port.ItemWriter[any] = (*CompositeItemWriter[any])(nil)
