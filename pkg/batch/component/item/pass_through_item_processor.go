// Package item provides generic processors and writers that compose other item components.
package item

import (
	"context"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// PassThroughItemProcessor is an implementation of [port.ItemProcessor] that returns the input item as the output item as is.
// item.ChunkStep falls back to it when built without a processor.
type PassThroughItemProcessor[T any] struct{}

// NewPassThroughItemProcessor creates a new instance of [PassThroughItemProcessor].
func NewPassThroughItemProcessor[T any]() port.ItemProcessor[T, T] {
	return &PassThroughItemProcessor[T]{}
}

// Process returns the input item as is. It never filters.
func (p *PassThroughItemProcessor[T]) Process(ctx context.Context, item T) (*T, error) {
	logger.Debugf("PassThroughItemProcessor: Processing item: %+v", item)
	return &item, nil
}
