package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
)

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("db connection refused")
	be := exception.NewBatchError("db", "failed to connect", originalErr, false, true)

	assert.Equal(t, "db", be.Module)
	assert.Equal(t, "failed to connect", be.Message)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Equal(t, "[db] failed to connect: db connection refused", be.Error())
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	be := exception.NewBatchErrorf("reader", "item %d not found", 10)
	assert.Nil(t, be.Unwrap())
	assert.Equal(t, "[reader] item 10 not found", be.Error())

	cause := errors.New("io error")
	be = exception.NewBatchErrorf("io", "read %s failed", "books.xml", cause)
	assert.ErrorIs(t, be, cause)
	assert.Equal(t, "[io] read books.xml failed: io error", be.Error())
}

func TestIsBatchError_Wrapped(t *testing.T) {
	be := exception.NewBatchError("step", "boom", nil, false, false)
	wrapped := fmt.Errorf("outer: %w", be)

	assert.True(t, exception.IsBatchError(wrapped))
	assert.False(t, exception.IsBatchError(errors.New("plain")))
	assert.False(t, exception.IsBatchError(nil))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, exception.IsFatal(nil))
	assert.True(t, exception.IsFatal(errors.New("plain")))
	assert.True(t, exception.IsFatal(exception.NewBatchError("m", "x", nil, false, false)))
	assert.False(t, exception.IsFatal(exception.NewBatchError("m", "x", nil, true, false)))
	assert.False(t, exception.IsFatal(exception.NewBatchError("m", "x", nil, false, true)))
}

func TestItemErrors_As(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed")
	err := exception.NewBatchError("XMLToCSV", "chunk write failed",
		exception.NewWriteError(exception.WriteErrorSql, "book", cause), false, false)

	var we *exception.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, exception.WriteErrorSql, we.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "write error (Sql) on book: UNIQUE constraint failed", we.Error())

	re := exception.NewReadError(exception.ReadErrorParse, "books.xml", errors.New("bad year"))
	assert.Equal(t, "read error (Parse) on books.xml: bad year", re.Error())

	te := exception.NewTransformError("item-1", errors.New("rejected"))
	assert.Equal(t, "transform error on item item-1: rejected", te.Error())
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "[w] failed: x", exception.ExtractErrorMessage(exception.NewBatchError("w", "failed", errors.New("x"), false, false)))
}
