package tasklet_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bookbatch/internal/step/tasklet"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	batchtest "github.com/tigerroll/bookbatch/pkg/batch/test"
)

func TestMessageTasklet(t *testing.T) {
	var out bytes.Buffer
	tl, err := tasklet.NewMessageTasklet("Hello, batch!", &out)
	require.NoError(t, err)

	se := batchtest.NewTestStepExecution(batchtest.NewTestJobExecution("simpleJob"), "step1")
	status, err := tl.Execute(context.Background(), se)
	require.NoError(t, err)

	assert.Equal(t, model.RepeatStatusFinished, status)
	assert.Equal(t, "Hello, batch!\n", out.String())
	printed, ok := se.ExecutionContext.Get(tasklet.MessagePrintedKey)
	assert.True(t, ok)
	assert.Equal(t, true, printed)
	assert.NoError(t, tl.Close(context.Background()))
}

func TestNewMessageTasklet_RequiresMessage(t *testing.T) {
	_, err := tasklet.NewMessageTasklet("", nil)
	assert.Error(t, err)
}
