// Package tasklet provides the application's tasklets.
package tasklet

import (
	"context"
	"fmt"
	"io"
	"os"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// MessagePrintedKey is set in the step's ExecutionContext once the message was written.
const MessagePrintedKey = "message.printed"

// MessageTasklet prints the configured startup message.
type MessageTasklet struct {
	message string
	out     io.Writer
}

// NewMessageTasklet creates a MessageTasklet writing message to out. A nil out means stdout.
func NewMessageTasklet(message string, out io.Writer) (*MessageTasklet, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required for MessageTasklet")
	}
	if out == nil {
		out = os.Stdout
	}
	return &MessageTasklet{message: message, out: out}, nil
}

// Execute writes the message and finishes.
func (t *MessageTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.RepeatStatus, error) {
	select {
	case <-ctx.Done():
		return model.RepeatStatusFinished, ctx.Err()
	default:
	}
	logger.Debugf("MessageTasklet: Printing message '%s'.", t.message)
	if _, err := fmt.Fprintln(t.out, t.message); err != nil {
		return model.RepeatStatusFinished, exception.NewBatchError("message_tasklet", "Failed to print message", err, false, false)
	}
	stepExecution.ExecutionContext.Put(MessagePrintedKey, true)
	return model.RepeatStatusFinished, nil
}

// Close releases nothing.
func (t *MessageTasklet) Close(ctx context.Context) error {
	return nil
}

var _ port.Tasklet = (*MessageTasklet)(nil)
