package notification_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/listener/notification"
	batchtest "github.com/tigerroll/bookbatch/pkg/batch/test"
)

type failingNotifier struct{ err error }

func (f failingNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error {
	return f.err
}

func TestSummaryNotifier(t *testing.T) {
	var buf bytes.Buffer
	je := batchtest.NewTestJobExecution("simpleJob")
	se := batchtest.NewTestStepExecution(je, "bookStep")
	se.ReadCount, se.WriteCount, se.CommitCount = 23, 23, 3
	je.MarkAsCompleted()

	require.NoError(t, notification.NewSummaryNotifier(&buf).NotifyJobCompletion(context.Background(), je))

	out := buf.String()
	assert.Contains(t, out, "Job simpleJob")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "STEP")
	assert.Regexp(t, `bookStep\s+STARTING\s+23\s+0\s+23\s+3\s+0`, out)
}

func TestNotificationListener_AggregatesErrors(t *testing.T) {
	var buf bytes.Buffer
	l := notification.NewNotificationListener(
		failingNotifier{err: errors.New("first")},
		notification.NewSummaryNotifier(&buf),
		failingNotifier{err: errors.New("second")},
	)
	je := batchtest.NewTestJobExecution("simpleJob")

	err := l.Notify(context.Background(), je)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.NotEmpty(t, buf.String(), "notifiers after a failure still run")

	assert.NotPanics(t, func() { l.AfterJob(context.Background(), je) })
	assert.NoError(t, notification.NewLogNotifier().NotifyJobCompletion(context.Background(), je))
}
