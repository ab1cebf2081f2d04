// Package notification reports finished jobs to notifiers, such as the run summary the CLI prints.
package notification

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// Notifier is told about every finished JobExecution.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error
}

// LogNotifier logs a one line completion message.
type LogNotifier struct{}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyJobCompletion notifies of job completion.
func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error {
	message := fmt.Sprintf(
		"Job Notification: Job '%s' (ID: %s) finished with Status: %s, ExitStatus: %s. Duration: %s, Failures: %d",
		execution.JobName,
		execution.ID,
		execution.Status,
		execution.ExitStatus,
		Duration(execution),
		len(execution.Failures),
	)
	if execution.Status == model.BatchStatusCompleted {
		logger.Infof("%s", message)
	} else {
		logger.Warnf("%s", message)
	}
	return nil
}

// SummaryNotifier writes a table of the job and its step counters.
type SummaryNotifier struct {
	out io.Writer
}

// NewSummaryNotifier creates a SummaryNotifier writing to out. A nil out means stdout.
func NewSummaryNotifier(out io.Writer) *SummaryNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &SummaryNotifier{out: out}
}

// NotifyJobCompletion writes the summary.
func (n *SummaryNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error {
	tw := tabwriter.NewWriter(n.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Job %s (%s): %s in %s\n", execution.JobName, execution.ID, execution.Status, Duration(execution).Round(time.Millisecond))
	fmt.Fprintln(tw, "STEP\tSTATUS\tREAD\tFILTER\tWRITE\tCOMMIT\tROLLBACK")
	for _, se := range execution.StepExecutions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			se.StepName, se.Status, se.ReadCount, se.FilterCount, se.WriteCount, se.CommitCount, se.RollbackCount)
	}
	for _, f := range execution.Failures {
		fmt.Fprintf(tw, "failure: %s\n", f)
	}
	return tw.Flush()
}

// Duration returns the run time of execution, up to now when it has not ended.
func Duration(execution *model.JobExecution) time.Duration {
	if execution.EndTime == nil {
		return time.Since(execution.StartTime)
	}
	return execution.EndTime.Sub(execution.StartTime)
}

// NotificationListener adapts its notifiers to port.JobExecutionListener.
// Every notifier is called; their errors are logged together and never affect the job.
type NotificationListener struct {
	notifiers []Notifier
}

// NewNotificationListener creates a listener for notifiers.
func NewNotificationListener(notifiers ...Notifier) *NotificationListener {
	return &NotificationListener{notifiers: notifiers}
}

// BeforeJob exists to satisfy JobExecutionListener requirements but does nothing.
func (l *NotificationListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
}

// AfterJob notifies every notifier.
func (l *NotificationListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if err := l.Notify(ctx, jobExecution); err != nil {
		logger.Warnf("NotificationListener: %v", err)
	}
}

// Notify calls every notifier and returns their combined errors.
func (l *NotificationListener) Notify(ctx context.Context, jobExecution *model.JobExecution) error {
	var result *multierror.Error
	for _, n := range l.notifiers {
		if err := n.NotifyJobCompletion(ctx, jobExecution); err != nil {
			result = multierror.Append(result, fmt.Errorf("%T: %w", n, err))
		}
	}
	return result.ErrorOrNil()
}

var (
	_ Notifier                  = (*LogNotifier)(nil)
	_ Notifier                  = (*SummaryNotifier)(nil)
	_ port.JobExecutionListener = (*NotificationListener)(nil)
)
