package test

import (
	"time"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

// NewTestJobParameters creates JobParameters for testing.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	jp := model.NewJobParameters()
	for k, v := range params {
		jp.Put(k, v)
	}
	return jp
}

// NewTestJobExecution creates a started JobExecution for testing.
func NewTestJobExecution(jobName string) *model.JobExecution {
	je := model.NewJobExecution(jobName, model.NewJobParameters())
	je.MarkAsStarted()
	return je
}

// NewTestStepExecution creates a StepExecution attached to jobExecution.
func NewTestStepExecution(jobExecution *model.JobExecution, stepName string) *model.StepExecution {
	se := model.NewStepExecution(model.NewID(), jobExecution, stepName)
	if jobExecution != nil {
		jobExecution.AddStepExecution(se)
	}
	return se
}

// NewTestExecutionContext creates an ExecutionContext holding data.
func NewTestExecutionContext(data map[string]interface{}) model.ExecutionContext {
	ec := model.NewExecutionContext()
	for k, v := range data {
		ec.Put(k, v)
	}
	return ec
}

// NewTimePtr returns a pointer to t.
func NewTimePtr(t time.Time) *time.Time {
	return &t
}
