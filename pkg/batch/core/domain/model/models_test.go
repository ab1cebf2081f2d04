package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

func TestJobExecution_Lifecycle(t *testing.T) {
	je := model.NewJobExecution("simpleJob", model.JobParameters{})
	require.NotEmpty(t, je.ID)
	assert.Equal(t, model.BatchStatusStarting, je.Status)
	assert.NotNil(t, je.Parameters.Params)

	je.MarkAsStarted()
	assert.Equal(t, model.BatchStatusStarted, je.Status)
	assert.Equal(t, model.ExitStatusExecuting, je.ExitStatus)
	assert.Nil(t, je.EndTime)

	je.MarkAsCompleted()
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitStatusCompleted, je.ExitStatus)
	require.NotNil(t, je.EndTime)
	assert.False(t, je.EndTime.Before(je.StartTime))
}

func TestJobExecution_CompletedIsTerminal(t *testing.T) {
	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	je.MarkAsStarted()
	je.MarkAsCompleted()

	err := je.TransitionTo(model.BatchStatusFailed)
	assert.Error(t, err)

	je.MarkAsFailed(errors.New("late failure"))
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
}

func TestJobExecution_AddFailureExceptionDeduplicates(t *testing.T) {
	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("disk full"))
	je.AddFailureException(errors.New("disk full"))
	je.AddFailureException(nil)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, model.FailureList{"disk full"}, je.Failures)
}

func TestStepExecution_Transitions(t *testing.T) {
	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "XMLToCSV")
	je.AddStepExecution(se)

	assert.Equal(t, je.ID, se.JobExecutionID)
	assert.Len(t, je.StepExecutions, 1)

	assert.Error(t, se.TransitionTo(model.BatchStatusCompleted), "STARTING cannot jump to COMPLETED")

	se.MarkAsStarted()
	se.MarkAsFailed(errors.New("write failed"))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, model.ExitStatusFailed, se.ExitStatus)
	assert.Equal(t, model.FailureList{"write failed"}, se.Failures)
	require.NotNil(t, se.EndTime)

	se.MarkAsCompleted()
	assert.Equal(t, model.BatchStatusFailed, se.Status)
}

func TestExecutionContext_Getters(t *testing.T) {
	ec := model.NewExecutionContext()
	ec.Put("name", "reader")
	ec.Put("count", 3)
	ec.Put("float", float64(7))
	ec.Put("str", "12")

	s, ok := ec.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "reader", s)

	for key, want := range map[string]int{"count": 3, "float": 7, "str": 12} {
		got, ok := ec.GetInt(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	_, ok = ec.GetInt("name")
	assert.False(t, ok)

	cp := ec.Copy()
	cp.Put("name", "changed")
	s, _ = ec.GetString("name")
	assert.Equal(t, "reader", s)
}

func TestJobStatus_IsFinished(t *testing.T) {
	assert.True(t, model.BatchStatusCompleted.IsFinished())
	assert.True(t, model.BatchStatusFailed.IsFinished())
	assert.False(t, model.BatchStatusStarted.IsFinished())
}

func TestJobParameters(t *testing.T) {
	jp := model.NewJobParameters()
	jp.Put("input", "books.xml")
	v, ok := jp.GetString("input")
	assert.True(t, ok)
	assert.Equal(t, "books.xml", v)
	assert.Nil(t, model.JobParameters{}.Get("missing"))
}
