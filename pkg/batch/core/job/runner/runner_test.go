package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	runner "github.com/tigerroll/bookbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/bookbatch/pkg/batch/infrastructure/repository/inmemory"
	batchtest "github.com/tigerroll/bookbatch/pkg/batch/test"
)

// stubStep completes unless err is set. It records whether it ran.
type stubStep struct {
	name   string
	err    error
	hook   func()
	called bool
}

func (s *stubStep) Execute(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	s.called = true
	se.MarkAsStarted()
	if s.hook != nil {
		s.hook()
	}
	if s.err != nil {
		se.MarkAsFailed(s.err)
		return s.err
	}
	se.MarkAsCompleted()
	return nil
}

func (s *stubStep) StepName() string { return s.name }
func (s *stubStep) ID() string       { return s.name }

// statusProbe captures the job status seen by AfterJob.
type statusProbe struct {
	afterStatus model.JobStatus
	steps       int
}

func (p *statusProbe) BeforeJob(ctx context.Context, je *model.JobExecution) {}
func (p *statusProbe) AfterJob(ctx context.Context, je *model.JobExecution) {
	p.afterStatus = je.Status
	p.steps = len(je.StepExecutions)
}

func TestSimpleJobRunner_AllStepsComplete(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	events := &batchtest.EventRecorder{}
	first, second := &stubStep{name: "step1"}, &stubStep{name: "step2"}
	job := runner.NewFlowJob("simpleJob", []port.Step{first, second}, repo, runner.WithJobListeners(events))

	je, err := runner.NewSimpleJobRunner(repo).Run(context.Background(), job, model.NewJobParameters())
	require.NoError(t, err)
	require.NotNil(t, je)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitStatusCompleted, je.ExitStatus)
	assert.NotNil(t, je.EndTime)
	assert.True(t, first.called && second.called)
	assert.Equal(t, []string{"beforeJob", "afterJob:COMPLETED"}, events.Events)

	stored, err := repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	require.Len(t, stored.StepExecutions, 2)
	assert.Equal(t, "step1", stored.StepExecutions[0].StepName)
	assert.Equal(t, "step2", stored.StepExecutions[1].StepName)
	assert.NotEqual(t, stored.StepExecutions[0].ID, stored.StepExecutions[1].ID)
}

func TestSimpleJobRunner_FailedStepSkipsRemaining(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	boom := errors.New("boom")
	probe := &statusProbe{}
	steps := []*stubStep{{name: "step1"}, {name: "step2", err: boom}, {name: "step3"}}
	job := runner.NewFlowJob("simpleJob", []port.Step{steps[0], steps[1], steps[2]}, repo, runner.WithJobListeners(probe))

	je, err := runner.NewSimpleJobRunner(repo).Run(context.Background(), job, model.NewJobParameters())
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, je)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, model.ExitStatusFailed, je.ExitStatus)
	assert.False(t, steps[2].called, "steps after a failure are skipped")
	assert.Len(t, je.StepExecutions, 2)
	assert.Contains(t, je.Failures, "boom")
	assert.Equal(t, model.BatchStatusFailed, probe.afterStatus, "AfterJob sees the final status")
	assert.Equal(t, 2, probe.steps)
}

func TestSimpleJobRunner_CancelledBetweenSteps(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	probe := &statusProbe{}
	first := &stubStep{name: "step1", hook: cancel}
	second := &stubStep{name: "step2"}
	job := runner.NewFlowJob("simpleJob", []port.Step{first, second}, repo, runner.WithJobListeners(probe))

	je, err := runner.NewSimpleJobRunner(repo).Run(ctx, job, model.NewJobParameters())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.BatchStatusStopped, je.Status)
	assert.False(t, second.called)
	assert.Equal(t, model.BatchStatusStopped, probe.afterStatus)

	stored, err := repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, stored.Status)
}

func TestFlowJob_RunStartsExecution(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	job := runner.NewFlowJob("simpleJob", []port.Step{&stubStep{name: "only"}}, repo)
	je := model.NewJobExecution(job.JobName(), model.NewJobParameters())
	require.NoError(t, repo.SaveJobExecution(context.Background(), je))

	require.NoError(t, job.Run(context.Background(), je, je.Parameters))
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Len(t, job.Steps(), 1)
}
