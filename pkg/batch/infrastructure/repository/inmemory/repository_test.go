package inmemory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/bookbatch/pkg/batch/infrastructure/repository/inmemory"
)

func TestInMemoryJobRepository_JobExecution(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	defer repo.Close()

	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	assert.Error(t, repo.SaveJobExecution(ctx, je), "duplicate IDs are rejected")

	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	// The stored copy is a snapshot.
	je.MarkAsFailed(errors.New("later"))
	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarted, found.Status)
	assert.Empty(t, found.Failures)

	_, err = repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

	err = repo.UpdateJobExecution(ctx, model.NewJobExecution("other", model.NewJobParameters()))
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
}

func TestInMemoryJobRepository_StepExecutionsAttached(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	je := model.NewJobExecution("simpleJob", model.NewJobParameters())
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	first := model.NewStepExecution(model.NewID(), je, "step1")
	require.NoError(t, repo.SaveStepExecution(ctx, first))
	second := model.NewStepExecution(model.NewID(), je, "XMLToCSV")
	second.StartTime = first.StartTime.Add(1)
	require.NoError(t, repo.SaveStepExecution(ctx, second))

	second.WriteCount = 23
	require.NoError(t, repo.UpdateStepExecution(ctx, second))

	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	require.Len(t, found.StepExecutions, 2)
	assert.Equal(t, "step1", found.StepExecutions[0].StepName)
	assert.Equal(t, "XMLToCSV", found.StepExecutions[1].StepName)
	assert.Equal(t, 23, found.StepExecutions[1].WriteCount)

	se, err := repo.FindStepExecutionByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 23, se.WriteCount)

	_, err = repo.FindStepExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
	assert.ErrorIs(t, repo.UpdateStepExecution(ctx, model.NewStepExecution("nope", je, "x")), repository.ErrStepExecutionNotFound)
}

func TestInMemoryJobRepository_FindByJobName(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	a := model.NewJobExecution("simpleJob", model.NewJobParameters())
	b := model.NewJobExecution("simpleJob", model.NewJobParameters())
	b.CreateTime = a.CreateTime.Add(1)
	c := model.NewJobExecution("otherJob", model.NewJobParameters())
	for _, je := range []*model.JobExecution{b, c, a} {
		require.NoError(t, repo.SaveJobExecution(ctx, je))
	}

	found, err := repo.FindJobExecutionsByJobName(ctx, "simpleJob")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a.ID, found[0].ID)
	assert.Equal(t, b.ID, found[1].ID)
}
