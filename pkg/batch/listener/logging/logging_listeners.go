// Package logging provides listeners that log job, step and chunk lifecycle events.
package logging

import (
	"context"

	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %s", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.String())
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if jobExecution.Status != model.BatchStatusCompleted {
		logger.Warnf("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s, Failures: %v", jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus, jobExecution.Failures)
		return
	}
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s", jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s", stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus)
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s", stepExecution.StepName)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d, Filter: %d", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount)
}

func (l *LoggingChunkListener) OnChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	logger.Errorf("ChunkListener: OnChunkError - StepName: %s, Rollbacks: %d, Error: %v", stepExecution.StepName, stepExecution.RollbackCount, err)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)
