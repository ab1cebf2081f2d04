package sql

import (
	"time"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

// JobExecutionEntity is the persisted form of model.JobExecution.
type JobExecutionEntity struct {
	ID               string                 `gorm:"primaryKey;size:36"`
	JobName          string                 `gorm:"size:255;index"`
	Parameters       model.JobParameters    `gorm:"column:job_parameters;serializer:json"`
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus        `gorm:"size:20"`
	ExitStatus       model.ExitStatus       `gorm:"size:20"`
	Failures         model.FailureList      `gorm:"serializer:json"`
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext model.ExecutionContext `gorm:"serializer:json"`
	CurrentStepName  string                 `gorm:"size:255"`
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is the persisted form of model.StepExecution.
type StepExecutionEntity struct {
	ID               string                 `gorm:"primaryKey;size:36"`
	StepName         string                 `gorm:"size:255"`
	JobExecutionID   string                 `gorm:"size:36;index"`
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus        `gorm:"size:20"`
	ExitStatus       model.ExitStatus       `gorm:"size:20"`
	Failures         model.FailureList      `gorm:"serializer:json"`
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	ExecutionContext model.ExecutionContext `gorm:"serializer:json"`
	LastUpdated      time.Time
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
