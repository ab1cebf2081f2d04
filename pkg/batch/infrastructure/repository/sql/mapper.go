package sql

import (
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:               je.ID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		StartTime:        je.StartTime,
		EndTime:          je.EndTime,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		Failures:         je.Failures,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext,
		CurrentStepName:  je.CurrentStepName,
	}
}

// toDomainJobExecution leaves StepExecutions empty; the repository attaches them.
func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	je := &model.JobExecution{
		ID:               entity.ID,
		JobName:          entity.JobName,
		Parameters:       entity.Parameters,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Failures:         entity.Failures,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
		ExecutionContext: entity.ExecutionContext,
		CurrentStepName:  entity.CurrentStepName,
		StepExecutions:   make([]*model.StepExecution, 0),
	}
	if je.Parameters.Params == nil {
		je.Parameters = model.NewJobParameters()
	}
	if je.ExecutionContext == nil {
		je.ExecutionContext = model.NewExecutionContext()
	}
	if je.Failures == nil {
		je.Failures = make(model.FailureList, 0)
	}
	return je
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   se.JobExecutionID,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		Failures:         se.Failures,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		FilterCount:      se.FilterCount,
		ExecutionContext: se.ExecutionContext,
		LastUpdated:      se.LastUpdated,
	}
}

// toDomainStepExecution does not set JobExecution; the caller links it to avoid cycles.
func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	se := &model.StepExecution{
		ID:               entity.ID,
		StepName:         entity.StepName,
		JobExecutionID:   entity.JobExecutionID,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Failures:         entity.Failures,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		CommitCount:      entity.CommitCount,
		RollbackCount:    entity.RollbackCount,
		FilterCount:      entity.FilterCount,
		ExecutionContext: entity.ExecutionContext,
		LastUpdated:      entity.LastUpdated,
	}
	if se.ExecutionContext == nil {
		se.ExecutionContext = model.NewExecutionContext()
	}
	if se.Failures == nil {
		se.Failures = make(model.FailureList, 0)
	}
	return se
}
