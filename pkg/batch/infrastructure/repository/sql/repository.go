// Package sql stores job and step execution metadata in a relational database through gorm.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// GormProvider is satisfied by the gorm database adapter.
type GormProvider interface {
	GetGormDB() *gorm.DB
}

// SQLJobRepository implements the repository.JobRepository interface.
// Metadata writes run outside the chunk transaction so that they survive a rollback.
type SQLJobRepository struct {
	db *gorm.DB
}

// NewSQLJobRepository creates the metadata tables when missing and returns the repository.
//
// Parameters:
//
//	ctx: Bounds the schema creation.
//	conn: The connection holding the metadata tables. Its lifecycle stays with the caller.
func NewSQLJobRepository(ctx context.Context, conn GormProvider) (*SQLJobRepository, error) {
	db := conn.GetGormDB()
	if err := db.WithContext(ctx).AutoMigrate(&JobExecutionEntity{}, &StepExecutionEntity{}); err != nil {
		return nil, exception.NewBatchError("SQLJobRepository", "failed to create metadata tables", err, false, false)
	}
	return &SQLJobRepository{db: db}, nil
}

// --- JobExecution implementation ---

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.SaveJobExecution"
	if err := r.db.WithContext(ctx).Create(fromDomainJobExecution(jobExecution)).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.UpdateJobExecution"
	jobExecution.LastUpdated = time.Now()
	entity := fromDomainJobExecution(jobExecution)

	err := r.update(ctx, &JobExecutionEntity{}, entity.ID, entity)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"
	var entity JobExecutionEntity

	err := r.db.WithContext(ctx).Where("id = ?", executionID).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrJobExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution by ID: %s", executionID), err, true, false)
	}

	je := toDomainJobExecution(&entity)
	if err := r.attachSteps(ctx, je); err != nil {
		logger.Errorf("%s: Failed to load StepExecutions for JobExecution (ID: %s): %v", op, executionID, err)
	}
	return je, nil
}

// FindJobExecutionsByJobName returns every execution of jobName, oldest first.
func (r *SQLJobRepository) FindJobExecutionsByJobName(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionsByJobName"
	var entities []JobExecutionEntity

	if err := r.db.WithContext(ctx).Where("job_name = ?", jobName).Order("create_time").Find(&entities).Error; err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecutions of job '%s'", jobName), err, true, false)
	}

	result := make([]*model.JobExecution, 0, len(entities))
	for i := range entities {
		je := toDomainJobExecution(&entities[i])
		if err := r.attachSteps(ctx, je); err != nil {
			return nil, exception.NewBatchError(op, fmt.Sprintf("failed to load StepExecutions for JobExecution (ID: %s)", je.ID), err, true, false)
		}
		result = append(result, je)
	}
	return result, nil
}

// FindStepExecutionsByJobExecutionID retrieves all StepExecutions of a JobExecution ordered by StartTime.
func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	var entities []StepExecutionEntity
	if err := r.db.WithContext(ctx).Where("job_execution_id = ?", jobExecutionID).Order("start_time").Find(&entities).Error; err != nil {
		return nil, err
	}
	steps := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		steps = append(steps, toDomainStepExecution(&entities[i]))
	}
	return steps, nil
}

func (r *SQLJobRepository) attachSteps(ctx context.Context, je *model.JobExecution) error {
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return err
	}
	for _, se := range steps {
		se.JobExecution = je
	}
	je.StepExecutions = steps
	return nil
}

// --- StepExecution implementation ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.SaveStepExecution"
	if err := r.db.WithContext(ctx).Create(fromDomainStepExecution(stepExecution)).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.UpdateStepExecution"
	stepExecution.LastUpdated = time.Now()
	entity := fromDomainStepExecution(stepExecution)

	err := r.update(ctx, &StepExecutionEntity{}, entity.ID, entity)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("StepExecution with ID %s not found for update: %w", stepExecution.ID, repository.ErrStepExecutionNotFound)
	}
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionByID"
	var entity StepExecutionEntity

	err := r.db.WithContext(ctx).Where("id = ?", executionID).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrStepExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecution by ID: %s", executionID), err, true, false)
	}
	return toDomainStepExecution(&entity), nil
}

// update overwrites every column of the row with the given id. Some drivers report zero
// affected rows when nothing changed, so existence is checked explicitly.
func (r *SQLJobRepository) update(ctx context.Context, table interface{}, id string, entity interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(table).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(table).Where("id = ?", id).Select("*").Updates(entity).Error
	})
}

// Close implements repository.JobRepository.
func (r *SQLJobRepository) Close() error {
	// The connection is owned by whoever opened it.
	return nil
}

// Verify that SQLJobRepository implements all embedded interfaces of repository.JobRepository.
var _ repository.JobRepository = (*SQLJobRepository)(nil)
