// Package repository defines persistence ports for execution metadata.
package repository

// JobRepository persists job and step execution metadata, the same role as
// Spring Batch's JobRepository. Restart from checkpoints is not supported, so only
// executions (not instances or checkpoints) are stored.
type JobRepository interface {
	JobExecution
	StepExecution

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}
