package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// JobStatus represents the state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusStopping  JobStatus = "STOPPING"
	BatchStatusStopped   JobStatus = "STOPPED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusAbandoned JobStatus = "ABANDONED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished checks if the JobStatus represents a finished state.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// ExitStatus represents the detailed status upon job/step completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusNoOp      ExitStatus = "NOOP"
)

// String returns the string representation of the ExitStatus.
func (s ExitStatus) String() string {
	return string(s)
}

// RepeatStatus is returned by a tasklet to tell its step whether to invoke it again.
type RepeatStatus string

const (
	// RepeatStatusFinished ends the tasklet step successfully.
	RepeatStatusFinished RepeatStatus = "FINISHED"
	// RepeatStatusContinuable asks the step to invoke the tasklet again.
	RepeatStatusContinuable RepeatStatus = "CONTINUABLE"
)

// ExecutionContext is a key-value store scoped to a job or step execution.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put stores a value under key.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get returns the value stored under key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	v, ok := ec[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the value under key as an int. Numeric strings and float values
// (as produced by JSON round trips) are converted.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	v, ok := ec[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// Copy returns a shallow copy of the ExecutionContext.
func (ec ExecutionContext) Copy() ExecutionContext {
	c := make(ExecutionContext, len(ec))
	for k, v := range ec {
		c[k] = v
	}
	return c
}

// FailureList holds failure messages in the order they were recorded.
type FailureList []string

// JobParameters holds the parameters a job was launched with.
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters creates empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Put stores a parameter.
func (jp JobParameters) Put(key string, value interface{}) {
	jp.Params[key] = value
}

// Get returns a parameter or nil.
func (jp JobParameters) Get(key string) interface{} {
	if jp.Params == nil {
		return nil
	}
	return jp.Params[key]
}

// GetString returns a parameter if it is a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	s, ok := jp.Get(key).(string)
	return s, ok
}

// String renders the parameters for logs.
func (jp JobParameters) String() string {
	return fmt.Sprintf("%v", jp.Params)
}

// JobExecution is a structure representing a single execution instance of a job.
type JobExecution struct {
	ID               string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	CurrentStepName  string
}

// StepExecution is a structure representing a single execution instance of a step.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// NewJobExecution creates a new JobExecution in STARTING state.
func NewJobExecution(jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	if params.Params == nil {
		params = NewJobParameters()
	}
	return &JobExecution{
		ID:               NewID(),
		JobName:          jobName,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         make(FailureList, 0),
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// isValidJobTransition checks if the state transition for JobExecution is valid.
func isValidJobTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusStopping || next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusAbandoned
	case BatchStatusStopping:
		return next == BatchStatusStopped || next == BatchStatusFailed || next == BatchStatusAbandoned
	case BatchStatusFailed, BatchStatusStopped:
		return next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo safely transitions the state of JobExecution.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): Invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted updates the JobExecution status to STARTED and resets StartTime.
func (je *JobExecution) MarkAsStarted() {
	if err := je.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to STARTED: %v", je.ID, err)
		return
	}
	je.StartTime = je.LastUpdated
	je.ExitStatus = ExitStatusExecuting
}

// MarkAsCompleted updates the JobExecution status to COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed updates the JobExecution status to FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.finish(BatchStatusFailed, ExitStatusFailed)
	je.AddFailureException(err)
}

// MarkAsStopped updates the JobExecution status to STOPPED. A running job passes through STOPPING.
func (je *JobExecution) MarkAsStopped() {
	if je.Status == BatchStatusStarted {
		_ = je.TransitionTo(BatchStatusStopping)
	}
	je.finish(BatchStatusStopped, ExitStatusStopped)
}

func (je *JobExecution) finish(status JobStatus, exit ExitStatus) {
	if err := je.TransitionTo(status); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to %s: %v", je.ID, status, err)
		return
	}
	je.ExitStatus = exit
	now := je.LastUpdated
	je.EndTime = &now
}

// AddFailureException adds error information to JobExecution. Duplicate messages are ignored.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	errMsg := exception.ExtractErrorMessage(err)
	for _, existing := range je.Failures {
		if existing == errMsg {
			logger.Debugf("Skipped adding duplicate error '%s' to JobExecution (ID: %s).", errMsg, je.ID)
			return
		}
	}
	je.Failures = append(je.Failures, errMsg)
	je.LastUpdated = time.Now()
}

// AddStepExecution adds a StepExecution to JobExecution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.StepExecutions = append(je.StepExecutions, se)
}

// NewStepExecution creates a new StepExecution in STARTING state attached to jobExecution.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		JobExecution:     jobExecution,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	if jobExecution != nil {
		se.JobExecutionID = jobExecution.ID
	}
	return se
}

// isValidStepTransition checks if the state transition for StepExecution is valid.
func isValidStepTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo safely transitions the state of StepExecution.
func (se *StepExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): Invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted updates the StepExecution status to STARTED.
func (se *StepExecution) MarkAsStarted() {
	if err := se.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to STARTED: %v", se.ID, err)
		return
	}
	se.StartTime = se.LastUpdated
	se.ExitStatus = ExitStatusExecuting
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed updates the StepExecution status to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed, ExitStatusFailed)
	se.AddFailureException(err)
}

// MarkAsStopped updates the StepExecution status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped, ExitStatusStopped)
}

func (se *StepExecution) finish(status JobStatus, exit ExitStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to %s: %v", se.ID, status, err)
		return
	}
	se.ExitStatus = exit
	now := se.LastUpdated
	se.EndTime = &now
}

// AddFailureException adds error information to StepExecution. Duplicate messages are ignored.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	errMsg := exception.ExtractErrorMessage(err)
	for _, existing := range se.Failures {
		if existing == errMsg {
			return
		}
	}
	se.Failures = append(se.Failures, errMsg)
	se.LastUpdated = time.Now()
}

// DebugString summarizes the counters of a StepExecution.
func (se *StepExecution) DebugString() string {
	return fmt.Sprintf("StepExecution[name=%s, status=%s, exit=%s, read=%d, write=%d, filter=%d, commit=%d, rollback=%d]",
		se.StepName, se.Status, se.ExitStatus, se.ReadCount, se.WriteCount, se.FilterCount, se.CommitCount, se.RollbackCount)
}
