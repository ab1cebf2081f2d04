// Package incrementer derives the parameters of the next job launch from the previous one.
package incrementer

import (
	"strconv"

	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter a RunIDIncrementer maintains unless told otherwise.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer adds or increments a run counter in job parameters.
// It sets the counter to 1 if it does not exist, or increments its value if it does.
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer creates a new instance of RunIDIncrementer. An empty name means DefaultRunIDKey.
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// Name returns the parameter key the incrementer maintains.
func (i *RunIDIncrementer) Name() string {
	return i.name
}

// GetNext returns a copy of params with the run counter incremented.
func (i *RunIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	nextParams := model.NewJobParameters()
	for k, v := range params.Params {
		nextParams.Put(k, v)
	}

	currentRunID, ok := runID(params.Get(i.name))
	if !ok {
		nextParams.Put(i.name, 1)
		logger.Debugf("RunIDIncrementer: '%s' not found, setting to 1.", i.name)
		return nextParams
	}
	nextParams.Put(i.name, currentRunID+1)
	logger.Debugf("RunIDIncrementer: Incrementing '%s' from %d to %d.", i.name, currentRunID, currentRunID+1)
	return nextParams
}

// runID accepts the shapes a counter takes after a JSON round trip.
func runID(v interface{}) (int, bool) {
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
