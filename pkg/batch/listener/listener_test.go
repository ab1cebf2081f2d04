package listener_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/bookbatch/pkg/batch/listener"
	batchtest "github.com/tigerroll/bookbatch/pkg/batch/test"
)

func TestJobCompletionSignaler(t *testing.T) {
	s := listener.NewJobCompletionSignaler()
	je := batchtest.NewTestJobExecution("simpleJob")

	select {
	case <-s.Done():
		t.Fatal("signaled before the job finished")
	default:
	}

	s.AfterJob(context.Background(), je)
	s.AfterJob(context.Background(), je)

	_, open := <-s.Done()
	assert.False(t, open)
}
