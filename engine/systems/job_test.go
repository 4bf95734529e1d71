package systems

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemRejectsBadSizes(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestRunAllWaitsForEveryJob(t *testing.T) {
	core.SetLogOutput(io.Discard)
	js, err := NewJobSystem(4, 8)
	require.NoError(t, err)
	defer js.Shutdown()

	var started, completed, failed atomic.Int32
	tasks := make([]JobTask, 0, 20)
	for i := 0; i < 20; i++ {
		fail := i%5 == 0
		tasks = append(tasks, JobTask{
			JobType: JOB_TYPE_RESOURCE_LOAD,
			Name:    "test",
			OnStart: func() error {
				started.Add(1)
				if fail {
					return errors.New("boom")
				}
				return nil
			},
			OnComplete: func() { completed.Add(1) },
			OnFailure:  func(error) { failed.Add(1) },
		})
	}
	js.RunAll(tasks)

	assert.EqualValues(t, 20, started.Load())
	assert.EqualValues(t, 16, completed.Load())
	assert.EqualValues(t, 4, failed.Load())
}

func TestShutdownIsIdempotent(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)

	var ran atomic.Bool
	js.Submit(JobTask{OnStart: func() error { ran.Store(true); return nil }})
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	assert.True(t, ran.Load())
	assert.Equal(t, 2, js.Workers())
}
