package vm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, job *AsyncJob) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !job.Done() {
		if time.Now().After(deadline) {
			t.Fatal("job never finished")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAsyncJob_RunCommandExitCode(t *testing.T) {
	q := NewAsyncJobQueue(1, nil)
	defer q.Close()

	job := NewRunCmdJob("sh", []string{"-c", "exit 3"})
	handle, ok := q.RequestAsync(nil, job)
	require.True(t, ok)
	require.Greater(t, handle, int64(0))

	waitDone(t, job)
	consumed := q.ConsumeJob(handle)
	require.NotNil(t, consumed)
	assert.Equal(t, 3, consumed.ExitCode)
	assert.False(t, consumed.Failed())
}

func TestAsyncJob_RunCommandSuccess(t *testing.T) {
	q := NewAsyncJobQueue(2, nil)
	defer q.Close()

	job := NewRunCmdJob("sh", []string{"-c", "true"})
	_, ok := q.RequestAsync(nil, job)
	require.True(t, ok)
	waitDone(t, job)
	assert.Equal(t, 0, job.ExitCode)
}

func TestAsyncJob_MissingBinaryFailsOther(t *testing.T) {
	q := NewAsyncJobQueue(1, nil)
	defer q.Close()

	job := NewRunCmdJob("/nonexistent/binary/for/canter", nil)
	_, ok := q.RequestAsync(nil, job)
	require.True(t, ok)
	waitDone(t, job)
	assert.True(t, job.Failed())
}

func TestAsyncJob_AbandonBeforeCompletion(t *testing.T) {
	q := NewAsyncJobQueue(1, nil)
	defer q.Close()

	job := NewRunCmdJob("sh", []string{"-c", "sleep 0.05"})
	handle, ok := q.RequestAsync(nil, job)
	require.True(t, ok)

	// Abandon while the command still runs; the worker must finish and
	// free the job without signalling anyone.
	q.AbandonJob(job)
	assert.True(t, job.Abandoned())

	waitDone(t, job)
	// Give the worker a moment to drop the abandoned job:
	deadline := time.Now().Add(time.Second)
	for q.JobByHandle(handle) != nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Nil(t, q.JobByHandle(handle),
		"abandoned job must be freed after completion")
}

func TestAsyncJob_AbandonAfterCompletion(t *testing.T) {
	q := NewAsyncJobQueue(1, nil)
	defer q.Close()

	job := NewRunCmdJob("sh", []string{"-c", "true"})
	handle, ok := q.RequestAsync(nil, job)
	require.True(t, ok)
	waitDone(t, job)

	q.AbandonJob(job)
	assert.Nil(t, q.JobByHandle(handle))
}

func TestAsyncJob_ResultsVisibleAfterDone(t *testing.T) {
	q := NewAsyncJobQueue(1, nil)
	defer q.Close()

	job := NewHostLookupJob("localhost")
	_, ok := q.RequestAsync(nil, job)
	require.True(t, ok)
	waitDone(t, job)
	if !job.Failed() {
		// localhost resolves to a v4 or v6 loopback address:
		assert.True(t, job.ResultIP4Len == 4 || job.ResultIP6Len == 16)
	}
}

func TestAsyncJob_RequestAfterCloseFails(t *testing.T) {
	q := NewAsyncJobQueue(1, nil)
	q.Close()
	_, ok := q.RequestAsync(nil, NewRunCmdJob("sh", nil))
	assert.False(t, ok)
}
