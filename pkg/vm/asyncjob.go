package vm

import (
	"net"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// AsyncJobKind selects what the worker does.
type AsyncJobKind int

const (
	AsyncJobNone AsyncJobKind = iota
	AsyncJobHostLookup
	AsyncJobRunCmd
)

// AsyncJob is one blocking host operation handed to a worker goroutine on
// behalf of a suspended fiber. Result fields are written by the worker
// before done is set and read by the fiber only after it observed done;
// the atomic flags are the only cross-thread synchronization. An
// abandoned job keeps running in the worker but nobody reads its result;
// the queue frees it when the in-flight operation finishes.
type AsyncJob struct {
	ID     uuid.UUID
	Handle int64
	Kind   AsyncJobKind

	// Host lookup input/result:
	Host         string
	ResultIP4    []byte
	ResultIP4Len int
	ResultIP6    []byte
	ResultIP6Len int

	// Run command input/result:
	Cmd      string
	Args     []string
	ExitCode int
	process  *exec.Cmd

	done        atomic.Bool
	failedOOM   atomic.Bool
	failedOther atomic.Bool
	abandoned   atomic.Bool

	requestThread *Thread
}

// Done reports whether the worker finished the job.
func (j *AsyncJob) Done() bool { return j.done.Load() }

// Failed reports whether the job finished unsuccessfully.
func (j *AsyncJob) Failed() bool {
	return j.failedOOM.Load() || j.failedOther.Load()
}

// Abandoned reports whether the requesting fiber detached from the job.
func (j *AsyncJob) Abandoned() bool { return j.abandoned.Load() }

// ProcessExited reports whether a run-command job's process terminated.
func (j *AsyncJob) ProcessExited() bool { return j.done.Load() }

// AsyncJobQueue owns the shared job queue and the worker goroutines that
// drain it. It is the only mutable state shared between fibers and the
// workers, guarded by one mutex.
type AsyncJobQueue struct {
	mu         sync.Mutex
	jobs       map[int64]*AsyncJob
	pending    chan *AsyncJob
	nextHandle int64
	closed     bool
	log        arbor.ILogger
	wg         sync.WaitGroup
}

// NewAsyncJobQueue starts workerCount background workers.
func NewAsyncJobQueue(workerCount int, log arbor.ILogger) *AsyncJobQueue {
	if workerCount < 1 {
		workerCount = 1
	}
	q := &AsyncJobQueue{
		jobs:    map[int64]*AsyncJob{},
		pending: make(chan *AsyncJob, 64),
		log:     log,
	}
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// NewHostLookupJob builds a host lookup job.
func NewHostLookupJob(host string) *AsyncJob {
	return &AsyncJob{ID: uuid.New(), Kind: AsyncJobHostLookup, Host: host}
}

// NewRunCmdJob builds a run-command job.
func NewRunCmdJob(cmd string, args []string) *AsyncJob {
	return &AsyncJob{ID: uuid.New(), Kind: AsyncJobRunCmd, Cmd: cmd, Args: args}
}

// RequestAsync transfers job ownership to the worker queue without
// blocking and returns the job handle the fiber suspends on. A full
// queue or a shut-down queue reports failure instead of blocking the
// scheduler.
func (q *AsyncJobQueue) RequestAsync(t *Thread, job *AsyncJob) (int64, bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, false
	}
	q.nextHandle++
	job.Handle = q.nextHandle
	job.requestThread = t
	q.jobs[job.Handle] = job
	q.mu.Unlock()

	select {
	case q.pending <- job:
	default:
		q.mu.Lock()
		delete(q.jobs, job.Handle)
		q.mu.Unlock()
		return 0, false
	}
	if q.log != nil {
		q.log.Debug().
			Str("job_id", job.ID.String()).
			Str("kind", strconv.Itoa(int(job.Kind))).
			Msg("asyncjob: queued")
	}
	return job.Handle, true
}

// AbandonJob detaches the requesting fiber. The worker still finishes
// the in-flight operation, but never signals the fiber; the queue drops
// the job when the worker is done with it.
func (q *AsyncJobQueue) AbandonJob(job *AsyncJob) {
	job.abandoned.Store(true)
	job.requestThread = nil
	q.mu.Lock()
	if job.done.Load() {
		delete(q.jobs, job.Handle)
	}
	q.mu.Unlock()
}

// JobByHandle returns a queued or finished job by handle.
func (q *AsyncJobQueue) JobByHandle(handle int64) *AsyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[handle]
}

// ConsumeJob removes a finished job from the queue and hands it to the
// requesting fiber. It returns nil while the job is still in flight.
func (q *AsyncJobQueue) ConsumeJob(handle int64) *AsyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := q.jobs[handle]
	if job == nil || !job.done.Load() {
		return nil
	}
	delete(q.jobs, handle)
	return job
}

// Close stops accepting jobs and waits for the workers to drain.
func (q *AsyncJobQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.pending)
	q.wg.Wait()
}

func (q *AsyncJobQueue) worker() {
	defer q.wg.Done()
	for job := range q.pending {
		q.perform(job)
		// Publish results before the done flag so the fiber's read after
		// observing done sees them.
		job.done.Store(true)
		if job.abandoned.Load() {
			// Nobody will consume this job; drop it now that the
			// in-flight operation finished.
			q.mu.Lock()
			delete(q.jobs, job.Handle)
			q.mu.Unlock()
			if q.log != nil {
				q.log.Debug().
					Str("job_id", job.ID.String()).
					Msg("asyncjob: abandoned job finished, freed")
			}
		}
	}
}

func (q *AsyncJobQueue) perform(job *AsyncJob) {
	switch job.Kind {
	case AsyncJobHostLookup:
		ips, err := net.LookupIP(job.Host)
		if err != nil {
			job.failedOther.Store(true)
			return
		}
		for _, ip := range ips {
			if v4 := ip.To4(); v4 != nil {
				if job.ResultIP4Len == 0 {
					job.ResultIP4 = append([]byte(nil), v4...)
					job.ResultIP4Len = len(v4)
				}
			} else if v6 := ip.To16(); v6 != nil {
				if job.ResultIP6Len == 0 {
					job.ResultIP6 = append([]byte(nil), v6...)
					job.ResultIP6Len = len(v6)
				}
			}
		}
	case AsyncJobRunCmd:
		cmd := exec.Command(job.Cmd, job.Args...)
		job.process = cmd
		if err := cmd.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				job.ExitCode = exitErr.ExitCode()
			} else {
				job.failedOther.Store(true)
				job.ExitCode = -1
			}
			return
		}
		job.ExitCode = 0
	}
}
