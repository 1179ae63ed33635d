package vm

import (
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canter/pkg/bytecode"
)

// FiberState tracks where a fiber is in its lifecycle.
type FiberState int

const (
	FiberReady FiberState = iota
	FiberSuspended
	FiberDone
	FiberFailed
)

// Fiber is one cooperatively scheduled execution context: a thread plus
// its park state.
type Fiber struct {
	Thread *Thread
	State  FiberState

	SuspendReason SuspendType
	SuspendArg    int64

	Result Value
	Error  Value

	IsMain bool
}

// SchedulerOptions toggles the debug logging axes.
type SchedulerOptions struct {
	Debug        bool
	VerboseDebug bool
}

// Scheduler owns a set of fibers and runs them one at a time: only one
// fiber ever executes per tick, so language code never observes
// preemption. Readiness is re-checked cooperatively at each tick and the
// round-robin start position rotates so no ready fiber starves.
type Scheduler struct {
	program *bytecode.Program
	globals []Value
	jobs    *AsyncJobQueue
	opts    SchedulerOptions
	log     arbor.ILogger

	fibers    []*Fiber
	nextIndex int
}

// NewScheduler builds a scheduler for a validated program, initializing
// the shared globals from their recorded constants.
func NewScheduler(p *bytecode.Program, jobs *AsyncJobQueue, opts SchedulerOptions, log arbor.ILogger) *Scheduler {
	globals := make([]Value, len(p.Globals))
	for i, g := range p.Globals {
		if g.InitialConst >= 0 {
			c := p.Constants[g.InitialConst]
			switch c.Kind {
			case bytecode.ConstInt:
				globals[i] = Int64(c.Int)
			case bytecode.ConstFloat:
				globals[i] = Float64(c.Float)
			case bytecode.ConstBool:
				globals[i] = Bool(c.Int != 0)
			case bytecode.ConstString:
				// Global string constants stay immortal:
				globals[i] = Value{
					Kind:     ValConstPreallocStr,
					ConstStr: []rune(c.Str),
				}
			case bytecode.ConstBytes:
				globals[i] = Value{
					Kind:       ValConstPreallocBytes,
					ConstBytes: append([]byte(nil), c.Bytes...),
				}
			}
		}
	}
	return &Scheduler{
		program: p,
		globals: globals,
		jobs:    jobs,
		opts:    opts,
		log:     log,
	}
}

// SpawnFiber creates a fiber running funcID with args. Mark the fiber
// whose outcome should become the process result by setting IsMain.
func (s *Scheduler) SpawnFiber(funcID int64, args []Value) *Fiber {
	t := NewThread(s.program)
	t.globals = s.globals
	fiber := &Fiber{Thread: t}
	if !t.SetupEntryCall(funcID, args) {
		fiber.State = FiberFailed
		fiber.Error = Value{Kind: ValError, Int: 0,
			EInfo: &ErrorInfo{Message: "out of memory"}}
	}
	s.fibers = append(s.fibers, fiber)
	if s.opts.Debug && s.log != nil {
		s.log.Debug().
			Str("func_id", strconv.FormatInt(funcID, 10)).
			Str("fiber", strconv.Itoa(len(s.fibers)-1)).
			Msg("vmschedule: spawned fiber")
	}
	return fiber
}

// fiberReady re-checks a suspended fiber's wake condition.
func (s *Scheduler) fiberReady(f *Fiber) bool {
	if f.State == FiberReady {
		return true
	}
	if f.State != FiberSuspended {
		return false
	}
	switch f.SuspendReason {
	case SuspendFixedTime:
		return nowMonotonicMS() >= f.SuspendArg
	case SuspendSocketReadable:
		return pollFD(int(f.SuspendArg), false)
	case SuspendSocketWritable:
		return pollFD(int(f.SuspendArg), true)
	case SuspendAsyncJobWait:
		if s.jobs == nil {
			return false
		}
		job := s.jobs.JobByHandle(f.SuspendArg)
		return job == nil || job.Done()
	case SuspendProcessExit:
		if s.jobs == nil {
			return false
		}
		job := s.jobs.JobByHandle(f.SuspendArg)
		return job == nil || job.ProcessExited()
	}
	return false
}

// nowMonotonicMS is the scheduler clock: milliseconds on the monotonic
// timeline fixed-time suspensions store their deadline on.
var schedulerEpoch = time.Now()

func nowMonotonicMS() int64 {
	return time.Since(schedulerEpoch).Milliseconds()
}

// DeadlineInMS converts a relative wait into the scheduler's clock.
func DeadlineInMS(d time.Duration) int64 {
	return nowMonotonicMS() + d.Milliseconds()
}

// pollFD asks the OS whether the fd is readable/writable or errored,
// without blocking.
func pollFD(fd int, wantWrite bool) bool {
	events := int16(unix.POLLIN)
	if wantWrite {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{
		Fd:     int32(fd),
		Events: events | unix.POLLERR | unix.POLLHUP,
	}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		return true // treat poll failure as "wake up and let it error"
	}
	return n > 0 && fds[0].Revents != 0
}

// Tick runs one ready fiber until it suspends, returns, or fails.
// It reports whether any fiber is still alive.
func (s *Scheduler) Tick() bool {
	alive := false
	n := len(s.fibers)
	for off := 0; off < n; off++ {
		idx := (s.nextIndex + off) % n
		f := s.fibers[idx]
		if f.State == FiberDone || f.State == FiberFailed {
			continue
		}
		alive = true
		if !s.fiberReady(f) {
			continue
		}
		// Rotate the starting position so same-tick-ready fibers take
		// turns rather than the lowest index hogging every tick.
		s.nextIndex = (idx + 1) % n
		s.runFiber(idx, f)
		return s.anyAlive()
	}
	return alive
}

func (s *Scheduler) anyAlive() bool {
	for _, f := range s.fibers {
		if f.State == FiberReady || f.State == FiberSuspended {
			return true
		}
	}
	return false
}

func (s *Scheduler) runFiber(idx int, f *Fiber) {
	f.State = FiberReady
	res := f.Thread.Run()
	switch res.Status {
	case RunReturned:
		f.State = FiberDone
		f.Result = res.Value
		if s.opts.Debug && s.log != nil {
			s.log.Debug().Str("fiber", strconv.Itoa(idx)).Msg("vmschedule: fiber returned")
		}
	case RunSuspended:
		f.State = FiberSuspended
		f.SuspendReason = res.Suspend
		f.SuspendArg = res.SuspendArg
		if s.opts.VerboseDebug && s.log != nil {
			s.log.Debug().
				Str("fiber", strconv.Itoa(idx)).
				Str("reason", strconv.Itoa(int(res.Suspend))).
				Str("arg", strconv.FormatInt(res.SuspendArg, 10)).
				Msg("vmschedule: fiber suspended")
		}
	case RunUncaughtError:
		f.State = FiberFailed
		f.Error = res.Value
		if s.log != nil {
			msg := ""
			if res.Value.EInfo != nil {
				msg = res.Value.EInfo.Message
			}
			if f.IsMain {
				s.log.Error().
					Str("fiber", strconv.Itoa(idx)).
					Str("error", msg).
					Msg("vmschedule: uncaught error in main fiber")
			} else {
				s.log.Warn().
					Str("fiber", strconv.Itoa(idx)).
					Str("error", msg).
					Msg("vmschedule: uncaught error, fiber terminated")
			}
		}
	}
}

// RunUntilDone drives ticks until every fiber finished, sleeping briefly
// when nothing is ready so waits do not spin hot.
func (s *Scheduler) RunUntilDone() int {
	for {
		if !s.Tick() {
			break
		}
		if !s.anyReady() {
			time.Sleep(200 * time.Microsecond)
		}
	}
	return s.ExitCode()
}

func (s *Scheduler) anyReady() bool {
	for _, f := range s.fibers {
		if f.State == FiberReady ||
			(f.State == FiberSuspended && s.fiberReady(f)) {
			return true
		}
	}
	return false
}

// ExitCode derives the process result from the main fiber (the most
// recently spawned one when none was marked): its integer return value,
// or 1 on an uncaught error.
func (s *Scheduler) ExitCode() int {
	var main *Fiber
	for _, f := range s.fibers {
		if f.IsMain {
			main = f
		}
	}
	if main == nil && len(s.fibers) > 0 {
		main = s.fibers[len(s.fibers)-1]
	}
	if main == nil {
		return 0
	}
	if main.State == FiberFailed {
		return 1
	}
	if main.Result.Kind == ValInt64 {
		return int(main.Result.Int)
	}
	return 0
}

// Shutdown tears every unfinished fiber down, invoking the registered
// async abort functions so outstanding jobs are abandoned instead of
// signalling dead fibers.
func (s *Scheduler) Shutdown() {
	for _, f := range s.fibers {
		if f.State == FiberDone || f.State == FiberFailed {
			continue
		}
		f.Thread.FreeThread()
		f.State = FiberFailed
	}
}
