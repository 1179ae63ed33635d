package vm_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/lexer"
	"github.com/ternarybob/canter/pkg/vm"
)

func TestScheduler_FairnessAcrossReadyFibers(t *testing.T) {
	out := &bytes.Buffer{}
	p := newTestProgram(out)
	c0 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 0})
	funcID := addFunc(p, "noop", 0, 1, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: c0},
		{Op: bytecode.OpReturnValue, SlotB: 0},
	})

	sched := vm.NewScheduler(p, nil, vm.SchedulerOptions{}, nil)
	const n = 8
	fibers := make([]*vm.Fiber, n)
	for i := range fibers {
		fibers[i] = sched.SpawnFiber(funcID, nil)
	}
	// With N simultaneously ready fibers, each runs at least once within
	// N ticks:
	for i := 0; i < n; i++ {
		sched.Tick()
	}
	for i, f := range fibers {
		assert.Equal(t, vm.FiberDone, f.State, "fiber %d starved", i)
	}
}

func TestScheduler_SleepSuspendsAndResumes(t *testing.T) {
	out := &bytes.Buffer{}
	p := newTestProgram(out)
	sleepID := p.FuncByName("time.sleep")
	require.GreaterOrEqual(t, sleepID, int64(0))
	cDur := p.AddConstant(bytecode.Constant{
		Kind: bytecode.ConstFloat, Float: 0.02})
	c5 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 5})
	funcID := addFunc(p, "main", 0, 4, []bytecode.Instruction{
		{Op: bytecode.OpGetFunc, Slot: 0, ID: sleepID},
		{Op: bytecode.OpSetConst, Slot: 1, ID: cDur},
		{Op: bytecode.OpCall, Slot: 2, SlotB: 0, SlotC: 1, ID: 1},
		{Op: bytecode.OpSetConst, Slot: 3, ID: c5},
		{Op: bytecode.OpReturnValue, SlotB: 3},
	})

	sched := vm.NewScheduler(p, nil, vm.SchedulerOptions{}, nil)
	fiber := sched.SpawnFiber(funcID, nil)
	fiber.IsMain = true

	// The first tick must leave the fiber suspended on a deadline:
	sched.Tick()
	require.Equal(t, vm.FiberSuspended, fiber.State)
	assert.Equal(t, vm.SuspendFixedTime, fiber.SuspendReason)

	start := time.Now()
	code := sched.RunUntilDone()
	assert.Equal(t, 5, code)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestScheduler_ExitCodeFromMainFiber(t *testing.T) {
	p := newTestProgram(nil)
	c3 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 3})
	funcID := addFunc(p, "main", 0, 1, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: c3},
		{Op: bytecode.OpReturnValue, SlotB: 0},
	})
	sched := vm.NewScheduler(p, nil, vm.SchedulerOptions{}, nil)
	fiber := sched.SpawnFiber(funcID, nil)
	fiber.IsMain = true
	assert.Equal(t, 3, sched.RunUntilDone())
}

func TestScheduler_NonMainFailureDoesNotFailProcess(t *testing.T) {
	p := newTestProgram(nil)
	c1 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 1})
	c0 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 0})
	failID := addFunc(p, "boom", 0, 3, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: c1},
		{Op: bytecode.OpSetConst, Slot: 1, ID: c0},
		{Op: bytecode.OpBinOp, Slot: 2, SlotB: 0, SlotC: 1,
			MathOp: lexer.OpMathDivide},
	})
	okID := addFunc(p, "main", 0, 1, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: c0},
		{Op: bytecode.OpReturnValue, SlotB: 0},
	})
	sched := vm.NewScheduler(p, nil, vm.SchedulerOptions{}, nil)
	boom := sched.SpawnFiber(failID, nil)
	main := sched.SpawnFiber(okID, nil)
	main.IsMain = true
	code := sched.RunUntilDone()
	assert.Equal(t, 0, code)
	assert.Equal(t, vm.FiberFailed, boom.State)
	assert.Equal(t, vm.FiberDone, main.State)
}

func TestScheduler_TeardownInvokesAbortFunc(t *testing.T) {
	p := newTestProgram(nil)
	c0 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 0})
	funcID := addFunc(p, "main", 0, 1, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: c0},
		{Op: bytecode.OpReturnValue, SlotB: 0},
	})
	sched := vm.NewScheduler(p, nil, vm.SchedulerOptions{}, nil)
	fiber := sched.SpawnFiber(funcID, nil)

	aborted := false
	fiber.Thread.AsyncAbortFunc = func() { aborted = true }
	sched.Shutdown()
	assert.True(t, aborted,
		"teardown must invoke the foreground async abort func")
}
