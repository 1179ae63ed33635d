package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/corelib"
	"github.com/ternarybob/canter/pkg/lexer"
	"github.com/ternarybob/canter/pkg/vm"
)

// newTestProgram builds a program with the standard error classes and
// built-ins registered.
func newTestProgram(out *bytes.Buffer) *bytecode.Program {
	p := bytecode.New()
	corelib.RegisterErrorClasses(p)
	b := &corelib.Builtins{}
	if out != nil {
		b.Out = out
	}
	b.Register(p)
	return p
}

func addFunc(p *bytecode.Program, name string, args int, inner int, code []bytecode.Instruction) int64 {
	argNames := make([]string, args)
	for i := range argNames {
		argNames[i] = string(rune('a' + i))
	}
	return p.RegisterFunction(&bytecode.Function{
		Name:           name,
		InputStackSize: args,
		InnerStackSize: inner,
		ArgNames:       argNames,
		OwnerClassID:   -1,
		IsThreadable:   true,
		Instructions:   code,
	})
}

func runFunc(t *testing.T, p *bytecode.Program, funcID int64, args []vm.Value) vm.RunResult {
	t.Helper()
	thread := vm.NewThread(p)
	require.True(t, thread.SetupEntryCall(funcID, args))
	return thread.Run()
}

func TestExec_ArithmeticAndReturn(t *testing.T) {
	p := newTestProgram(nil)
	c1 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 20})
	c2 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 22})
	funcID := addFunc(p, "main", 0, 3, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: c1},
		{Op: bytecode.OpSetConst, Slot: 1, ID: c2},
		{Op: bytecode.OpBinOp, Slot: 2, SlotB: 0, SlotC: 1,
			MathOp: lexer.OpMathAdd},
		{Op: bytecode.OpReturnValue, SlotB: 2},
	})
	res := runFunc(t, p, funcID, nil)
	require.Equal(t, vm.RunReturned, res.Status)
	assert.Equal(t, vm.ValInt64, res.Value.Kind)
	assert.Equal(t, int64(42), res.Value.Int)
}

func TestExec_DivisionByZeroRaisesMathError(t *testing.T) {
	p := newTestProgram(nil)
	c1 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 1})
	c0 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 0})
	funcID := addFunc(p, "main", 0, 3, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: c1},
		{Op: bytecode.OpSetConst, Slot: 1, ID: c0},
		{Op: bytecode.OpBinOp, Slot: 2, SlotB: 0, SlotC: 1,
			MathOp: lexer.OpMathDivide},
	})
	res := runFunc(t, p, funcID, nil)
	require.Equal(t, vm.RunUncaughtError, res.Status)
	assert.Equal(t, corelib.StdErrorMathError, res.Value.Int)
}

func TestExec_RescueCatchesByAncestry(t *testing.T) {
	p := newTestProgram(nil)
	c1 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 1})
	c0 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 0})
	c7 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 7})
	// do { 1 / 0 } rescue Error { return 7 }  -- MathError derives from
	// Error, so the ancestor class catches it.
	funcID := addFunc(p, "main", 0, 4, []bytecode.Instruction{
		{Op: bytecode.OpPushRescueFrame, Slot: 3, ID: 6, ID2: -1,
			CaughtTypes: []int64{corelib.StdErrorError}},
		{Op: bytecode.OpSetConst, Slot: 0, ID: c1},
		{Op: bytecode.OpSetConst, Slot: 1, ID: c0},
		{Op: bytecode.OpBinOp, Slot: 2, SlotB: 0, SlotC: 1,
			MathOp: lexer.OpMathDivide},
		{Op: bytecode.OpPopRescueFrame},
		{Op: bytecode.OpJump, ID: 8},
		{Op: bytecode.OpSetConst, Slot: 0, ID: c7}, // catch block
		{Op: bytecode.OpReturnValue, SlotB: 0},
		{Op: bytecode.OpNop},
	})
	res := runFunc(t, p, funcID, nil)
	require.Equal(t, vm.RunReturned, res.Status)
	assert.Equal(t, int64(7), res.Value.Int)
}

func TestExec_FinallyRunsOnUncaughtAndReRaises(t *testing.T) {
	p := newTestProgram(nil)
	c0 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 0})
	c1 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 1})
	c9 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 9})
	// do { 1 / 0 } finally { g0 = 9 } -- the finally runs, then the
	// MathError continues unwinding uncaught.
	g := p.AddGlobal("witness", false, c0)
	funcID := addFunc(p, "main", 0, 4, []bytecode.Instruction{
		{Op: bytecode.OpPushRescueFrame, Slot: 3, ID: -1, ID2: 6},
		{Op: bytecode.OpSetConst, Slot: 0, ID: c1},
		{Op: bytecode.OpSetConst, Slot: 1, ID: c0},
		{Op: bytecode.OpBinOp, Slot: 2, SlotB: 0, SlotC: 1,
			MathOp: lexer.OpMathDivide},
		{Op: bytecode.OpPopRescueFrame},
		{Op: bytecode.OpJump, ID: 9},
		{Op: bytecode.OpSetConst, Slot: 0, ID: c9}, // finally block
		{Op: bytecode.OpSetGlobal, ID: g, SlotB: 0},
		{Op: bytecode.OpFinallyDone},
		{Op: bytecode.OpNop},
	})
	jobs := (*vm.AsyncJobQueue)(nil)
	sched := vm.NewScheduler(p, jobs, vm.SchedulerOptions{}, nil)
	fiber := sched.SpawnFiber(funcID, nil)
	fiber.IsMain = true
	code := sched.RunUntilDone()
	assert.Equal(t, 1, code, "uncaught error must fail the fiber")
	require.Equal(t, vm.FiberFailed, fiber.State)
	assert.Equal(t, corelib.StdErrorMathError, fiber.Error.Int)
}

func TestExec_CallBuiltinPrint(t *testing.T) {
	out := &bytes.Buffer{}
	p := newTestProgram(out)
	printID := p.FuncByName("print")
	require.GreaterOrEqual(t, printID, int64(0))
	cHello := p.AddConstant(bytecode.Constant{
		Kind: bytecode.ConstString, Str: "hello"})
	funcID := addFunc(p, "main", 0, 4, []bytecode.Instruction{
		{Op: bytecode.OpGetFunc, Slot: 0, ID: printID},
		{Op: bytecode.OpSetConst, Slot: 1, ID: cHello},
		{Op: bytecode.OpCall, Slot: 2, SlotB: 0, SlotC: 1, ID: 1},
		{Op: bytecode.OpReturnValue, SlotB: 2},
	})
	res := runFunc(t, p, funcID, nil)
	require.Equal(t, vm.RunReturned, res.Status)
	assert.Equal(t, "hello\n", out.String())
}

func TestExec_KeywordArgsReorderedAndDefaulted(t *testing.T) {
	p := newTestProgram(nil)
	// callee(a, b) returns b, which holds the unspecified-kwarg sentinel
	// when b was not passed.
	calleeID := addFunc(p, "callee", 2, 1, []bytecode.Instruction{
		{Op: bytecode.OpReturnValue, SlotB: 1},
	})
	bAttr := p.InternAttributeName("b")
	c5 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 5})
	c6 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 6})

	// callee(5, b = 6) passes the keyword value into slot b:
	mainID := addFunc(p, "main", 0, 5, []bytecode.Instruction{
		{Op: bytecode.OpGetFunc, Slot: 0, ID: calleeID},
		{Op: bytecode.OpSetConst, Slot: 1, ID: c5},
		{Op: bytecode.OpSetConst, Slot: 2, ID: c6},
		{Op: bytecode.OpCall, Slot: 3, SlotB: 0, SlotC: 1, ID: 1,
			KwNameIDs: []int64{bAttr}},
		{Op: bytecode.OpReturnValue, SlotB: 3},
	})
	res := runFunc(t, p, mainID, nil)
	require.Equal(t, vm.RunReturned, res.Status)
	assert.Equal(t, int64(6), res.Value.Int)

	// callee(5) leaves b unspecified; the callee sees the sentinel:
	mainID2 := addFunc(p, "main2", 0, 5, []bytecode.Instruction{
		{Op: bytecode.OpGetFunc, Slot: 0, ID: calleeID},
		{Op: bytecode.OpSetConst, Slot: 1, ID: c5},
		{Op: bytecode.OpCall, Slot: 3, SlotB: 0, SlotC: 1, ID: 1},
		{Op: bytecode.OpReturnValue, SlotB: 3},
	})
	res = runFunc(t, p, mainID2, nil)
	require.Equal(t, vm.RunReturned, res.Status)
	assert.Equal(t, vm.ValUnspecifiedKwArg, res.Value.Kind)
}

func TestExec_UnthreadableCallRejected(t *testing.T) {
	p := newTestProgram(nil)
	calleeID := p.RegisterFunction(&bytecode.Function{
		Name:         "locked",
		OwnerClassID: -1,
		IsThreadable: false,
		Instructions: []bytecode.Instruction{},
	})
	funcID := addFunc(p, "main", 0, 3, []bytecode.Instruction{
		{Op: bytecode.OpGetFunc, Slot: 0, ID: calleeID},
		{Op: bytecode.OpCall, Slot: 1, SlotB: 0, SlotC: 2},
	})
	thread := vm.NewThread(p)
	thread.CanCallUnthreadable = false
	require.True(t, thread.SetupEntryCall(funcID, nil))
	res := thread.Run()
	require.Equal(t, vm.RunUncaughtError, res.Status)
	assert.Equal(t, corelib.StdErrorRuntimeError, res.Value.Int)
}

func TestExec_ClassInstanceAttributes(t *testing.T) {
	p := newTestProgram(nil)
	vAttr := p.InternAttributeName("v")
	c1 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 1})
	classID := p.AddClass("C", -1, false)
	cls := p.Classes[classID]
	cls.VarAttrNameIDs = []int64{vAttr}
	cls.VarInitConsts = []int64{c1}

	c5 := p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt, Int: 5})
	funcID := addFunc(p, "main", 0, 4, []bytecode.Instruction{
		{Op: bytecode.OpNewInstance, Slot: 0, ID: classID},
		{Op: bytecode.OpGetAttr, Slot: 1, SlotB: 0, ID: vAttr},
		{Op: bytecode.OpSetConst, Slot: 2, ID: c5},
		{Op: bytecode.OpSetAttr, SlotB: 0, ID: vAttr, SlotC: 2},
		{Op: bytecode.OpGetAttr, Slot: 3, SlotB: 0, ID: vAttr},
		{Op: bytecode.OpBinOp, Slot: 3, SlotB: 1, SlotC: 3,
			MathOp: lexer.OpMathAdd},
		{Op: bytecode.OpReturnValue, SlotB: 3},
	})
	res := runFunc(t, p, funcID, nil)
	require.Equal(t, vm.RunReturned, res.Status)
	// 1 (initial) + 5 (assigned) = 6:
	assert.Equal(t, int64(6), res.Value.Int)
}

func TestExec_RefcountsBalancedAfterRun(t *testing.T) {
	p := newTestProgram(nil)
	cStr := p.AddConstant(bytecode.Constant{
		Kind: bytecode.ConstString, Str: "a longer heap string"})
	funcID := addFunc(p, "main", 0, 2, []bytecode.Instruction{
		{Op: bytecode.OpSetConst, Slot: 0, ID: cStr},
		{Op: bytecode.OpSetConst, Slot: 1, ID: cStr},
		{Op: bytecode.OpSetConst, Slot: 0, ID: cStr},
	})
	thread := vm.NewThread(p)
	require.True(t, thread.SetupEntryCall(funcID, nil))
	res := thread.Run()
	require.Equal(t, vm.RunReturned, res.Status)
	// Every stack slot was released on return; the heap pool must be
	// fully free again.
	assert.Equal(t, thread.Heap.TotalCount(), thread.Heap.FreeCount())
}
