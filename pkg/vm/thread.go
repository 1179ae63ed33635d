package vm

import (
	"fmt"

	"github.com/ternarybob/canter/pkg/bytecode"
)

// FunctionFrame is one function activation.
type FunctionFrame struct {
	StackBottom             int64
	FuncID                  int64
	ReturnSlot              int64
	ReturnToFuncID          int64
	ReturnToExecutionOffset int64
}

// ExceptionFrame is one open do/rescue/finally region. A raise matching
// CaughtTypes unwinds to FuncFrameNo, stores the exception into
// ExceptionTempSlot and jumps to CatchOffset; an unmatched raise still
// runs the finally block with the exception parked in
// StoredDelayedException.
type ExceptionFrame struct {
	FuncFrameNo       int
	CatchOffset       int64
	FinallyOffset     int64
	ExceptionTempSlot int64
	TriggeredCatch    bool
	TriggeredFinally  bool

	HasStoredDelayedException bool
	StoredDelayedException    Value

	CaughtTypes []int64
}

// CFunc is the signature of a built-in function. It reads its arguments
// from the thread's stack (slot 0 upward relative to the function floor)
// and writes its return value, or a suspend info, into slot 0.
type CFunc func(t *Thread) CFuncStatus

// CFuncStatus is what a built-in reports back to the dispatcher.
type CFuncStatus int

const (
	CFuncSuccess CFuncStatus = iota
	CFuncError
	CFuncSuspend
)

// Thread is one fiber's execution state: its own stack, heap pool and
// string pile, the call and exception frame stacks, and the scratch space
// used to reorder keyword arguments into the callee's declared order.
// Apart from the program and the scheduler's globals, nothing in here is
// shared between fibers.
type Thread struct {
	Program *bytecode.Program

	CanAccessGlobals    bool
	CanCallUnthreadable bool

	Stack   *Stack
	Heap    *Pool[GCValue]
	StrPile *Pool[pooledStrBuf]

	FuncFrames      []FunctionFrame
	ExceptionFrames []ExceptionFrame

	ExecutionFuncID        int64
	ExecutionInstructionID int64

	// ArgReorderSpace is scratch for shuffling keyword arguments into
	// declared order during call setup; it grows to the widest call seen.
	ArgReorderSpace []Value

	// Foreground async state for the built-in currently suspending this
	// fiber. AbortFunc detaches outstanding jobs and releases handles
	// when the fiber tears down before completion.
	AsyncProgress  interface{}
	AsyncAbortFunc func()

	// Pending error raised by a built-in via ReturnFuncError.
	PendingErrorClass int64
	PendingErrorMsg   string

	// Globals shared with the scheduler that spawned this fiber.
	globals []Value

	suspended   *suspendedCall
	resultValue Value

	oomErrorPreallocated Value
}

// NewThread creates a fiber for a program. The out-of-memory error
// instance is built up front so raising it never allocates.
func NewThread(p *bytecode.Program) *Thread {
	t := &Thread{
		Program:             p,
		CanAccessGlobals:    true,
		CanCallUnthreadable: true,
		Stack:               NewStack(),
		Heap:                NewPool[GCValue](),
	}
	oomClass := p.ClassByName("OutOfMemoryError")
	if oomClass >= 0 {
		t.oomErrorPreallocated = Value{
			Kind:  ValError,
			Int:   oomClass,
			EInfo: &ErrorInfo{Message: "out of memory"},
		}
	}
	return t
}

// FuncStackBottom returns the stack bottom of the innermost frame.
func (t *Thread) FuncStackBottom() int64 {
	if len(t.FuncFrames) > 0 {
		return t.FuncFrames[len(t.FuncFrames)-1].StackBottom
	}
	return 0
}

// WipeFuncStack drops every entry above the innermost frame's bottom.
func (t *Thread) WipeFuncStack() {
	bottom := t.FuncStackBottom()
	if bottom < t.Stack.TotalSize() {
		for i := bottom; i < t.Stack.TotalSize(); i++ {
			Free(t, t.Stack.EntryAbs(i))
		}
		t.Stack.ToSize(bottom, true)
	}
}

// ReturnFuncError stores a pending error for the dispatcher to raise on
// behalf of a built-in, then returns CFuncError for convenience.
func (t *Thread) ReturnFuncError(classID int64, format string, args ...interface{}) CFuncStatus {
	t.PendingErrorClass = classID
	t.PendingErrorMsg = fmt.Sprintf(format, args...)
	return CFuncError
}

// Arg returns the i-th argument of the currently running built-in.
func (t *Thread) Arg(i int64) *Value {
	return t.Stack.Entry(i)
}

// SetReturnValue writes a built-in's result into its return slot.
func (t *Thread) SetReturnValue(v Value) {
	slot := t.Stack.Entry(0)
	Free(t, slot)
	*slot = v
	AddRefNonHeap(slot)
}

// SuspendFunc writes a suspension marker into the return slot; the
// built-in then returns CFuncSuspend and the scheduler parks the fiber
// until the wake condition holds.
func (t *Thread) SuspendFunc(suspendType SuspendType, intArg int64) bool {
	if t.Stack.Top() == 0 {
		if !t.Stack.ToSize(t.Stack.TotalSize()+1, true) {
			return false
		}
	}
	slot := t.Stack.Entry(0)
	Free(t, slot)
	*slot = SuspendInfo(suspendType, intArg)
	return true
}

// FreeThread releases a fiber's owned resources.
func (t *Thread) FreeThread() {
	if t.AsyncAbortFunc != nil {
		t.AsyncAbortFunc()
		t.AsyncAbortFunc = nil
	}
	t.Stack.Free(t)
	t.FuncFrames = nil
	t.ExceptionFrames = nil
}
