package vm

import (
	"github.com/ternarybob/canter/pkg/bytecode"
)

// RunStatus is how a fiber left the dispatch loop.
type RunStatus int

const (
	// RunReturned: the entry function returned; Thread result holds the
	// value.
	RunReturned RunStatus = iota
	// RunSuspended: a built-in wrote a suspend info into its return slot;
	// the scheduler parks the fiber until the wake condition holds.
	RunSuspended
	// RunUncaughtError: an error unwound past every exception frame.
	RunUncaughtError
)

// RunResult is the outcome of one Run call.
type RunResult struct {
	Status     RunStatus
	Value      Value // return value or the uncaught error
	Suspend    SuspendType
	SuspendArg int64
}

// suspendedCall remembers a built-in that suspended so Run can re-invoke
// it when the fiber resumes.
type suspendedCall struct {
	funcID      int64
	stackBottom int64
	returnSlot  int64
	prevFloor   int64
}

// SetupEntryCall prepares the fiber to run funcID with the given
// arguments as its top-level call.
func (t *Thread) SetupEntryCall(funcID int64, args []Value) bool {
	f := t.Program.Functions[funcID]
	bottom := t.Stack.TotalSize()
	needed := int64(f.InputStackSize + f.InnerStackSize)
	if needed < int64(len(args)) {
		needed = int64(len(args))
	}
	if needed == 0 {
		needed = 1
	}
	if !t.Stack.ToSize(bottom+needed, false) {
		return false
	}
	for i, a := range args {
		slot := t.Stack.EntryAbs(bottom + int64(i))
		*slot = a
		AddRefNonHeap(slot)
	}
	t.Stack.CurrentFuncFloor = bottom
	t.FuncFrames = append(t.FuncFrames, FunctionFrame{
		StackBottom:             bottom,
		FuncID:                  funcID,
		ReturnSlot:              -1,
		ReturnToFuncID:          -1,
		ReturnToExecutionOffset: -1,
	})
	t.ExecutionFuncID = funcID
	t.ExecutionInstructionID = 0
	return true
}

// Run executes the fiber until it returns from its entry function, raises
// uncaught, or suspends. Calling Run on a suspended fiber resumes it.
func (t *Thread) Run() RunResult {
	// Resume a suspended built-in by re-invoking it; its async progress
	// tells it where it left off.
	if t.suspended != nil {
		sc := *t.suspended
		t.suspended = nil
		if res, done := t.invokeCFunc(sc.funcID, sc.stackBottom,
			sc.returnSlot, sc.prevFloor); done {
			return res
		}
	}

	for {
		if len(t.FuncFrames) == 0 {
			return RunResult{Status: RunReturned, Value: t.resultValue}
		}
		f := t.Program.Functions[t.ExecutionFuncID]
		if t.ExecutionInstructionID >= int64(len(f.Instructions)) {
			// Implicit return none at the end of a function body.
			if res, done := t.doReturn(None()); done {
				return res
			}
			continue
		}
		inst := &f.Instructions[t.ExecutionInstructionID]
		pc := t.ExecutionInstructionID

		switch inst.Op {
		case bytecode.OpNop:
		case bytecode.OpSetConst:
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			v, ok := t.constantToValue(inst.ID)
			if !ok {
				if res, done := t.raiseOutOfMemory(); done {
					return res
				}
				continue
			}
			*slot = v
			AddRefNonHeap(slot)
		case bytecode.OpMove:
			src := *t.Stack.Entry(int64(inst.SlotB))
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = src
			AddRefNonHeap(slot)
		case bytecode.OpGetGlobal:
			src := t.globals[inst.ID]
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = src
			AddRefNonHeap(slot)
		case bytecode.OpSetGlobal:
			src := *t.Stack.Entry(int64(inst.SlotB))
			old := &t.globals[inst.ID]
			Free(t, old)
			t.globals[inst.ID] = src
			AddRefNonHeap(&t.globals[inst.ID])
		case bytecode.OpGetFunc:
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = FuncRef(inst.ID)
		case bytecode.OpGetClass:
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = ClassRef(inst.ID)
		case bytecode.OpBinOp:
			a := t.Stack.Entry(int64(inst.SlotB))
			b := t.Stack.Entry(int64(inst.SlotC))
			v, errClass, errMsg := t.evalBinOp(inst.MathOp, a, b)
			if errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = v
			AddRefNonHeap(slot)
		case bytecode.OpUnOp:
			a := t.Stack.Entry(int64(inst.SlotB))
			v, errClass, errMsg := t.evalUnOp(inst.MathOp, a)
			if errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = v
			AddRefNonHeap(slot)
		case bytecode.OpNewInstance:
			v, errClass, errMsg := t.newInstance(inst.ID)
			if errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = v
			AddRefNonHeap(slot)
		case bytecode.OpGetAttr:
			obj := t.Stack.Entry(int64(inst.SlotB))
			v, errClass, errMsg := t.getAttribute(obj, inst.ID)
			if errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = v
			AddRefNonHeap(slot)
		case bytecode.OpSetAttr:
			obj := t.Stack.Entry(int64(inst.SlotB))
			val := t.Stack.Entry(int64(inst.SlotC))
			if errClass, errMsg := t.setAttribute(obj, inst.ID, val); errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
		case bytecode.OpJump:
			t.ExecutionInstructionID = inst.ID
			continue
		case bytecode.OpCondJump:
			cond := t.Stack.Entry(int64(inst.SlotB))
			if !cond.IsTruthy() {
				t.ExecutionInstructionID = inst.ID
				continue
			}
		case bytecode.OpCall:
			res, done, progressed := t.doCall(inst)
			if done {
				return res
			}
			if progressed {
				continue
			}
		case bytecode.OpReturnValue:
			v := *t.Stack.Entry(int64(inst.SlotB))
			if res, done := t.doReturn(v); done {
				return res
			}
			continue
		case bytecode.OpRaise:
			errVal := *t.Stack.Entry(int64(inst.SlotB))
			if errVal.Kind != ValError {
				if res, done := t.raiseByClassName(
					"TypeError", "raised value is not an error instance",
				); done {
					return res
				}
				continue
			}
			if res, done := t.raiseValue(errVal); done {
				return res
			}
			continue
		case bytecode.OpPushRescueFrame:
			t.ExceptionFrames = append(t.ExceptionFrames, ExceptionFrame{
				FuncFrameNo:       len(t.FuncFrames) - 1,
				CatchOffset:       inst.ID,
				FinallyOffset:     inst.ID2,
				ExceptionTempSlot: int64(inst.Slot),
				CaughtTypes:       inst.CaughtTypes,
			})
		case bytecode.OpPopRescueFrame:
			if len(t.ExceptionFrames) == 0 {
				break
			}
			frame := &t.ExceptionFrames[len(t.ExceptionFrames)-1]
			if frame.FinallyOffset >= 0 && !frame.TriggeredFinally {
				frame.TriggeredFinally = true
				t.ExecutionInstructionID = frame.FinallyOffset
				continue
			}
			t.ExceptionFrames = t.ExceptionFrames[:len(t.ExceptionFrames)-1]
		case bytecode.OpNewContainer:
			v, errClass, errMsg := t.newContainer(inst)
			if errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = v
			AddRefNonHeap(slot)
		case bytecode.OpContainerLen:
			src := t.Stack.Entry(int64(inst.SlotB))
			v, errClass, errMsg := t.containerLen(src)
			if errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
			slot := t.Stack.Entry(int64(inst.Slot))
			Free(t, slot)
			*slot = v
		case bytecode.OpSetIndex:
			obj := t.Stack.Entry(int64(inst.SlotB))
			idx := t.Stack.Entry(int64(inst.SlotC))
			val := t.Stack.Entry(int64(inst.Slot))
			if errClass, errMsg := t.setIndex(obj, idx, val); errClass >= 0 {
				if res, done := t.raiseByClass(errClass, errMsg); done {
					return res
				}
				continue
			}
		case bytecode.OpFinallyDone:
			if len(t.ExceptionFrames) == 0 {
				break
			}
			frame := t.ExceptionFrames[len(t.ExceptionFrames)-1]
			t.ExceptionFrames = t.ExceptionFrames[:len(t.ExceptionFrames)-1]
			if frame.HasStoredDelayedException {
				if res, done := t.raiseValue(frame.StoredDelayedException); done {
					return res
				}
				continue
			}
		}
		if t.ExecutionInstructionID == pc {
			t.ExecutionInstructionID++
		}
	}
}

func (t *Thread) constantToValue(idx int64) (Value, bool) {
	c := &t.Program.Constants[idx]
	switch c.Kind {
	case bytecode.ConstInt:
		return Int64(c.Int), true
	case bytecode.ConstFloat:
		return Float64(c.Float), true
	case bytecode.ConstBool:
		return Bool(c.Int != 0), true
	case bytecode.ConstString:
		return NewStringValueFromUTF8(t, c.Str)
	case bytecode.ConstBytes:
		return NewBytesValue(t, c.Bytes)
	}
	return None(), true
}

// doReturn pops the current frame, writing v into the caller's return
// slot. The bool result says whether the dispatch loop should stop.
func (t *Thread) doReturn(v Value) (RunResult, bool) {
	frame := t.FuncFrames[len(t.FuncFrames)-1]
	t.FuncFrames = t.FuncFrames[:len(t.FuncFrames)-1]

	// Drop exception frames opened inside the returning function:
	for len(t.ExceptionFrames) > 0 &&
		t.ExceptionFrames[len(t.ExceptionFrames)-1].FuncFrameNo >= len(t.FuncFrames) {
		t.ExceptionFrames = t.ExceptionFrames[:len(t.ExceptionFrames)-1]
	}

	if v.Kind == ValGCVal {
		// Keep the return value alive across the stack cut:
		AddRefNonHeap(&v)
	}
	for i := frame.StackBottom; i < t.Stack.TotalSize(); i++ {
		slot := t.Stack.EntryAbs(i)
		Free(t, slot)
	}
	t.Stack.ToSize(frame.StackBottom, true)

	if len(t.FuncFrames) == 0 {
		t.resultValue = v
		return RunResult{Status: RunReturned, Value: v}, true
	}

	caller := t.FuncFrames[len(t.FuncFrames)-1]
	t.Stack.CurrentFuncFloor = caller.StackBottom
	t.ExecutionFuncID = frame.ReturnToFuncID
	t.ExecutionInstructionID = frame.ReturnToExecutionOffset
	if frame.ReturnSlot >= 0 {
		slot := t.Stack.EntryAbs(frame.ReturnSlot)
		Free(t, slot)
		*slot = v
		AddRefNonHeap(slot)
		if v.Kind == ValGCVal {
			DelRefNonHeap(&v)
		}
	} else if v.Kind == ValGCVal {
		// Drop the keep-alive reference; nobody wanted the value.
		Free(t, &v)
	}
	return RunResult{}, false
}
