package vm

import "github.com/ternarybob/canter/pkg/bytecode"

// doCall sets up the call described by inst. The returned flags are
// (result, stop-dispatch, pc-already-updated).
func (t *Thread) doCall(inst *bytecode.Instruction) (RunResult, bool, bool) {
	callee := t.Stack.Entry(int64(inst.SlotB))
	if callee.Kind == ValClassRef {
		// Calling a class reference instantiates it. Codegen lowers
		// "new C()" to an OpNew unary op instead, not to this path.
		v, errClass, errMsg := t.newInstance(callee.Int)
		if errClass >= 0 {
			res, done := t.raiseByClass(errClass, errMsg)
			return res, done, !done
		}
		slot := t.Stack.Entry(int64(inst.Slot))
		Free(t, slot)
		*slot = v
		AddRefNonHeap(slot)
		return RunResult{}, false, false
	}
	if callee.Kind != ValFuncRef {
		res, done := t.raiseByClassName("TypeError",
			"called value is not callable")
		return res, done, !done
	}
	funcID := callee.Int
	f := t.Program.Functions[funcID]

	if !f.IsThreadable && !t.CanCallUnthreadable {
		res, done := t.raiseByClassName("RuntimeError",
			"cannot call non-threadable function \"%s\" from this fiber",
			f.Name)
		return res, done, !done
	}

	// Gather arguments: ID positional values at SlotC onward, then the
	// keyword values named by KwNameIDs.
	posCount := int(inst.ID)
	kwCount := len(inst.KwNameIDs)
	declared := len(f.ArgNames)
	if posCount > declared {
		res, done := t.raiseByClassName("ArgumentError",
			"function \"%s\" called with %d positional arguments, "+
				"but takes at most %d", f.Name, posCount, declared)
		return res, done, !done
	}

	// Reorder into declared order inside the fiber's scratch space.
	// Unmatched keyword slots get the unspecified-kwarg sentinel so the
	// callee applies its default.
	if cap(t.ArgReorderSpace) < declared {
		t.ArgReorderSpace = make([]Value, declared)
	}
	reorder := t.ArgReorderSpace[:declared]
	for i := range reorder {
		reorder[i] = UnspecifiedKwArg()
	}
	for i := 0; i < posCount; i++ {
		reorder[i] = *t.Stack.Entry(int64(inst.SlotC + i))
	}
	for k := 0; k < kwCount; k++ {
		name := t.Program.AttrNames[inst.KwNameIDs[k]]
		found := -1
		for ai := posCount; ai < declared; ai++ {
			if f.ArgNames[ai] == name {
				found = ai
				break
			}
		}
		if found < 0 {
			res, done := t.raiseByClassName("ArgumentError",
				"function \"%s\" has no keyword argument \"%s\"",
				f.Name, name)
			return res, done, !done
		}
		reorder[found] = *t.Stack.Entry(int64(inst.SlotC + posCount + k))
	}

	returnSlotAbs := t.Stack.CurrentFuncFloor + int64(inst.Slot)
	prevFloor := t.Stack.CurrentFuncFloor
	bottom := t.Stack.TotalSize()
	needed := int64(f.InputStackSize + f.InnerStackSize)
	if needed < int64(declared) {
		needed = int64(declared)
	}
	if needed == 0 {
		needed = 1
	}
	if !t.Stack.ToSize(bottom+needed, false) {
		res, done := t.raiseOutOfMemory()
		return res, done, !done
	}
	for i := 0; i < declared; i++ {
		slot := t.Stack.EntryAbs(bottom + int64(i))
		*slot = reorder[i]
		AddRefNonHeap(slot)
	}

	if f.CFunc != nil {
		t.Stack.CurrentFuncFloor = bottom
		res, done := t.invokeCFunc(funcID, bottom, returnSlotAbs, prevFloor)
		return res, done, !done
	}

	t.FuncFrames = append(t.FuncFrames, FunctionFrame{
		StackBottom:             bottom,
		FuncID:                  funcID,
		ReturnSlot:              returnSlotAbs,
		ReturnToFuncID:          t.ExecutionFuncID,
		ReturnToExecutionOffset: t.ExecutionInstructionID + 1,
	})
	t.Stack.CurrentFuncFloor = bottom
	t.ExecutionFuncID = funcID
	t.ExecutionInstructionID = 0
	return RunResult{}, false, true
}

// invokeCFunc runs (or resumes) a built-in. The bool result says whether
// dispatch should stop with the returned RunResult.
func (t *Thread) invokeCFunc(
	funcID, bottom, returnSlotAbs, prevFloor int64,
) (RunResult, bool) {
	f := t.Program.Functions[funcID]
	cf, ok := f.CFunc.(CFunc)
	if !ok {
		return t.raiseByClassName("RuntimeError",
			"built-in \"%s\" has an invalid implementation", f.Name)
	}
	t.Stack.CurrentFuncFloor = bottom

	status := cf(t)
	switch status {
	case CFuncSuspend:
		info := *t.Stack.Entry(0)
		if info.Kind != ValSuspendInfo {
			return t.raiseByClassName("RuntimeError",
				"built-in \"%s\" suspended without suspend info", f.Name)
		}
		t.suspended = &suspendedCall{
			funcID:      funcID,
			stackBottom: bottom,
			returnSlot:  returnSlotAbs,
			prevFloor:   prevFloor,
		}
		return RunResult{
			Status:     RunSuspended,
			Suspend:    info.Suspend,
			SuspendArg: info.Int,
		}, true
	case CFuncError:
		// Cut the built-in's stack window, then raise its pending error.
		t.popCFuncWindow(bottom, prevFloor)
		errClass := t.PendingErrorClass
		errMsg := t.PendingErrorMsg
		t.PendingErrorClass = 0
		t.PendingErrorMsg = ""
		return t.raiseByClass(errClass, errMsg)
	default:
		ret := *t.Stack.Entry(0)
		if ret.Kind == ValGCVal {
			AddRefNonHeap(&ret)
		}
		t.popCFuncWindow(bottom, prevFloor)
		slot := t.Stack.EntryAbs(returnSlotAbs)
		Free(t, slot)
		*slot = ret
		AddRefNonHeap(slot)
		if ret.Kind == ValGCVal {
			DelRefNonHeap(&ret)
		}
		t.ExecutionInstructionID++
		return RunResult{}, false
	}
}

func (t *Thread) popCFuncWindow(bottom, prevFloor int64) {
	for i := bottom; i < t.Stack.TotalSize(); i++ {
		slot := t.Stack.EntryAbs(i)
		Free(t, slot)
	}
	t.Stack.ToSize(bottom, true)
	t.Stack.CurrentFuncFloor = prevFloor
}
