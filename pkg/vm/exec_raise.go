package vm

import "fmt"

// raiseByClassName raises a fresh error instance of the named standard
// class. Unknown class names fall back to the base Error class id 0.
func (t *Thread) raiseByClassName(
	name, format string, args ...interface{},
) (RunResult, bool) {
	classID := t.Program.ClassByName(name)
	if classID < 0 {
		classID = 0
	}
	return t.raiseByClass(classID, fmt.Sprintf(format, args...))
}

// raiseByClass raises a fresh error instance of classID.
func (t *Thread) raiseByClass(classID int64, msg string) (RunResult, bool) {
	return t.raiseValue(Value{
		Kind:  ValError,
		Int:   classID,
		EInfo: &ErrorInfo{Message: msg},
	})
}

// raiseOutOfMemory raises the preallocated out-of-memory error; building
// it requires no allocation.
func (t *Thread) raiseOutOfMemory() (RunResult, bool) {
	if t.oomErrorPreallocated.Kind == ValError {
		return t.raiseValue(t.oomErrorPreallocated)
	}
	return t.raiseByClass(0, "out of memory")
}

// raiseValue walks the exception frame stack top-down looking for a
// frame whose caught types include the raised class or an ancestor.
//
// The winning frame gets the exception stored into its designated slot
// and execution jumps to its catch offset after unwinding function frames
// down to the frame's depth. Frames that cannot catch (no type match,
// catch already triggered) still get their finally block run with the
// exception parked as the stored delayed exception; a raise from inside a
// finally replaces that stored exception. With no catching frame left the
// fiber dies and reports the error upward.
func (t *Thread) raiseValue(errVal Value) (RunResult, bool) {
	classID := errVal.Int

	for len(t.ExceptionFrames) > 0 {
		frame := &t.ExceptionFrames[len(t.ExceptionFrames)-1]

		if frame.TriggeredFinally {
			// Raised from inside this frame's finally: the new error
			// replaces whatever the finally was holding and unwinding
			// continues outward.
			t.ExceptionFrames = t.ExceptionFrames[:len(t.ExceptionFrames)-1]
			continue
		}

		canCatch := !frame.TriggeredCatch && t.frameCatches(frame, classID)
		if canCatch {
			t.unwindToFrame(frame.FuncFrameNo)
			frame.TriggeredCatch = true
			slot := t.Stack.Entry(frame.ExceptionTempSlot)
			Free(t, slot)
			*slot = errVal
			t.ExecutionInstructionID = frame.CatchOffset
			return RunResult{}, false
		}

		if frame.FinallyOffset >= 0 && !frame.TriggeredFinally {
			// No catch here, but the finally still runs with the error
			// parked for re-raise when it completes.
			t.unwindToFrame(frame.FuncFrameNo)
			frame.TriggeredFinally = true
			frame.HasStoredDelayedException = true
			frame.StoredDelayedException = errVal
			t.ExecutionInstructionID = frame.FinallyOffset
			return RunResult{}, false
		}

		t.ExceptionFrames = t.ExceptionFrames[:len(t.ExceptionFrames)-1]
	}

	return RunResult{Status: RunUncaughtError, Value: errVal}, true
}

func (t *Thread) frameCatches(frame *ExceptionFrame, classID int64) bool {
	for _, caught := range frame.CaughtTypes {
		if t.Program.ClassIsSubclassOf(classID, caught) {
			return true
		}
	}
	return false
}

// unwindToFrame pops function frames until frameNo is the innermost one,
// restoring that frame's floor and function.
func (t *Thread) unwindToFrame(frameNo int) {
	for len(t.FuncFrames)-1 > frameNo {
		frame := t.FuncFrames[len(t.FuncFrames)-1]
		t.FuncFrames = t.FuncFrames[:len(t.FuncFrames)-1]
		for i := frame.StackBottom; i < t.Stack.TotalSize(); i++ {
			slot := t.Stack.EntryAbs(i)
			Free(t, slot)
		}
		t.Stack.ToSize(frame.StackBottom, true)
	}
	if len(t.FuncFrames) > 0 {
		top := t.FuncFrames[len(t.FuncFrames)-1]
		t.Stack.CurrentFuncFloor = top.StackBottom
		t.ExecutionFuncID = top.FuncID
	}
}
