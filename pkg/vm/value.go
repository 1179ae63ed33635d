// Package vm implements the bytecode virtual machine: the tagged value
// representation with pooled allocation and dual reference counting, the
// growable value stack, fibers with call and exception frames, the
// instruction dispatch loop, the cooperative scheduler, and the async job
// system that hands blocking host calls to worker goroutines.
package vm

// ValueKind tags Value. Inline kinds carry their payload directly; GCVal
// points at a heap record managed by the dual refcounts.
type ValueKind uint8

const (
	ValNone ValueKind = iota
	ValInt64
	ValFloat64
	ValBool
	ValFuncRef
	ValClassRef
	ValError
	ValGCVal
	ValShortStr
	ValConstPreallocStr
	ValShortBytes
	ValConstPreallocBytes
	ValVector
	ValUnspecifiedKwArg
	ValSuspendInfo
)

// ShortStrMaxLen is how many UTF-32 code units inline into a value.
const ShortStrMaxLen = 3

// ShortBytesMaxLen is how many raw bytes inline into a value.
const ShortBytesMaxLen = 6

// SuspendType is the reason a fiber stops running; stored in a
// ValSuspendInfo value that a built-in writes into its return slot.
type SuspendType int

const (
	SuspendNone SuspendType = iota
	SuspendFixedTime
	SuspendSocketReadable
	SuspendSocketWritable
	SuspendAsyncJobWait
	SuspendProcessExit
)

// VectorEntry is one component of a vector value.
type VectorEntry struct {
	IsFloat bool
	Int     int64
	Float   float64
}

// ErrorInfo carries a raised error's message alongside the class id held
// in the value itself.
type ErrorInfo struct {
	Message string
}

// Value is the tagged union the VM computes with. Which fields are
// meaningful depends on Kind:
//
//	Int        ValInt64, ValBool (0/1), ValFuncRef, ValClassRef,
//	           ValError (class id), suspend int argument
//	Float      ValFloat64
//	GC         ValGCVal
//	ShortStr   ValShortStr (ShortLen code units)
//	ShortBytes ValShortBytes (ShortLen bytes)
//	ConstStr   ValConstPreallocStr (immortal buffer)
//	ConstBytes ValConstPreallocBytes (immortal buffer)
//	Vector     ValVector
//	EInfo      ValError
//	Suspend    ValSuspendInfo
type Value struct {
	Kind ValueKind

	Int        int64
	Float      float64
	GC         *GCValue
	ShortLen   uint8
	ShortStr   [ShortStrMaxLen]rune
	ShortBytes [ShortBytesMaxLen]byte
	ConstStr   []rune
	ConstBytes []byte
	Vector     []VectorEntry
	EInfo      *ErrorInfo
	Suspend    SuspendType
}

// None is the canonical none value.
func None() Value { return Value{Kind: ValNone} }

// Int64 wraps an integer.
func Int64(v int64) Value { return Value{Kind: ValInt64, Int: v} }

// Float64 wraps a float.
func Float64(v float64) Value { return Value{Kind: ValFloat64, Float: v} }

// Bool wraps a boolean.
func Bool(v bool) Value {
	b := int64(0)
	if v {
		b = 1
	}
	return Value{Kind: ValBool, Int: b}
}

// FuncRef wraps a function id.
func FuncRef(id int64) Value { return Value{Kind: ValFuncRef, Int: id} }

// ClassRef wraps a class id.
func ClassRef(id int64) Value { return Value{Kind: ValClassRef, Int: id} }

// UnspecifiedKwArg is the sentinel filled into omitted keyword argument
// slots so the callee can apply its default.
func UnspecifiedKwArg() Value { return Value{Kind: ValUnspecifiedKwArg} }

// SuspendInfo encodes a suspension reason plus its integer argument
// (deadline, fd, or job handle).
func SuspendInfo(t SuspendType, arg int64) Value {
	return Value{Kind: ValSuspendInfo, Suspend: t, Int: arg}
}

// IsTruthy implements the language's truth test: none, false, zero
// numbers and empty strings, bytes, lists, maps and sets are false;
// everything else is true.
func (v *Value) IsTruthy() bool {
	switch v.Kind {
	case ValNone:
		return false
	case ValBool, ValInt64:
		return v.Int != 0
	case ValFloat64:
		return v.Float != 0
	case ValShortStr:
		return v.ShortLen > 0
	case ValConstPreallocStr:
		return len(v.ConstStr) > 0
	case ValShortBytes:
		return v.ShortLen > 0
	case ValConstPreallocBytes:
		return len(v.ConstBytes) > 0
	case ValGCVal:
		switch v.GC.Kind {
		case GCString:
			return len(v.GC.Str) > 0
		case GCBytes:
			return len(v.GC.Bytes) > 0
		case GCList:
			return len(v.GC.List) > 0
		case GCMap:
			return len(v.GC.MapKeys) > 0
		case GCSet:
			return len(v.GC.Set) > 0
		}
		return true
	}
	return true
}

// AddRefNonHeap bumps the external reference count when v holds a GC
// pointer; inline values are untouched.
func AddRefNonHeap(v *Value) {
	if v.Kind == ValGCVal && v.GC != nil {
		v.GC.ExternalRefCount++
	}
}

// DelRefNonHeap drops the external reference count when v holds a GC
// pointer; inline values are untouched. The object is not collected here;
// Free does that when both counts are zero.
func DelRefNonHeap(v *Value) {
	if v.Kind == ValGCVal && v.GC != nil {
		v.GC.ExternalRefCount--
	}
}

// AddRefHeap bumps the heap-internal reference count.
func AddRefHeap(v *Value) {
	if v.Kind == ValGCVal && v.GC != nil {
		v.GC.HeapRefCount++
	}
}

// DelRefHeap drops the heap-internal reference count.
func DelRefHeap(v *Value) {
	if v.Kind == ValGCVal && v.GC != nil {
		v.GC.HeapRefCount--
	}
}
