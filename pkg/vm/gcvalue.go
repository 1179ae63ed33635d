package vm

// GCValueKind tags a heap record.
type GCValueKind uint8

const (
	GCInvalid GCValueKind = iota
	GCClassInstance
	GCErrorInstance
	GCCFuncRef
	GCString
	GCBytes
	GCList
	GCMap
	GCSet
)

// GCValue is one heap-allocated record. It is destroyed only when both
// reference counters reach zero: HeapRefCount tracks references from
// other heap objects, ExternalRefCount references from the stack, globals
// and captured closures. A record with a positive external count is
// reachable from outside the heap and must never be collected, whatever
// its heap count says.
type GCValue struct {
	Kind             GCValueKind
	HeapRefCount     int
	ExternalRefCount int

	// Class and error instances:
	ClassID    int64
	MemberVars []Value
	ErrorInfo  *ErrorInfo

	// Strings store their code unit length implicitly in Str and compute
	// the letter length lazily on first use (letterLen < 0 = unknown).
	Str       []rune
	strPooled bool
	letterLen int

	Bytes []byte

	List    []Value
	MapKeys []Value
	MapVals []Value
	Set     []Value
}

// LetterLength returns the user-visible character count of a string
// value, computing and caching it on first use. Combining marks attach to
// their base letter.
func (g *GCValue) LetterLength() int {
	if g.letterLen >= 0 {
		return g.letterLen
	}
	n := 0
	for _, r := range g.Str {
		if isCombiningMark(r) && n > 0 {
			continue
		}
		n++
	}
	g.letterLen = n
	return n
}

func isCombiningMark(r rune) bool {
	return (r >= 0x0300 && r <= 0x036F) ||
		(r >= 0x1AB0 && r <= 0x1AFF) ||
		(r >= 0x20D0 && r <= 0x20FF) ||
		(r >= 0xFE20 && r <= 0xFE2F)
}

// NewStringValue builds a string value on the thread's heap, pulling the
// buffer from the string pile when it is small enough. A string short
// enough to inline never touches the heap.
func NewStringValue(t *Thread, s []rune) (Value, bool) {
	if len(s) <= ShortStrMaxLen {
		v := Value{Kind: ValShortStr, ShortLen: uint8(len(s))}
		copy(v.ShortStr[:], s)
		return v, true
	}
	gc := t.Heap.Alloc(false)
	if gc == nil {
		return None(), false
	}
	*gc = GCValue{Kind: GCString, letterLen: -1}
	buf, pooled := t.allocStringBuffer(len(s))
	if buf == nil {
		t.Heap.Free(gc)
		return None(), false
	}
	copy(buf, s)
	gc.Str = buf[:len(s)]
	gc.strPooled = pooled
	return Value{Kind: ValGCVal, GC: gc}, true
}

// NewStringValueFromUTF8 decodes UTF-8 text and builds a string value.
func NewStringValueFromUTF8(t *Thread, s string) (Value, bool) {
	return NewStringValue(t, []rune(s))
}

// NewBytesValue builds a bytes value, inlining short payloads.
func NewBytesValue(t *Thread, b []byte) (Value, bool) {
	if len(b) <= ShortBytesMaxLen {
		v := Value{Kind: ValShortBytes, ShortLen: uint8(len(b))}
		copy(v.ShortBytes[:], b)
		return v, true
	}
	gc := t.Heap.Alloc(false)
	if gc == nil {
		return None(), false
	}
	*gc = GCValue{Kind: GCBytes, letterLen: -1}
	gc.Bytes = append([]byte(nil), b...)
	return Value{Kind: ValGCVal, GC: gc}, true
}

// StringValueToRunes reads any string-kinded value's code units.
func StringValueToRunes(v *Value) ([]rune, bool) {
	switch v.Kind {
	case ValShortStr:
		return v.ShortStr[:v.ShortLen], true
	case ValConstPreallocStr:
		return v.ConstStr, true
	case ValGCVal:
		if v.GC.Kind == GCString {
			return v.GC.Str, true
		}
	}
	return nil, false
}

// Free drops one external reference and, when both counters of a GC
// record reach zero, returns it to the heap pool and releases any owned
// buffers. Calling it on inline values is a no-op, so callers can free
// any slot unconditionally.
func Free(t *Thread, v *Value) {
	if v.Kind != ValGCVal || v.GC == nil {
		return
	}
	gc := v.GC
	gc.ExternalRefCount--
	if gc.ExternalRefCount > 0 || gc.HeapRefCount > 0 {
		return
	}
	releaseGCValue(t, gc)
	v.Kind = ValNone
	v.GC = nil
}

func releaseGCValue(t *Thread, gc *GCValue) {
	switch gc.Kind {
	case GCString:
		if gc.strPooled {
			t.freeStringBuffer(gc.Str)
		}
	case GCClassInstance, GCErrorInstance:
		for i := range gc.MemberVars {
			DelRefHeap(&gc.MemberVars[i])
		}
	case GCList:
		for i := range gc.List {
			DelRefHeap(&gc.List[i])
		}
	case GCMap:
		for i := range gc.MapKeys {
			DelRefHeap(&gc.MapKeys[i])
		}
		for i := range gc.MapVals {
			DelRefHeap(&gc.MapVals[i])
		}
	case GCSet:
		for i := range gc.Set {
			DelRefHeap(&gc.Set[i])
		}
	}
	*gc = GCValue{}
	t.Heap.Free(gc)
}
