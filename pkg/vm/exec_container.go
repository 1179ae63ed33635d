package vm

import "github.com/ternarybob/canter/pkg/bytecode"

// newContainer builds a list, set, map, or vector from the consecutive
// slots the emitter evaluated the entries into.
func (t *Thread) newContainer(inst *bytecode.Instruction) (Value, int64, string) {
	count := int(inst.ID2)
	start := int64(inst.SlotB)

	if inst.ID == bytecode.ContainerVector {
		entries := make([]VectorEntry, 0, count)
		for i := 0; i < count; i++ {
			v := t.Stack.Entry(start + int64(i))
			switch v.Kind {
			case ValInt64:
				entries = append(entries, VectorEntry{Int: v.Int})
			case ValFloat64:
				entries = append(entries, VectorEntry{IsFloat: true, Float: v.Float})
			default:
				return None(), t.classIDByName("TypeError"),
					"vector entries must be numbers"
			}
		}
		return Value{Kind: ValVector, Vector: entries}, noError, ""
	}

	gc := t.Heap.Alloc(false)
	if gc == nil {
		return None(), t.classIDByName("OutOfMemoryError"), "out of memory"
	}
	*gc = GCValue{letterLen: -1}
	switch inst.ID {
	case bytecode.ContainerList:
		gc.Kind = GCList
		gc.List = make([]Value, count)
		for i := 0; i < count; i++ {
			gc.List[i] = *t.Stack.Entry(start + int64(i))
			AddRefHeap(&gc.List[i])
		}
	case bytecode.ContainerSet:
		gc.Kind = GCSet
		for i := 0; i < count; i++ {
			v := t.Stack.Entry(start + int64(i))
			dup := false
			for j := range gc.Set {
				if valuesEqual(&gc.Set[j], v) {
					dup = true
					break
				}
			}
			if !dup {
				gc.Set = append(gc.Set, *v)
				AddRefHeap(&gc.Set[len(gc.Set)-1])
			}
		}
	case bytecode.ContainerMap:
		gc.Kind = GCMap
		for i := 0; i+1 < count; i += 2 {
			gc.MapKeys = append(gc.MapKeys, *t.Stack.Entry(start + int64(i)))
			gc.MapVals = append(gc.MapVals, *t.Stack.Entry(start + int64(i+1)))
			AddRefHeap(&gc.MapKeys[len(gc.MapKeys)-1])
			AddRefHeap(&gc.MapVals[len(gc.MapVals)-1])
		}
	default:
		releaseGCValue(t, gc)
		return None(), t.classIDByName("RuntimeError"),
			"unknown container kind"
	}
	return Value{Kind: ValGCVal, GC: gc}, noError, ""
}

// containerLen implements the hidden length query loops compile to.
func (t *Thread) containerLen(v *Value) (Value, int64, string) {
	if s, ok := StringValueToRunes(v); ok {
		return Int64(int64(len(s))), noError, ""
	}
	switch v.Kind {
	case ValVector:
		return Int64(int64(len(v.Vector))), noError, ""
	case ValGCVal:
		switch v.GC.Kind {
		case GCList:
			return Int64(int64(len(v.GC.List))), noError, ""
		case GCSet:
			return Int64(int64(len(v.GC.Set))), noError, ""
		case GCMap:
			return Int64(int64(len(v.GC.MapKeys))), noError, ""
		case GCBytes:
			return Int64(int64(len(v.GC.Bytes))), noError, ""
		}
	case ValShortBytes:
		return Int64(int64(v.ShortLen)), noError, ""
	case ValConstPreallocBytes:
		return Int64(int64(len(v.ConstBytes))), noError, ""
	}
	return None(), t.classIDByName("TypeError"),
		"given value has no length"
}

// indexValue reads obj[idx] for lists, maps, vectors and strings. Bytes
// values are not indexable and raise a TypeError.
func (t *Thread) indexValue(obj, idx *Value) (Value, int64, string) {
	switch obj.Kind {
	case ValGCVal:
		switch obj.GC.Kind {
		case GCList:
			if idx.Kind != ValInt64 {
				return None(), t.classIDByName("TypeError"),
					"list index must be an integer"
			}
			if idx.Int < 0 || idx.Int >= int64(len(obj.GC.List)) {
				return None(), t.classIDByName("IndexError"),
					"list index out of range"
			}
			return obj.GC.List[idx.Int], noError, ""
		case GCMap:
			for i := range obj.GC.MapKeys {
				if valuesEqual(&obj.GC.MapKeys[i], idx) {
					return obj.GC.MapVals[i], noError, ""
				}
			}
			return None(), t.classIDByName("IndexError"),
				"map key not found"
		}
	case ValVector:
		if idx.Kind != ValInt64 {
			return None(), t.classIDByName("TypeError"),
				"vector index must be an integer"
		}
		if idx.Int < 0 || idx.Int >= int64(len(obj.Vector)) {
			return None(), t.classIDByName("IndexError"),
				"vector index out of range"
		}
		e := obj.Vector[idx.Int]
		if e.IsFloat {
			return Float64(e.Float), noError, ""
		}
		return Int64(e.Int), noError, ""
	}
	if s, ok := StringValueToRunes(obj); ok {
		if idx.Kind != ValInt64 {
			return None(), t.classIDByName("TypeError"),
				"string index must be an integer"
		}
		if idx.Int < 0 || idx.Int >= int64(len(s)) {
			return None(), t.classIDByName("IndexError"),
				"string index out of range"
		}
		v, ok := NewStringValue(t, s[idx.Int:idx.Int+1])
		if !ok {
			return None(), t.classIDByName("OutOfMemoryError"),
				"out of memory"
		}
		return v, noError, ""
	}
	return None(), t.classIDByName("TypeError"),
		"given value cannot be indexed"
}

// setIndex writes obj[idx] = val for lists and maps.
func (t *Thread) setIndex(obj, idx, val *Value) (int64, string) {
	if obj.Kind != ValGCVal {
		return t.classIDByName("TypeError"),
			"given value cannot be index-assigned"
	}
	switch obj.GC.Kind {
	case GCList:
		if idx.Kind != ValInt64 {
			return t.classIDByName("TypeError"),
				"list index must be an integer"
		}
		if idx.Int < 0 || idx.Int >= int64(len(obj.GC.List)) {
			return t.classIDByName("IndexError"),
				"list index out of range"
		}
		DelRefHeap(&obj.GC.List[idx.Int])
		obj.GC.List[idx.Int] = *val
		AddRefHeap(&obj.GC.List[idx.Int])
		return noError, ""
	case GCMap:
		for i := range obj.GC.MapKeys {
			if valuesEqual(&obj.GC.MapKeys[i], idx) {
				DelRefHeap(&obj.GC.MapVals[i])
				obj.GC.MapVals[i] = *val
				AddRefHeap(&obj.GC.MapVals[i])
				return noError, ""
			}
		}
		obj.GC.MapKeys = append(obj.GC.MapKeys, *idx)
		obj.GC.MapVals = append(obj.GC.MapVals, *val)
		AddRefHeap(&obj.GC.MapKeys[len(obj.GC.MapKeys)-1])
		AddRefHeap(&obj.GC.MapVals[len(obj.GC.MapVals)-1])
		return noError, ""
	}
	return t.classIDByName("TypeError"),
		"given value cannot be index-assigned"
}
