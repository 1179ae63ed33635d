package vm

import (
	"math"

	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/lexer"
)

// noError is the "no raise needed" class id marker for the eval helpers.
const noError = int64(-1)

func (t *Thread) classIDByName(name string) int64 {
	id := t.Program.ClassByName(name)
	if id < 0 {
		return 0
	}
	return id
}

// evalBinOp applies one arithmetic, comparison or container operator. The
// returned class id is >= 0 when the operation must raise instead.
func (t *Thread) evalBinOp(op lexer.Op, a, b *Value) (Value, int64, string) {
	switch op {
	case lexer.OpMathAdd:
		if sa, okA := StringValueToRunes(a); okA {
			if sb, okB := StringValueToRunes(b); okB {
				joined := make([]rune, 0, len(sa)+len(sb))
				joined = append(joined, sa...)
				joined = append(joined, sb...)
				v, ok := NewStringValue(t, joined)
				if !ok {
					return None(), t.classIDByName("OutOfMemoryError"),
						"out of memory"
				}
				return v, noError, ""
			}
		}
		return t.numericBinOp(op, a, b)
	case lexer.OpMathSubtract, lexer.OpMathMultiply, lexer.OpMathDivide,
		lexer.OpMathModulo:
		return t.numericBinOp(op, a, b)
	case lexer.OpMathBinOr, lexer.OpMathBinAnd, lexer.OpMathBinXor,
		lexer.OpMathBinShiftLeft, lexer.OpMathBinShiftRight:
		if a.Kind != ValInt64 || b.Kind != ValInt64 {
			return None(), t.classIDByName("TypeError"),
				"binary math operands must both be integers"
		}
		switch op {
		case lexer.OpMathBinOr:
			return Int64(a.Int | b.Int), noError, ""
		case lexer.OpMathBinAnd:
			return Int64(a.Int & b.Int), noError, ""
		case lexer.OpMathBinXor:
			return Int64(a.Int ^ b.Int), noError, ""
		case lexer.OpMathBinShiftLeft:
			return Int64(a.Int << uint64(b.Int)), noError, ""
		default:
			return Int64(a.Int >> uint64(b.Int)), noError, ""
		}
	case lexer.OpCmpEqual:
		return Bool(valuesEqual(a, b)), noError, ""
	case lexer.OpCmpNotEqual:
		return Bool(!valuesEqual(a, b)), noError, ""
	case lexer.OpCmpLarger, lexer.OpCmpSmaller,
		lexer.OpCmpLargerOrEqual, lexer.OpCmpSmallerOrEqual:
		fa, okA := numericOf(a)
		fb, okB := numericOf(b)
		if !okA || !okB {
			return None(), t.classIDByName("TypeError"),
				"comparison operands must be numbers"
		}
		switch op {
		case lexer.OpCmpLarger:
			return Bool(fa > fb), noError, ""
		case lexer.OpCmpSmaller:
			return Bool(fa < fb), noError, ""
		case lexer.OpCmpLargerOrEqual:
			return Bool(fa >= fb), noError, ""
		default:
			return Bool(fa <= fb), noError, ""
		}
	case lexer.OpIndexByExpr:
		return t.indexValue(a, b)
	case lexer.OpBoolCondAnd:
		return Bool(a.IsTruthy() && b.IsTruthy()), noError, ""
	case lexer.OpBoolCondOr:
		return Bool(a.IsTruthy() || b.IsTruthy()), noError, ""
	}
	return None(), t.classIDByName("RuntimeError"),
		"unsupported binary operator"
}

func (t *Thread) numericBinOp(op lexer.Op, a, b *Value) (Value, int64, string) {
	if a.Kind == ValInt64 && b.Kind == ValInt64 {
		switch op {
		case lexer.OpMathAdd:
			return Int64(a.Int + b.Int), noError, ""
		case lexer.OpMathSubtract:
			return Int64(a.Int - b.Int), noError, ""
		case lexer.OpMathMultiply:
			return Int64(a.Int * b.Int), noError, ""
		case lexer.OpMathDivide:
			if b.Int == 0 {
				return None(), t.classIDByName("MathError"),
					"division by zero"
			}
			return Int64(a.Int / b.Int), noError, ""
		case lexer.OpMathModulo:
			if b.Int == 0 {
				return None(), t.classIDByName("MathError"),
					"modulo by zero"
			}
			return Int64(a.Int % b.Int), noError, ""
		}
	}
	fa, okA := numericOf(a)
	fb, okB := numericOf(b)
	if !okA || !okB {
		return None(), t.classIDByName("TypeError"),
			"math operands must be numbers"
	}
	switch op {
	case lexer.OpMathAdd:
		return Float64(fa + fb), noError, ""
	case lexer.OpMathSubtract:
		return Float64(fa - fb), noError, ""
	case lexer.OpMathMultiply:
		return Float64(fa * fb), noError, ""
	case lexer.OpMathDivide:
		if fb == 0 {
			return None(), t.classIDByName("MathError"), "division by zero"
		}
		return Float64(fa / fb), noError, ""
	case lexer.OpMathModulo:
		if fb == 0 {
			return None(), t.classIDByName("MathError"), "modulo by zero"
		}
		return Float64(math.Mod(fa, fb)), noError, ""
	}
	return None(), t.classIDByName("RuntimeError"),
		"unsupported numeric operator"
}

func (t *Thread) evalUnOp(op lexer.Op, a *Value) (Value, int64, string) {
	switch op {
	case lexer.OpMathUnarySubtract:
		switch a.Kind {
		case ValInt64:
			return Int64(-a.Int), noError, ""
		case ValFloat64:
			return Float64(-a.Float), noError, ""
		}
		return None(), t.classIDByName("TypeError"),
			"unary minus operand must be a number"
	case lexer.OpBoolCondNot:
		return Bool(!a.IsTruthy()), noError, ""
	case lexer.OpMathBinNot:
		if a.Kind != ValInt64 {
			return None(), t.classIDByName("TypeError"),
				"binary not operand must be an integer"
		}
		return Int64(^a.Int), noError, ""
	case lexer.OpNew:
		// Codegen emits this unary op for "new C(...)" and calls init
		// separately when arguments are given; here the class reference is
		// instantiated with its member initial values only.
		if a.Kind == ValClassRef {
			return t.newInstance(a.Int)
		}
		return None(), t.classIDByName("TypeError"),
			"new operand must be a class reference"
	}
	return None(), t.classIDByName("RuntimeError"),
		"unsupported unary operator"
}

func numericOf(v *Value) (float64, bool) {
	switch v.Kind {
	case ValInt64, ValBool:
		return float64(v.Int), true
	case ValFloat64:
		return v.Float, true
	}
	return 0, false
}

func valuesEqual(a, b *Value) bool {
	fa, okA := numericOf(a)
	fb, okB := numericOf(b)
	if okA && okB {
		return fa == fb
	}
	sa, okA := StringValueToRunes(a)
	sb, okB := StringValueToRunes(b)
	if okA && okB {
		return string(sa) == string(sb)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ValNone:
		return true
	case ValFuncRef, ValClassRef, ValError:
		return a.Int == b.Int
	case ValGCVal:
		return a.GC == b.GC
	}
	return false
}

// newInstance builds an instance of classID: an inline error value for
// error classes, a heap class instance otherwise, with member variables
// preset from the class's recorded initial constants.
func (t *Thread) newInstance(classID int64) (Value, int64, string) {
	if classID < 0 || classID >= int64(len(t.Program.Classes)) {
		return None(), t.classIDByName("TypeError"), "invalid class reference"
	}
	cls := t.Program.Classes[classID]
	if cls.IsError {
		return Value{
			Kind:  ValError,
			Int:   classID,
			EInfo: &ErrorInfo{},
		}, noError, ""
	}
	gc := t.Heap.Alloc(false)
	if gc == nil {
		return None(), t.classIDByName("OutOfMemoryError"), "out of memory"
	}
	*gc = GCValue{Kind: GCClassInstance, ClassID: classID, letterLen: -1}
	gc.MemberVars = make([]Value, len(cls.VarAttrNameIDs))
	for i, constIdx := range t.memberInitConsts(cls) {
		if constIdx >= 0 {
			v, ok := t.constantToValue(constIdx)
			if !ok {
				releaseGCValue(t, gc)
				return None(), t.classIDByName("OutOfMemoryError"),
					"out of memory"
			}
			gc.MemberVars[i] = v
			AddRefHeap(&gc.MemberVars[i])
		}
	}
	return Value{Kind: ValGCVal, GC: gc}, noError, ""
}

// memberInitConsts returns the per-member constant indices recorded at
// compile time, padded with -1.
func (t *Thread) memberInitConsts(cls *bytecode.Class) []int64 {
	out := make([]int64, len(cls.VarAttrNameIDs))
	for i := range out {
		out[i] = -1
		if i < len(cls.VarInitConsts) {
			out[i] = cls.VarInitConsts[i]
		}
	}
	return out
}

func (t *Thread) getAttribute(obj *Value, attrNameID int64) (Value, int64, string) {
	attrName := t.Program.AttrNames[attrNameID]
	switch obj.Kind {
	case ValGCVal:
		if obj.GC.Kind == GCClassInstance {
			cls := t.Program.Classes[obj.GC.ClassID]
			for i, nameID := range cls.VarAttrNameIDs {
				if nameID == attrNameID {
					return obj.GC.MemberVars[i], noError, ""
				}
			}
			for i, nameID := range cls.MethodAttrNameIDs {
				if nameID == attrNameID {
					return FuncRef(cls.MethodFuncIDs[i]), noError, ""
				}
			}
		}
	case ValError:
		if attrName == "message" {
			msg := ""
			if obj.EInfo != nil {
				msg = obj.EInfo.Message
			}
			v, ok := NewStringValueFromUTF8(t, msg)
			if !ok {
				return None(), t.classIDByName("OutOfMemoryError"),
					"out of memory"
			}
			return v, noError, ""
		}
	}
	return None(), t.classIDByName("AttributeError"),
		"given object has no attribute \"" + attrName + "\""
}

func (t *Thread) setAttribute(obj *Value, attrNameID int64, val *Value) (int64, string) {
	if obj.Kind == ValGCVal && obj.GC.Kind == GCClassInstance {
		cls := t.Program.Classes[obj.GC.ClassID]
		for i, nameID := range cls.VarAttrNameIDs {
			if nameID == attrNameID {
				DelRefHeap(&obj.GC.MemberVars[i])
				obj.GC.MemberVars[i] = *val
				AddRefHeap(&obj.GC.MemberVars[i])
				return noError, ""
			}
		}
	}
	return t.classIDByName("AttributeError"),
		"given object has no attribute \"" +
			t.Program.AttrNames[attrNameID] + "\""
}
