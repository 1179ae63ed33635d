package compiler

import (
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/lexer"
)

// compileExpr emits code computing expr and returns the slot holding the
// result.
func (fc *funcCompiler) compileExpr(expr *ast.Expression) (int, bool) {
	switch expr.Type {
	case ast.ExprLiteral:
		c, ok := literalConstant(expr)
		if !ok {
			fc.g.errorf(expr, "unexpected malformed literal")
			return 0, false
		}
		slot := fc.newTemp()
		idx := fc.g.p.AddConstant(c)
		fc.emit(bytecode.Instruction{Op: bytecode.OpSetConst,
			Slot: slot, ID: idx})
		return slot, true
	case ast.ExprIdentifierRef:
		return fc.compileIdentifier(expr)
	case ast.ExprBinaryOp:
		return fc.compileBinaryOp(expr)
	case ast.ExprUnaryOp:
		return fc.compileUnaryOp(expr)
	case ast.ExprCall:
		return fc.compileCall(expr, -1)
	case ast.ExprList, ast.ExprSet, ast.ExprVector:
		kind := bytecode.ContainerList
		if expr.Type == ast.ExprSet {
			kind = bytecode.ContainerSet
		} else if expr.Type == ast.ExprVector {
			kind = bytecode.ContainerVector
		}
		start := fc.tempMark()
		for _, e := range expr.Container.Entries {
			if _, ok := fc.compileExprInto(e); !ok {
				return 0, false
			}
		}
		out := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpNewContainer,
			Slot: out, SlotB: start, ID: kind,
			ID2: int64(len(expr.Container.Entries))})
		return out, true
	case ast.ExprMap:
		start := fc.tempMark()
		for i := range expr.Container.Keys {
			if _, ok := fc.compileExprInto(expr.Container.Keys[i]); !ok {
				return 0, false
			}
			if _, ok := fc.compileExprInto(expr.Container.Values[i]); !ok {
				return 0, false
			}
		}
		out := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpNewContainer,
			Slot: out, SlotB: start, ID: bytecode.ContainerMap,
			ID2: int64(len(expr.Container.Keys) * 2)})
		return out, true
	case ast.ExprInlineFuncDef:
		return fc.compileInlineFunc(expr)
	}
	fc.g.errorf(expr, "unexpected unsupported expression")
	return 0, false
}

// compileExprInto forces the result into the next free temp so container
// and call arguments occupy consecutive slots.
func (fc *funcCompiler) compileExprInto(expr *ast.Expression) (int, bool) {
	target := fc.newTemp()
	mark := fc.tempMark()
	slot, ok := fc.compileExpr(expr)
	if !ok {
		return 0, false
	}
	if slot != target {
		fc.emit(bytecode.Instruction{Op: bytecode.OpMove,
			Slot: target, SlotB: slot})
	}
	fc.releaseTemps(mark)
	return target, true
}

func (fc *funcCompiler) compileIdentifier(expr *ast.Expression) (int, bool) {
	name := expr.IdentifierRef.Value
	res := expr.IdentifierRef.Resolved
	if name == "self" {
		if fc.fn == nil || fc.fn.OwnerClassID < 0 {
			fc.g.errorf(expr, "unexpected \"self\" outside of a class method")
			return 0, false
		}
		return 0, true // self is always slot 0 of a method
	}
	if res != nil && res.Def != nil {
		if slot, ok := fc.slots[res.Def]; ok {
			return slot, true
		}
		if gid, ok := fc.g.globalIDs[res.Def]; ok {
			slot := fc.newTemp()
			fc.emit(bytecode.Instruction{Op: bytecode.OpGetGlobal,
				Slot: slot, ID: gid})
			return slot, true
		}
		if decl := res.Def.DeclarationExpr; decl != nil {
			if fid, ok := fc.g.funcIDs[decl]; ok {
				slot := fc.newTemp()
				fc.emit(bytecode.Instruction{Op: bytecode.OpGetFunc,
					Slot: slot, ID: fid})
				return slot, true
			}
			if cid, ok := fc.g.classIDs[decl]; ok {
				slot := fc.newTemp()
				fc.emit(bytecode.Instruction{Op: bytecode.OpGetClass,
					Slot: slot, ID: cid})
				return slot, true
			}
		}
		fc.g.errorf(expr, "unexpected reference to \"%s\" that has no "+
			"storage here, closure captures are not supported",
			shorten(name))
		return 0, false
	}
	// Built-ins resolve by name against the program table:
	if fid := fc.g.p.FuncByName(name); fid >= 0 {
		slot := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpGetFunc,
			Slot: slot, ID: fid})
		return slot, true
	}
	if cid := fc.g.p.ClassByName(name); cid >= 0 {
		slot := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpGetClass,
			Slot: slot, ID: cid})
		return slot, true
	}
	fc.g.errorf(expr, "unexpected unknown identifier \"%s\", "+
		"expected known identifier", shorten(name))
	return 0, false
}

func (fc *funcCompiler) compileBinaryOp(expr *ast.Expression) (int, bool) {
	op := expr.Op.Op
	switch op {
	case lexer.OpBoolCondAnd, lexer.OpBoolCondOr:
		// Short-circuit: evaluate the left side, only fall into the
		// right side when it does not decide the result.
		out := fc.newTemp()
		lslot, ok := fc.compileExpr(expr.Op.Value1)
		if !ok {
			return 0, false
		}
		fc.emit(bytecode.Instruction{Op: bytecode.OpMove,
			Slot: out, SlotB: lslot})
		var skip int
		if op == lexer.OpBoolCondAnd {
			skip = fc.emit(bytecode.Instruction{Op: bytecode.OpCondJump,
				SlotB: out})
		} else {
			// Jump past the right side when the left is truthy: invert
			// through a not.
			inv := fc.newTemp()
			fc.emit(bytecode.Instruction{Op: bytecode.OpUnOp,
				Slot: inv, SlotB: out, MathOp: lexer.OpBoolCondNot})
			skip = fc.emit(bytecode.Instruction{Op: bytecode.OpCondJump,
				SlotB: inv})
		}
		rslot, ok := fc.compileExpr(expr.Op.Value2)
		if !ok {
			return 0, false
		}
		fc.emit(bytecode.Instruction{Op: bytecode.OpMove,
			Slot: out, SlotB: rslot})
		fc.code[skip].ID = int64(len(fc.code))
		return out, true
	case lexer.OpAttributeByIdentifier:
		objSlot, ok := fc.compileExpr(expr.Op.Value1)
		if !ok {
			return 0, false
		}
		if expr.Op.Value2 == nil ||
			expr.Op.Value2.Type != ast.ExprIdentifierRef {
			fc.g.errorf(expr, "unexpected attribute access, "+
				"expected identifier naming the attribute")
			return 0, false
		}
		attrID := fc.g.p.InternAttributeName(
			expr.Op.Value2.IdentifierRef.Value)
		out := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpGetAttr,
			Slot: out, SlotB: objSlot, ID: attrID})
		return out, true
	}
	lslot, ok := fc.compileExpr(expr.Op.Value1)
	if !ok {
		return 0, false
	}
	rslot, ok := fc.compileExpr(expr.Op.Value2)
	if !ok {
		return 0, false
	}
	out := fc.newTemp()
	fc.emit(bytecode.Instruction{Op: bytecode.OpBinOp,
		Slot: out, SlotB: lslot, SlotC: rslot, MathOp: op})
	return out, true
}

func (fc *funcCompiler) compileUnaryOp(expr *ast.Expression) (int, bool) {
	if expr.Op.Op == lexer.OpNew {
		return fc.compileNew(expr)
	}
	slot, ok := fc.compileExpr(expr.Op.Value1)
	if !ok {
		return 0, false
	}
	out := fc.newTemp()
	fc.emit(bytecode.Instruction{Op: bytecode.OpUnOp,
		Slot: out, SlotB: slot, MathOp: expr.Op.Op})
	return out, true
}

// compileNew lowers "new C(...)": instantiate the class, then, when
// constructor arguments are given, call its "init" method with the
// instance as receiver. Without arguments no "init" method is called.
func (fc *funcCompiler) compileNew(expr *ast.Expression) (int, bool) {
	classExpr := expr.Op.Value1
	var args []ast.FuncArg
	if classExpr.Type == ast.ExprCall {
		args = classExpr.Call.Args
		classExpr = classExpr.Call.Value
	}
	classSlot, ok := fc.compileExpr(classExpr)
	if !ok {
		return 0, false
	}
	out := fc.newTemp()
	fc.emit(bytecode.Instruction{Op: bytecode.OpUnOp,
		Slot: out, SlotB: classSlot, MathOp: lexer.OpNew})

	if len(args) > 0 {
		// Classes with constructor arguments need an init method; the
		// instance rides along as the hidden receiver argument.
		initAttr := fc.g.p.InternAttributeName("init")
		fnSlot := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpGetAttr,
			Slot: fnSlot, SlotB: out, ID: initAttr})
		if !fc.emitCallArgsAndCall(fnSlot, out, args, fc.newTemp()) {
			return 0, false
		}
	}
	return out, true
}

// compileCall emits a call expression. recvSlot >= 0 passes an explicit
// receiver (method calls).
func (fc *funcCompiler) compileCall(expr *ast.Expression, recvSlot int) (int, bool) {
	callee := expr.Call.Value

	// Method call shape obj.name(...): bind the object as the hidden
	// first argument.
	if callee.Type == ast.ExprBinaryOp &&
		callee.Op.Op == lexer.OpAttributeByIdentifier &&
		!fc.isModuleRef(callee.Op.Value1) {
		objSlot, ok := fc.compileExpr(callee.Op.Value1)
		if !ok {
			return 0, false
		}
		attrID := fc.g.p.InternAttributeName(
			callee.Op.Value2.IdentifierRef.Value)
		fnSlot := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpGetAttr,
			Slot: fnSlot, SlotB: objSlot, ID: attrID})
		out := fc.newTemp()
		if !fc.emitCallArgsAndCall(fnSlot, objSlot, expr.Call.Args, out) {
			return 0, false
		}
		return out, true
	}

	// Built-in module calls like time.sleep(...) address the function by
	// its dotted name:
	if callee.Type == ast.ExprBinaryOp &&
		callee.Op.Op == lexer.OpAttributeByIdentifier {
		dotted := dottedNameOf(callee)
		if dotted != "" {
			fid := fc.g.p.FuncByName(dotted)
			if fid < 0 {
				fid = fc.funcByModulePath(dotted)
			}
			if fid >= 0 {
				fnSlot := fc.newTemp()
				fc.emit(bytecode.Instruction{Op: bytecode.OpGetFunc,
					Slot: fnSlot, ID: fid})
				out := fc.newTemp()
				if !fc.emitCallArgsAndCall(fnSlot, -1, expr.Call.Args, out) {
					return 0, false
				}
				return out, true
			}
		}
		fc.g.errorf(expr, "unexpected unknown function \"%s\"",
			shorten(dotted))
		return 0, false
	}

	fnSlot, ok := fc.compileExpr(callee)
	if !ok {
		return 0, false
	}
	out := fc.newTemp()
	if !fc.emitCallArgsAndCall(fnSlot, recvSlot, expr.Call.Args, out) {
		return 0, false
	}
	return out, true
}

// isModuleRef reports whether an expression refers to an imported module
// or a built-in namespace rather than a runtime object.
func (fc *funcCompiler) isModuleRef(e *ast.Expression) bool {
	if e.Type != ast.ExprIdentifierRef {
		return false
	}
	res := e.IdentifierRef.Resolved
	if res != nil && res.Kind == ast.ResolveImportModule {
		return true
	}
	if res != nil && res.Def == nil && res.Kind == ast.ResolveGlobal {
		// Resolved against the built-in namespace table.
		return fc.g.pr.BuiltinNames[e.IdentifierRef.Value]
	}
	return false
}

func dottedNameOf(e *ast.Expression) string {
	switch e.Type {
	case ast.ExprIdentifierRef:
		return e.IdentifierRef.Value
	case ast.ExprBinaryOp:
		if e.Op.Op != lexer.OpAttributeByIdentifier {
			return ""
		}
		left := dottedNameOf(e.Op.Value1)
		if left == "" || e.Op.Value2 == nil ||
			e.Op.Value2.Type != ast.ExprIdentifierRef {
			return ""
		}
		return left + "." + e.Op.Value2.IdentifierRef.Value
	}
	return ""
}

// emitCallArgsAndCall lays the arguments into consecutive temps (the
// receiver first when present, then positional, then keyword values) and
// emits the call.
func (fc *funcCompiler) emitCallArgsAndCall(
	fnSlot, recvSlot int, args []ast.FuncArg, outSlot int,
) bool {
	start := fc.tempMark()
	posCount := 0
	if recvSlot >= 0 {
		slot := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpMove,
			Slot: slot, SlotB: recvSlot})
		posCount++
	}
	var kwNameIDs []int64
	// Positional arguments first:
	for _, a := range args {
		if a.Name != "" {
			continue
		}
		if _, ok := fc.compileExprInto(a.Value); !ok {
			return false
		}
		posCount++
	}
	for _, a := range args {
		if a.Name == "" {
			continue
		}
		if _, ok := fc.compileExprInto(a.Value); !ok {
			return false
		}
		kwNameIDs = append(kwNameIDs, fc.g.p.InternAttributeName(a.Name))
	}
	fc.emit(bytecode.Instruction{
		Op:        bytecode.OpCall,
		Slot:      outSlot,
		SlotB:     fnSlot,
		SlotC:     start,
		ID:        int64(posCount),
		KwNameIDs: kwNameIDs,
	})
	return true
}

// compileInlineFunc compiles an inline function expression as its own
// program function and loads a reference to it.
func (fc *funcCompiler) compileInlineFunc(expr *ast.Expression) (int, bool) {
	argNames := make([]string, 0, len(expr.FuncDef.Args))
	for _, a := range expr.FuncDef.Args {
		argNames = append(argNames, a.Name)
	}
	f := &bytecode.Function{
		Name:           "$inline",
		ModulePath:     fc.g.tree.ModulePath,
		InputStackSize: len(argNames),
		ArgNames:       argNames,
		OwnerClassID:   -1,
		IsThreadable:   true,
	}
	fid := fc.g.p.RegisterFunction(f)
	fc.g.funcIDs[expr] = fid
	inner := fc.g.newFuncCompiler(expr, f)
	ok := inner.compileStmts(expr.FuncDef.Stmts)
	f.InnerStackSize = inner.maxSlot + 1 - f.InputStackSize
	if f.InnerStackSize < 0 {
		f.InnerStackSize = 0
	}
	f.Instructions = inner.code
	slot := fc.newTemp()
	fc.emit(bytecode.Instruction{Op: bytecode.OpGetFunc,
		Slot: slot, ID: fid})
	return slot, ok
}

// funcByModulePath finds "modpath.func" calls into imported modules.
func (fc *funcCompiler) funcByModulePath(dotted string) int64 {
	for _, f := range fc.g.p.Functions {
		if f.ModulePath == "" {
			continue
		}
		if f.ModulePath+"."+f.Name == dotted {
			return f.ID
		}
	}
	return -1
}
