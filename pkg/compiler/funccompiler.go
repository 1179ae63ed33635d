package compiler

import (
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/lexer"
)

// funcCompiler emits one function body. Parameter slots come first, then
// named locals, then expression temporaries; maxSlot tracks the high
// water mark that becomes the function's inner stack size.
type funcCompiler struct {
	g       *codegen
	funcDef *ast.Expression
	fn      *bytecode.Function

	code     []bytecode.Instruction
	slots    map[*ast.ScopeDef]int
	nextSlot int
	maxSlot  int

	breakPatches    []int
	continuePatches []int
	loopDepth       int
}

func (g *codegen) newFuncCompiler(funcDef *ast.Expression, fn *bytecode.Function) *funcCompiler {
	fc := &funcCompiler{
		g:       g,
		funcDef: funcDef,
		fn:      fn,
		slots:   map[*ast.ScopeDef]int{},
	}
	if fn != nil {
		fc.nextSlot = fn.InputStackSize
		fc.maxSlot = fn.InputStackSize - 1
		// Bind parameter names to their slots:
		if funcDef != nil {
			offset := 0
			if fn.OwnerClassID >= 0 {
				offset = 1 // slot 0 is self
			}
			for i, arg := range funcDef.FuncDef.Args {
				def := funcDef.FuncDef.Scope.QueryItem(arg.Name, false)
				if def != nil {
					fc.slots[def] = offset + i
				}
			}
		}
	} else {
		fc.maxSlot = -1
	}
	return fc
}

func (fc *funcCompiler) emit(inst bytecode.Instruction) int {
	fc.code = append(fc.code, inst)
	return len(fc.code) - 1
}

func (fc *funcCompiler) newTemp() int {
	slot := fc.nextSlot
	fc.nextSlot++
	if slot > fc.maxSlot {
		fc.maxSlot = slot
	}
	return slot
}

// tempMark / releaseTemps let expression compilation reuse temp slots
// once a statement finished with them.
func (fc *funcCompiler) tempMark() int { return fc.nextSlot }

func (fc *funcCompiler) releaseTemps(mark int) {
	fc.nextSlot = mark
}

func (fc *funcCompiler) bindLocal(def *ast.ScopeDef) int {
	if slot, ok := fc.slots[def]; ok {
		return slot
	}
	slot := fc.newTemp()
	fc.slots[def] = slot
	return slot
}

func (fc *funcCompiler) compileStmts(stmts []*ast.Expression) bool {
	ok := true
	for _, stmt := range stmts {
		if !fc.compileStmt(stmt) {
			ok = false
		}
	}
	return ok
}

func (fc *funcCompiler) compileStmt(stmt *ast.Expression) bool {
	if stmt == nil || stmt.Destroyed {
		return true
	}
	mark := fc.tempMark()
	defer func() { fc.releaseTemps(mark) }()

	switch stmt.Type {
	case ast.ExprVarDefStmt:
		def := fc.lookupOwnDef(stmt, stmt.VarDef.Identifier)
		if def == nil {
			return true
		}
		slot := fc.bindLocal(def)
		// Named locals live below the temp watermark for the rest of
		// the function:
		if fc.nextSlot <= slot {
			fc.nextSlot = slot + 1
		}
		mark = fc.tempMark()
		if stmt.VarDef.Value != nil {
			vslot, ok := fc.compileExpr(stmt.VarDef.Value)
			if !ok {
				return false
			}
			fc.emit(bytecode.Instruction{Op: bytecode.OpMove,
				Slot: slot, SlotB: vslot})
		}
		return true
	case ast.ExprAssignStmt:
		return fc.compileAssign(stmt)
	case ast.ExprCallStmt:
		_, ok := fc.compileExpr(stmt.CallStmt.Call)
		return ok
	case ast.ExprReturnStmt:
		if stmt.ReturnStmt.Value != nil {
			slot, ok := fc.compileExpr(stmt.ReturnStmt.Value)
			if !ok {
				return false
			}
			fc.emit(bytecode.Instruction{Op: bytecode.OpReturnValue, SlotB: slot})
		} else {
			slot := fc.newTemp()
			noneIdx := fc.g.p.AddConstant(bytecode.Constant{Kind: bytecode.ConstNone})
			fc.emit(bytecode.Instruction{Op: bytecode.OpSetConst,
				Slot: slot, ID: noneIdx})
			fc.emit(bytecode.Instruction{Op: bytecode.OpReturnValue, SlotB: slot})
		}
		return true
	case ast.ExprIfStmt:
		return fc.compileIf(stmt)
	case ast.ExprWhileStmt:
		return fc.compileWhile(stmt)
	case ast.ExprForStmt:
		return fc.compileFor(stmt)
	case ast.ExprDoStmt:
		return fc.compileDo(stmt)
	case ast.ExprWithStmt:
		return fc.compileWith(stmt)
	case ast.ExprBreakStmt:
		if fc.loopDepth == 0 {
			fc.g.errorf(stmt, "unexpected break statement outside of a loop")
			return false
		}
		fc.breakPatches = append(fc.breakPatches,
			fc.emit(bytecode.Instruction{Op: bytecode.OpJump}))
		return true
	case ast.ExprContinueStmt:
		if fc.loopDepth == 0 {
			fc.g.errorf(stmt, "unexpected continue statement outside of a loop")
			return false
		}
		fc.continuePatches = append(fc.continuePatches,
			fc.emit(bytecode.Instruction{Op: bytecode.OpJump}))
		return true
	case ast.ExprFuncDefStmt:
		// Nested named functions are rejected; only top-level and class
		// functions are compiled.
		fc.g.errorf(stmt, "unexpected nested function definition, "+
			"functions must be defined at top level or in a class")
		return false
	}
	fc.g.errorf(stmt, "unexpected unsupported statement")
	return false
}

// lookupOwnDef finds the scope definition a declaration created, walking
// the function's scope chain.
func (fc *funcCompiler) lookupOwnDef(stmt *ast.Expression, name string) *ast.ScopeDef {
	var search func(sc *ast.Scope) *ast.ScopeDef
	search = func(sc *ast.Scope) *ast.ScopeDef {
		if sc == nil {
			return nil
		}
		if def := sc.QueryItem(name, false); def != nil &&
			def.DeclarationExpr == stmt {
			return def
		}
		return nil
	}
	// The declaration's definition is recorded in the scope the parser
	// used at that point; find it from the statement's parents.
	for e := stmt; e != nil; e = e.Parent {
		for _, sc := range scopesOf(e) {
			if def := search(sc); def != nil {
				return def
			}
		}
	}
	if fc.funcDef != nil {
		if def := search(fc.funcDef.FuncDef.Scope); def != nil {
			return def
		}
	}
	if def := search(fc.g.tree.Scope); def != nil {
		return def
	}
	return nil
}

// scopesOf lists the scopes an expression owns.
func scopesOf(e *ast.Expression) []*ast.Scope {
	switch e.Type {
	case ast.ExprFuncDefStmt, ast.ExprInlineFuncDef:
		return []*ast.Scope{e.FuncDef.Scope}
	case ast.ExprClassDefStmt:
		return []*ast.Scope{e.ClassDef.Scope}
	case ast.ExprIfStmt:
		out := []*ast.Scope{}
		for _, c := range e.IfStmt.Clauses {
			out = append(out, c.Scope)
		}
		return out
	case ast.ExprWhileStmt:
		return []*ast.Scope{e.WhileStmt.Scope}
	case ast.ExprForStmt:
		return []*ast.Scope{e.ForStmt.Scope}
	case ast.ExprDoStmt:
		out := []*ast.Scope{e.DoStmt.Scope}
		if e.DoStmt.RescueScope != nil {
			out = append(out, e.DoStmt.RescueScope)
		}
		if e.DoStmt.FinallyScope != nil {
			out = append(out, e.DoStmt.FinallyScope)
		}
		return out
	case ast.ExprWithStmt:
		return []*ast.Scope{e.WithStmt.Scope}
	}
	return nil
}

func (fc *funcCompiler) compileAssign(stmt *ast.Expression) bool {
	lv := stmt.Assign.LValue
	op := stmt.Assign.AssignOp

	computeRValue := func(currentSlot int) (int, bool) {
		rslot, ok := fc.compileExpr(stmt.Assign.RValue)
		if !ok {
			return 0, false
		}
		if op == lexer.OpAssign {
			return rslot, true
		}
		mathOp := lexer.AssignOpToMathOp(op)
		out := fc.newTemp()
		fc.emit(bytecode.Instruction{Op: bytecode.OpBinOp,
			Slot: out, SlotB: currentSlot, SlotC: rslot, MathOp: mathOp})
		return out, true
	}

	switch lv.Type {
	case ast.ExprIdentifierRef:
		res := lv.IdentifierRef.Resolved
		if res == nil || res.Def == nil {
			fc.g.errorf(lv, "unexpected unresolved assignment target")
			return false
		}
		if gid, isGlobal := fc.g.globalIDs[res.Def]; isGlobal {
			cur := fc.newTemp()
			if op != lexer.OpAssign {
				fc.emit(bytecode.Instruction{Op: bytecode.OpGetGlobal,
					Slot: cur, ID: gid})
			}
			rslot, ok := computeRValue(cur)
			if !ok {
				return false
			}
			fc.emit(bytecode.Instruction{Op: bytecode.OpSetGlobal,
				ID: gid, SlotB: rslot})
			return true
		}
		slot, ok := fc.slots[res.Def]
		if !ok {
			fc.g.errorf(lv, "unexpected assignment to name that is not "+
				"a local variable")
			return false
		}
		rslot, okr := computeRValue(slot)
		if !okr {
			return false
		}
		fc.emit(bytecode.Instruction{Op: bytecode.OpMove,
			Slot: slot, SlotB: rslot})
		return true
	case ast.ExprBinaryOp:
		switch lv.Op.Op {
		case lexer.OpAttributeByIdentifier:
			objSlot, ok := fc.compileExpr(lv.Op.Value1)
			if !ok {
				return false
			}
			attrID := fc.g.p.InternAttributeName(
				lv.Op.Value2.IdentifierRef.Value)
			cur := fc.newTemp()
			if op != lexer.OpAssign {
				fc.emit(bytecode.Instruction{Op: bytecode.OpGetAttr,
					Slot: cur, SlotB: objSlot, ID: attrID})
			}
			rslot, okr := computeRValue(cur)
			if !okr {
				return false
			}
			fc.emit(bytecode.Instruction{Op: bytecode.OpSetAttr,
				SlotB: objSlot, ID: attrID, SlotC: rslot})
			return true
		case lexer.OpIndexByExpr:
			objSlot, ok := fc.compileExpr(lv.Op.Value1)
			if !ok {
				return false
			}
			idxSlot, ok := fc.compileExpr(lv.Op.Value2)
			if !ok {
				return false
			}
			cur := fc.newTemp()
			if op != lexer.OpAssign {
				fc.emit(bytecode.Instruction{Op: bytecode.OpBinOp,
					Slot: cur, SlotB: objSlot, SlotC: idxSlot,
					MathOp: lexer.OpIndexByExpr})
			}
			rslot, okr := computeRValue(cur)
			if !okr {
				return false
			}
			fc.emit(bytecode.Instruction{Op: bytecode.OpSetIndex,
				Slot: rslot, SlotB: objSlot, SlotC: idxSlot})
			return true
		}
	}
	fc.g.errorf(lv, "unexpected assignment target")
	return false
}

func (fc *funcCompiler) compileIf(stmt *ast.Expression) bool {
	var endPatches []int
	ok := true
	for _, clause := range stmt.IfStmt.Clauses {
		if clause.Condition != nil {
			mark := fc.tempMark()
			condSlot, okc := fc.compileExpr(clause.Condition)
			if !okc {
				return false
			}
			skip := fc.emit(bytecode.Instruction{Op: bytecode.OpCondJump,
				SlotB: condSlot})
			fc.releaseTemps(mark)
			if !fc.compileStmts(clause.Stmts) {
				ok = false
			}
			endPatches = append(endPatches,
				fc.emit(bytecode.Instruction{Op: bytecode.OpJump}))
			fc.code[skip].ID = int64(len(fc.code))
		} else {
			if !fc.compileStmts(clause.Stmts) {
				ok = false
			}
		}
	}
	for _, p := range endPatches {
		fc.code[p].ID = int64(len(fc.code))
	}
	return ok
}

func (fc *funcCompiler) compileWhile(stmt *ast.Expression) bool {
	top := len(fc.code)
	mark := fc.tempMark()
	condSlot, ok := fc.compileExpr(stmt.WhileStmt.Condition)
	if !ok {
		return false
	}
	exit := fc.emit(bytecode.Instruction{Op: bytecode.OpCondJump,
		SlotB: condSlot})
	fc.releaseTemps(mark)

	prevBreaks, prevContinues := fc.breakPatches, fc.continuePatches
	fc.breakPatches, fc.continuePatches = nil, nil
	fc.loopDepth++
	okBody := fc.compileStmts(stmt.WhileStmt.Stmts)
	fc.loopDepth--
	fc.emit(bytecode.Instruction{Op: bytecode.OpJump, ID: int64(top)})
	end := int64(len(fc.code))
	fc.code[exit].ID = end
	for _, p := range fc.breakPatches {
		fc.code[p].ID = end
	}
	for _, p := range fc.continuePatches {
		fc.code[p].ID = int64(top)
	}
	fc.breakPatches, fc.continuePatches = prevBreaks, prevContinues
	return okBody
}

func (fc *funcCompiler) compileFor(stmt *ast.Expression) bool {
	// Lower "for x in e" to an index loop over e with hidden container,
	// length and index temporaries.
	contSlot, ok := fc.compileExpr(stmt.ForStmt.IteratedExpr)
	if !ok {
		return false
	}
	lenSlot := fc.newTemp()
	fc.emit(bytecode.Instruction{Op: bytecode.OpContainerLen,
		Slot: lenSlot, SlotB: contSlot})
	idxSlot := fc.newTemp()
	zeroIdx := fc.g.p.AddConstant(bytecode.Constant{Kind: bytecode.ConstInt})
	fc.emit(bytecode.Instruction{Op: bytecode.OpSetConst,
		Slot: idxSlot, ID: zeroIdx})
	oneSlot := fc.newTemp()
	oneIdx := fc.g.p.AddConstant(bytecode.Constant{
		Kind: bytecode.ConstInt, Int: 1})
	fc.emit(bytecode.Instruction{Op: bytecode.OpSetConst,
		Slot: oneSlot, ID: oneIdx})

	iterDef := stmt.ForStmt.Scope.QueryItem(
		stmt.ForStmt.IteratorIdentifier, false)
	if iterDef == nil {
		fc.g.errorf(stmt, "unexpected missing loop iterator definition")
		return false
	}
	iterSlot := fc.bindLocal(iterDef)

	top := len(fc.code)
	condSlot := fc.newTemp()
	fc.emit(bytecode.Instruction{Op: bytecode.OpBinOp,
		Slot: condSlot, SlotB: idxSlot, SlotC: lenSlot,
		MathOp: lexer.OpCmpSmaller})
	exit := fc.emit(bytecode.Instruction{Op: bytecode.OpCondJump,
		SlotB: condSlot})
	fc.emit(bytecode.Instruction{Op: bytecode.OpBinOp,
		Slot: iterSlot, SlotB: contSlot, SlotC: idxSlot,
		MathOp: lexer.OpIndexByExpr})

	prevBreaks, prevContinues := fc.breakPatches, fc.continuePatches
	fc.breakPatches, fc.continuePatches = nil, nil
	fc.loopDepth++
	okBody := fc.compileStmts(stmt.ForStmt.Stmts)
	fc.loopDepth--

	step := len(fc.code)
	fc.emit(bytecode.Instruction{Op: bytecode.OpBinOp,
		Slot: idxSlot, SlotB: idxSlot, SlotC: oneSlot,
		MathOp: lexer.OpMathAdd})
	fc.emit(bytecode.Instruction{Op: bytecode.OpJump, ID: int64(top)})
	end := int64(len(fc.code))
	fc.code[exit].ID = end
	for _, p := range fc.breakPatches {
		fc.code[p].ID = end
	}
	for _, p := range fc.continuePatches {
		fc.code[p].ID = int64(step)
	}
	fc.breakPatches, fc.continuePatches = prevBreaks, prevContinues
	return okBody
}

func (fc *funcCompiler) compileDo(stmt *ast.Expression) bool {
	// Layout:
	//   push frame / do block / pop frame / jump end
	//   catch: rescue block / pop frame / jump end
	//   finally: finally block / finallydone
	//   end:
	excSlot := fc.newTemp()
	if stmt.DoStmt.HasRescue && stmt.DoStmt.ErrorName != "" {
		if def := stmt.DoStmt.RescueScope.QueryItem(
			stmt.DoStmt.ErrorName, false); def != nil {
			fc.slots[def] = excSlot
		}
	}
	var caught []int64
	for _, typeRef := range stmt.DoStmt.RescueTypes {
		id := fc.g.classIDOfRef(typeRef)
		if id >= 0 {
			caught = append(caught, id)
		}
	}
	push := fc.emit(bytecode.Instruction{Op: bytecode.OpPushRescueFrame,
		Slot: excSlot, ID: -1, ID2: -1, CaughtTypes: caught})

	ok := fc.compileStmts(stmt.DoStmt.Stmts)
	fc.emit(bytecode.Instruction{Op: bytecode.OpPopRescueFrame})
	var endPatches []int
	endPatches = append(endPatches,
		fc.emit(bytecode.Instruction{Op: bytecode.OpJump}))

	if stmt.DoStmt.HasRescue {
		fc.code[push].ID = int64(len(fc.code))
		if !fc.compileStmts(stmt.DoStmt.RescueStmts) {
			ok = false
		}
		fc.emit(bytecode.Instruction{Op: bytecode.OpPopRescueFrame})
		endPatches = append(endPatches,
			fc.emit(bytecode.Instruction{Op: bytecode.OpJump}))
	}
	if stmt.DoStmt.HasFinally {
		fc.code[push].ID2 = int64(len(fc.code))
		if !fc.compileStmts(stmt.DoStmt.FinallyStmts) {
			ok = false
		}
		fc.emit(bytecode.Instruction{Op: bytecode.OpFinallyDone})
	}
	end := int64(len(fc.code))
	for _, p := range endPatches {
		fc.code[p].ID = end
	}
	return ok
}

func (fc *funcCompiler) compileWith(stmt *ast.Expression) bool {
	// Lowered to do/finally: the acquisitions bind first, the block runs
	// under an exception frame, and the finally path releases the bound
	// slots on every exit.
	var itemSlots []int
	for _, item := range stmt.WithStmt.Items {
		slot, ok := fc.compileExpr(item.Expr)
		if !ok {
			return false
		}
		def := stmt.WithStmt.Scope.QueryItem(item.Name, false)
		if def == nil {
			fc.g.errorf(stmt, "unexpected missing with binding definition")
			return false
		}
		bound := fc.bindLocal(def)
		fc.emit(bytecode.Instruction{Op: bytecode.OpMove,
			Slot: bound, SlotB: slot})
		itemSlots = append(itemSlots, bound)
	}
	excSlot := fc.newTemp()
	push := fc.emit(bytecode.Instruction{Op: bytecode.OpPushRescueFrame,
		Slot: excSlot, ID: -1, ID2: -1})

	ok := fc.compileStmts(stmt.WithStmt.Stmts)
	fc.emit(bytecode.Instruction{Op: bytecode.OpPopRescueFrame})
	endJump := fc.emit(bytecode.Instruction{Op: bytecode.OpJump})

	fc.code[push].ID2 = int64(len(fc.code))
	noneIdx := fc.g.p.AddConstant(bytecode.Constant{Kind: bytecode.ConstNone})
	for _, slot := range itemSlots {
		// Release each acquired value by overwriting its binding:
		fc.emit(bytecode.Instruction{Op: bytecode.OpSetConst,
			Slot: slot, ID: noneIdx})
	}
	fc.emit(bytecode.Instruction{Op: bytecode.OpFinallyDone})
	fc.code[endJump].ID = int64(len(fc.code))
	return ok
}
