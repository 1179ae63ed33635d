package compiler

import (
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/lexer"
)

// CodegenAST lowers a resolved AST into the program table: top-level
// variables become globals (with a hidden globals-init function for
// non-constant initializers), functions and class methods become
// bytecode functions, and classes register their member layout.
func (pr *Project) CodegenAST(p *bytecode.Program, tree *ast.AST) bool {
	g := &codegen{pr: pr, p: p, tree: tree,
		globalIDs: map[*ast.ScopeDef]int64{},
		funcIDs:   map[*ast.Expression]int64{},
		classIDs:  map[*ast.Expression]int64{},
	}
	return g.run()
}

type codegen struct {
	pr   *Project
	p    *bytecode.Program
	tree *ast.AST

	globalIDs map[*ast.ScopeDef]int64
	funcIDs   map[*ast.Expression]int64
	classIDs  map[*ast.Expression]int64
}

func (g *codegen) errorf(e *ast.Expression, format string, args ...interface{}) {
	g.pr.Result.Errorf(g.tree.FileURI, e.Line, e.Column, format, args...)
}

func (g *codegen) run() bool {
	ok := true

	// Pass 1: register globals, function signatures, classes.
	var globalInits []*ast.Expression
	for _, stmt := range g.tree.Stmts {
		switch stmt.Type {
		case ast.ExprVarDefStmt:
			def := g.tree.Scope.QueryItem(stmt.VarDef.Identifier, false)
			constIdx := int64(-1)
			if c, isConst := literalConstant(stmt.VarDef.Value); isConst {
				constIdx = g.p.AddConstant(c)
			} else if stmt.VarDef.Value != nil {
				globalInits = append(globalInits, stmt)
			}
			id := g.p.AddGlobal(stmt.VarDef.Identifier,
				stmt.VarDef.IsConst, constIdx)
			if def != nil {
				g.globalIDs[def] = id
			}
		case ast.ExprFuncDefStmt:
			g.registerFuncSignature(stmt, -1)
		case ast.ExprClassDefStmt:
			g.registerClass(stmt)
		}
	}

	// Pass 2: compile bodies.
	for _, stmt := range g.tree.Stmts {
		switch stmt.Type {
		case ast.ExprFuncDefStmt:
			if !g.compileFuncBody(stmt) {
				ok = false
			}
		case ast.ExprClassDefStmt:
			for _, m := range stmt.ClassDef.FuncDefs {
				if !g.compileFuncBody(m) {
					ok = false
				}
			}
		}
	}

	// Hidden globals-init function for non-constant initializers:
	if len(globalInits) > 0 {
		fc := g.newFuncCompiler(nil, nil)
		for _, stmt := range globalInits {
			def := g.tree.Scope.QueryItem(stmt.VarDef.Identifier, false)
			slot, okc := fc.compileExpr(stmt.VarDef.Value)
			if !okc {
				ok = false
				continue
			}
			fc.emit(bytecode.Instruction{
				Op: bytecode.OpSetGlobal, ID: g.globalIDs[def],
				SlotB: slot,
			})
		}
		f := &bytecode.Function{
			Name:           "$globalsinit",
			InnerStackSize: fc.maxSlot + 1,
			OwnerClassID:   -1,
			IsThreadable:   true,
			Instructions:   fc.code,
		}
		g.p.GlobalsInitFuncID = g.p.RegisterFunction(f)
	}

	if id := g.p.FuncByName("main"); id >= 0 {
		g.p.MainFuncID = id
	}
	return ok
}

// literalConstant extracts a constant-table entry from a literal
// initializer.
func literalConstant(e *ast.Expression) (bytecode.Constant, bool) {
	if e == nil || e.Type != ast.ExprLiteral {
		return bytecode.Constant{}, false
	}
	switch e.Literal.TokenType {
	case lexer.TokenConstantInt:
		return bytecode.Constant{Kind: bytecode.ConstInt, Int: e.Literal.Int}, true
	case lexer.TokenConstantFloat:
		return bytecode.Constant{Kind: bytecode.ConstFloat, Float: e.Literal.Float}, true
	case lexer.TokenConstantBool:
		return bytecode.Constant{Kind: bytecode.ConstBool, Int: e.Literal.Int}, true
	case lexer.TokenConstantString:
		return bytecode.Constant{Kind: bytecode.ConstString, Str: e.Literal.Str}, true
	case lexer.TokenConstantBytes:
		return bytecode.Constant{Kind: bytecode.ConstBytes, Bytes: e.Literal.Bytes}, true
	case lexer.TokenConstantNone:
		return bytecode.Constant{Kind: bytecode.ConstNone}, true
	}
	return bytecode.Constant{}, false
}

func (g *codegen) registerFuncSignature(stmt *ast.Expression, ownerClass int64) int64 {
	argNames := []string{}
	if ownerClass >= 0 {
		argNames = append(argNames, "self")
	}
	for _, a := range stmt.FuncDef.Args {
		argNames = append(argNames, a.Name)
	}
	f := &bytecode.Function{
		Name:           stmt.FuncDef.Name,
		ModulePath:     g.tree.ModulePath,
		LibraryName:    g.tree.LibraryName,
		InputStackSize: len(argNames),
		ArgNames:       argNames,
		OwnerClassID:   ownerClass,
		IsThreadable:   stmt.FuncDef.IsThreadable,
		IsGetter:       stmt.FuncDef.IsGetter,
		IsSetter:       stmt.FuncDef.IsSetter,
	}
	id := g.p.RegisterFunction(f)
	g.funcIDs[stmt] = id
	return id
}

func (g *codegen) registerClass(stmt *ast.Expression) {
	base := int64(-1)
	if stmt.ClassDef.BaseClassRef != nil {
		base = g.classIDOfRef(stmt.ClassDef.BaseClassRef)
	}
	id := g.p.AddClass(stmt.ClassDef.Name, base, stmt.ClassDef.IsError)
	g.classIDs[stmt] = id
	cls := g.p.Classes[id]
	for _, v := range stmt.ClassDef.VarDefs {
		attrID := g.p.InternAttributeName(v.VarDef.Identifier)
		cls.VarAttrNameIDs = append(cls.VarAttrNameIDs, attrID)
		constIdx := int64(-1)
		if c, isConst := literalConstant(v.VarDef.Value); isConst {
			constIdx = g.p.AddConstant(c)
		} else if v.VarDef.Value != nil {
			g.errorf(v, "class member \"%s\" initializer must be constant",
				v.VarDef.Identifier)
		}
		cls.VarInitConsts = append(cls.VarInitConsts, constIdx)
	}
	for _, m := range stmt.ClassDef.FuncDefs {
		attrID := g.p.InternAttributeName(m.FuncDef.Name)
		funcID := g.registerFuncSignature(m, id)
		cls.MethodAttrNameIDs = append(cls.MethodAttrNameIDs, attrID)
		cls.MethodFuncIDs = append(cls.MethodFuncIDs, funcID)
	}
}

// classIDOfRef resolves a base class reference to an already registered
// class id (standard error classes included), or -1.
func (g *codegen) classIDOfRef(e *ast.Expression) int64 {
	if e.Type == ast.ExprIdentifierRef {
		if id := g.p.ClassByName(e.IdentifierRef.Value); id >= 0 {
			return id
		}
	}
	g.errorf(e, "unexpected base class reference, "+
		"expected name of an already declared class")
	return -1
}

func (g *codegen) compileFuncBody(stmt *ast.Expression) bool {
	funcID := g.funcIDs[stmt]
	f := g.p.Functions[funcID]
	fc := g.newFuncCompiler(stmt, f)
	ok := fc.compileStmts(stmt.FuncDef.Stmts)
	f.InnerStackSize = fc.maxSlot + 1 - f.InputStackSize
	if f.InnerStackSize < 0 {
		f.InnerStackSize = 0
	}
	f.Instructions = fc.code
	return ok
}
