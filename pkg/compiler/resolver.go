package compiler

import (
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
)

// ResolveAST binds every identifier reference in the tree to a scope
// definition, a built-in, or an imported module, loading imported modules
// through the project as it goes. After it returns, every identifier
// reference either carries a resolved target or produced an error
// message; there are no silent nulls.
func (pr *Project) ResolveAST(tree *ast.AST) error {
	r := &resolver{pr: pr, tree: tree}
	for _, stmt := range tree.Stmts {
		r.resolveStmt(stmt, tree.Scope)
	}
	return nil
}

type resolver struct {
	pr   *Project
	tree *ast.AST
}

func (r *resolver) errorf(e *ast.Expression, format string, args ...interface{}) {
	r.pr.Result.Errorf(r.tree.FileURI, e.Line, e.Column, format, args...)
}

func (r *resolver) resolveStmt(stmt *ast.Expression, sc *ast.Scope) {
	if stmt == nil || stmt.Destroyed {
		return
	}
	switch stmt.Type {
	case ast.ExprVarDefStmt:
		if stmt.VarDef.Value != nil {
			r.resolveExpr(stmt.VarDef.Value, sc)
		}
	case ast.ExprFuncDefStmt, ast.ExprInlineFuncDef:
		fs := stmt.FuncDef.Scope
		for _, arg := range stmt.FuncDef.Args {
			if arg.Value != nil {
				r.resolveExpr(arg.Value, sc)
			}
		}
		for _, inner := range stmt.FuncDef.Stmts {
			r.resolveStmt(inner, fs)
		}
	case ast.ExprClassDefStmt:
		if stmt.ClassDef.BaseClassRef != nil {
			r.resolveExpr(stmt.ClassDef.BaseClassRef, sc)
		}
		cs := stmt.ClassDef.Scope
		for _, v := range stmt.ClassDef.VarDefs {
			r.resolveStmt(v, cs)
		}
		for _, f := range stmt.ClassDef.FuncDefs {
			r.resolveStmt(f, cs)
		}
	case ast.ExprImportStmt:
		r.resolveImport(stmt)
	case ast.ExprAssignStmt:
		r.resolveExpr(stmt.Assign.LValue, sc)
		r.resolveExpr(stmt.Assign.RValue, sc)
	case ast.ExprCallStmt:
		r.resolveExpr(stmt.CallStmt.Call, sc)
	case ast.ExprIfStmt:
		for _, clause := range stmt.IfStmt.Clauses {
			if clause.Condition != nil {
				r.resolveExpr(clause.Condition, clause.Scope)
			}
			for _, inner := range clause.Stmts {
				r.resolveStmt(inner, clause.Scope)
			}
		}
	case ast.ExprWhileStmt:
		r.resolveExpr(stmt.WhileStmt.Condition, stmt.WhileStmt.Scope)
		for _, inner := range stmt.WhileStmt.Stmts {
			r.resolveStmt(inner, stmt.WhileStmt.Scope)
		}
	case ast.ExprForStmt:
		// The iterated expression sees the outer scope, not the
		// iterator name:
		outer := stmt.ForStmt.Scope.Parent
		if outer == nil {
			outer = stmt.ForStmt.Scope
		}
		r.resolveExpr(stmt.ForStmt.IteratedExpr, outer)
		for _, inner := range stmt.ForStmt.Stmts {
			r.resolveStmt(inner, stmt.ForStmt.Scope)
		}
	case ast.ExprDoStmt:
		for _, inner := range stmt.DoStmt.Stmts {
			r.resolveStmt(inner, stmt.DoStmt.Scope)
		}
		for _, caught := range stmt.DoStmt.RescueTypes {
			r.resolveExpr(caught, stmt.DoStmt.RescueScope)
		}
		for _, inner := range stmt.DoStmt.RescueStmts {
			r.resolveStmt(inner, stmt.DoStmt.RescueScope)
		}
		for _, inner := range stmt.DoStmt.FinallyStmts {
			r.resolveStmt(inner, stmt.DoStmt.FinallyScope)
		}
	case ast.ExprWithStmt:
		for _, item := range stmt.WithStmt.Items {
			r.resolveExpr(item.Expr, sc)
		}
		for _, inner := range stmt.WithStmt.Stmts {
			r.resolveStmt(inner, stmt.WithStmt.Scope)
		}
	case ast.ExprReturnStmt:
		if stmt.ReturnStmt.Value != nil {
			r.resolveExpr(stmt.ReturnStmt.Value, sc)
		}
	default:
		// Expression used in statement position:
		r.resolveExpr(stmt, sc)
	}
}

func (r *resolver) resolveExpr(expr *ast.Expression, sc *ast.Scope) {
	if expr == nil || expr.Destroyed {
		return
	}
	switch expr.Type {
	case ast.ExprIdentifierRef:
		r.resolveIdentifier(expr, sc)
	case ast.ExprBinaryOp:
		r.resolveExpr(expr.Op.Value1, sc)
		// The right side of attribute-by-identifier names an attribute,
		// not a scoped identifier:
		if expr.Op.Op != lexer.OpAttributeByIdentifier {
			r.resolveExpr(expr.Op.Value2, sc)
		}
	case ast.ExprUnaryOp:
		r.resolveExpr(expr.Op.Value1, sc)
	case ast.ExprCall:
		r.resolveExpr(expr.Call.Value, sc)
		for _, arg := range expr.Call.Args {
			r.resolveExpr(arg.Value, sc)
		}
	case ast.ExprList, ast.ExprSet, ast.ExprVector:
		for _, e := range expr.Container.Entries {
			r.resolveExpr(e, sc)
		}
	case ast.ExprMap:
		for i := range expr.Container.Keys {
			r.resolveExpr(expr.Container.Keys[i], sc)
			r.resolveExpr(expr.Container.Values[i], sc)
		}
	case ast.ExprInlineFuncDef:
		r.resolveStmt(expr, sc)
	case ast.ExprLiteral:
		// Nothing to bind.
	}
}

func (r *resolver) resolveIdentifier(expr *ast.Expression, sc *ast.Scope) {
	name := expr.IdentifierRef.Value
	if name == "self" || name == "base" {
		expr.IdentifierRef.Resolved = &ast.ResolveInfo{Kind: ast.ResolveLocalDef}
		return
	}
	if def := sc.QueryItem(name, true); def != nil {
		def.EverUsed = true
		kind := ast.ResolveLocalDef
		if def.DeclarationExpr != nil &&
			def.DeclarationExpr.Type == ast.ExprImportStmt {
			kind = ast.ResolveImportModule
		} else if def.Scope.IsGlobal {
			kind = ast.ResolveGlobal
		}
		expr.IdentifierRef.Resolved = &ast.ResolveInfo{Kind: kind, Def: def}
		return
	}
	if r.pr.BuiltinNames[name] {
		expr.IdentifierRef.Resolved = &ast.ResolveInfo{Kind: ast.ResolveGlobal}
		return
	}
	// The quoted name is exactly the unknown identifier; nothing else
	// may leak into the message.
	r.errorf(expr, "unexpected unknown identifier \"%s\", "+
		"expected known identifier", shorten(name))
}

func shorten(name string) string {
	if len(name) > 32 {
		return name[:32] + "..."
	}
	return name
}

func (r *resolver) resolveImport(stmt *ast.Expression) {
	path := stmt.ImportStmt.Path()
	if _, err := r.pr.LoadModule(path, stmt.ImportStmt.LibraryName); err != nil {
		r.errorf(stmt, "failed to import module \"%s\": %v",
			shorten(path), err)
	}
}
