package ast

// VisitFunc is called per node; returning false prunes the subtree (for
// the in callback) or is ignored (for the out callback).
type VisitFunc func(expr, parent *Expression) bool

// VisitExpression walks expr depth first, calling in before descending and
// out after. Nil callbacks are skipped.
func VisitExpression(expr, parent *Expression, in VisitFunc, out VisitFunc) {
	if expr == nil {
		return
	}
	if in != nil && !in(expr, parent) {
		return
	}
	visit := func(child *Expression) {
		VisitExpression(child, expr, in, out)
	}
	visitAll := func(children []*Expression) {
		for _, c := range children {
			visit(c)
		}
	}
	visitArgs := func(args []FuncArg) {
		for _, a := range args {
			if a.Value != nil {
				visit(a.Value)
			}
		}
	}
	switch expr.Type {
	case ExprBinaryOp, ExprUnaryOp:
		visit(expr.Op.Value1)
		if expr.Op.Value2 != nil {
			visit(expr.Op.Value2)
		}
	case ExprCall:
		visit(expr.Call.Value)
		visitArgs(expr.Call.Args)
	case ExprList, ExprSet, ExprVector:
		visitAll(expr.Container.Entries)
	case ExprMap:
		for i := range expr.Container.Keys {
			visit(expr.Container.Keys[i])
			visit(expr.Container.Values[i])
		}
	case ExprInlineFuncDef, ExprFuncDefStmt:
		visitArgs(expr.FuncDef.Args)
		visitAll(expr.FuncDef.Stmts)
	case ExprClassDefStmt:
		if expr.ClassDef.BaseClassRef != nil {
			visit(expr.ClassDef.BaseClassRef)
		}
		visitAll(expr.ClassDef.VarDefs)
		visitAll(expr.ClassDef.FuncDefs)
	case ExprVarDefStmt:
		if expr.VarDef.Value != nil {
			visit(expr.VarDef.Value)
		}
	case ExprAssignStmt:
		visit(expr.Assign.LValue)
		visit(expr.Assign.RValue)
	case ExprCallStmt:
		visit(expr.CallStmt.Call)
	case ExprIfStmt:
		for _, clause := range expr.IfStmt.Clauses {
			if clause.Condition != nil {
				visit(clause.Condition)
			}
			visitAll(clause.Stmts)
		}
	case ExprWhileStmt:
		visit(expr.WhileStmt.Condition)
		visitAll(expr.WhileStmt.Stmts)
	case ExprForStmt:
		visit(expr.ForStmt.IteratedExpr)
		visitAll(expr.ForStmt.Stmts)
	case ExprDoStmt:
		visitAll(expr.DoStmt.Stmts)
		visitAll(expr.DoStmt.RescueTypes)
		visitAll(expr.DoStmt.RescueStmts)
		visitAll(expr.DoStmt.FinallyStmts)
	case ExprWithStmt:
		for _, item := range expr.WithStmt.Items {
			visit(item.Expr)
		}
		visitAll(expr.WithStmt.Stmts)
	case ExprReturnStmt:
		if expr.ReturnStmt.Value != nil {
			visit(expr.ReturnStmt.Value)
		}
	}
	if out != nil {
		out(expr, parent)
	}
}
