package ast

import "github.com/ternarybob/canter/pkg/lexer"

// ExpressionToJSON renders one node as the generic map structure the
// get_ast command serializes.
func ExpressionToJSON(e *Expression) map[string]interface{} {
	if e == nil {
		return nil
	}
	v := map[string]interface{}{
		"type": e.Type.String(),
	}
	if e.Line >= 0 {
		v["line"] = e.Line
		if e.Column >= 0 {
			v["column"] = e.Column
		}
	}
	children := func(exprs []*Expression) []interface{} {
		out := make([]interface{}, 0, len(exprs))
		for _, c := range exprs {
			out = append(out, ExpressionToJSON(c))
		}
		return out
	}
	argsJSON := func(args []FuncArg) []interface{} {
		out := make([]interface{}, 0, len(args))
		for _, a := range args {
			e := map[string]interface{}{}
			if a.Name != "" {
				e["name"] = a.Name
			}
			if a.Value != nil {
				e["value"] = ExpressionToJSON(a.Value)
			}
			out = append(out, e)
		}
		return out
	}

	switch e.Type {
	case ExprLiteral:
		switch e.Literal.TokenType {
		case lexer.TokenConstantInt:
			v["value"] = e.Literal.Int
		case lexer.TokenConstantFloat:
			v["value"] = e.Literal.Float
		case lexer.TokenConstantBool:
			v["value"] = e.Literal.Int != 0
		case lexer.TokenConstantString:
			v["value"] = e.Literal.Str
		case lexer.TokenConstantBytes:
			v["value"] = string(e.Literal.Bytes)
		case lexer.TokenConstantNone:
			v["value"] = nil
		}
	case ExprIdentifierRef:
		v["value"] = e.IdentifierRef.Value
	case ExprBinaryOp, ExprUnaryOp:
		v["operator"] = e.Op.Op.String()
		v["value1"] = ExpressionToJSON(e.Op.Value1)
		if e.Op.Value2 != nil {
			v["value2"] = ExpressionToJSON(e.Op.Value2)
		}
	case ExprCall:
		v["callee"] = ExpressionToJSON(e.Call.Value)
		v["arguments"] = argsJSON(e.Call.Args)
	case ExprList, ExprSet, ExprVector:
		v["entries"] = children(e.Container.Entries)
	case ExprMap:
		v["keys"] = children(e.Container.Keys)
		v["values"] = children(e.Container.Values)
	case ExprVarDefStmt:
		v["name"] = e.VarDef.Identifier
		if e.VarDef.IsConst {
			v["const"] = true
		}
		if e.VarDef.Value != nil {
			v["value"] = ExpressionToJSON(e.VarDef.Value)
		}
		v["attributes"] = varDefAttributes(e.VarDef)
	case ExprFuncDefStmt, ExprInlineFuncDef:
		if e.FuncDef.Name != "" {
			v["name"] = e.FuncDef.Name
		}
		v["arguments"] = argsJSON(e.FuncDef.Args)
		v["statements"] = children(e.FuncDef.Stmts)
		v["attributes"] = funcDefAttributes(e.FuncDef)
	case ExprClassDefStmt:
		v["name"] = e.ClassDef.Name
		if e.ClassDef.BaseClassRef != nil {
			v["extends"] = ExpressionToJSON(e.ClassDef.BaseClassRef)
		}
		v["vardefs"] = children(e.ClassDef.VarDefs)
		v["funcdefs"] = children(e.ClassDef.FuncDefs)
	case ExprAssignStmt:
		v["operator"] = e.Assign.AssignOp.String()
		v["lvalue"] = ExpressionToJSON(e.Assign.LValue)
		v["rvalue"] = ExpressionToJSON(e.Assign.RValue)
	case ExprCallStmt:
		v["call"] = ExpressionToJSON(e.CallStmt.Call)
	case ExprIfStmt:
		clauses := make([]interface{}, 0, len(e.IfStmt.Clauses))
		for _, c := range e.IfStmt.Clauses {
			cl := map[string]interface{}{
				"statements": children(c.Stmts),
			}
			if c.Condition != nil {
				cl["condition"] = ExpressionToJSON(c.Condition)
			}
			clauses = append(clauses, cl)
		}
		v["clauses"] = clauses
	case ExprWhileStmt:
		v["condition"] = ExpressionToJSON(e.WhileStmt.Condition)
		v["statements"] = children(e.WhileStmt.Stmts)
	case ExprForStmt:
		v["iterator"] = e.ForStmt.IteratorIdentifier
		v["iterated"] = ExpressionToJSON(e.ForStmt.IteratedExpr)
		v["statements"] = children(e.ForStmt.Stmts)
	case ExprDoStmt:
		v["statements"] = children(e.DoStmt.Stmts)
		if e.DoStmt.HasRescue {
			v["rescuetypes"] = children(e.DoStmt.RescueTypes)
			if e.DoStmt.ErrorName != "" {
				v["rescuename"] = e.DoStmt.ErrorName
			}
			v["rescuestatements"] = children(e.DoStmt.RescueStmts)
		}
		if e.DoStmt.HasFinally {
			v["finallystatements"] = children(e.DoStmt.FinallyStmts)
		}
	case ExprWithStmt:
		items := make([]interface{}, 0, len(e.WithStmt.Items))
		for _, it := range e.WithStmt.Items {
			items = append(items, map[string]interface{}{
				"name":  it.Name,
				"value": ExpressionToJSON(it.Expr),
			})
		}
		v["items"] = items
		v["statements"] = children(e.WithStmt.Stmts)
	case ExprImportStmt:
		v["path"] = e.ImportStmt.Path()
		if e.ImportStmt.LibraryName != "" {
			v["library"] = e.ImportStmt.LibraryName
		}
		if e.ImportStmt.ImportAs != "" {
			v["as"] = e.ImportStmt.ImportAs
		}
	case ExprReturnStmt:
		if e.ReturnStmt.Value != nil {
			v["value"] = ExpressionToJSON(e.ReturnStmt.Value)
		}
	}
	return v
}

func varDefAttributes(vd *VarDefInfo) []string {
	attrs := []string{}
	if vd.IsDeprecated {
		attrs = append(attrs, "deprecated")
	}
	return attrs
}

func funcDefAttributes(fd *FuncDefInfo) []string {
	attrs := []string{}
	if fd.IsThreadable {
		attrs = append(attrs, "threadable")
	}
	if fd.IsDeprecated {
		attrs = append(attrs, "deprecated")
	}
	if fd.IsGetter {
		attrs = append(attrs, "getter")
	}
	if fd.IsSetter {
		attrs = append(attrs, "setter")
	}
	return attrs
}

// ScopeToJSON renders a scope table for the get_ast scope field.
func ScopeToJSON(sc *Scope) map[string]interface{} {
	if sc == nil {
		return nil
	}
	names := map[string]interface{}{}
	for _, name := range sc.Names() {
		def := sc.QueryItem(name, false)
		entry := map[string]interface{}{}
		if def.DeclarationExpr != nil {
			entry["declared-type"] = def.DeclarationExpr.Type.String()
			entry["line"] = def.DeclarationExpr.Line
			entry["column"] = def.DeclarationExpr.Column
		}
		if len(def.AdditionalDecl) > 0 {
			entry["additional-declarations"] = len(def.AdditionalDecl)
		}
		names[name] = entry
	}
	return map[string]interface{}{
		"is-global": sc.IsGlobal,
		"names":     names,
	}
}
