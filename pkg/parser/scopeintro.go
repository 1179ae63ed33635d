package parser

import (
	"github.com/ternarybob/canter/pkg/ast"
)

// identifierDeclarationName renders what kind of declaration an expression
// is, for duplicate/shadowing diagnostics.
func identifierDeclarationName(expr *ast.Expression) string {
	switch expr.Type {
	case ast.ExprVarDefStmt:
		if expr.VarDef.IsConst {
			return "constant definition"
		}
		return "variable definition"
	case ast.ExprFuncDefStmt, ast.ExprInlineFuncDef:
		return "function definition"
	case ast.ExprClassDefStmt:
		return "class definition"
	case ast.ExprForStmt:
		return "for loop iterator"
	case ast.ExprDoStmt:
		return "rescue error capture"
	case ast.ExprWithStmt:
		return "with statement binding"
	case ast.ExprImportStmt:
		return "import statement"
	}
	return "definition"
}

func importsHaveDuplicatePath(a, b *ast.Expression) bool {
	return a.ImportStmt.Path() == b.ImportStmt.Path() &&
		a.ImportStmt.LibraryName == b.ImportStmt.LibraryName
}

func funcDefHasParameterWithName(expr *ast.Expression, name string) bool {
	if expr.Type != ast.ExprFuncDefStmt && expr.Type != ast.ExprInlineFuncDef {
		return false
	}
	for _, arg := range expr.FuncDef.Args {
		if arg.Name == name {
			return true
		}
	}
	return false
}

// canAddNameToScope checks whether the name expr declares may enter the
// scope. It returns (ok, appendsTo): when the name stacks onto an existing
// import chain, appendsTo is the chain's definition. Duplicate names,
// parameter shadowing, and the shadowing warnings all report here.
func (c *context) canAddNameToScope(
	pt parseThis, expr *ast.Expression, name string, identTokenIndex int,
) (bool, *ast.ScopeDef) {
	defType := identifierDeclarationName(expr)

	if dup := pt.scope.QueryItem(name, false); dup != nil {
		validImportStacking := false
		if dup.DeclarationExpr.Type == ast.ExprImportStmt &&
			expr.Type == ast.ExprImportStmt {
			validImportStacking = !importsHaveDuplicatePath(
				dup.DeclarationExpr, expr)
			for _, extra := range dup.AdditionalDecl {
				if importsHaveDuplicatePath(extra, expr) {
					validImportStacking = false
					break
				}
			}
		}
		if !validImportStacking {
			c.errorAt(pt.tokens, identTokenIndex,
				"unexpected duplicate %s \"%s\", "+
					"already defined as %s in same scope "+
					"in line %d, column %d, this is not allowed",
				defType, shortenedName(name),
				identifierDeclarationName(dup.DeclarationExpr),
				dup.DeclarationExpr.Line, dup.DeclarationExpr.Column)
			return false, nil
		}
		return true, dup
	}

	shadowed := pt.scope.QueryItem(name, true)
	if shadowed != nil {
		// Shadowing a parameter of the function we are directly inside
		// is forbidden outright:
		if (shadowed.DeclarationExpr.Type == ast.ExprFuncDefStmt ||
			shadowed.DeclarationExpr.Type == ast.ExprInlineFuncDef) &&
			shadowed.Scope.ClassAndFuncNestingLevel ==
				pt.scope.ClassAndFuncNestingLevel &&
			funcDefHasParameterWithName(shadowed.DeclarationExpr, name) {
			c.errorAt(pt.tokens, identTokenIndex,
				"unexpected %s \"%s\" shadowing function parameter seen "+
					"in line %d, column %d, this is not allowed",
				defType, shortenedName(name),
				shadowed.DeclarationExpr.Line,
				shadowed.DeclarationExpr.Column)
			return false, nil
		}
		warn := false
		suffix := ""
		switch {
		case !shadowed.Scope.IsGlobal &&
			shadowed.Scope.ClassAndFuncNestingLevel ==
				pt.scope.ClassAndFuncNestingLevel:
			warn = c.wconfig.WarnShadowingDirectLocals
			suffix = ", this is not recommended [-Wshadowing-direct-locals]"
		case !shadowed.Scope.IsGlobal:
			warn = c.wconfig.WarnShadowingParentFuncLocals
			suffix = " [-Wshadowing-parent-func-locals]"
		default:
			warn = c.wconfig.WarnShadowingGlobals
			suffix = " [-Wshadowing-globals]"
		}
		if warn {
			c.result.Warnf(c.fileURI,
				c.refLine(pt.tokens, identTokenIndex),
				c.refCol(pt.tokens, identTokenIndex),
				"%s \"%s\" shadowing previous %s definition "+
					"in line %d, column %d%s",
				defType, shortenedName(name),
				identifierDeclarationName(shadowed.DeclarationExpr),
				shadowed.DeclarationExpr.Line,
				shadowed.DeclarationExpr.Column, suffix)
		}
	}
	return true, nil
}

// processNewScopeIdentifier introduces a declared name into the current
// scope (or an explicitly provided one), rejecting reserved names,
// duplicates, and forbidden parameter shadowing, and appending stacked
// imports to the existing chain.
func (c *context) processNewScopeIdentifierInScope(
	pt parseThis, expr *ast.Expression, identifier string,
	identTokenIndex int, targetScope *ast.Scope,
) bool {
	if ast.IdentifierIsReserved(identifier) {
		c.errorAt(pt.tokens, identTokenIndex,
			"unexpected identifier \"%s\", "+
				"this identifier is reserved and cannot be redefined",
			shortenedName(identifier))
		return false
	}
	ok, appendsTo := c.canAddNameToScope(pt, expr, identifier, identTokenIndex)
	if !ok {
		return false
	}
	if appendsTo != nil {
		appendsTo.AdditionalDecl = append(appendsTo.AdditionalDecl, expr)
		return true
	}
	sc := targetScope
	if sc == nil {
		sc = pt.scope
	}
	return sc.AddItem(identifier, expr) != nil
}

func (c *context) processNewScopeIdentifier(
	pt parseThis, expr *ast.Expression, identifier string,
	identTokenIndex int,
) bool {
	return c.processNewScopeIdentifierInScope(
		pt, expr, identifier, identTokenIndex, nil)
}
