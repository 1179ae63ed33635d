package parser

import (
	"errors"

	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
)

// parseCodeBlock parses a '{' ... '}' statement block in the given scope,
// recovering to the next plausible statement after inner parse failures so
// one bad statement does not eat the rest of the block.
func (c *context) parseCodeBlock(
	pt parseThis, mode int, depth int,
) ([]*ast.Expression, int, error) {
	depth++
	if err := c.checkDepth(pt, depth); err != nil {
		return nil, 0, err
	}
	tokens := pt.tokens
	if len(tokens) == 0 || !tokens[0].IsBracket('{') {
		c.errorAt(tokens, 0,
			"unexpected %s, expected '{' opening code block instead",
			describeToken(tokens, 0))
		return nil, 0, ErrParse
	}
	blockLine := tokens[0].Line
	blockColumn := tokens[0].Column
	stmts := []*ast.Expression{}
	i := 1
	for {
		if i < len(tokens) && !tokens[i].IsBracket('}') {
			inner, tlen, err := c.parseExprStmt(pt.sub(i), mode, depth)
			if err != nil {
				if errors.Is(err, ErrOutOfMemory) {
					return nil, 0, err
				}
				// Recover at the next obvious statement or block end:
				next := c.findNextStatementInWindow(tokens, i, recoverMustForward)
				if next <= i {
					next = i + 1
				}
				i = next
				continue
			}
			if inner != nil {
				stmts = append(stmts, inner)
				i += tlen
				continue
			}
		}
		if i >= len(tokens) || !tokens[i].IsBracket('}') {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected '}' to end code block opened with '{' "+
					"in line %d, column %d instead",
				describeToken(tokens, i), blockLine, blockColumn)
			return nil, 0, ErrParse
		}
		i++
		break
	}
	return stmts, i, nil
}

// parseExprStmt parses one statement, dispatching on its leading keyword
// or identifier.
func (c *context) parseExprStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	depth++
	if err := c.checkDepth(pt, depth); err != nil {
		return nil, 0, err
	}
	tokens := pt.tokens
	if len(tokens) == 0 {
		return nil, 0, nil
	}

	if tokens[0].Type == lexer.TokenKeyword {
		switch tokens[0].Str {
		case "var", "const":
			return c.parseVarDefStmt(pt, mode, depth)
		case "func":
			return c.parseFuncDefStmt(pt, mode, depth)
		case "class":
			return c.parseClassDefStmt(pt, mode, depth)
		case "import":
			return c.parseImportStmt(pt, mode, depth)
		case "do":
			return c.parseDoStmt(pt, mode, depth)
		case "with":
			return c.parseWithStmt(pt, mode, depth)
		case "if":
			return c.parseIfStmt(pt, mode, depth)
		case "while":
			return c.parseWhileStmt(pt, mode, depth)
		case "for":
			return c.parseForStmt(pt, mode, depth)
		case "return":
			return c.parseReturnStmt(pt, mode, depth)
		case "break", "continue":
			return c.parseLoopControlStmt(pt, mode, depth)
		}
	}

	// Assignments and call statements start with an identifier:
	if tokens[0].Type == lexer.TokenIdentifier && len(tokens) > 1 {
		return c.parseAssignOrCallStmt(pt, mode, depth)
	}
	return nil, 0, nil
}

func (c *context) requireInFunc(pt parseThis, mode int, what string) error {
	if mode != stmtModeInFunc {
		c.errorAt(pt.tokens, 0,
			"unexpected %s statement, "+
				"this is only allowed inside a function", what)
		return ErrParse
	}
	return nil
}

func (c *context) parseVarDefStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprVarDefStmt
	expr.VarDef = &ast.VarDefInfo{IsConst: tokens[0].Str == "const"}

	i := 1
	if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected identifier to name variable instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	expr.VarDef.Identifier = tokens[i].Str
	nameTokenIndex := i
	i++

	// Optional attributes:
	for i < len(tokens) && tokens[i].Type == lexer.TokenKeyword {
		if tokens[i].Str == "deprecated" && !expr.VarDef.IsDeprecated {
			expr.VarDef.IsDeprecated = true
			i++
			continue
		}
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected valid variable attribute or '=' instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}

	if i < len(tokens) && tokens[i].Type == lexer.TokenBinOpSymbol &&
		tokens[i].Op == lexer.OpAssign {
		i++
		inner, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if inner == nil {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected inline value assigned to "+
					"variable definition in line %d, column %d instead",
				describeToken(tokens, i), expr.Line, expr.Column)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		expr.VarDef.Value = inner
		i += tlen
	}

	if !c.processNewScopeIdentifier(pt, expr, expr.VarDef.Identifier, nameTokenIndex) {
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	return expr, i, nil
}

func (c *context) parseFuncDefStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprFuncDefStmt
	funcScope := ast.NewScope(pt.scope)
	funcScope.ClassAndFuncNestingLevel++
	expr.FuncDef = &ast.FuncDefInfo{Scope: funcScope}

	i := 1
	if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected identifier to name function instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	expr.FuncDef.Name = tokens[i].Str
	nameTokenIndex := i
	i++

	// Optional argument list:
	if i < len(tokens) && tokens[i].IsBracket('(') {
		args, tlen, err := c.parseFuncDefArgs(pt.sub(i).withScope(funcScope), depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if args != nil {
			expr.FuncDef.Args = args
			i += tlen
		}
	}

	// Attributes, each at most once; getter and setter are mutually
	// exclusive:
	for i < len(tokens) && tokens[i].Type == lexer.TokenKeyword {
		attr := tokens[i].Str
		dup := false
		switch attr {
		case "threadable":
			dup = expr.FuncDef.IsThreadable
			expr.FuncDef.IsThreadable = true
		case "deprecated":
			dup = expr.FuncDef.IsDeprecated
			expr.FuncDef.IsDeprecated = true
		case "getter":
			dup = expr.FuncDef.IsGetter
			expr.FuncDef.IsGetter = true
		case "setter":
			dup = expr.FuncDef.IsSetter
			expr.FuncDef.IsSetter = true
		default:
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected valid function attribute or '{' instead",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		if dup {
			c.errorAt(tokens, i,
				"unexpected duplicate function attribute \"%s\"", attr)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i++
	}
	if expr.FuncDef.IsGetter && expr.FuncDef.IsSetter {
		c.errorAt(tokens, i,
			"unexpected combination of \"getter\" and \"setter\" "+
				"attributes, these are mutually exclusive")
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}

	// Introduce the function name before the body so it can recurse:
	if !c.processNewScopeIdentifier(pt, expr, expr.FuncDef.Name, nameTokenIndex) {
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	// Parameters live in the function's own scope:
	for _, arg := range expr.FuncDef.Args {
		if !c.processNewScopeIdentifierInScope(
			pt.withScope(funcScope), expr, arg.Name, nameTokenIndex,
			funcScope) {
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
	}

	stmts, tlen, err := c.parseCodeBlock(
		pt.sub(i).withScope(funcScope), stmtModeInFunc, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	expr.FuncDef.Stmts = stmts
	i += tlen
	return expr, i, nil
}

func (c *context) parseClassDefStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	if mode != stmtModeTopLevel {
		c.errorAt(tokens, 0,
			"unexpected class statement, "+
				"classes may only appear at top level")
		return nil, 0, ErrParse
	}
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprClassDefStmt
	classScope := ast.NewScope(pt.scope)
	classScope.ClassAndFuncNestingLevel++
	expr.ClassDef = &ast.ClassDefInfo{Scope: classScope}

	i := 1
	if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected identifier to name class instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	expr.ClassDef.Name = tokens[i].Str
	nameTokenIndex := i
	i++

	if i < len(tokens) && tokens[i].IsKeyword("extends") {
		i++
		base, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if base == nil || !ast.CanBeClassRef(base) {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected class reference following \"extends\"",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		expr.ClassDef.BaseClassRef = base
		i += tlen
	}

	for i < len(tokens) && tokens[i].Type == lexer.TokenKeyword {
		if tokens[i].Str == "deprecated" && !expr.ClassDef.IsDeprecated {
			expr.ClassDef.IsDeprecated = true
			i++
			continue
		}
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected valid class attribute or '{' instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}

	if !c.processNewScopeIdentifier(pt, expr, expr.ClassDef.Name, nameTokenIndex) {
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}

	stmts, tlen, err := c.parseCodeBlock(
		pt.sub(i).withScope(classScope), stmtModeInClass, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	i += tlen

	// The class body splits into vardefs and funcdefs. The statement mode
	// rejects class, import, control flow and return statements; do, with,
	// assignment and call statements get through and are reported here:
	for _, stmt := range stmts {
		switch stmt.Type {
		case ast.ExprVarDefStmt:
			expr.ClassDef.VarDefs = append(expr.ClassDef.VarDefs, stmt)
		case ast.ExprFuncDefStmt:
			expr.ClassDef.FuncDefs = append(expr.ClassDef.FuncDefs, stmt)
		default:
			c.result.Errorf(c.fileURI, stmt.Line, stmt.Column,
				"unexpected %s statement, "+
					"only var and func statements are allowed in a "+
					"class body", stmt.Type)
		}
	}
	return expr, i, nil
}

func (c *context) parseImportStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	if mode != stmtModeTopLevel {
		c.errorAt(tokens, 0,
			"unexpected import statement, "+
				"imports may only appear at top level")
		return nil, 0, ErrParse
	}
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprImportStmt
	expr.ImportStmt = &ast.ImportStmtInfo{}

	i := 1
	nameTokenIndex := i
	for {
		if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected identifier as import path element instead",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		expr.ImportStmt.Elements = append(
			expr.ImportStmt.Elements, tokens[i].Str)
		i++
		if i < len(tokens) && tokens[i].Type == lexer.TokenBinOpSymbol &&
			tokens[i].Op == lexer.OpAttributeByIdentifier {
			i++
			continue
		}
		break
	}

	if i < len(tokens) && tokens[i].IsKeyword("from") {
		i++
		if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected library name following \"from\" instead",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		expr.ImportStmt.LibraryName = tokens[i].Str
		i++
	}
	if i < len(tokens) && tokens[i].IsKeyword("as") {
		i++
		if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected alias name following \"as\" instead",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		expr.ImportStmt.ImportAs = tokens[i].Str
		i++
	}

	if !c.processNewScopeIdentifier(
		pt, expr, expr.ImportStmt.BoundName(), nameTokenIndex) {
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	return expr, i, nil
}

func (c *context) parseDoStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprDoStmt
	expr.DoStmt = &ast.DoStmtInfo{Scope: ast.NewScope(pt.scope)}

	i := 1
	stmts, tlen, err := c.parseCodeBlock(
		pt.sub(i).withScope(expr.DoStmt.Scope), stmtModeInFunc, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	expr.DoStmt.Stmts = stmts
	i += tlen

	if i < len(tokens) && tokens[i].IsKeyword("rescue") {
		expr.DoStmt.HasRescue = true
		expr.DoStmt.RescueScope = ast.NewScope(pt.scope)
		i++
		for {
			caught, tlen, err := c.parseExprInline(
				pt.sub(i), inlineModeGreedy, depth)
			if err != nil {
				ast.MarkDestroyed(expr)
				return nil, 0, err
			}
			if caught == nil {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected error class reference following "+
						"\"rescue\" instead",
					describeToken(tokens, i))
				ast.MarkDestroyed(expr)
				return nil, 0, ErrParse
			}
			expr.DoStmt.RescueTypes = append(expr.DoStmt.RescueTypes, caught)
			i += tlen
			if i < len(tokens) && tokens[i].Type == lexer.TokenComma {
				i++
				continue
			}
			break
		}
		if i < len(tokens) && tokens[i].IsKeyword("as") {
			i++
			if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected identifier to capture the error "+
						"following \"as\" instead",
					describeToken(tokens, i))
				ast.MarkDestroyed(expr)
				return nil, 0, ErrParse
			}
			expr.DoStmt.ErrorName = tokens[i].Str
			if !c.processNewScopeIdentifierInScope(
				pt.withScope(expr.DoStmt.RescueScope), expr,
				expr.DoStmt.ErrorName, i, expr.DoStmt.RescueScope) {
				ast.MarkDestroyed(expr)
				return nil, 0, ErrParse
			}
			i++
		}
		stmts, tlen, err := c.parseCodeBlock(
			pt.sub(i).withScope(expr.DoStmt.RescueScope), stmtModeInFunc, depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		expr.DoStmt.RescueStmts = stmts
		i += tlen
	}

	if i < len(tokens) && tokens[i].IsKeyword("finally") {
		expr.DoStmt.HasFinally = true
		expr.DoStmt.FinallyScope = ast.NewScope(pt.scope)
		i++
		stmts, tlen, err := c.parseCodeBlock(
			pt.sub(i).withScope(expr.DoStmt.FinallyScope), stmtModeInFunc, depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		expr.DoStmt.FinallyStmts = stmts
		i += tlen
	}

	if !expr.DoStmt.HasRescue && !expr.DoStmt.HasFinally {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected \"rescue\" or \"finally\" following do "+
				"statement block instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	return expr, i, nil
}

func (c *context) parseWithStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprWithStmt
	withScope := ast.NewScope(pt.scope)
	expr.WithStmt = &ast.WithStmtInfo{Scope: withScope}

	i := 1
	for {
		acquired, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if acquired == nil {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected inline value to acquire in with "+
					"statement instead",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i += tlen
		if i >= len(tokens) || !tokens[i].IsKeyword("as") {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected \"as\" naming the acquired value instead",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i++
		if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected identifier following \"as\" instead",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		name := tokens[i].Str
		if !c.processNewScopeIdentifierInScope(
			pt.withScope(withScope), expr, name, i, withScope) {
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		expr.WithStmt.Items = append(expr.WithStmt.Items,
			ast.WithItem{Expr: acquired, Name: name})
		i++
		if i < len(tokens) && tokens[i].Type == lexer.TokenComma {
			i++
			continue
		}
		break
	}

	stmts, tlen, err := c.parseCodeBlock(
		pt.sub(i).withScope(withScope), stmtModeInFunc, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	expr.WithStmt.Stmts = stmts
	i += tlen
	return expr, i, nil
}

func (c *context) parseIfStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	if err := c.requireInFunc(pt, mode, "if"); err != nil {
		return nil, 0, err
	}
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprIfStmt
	expr.IfStmt = &ast.IfStmtInfo{}

	i := 0
	for {
		clause := &ast.IfClause{Scope: ast.NewScope(pt.scope)}
		isElse := tokens[i].IsKeyword("else")
		i++ // past if/elseif/else
		if !isElse {
			cond, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
			if err != nil {
				ast.MarkDestroyed(expr)
				return nil, 0, err
			}
			if cond == nil {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected conditional expression instead",
					describeToken(tokens, i))
				ast.MarkDestroyed(expr)
				return nil, 0, ErrParse
			}
			clause.Condition = cond
			i += tlen
		}
		stmts, tlen, err := c.parseCodeBlock(
			pt.sub(i).withScope(clause.Scope), stmtModeInFunc, depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		clause.Stmts = stmts
		i += tlen
		expr.IfStmt.Clauses = append(expr.IfStmt.Clauses, clause)
		if isElse {
			break
		}
		if i < len(tokens) && (tokens[i].IsKeyword("elseif") ||
			tokens[i].IsKeyword("else")) {
			continue
		}
		break
	}
	return expr, i, nil
}

func (c *context) parseWhileStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	if err := c.requireInFunc(pt, mode, "while"); err != nil {
		return nil, 0, err
	}
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprWhileStmt
	expr.WhileStmt = &ast.WhileStmtInfo{Scope: ast.NewScope(pt.scope)}

	i := 1
	cond, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	if cond == nil {
		c.errorAt(tokens, i,
			"unexpected %s, expected conditional expression instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	expr.WhileStmt.Condition = cond
	i += tlen

	stmts, tlen, err := c.parseCodeBlock(
		pt.sub(i).withScope(expr.WhileStmt.Scope), stmtModeInFunc, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	expr.WhileStmt.Stmts = stmts
	i += tlen
	return expr, i, nil
}

func (c *context) parseForStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	if err := c.requireInFunc(pt, mode, "for"); err != nil {
		return nil, 0, err
	}
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprForStmt
	loopScope := ast.NewScope(pt.scope)
	expr.ForStmt = &ast.ForStmtInfo{Scope: loopScope}

	i := 1
	if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected identifier as for loop iterator instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	expr.ForStmt.IteratorIdentifier = tokens[i].Str
	nameTokenIndex := i
	i++

	if i >= len(tokens) || !tokens[i].IsKeyword("in") {
		c.errorAt(tokens, i,
			"unexpected %s, expected \"in\" following loop iterator instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	i++

	iterated, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	if iterated == nil {
		c.errorAt(tokens, i,
			"unexpected %s, expected inline value to iterate over instead",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	expr.ForStmt.IteratedExpr = iterated
	i += tlen

	if !c.processNewScopeIdentifierInScope(
		pt.withScope(loopScope), expr,
		expr.ForStmt.IteratorIdentifier, nameTokenIndex, loopScope) {
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}

	stmts, tlen, err := c.parseCodeBlock(
		pt.sub(i).withScope(loopScope), stmtModeInFunc, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	expr.ForStmt.Stmts = stmts
	i += tlen
	return expr, i, nil
}

func (c *context) parseReturnStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	if err := c.requireInFunc(pt, mode, "return"); err != nil {
		return nil, 0, err
	}
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprReturnStmt
	expr.ReturnStmt = &ast.ReturnStmtInfo{}

	i := 1
	value, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	if value != nil {
		expr.ReturnStmt.Value = value
		i += tlen
	}
	return expr, i, nil
}

func (c *context) parseLoopControlStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	if err := c.requireInFunc(pt, mode, pt.tokens[0].Str); err != nil {
		return nil, 0, err
	}
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	if pt.tokens[0].Str == "break" {
		expr.Type = ast.ExprBreakStmt
	} else {
		expr.Type = ast.ExprContinueStmt
	}
	return expr, 1, nil
}

func (c *context) parseAssignOrCallStmt(pt parseThis, mode int, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}

	inner, tlen, err := c.parseExprInline(pt, inlineModeGreedy, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	if inner == nil {
		ast.MarkDestroyed(expr)
		return nil, 0, nil
	}
	i := tlen

	if i < len(tokens) && tokens[i].Type == lexer.TokenBinOpSymbol &&
		tokens[i].Op.IsAssignOp() {
		assignOp := tokens[i].Op
		if !ast.CanBeLValue(inner) {
			c.errorAt(tokens, i,
				"unexpected assignment to value that cannot be "+
					"assigned to, expected identifier, attribute, or "+
					"index to assign to instead")
			ast.MarkDestroyed(inner)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i++
		rvalue, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
		if err != nil {
			ast.MarkDestroyed(inner)
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if rvalue == nil {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected inline value assigned to assign statement "+
					"starting in line %d, column %d instead",
				describeToken(tokens, i), expr.Line, expr.Column)
			ast.MarkDestroyed(inner)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i += tlen
		expr.Type = ast.ExprAssignStmt
		expr.Assign = &ast.AssignInfo{
			LValue:   inner,
			RValue:   rvalue,
			AssignOp: assignOp,
		}
		return expr, i, nil
	}

	if inner.Type == ast.ExprCall {
		expr.Type = ast.ExprCallStmt
		expr.CallStmt = &ast.CallStmtInfo{Call: inner}
		return expr, i, nil
	}

	ast.MarkDestroyed(inner)
	ast.MarkDestroyed(expr)
	return nil, 0, nil
}
