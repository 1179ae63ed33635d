package parser

import (
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
)

const (
	inlineModeNonGreedy = 0
	inlineModeGreedy    = 1
)

// parseFuncDefArgs parses a definition argument list starting at '('.
// Each argument is an identifier with an optional default value; names are
// introduced into the function's scope by the caller.
func (c *context) parseFuncDefArgs(pt parseThis, depth int) ([]ast.FuncArg, int, error) {
	depth++
	if err := c.checkDepth(pt, depth); err != nil {
		return nil, 0, err
	}
	tokens := pt.tokens
	if len(tokens) == 0 || !tokens[0].IsBracket('(') {
		return nil, 0, nil
	}
	var args []ast.FuncArg
	i := 1
	for {
		if i < len(tokens) && tokens[i].IsBracket(')') {
			i++
			break
		}
		if len(args) > 0 {
			if i >= len(tokens) || tokens[i].Type != lexer.TokenComma {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected ',' or ')' resuming or ending argument list",
					describeToken(tokens, i))
				return nil, 0, ErrParse
			}
			i++
		}
		if i >= len(tokens) || tokens[i].Type != lexer.TokenIdentifier {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected identifier to name argument instead",
				describeToken(tokens, i))
			return nil, 0, ErrParse
		}
		arg := ast.FuncArg{Name: tokens[i].Str}
		i++
		if i < len(tokens) && tokens[i].Type == lexer.TokenBinOpSymbol &&
			tokens[i].Op == lexer.OpAssign {
			i++
			inner, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
			if err != nil {
				return nil, 0, err
			}
			if inner == nil {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected inline value as argument default",
					describeToken(tokens, i))
				return nil, 0, ErrParse
			}
			arg.Value = inner
			i += tlen
		}
		args = append(args, arg)
	}
	if args == nil {
		args = []ast.FuncArg{}
	}
	return args, i, nil
}

// parseFuncCallArgs parses a call argument list with the window starting
// at the call operator token. Arguments are greedy inline expressions with
// optional "name =" keyword markers, terminated by ')'.
func (c *context) parseFuncCallArgs(pt parseThis, depth int) ([]ast.FuncArg, int, error) {
	depth++
	if err := c.checkDepth(pt, depth); err != nil {
		return nil, 0, err
	}
	tokens := pt.tokens
	if len(tokens) == 0 || tokens[0].Type != lexer.TokenBinOpSymbol ||
		tokens[0].Op != lexer.OpCall {
		return nil, 0, nil
	}
	args := []ast.FuncArg{}
	i := 1
	for {
		if i < len(tokens) && tokens[i].IsBracket(')') {
			i++
			break
		}
		if len(args) > 0 {
			if i >= len(tokens) || tokens[i].Type != lexer.TokenComma {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected ',' or ')' resuming or ending call "+
						"argument list",
					describeToken(tokens, i))
				return nil, 0, ErrParse
			}
			i++
		}
		arg := ast.FuncArg{}
		// "name =" keyword marker (but not "name ==", which is a
		// comparison inside a positional argument):
		if i+1 < len(tokens) && tokens[i].Type == lexer.TokenIdentifier &&
			tokens[i+1].Type == lexer.TokenBinOpSymbol &&
			tokens[i+1].Op == lexer.OpAssign {
			arg.Name = tokens[i].Str
			i += 2
		}
		inner, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
		if err != nil {
			return nil, 0, err
		}
		if inner == nil {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected inline value as call argument",
				describeToken(tokens, i))
			return nil, 0, ErrParse
		}
		arg.Value = inner
		i += tlen
		args = append(args, arg)
	}
	return args, i, nil
}

// parseInlineFunc parses "x => (expr)" or "(args) => (expr)". The body
// expression becomes a single implicit return statement.
func (c *context) parseInlineFunc(pt parseThis, depth int) (*ast.Expression, int, error) {
	depth++
	if err := c.checkDepth(pt, depth); err != nil {
		return nil, 0, err
	}
	tokens := pt.tokens
	if len(tokens) < 2 {
		return nil, 0, nil
	}

	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}
	expr.Type = ast.ExprInlineFuncDef
	funcScope := ast.NewScope(pt.scope)
	funcScope.ClassAndFuncNestingLevel++
	expr.FuncDef = &ast.FuncDefInfo{Scope: funcScope}

	i := 0
	if tokens[0].Type == lexer.TokenIdentifier &&
		tokens[1].Type == lexer.TokenInlineFunc {
		expr.FuncDef.Args = []ast.FuncArg{{Name: tokens[0].Str}}
		i = 1
	} else if tokens[0].IsBracket('(') {
		args, tlen, err := c.parseFuncDefArgs(pt.withScope(funcScope), depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if args == nil {
			ast.MarkDestroyed(expr)
			return nil, 0, nil
		}
		expr.FuncDef.Args = args
		i = tlen
		if i >= len(tokens) || tokens[i].Type != lexer.TokenInlineFunc {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected \"=>\" following inline function arguments",
				describeToken(tokens, i))
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
	} else {
		ast.MarkDestroyed(expr)
		return nil, 0, nil
	}
	i++ // past =>

	// Introduce the parameters into the inline function's own scope:
	for _, arg := range expr.FuncDef.Args {
		if !c.processNewScopeIdentifier(
			pt.withScope(funcScope), expr, arg.Name, i) {
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
	}

	body, tlen, err := c.parseExprInline(
		pt.sub(i).withScope(funcScope), inlineModeGreedy, depth)
	if err != nil {
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	if body == nil {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected inline expression as inline function body",
			describeToken(tokens, i))
		ast.MarkDestroyed(expr)
		return nil, 0, ErrParse
	}
	retStmt, err := c.allocExpr(pt.sub(i))
	if err != nil {
		ast.MarkDestroyed(body)
		ast.MarkDestroyed(expr)
		return nil, 0, err
	}
	retStmt.Type = ast.ExprReturnStmt
	retStmt.ReturnStmt = &ast.ReturnStmtInfo{Value: body}
	expr.FuncDef.Stmts = []*ast.Expression{retStmt}
	i += tlen
	return expr, i, nil
}

// parseExprInline parses one inline expression. Non-greedy mode returns
// exactly one primary; greedy mode first tries the operator parser and
// falls back to non-greedy.
func (c *context) parseExprInline(pt parseThis, inlineMode int, depth int) (*ast.Expression, int, error) {
	depth++
	if err := c.checkDepth(pt, depth); err != nil {
		return nil, 0, err
	}
	tokens := pt.tokens
	if len(tokens) == 0 {
		return nil, 0, nil
	}

	if inlineMode == inlineModeNonGreedy {
		// Inline function with a bare parameter:
		if tokens[0].Type == lexer.TokenIdentifier && len(tokens) >= 2 &&
			tokens[1].Type == lexer.TokenInlineFunc {
			return c.parseInlineFunc(pt, depth)
		}
		// Leading unary operator chain:
		if tokens[0].Type == lexer.TokenUnOpSymbol {
			return c.parseOpRecurse(
				pt, nil, 0, tokens[0].Op.Precedence(), depth)
		}
		if tokens[0].Type == lexer.TokenIdentifier {
			expr, err := c.allocExpr(pt)
			if err != nil {
				return nil, 0, err
			}
			expr.Type = ast.ExprIdentifierRef
			expr.IdentifierRef = &ast.IdentifierRefInfo{Value: tokens[0].Str}
			return expr, 1, nil
		}
		switch tokens[0].Type {
		case lexer.TokenConstantInt, lexer.TokenConstantFloat,
			lexer.TokenConstantBool, lexer.TokenConstantNone,
			lexer.TokenConstantString, lexer.TokenConstantBytes:
			expr, err := c.allocExpr(pt)
			if err != nil {
				return nil, 0, err
			}
			expr.Type = ast.ExprLiteral
			expr.Literal = &ast.LiteralInfo{
				TokenType: tokens[0].Type,
				Int:       tokens[0].Int,
				Float:     tokens[0].Float,
				Str:       tokens[0].Str,
				Bytes:     tokens[0].Bytes,
			}
			return expr, 1, nil
		}
		if tokens[0].IsBracket('(') {
			return c.parseBracketedOrInlineFunc(pt, depth)
		}
		if tokens[0].IsBracket('[') || tokens[0].IsBracket('{') {
			return c.parseContainerLiteral(pt, depth)
		}
		return nil, 0, nil
	}

	// Greedy: try the full operator expression first.
	expr, tlen, err := c.parseOpRecurse(
		pt, nil, 0, lexer.TotalPrecedenceLevels-1, depth)
	if err != nil {
		return nil, 0, err
	}
	if expr != nil {
		return expr, tlen, nil
	}
	// Fall back to a single primary:
	return c.parseExprInline(pt, inlineModeNonGreedy, depth)
}

// parseBracketedOrInlineFunc handles a '(' primary, which is either an
// inline function's argument list or a parenthesized subexpression.
func (c *context) parseBracketedOrInlineFunc(pt parseThis, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	// Look ahead for ") =>" at matching depth to detect an inline func:
	bracketDepth := 0
	j := 1
	for j < len(tokens) {
		if tokens[j].Type == lexer.TokenBracket {
			switch tokens[j].Bracket {
			case '{', '(', '[':
				bracketDepth++
			case '}', ')', ']':
				bracketDepth--
			}
			if bracketDepth < 0 {
				break
			}
		}
		j++
	}
	if j+1 < len(tokens) && tokens[j].IsBracket(')') &&
		tokens[j+1].Type == lexer.TokenInlineFunc {
		return c.parseInlineFunc(pt, depth)
	}

	inner, tlen, err := c.parseExprInline(pt.sub(1), inlineModeGreedy, depth)
	if err != nil {
		return nil, 0, err
	}
	if inner == nil {
		c.errorAt(tokens, 0,
			"unexpected '(' followed immediately by ')', "+
				"expected '(' <inlinevalue> ')' or some other inline "+
				"value instead")
		return nil, 0, ErrParse
	}
	i := 1 + tlen
	if i >= len(tokens) || !tokens[i].IsBracket(')') {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected ')' corresponding to opening '(' "+
				"in line %d, column %d instead",
			describeToken(tokens, i),
			c.refLine(tokens, 0), c.refCol(tokens, 0))
		ast.MarkDestroyed(inner)
		return nil, 0, ErrParse
	}
	i++
	return inner, i, nil
}

// parseContainerLiteral handles list, vector, set, and map constructors.
func (c *context) parseContainerLiteral(pt parseThis, depth int) (*ast.Expression, int, error) {
	tokens := pt.tokens
	expr, err := c.allocExpr(pt)
	if err != nil {
		return nil, 0, err
	}

	itemName := "list"
	isMap, isSet, isVector := false, false, false
	vectorUsesLetters := false
	if tokens[0].IsBracket('[') && len(tokens) > 2 &&
		((tokens[1].Type == lexer.TokenIdentifier && tokens[1].Str == "x") ||
			(tokens[1].Type == lexer.TokenConstantInt && tokens[1].Int == 0)) &&
		tokens[2].Type == lexer.TokenColon {
		vectorUsesLetters = tokens[1].Type == lexer.TokenIdentifier
		itemName, isVector = "vector", true
	}
	if tokens[0].IsBracket('{') {
		itemName, isSet = "set", true
	}
	if !isSet && !isVector {
		// Skip past the first item looking for a map arrow:
		j := 1
		bracketDepth := 0
		for j < len(tokens) &&
			((tokens[j].Type != lexer.TokenComma &&
				tokens[j].Type != lexer.TokenMapArrow) || bracketDepth > 0) {
			if tokens[j].Type == lexer.TokenBracket {
				switch tokens[j].Bracket {
				case '(', '[', '{':
					bracketDepth++
				case ')', ']', '}':
					bracketDepth--
					if bracketDepth < 0 {
						bracketDepth = 0
					}
				}
			}
			j++
		}
		if j < len(tokens) && tokens[j].Type == lexer.TokenMapArrow {
			itemName, isMap = "map", true
		}
	}

	switch {
	case isMap:
		expr.Type = ast.ExprMap
	case isSet:
		expr.Type = ast.ExprSet
	case isVector:
		expr.Type = ast.ExprVector
	default:
		expr.Type = ast.ExprList
	}
	expr.Container = &ast.ContainerInfo{UsesLetters: vectorUsesLetters}

	closeBracket := byte(']')
	if isSet {
		closeBracket = '}'
	}

	hadAnyItems := false
	i := 1
	for {
		hadComma := false
		if i < len(tokens) && tokens[i].Type == lexer.TokenComma {
			hadComma = true
			i++
		}
		if i < len(tokens) && tokens[i].IsBracket(closeBracket) {
			i++
			break
		}
		if hadAnyItems && !hadComma {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected '%c' or ',' resuming or ending %s "+
					"starting in line %d, column %d instead",
				describeToken(tokens, i), closeBracket, itemName,
				expr.Line, expr.Column)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}

		// Empty map [->]:
		if isMap && !hadAnyItems && i+1 < len(tokens) &&
			tokens[i].Type == lexer.TokenMapArrow &&
			tokens[i+1].IsBracket(']') {
			i += 2
			break
		}

		if isVector {
			if vectorUsesLetters && len(expr.Container.Entries) >= 4 {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected ']' to end %s starting in line %d, "+
						"column %d instead",
					describeToken(tokens, i), itemName,
					expr.Line, expr.Column)
				ast.MarkDestroyed(expr)
				return nil, 0, ErrParse
			}
			foundIdx := -1
			if i < len(tokens) && tokens[i].Type == lexer.TokenIdentifier &&
				len(tokens[i].Str) == 1 && vectorUsesLetters {
				foundIdx = int(tokens[i].Str[0]) - 'x'
				if tokens[i].Str == "w" {
					foundIdx = 3
				}
			}
			if i < len(tokens) && tokens[i].Type == lexer.TokenConstantInt &&
				!vectorUsesLetters && tokens[i].Int >= 0 {
				foundIdx = int(tokens[i].Int)
			}
			if foundIdx < 0 || foundIdx != len(expr.Container.Entries) {
				expected := "next dense index"
				if vectorUsesLetters {
					expected = "next letter index"
				}
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected %s for next entry, or ']' to end %s "+
						"starting in line %d, column %d instead",
					describeToken(tokens, i), expected, itemName,
					expr.Line, expr.Column)
				ast.MarkDestroyed(expr)
				return nil, 0, ErrParse
			}
			i++
			if i >= len(tokens) || tokens[i].Type != lexer.TokenColon {
				c.errorAt(tokens, i,
					"unexpected %s, "+
						"expected ':' after vector entry label instead",
					describeToken(tokens, i))
				ast.MarkDestroyed(expr)
				return nil, 0, ErrParse
			}
			i++
		}

		inner, tlen, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
		if err != nil {
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if inner == nil {
			what := "entry"
			if isMap {
				what = "key"
			}
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected inline value as next %s in %s "+
					"starting in line %d, column %d instead",
				describeToken(tokens, i), what, itemName,
				expr.Line, expr.Column)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i += tlen
		hadAnyItems = true

		if !isMap {
			expr.Container.Entries = append(expr.Container.Entries, inner)
			continue
		}
		if i >= len(tokens) || tokens[i].Type != lexer.TokenMapArrow {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected \"->\" after key entry for map "+
					"starting in line %d, column %d instead",
				describeToken(tokens, i), expr.Line, expr.Column)
			ast.MarkDestroyed(inner)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i++
		value, tlen2, err := c.parseExprInline(pt.sub(i), inlineModeGreedy, depth)
		if err != nil {
			ast.MarkDestroyed(inner)
			ast.MarkDestroyed(expr)
			return nil, 0, err
		}
		if value == nil {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected inline value following \"->\" for map "+
					"starting in line %d, column %d instead",
				describeToken(tokens, i), expr.Line, expr.Column)
			ast.MarkDestroyed(inner)
			ast.MarkDestroyed(expr)
			return nil, 0, ErrParse
		}
		i += tlen2
		expr.Container.Keys = append(expr.Container.Keys, inner)
		expr.Container.Values = append(expr.Container.Values, value)
	}
	return expr, i, nil
}
