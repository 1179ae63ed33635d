package parser

import (
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
)

// parseOpRecurse is the precedence climbing core. It processes operators
// at exactly precedenceLevel: a looser operator is left to the caller, a
// tighter one recurses a level down re-feeding the rightmost operand of
// the left-hand side so the tighter operator can steal it.
//
// lefthand/lefthandLen carry an already parsed left-hand side (used when
// recursing down); both are zero on entry from parseExprInline.
func (c *context) parseOpRecurse(
	pt parseThis,
	lefthand *ast.Expression, lefthandLen int,
	precedenceLevel int, depth int,
) (*ast.Expression, int, error) {
	depth++
	if err := c.checkDepth(pt, depth); err != nil {
		return nil, 0, err
	}
	tokens := pt.tokens
	if len(tokens) == 0 {
		return nil, 0, nil
	}

	i := lefthandLen
	operatorsProcessed := 0

	// Parse a left-hand side if we do not have one yet:
	if i == 0 && lefthand == nil && tokens[0].Type != lexer.TokenUnOpSymbol {
		inner, tlen, err := c.parseExprInline(pt, inlineModeNonGreedy, depth)
		if err != nil {
			return nil, 0, err
		}
		if inner == nil {
			return nil, 0, nil
		}
		lefthand = inner
		lefthandLen = tlen
		i = tlen
	} else if lefthand == nil && i < len(tokens) &&
		tokens[i].Type == lexer.TokenBinOpSymbol &&
		!tokens[i].Op.IsAssignOp() {
		c.errorAt(tokens, i,
			"unexpected %s, "+
				"expected left hand value before binary operator",
			describeToken(tokens, i))
		return nil, 0, ErrParse
	}

	for i < len(tokens) {
		t := &tokens[i]
		isBinary := t.Type == lexer.TokenBinOpSymbol && !t.Op.IsAssignOp()
		isUnary := t.Type == lexer.TokenUnOpSymbol
		if !isBinary && !isUnary {
			break
		}

		if isUnary && i > 0 {
			c.errorAt(tokens, i,
				"unexpected %s, "+
					"expected binary operator or end of inline "+
					"expression starting in line %d, column %d instead",
				describeToken(tokens, i),
				c.refLine(tokens, 0), c.refCol(tokens, 0))
			if lefthand != nil {
				ast.MarkDestroyed(lefthand)
			}
			return nil, 0, ErrParse
		}

		precedence := t.Op.Precedence()
		if precedence < precedenceLevel {
			// A tighter operator follows: recurse a level down feeding it
			// the rightmost operand so it binds closer.
			var innerRight *ast.Expression
			innerRightLen := 0
			if lefthand != nil && (lefthand.Type == ast.ExprBinaryOp ||
				lefthand.Type == ast.ExprUnaryOp) {
				innerRightLen = lefthand.Op.TotalTokenLen -
					lefthand.Op.OpTokenOffset - 1
				if lefthand.Type == ast.ExprBinaryOp {
					innerRight = lefthand.Op.Value2
				} else {
					innerRight = lefthand.Op.Value1
				}
			}
			skipBack := innerRightLen
			if innerRight == nil {
				skipBack = i
			}
			inner, tlen, err := c.parseOpRecurse(
				pt.sub(i-skipBack), innerRight, innerRightLen,
				precedenceLevel-1, depth)
			if err != nil {
				if lefthand != nil {
					ast.MarkDestroyed(lefthand)
				}
				return nil, 0, err
			}
			if inner == nil {
				break
			}
			if lefthand != nil && i-skipBack > 0 {
				if lefthand.Type == ast.ExprBinaryOp {
					lefthand.Op.Value2 = inner
				} else {
					lefthand.Op.Value1 = inner
				}
			} else {
				lefthand = inner
			}
			lefthandLen = (i - skipBack) + tlen
			i = lefthandLen
			operatorsProcessed++
			continue
		}
		if precedence > precedenceLevel {
			// Looser level; the caller handles it.
			break
		}

		i++ // go past the operator
		opTokenOffset := i - 1
		operatorsProcessed++

		// A call's right-hand side is its argument list:
		if isBinary && t.Op == lexer.OpCall {
			callExpr, err := c.allocExpr(pt.sub(opTokenOffset))
			if err != nil {
				if lefthand != nil {
					ast.MarkDestroyed(lefthand)
				}
				return nil, 0, err
			}
			callExpr.Type = ast.ExprCall
			callExpr.Call = &ast.CallInfo{Value: lefthand}
			args, tlen, err := c.parseFuncCallArgs(pt.sub(opTokenOffset), depth)
			if err != nil {
				ast.MarkDestroyed(callExpr)
				return nil, 0, err
			}
			if args == nil {
				c.errorAt(tokens, opTokenOffset,
					"internal error? got no function args but no error")
				ast.MarkDestroyed(callExpr)
				return nil, 0, ErrParse
			}
			callExpr.Call.Args = args
			i = opTokenOffset + tlen
			lefthand = callExpr
			lefthandLen = i
			continue
		}

		// Parse the right-hand side. Index-by-expression takes a full
		// greedy expression plus its closing ']'; everything else takes
		// one non-greedy primary.
		isIndexByExpr := isBinary && t.Op == lexer.OpIndexByExpr
		mode := inlineModeNonGreedy
		if isIndexByExpr {
			mode = inlineModeGreedy
		}
		righthand, rhsLen, err := c.parseExprInline(pt.sub(i), mode, depth)
		if err != nil {
			if lefthand != nil {
				ast.MarkDestroyed(lefthand)
			}
			return nil, 0, err
		}
		if righthand == nil {
			what := "right-hand side to binary operator"
			if isIndexByExpr {
				what = "expression for indexing"
			}
			c.errorAt(tokens, i,
				"unexpected %s, expected %s", describeToken(tokens, i), what)
			if lefthand != nil {
				ast.MarkDestroyed(lefthand)
			}
			return nil, 0, ErrParse
		}
		if isIndexByExpr {
			if i+rhsLen >= len(tokens) || !tokens[i+rhsLen].IsBracket(']') {
				c.errorAt(tokens, i+rhsLen,
					"unexpected %s, expected ']' ending index expression",
					describeToken(tokens, i+rhsLen))
				ast.MarkDestroyed(righthand)
				if lefthand != nil {
					ast.MarkDestroyed(lefthand)
				}
				return nil, 0, ErrParse
			}
			i++ // past closing ']'
		}
		i += rhsLen

		opExpr, err := c.allocExpr(pt.sub(opTokenOffset))
		if err != nil {
			ast.MarkDestroyed(righthand)
			if lefthand != nil {
				ast.MarkDestroyed(lefthand)
			}
			return nil, 0, err
		}
		opExpr.Op = &ast.OpInfo{Op: t.Op, OpTokenOffset: opTokenOffset}
		if isUnary {
			opExpr.Type = ast.ExprUnaryOp
			opExpr.Op.Value1 = righthand
		} else {
			opExpr.Type = ast.ExprBinaryOp
			opExpr.Op.Value1 = lefthand
			opExpr.Op.Value2 = righthand
		}
		opExpr.Op.TotalTokenLen = i
		if opExpr.Op.Value1 != nil {
			opExpr.TokenIndex = opExpr.Op.Value1.TokenIndex
			opExpr.Line = opExpr.Op.Value1.Line
			opExpr.Column = opExpr.Op.Value1.Column
		}
		lefthand = opExpr
		lefthandLen = i
	}

	if lefthand != nil && operatorsProcessed > 0 {
		return lefthand, lefthandLen, nil
	}
	return nil, 0, nil
}
