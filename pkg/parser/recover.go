package parser

import "github.com/ternarybob/canter/pkg/lexer"

const (
	recoverNormal = 0
	// recoverMustForward guarantees progress even when the token that
	// started the failure is itself a statement keyword.
	recoverMustForward = 1
)

var recoverStatementKeywords = map[string]bool{
	"if": true, "var": true, "const": true, "for": true, "while": true,
	"func": true, "do": true, "class": true, "with": true,
	"import": true, "return": true,
}

// findNextStatement scans forward from absolute index start for the next
// plausible statement boundary: a statement keyword at bracket depth zero,
// or the spot right after a block-closing bracket.
func (c *context) findNextStatement(start, flags int) int {
	bracketsDepth := 0
	i := start
	for i < len(c.tokens) {
		t := &c.tokens[i]
		switch t.Type {
		case lexer.TokenBracket:
			switch t.Bracket {
			case '{', '[', '(':
				bracketsDepth++
			default:
				bracketsDepth--
				if bracketsDepth < 0 {
					bracketsDepth = 0
				}
				if bracketsDepth == 0 && (t.Bracket == '}' || t.Bracket == ')') &&
					i+1 < len(c.tokens) &&
					(c.tokens[i+1].Type == lexer.TokenIdentifier ||
						c.tokens[i+1].Type == lexer.TokenKeyword ||
						c.tokens[i+1].IsBracket('}')) {
					return i + 1
				}
			}
		case lexer.TokenKeyword:
			if (i > start || flags&recoverMustForward == 0) &&
				recoverStatementKeywords[t.Str] && bracketsDepth == 0 {
				return i
			}
		case lexer.TokenConstantInt, lexer.TokenConstantString,
			lexer.TokenConstantFloat, lexer.TokenConstantBool,
			lexer.TokenConstantNone, lexer.TokenIdentifier:
			// Two value-starting tokens in a row at depth zero look like
			// the next statement began without the previous one ending.
			if bracketsDepth == 0 && i+1 < len(c.tokens) &&
				c.tokens[i+1].Type == lexer.TokenIdentifier {
				return i + 1
			}
		}
		i++
	}
	return i
}

// findNextStatementInWindow is findNextStatement over a window, returning
// a window-relative index.
func (c *context) findNextStatementInWindow(window []lexer.Token, start, flags int) int {
	abs := c.tokenIndexOf(window, start)
	res := c.findNextStatement(abs, flags)
	return res - c.tokenIndexOf(window, 0)
}

// findEndOfBlock scans forward inside a window for the '}' that leaves the
// current block, tracking call/index operators as opening brackets too.
func (c *context) findEndOfBlock(window []lexer.Token, start int) int {
	bracketsDepth := 0
	i := start
	for i < len(window) {
		t := &window[i]
		switch t.Type {
		case lexer.TokenBracket:
			switch t.Bracket {
			case '{', '[', '(':
				bracketsDepth++
			default:
				bracketsDepth--
				if bracketsDepth < -1 {
					bracketsDepth = -1
				}
				if bracketsDepth == -1 && t.Bracket == '}' {
					return i
				}
				if bracketsDepth < 0 {
					bracketsDepth = 0
				}
			}
		case lexer.TokenBinOpSymbol:
			if t.Op == lexer.OpCall || t.Op == lexer.OpIndexByExpr {
				bracketsDepth++
			}
		case lexer.TokenKeyword:
			if t.Str == "class" || t.Str == "import" {
				return i
			}
		}
		i++
	}
	return i
}
