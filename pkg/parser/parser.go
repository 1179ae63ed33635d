// Package parser builds the AST from a token stream with a recursive
// descent statement parser and a precedence climbing expression parser.
//
// Every parse function returns (expr, tokenLen, err). A nil expr with a
// nil error means "nothing parseable here, but that is not an error";
// ErrParse means a recoverable failure whose diagnostic is already in the
// result; ErrOutOfMemory means an allocation-level failure that must
// propagate without attempting further allocation. Partially built
// subtrees are marked destroyed in the AST pool on either failure.
package parser

import (
	"errors"

	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
	"github.com/ternarybob/canter/pkg/message"
)

// MaxParseRecursion bounds parser nesting so deeply nested input fails
// with a diagnostic instead of exhausting the host stack.
const MaxParseRecursion = 128

var (
	// ErrParse marks a recoverable parse failure. The diagnostic is
	// already accumulated when this is returned.
	ErrParse = errors.New("parse failed")
	// ErrOutOfMemory marks an allocation failure (pool exhaustion).
	ErrOutOfMemory = errors.New("out of memory / alloc fail")
)

const (
	stmtModeTopLevel = iota
	stmtModeInFunc
	stmtModeInClass
)

// context carries the per-file parse state shared by every parse call.
type context struct {
	fileURI     string
	result      *message.Result
	tokens      []lexer.Token
	tree        *ast.AST
	wconfig     *message.WarnConfig
	globalScope *ast.Scope
}

// parseThis is one window into the token stream plus the scope new names
// go into.
type parseThis struct {
	scope  *ast.Scope
	tokens []lexer.Token // window into context.tokens
}

func (p parseThis) sub(offset int) parseThis {
	return parseThis{scope: p.scope, tokens: p.tokens[offset:]}
}

func (p parseThis) withScope(sc *ast.Scope) parseThis {
	return parseThis{scope: sc, tokens: p.tokens}
}

// tokenIndexOf returns the absolute stream index of the window position.
func (c *context) tokenIndexOf(window []lexer.Token, i int) int {
	if len(c.tokens) == 0 {
		return 0
	}
	// The window is always a reslice of the full stream.
	base := len(c.tokens) - len(window)
	return base + i
}

func (c *context) refLine(window []lexer.Token, i int) int64 {
	if i > len(window)-1 {
		i = len(window) - 1
	}
	if i < 0 {
		return 0
	}
	return window[i].Line
}

func (c *context) refCol(window []lexer.Token, i int) int64 {
	if i > len(window)-1 {
		i = len(window) - 1
	}
	if i < 0 {
		return 0
	}
	return window[i].Column
}

// describeToken renders the token at position i of the window for a
// diagnostic; positions past the stream render as "end of file".
func describeToken(window []lexer.Token, i int) string {
	if i < 0 || i >= len(window) {
		return "end of file"
	}
	return window[i].Describe()
}

func shortenedName(name string) string {
	if len(name) > 32 {
		return name[:32] + "..."
	}
	return name
}

func (c *context) errorAt(window []lexer.Token, i int, format string, args ...interface{}) {
	c.result.Errorf(c.fileURI, c.refLine(window, i), c.refCol(window, i),
		format, args...)
}

// ParseFromTokens parses one tokenized file into an AST, including its
// scope tree, and fills the parent links once the tree is complete.
func ParseFromTokens(tfile *lexer.TokenizedFile, wconfig *message.WarnConfig) *ast.AST {
	if wconfig == nil {
		wconfig = message.DefaultWarnConfig()
	}
	result := message.NewResult(tfile.FileURI)
	result.TransferMessages(tfile.Result)
	tree := &ast.AST{
		FileURI: tfile.FileURI,
		Scope:   ast.NewScope(nil),
		Result:  result,
		Pool:    ast.NewPool(),
	}
	tree.Scope.IsGlobal = true

	c := &context{
		fileURI:     tfile.FileURI,
		result:      result,
		tokens:      tfile.Tokens,
		tree:        tree,
		wconfig:     wconfig,
		globalScope: tree.Scope,
	}

	i := 0
	for i < len(c.tokens) {
		pt := parseThis{scope: tree.Scope, tokens: c.tokens[i:]}
		expr, tlen, err := c.parseExprStmt(pt, stmtModeTopLevel, 0)
		if err != nil || expr == nil {
			if errors.Is(err, ErrOutOfMemory) {
				result.AddErrorNoLoc("out of memory / alloc fail", c.fileURI)
				result.Success = false
				return tree
			}
			if err == nil {
				c.errorAt(c.tokens[i:], 0,
					"unexpected %s, "+
						"expected any recognized top level statement",
					describeToken(c.tokens[i:], 0))
			}
			result.Success = false
			prev := i
			i = c.findNextStatement(i, recoverMustForward)
			if i <= prev {
				i = prev + 1
			}
			continue
		}
		tree.Stmts = append(tree.Stmts, expr)
		i += tlen
	}

	for _, stmt := range tree.Stmts {
		ast.FillParents(stmt)
	}
	if result.HasErrors() {
		result.Success = false
	}
	return tree
}

// checkDepth enforces the recursion limit, reporting at the window start.
func (c *context) checkDepth(pt parseThis, depth int) error {
	if depth > MaxParseRecursion {
		c.errorAt(pt.tokens, 0,
			"exceeded maximum parser recursion of %d, "+
				"less nesting expected", MaxParseRecursion)
		return ErrParse
	}
	return nil
}

// allocExpr hands out a node from the AST pool, translating exhaustion
// into the OOM channel.
func (c *context) allocExpr(pt parseThis) (*ast.Expression, error) {
	expr := c.tree.Pool.NewExpr()
	if expr == nil {
		c.result.AddErrorNoLoc(
			"failed to allocate expression, out of memory?", c.fileURI)
		return nil, ErrOutOfMemory
	}
	if len(pt.tokens) > 0 {
		expr.Line = pt.tokens[0].Line
		expr.Column = pt.tokens[0].Column
		expr.TokenIndex = c.tokenIndexOf(pt.tokens, 0)
	}
	return expr, nil
}
