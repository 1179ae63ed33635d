package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
	"github.com/ternarybob/canter/pkg/message"
)

func parseSource(t *testing.T, src string) *ast.AST {
	t.Helper()
	tfile := lexer.Tokenize([]byte(src), "test://input.cn",
		message.DefaultWarnConfig())
	return ParseFromTokens(tfile, message.DefaultWarnConfig())
}

func requireParsed(t *testing.T, src string) *ast.AST {
	t.Helper()
	tree := parseSource(t, src)
	require.True(t, tree.Result.Success,
		"parse failed: %+v", tree.Result.Messages)
	return tree
}

func TestParse_VarDefWithBinOpChain(t *testing.T) {
	tree := requireParsed(t, "var v = 1.5 + 0xA + 0b10")
	require.Len(t, tree.Stmts, 1)
	stmt := tree.Stmts[0]
	require.Equal(t, ast.ExprVarDefStmt, stmt.Type)
	assert.Equal(t, "v", stmt.VarDef.Identifier)

	// ((1.5 + 10) + 2): the outer node is the second '+':
	outer := stmt.VarDef.Value
	require.Equal(t, ast.ExprBinaryOp, outer.Type)
	require.Equal(t, lexer.OpMathAdd, outer.Op.Op)

	inner := outer.Op.Value1
	require.Equal(t, ast.ExprBinaryOp, inner.Type)
	require.Equal(t, lexer.OpMathAdd, inner.Op.Op)
	require.Equal(t, ast.ExprLiteral, inner.Op.Value1.Type)
	assert.Equal(t, 1.5, inner.Op.Value1.Literal.Float)
	require.Equal(t, ast.ExprLiteral, inner.Op.Value2.Type)
	assert.Equal(t, int64(10), inner.Op.Value2.Literal.Int)

	require.Equal(t, ast.ExprLiteral, outer.Op.Value2.Type)
	assert.Equal(t, int64(2), outer.Op.Value2.Literal.Int)
}

func TestParse_PrecedenceBindsMultiplicationTighter(t *testing.T) {
	tree := requireParsed(t, "var v = 1 + 2 * 3")
	outer := tree.Stmts[0].VarDef.Value
	require.Equal(t, ast.ExprBinaryOp, outer.Type)
	assert.Equal(t, lexer.OpMathAdd, outer.Op.Op)
	right := outer.Op.Value2
	require.Equal(t, ast.ExprBinaryOp, right.Type)
	assert.Equal(t, lexer.OpMathMultiply, right.Op.Op)
}

func TestParse_Determinism(t *testing.T) {
	src := `
var total = 1 + 2 * 3
func main {
    var items = [1, 2, 3]
    if total > 5 {
        total = total - 1
    } else {
        total = 0
    }
    return total
}
`
	first := parseSource(t, src)
	second := parseSource(t, src)
	require.True(t, first.Result.Success)
	require.True(t, second.Result.Success)

	opts := []cmp.Option{
		cmpopts.IgnoreFields(ast.Expression{}, "Parent"),
		cmpopts.IgnoreFields(ast.Scope{}, "Parent"),
		cmpopts.IgnoreUnexported(ast.Scope{}),
		cmpopts.IgnoreFields(ast.AST{}, "Result", "Pool", "Scope"),
	}
	if diff := cmp.Diff(first.Stmts, second.Stmts, opts...); diff != "" {
		t.Fatalf("ASTs differ between identical parses:\n%s", diff)
	}
}

func TestParse_FuncDefWithArgsAndAttributes(t *testing.T) {
	tree := requireParsed(t, "func f(a, b = 2) threadable deprecated { return a }")
	stmt := tree.Stmts[0]
	require.Equal(t, ast.ExprFuncDefStmt, stmt.Type)
	assert.Equal(t, "f", stmt.FuncDef.Name)
	require.Len(t, stmt.FuncDef.Args, 2)
	assert.Equal(t, "a", stmt.FuncDef.Args[0].Name)
	assert.Equal(t, "b", stmt.FuncDef.Args[1].Name)
	require.NotNil(t, stmt.FuncDef.Args[1].Value)
	assert.True(t, stmt.FuncDef.IsThreadable)
	assert.True(t, stmt.FuncDef.IsDeprecated)
}

func TestParse_DuplicateFuncAttributeRejected(t *testing.T) {
	tree := parseSource(t, "func f threadable threadable { }")
	assert.False(t, tree.Result.Success)
}

func TestParse_GetterSetterMutuallyExclusive(t *testing.T) {
	tree := parseSource(t, "func f getter setter { }")
	assert.False(t, tree.Result.Success)
}

func TestParse_ClassDef(t *testing.T) {
	tree := requireParsed(t, `
class C extends Error {
    var v = 1
    func m { return self.v }
}
`)
	stmt := tree.Stmts[0]
	require.Equal(t, ast.ExprClassDefStmt, stmt.Type)
	assert.Equal(t, "C", stmt.ClassDef.Name)
	require.NotNil(t, stmt.ClassDef.BaseClassRef)
	require.Len(t, stmt.ClassDef.VarDefs, 1)
	require.Len(t, stmt.ClassDef.FuncDefs, 1)
}

func TestParse_ClassOnlyAtTopLevel(t *testing.T) {
	tree := parseSource(t, "func main { class C { } }")
	assert.False(t, tree.Result.Success)
}

func TestParse_ClassBodyRejectsOtherStatements(t *testing.T) {
	tree := parseSource(t, "class C { import x }")
	assert.False(t, tree.Result.Success)
}

func TestParse_DoRescueFinally(t *testing.T) {
	tree := requireParsed(t, `
func main {
    do {
        var a = 1
    } rescue Error as e {
        var b = 2
    } finally {
        var c = 3
    }
}
`)
	stmt := tree.Stmts[0].FuncDef.Stmts[0]
	require.Equal(t, ast.ExprDoStmt, stmt.Type)
	assert.True(t, stmt.DoStmt.HasRescue)
	assert.True(t, stmt.DoStmt.HasFinally)
	assert.Equal(t, "e", stmt.DoStmt.ErrorName)
	require.Len(t, stmt.DoStmt.RescueTypes, 1)
	// The three blocks own distinct scopes:
	assert.NotSame(t, stmt.DoStmt.Scope, stmt.DoStmt.RescueScope)
	assert.NotSame(t, stmt.DoStmt.Scope, stmt.DoStmt.FinallyScope)
}

func TestParse_DoWithoutRescueOrFinallyRejected(t *testing.T) {
	tree := parseSource(t, "func main { do { var a = 1 } }")
	assert.False(t, tree.Result.Success)
}

func TestParse_WithStatement(t *testing.T) {
	tree := requireParsed(t, `
func main {
    with acquire() as res, acquire() as other {
        var x = res
    }
}
`)
	stmt := tree.Stmts[0].FuncDef.Stmts[0]
	require.Equal(t, ast.ExprWithStmt, stmt.Type)
	require.Len(t, stmt.WithStmt.Items, 2)
	assert.Equal(t, "res", stmt.WithStmt.Items[0].Name)
	assert.Equal(t, "other", stmt.WithStmt.Items[1].Name)
}

func TestParse_ImportForms(t *testing.T) {
	tree := requireParsed(t, "import mymodule.test1 from my.lib as alias")
	stmt := tree.Stmts[0]
	require.Equal(t, ast.ExprImportStmt, stmt.Type)
	assert.Equal(t, "mymodule.test1", stmt.ImportStmt.Path())
	assert.Equal(t, "my.lib", stmt.ImportStmt.LibraryName)
	assert.Equal(t, "alias", stmt.ImportStmt.ImportAs)
	assert.Equal(t, "alias", stmt.ImportStmt.BoundName())
}

func TestParse_DuplicateImportRejected(t *testing.T) {
	tree := parseSource(t, `
import mymodule.test1 from my.lib
import mymodule.test1 from my.lib
`)
	assert.False(t, tree.Result.Success)
	found := false
	for _, m := range tree.Result.Messages {
		if m.Kind == message.Error {
			assert.Contains(t, m.Message, "duplicate")
			found = true
		}
	}
	assert.True(t, found)
}

func TestParse_ImportStackingWithDistinctPaths(t *testing.T) {
	tree := requireParsed(t, `
import mymodule.test1 from my.lib
import mymodule.test2 from my.lib
`)
	def := tree.Scope.QueryItem("mymodule", false)
	require.NotNil(t, def)
	// Both imports contribute to the single bound name:
	assert.Len(t, def.AdditionalDecl, 1)
}

func TestParse_ReservedNamesRejected(t *testing.T) {
	for _, name := range []string{"self", "base"} {
		tree := parseSource(t, "var "+name+" = 1")
		assert.False(t, tree.Result.Success, "declaring %q must fail", name)
	}
}

func TestParse_DuplicateNameInScopeRejected(t *testing.T) {
	tree := parseSource(t, "var a = 1\nvar a = 2")
	assert.False(t, tree.Result.Success)
}

func TestParse_ShadowingWarnsOnDirectLocals(t *testing.T) {
	tree := parseSource(t, `
func main {
    var a = 1
    while a {
        var a = 2
    }
}
`)
	require.True(t, tree.Result.Success)
	warnings := tree.Result.ByKind(message.Warning)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0].Message, "shadowing")
}

func TestParse_ParameterShadowingForbidden(t *testing.T) {
	tree := parseSource(t, "func f(a) { var a = 1 }")
	assert.False(t, tree.Result.Success)
}

func TestParse_InlineFuncExpression(t *testing.T) {
	tree := requireParsed(t, "func main { var v = x => (x + 1) }")
	varDef := tree.Stmts[0].FuncDef.Stmts[0]
	require.Equal(t, ast.ExprVarDefStmt, varDef.Type)
	inline := varDef.VarDef.Value
	require.Equal(t, ast.ExprInlineFuncDef, inline.Type)
	require.Len(t, inline.FuncDef.Args, 1)
	assert.Equal(t, "x", inline.FuncDef.Args[0].Name)
	// The body is one implicit return statement:
	require.Len(t, inline.FuncDef.Stmts, 1)
	assert.Equal(t, ast.ExprReturnStmt, inline.FuncDef.Stmts[0].Type)
	// The parameter is in scope for the body:
	assert.NotNil(t, inline.FuncDef.Scope.QueryItem("x", false))
}

func TestParse_ContainerLiterals(t *testing.T) {
	tree := requireParsed(t, `
func main {
    var l = [1, 2, 3]
    var s = {1, 2}
    var m = [1 -> "a", 2 -> "b"]
    var e = [->]
    var vec = [x: 1, y: 2, z: 3]
}
`)
	stmts := tree.Stmts[0].FuncDef.Stmts
	assert.Equal(t, ast.ExprList, stmts[0].VarDef.Value.Type)
	assert.Len(t, stmts[0].VarDef.Value.Container.Entries, 3)
	assert.Equal(t, ast.ExprSet, stmts[1].VarDef.Value.Type)
	assert.Equal(t, ast.ExprMap, stmts[2].VarDef.Value.Type)
	assert.Len(t, stmts[2].VarDef.Value.Container.Keys, 2)
	assert.Equal(t, ast.ExprMap, stmts[3].VarDef.Value.Type)
	assert.Empty(t, stmts[3].VarDef.Value.Container.Keys)
	assert.Equal(t, ast.ExprVector, stmts[4].VarDef.Value.Type)
	assert.True(t, stmts[4].VarDef.Value.Container.UsesLetters)
}

func TestParse_VectorIndicesMustBeDense(t *testing.T) {
	tree := parseSource(t, "func main { var v = [0: 1, 2: 3] }")
	assert.False(t, tree.Result.Success)
}

func TestParse_NewInstanceCall(t *testing.T) {
	tree := requireParsed(t, "func main { var o = new C() }")
	value := tree.Stmts[0].FuncDef.Stmts[0].VarDef.Value
	require.Equal(t, ast.ExprUnaryOp, value.Type)
	assert.Equal(t, lexer.OpNew, value.Op.Op)
	require.Equal(t, ast.ExprCall, value.Op.Value1.Type)
	assert.Equal(t, "C", value.Op.Value1.Call.Value.IdentifierRef.Value)
}

func TestParse_AssignmentRequiresLValue(t *testing.T) {
	tree := parseSource(t, "func main { 1 = 2 }")
	assert.False(t, tree.Result.Success)
}

func TestParse_AttributeChainAssignment(t *testing.T) {
	tree := requireParsed(t, "func main { obj.attr = 5 }")
	stmt := tree.Stmts[0].FuncDef.Stmts[0]
	require.Equal(t, ast.ExprAssignStmt, stmt.Type)
	require.Equal(t, ast.ExprBinaryOp, stmt.Assign.LValue.Type)
	assert.Equal(t, lexer.OpAttributeByIdentifier, stmt.Assign.LValue.Op.Op)
}

func TestParse_CallStatement(t *testing.T) {
	tree := requireParsed(t, `func main { print("hi") }`)
	stmt := tree.Stmts[0].FuncDef.Stmts[0]
	require.Equal(t, ast.ExprCallStmt, stmt.Type)
	call := stmt.CallStmt.Call
	require.Equal(t, ast.ExprCall, call.Type)
	require.Len(t, call.Call.Args, 1)
}

func TestParse_KeywordCallArguments(t *testing.T) {
	tree := requireParsed(t, "func main { f(1, name = 2) }")
	call := tree.Stmts[0].FuncDef.Stmts[0].CallStmt.Call
	require.Len(t, call.Call.Args, 2)
	assert.Equal(t, "", call.Call.Args[0].Name)
	assert.Equal(t, "name", call.Call.Args[1].Name)
}

func TestParse_ReturnOnlyInsideFunction(t *testing.T) {
	tree := parseSource(t, "return 1")
	assert.False(t, tree.Result.Success)
}

func TestParse_ErrorRecoveryContinuesAfterBadStatement(t *testing.T) {
	tree := parseSource(t, `
var ? broken
var ok = 1
`)
	assert.False(t, tree.Result.Success)
	// The parser recovered and still produced the later statement:
	found := false
	for _, stmt := range tree.Stmts {
		if stmt.Type == ast.ExprVarDefStmt && stmt.VarDef.Identifier == "ok" {
			found = true
		}
	}
	assert.True(t, found, "expected recovery to reach the second statement")
}

func TestParse_RecursionLimit(t *testing.T) {
	src := "var v = "
	for i := 0; i < MaxParseRecursion+10; i++ {
		src += "("
	}
	src += "1"
	for i := 0; i < MaxParseRecursion+10; i++ {
		src += ")"
	}
	tree := parseSource(t, src)
	assert.False(t, tree.Result.Success)
	found := false
	for _, m := range tree.Result.Messages {
		if m.Kind == message.Error &&
			strings.Contains(m.Message, "recursion") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParse_ParentLinksFilled(t *testing.T) {
	tree := requireParsed(t, "var v = 1 + 2")
	value := tree.Stmts[0].VarDef.Value
	assert.Same(t, tree.Stmts[0], value.Parent)
	assert.Same(t, value, value.Op.Value1.Parent)
	assert.Same(t, value, value.Op.Value2.Parent)
}
