package compiler_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/compiler"
	"github.com/ternarybob/canter/pkg/message"
	"github.com/ternarybob/canter/pkg/vm"
)

func newTestProject() *compiler.Project {
	pr := compiler.NewProject(".", message.DefaultWarnConfig(),
		compiler.Options{}, nil)
	pr.RegisterBuiltinNames()
	return pr
}

// withModules installs an in-memory module resolver.
func withModules(pr *compiler.Project, modules map[string]string) {
	pr.Resolver = func(path, library string) (string, []byte, error) {
		key := path
		if library != "" {
			key = library + ":" + path
		}
		src, ok := modules[key]
		if !ok {
			return "", nil, fmt.Errorf("no such module: %s", key)
		}
		return "mem://" + key + compiler.SourceFileSuffix, []byte(src), nil
	}
}

func compileAndRun(t *testing.T, src string) (int, string, *compiler.Project) {
	t.Helper()
	pr := newTestProject()
	out := &bytes.Buffer{}
	jobs := vm.NewAsyncJobQueue(1, nil)
	defer jobs.Close()
	p, _, err := pr.BuildProgram(
		"mem://main"+compiler.SourceFileSuffix, []byte(src), out, jobs)
	require.NoError(t, err, "diagnostics: %+v", pr.Result.Messages)
	code, err := pr.RunProgram(p, jobs)
	require.NoError(t, err)
	return code, out.String(), pr
}

func TestCompileRun_ReturnValueBecomesExitCode(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    return 7
}
`)
	assert.Equal(t, 7, code)
}

func TestCompileRun_ClassInstantiation(t *testing.T) {
	code, _, _ := compileAndRun(t, `
class C {
    var v = 1
}
func main {
    var o = new C()
    return o.v
}
`)
	assert.Equal(t, 1, code)
}

func TestCompileRun_GlobalInitializerExpression(t *testing.T) {
	code, _, _ := compileAndRun(t, `
var v = 10 + 2
func main {
    return v
}
`)
	assert.Equal(t, 12, code)
}

func TestCompileRun_ArithmeticAndLocals(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    var a = 6
    var b = 7
    return a * b - 2
}
`)
	assert.Equal(t, 40, code)
}

func TestCompileRun_IfElse(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    var a = 5
    if a > 10 {
        return 1
    } elseif a > 3 {
        return 2
    } else {
        return 3
    }
    return 4
}
`)
	assert.Equal(t, 2, code)
}

func TestCompileRun_WhileLoop(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    var total = 0
    var i = 0
    while i < 5 {
        total = total + i
        i = i + 1
    }
    return total
}
`)
	assert.Equal(t, 10, code)
}

func TestCompileRun_ForLoopOverList(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    var total = 0
    for item in [1, 2, 3, 4] {
        total = total + item
    }
    return total
}
`)
	assert.Equal(t, 10, code)
}

func TestCompileRun_DoRescueFinally(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    var r = 0
    do {
        var x = 1 / 0
    } rescue MathError {
        r = 7
    } finally {
        r = r + 1
    }
    return r
}
`)
	assert.Equal(t, 8, code)
}

func TestCompileRun_RescueByAncestorClass(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    do {
        var x = 1 / 0
    } rescue Error {
        return 9
    }
    return 0
}
`)
	assert.Equal(t, 9, code)
}

func TestCompileRun_UncaughtErrorFailsProcess(t *testing.T) {
	pr := newTestProject()
	out := &bytes.Buffer{}
	p, _, err := pr.BuildProgram("mem://main.cn", []byte(`
func main {
    var x = 1 / 0
}
`), out, nil)
	require.NoError(t, err)
	code, _ := pr.RunProgram(p, nil)
	assert.Equal(t, 1, code)
}

func TestCompileRun_FunctionCallsAndKwargs(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func add(a, b) {
    return a + b
}
func main {
    return add(2, b = 3)
}
`)
	assert.Equal(t, 5, code)
}

func TestCompileRun_MethodCall(t *testing.T) {
	code, _, _ := compileAndRun(t, `
class Counter {
    var count = 0
    func bump {
        self.count = self.count + 1
        return self.count
    }
}
func main {
    var c = new Counter()
    c.bump()
    return c.bump()
}
`)
	assert.Equal(t, 2, code)
}

func TestCompileRun_PrintBuiltin(t *testing.T) {
	code, out, _ := compileAndRun(t, `
func main {
    print("hello world")
    return 0
}
`)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello world\n", out)
}

func TestCompileRun_SleepBuiltin(t *testing.T) {
	code, _, _ := compileAndRun(t, `
func main {
    time.sleep(0.01)
    return 0
}
`)
	assert.Equal(t, 0, code)
}

func TestResolve_UnknownIdentifierQuoted(t *testing.T) {
	pr := newTestProject()
	tree := pr.CompileFileToAST("mem://main.cn", []byte(`
func main {
    return nosuchthing
}
`))
	require.NotNil(t, tree)
	require.NoError(t, pr.ResolveAST(tree))
	require.False(t, pr.Result.Success)
	found := false
	for _, m := range pr.Result.Messages {
		if m.Kind == message.Error {
			assert.Contains(t, m.Message, `"nosuchthing"`)
			found = true
		}
	}
	assert.True(t, found)
}

func TestResolve_ImportLoadsModule(t *testing.T) {
	pr := newTestProject()
	withModules(pr, map[string]string{
		"my.lib:mymodule.test1": "var exported = 1\n",
	})
	tree := pr.CompileFileToAST("mem://main.cn", []byte(`
import mymodule.test1 from my.lib
func main {
    return 0
}
`))
	require.NotNil(t, tree)
	require.NoError(t, pr.ResolveAST(tree))
	assert.True(t, pr.Result.Success,
		"diagnostics: %+v", pr.Result.Messages)
}

func TestResolve_MissingModuleReported(t *testing.T) {
	pr := newTestProject()
	withModules(pr, map[string]string{})
	tree := pr.CompileFileToAST("mem://main.cn",
		[]byte("import nosuch.module\n"))
	require.NotNil(t, tree)
	require.NoError(t, pr.ResolveAST(tree))
	assert.False(t, pr.Result.Success)
}

func TestResolve_EveryIdentifierBoundOrReported(t *testing.T) {
	pr := newTestProject()
	tree := pr.CompileFileToAST("mem://main.cn", []byte(`
var known = 1
func main {
    var local = known + unknown
    return local
}
`))
	require.NotNil(t, tree)
	require.NoError(t, pr.ResolveAST(tree))
	// "known" resolved, "unknown" reported; no silent nulls:
	assert.False(t, pr.Result.Success)
	errs := pr.Result.ByKind(message.Error)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, `"unknown"`)
}

func TestTokenizeToJSON_Envelope(t *testing.T) {
	pr := newTestProject()
	out := pr.TokenizeToJSON("mem://main.cn", []byte("var v = 1"))
	assert.True(t, out.Success)
	assert.Equal(t, "mem://main.cn", out.FileURI)
	require.Len(t, out.Tokens, 4)
	assert.Equal(t, "TK_KEYWORD", out.Tokens[0]["type"])
	assert.Empty(t, out.Errors)
}

func TestParseASTToJSON_Envelope(t *testing.T) {
	pr := newTestProject()
	out := pr.ParseASTToJSON("mem://main.cn",
		[]byte("var v = 1 + 2"), false)
	assert.True(t, out.Success)
	require.Len(t, out.AST, 1)
	assert.Equal(t, "vardef", out.AST[0]["type"])
	require.NotNil(t, out.Scope)
}

func TestSourceFileSizeLimitEnforced(t *testing.T) {
	pr := newTestProject()
	big := strings.Repeat("#", compiler.SourceFileSizeLimit+1)
	out := pr.TokenizeToJSON("mem://big.cn", []byte(big))
	assert.False(t, out.Success)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, out.Errors[0].Message, "size limit")
}

func TestGetASM_Disassembly(t *testing.T) {
	pr := newTestProject()
	p, _, err := pr.BuildProgram("mem://main.cn", []byte(`
func main {
    return 1 + 2
}
`), nil, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, p.MainFuncID, int64(0))
	asm := bytecode.Disassemble(p, p.Functions[p.MainFuncID])
	assert.Contains(t, asm, "func main (")
	assert.Contains(t, asm, "returnvalue")
}
