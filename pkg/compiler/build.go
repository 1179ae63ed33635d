package compiler

import (
	"fmt"
	"io"

	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/corelib"
	"github.com/ternarybob/canter/pkg/vm"
)

// StandardBuiltinRootNames are the identifier roots the standard
// library occupies; the resolver accepts these without a declaration.
var StandardBuiltinRootNames = []string{
	"print", "assert", "time", "net", "process",
}

// RegisterBuiltinNames marks the standard library's root names and the
// standard error classes as known identifiers for resolution.
func (pr *Project) RegisterBuiltinNames() {
	for _, name := range StandardBuiltinRootNames {
		pr.BuiltinNames[name] = true
	}
	for _, name := range corelib.StdErrorClassNames {
		pr.BuiltinNames[name] = true
	}
}

// BuildProgram compiles one entry source file into a runnable program:
// standard error classes first (stable ids), then the built-in surface,
// then the user code with its imports.
func (pr *Project) BuildProgram(
	fileURI string, src []byte, out io.Writer, jobs *vm.AsyncJobQueue,
) (*bytecode.Program, *ast.AST, error) {
	p := bytecode.New()
	corelib.RegisterErrorClasses(p)
	builtins := &corelib.Builtins{Out: out, Jobs: jobs}
	builtins.Register(p)
	pr.RegisterBuiltinNames()

	tree := pr.CompileFileToAST(fileURI, src)
	if tree == nil {
		return nil, nil, fmt.Errorf("compile failed")
	}
	if err := pr.ResolveAST(tree); err != nil {
		return nil, tree, err
	}
	if !pr.Result.Success {
		return nil, tree, fmt.Errorf("compile failed")
	}
	if !pr.CodegenAST(p, tree) || !pr.Result.Success {
		return nil, tree, fmt.Errorf("compile failed")
	}
	if err := p.Validate(); err != nil {
		return nil, tree, err
	}
	return p, tree, nil
}

// RunProgram executes a built program: the hidden globals initializer
// first, then main, each on the scheduler, returning the process exit
// code.
func (pr *Project) RunProgram(p *bytecode.Program, jobs *vm.AsyncJobQueue) (int, error) {
	if p.MainFuncID < 0 {
		return 1, fmt.Errorf("program has no main function")
	}
	sched := vm.NewScheduler(p, jobs, vm.SchedulerOptions{
		Debug:        pr.Opts.VMSchedDebug,
		VerboseDebug: pr.Opts.VMSchedVerboseDebug,
	}, pr.Log)
	if p.GlobalsInitFuncID >= 0 {
		sched.SpawnFiber(p.GlobalsInitFuncID, nil)
		code := sched.RunUntilDone()
		if code != 0 {
			return code, fmt.Errorf("globals initialization failed")
		}
	}
	mainFiber := sched.SpawnFiber(p.MainFuncID, nil)
	mainFiber.IsMain = true
	code := sched.RunUntilDone()
	sched.Shutdown()
	return code, nil
}
