// Package compiler drives whole-program compilation: loading modules by
// URI, tokenizing and parsing them, resolving identifiers across files,
// and emitting the bytecode program the VM executes. It also produces the
// JSON structures behind the get_tokens / get_ast tooling commands.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
	"github.com/ternarybob/canter/pkg/message"
	"github.com/ternarybob/canter/pkg/parser"
)

// SourceFileSizeLimit is the strict cap on a single source file; larger
// files are rejected before tokenization.
const SourceFileSizeLimit = 16 * 1024 * 1024

// SourceFileSuffix is the conventional source file extension.
const SourceFileSuffix = ".cn"

// Options carries the CLI debug toggles through the pipeline.
type Options struct {
	ImportDebug         bool
	CompilerStageDebug  bool
	VMExecDebug         bool
	VMSchedDebug        bool
	VMSchedVerboseDebug bool
	VMAsyncJobsDebug    bool
}

// ModuleResolver maps a dotted module path (plus optional library name)
// to a file URI and its source bytes.
type ModuleResolver func(path, library string) (string, []byte, error)

// Project is one compilation: a set of modules loaded by URI with import
// cycles broken, sharing a warning configuration and diagnostics sink.
type Project struct {
	WConfig  *message.WarnConfig
	Opts     Options
	Log      arbor.ILogger
	Resolver ModuleResolver
	Result   *message.Result

	asts    map[string]*ast.AST
	loading map[string]bool

	// Known built-in root names (print, time, net, ...) registered by
	// the standard library; identifier resolution accepts these.
	BuiltinNames map[string]bool
}

// NewProject returns a project rooted at baseDir with a directory-based
// module resolver.
func NewProject(baseDir string, wconfig *message.WarnConfig, opts Options, log arbor.ILogger) *Project {
	if wconfig == nil {
		wconfig = message.DefaultWarnConfig()
	}
	pr := &Project{
		WConfig:      wconfig,
		Opts:         opts,
		Log:          log,
		Result:       message.NewResult(""),
		asts:         map[string]*ast.AST{},
		loading:      map[string]bool{},
		BuiltinNames: map[string]bool{},
	}
	pr.Resolver = func(path, library string) (string, []byte, error) {
		rel := filepath.Join(strings.Split(path, ".")...) + SourceFileSuffix
		dir := baseDir
		if library != "" {
			dir = filepath.Join(baseDir, "modules", library)
		}
		fileURI := filepath.Join(dir, rel)
		src, err := os.ReadFile(fileURI)
		if err != nil {
			return fileURI, nil, err
		}
		return fileURI, src, nil
	}
	return pr
}

// NormalizeURI canonicalizes a file URI so the same module loaded through
// different spellings shares one AST.
func NormalizeURI(uri string) string {
	return filepath.Clean(uri)
}

// CompileFileToAST runs source bytes through the lexer and parser,
// applying the size limit and transferring diagnostics onto the project
// result.
func (pr *Project) CompileFileToAST(fileURI string, src []byte) *ast.AST {
	uri := NormalizeURI(fileURI)
	if existing, ok := pr.asts[uri]; ok {
		return existing
	}
	if len(src) > SourceFileSizeLimit {
		pr.Result.AddErrorNoLoc(fmt.Sprintf(
			"file exceeds source file size limit of %d bytes",
			SourceFileSizeLimit), uri)
		return nil
	}
	if pr.Opts.CompilerStageDebug && pr.Log != nil {
		pr.Log.Debug().Str("file_uri", uri).Msg("compiler: tokenizing")
	}
	tfile := lexer.Tokenize(src, uri, pr.WConfig)

	if pr.Opts.CompilerStageDebug && pr.Log != nil {
		pr.Log.Debug().
			Str("file_uri", uri).
			Str("tokens", strconv.Itoa(len(tfile.Tokens))).
			Msg("compiler: parsing")
	}
	tree := parser.ParseFromTokens(tfile, pr.WConfig)
	pr.Result.TransferMessages(tree.Result)
	pr.asts[uri] = tree
	return tree
}

// LoadModule loads and compiles the module behind an import statement,
// breaking cycles by module URI: a module already being loaded resolves
// to its (possibly still incomplete) AST instead of recursing.
func (pr *Project) LoadModule(path, library string) (*ast.AST, error) {
	if pr.Resolver == nil {
		return nil, fmt.Errorf("no module resolver configured")
	}
	fileURI, src, err := pr.Resolver(path, library)
	if err != nil {
		return nil, err
	}
	uri := NormalizeURI(fileURI)
	if pr.Opts.ImportDebug && pr.Log != nil {
		pr.Log.Debug().
			Str("module", path).
			Str("library", library).
			Str("file_uri", uri).
			Msg("compiler: import load")
	}
	if existing, ok := pr.asts[uri]; ok {
		return existing, nil
	}
	if pr.loading[uri] {
		// Import cycle: the module is on the load stack right now. The
		// partially built AST is returned once it finishes.
		return nil, nil
	}
	pr.loading[uri] = true
	defer delete(pr.loading, uri)

	tree := pr.CompileFileToAST(uri, src)
	if tree == nil {
		return nil, fmt.Errorf("module %q failed to compile", path)
	}
	tree.ModulePath = path
	tree.LibraryName = library
	if err := pr.ResolveAST(tree); err != nil {
		return tree, err
	}
	return tree, nil
}
