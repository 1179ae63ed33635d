// Package main provides the CLI entry point for the canter toolchain.
//
// canter compiles and runs programs written in the canter scripting
// language on its bytecode virtual machine.
//
// Usage:
//
//	canter compile <file>              - Compile a source file
//	canter run <file> [args]           - Compile and run a source file
//	canter exec "<code>"               - Run code given on the command line
//	canter codeinfo <file>             - Print program statistics
//	canter get_asm <file>              - Print the compiled bytecode
//	canter get_tokens <file>           - Dump the token stream as JSON
//	canter get_ast <file>              - Dump the AST as JSON
//	canter get_resolved_ast <file>     - Dump the resolved AST as JSON
//	canter serve                       - Start the inspection HTTP server
//	canter version                     - Print the version
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/ternarybob/canter/internal/api"
	"github.com/ternarybob/canter/internal/config"
	"github.com/ternarybob/canter/internal/logger"
	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/compiler"
	"github.com/ternarybob/canter/pkg/message"
	"github.com/ternarybob/canter/pkg/vm"
)

// version is set via -ldflags at build time.
var version = "dev"

type cliArgs struct {
	command    string
	configPath string
	watch      bool
	opts       compiler.Options
	warnFlags  map[string]bool
	rest       []string
}

func parseArgs(argv []string) (*cliArgs, error) {
	args := &cliArgs{warnFlags: map[string]bool{}}
	i := 0
	seenDashDash := false
	for i < len(argv) {
		a := argv[i]
		if seenDashDash || !strings.HasPrefix(a, "-") {
			if args.command == "" {
				args.command = a
			} else {
				args.rest = append(args.rest, a)
			}
			i++
			continue
		}
		switch {
		case a == "--":
			seenDashDash = true
		case a == "--config":
			i++
			if i >= len(argv) {
				return nil, fmt.Errorf("--config requires a path")
			}
			args.configPath = argv[i]
		case a == "--watch":
			args.watch = true
		case a == "--import-debug":
			args.opts.ImportDebug = true
		case a == "--compiler-stage-debug":
			args.opts.CompilerStageDebug = true
		case a == "--vmexec-debug":
			args.opts.VMExecDebug = true
		case a == "--vmsched-debug":
			args.opts.VMSchedDebug = true
		case a == "--vmsched-verbose-debug":
			args.opts.VMSchedDebug = true
			args.opts.VMSchedVerboseDebug = true
		case a == "--vmasyncjobs-debug":
			args.opts.VMAsyncJobsDebug = true
		case strings.HasPrefix(a, "-Wno-"):
			args.warnFlags[strings.TrimPrefix(a, "-Wno-")] = false
		case strings.HasPrefix(a, "-W"):
			args.warnFlags[strings.TrimPrefix(a, "-W")] = true
		default:
			return nil, fmt.Errorf("unknown option %q", a)
		}
		i++
	}
	if args.command == "" {
		return nil, fmt.Errorf("no command given")
	}
	return args, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: canter "+
		"<compile|run|exec|codeinfo|get_asm|get_tokens|get_ast|"+
		"get_resolved_ast|serve|version> [options] [file]")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	args, err := parseArgs(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canter: error: %v\n", err)
		usage()
		return 1
	}

	cfg, err := config.Load(args.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canter: error: %v\n", err)
		return 1
	}
	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	wconfig := cfg.WarnConfig()
	for name, enabled := range args.warnFlags {
		if !wconfig.SetByName(name, enabled) {
			fmt.Fprintf(os.Stderr,
				"canter: warning: unknown warning toggle -W%s\n", name)
		}
	}

	newProject := func(baseDir string) *compiler.Project {
		pr := compiler.NewProject(baseDir, wconfig, args.opts, log)
		pr.RegisterBuiltinNames()
		return pr
	}

	switch args.command {
	case "version":
		fmt.Printf("canter %s\n", version)
		return 0
	case "serve":
		api.SetVersion(version)
		if err := api.NewServer(cfg).ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("inspection server failed")
			return 1
		}
		return 0
	case "exec":
		if len(args.rest) < 1 {
			fmt.Fprintln(os.Stderr, "canter: error: exec requires code")
			return 1
		}
		return compileAndRun(newProject("."), cfg,
			"memory://exec"+compiler.SourceFileSuffix, []byte(args.rest[0]))
	}

	if len(args.rest) < 1 {
		fmt.Fprintf(os.Stderr,
			"canter: error: %s requires a source file\n", args.command)
		return 1
	}
	fileURI := args.rest[0]
	src, err := os.ReadFile(fileURI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canter: error: %v\n", err)
		return 1
	}
	baseDir := filepath.Dir(fileURI)

	switch args.command {
	case "get_tokens":
		return printJSON(newProject(baseDir).TokenizeToJSON(fileURI, src))
	case "get_ast":
		return printJSON(newProject(baseDir).ParseASTToJSON(fileURI, src, false))
	case "get_resolved_ast":
		return printJSON(newProject(baseDir).ParseASTToJSON(fileURI, src, true))
	case "compile":
		if args.watch {
			return watchCompile(cfg, newProject, fileURI, baseDir)
		}
		pr := newProject(baseDir)
		_, _, err := pr.BuildProgram(fileURI, src, os.Stdout, nil)
		printDiagnostics(pr.Result)
		if err != nil {
			return 1
		}
		return 0
	case "codeinfo":
		pr := newProject(baseDir)
		p, _, err := pr.BuildProgram(fileURI, src, os.Stdout, nil)
		printDiagnostics(pr.Result)
		if err != nil {
			return 1
		}
		printCodeInfo(p)
		return 0
	case "get_asm":
		pr := newProject(baseDir)
		p, _, err := pr.BuildProgram(fileURI, src, os.Stdout, nil)
		printDiagnostics(pr.Result)
		if err != nil {
			return 1
		}
		for _, f := range p.Functions {
			fmt.Print(bytecode.Disassemble(p, f))
		}
		return 0
	case "run":
		return compileAndRun(newProject(baseDir), cfg, fileURI, src)
	}

	fmt.Fprintf(os.Stderr, "canter: error: unknown command %q\n", args.command)
	usage()
	return 1
}

func compileAndRun(pr *compiler.Project, cfg *config.Config, fileURI string, src []byte) int {
	jobs := vm.NewAsyncJobQueue(cfg.Compiler.AsyncJobWorkers, pr.Log)
	defer jobs.Close()
	p, _, err := pr.BuildProgram(fileURI, src, os.Stdout, jobs)
	printDiagnostics(pr.Result)
	if err != nil {
		return 1
	}
	code, err := pr.RunProgram(p, jobs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canter: error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

func printJSON(v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "canter: error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func printDiagnostics(r *message.Result) {
	for _, m := range r.Messages {
		loc := ""
		if m.Line >= 0 {
			loc = fmt.Sprintf(":%d:%d", m.Line, m.Column)
		}
		fmt.Fprintf(os.Stderr, "%s%s: %s: %s\n",
			m.FileURI, loc, m.Kind, m.Message)
	}
}

func printCodeInfo(p *bytecode.Program) {
	fmt.Printf("functions:       %d\n", len(p.Functions))
	fmt.Printf("classes:         %d\n", len(p.Classes))
	fmt.Printf("globals:         %d\n", len(p.Globals))
	fmt.Printf("constants:       %d\n", len(p.Constants))
	fmt.Printf("attribute names: %d\n", len(p.AttrNames))
	instructions := 0
	for _, f := range p.Functions {
		instructions += len(f.Instructions)
	}
	fmt.Printf("instructions:    %d\n", instructions)
}

// watchCompile recompiles the entry file whenever a source file in its
// directory is written, created or renamed.
func watchCompile(cfg *config.Config, newProject func(string) *compiler.Project, fileURI, baseDir string) int {
	log := logger.GetLogger()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "canter: error: %v\n", err)
		return 1
	}
	defer watcher.Close()
	if err := watcher.Add(baseDir); err != nil {
		fmt.Fprintf(os.Stderr, "canter: error: %v\n", err)
		return 1
	}

	compileOnce := func() {
		src, err := os.ReadFile(fileURI)
		if err != nil {
			log.Error().Err(err).Msg("watch: read failed")
			return
		}
		pr := newProject(baseDir)
		_, _, buildErr := pr.BuildProgram(fileURI, src, os.Stdout, nil)
		printDiagnostics(pr.Result)
		if buildErr != nil {
			log.Warn().Str("file", fileURI).Msg("watch: compile failed")
		} else {
			log.Info().Str("file", fileURI).Msg("watch: compile ok")
		}
	}
	compileOnce()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return 0
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 &&
				strings.HasSuffix(event.Name, compiler.SourceFileSuffix) {
				compileOnce()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0
			}
			log.Warn().Err(err).Msg("watch: watcher error")
		}
	}
}
