package corelib

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/canter/pkg/bytecode"
	"github.com/ternarybob/canter/pkg/vm"
)

// Builtins wires the built-in function set into a program. Out is where
// print writes; Jobs backs the async built-ins and may be nil when a
// program never uses them.
type Builtins struct {
	Out  io.Writer
	Jobs *vm.AsyncJobQueue
}

// Register adds the built-in functions to the program table. The error
// classes must already be registered.
func (b *Builtins) Register(p *bytecode.Program) {
	p.RegisterCFunction("print", vm.CFunc(b.print), []string{"value"})
	p.RegisterCFunction("assert", vm.CFunc(b.assert),
		[]string{"condition", "message"})
	p.RegisterCFunction("time.sleep", vm.CFunc(b.sleep), []string{"seconds"})
	p.RegisterCFunction("net.lookup_host", vm.CFunc(b.lookupHost),
		[]string{"host"})
	p.RegisterCFunction("process.run", vm.CFunc(b.runCommand),
		[]string{"command", "arguments"})
	for _, name := range []string{"value", "condition", "message",
		"seconds", "host", "command", "arguments"} {
		p.InternAttributeName(name)
	}
}

// renderValue formats a value the way print shows it.
func renderValue(t *vm.Thread, v *vm.Value) string {
	switch v.Kind {
	case vm.ValNone:
		return "none"
	case vm.ValInt64:
		return fmt.Sprintf("%d", v.Int)
	case vm.ValFloat64:
		return fmt.Sprintf("%g", v.Float)
	case vm.ValBool:
		if v.Int != 0 {
			return "true"
		}
		return "false"
	case vm.ValFuncRef:
		return fmt.Sprintf("<func %d>", v.Int)
	case vm.ValClassRef:
		return fmt.Sprintf("<class %d>", v.Int)
	case vm.ValError:
		msg := ""
		if v.EInfo != nil {
			msg = v.EInfo.Message
		}
		return fmt.Sprintf("<error %s: %s>",
			t.Program.Classes[v.Int].Name, msg)
	case vm.ValUnspecifiedKwArg:
		return "<unspecified>"
	}
	if s, ok := vm.StringValueToRunes(v); ok {
		return string(s)
	}
	if v.Kind == vm.ValGCVal {
		switch v.GC.Kind {
		case vm.GCBytes:
			return string(v.GC.Bytes)
		case vm.GCList:
			parts := make([]string, len(v.GC.List))
			for i := range v.GC.List {
				parts[i] = renderValue(t, &v.GC.List[i])
			}
			return "[" + strings.Join(parts, ", ") + "]"
		case vm.GCClassInstance:
			return fmt.Sprintf("<%s instance>",
				t.Program.Classes[v.GC.ClassID].Name)
		}
	}
	return "<object>"
}

func (b *Builtins) print(t *vm.Thread) vm.CFuncStatus {
	out := b.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out, renderValue(t, t.Arg(0)))
	t.SetReturnValue(vm.None())
	return vm.CFuncSuccess
}

func (b *Builtins) assert(t *vm.Thread) vm.CFuncStatus {
	if t.Arg(0).IsTruthy() {
		t.SetReturnValue(vm.None())
		return vm.CFuncSuccess
	}
	msg := "assertion failed"
	if t.Arg(1).Kind != vm.ValUnspecifiedKwArg {
		msg = renderValue(t, t.Arg(1))
	}
	return t.ReturnFuncError(StdErrorAssertionError, "%s", msg)
}

// sleepProgress marks a sleep call that already suspended once.
type sleepProgress struct {
	deadline int64
}

func (b *Builtins) sleep(t *vm.Thread) vm.CFuncStatus {
	if _, ok := t.AsyncProgress.(*sleepProgress); ok {
		// Resumed after the deadline passed.
		t.AsyncProgress = nil
		t.SetReturnValue(vm.None())
		return vm.CFuncSuccess
	}
	seconds := float64(0)
	switch t.Arg(0).Kind {
	case vm.ValInt64:
		seconds = float64(t.Arg(0).Int)
	case vm.ValFloat64:
		seconds = t.Arg(0).Float
	default:
		return t.ReturnFuncError(StdErrorTypeError,
			"seconds must be a number")
	}
	deadline := vm.DeadlineInMS(
		time.Duration(seconds * float64(time.Second)))
	t.AsyncProgress = &sleepProgress{deadline: deadline}
	if !t.SuspendFunc(vm.SuspendFixedTime, deadline) {
		return t.ReturnFuncError(StdErrorOutOfMemoryError, "out of memory")
	}
	return vm.CFuncSuspend
}

// hostLookupProgress tracks the outstanding lookup job across the
// suspend/resume boundary.
type hostLookupProgress struct {
	job *vm.AsyncJob
}

func (b *Builtins) lookupHost(t *vm.Thread) vm.CFuncStatus {
	if progress, ok := t.AsyncProgress.(*hostLookupProgress); ok {
		t.AsyncProgress = nil
		t.AsyncAbortFunc = nil
		job := b.Jobs.ConsumeJob(progress.job.Handle)
		if job == nil {
			job = progress.job
		}
		if job.Failed() {
			return t.ReturnFuncError(StdErrorOSError,
				"host lookup for \"%s\" failed", job.Host)
		}
		addr := ""
		if job.ResultIP4Len > 0 {
			addr = ipToString(job.ResultIP4)
		} else if job.ResultIP6Len > 0 {
			addr = ipToString(job.ResultIP6)
		}
		v, ok := vm.NewStringValueFromUTF8(t, addr)
		if !ok {
			return t.ReturnFuncError(StdErrorOutOfMemoryError, "out of memory")
		}
		t.SetReturnValue(v)
		return vm.CFuncSuccess
	}

	if b.Jobs == nil {
		return t.ReturnFuncError(StdErrorRuntimeError,
			"async jobs unavailable")
	}
	host, ok := vm.StringValueToRunes(t.Arg(0))
	if !ok {
		return t.ReturnFuncError(StdErrorTypeError, "host must be a string")
	}
	job := vm.NewHostLookupJob(string(host))
	handle, ok := b.Jobs.RequestAsync(t, job)
	if !ok {
		return t.ReturnFuncError(StdErrorOutOfMemoryError,
			"async job queue full")
	}
	t.AsyncProgress = &hostLookupProgress{job: job}
	t.AsyncAbortFunc = func() {
		b.Jobs.AbandonJob(job)
	}
	if !t.SuspendFunc(vm.SuspendAsyncJobWait, handle) {
		return t.ReturnFuncError(StdErrorOutOfMemoryError, "out of memory")
	}
	return vm.CFuncSuspend
}

func ipToString(ip []byte) string {
	if len(ip) == 4 {
		return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
	}
	var b strings.Builder
	for i := 0; i+1 < len(ip); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%x", int(ip[i])<<8|int(ip[i+1]))
	}
	return b.String()
}

// runCmdProgress tracks an outstanding run-command job.
type runCmdProgress struct {
	job *vm.AsyncJob
}

func (b *Builtins) runCommand(t *vm.Thread) vm.CFuncStatus {
	if progress, ok := t.AsyncProgress.(*runCmdProgress); ok {
		t.AsyncProgress = nil
		t.AsyncAbortFunc = nil
		job := b.Jobs.ConsumeJob(progress.job.Handle)
		if job == nil {
			job = progress.job
		}
		if job.Failed() {
			return t.ReturnFuncError(StdErrorOSError,
				"running \"%s\" failed", job.Cmd)
		}
		t.SetReturnValue(vm.Int64(int64(job.ExitCode)))
		return vm.CFuncSuccess
	}

	if b.Jobs == nil {
		return t.ReturnFuncError(StdErrorRuntimeError,
			"async jobs unavailable")
	}
	cmd, ok := vm.StringValueToRunes(t.Arg(0))
	if !ok {
		return t.ReturnFuncError(StdErrorTypeError,
			"command must be a string")
	}
	var args []string
	if t.Arg(1).Kind == vm.ValGCVal && t.Arg(1).GC.Kind == vm.GCList {
		for i := range t.Arg(1).GC.List {
			s, ok := vm.StringValueToRunes(&t.Arg(1).GC.List[i])
			if !ok {
				return t.ReturnFuncError(StdErrorTypeError,
					"arguments must be strings")
			}
			args = append(args, string(s))
		}
	} else if t.Arg(1).Kind != vm.ValUnspecifiedKwArg &&
		t.Arg(1).Kind != vm.ValNone {
		return t.ReturnFuncError(StdErrorTypeError,
			"arguments must be a list")
	}
	job := vm.NewRunCmdJob(string(cmd), args)
	handle, ok := b.Jobs.RequestAsync(t, job)
	if !ok {
		return t.ReturnFuncError(StdErrorOutOfMemoryError,
			"async job queue full")
	}
	t.AsyncProgress = &runCmdProgress{job: job}
	t.AsyncAbortFunc = func() {
		b.Jobs.AbandonJob(job)
	}
	if !t.SuspendFunc(vm.SuspendAsyncJobWait, handle) {
		return t.ReturnFuncError(StdErrorOutOfMemoryError, "out of memory")
	}
	return vm.CFuncSuspend
}
