// Package message accumulates compiler diagnostics.
//
// Diagnostics are not Go errors: a compile keeps scanning and parsing past
// the first problem and reports everything it found in one pass. Every stage
// (lexer, parser, resolver) appends to a Result and flips Success off when
// an error-severity message lands.
package message

import "fmt"

// Kind is the severity of a result message.
type Kind int

const (
	Error Kind = iota
	Info
	Warning
)

func (k Kind) String() string {
	switch k {
	case Error:
		return "error"
	case Info:
		return "info"
	case Warning:
		return "warning"
	}
	return "unknown"
}

// Message is a single diagnostic with an optional source location.
// Line and Column are 1-based; a value below zero means "no location".
type Message struct {
	Kind    Kind
	Message string
	FileURI string
	Line    int64
	Column  int64
}

// Result collects the messages produced while processing one file.
type Result struct {
	Success  bool
	FileURI  string
	Messages []Message
}

// NewResult returns a Result that starts out successful.
func NewResult(fileURI string) *Result {
	return &Result{Success: true, FileURI: fileURI}
}

// AddMessage appends a message at the given location. Error messages clear
// the success flag.
func (r *Result) AddMessage(kind Kind, msg, fileURI string, line, column int64) {
	if fileURI == "" {
		fileURI = r.FileURI
	}
	r.Messages = append(r.Messages, Message{
		Kind:    kind,
		Message: msg,
		FileURI: fileURI,
		Line:    line,
		Column:  column,
	})
	if kind == Error {
		r.Success = false
	}
}

// AddMessageNoLoc appends a message without a source location.
func (r *Result) AddMessageNoLoc(kind Kind, msg, fileURI string) {
	r.AddMessage(kind, msg, fileURI, -1, -1)
}

// AddError appends an error message at the given location.
func (r *Result) AddError(msg, fileURI string, line, column int64) {
	r.AddMessage(Error, msg, fileURI, line, column)
}

// AddErrorNoLoc appends an error message without a location.
func (r *Result) AddErrorNoLoc(msg, fileURI string) {
	r.AddMessageNoLoc(Error, msg, fileURI)
}

// Errorf appends a formatted error message at the given location.
func (r *Result) Errorf(fileURI string, line, column int64, format string, args ...interface{}) {
	r.AddError(fmt.Sprintf(format, args...), fileURI, line, column)
}

// Warnf appends a formatted warning message at the given location.
func (r *Result) Warnf(fileURI string, line, column int64, format string, args ...interface{}) {
	r.AddMessage(Warning, fmt.Sprintf(format, args...), fileURI, line, column)
}

// HasErrors reports whether any error-severity message was recorded.
func (r *Result) HasErrors() bool {
	for _, m := range r.Messages {
		if m.Kind == Error {
			return true
		}
	}
	return false
}

// TransferMessages moves all messages from src into r. The success flag of
// r is cleared if src carried errors.
func (r *Result) TransferMessages(src *Result) {
	r.Messages = append(r.Messages, src.Messages...)
	if src.HasErrors() {
		r.Success = false
	}
	src.Messages = nil
}

// ByKind returns the messages of one severity, in insertion order.
func (r *Result) ByKind(kind Kind) []Message {
	var out []Message
	for _, m := range r.Messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// WarnConfig holds the toggleable warning axes.
type WarnConfig struct {
	WarnUnrecognizedEscapeSequences bool
	WarnShadowingDirectLocals       bool
	WarnShadowingParentFuncLocals   bool
	WarnShadowingGlobals            bool
}

// DefaultWarnConfig returns the warning configuration used when no -W
// options are given.
func DefaultWarnConfig() *WarnConfig {
	return &WarnConfig{
		WarnUnrecognizedEscapeSequences: true,
		WarnShadowingDirectLocals:       true,
		WarnShadowingParentFuncLocals:   false,
		WarnShadowingGlobals:            false,
	}
}

// SetByName flips one warning axis by its -W option name, e.g.
// "shadowing-globals". It returns false for unknown names.
func (w *WarnConfig) SetByName(name string, enabled bool) bool {
	switch name {
	case "unrecognized-escape-sequences":
		w.WarnUnrecognizedEscapeSequences = enabled
	case "shadowing-direct-locals":
		w.WarnShadowingDirectLocals = enabled
	case "shadowing-parent-func-locals":
		w.WarnShadowingParentFuncLocals = enabled
	case "shadowing-globals":
		w.WarnShadowingGlobals = enabled
	default:
		return false
	}
	return true
}
