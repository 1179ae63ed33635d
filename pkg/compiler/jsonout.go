package compiler

import (
	"github.com/ternarybob/canter/pkg/ast"
	"github.com/ternarybob/canter/pkg/lexer"
	"github.com/ternarybob/canter/pkg/message"
)

// JSONResult is the envelope of every tooling command's JSON output.
type JSONResult struct {
	Success     bool          `json:"success"`
	Errors      []JSONMessage `json:"errors"`
	Warnings    []JSONMessage `json:"warnings"`
	Information []JSONMessage `json:"information"`
	FileURI     string        `json:"file-uri"`

	Tokens []map[string]interface{} `json:"tokens,omitempty"`
	AST    []map[string]interface{} `json:"ast,omitempty"`
	Scope  map[string]interface{}   `json:"scope,omitempty"`
}

// JSONMessage is one diagnostic in tooling output.
type JSONMessage struct {
	Message string `json:"message"`
	FileURI string `json:"file-uri,omitempty"`
	Line    int64  `json:"line,omitempty"`
	Column  int64  `json:"column,omitempty"`
}

func messagesToJSON(msgs []message.Message) []JSONMessage {
	out := []JSONMessage{}
	for _, m := range msgs {
		jm := JSONMessage{Message: m.Message, FileURI: m.FileURI}
		if m.Line >= 0 {
			jm.Line = m.Line
			jm.Column = m.Column
		}
		out = append(out, jm)
	}
	return out
}

func resultEnvelope(r *message.Result, fileURI string) JSONResult {
	return JSONResult{
		Success:     r.Success,
		Errors:      messagesToJSON(r.ByKind(message.Error)),
		Warnings:    messagesToJSON(r.ByKind(message.Warning)),
		Information: messagesToJSON(r.ByKind(message.Info)),
		FileURI:     fileURI,
	}
}

// TokenizeToJSON runs get_tokens: scan the file and dump the stream.
func (pr *Project) TokenizeToJSON(fileURI string, src []byte) JSONResult {
	if len(src) > SourceFileSizeLimit {
		r := message.NewResult(fileURI)
		r.AddErrorNoLoc("file exceeds source file size limit", fileURI)
		return resultEnvelope(r, fileURI)
	}
	tfile := lexer.Tokenize(src, fileURI, pr.WConfig)
	out := resultEnvelope(tfile.Result, fileURI)
	out.Tokens = []map[string]interface{}{}
	for i := range tfile.Tokens {
		out.Tokens = append(out.Tokens,
			lexer.TokenToJSON(&tfile.Tokens[i], fileURI))
	}
	return out
}

// ParseASTToJSON runs get_ast / get_resolved_ast: parse (and optionally
// resolve) the file and dump tree plus global scope.
func (pr *Project) ParseASTToJSON(fileURI string, src []byte, resolveReferences bool) JSONResult {
	tree := pr.CompileFileToAST(fileURI, src)
	if tree == nil {
		return resultEnvelope(pr.Result, fileURI)
	}
	if resolveReferences {
		_ = pr.ResolveAST(tree)
	}
	out := resultEnvelope(pr.Result, tree.FileURI)
	out.AST = []map[string]interface{}{}
	for _, stmt := range tree.Stmts {
		out.AST = append(out.AST, ast.ExpressionToJSON(stmt))
	}
	out.Scope = ast.ScopeToJSON(tree.Scope)
	return out
}
