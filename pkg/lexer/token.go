package lexer

import (
	"fmt"

	"github.com/ternarybob/canter/pkg/message"
)

// TokenType classifies a token. Invalid tokens stay in the stream so the
// parser can skip over them without losing positions.
type TokenType int

const (
	TokenInvalid TokenType = iota
	TokenIdentifier
	TokenBracket
	TokenComma
	TokenColon
	TokenKeyword
	TokenConstantInt
	TokenConstantFloat
	TokenConstantBool
	TokenConstantNone
	TokenConstantString
	TokenConstantBytes
	TokenBinOpSymbol
	TokenUnOpSymbol
	TokenInlineFunc // =>
	TokenMapArrow   // ->
)

// String returns the stable token type name used in JSON dumps and
// diagnostics.
func (t TokenType) String() string {
	switch t {
	case TokenInvalid:
		return "TK_INVALID"
	case TokenIdentifier:
		return "TK_IDENTIFIER"
	case TokenBracket:
		return "TK_BRACKET"
	case TokenComma:
		return "TK_COMMA"
	case TokenColon:
		return "TK_COLON"
	case TokenKeyword:
		return "TK_KEYWORD"
	case TokenConstantInt:
		return "TK_CONSTANT_INT"
	case TokenConstantFloat:
		return "TK_CONSTANT_FLOAT"
	case TokenConstantBool:
		return "TK_CONSTANT_BOOL"
	case TokenConstantNone:
		return "TK_CONSTANT_NONE"
	case TokenConstantString:
		return "TK_CONSTANT_STRING"
	case TokenConstantBytes:
		return "TK_CONSTANT_BYTES"
	case TokenBinOpSymbol:
		return "TK_BINOPSYMBOL"
	case TokenUnOpSymbol:
		return "TK_UNOPSYMBOL"
	case TokenInlineFunc:
		return "TK_INLINEFUNC"
	case TokenMapArrow:
		return "TK_MAPARROW"
	}
	return "TK_INVALID"
}

// Token is one lexed token. Which payload field is meaningful depends on
// Type: Str for identifiers/keywords/strings, Bytes for bytes literals,
// Int for int/bool constants, Float for float constants, Op for operator
// tokens, Bracket for bracket tokens.
type Token struct {
	Type    TokenType
	Line    int64
	Column  int64
	Str     string
	Bytes   []byte
	Int     int64
	Float   float64
	Op      Op
	Bracket byte
}

// IsKeyword reports whether the token is the given keyword.
func (t *Token) IsKeyword(kw string) bool {
	return t.Type == TokenKeyword && t.Str == kw
}

// IsBracket reports whether the token is the given bracket character.
func (t *Token) IsBracket(c byte) bool {
	return t.Type == TokenBracket && t.Bracket == c
}

// Describe renders the token for diagnostics: brackets and operators are
// quoted as written, keywords and identifiers named, long identifiers
// shortened.
func (t *Token) Describe() string {
	switch t.Type {
	case TokenBracket:
		return fmt.Sprintf("\"%c\"", t.Bracket)
	case TokenBinOpSymbol, TokenUnOpSymbol:
		return fmt.Sprintf("\"%s\"", t.Op.PrintedAs())
	case TokenKeyword:
		return fmt.Sprintf("keyword \"%s\"", t.Str)
	case TokenIdentifier:
		s := t.Str
		if len(s) > 32 {
			s = s[:32] + "..."
		}
		return fmt.Sprintf("identifier \"%s\"", s)
	case TokenConstantInt:
		return fmt.Sprintf("%d", t.Int)
	}
	return t.Type.String()
}

// Keywords is the reserved word set. An identifier matching one of these is
// reclassified as a keyword token, except for the word operators
// (and/or/not/new) and literal words (true/false/none) which get their own
// token types.
var Keywords = map[string]bool{
	"var": true, "const": true, "func": true, "class": true,
	"if": true, "elseif": true, "else": true,
	"while": true, "for": true, "in": true,
	"from": true, "with": true, "as": true,
	"do": true, "rescue": true, "finally": true,
	"import": true, "extends": true,
	"return": true, "break": true, "continue": true,
	"threadable": true, "deprecated": true,
	"getter": true, "setter": true,
	"except": true, "expandarg": true,
}

// TokenizedFile owns the token batch produced from one source file, plus
// the diagnostics accumulated while scanning it.
type TokenizedFile struct {
	FileURI string
	Tokens  []Token
	Result  *message.Result
}
