package lexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/canter/pkg/message"
)

func tokenize(t *testing.T, src string) *TokenizedFile {
	t.Helper()
	return Tokenize([]byte(src), "test://input.cn", message.DefaultWarnConfig())
}

func TestTokenize_NumberLiterals(t *testing.T) {
	tf := tokenize(t, "var v = 1.5 + 0xA + 0b10")
	require.True(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 8)

	assert.True(t, tf.Tokens[0].IsKeyword("var"))
	assert.Equal(t, TokenIdentifier, tf.Tokens[1].Type)
	assert.Equal(t, "v", tf.Tokens[1].Str)
	assert.Equal(t, OpAssign, tf.Tokens[2].Op)

	assert.Equal(t, TokenConstantFloat, tf.Tokens[3].Type)
	assert.Equal(t, 1.5, tf.Tokens[3].Float)
	assert.Equal(t, OpMathAdd, tf.Tokens[4].Op)
	assert.Equal(t, TokenConstantInt, tf.Tokens[5].Type)
	assert.Equal(t, int64(10), tf.Tokens[5].Int)
	assert.Equal(t, TokenConstantInt, tf.Tokens[7].Type)
	assert.Equal(t, int64(2), tf.Tokens[7].Int)
}

func TestTokenize_TrailingFractionalZerosTrimmed(t *testing.T) {
	tf := tokenize(t, "var v = 2.500")
	require.True(t, tf.Result.Success)
	assert.Equal(t, TokenConstantFloat, tf.Tokens[3].Type)
	assert.Equal(t, 2.5, tf.Tokens[3].Float)

	// A fraction that trims to nothing becomes an integer:
	tf = tokenize(t, "var v = 3.0")
	require.True(t, tf.Result.Success)
	assert.Equal(t, TokenConstantInt, tf.Tokens[3].Type)
	assert.Equal(t, int64(3), tf.Tokens[3].Int)
}

func TestTokenize_StringEscapes(t *testing.T) {
	tf := tokenize(t, `"test string\x32with\nthings\\\\"`)
	require.True(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 1)
	tok := tf.Tokens[0]
	assert.Equal(t, TokenConstantString, tok.Type)
	assert.Equal(t, "test string2with\nthings\\\\", tok.Str)
}

func TestTokenize_UnknownEscapeKeepsBackslashAndWarns(t *testing.T) {
	tf := tokenize(t, `"a\qb"`)
	require.True(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 1)
	assert.Equal(t, `a\qb`, tf.Tokens[0].Str)

	warnings := tf.Result.ByKind(message.Warning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "unrecognized escape sequence")
}

func TestTokenize_InvalidUTF8InString(t *testing.T) {
	tf := Tokenize([]byte("\"\xc3\xc3\""), "test://input.cn", nil)
	assert.False(t, tf.Result.Success)
	require.NotEmpty(t, tf.Tokens)
	assert.Equal(t, TokenInvalid, tf.Tokens[0].Type)
	require.NotEmpty(t, tf.Result.Messages)
	assert.Contains(t, tf.Result.Messages[0].Message, "valid utf-8")
}

func TestTokenize_BytesLiteral(t *testing.T) {
	tf := tokenize(t, `var v = b"abc\x00"`)
	require.True(t, tf.Result.Success)
	assert.Equal(t, TokenConstantBytes, tf.Tokens[3].Type)
	assert.Equal(t, []byte{'a', 'b', 'c', 0}, tf.Tokens[3].Bytes)
}

func TestTokenize_BytesLiteralRejectsUnescapedNonASCII(t *testing.T) {
	tf := Tokenize([]byte("var v = b\"\xc3\xa4\""), "test://input.cn", nil)
	assert.False(t, tf.Result.Success)
}

func TestTokenize_NullByteIsError(t *testing.T) {
	tf := Tokenize([]byte("var\x00x"), "test://input.cn", nil)
	assert.False(t, tf.Result.Success)
	require.NotEmpty(t, tf.Result.Messages)
	assert.Contains(t, tf.Result.Messages[0].Message, "0x0")
}

func TestTokenize_LineAndColumnTracking(t *testing.T) {
	tf := tokenize(t, "var a\r\nvar b\rvar c")
	require.True(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 6)
	assert.Equal(t, int64(1), tf.Tokens[0].Line)
	assert.Equal(t, int64(2), tf.Tokens[2].Line)
	assert.Equal(t, int64(3), tf.Tokens[4].Line)
	assert.Equal(t, int64(1), tf.Tokens[4].Column)
	assert.Equal(t, int64(5), tf.Tokens[5].Column)
}

func TestTokenize_CommentsSkipped(t *testing.T) {
	tf := tokenize(t, "var a # this is a comment\nvar b")
	require.True(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 4)
	assert.Equal(t, "b", tf.Tokens[3].Str)
}

func TestTokenize_UnaryVersusBinaryMinus(t *testing.T) {
	// After '=', a minus starts a negative number literal:
	tf := tokenize(t, "var v = -5")
	require.True(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 4)
	assert.Equal(t, TokenConstantInt, tf.Tokens[3].Type)
	assert.Equal(t, int64(-5), tf.Tokens[3].Int)

	// Between two identifiers, a minus is the binary operator:
	tf = tokenize(t, "var v = a - b")
	require.True(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 6)
	assert.Equal(t, TokenBinOpSymbol, tf.Tokens[4].Type)
	assert.Equal(t, OpMathSubtract, tf.Tokens[4].Op)
}

func TestTokenize_CallAndIndexClassification(t *testing.T) {
	// '(' after a callable identifier becomes the call operator:
	tf := tokenize(t, "var v = f(1)")
	require.True(t, tf.Result.Success)
	assert.Equal(t, TokenBinOpSymbol, tf.Tokens[4].Type)
	assert.Equal(t, OpCall, tf.Tokens[4].Op)

	// '[' after an identifier becomes index-by-expression:
	tf = tokenize(t, "var v = l[0]")
	require.True(t, tf.Result.Success)
	assert.Equal(t, TokenBinOpSymbol, tf.Tokens[4].Type)
	assert.Equal(t, OpIndexByExpr, tf.Tokens[4].Op)

	// '[' after '=' opens a list literal:
	tf = tokenize(t, "var v = [0]")
	require.True(t, tf.Result.Success)
	assert.Equal(t, TokenBracket, tf.Tokens[3].Type)
}

func TestTokenize_FuncNameParenIsBracket(t *testing.T) {
	tf := tokenize(t, "func f(a) { }")
	require.True(t, tf.Result.Success)
	// The '(' after "func f" opens the argument list, it is not a call:
	assert.Equal(t, TokenBracket, tf.Tokens[2].Type)
	assert.Equal(t, byte('('), tf.Tokens[2].Bracket)
}

func TestTokenize_CompoundAssignOutsidePermittedSet(t *testing.T) {
	tf := tokenize(t, "x %= 2")
	assert.False(t, tf.Result.Success)
	require.NotEmpty(t, tf.Result.Messages)
	assert.Contains(t, tf.Result.Messages[0].Message,
		"only allowed for \"+=\", \"-=\", \"*=\", and \"/=\"")
	// The token itself is still produced:
	assert.Equal(t, OpAssignMathModulo, tf.Tokens[1].Op)
}

func TestTokenize_MultiCharOperatorsGreedy(t *testing.T) {
	// "<<=" also reports the unwanted-compound-assignment error, but the
	// token stream itself must still hold the greedily consumed forms.
	tf := tokenize(t, "a <<= b >> c <= d == e != f")
	ops := []Op{}
	for _, tok := range tf.Tokens {
		if tok.Type == TokenBinOpSymbol {
			ops = append(ops, tok.Op)
		}
	}
	assert.Equal(t, []Op{
		OpAssignMathBinShiftLeft, OpMathBinShiftRight,
		OpCmpSmallerOrEqual, OpCmpEqual, OpCmpNotEqual,
	}, ops)
}

func TestTokenize_WordOperatorsAndLiterals(t *testing.T) {
	tf := tokenize(t, "var v = a and not b or true")
	require.True(t, tf.Result.Success)
	assert.Equal(t, OpBoolCondAnd, tf.Tokens[4].Op)
	assert.Equal(t, TokenUnOpSymbol, tf.Tokens[5].Type)
	assert.Equal(t, OpBoolCondNot, tf.Tokens[5].Op)
	assert.Equal(t, OpBoolCondOr, tf.Tokens[7].Op)
	assert.Equal(t, TokenConstantBool, tf.Tokens[8].Type)
	assert.Equal(t, int64(1), tf.Tokens[8].Int)
}

func TestTokenize_IdentifierLengthLimit(t *testing.T) {
	long := strings.Repeat("a", MaxIdentifierLen+10)
	tf := tokenize(t, "var "+long)
	assert.False(t, tf.Result.Success)
	require.Len(t, tf.Tokens, 2)
	assert.Equal(t, invalidIdentifier, tf.Tokens[1].Str)
}

func TestTokenize_ImportPathDotsAfterFrom(t *testing.T) {
	tf := tokenize(t, "import mymodule.test1 from my.lib")
	require.True(t, tf.Result.Success)
	// Dots in the module path lex as attribute operators, but the
	// library name after "from" keeps its dots:
	last := tf.Tokens[len(tf.Tokens)-1]
	assert.Equal(t, TokenIdentifier, last.Type)
	assert.Equal(t, "my.lib", last.Str)
}

func TestTokenize_NumberJuxtapositionError(t *testing.T) {
	tf := tokenize(t, "var v = 5x5y")
	assert.False(t, tf.Result.Success)
	found := false
	for _, m := range tf.Result.Messages {
		if strings.Contains(m.Message, "lack of separation") {
			found = true
		}
	}
	assert.True(t, found, "expected a separation error")
}

func TestTokenToJSON_Payloads(t *testing.T) {
	tf := tokenize(t, `var v = "hi"`)
	require.True(t, tf.Result.Success)

	j := TokenToJSON(&tf.Tokens[0], "test://input.cn")
	assert.Equal(t, "TK_KEYWORD", j["type"])
	assert.Equal(t, "var", j["value"])
	assert.Equal(t, int64(1), j["line"])

	j = TokenToJSON(&tf.Tokens[3], "test://input.cn")
	assert.Equal(t, "TK_CONSTANT_STRING", j["type"])
	assert.Equal(t, "hi", j["value"])
	assert.Equal(t, "test://input.cn", j["file-uri"])
}

func TestTokenize_ErrorsDoNotStopScanning(t *testing.T) {
	tf := tokenize(t, "var a ? var b")
	assert.False(t, tf.Result.Success)
	// Scanning continued past the bad character:
	names := []string{}
	for _, tok := range tf.Tokens {
		if tok.Type == TokenIdentifier {
			names = append(names, tok.Str)
		}
	}
	assert.Equal(t, []string{"a", "b"}, names)
}
