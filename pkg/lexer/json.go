package lexer

// TokenToJSON renders one token as the generic map structure the
// get_tokens command serializes. Numeric tokens carry a numeric value,
// string tokens the unescaped text, operator tokens the symbolic name.
func TokenToJSON(t *Token, fileURI string) map[string]interface{} {
	v := map[string]interface{}{
		"type": t.Type.String(),
	}
	if t.Line >= 0 {
		v["line"] = t.Line
		if t.Column >= 0 {
			v["column"] = t.Column
		}
	}
	switch t.Type {
	case TokenConstantString:
		v["value"] = t.Str
	case TokenConstantBytes:
		v["value"] = string(t.Bytes)
	case TokenConstantBool:
		v["value"] = t.Int != 0
	case TokenConstantInt:
		v["value"] = t.Int
	case TokenConstantFloat:
		v["value"] = t.Float
	case TokenIdentifier, TokenKeyword:
		v["value"] = t.Str
	case TokenBracket:
		v["value"] = string(rune(t.Bracket))
	case TokenBinOpSymbol, TokenUnOpSymbol:
		v["value"] = t.Op.String()
	}
	if fileURI != "" {
		v["file-uri"] = fileURI
	}
	return v
}
