package expressions

import "strings"

// tokenKind enumerates expression tokens.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokTrue
	tokFalse
	tokNull
	tokOr     // ||
	tokAnd    // &&
	tokEq     // ==
	tokNotEq  // !=
	tokGt     // >
	tokLt     // <
	tokGtEq   // >=
	tokLtEq   // <=
	tokPlus   // +
	tokMinus  // -
	tokStar   // *
	tokSlash  // /
	tokPct    // %
	tokBang   // !
	tokLParen // (
	tokRParen // )
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of expression",
	tokNumber: "number",
	tokString: "string",
	tokIdent:  "identifier",
	tokTrue:   "true",
	tokFalse:  "false",
	tokNull:   "null",
	tokOr:     "||",
	tokAnd:    "&&",
	tokEq:     "==",
	tokNotEq:  "!=",
	tokGt:     ">",
	tokLt:     "<",
	tokGtEq:   ">=",
	tokLtEq:   "<=",
	tokPlus:   "+",
	tokMinus:  "-",
	tokStar:   "*",
	tokSlash:  "/",
	tokPct:    "%",
	tokBang:   "!",
	tokLParen: "(",
	tokRParen: ")",
}

func (k tokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return "unknown"
}

// token is a lexeme with its byte span in the source expression.
// For strings, text holds the unescaped contents.
type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

// lex splits an expression into a flat token stream terminated by tokEOF.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c):
			tok, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = tok.end

		case c == '"' || c == '\'':
			tok, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = tok.end

		case isIdentStart(c):
			tok := lexIdent(src, i)
			tokens = append(tokens, tok)
			i = tok.end

		default:
			kind, width := lexOperator(src, i)
			if width == 0 {
				return nil, newExprError(ErrUnexpectedToken, src, i, i+1, "unexpected character %q", string(c))
			}
			tokens = append(tokens, token{kind: kind, text: src[i : i+width], start: i, end: i + width})
			i += width
		}
	}
	tokens = append(tokens, token{kind: tokEOF, start: len(src), end: len(src)})
	return tokens, nil
}

// lexNumber scans digits with an optional fractional part. A trailing dot,
// a second dot or letters glued to the digits make the literal invalid.
func lexNumber(src string, start int) (token, error) {
	i := start
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		if i >= len(src) || !isDigit(src[i]) {
			return token{}, newExprError(ErrInvalidNumber, src, start, i, "invalid numeric literal %q", src[start:i])
		}
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == '.' || isIdentStart(src[i])) {
		end := i
		for end < len(src) && (src[end] == '.' || isIdentPart(src[end])) {
			end++
		}
		return token{}, newExprError(ErrInvalidNumber, src, start, end, "invalid numeric literal %q", src[start:end])
	}
	return token{kind: tokNumber, text: src[start:i], start: start, end: i}, nil
}

// lexString scans a single- or double-quoted literal with backslash escapes.
func lexString(src string, start int) (token, error) {
	quote := src[start]
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(src[i])
			}
			i++
		case c == quote:
			return token{kind: tokString, text: sb.String(), start: start, end: i + 1}, nil
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return token{}, newExprError(ErrUnterminatedString, src, start, len(src), "unterminated string literal")
}

// lexIdent scans a dotted identifier path; keywords are recognized here.
func lexIdent(src string, start int) token {
	i := start + 1
	for i < len(src) {
		if isIdentPart(src[i]) {
			i++
			continue
		}
		if src[i] == '.' && i+1 < len(src) && isIdentPart(src[i+1]) {
			i++
			continue
		}
		break
	}
	text := src[start:i]
	kind := tokIdent
	switch text {
	case "true":
		kind = tokTrue
	case "false":
		kind = tokFalse
	case "null":
		kind = tokNull
	}
	return token{kind: kind, text: text, start: start, end: i}
}

func lexOperator(src string, i int) (tokenKind, int) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case "||":
		return tokOr, 2
	case "&&":
		return tokAnd, 2
	case "==":
		return tokEq, 2
	case "!=":
		return tokNotEq, 2
	case ">=":
		return tokGtEq, 2
	case "<=":
		return tokLtEq, 2
	}
	switch src[i] {
	case '>':
		return tokGt, 1
	case '<':
		return tokLt, 1
	case '+':
		return tokPlus, 1
	case '-':
		return tokMinus, 1
	case '*':
		return tokStar, 1
	case '/':
		return tokSlash, 1
	case '%':
		return tokPct, 1
	case '!':
		return tokBang, 1
	case '(':
		return tokLParen, 1
	case ')':
		return tokRParen, 1
	}
	return tokEOF, 0
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || c == '$' || (c|0x20) >= 'a' && (c|0x20) <= 'z' }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
