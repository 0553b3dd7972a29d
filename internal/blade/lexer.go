package blade

import "strings"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokText
	tokInterp
	tokIf
	tokUnless
	tokForeach
	tokEndIf
	tokEndUnless
	tokEndForeach
	tokNative
)

// token is one lexeme of a template. For directives, arg holds the text
// between the header parentheses; for interpolations, the text between the
// braces; for native blocks, arg is the dialect and body the block contents.
type token struct {
	kind  tokenKind
	arg   string
	body  string
	start int
	end   int
}

type directive struct {
	name   string
	kind   tokenKind
	header bool
}

// Longer names first so @endforeach is not read as a shorter prefix.
var directives = []directive{
	{"endforeach", tokEndForeach, false},
	{"endunless", tokEndUnless, false},
	{"endif", tokEndIf, false},
	{"foreach", tokForeach, true},
	{"unless", tokUnless, true},
	{"native", tokNative, true},
	{"if", tokIf, true},
}

const endNative = "@endnative"

// lex splits a template into a flat token stream terminated by tokEOF.
// Adjacent literal text is emitted as a single token. An interpolation or
// directive header that never closes turns the rest of the input into text.
func lex(src string) []token {
	l := &lexer{src: src}
	l.run()
	l.flushText(len(src))
	l.tokens = append(l.tokens, token{kind: tokEOF, start: len(src), end: len(src)})
	return l.tokens
}

type lexer struct {
	src       string
	pos       int
	textStart int
	tokens    []token
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		next := strings.IndexAny(l.src[l.pos:], "{@")
		if next < 0 {
			l.pos = len(l.src)
			return
		}
		l.pos += next

		var tok token
		var ok, fatal bool
		if l.src[l.pos] == '{' {
			tok, ok, fatal = l.lexInterp()
		} else {
			tok, ok, fatal = l.lexDirective()
		}
		if fatal {
			// Unterminated: everything from here on is literal.
			l.pos = len(l.src)
			return
		}
		if !ok {
			l.pos++
			continue
		}
		l.flushText(tok.start)
		l.tokens = append(l.tokens, tok)
		l.pos = tok.end
		l.textStart = tok.end
	}
}

func (l *lexer) flushText(end int) {
	if end > l.textStart {
		l.tokens = append(l.tokens, token{kind: tokText, start: l.textStart, end: end})
	}
	l.textStart = end
}

// lexInterp scans "{{ ... }}". ok is false when the brace does not open an
// interpolation; fatal is true when the closing braces are missing.
func (l *lexer) lexInterp() (tok token, ok, fatal bool) {
	start := l.pos
	if !strings.HasPrefix(l.src[start:], "{{") {
		return token{}, false, false
	}
	inner := start + 2
	end := scanUntil(l.src, inner, "}}")
	if end < 0 {
		return token{}, false, true
	}
	return token{kind: tokInterp, arg: l.src[inner:end], start: start, end: end + 2}, true, false
}

// lexDirective scans "@name" and, for opening directives, the parenthesized
// header. Unknown names are not directives.
func (l *lexer) lexDirective() (tok token, ok, fatal bool) {
	start := l.pos
	rest := l.src[start+1:]

	for _, d := range directives {
		if !strings.HasPrefix(rest, d.name) {
			continue
		}
		after := start + 1 + len(d.name)
		if !d.header {
			if after < len(l.src) && isNameByte(l.src[after]) {
				return token{}, false, false
			}
			return token{kind: d.kind, start: start, end: after}, true, false
		}

		open := skipBlanks(l.src, after)
		if open >= len(l.src) || l.src[open] != '(' {
			return token{}, false, false
		}
		closing := matchParen(l.src, open)
		if closing < 0 {
			return token{}, false, true
		}
		tok = token{kind: d.kind, arg: l.src[open+1 : closing], start: start, end: closing + 1}
		if d.kind == tokNative {
			return l.lexNativeBody(tok)
		}
		return tok, true, false
	}
	return token{}, false, false
}

// lexNativeBody captures the opaque body of a native block up to the first
// @endnative. Native blocks do not nest.
func (l *lexer) lexNativeBody(tok token) (token, bool, bool) {
	idx := strings.Index(l.src[tok.end:], endNative)
	if idx < 0 {
		return token{}, false, true
	}
	bodyEnd := tok.end + idx
	tok.body = l.src[tok.end:bodyEnd]
	tok.end = bodyEnd + len(endNative)
	return tok, true, false
}

// matchParen returns the index of the parenthesis closing the one at open,
// skipping quoted strings, or -1.
func matchParen(src string, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '"', '\'':
			end := skipQuoted(src, i)
			if end < 0 {
				return -1
			}
			i = end
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// scanUntil returns the index of the first delim at or after from that is
// not inside a quoted string, or -1.
func scanUntil(src string, from int, delim string) int {
	for i := from; i < len(src); i++ {
		c := src[i]
		if c == '"' || c == '\'' {
			end := skipQuoted(src, i)
			if end < 0 {
				// An unmatched quote is literal; fall back to a plain search.
				if idx := strings.Index(src[i:], delim); idx >= 0 {
					return i + idx
				}
				return -1
			}
			i = end
			continue
		}
		if strings.HasPrefix(src[i:], delim) {
			return i
		}
	}
	return -1
}

// skipQuoted returns the index of the quote closing the one at start, or -1.
func skipQuoted(src string, start int) int {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return -1
}

func skipBlanks(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return i
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c|0x20) >= 'a' && (c|0x20) <= 'z'
}
