package blade

import (
	"regexp"
	"strings"
)

// loopHeader is the fixed "collection as item" pattern of @foreach.
var loopHeader = regexp.MustCompile(`^\s*(.+?)\s+as\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*$`)

// Parse builds the syntax tree for a template. It never fails: unterminated
// directives and interpolations make the remainder of the input literal
// text, and closing tags with no matching opening are kept as text. Inside
// an open block, an unterminated directive of another kind leaves only its
// opening tag literal, so the enclosing block still closes.
// Parse is deterministic and consults no global state.
func Parse(src string) *Block {
	p := &parser{src: src, tokens: lex(src), tried: make(map[int]attempt)}
	children, _ := p.parseNodes(tokEOF)
	return &Block{Children: children}
}

type parser struct {
	src    string
	tokens []token
	pos    int

	// tried memoizes directive parses by opening token index. The result
	// depends only on the tokens after the opener, and reusing it keeps
	// rescans after a failed opener linear.
	tried map[int]attempt
}

type attempt struct {
	node Node
	next int
	ok   bool
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// parseNodes consumes tokens until closer (or EOF). closed reports whether
// closer was found; at the top level closer is tokEOF and closed is false.
func (p *parser) parseNodes(closer tokenKind) (nodes []Node, closed bool) {
	for {
		tok := p.next()
		switch tok.kind {
		case tokEOF:
			return nodes, false

		case tokText:
			nodes = appendText(nodes, p.src[tok.start:tok.end])

		case tokInterp:
			nodes = append(nodes, parseInterpolation(tok.arg))

		case tokNative:
			nodes = append(nodes, &Native{Dialect: strings.TrimSpace(tok.arg), Body: tok.body})

		case tokIf, tokUnless, tokForeach:
			at := p.pos - 1
			node, ok := p.directiveAt(at, tok)
			if !ok && closer != tokEOF {
				// Only the opener is literal; keep scanning for closer.
				nodes = appendText(nodes, p.src[tok.start:tok.end])
				p.pos = at + 1
				continue
			}
			if !ok {
				// Unterminated at the top level: the rest of the input is literal.
				nodes = appendText(nodes, p.src[tok.start:])
				p.pos = len(p.tokens) - 1
				return nodes, false
			}
			if text, isText := node.(*Text); isText {
				nodes = appendText(nodes, text.Literal)
			} else {
				nodes = append(nodes, node)
			}

		case closer:
			return nodes, true

		default:
			// A closing tag for a block that is not open here.
			nodes = appendText(nodes, p.src[tok.start:tok.end])
		}
	}
}

// directiveAt parses the directive opened by the token at index at, reusing
// an earlier result for the same opener.
func (p *parser) directiveAt(at int, open token) (Node, bool) {
	if a, seen := p.tried[at]; seen {
		p.pos = a.next
		return a.node, a.ok
	}
	node, ok := p.parseDirective(open)
	p.tried[at] = attempt{node: node, next: p.pos, ok: ok}
	return node, ok
}

// parseDirective parses the body of an opening directive. ok is false when
// its closing tag never appears.
func (p *parser) parseDirective(open token) (Node, bool) {
	closer := closerFor(open.kind)
	children, closed := p.parseNodes(closer)
	if !closed {
		return nil, false
	}

	switch open.kind {
	case tokIf:
		return &Conditional{Expr: strings.TrimSpace(open.arg), Children: children}, true
	case tokUnless:
		return &Conditional{Expr: strings.TrimSpace(open.arg), Negate: true, Children: children}, true
	default:
		m := loopHeader.FindStringSubmatch(open.arg)
		if m == nil {
			// Malformed loop header: keep the whole directive as text.
			end := p.tokens[p.pos-1].end
			return &Text{Literal: p.src[open.start:end]}, true
		}
		return &Loop{Collection: strings.TrimSpace(m[1]), Item: m[2], Children: children}, true
	}
}

func closerFor(kind tokenKind) tokenKind {
	switch kind {
	case tokIf:
		return tokEndIf
	case tokUnless:
		return tokEndUnless
	default:
		return tokEndForeach
	}
}

// appendText merges s into a trailing Text node so passthrough text is
// never fragmented.
func appendText(nodes []Node, s string) []Node {
	if s == "" {
		return nodes
	}
	if n := len(nodes); n > 0 {
		if last, ok := nodes[n-1].(*Text); ok {
			nodes[n-1] = &Text{Literal: last.Literal + s}
			return nodes
		}
	}
	return append(nodes, &Text{Literal: s})
}

// parseInterpolation splits "expr | f | g(arg)" on unescaped pipes. A pipe
// is a separator unless it is part of "||", escaped as "\|", or inside
// quotes or parentheses.
func parseInterpolation(raw string) *Interpolation {
	parts := splitPipes(raw)
	node := &Interpolation{Expr: strings.TrimSpace(parts[0])}
	for _, part := range parts[1:] {
		if spec, ok := parseFilter(part); ok {
			node.Filters = append(node.Filters, spec)
		}
	}
	return node
}

func splitPipes(raw string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\\' && i+1 < len(raw) && raw[i+1] == '|':
			cur.WriteByte('|')
			i++
		case c == '"' || c == '\'':
			end := skipQuoted(raw, i)
			if end < 0 {
				end = len(raw) - 1
			}
			cur.WriteString(raw[i : end+1])
			i = end
		case c == '(':
			depth++
			cur.WriteByte(c)
		case c == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteByte(c)
		case c == '|' && i+1 < len(raw) && raw[i+1] == '|':
			cur.WriteString("||")
			i++
		case c == '|' && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String())
}

// parseFilter reads "name" or "name(arg)". Empty segments are dropped.
func parseFilter(s string) (FilterSpec, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FilterSpec{}, false
	}
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return FilterSpec{Name: s}, true
	}
	return FilterSpec{
		Name:   strings.TrimSpace(s[:open]),
		Arg:    strings.TrimSpace(s[open+1 : len(s)-1]),
		HasArg: true,
	}, true
}
