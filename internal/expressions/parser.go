package expressions

import (
	"strconv"
	"strings"
)

// Grammar, lowest to highest precedence:
//
//	or         = and { "||" and }
//	and        = comparison { "&&" comparison }
//	comparison = additive [ ("==" | "!=" | ">" | "<" | ">=" | "<=") additive ]
//	additive   = multiplicative { ("+" | "-") multiplicative }
//	multiplicative = unary { ("*" | "/" | "%") unary }
//	unary      = ("!" | "-") unary | primary
//	primary    = "(" or ")" | string | number | true | false | null | path

type parser struct {
	src    string
	tokens []token
	pos    int
}

// parse compiles an expression into an AST. An empty expression is null.
func parse(src string) (node, error) {
	if strings.TrimSpace(src) == "" {
		return literal{v: Null()}, nil
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, newExprError(ErrUnbalancedParen, src, tok.start, tok.end, "unmatched closing parenthesis")
		}
		return nil, p.unexpected(tok)
	}
	return root, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return newExprError(ErrUnexpectedToken, p.src, tok.start, tok.end, "unexpected end of expression")
	}
	return newExprError(ErrUnexpectedToken, p.src, tok.start, tok.end, "unexpected token %q", p.src[tok.start:tok.end])
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logical{op: op.kind, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		op := p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = logical{op: op.kind, left: left, right: right}
	}
	return left, nil
}

// parseComparison allows a single comparison per level; "a < b < c" is rejected.
func (p *parser) parseComparison() (node, error) {
	start := p.peek().start
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if !isComparison(p.peek().kind) {
		return left, nil
	}
	op := p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); isComparison(tok.kind) {
		return nil, newExprError(ErrUnexpectedToken, p.src, tok.start, tok.end,
			"comparison operators are non-associative; unexpected %q", p.src[tok.start:tok.end])
	}
	return binary{op: op.kind, left: left, right: right, start: start, end: p.prevEnd()}, nil
}

func (p *parser) parseAdditive() (node, error) {
	start := p.peek().start
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == tokPlus || k == tokMinus; k = p.peek().kind {
		op := p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binary{op: op.kind, left: left, right: right, start: start, end: p.prevEnd()}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	start := p.peek().start
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == tokStar || k == tokSlash || k == tokPct; k = p.peek().kind {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: op.kind, left: left, right: right, start: start, end: p.prevEnd()}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if k := p.peek().kind; k == tokBang || k == tokMinus {
		op := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unary{op: op.kind, operand: operand, start: op.start, end: p.prevEnd()}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing := p.peek()
		if closing.kind != tokRParen {
			if closing.kind == tokEOF {
				return nil, newExprError(ErrUnbalancedParen, p.src, tok.start, tok.end, "unclosed parenthesis")
			}
			return nil, p.unexpected(closing)
		}
		p.next()
		return inner, nil
	case tokRParen:
		return nil, newExprError(ErrUnbalancedParen, p.src, tok.start, tok.end, "unmatched closing parenthesis")
	case tokString:
		return literal{v: String(tok.text)}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, newExprError(ErrInvalidNumber, p.src, tok.start, tok.end, "invalid numeric literal %q", tok.text)
		}
		return literal{v: Number(f)}, nil
	case tokTrue:
		return literal{v: Bool(true)}, nil
	case tokFalse:
		return literal{v: Bool(false)}, nil
	case tokNull:
		return literal{v: Null()}, nil
	case tokIdent:
		return path{raw: tok.text, segments: strings.Split(tok.text, ".")}, nil
	default:
		return nil, p.unexpected(tok)
	}
}

// prevEnd is the end offset of the most recently consumed token.
func (p *parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	return p.tokens[p.pos-1].end
}

func isComparison(k tokenKind) bool {
	switch k {
	case tokEq, tokNotEq, tokGt, tokLt, tokGtEq, tokLtEq:
		return true
	}
	return false
}
