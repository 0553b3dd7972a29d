package expressions

import (
	"math"
	"strings"
)

// node is a compiled expression. Nodes are immutable once built.
type node interface {
	eval(src string, scope *Scope) (Value, error)
}

type literal struct{ v Value }

func (n literal) eval(string, *Scope) (Value, error) { return n.v, nil }

type path struct {
	raw      string
	segments []string
}

func (n path) eval(_ string, scope *Scope) (Value, error) {
	return scope.resolve(n.segments), nil
}

type unary struct {
	op         tokenKind
	operand    node
	start, end int
}

func (n unary) eval(src string, scope *Scope) (Value, error) {
	v, err := n.operand.eval(src, scope)
	if err != nil {
		return Null(), err
	}
	if n.op == tokBang {
		return Bool(!v.Truthy()), nil
	}
	f, ok := v.ToNumber()
	if !ok {
		return Null(), newExprError(ErrTypeMismatch, src, n.start, n.end, "cannot negate %s value", v.Kind())
	}
	return Number(-f), nil
}

// logical short-circuits and always yields a boolean.
type logical struct {
	op          tokenKind
	left, right node
}

func (n logical) eval(src string, scope *Scope) (Value, error) {
	l, err := n.left.eval(src, scope)
	if err != nil {
		return Null(), err
	}
	if n.op == tokOr && l.Truthy() {
		return Bool(true), nil
	}
	if n.op == tokAnd && !l.Truthy() {
		return Bool(false), nil
	}
	r, err := n.right.eval(src, scope)
	if err != nil {
		return Null(), err
	}
	return Bool(r.Truthy()), nil
}

type binary struct {
	op          tokenKind
	left, right node
	start, end  int
}

func (n binary) eval(src string, scope *Scope) (Value, error) {
	l, err := n.left.eval(src, scope)
	if err != nil {
		return Null(), err
	}
	r, err := n.right.eval(src, scope)
	if err != nil {
		return Null(), err
	}

	switch n.op {
	case tokEq:
		return Bool(l.Equal(r)), nil
	case tokNotEq:
		return Bool(!l.Equal(r)), nil
	case tokGt, tokLt, tokGtEq, tokLtEq:
		return Bool(compare(n.op, l, r)), nil
	case tokPlus:
		if l.Kind() == KindNumber && r.Kind() == KindNumber {
			return Number(l.AsNumber() + r.AsNumber()), nil
		}
		return String(l.String() + r.String()), nil
	}

	a, ok := l.ToNumber()
	if !ok {
		return Null(), n.typeErr(src, l)
	}
	b, ok := r.ToNumber()
	if !ok {
		return Null(), n.typeErr(src, r)
	}

	switch n.op {
	case tokMinus:
		return Number(a - b), nil
	case tokStar:
		return Number(a * b), nil
	case tokSlash:
		if b == 0 {
			return Null(), newExprError(ErrDivisionByZero, src, n.start, n.end, "division by zero")
		}
		return Number(a / b), nil
	case tokPct:
		if b == 0 {
			return Null(), newExprError(ErrDivisionByZero, src, n.start, n.end, "modulo by zero")
		}
		return Number(math.Mod(a, b)), nil
	}
	return Null(), newExprError(ErrUnexpectedToken, src, n.start, n.end, "unsupported operator %s", n.op)
}

func (n binary) typeErr(src string, v Value) error {
	return newExprError(ErrTypeMismatch, src, n.start, n.end,
		"operator %s needs numeric operands, got %s", n.op, v.Kind())
}

// compare orders two values numerically when both convert to numbers,
// otherwise lexicographically by display string.
func compare(op tokenKind, l, r Value) bool {
	var c int
	a, okA := l.ToNumber()
	b, okB := r.ToNumber()
	if okA && okB && !(l.Kind() == KindString && r.Kind() == KindString) {
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
	} else {
		c = strings.Compare(l.String(), r.String())
	}

	switch op {
	case tokGt:
		return c > 0
	case tokLt:
		return c < 0
	case tokGtEq:
		return c >= 0
	default:
		return c <= 0
	}
}
