package expressions

import (
	"fmt"
	"unicode/utf8"
)

// ErrorKind classifies expression failures.
type ErrorKind string

const (
	ErrUnexpectedToken    ErrorKind = "unexpected_token"
	ErrUnbalancedParen    ErrorKind = "unbalanced_paren"
	ErrInvalidNumber      ErrorKind = "invalid_number"
	ErrUnterminatedString ErrorKind = "unterminated_string"
	ErrDivisionByZero     ErrorKind = "division_by_zero"
	ErrTypeMismatch       ErrorKind = "type_mismatch"
)

// ExpressionError is raised for malformed expressions and for evaluation
// failures. Offset is a character (rune) offset into Expr; Substring is the
// offending part of the expression.
type ExpressionError struct {
	Kind      ErrorKind
	Expr      string
	Substring string
	Offset    int
	Message   string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("%s in %q at offset %d", e.Message, e.Expr, e.Offset)
}

// newExprError builds an ExpressionError from byte positions within expr.
func newExprError(kind ErrorKind, expr string, start, end int, format string, args ...any) *ExpressionError {
	start = clamp(start, 0, len(expr))
	end = clamp(end, start, len(expr))
	return &ExpressionError{
		Kind:      kind,
		Expr:      expr,
		Substring: expr[start:end],
		Offset:    utf8.RuneCountInString(expr[:start]),
		Message:   fmt.Sprintf(format, args...),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
