package native

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprDialect evaluates bodies with expr-lang/expr. Each top-level key of the
// render context is a variable, and expr builtins such as filter, map, sum,
// ?? and ?. are available.
type ExprDialect struct {
	programs *programCache[*vm.Program]
}

func NewExprDialect() *ExprDialect {
	return &ExprDialect{programs: newProgramCache(compileExpr)}
}

// compileExpr compiles without a typed env since contexts differ per render.
func compileExpr(body string) (*vm.Program, error) {
	prg, err := expr.Compile(body, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, compileError("expr", body, err)
	}
	return prg, nil
}

func (d *ExprDialect) Name() string { return "expr" }

func (d *ExprDialect) Execute(_ context.Context, body string, data map[string]any) (any, error) {
	if body == "" {
		return nil, emptyBody("expr")
	}
	prg, err := d.programs.get(body)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := expr.Run(prg, data)
	if err != nil {
		return nil, runError("expr", body, err)
	}
	return out, nil
}

var _ Dialect = (*ExprDialect)(nil)
