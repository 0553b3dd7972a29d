package native

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELDialect evaluates bodies as Common Expression Language. The render
// context is bound to the variable data:
//
//	@native(cel) data.items.size() > 2 ? "many" : "few" @endnative
type CELDialect struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

func NewCELDialect() (*CELDialect, error) {
	env, err := cel.NewEnv(cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	d := &CELDialect{env: env}
	d.programs = newProgramCache(d.compile)
	return d, nil
}

func (d *CELDialect) compile(body string) (cel.Program, error) {
	ast, iss := d.env.Compile(body)
	if iss != nil && iss.Err() != nil {
		return nil, compileError("cel", body, iss.Err())
	}
	// Interrupt checks let ContextEval stop comprehensions when ctx ends.
	prg, err := d.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, compileError("cel", body, err)
	}
	return prg, nil
}

func (d *CELDialect) Name() string { return "cel" }

func (d *CELDialect) Execute(ctx context.Context, body string, data map[string]any) (any, error) {
	if body == "" {
		return nil, emptyBody("cel")
	}
	prg, err := d.programs.get(body)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	val, _, err := prg.ContextEval(ctx, map[string]any{"data": data})
	if err != nil {
		return nil, runError("cel", body, err)
	}
	return val.Value(), nil
}

var _ Dialect = (*CELDialect)(nil)
