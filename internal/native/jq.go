package native

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"
)

// JQDialect runs bodies as jq programs over the render context. Several
// outputs come back as a list, none as null. $ENV is always empty.
type JQDialect struct {
	programs *programCache[*gojq.Code]
}

func NewJQDialect() *JQDialect {
	return &JQDialect{programs: newProgramCache(compileJQ)}
}

func compileJQ(body string) (*gojq.Code, error) {
	q, err := gojq.Parse(body)
	if err != nil {
		return nil, compileError("jq", body, err)
	}
	code, err := gojq.Compile(q, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, compileError("jq", body, err)
	}
	return code, nil
}

func (d *JQDialect) Name() string { return "jq" }

func (d *JQDialect) Execute(ctx context.Context, body string, data map[string]any) (any, error) {
	if body == "" {
		return nil, emptyBody("jq")
	}
	code, err := d.programs.get(body)
	if err != nil {
		return nil, err
	}

	var outs []any
	iter := code.RunWithContext(ctx, jqValue(data))
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, runError("jq", body, err)
		}
		outs = append(outs, v)
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	}
	return outs, nil
}

// jqValue converts a render context to the value kinds gojq accepts.
// Numbers become float64; anything gojq does not know goes through JSON.
func jqValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case map[string]any:
		if x == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jqValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jqValue(e)
		}
		return out
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	return generic
}

var _ Dialect = (*JQDialect)(nil)
