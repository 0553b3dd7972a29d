package native

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/breeze/pkg/schema"
)

func TestProgramCache_CompilesOncePerBody(t *testing.T) {
	calls := 0
	c := newProgramCache(func(body string) (int, error) {
		calls++
		return len(body), nil
	})

	for i := 0; i < 3; i++ {
		n, err := c.get("abc")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.size())
}

func TestProgramCache_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	c := newProgramCache(func(string) (int, error) {
		calls++
		return 0, errors.New("bad")
	})
	_, err := c.get("x")
	require.Error(t, err)
	_, err = c.get("x")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Zero(t, c.size())
}

func TestProgramCache_ResetsWhenFull(t *testing.T) {
	c := newProgramCache(func(body string) (string, error) { return body, nil })
	for i := 0; i < maxPrograms; i++ {
		_, err := c.get(fmt.Sprint(i))
		require.NoError(t, err)
	}
	assert.Equal(t, maxPrograms, c.size())

	_, err := c.get("one more")
	require.NoError(t, err)
	assert.Equal(t, 1, c.size())
}

func TestDialectErrors(t *testing.T) {
	err := compileError("jq", ".[", errors.New("unexpected EOF"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), `jq: cannot compile ".["`)

	err = runError("expr", "a.b", errors.New("nil"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeExecution))

	assert.True(t, schema.HasCode(emptyBody("cel"), schema.ErrCodeValidation))
}

func TestJQDialect_NormalizesInput(t *testing.T) {
	d := NewJQDialect()
	ctx := context.Background()

	out, err := d.Execute(ctx, ".n + .i", map[string]any{"n": json.Number("1.5"), "i": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 3.5, out)

	out, err = d.Execute(ctx, ".tags | length", map[string]any{"tags": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, out)

	out, err = d.Execute(ctx, ".", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out)
}
