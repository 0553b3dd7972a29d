package expressions

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Lookup ---

func TestScope_Lookup(t *testing.T) {
	scope := NewScopeFromMap(map[string]any{
		"user":  map[string]any{"name": "alice", "tags": []any{"a", "b"}},
		"count": 3,
	})

	assert.Equal(t, "alice", scope.Lookup("user.name").String())
	assert.Equal(t, "b", scope.Lookup("user.tags.1").String())
	assert.Equal(t, "3", scope.Lookup("count").String())
	assert.True(t, scope.Lookup("").IsNull())
	assert.True(t, scope.Lookup("user.email").IsNull())
	assert.True(t, scope.Lookup("count.value").IsNull())
}

func TestScope_NilScope(t *testing.T) {
	var scope *Scope
	assert.True(t, scope.Lookup("a").IsNull())
	assert.True(t, scope.Root().IsNull())
}

// --- Layering ---

func TestScope_WithShadowsWithoutMutatingParent(t *testing.T) {
	root := NewScopeFromMap(map[string]any{"x": "outer", "y": "kept"})

	child := root.With("x", String("inner"))
	assert.Equal(t, "inner", child.Lookup("x").String())
	assert.Equal(t, "kept", child.Lookup("y").String())
	assert.Equal(t, "outer", root.Lookup("x").String())
}

func TestScope_NestedBindings(t *testing.T) {
	root := NewScopeFromMap(map[string]any{"title": "T"})
	row := root.With("row", FromAny(map[string]any{"id": 1}))
	cell := row.With("cell", String("c"))

	assert.Equal(t, "1", cell.Lookup("row.id").String())
	assert.Equal(t, "c", cell.Lookup("cell").String())
	assert.Equal(t, "T", cell.Lookup("title").String())
	assert.True(t, row.Lookup("cell").IsNull())
}

func TestScope_SiblingsAreIsolated(t *testing.T) {
	root := NewScopeFromMap(nil)
	a := root.With("item", Number(1))
	b := root.With("item", Number(2))

	assert.Equal(t, "1", a.Lookup("item").String())
	assert.Equal(t, "2", b.Lookup("item").String())
	assert.True(t, root.Lookup("item").IsNull())
}

func TestScope_ConcurrentLayers(t *testing.T) {
	root := NewScopeFromMap(map[string]any{"base": 10})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := root.With("i", Number(float64(i)))
			v, err := Evaluate("base + i", s)
			assert.NoError(t, err)
			assert.Equal(t, float64(10+i), v.AsNumber())
		}(i)
	}
	wg.Wait()
}

// --- Data ---

func TestScope_Data(t *testing.T) {
	root := NewScopeFromMap(map[string]any{"a": 1, "item": "root"})
	s := root.With("item", String("outer")).With("item", String("inner")).With("b", Bool(true))

	data := s.Data()
	require.Len(t, data, 3)
	assert.Equal(t, float64(1), data["a"])
	assert.Equal(t, "inner", data["item"])
	assert.Equal(t, true, data["b"])

	// Root data stays untouched.
	assert.Equal(t, "root", root.Data()["item"])
}
