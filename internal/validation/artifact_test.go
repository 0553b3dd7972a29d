package validation

import (
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/rendis/breeze/internal/blade"
	"github.com/rendis/breeze/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFingerprint = strings.Repeat("ab", 32)

func newValidator(t *testing.T) *ArtifactValidator {
	t.Helper()
	v, err := NewArtifactValidator()
	require.NoError(t, err)
	return v
}

func TestValidate_EncodedTreeIsValid(t *testing.T) {
	v := newValidator(t)
	tree := blade.Parse(`@foreach(xs as x)@if(x.ok){{ x.name | upper | truncate(3) }}@endif@endforeach@unless(a)b@endunless@native(jq).@endnative`)

	data, err := blade.Encode(testFingerprint, tree)
	require.NoError(t, err)
	assert.NoError(t, v.Validate(data))
}

func TestValidate_Rejects(t *testing.T) {
	v := newValidator(t)
	fp := testFingerprint

	tests := map[string]string{
		"empty":             ``,
		"not json":          `{`,
		"missing root":      `{"version":1,"fingerprint":"` + fp + `"}`,
		"bad version":       `{"version":2,"fingerprint":"` + fp + `","root":{"kind":"block"}}`,
		"bad fingerprint":   `{"version":1,"fingerprint":"xyz","root":{"kind":"block"}}`,
		"root not block":    `{"version":1,"fingerprint":"` + fp + `","root":{"kind":"text"}}`,
		"unknown kind":      `{"version":1,"fingerprint":"` + fp + `","root":{"kind":"block","children":[{"kind":"macro"}]}}`,
		"foreach no item":   `{"version":1,"fingerprint":"` + fp + `","root":{"kind":"block","children":[{"kind":"foreach","expr":"xs"}]}}`,
		"bad item name":     `{"version":1,"fingerprint":"` + fp + `","root":{"kind":"block","children":[{"kind":"foreach","expr":"xs","item":"a b"}]}}`,
		"extra field":       `{"version":1,"fingerprint":"` + fp + `","root":{"kind":"block"},"mtime":1}`,
		"filter without id": `{"version":1,"fingerprint":"` + fp + `","root":{"kind":"block","children":[{"kind":"interp","expr":"a","filters":[{"arg":"1"}]}]}}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			err := v.Validate([]byte(doc))
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
		})
	}
}

func TestValidate_ReportsViolations(t *testing.T) {
	v := newValidator(t)
	err := v.Validate([]byte(`{"version":2,"fingerprint":"nope","root":{"kind":"block"}}`))
	require.Error(t, err)

	var be *schema.BreezeError
	require.ErrorAs(t, err, &be)
	violations, ok := be.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
	assert.True(t, slices.IsSorted(violations))
	assert.Contains(t, be.Message, "schema violations")
	for _, v := range violations {
		assert.True(t, strings.HasPrefix(v, "/"), v)
	}
}

func TestNewArtifactValidator_SharesCompiledSchema(t *testing.T) {
	a, b := newValidator(t), newValidator(t)
	assert.Same(t, a.schema, b.schema)
}

func TestValidate_Concurrent(t *testing.T) {
	v := newValidator(t)
	data, err := blade.Encode(testFingerprint, blade.Parse("{{ a }}"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, v.Validate(data))
		}()
	}
	wg.Wait()
}
