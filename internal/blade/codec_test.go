package blade

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const codecTemplate = `<h1>{{ title | trim | default("Untitled") }}</h1>
@if(user.admin)admin@endif@unless(user.admin)guest@endunless
@foreach(items as item)<li>{{ item.name | escape }}</li>@endforeach
@native(jq) .items | length @endnative`

func TestCodec_RoundTripPreservesTree(t *testing.T) {
	tree := Parse(codecTemplate)

	data, err := Encode("fp-1", tree)
	require.NoError(t, err)

	decoded, err := Decode(data, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, tree, decoded)
}

func TestCodec_DecodedTreeRendersIdentically(t *testing.T) {
	tree := Parse(codecTemplate)
	data, err := Encode("fp-2", tree)
	require.NoError(t, err)
	decoded, err := Decode(data, "fp-2")
	require.NoError(t, err)

	ctx := map[string]any{
		"title": "  Hello ",
		"user":  map[string]any{"admin": false},
		"items": []any{map[string]any{"name": "<a>"}},
	}
	r := NewRenderer()
	assert.Equal(t, r.RenderMap(context.Background(), tree, ctx), r.RenderMap(context.Background(), decoded, ctx))
}

func TestCodec_Format(t *testing.T) {
	data, err := Encode("abc", Parse(`x{{ a | truncate(2) }}@foreach(xs as x)@endforeach`))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"version": 1,
		"fingerprint": "abc",
		"root": {"kind": "block", "children": [
			{"kind": "text", "text": "x"},
			{"kind": "interp", "expr": "a", "filters": [{"name": "truncate", "arg": "2", "has_arg": true}]},
			{"kind": "foreach", "expr": "xs", "item": "x"}
		]}
	}`, string(data))
}

func TestCodec_DecodeRejects(t *testing.T) {
	valid, err := Encode("fp", Parse("{{ a }}"))
	require.NoError(t, err)

	tests := map[string]struct {
		data        string
		fingerprint string
	}{
		"garbage":         {"not json", "fp"},
		"fingerprint":     {string(valid), "other"},
		"version":         {`{"version":2,"fingerprint":"fp","root":{"kind":"block"}}`, "fp"},
		"root kind":       {`{"version":1,"fingerprint":"fp","root":{"kind":"text"}}`, "fp"},
		"unknown kind":    {`{"version":1,"fingerprint":"fp","root":{"kind":"block","children":[{"kind":"macro"}]}}`, "fp"},
		"loop without id": {`{"version":1,"fingerprint":"fp","root":{"kind":"block","children":[{"kind":"foreach","expr":"xs"}]}}`, "fp"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), tt.fingerprint)
			assert.Error(t, err)
		})
	}
}

func TestCodec_EmptyTemplate(t *testing.T) {
	data, err := Encode("e", Parse(""))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]any{"kind": "block"}, raw["root"])

	decoded, err := Decode(data, "e")
	require.NoError(t, err)
	assert.Empty(t, decoded.Children)
}

func TestCodec_EncodeRefusesInvalidUTF8(t *testing.T) {
	for _, src := range []string{
		"caf\xe9",
		"{{ name | default(\"\xff\") }}",
		"@if(a)\xc3@endif",
		"@native(jq) \"\xfe\" @endnative",
	} {
		_, err := Encode("fp", Parse(src))
		assert.ErrorIs(t, err, ErrNotUTF8, "source %q", src)
	}

	_, err := Encode("fp", Parse("café {{ a }}"))
	assert.NoError(t, err)
}
