package blade

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ArtifactVersion is the serialized tree format version.
const ArtifactVersion = 1

// Artifact is the durable form of a parsed template, keyed by the
// fingerprint of the source bytes.
type Artifact struct {
	Version     int         `json:"version"`
	Fingerprint string      `json:"fingerprint"`
	Root        encodedNode `json:"root"`
}

type encodedNode struct {
	Kind     NodeKind        `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Expr     string          `json:"expr,omitempty"`
	Negate   bool            `json:"negate,omitempty"`
	Item     string          `json:"item,omitempty"`
	Dialect  string          `json:"dialect,omitempty"`
	Filters  []encodedFilter `json:"filters,omitempty"`
	Children []encodedNode   `json:"children,omitempty"`
}

type encodedFilter struct {
	Name   string `json:"name"`
	Arg    string `json:"arg,omitempty"`
	HasArg bool   `json:"has_arg,omitempty"`
}

// ErrNotUTF8 is returned by Encode for trees holding invalid UTF-8, which
// JSON would silently rewrite to U+FFFD.
var ErrNotUTF8 = errors.New("artifact text is not valid UTF-8")

// Encode serializes a tree into artifact JSON.
func Encode(fingerprint string, root *Block) ([]byte, error) {
	valid := true
	Walk(root, func(n Node) bool {
		valid = valid && validUTF8(n)
		return valid
	})
	if !valid {
		return nil, ErrNotUTF8
	}
	return json.Marshal(Artifact{
		Version:     ArtifactVersion,
		Fingerprint: fingerprint,
		Root:        encodeNode(root),
	})
}

// Decode rebuilds a tree from artifact JSON. The artifact must carry the
// expected fingerprint and the current version.
func Decode(data []byte, fingerprint string) (*Block, error) {
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if art.Version != ArtifactVersion {
		return nil, fmt.Errorf("decode artifact: unsupported version %d", art.Version)
	}
	if art.Fingerprint != fingerprint {
		return nil, fmt.Errorf("decode artifact: fingerprint mismatch")
	}
	if art.Root.Kind != KindBlock {
		return nil, fmt.Errorf("decode artifact: root kind %q, want %q", art.Root.Kind, KindBlock)
	}
	children, err := decodeNodes(art.Root.Children)
	if err != nil {
		return nil, err
	}
	return &Block{Children: children}, nil
}

func validUTF8(n Node) bool {
	switch v := n.(type) {
	case *Text:
		return utf8.ValidString(v.Literal)
	case *Interpolation:
		for _, f := range v.Filters {
			if !utf8.ValidString(f.Name) || !utf8.ValidString(f.Arg) {
				return false
			}
		}
		return utf8.ValidString(v.Expr)
	case *Conditional:
		return utf8.ValidString(v.Expr)
	case *Loop:
		return utf8.ValidString(v.Collection) && utf8.ValidString(v.Item)
	case *Native:
		return utf8.ValidString(v.Dialect) && utf8.ValidString(v.Body)
	}
	return true
}

func encodeNode(n Node) encodedNode {
	switch v := n.(type) {
	case *Block:
		return encodedNode{Kind: KindBlock, Children: encodeNodes(v.Children)}
	case *Text:
		return encodedNode{Kind: KindText, Text: v.Literal}
	case *Interpolation:
		return encodedNode{Kind: KindInterp, Expr: v.Expr, Filters: encodeFilters(v.Filters)}
	case *Conditional:
		return encodedNode{Kind: KindConditional, Expr: v.Expr, Negate: v.Negate, Children: encodeNodes(v.Children)}
	case *Loop:
		return encodedNode{Kind: KindLoop, Expr: v.Collection, Item: v.Item, Children: encodeNodes(v.Children)}
	case *Native:
		return encodedNode{Kind: KindNative, Dialect: v.Dialect, Text: v.Body}
	default:
		return encodedNode{Kind: KindText}
	}
}

func encodeNodes(nodes []Node) []encodedNode {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]encodedNode, len(nodes))
	for i, n := range nodes {
		out[i] = encodeNode(n)
	}
	return out
}

func encodeFilters(specs []FilterSpec) []encodedFilter {
	if len(specs) == 0 {
		return nil
	}
	out := make([]encodedFilter, len(specs))
	for i, s := range specs {
		out[i] = encodedFilter{Name: s.Name, Arg: s.Arg, HasArg: s.HasArg}
	}
	return out
}

func decodeNodes(encoded []encodedNode) ([]Node, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	nodes := make([]Node, len(encoded))
	for i, e := range encoded {
		n, err := decodeNode(e)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func decodeNode(e encodedNode) (Node, error) {
	switch e.Kind {
	case KindText:
		return &Text{Literal: e.Text}, nil
	case KindInterp:
		var filters []FilterSpec
		for _, f := range e.Filters {
			filters = append(filters, FilterSpec{Name: f.Name, Arg: f.Arg, HasArg: f.HasArg})
		}
		return &Interpolation{Expr: e.Expr, Filters: filters}, nil
	case KindNative:
		return &Native{Dialect: e.Dialect, Body: e.Text}, nil
	}

	children, err := decodeNodes(e.Children)
	if err != nil {
		return nil, err
	}
	switch e.Kind {
	case KindConditional:
		return &Conditional{Expr: e.Expr, Negate: e.Negate, Children: children}, nil
	case KindLoop:
		if e.Item == "" {
			return nil, fmt.Errorf("decode artifact: foreach node without item name")
		}
		return &Loop{Collection: e.Expr, Item: e.Item, Children: children}, nil
	default:
		return nil, fmt.Errorf("decode artifact: unknown node kind %q", e.Kind)
	}
}
