package expressions

import "strings"

// Scope is the data a template is rendered against. It enforces:
//   - The root context is immutable for the duration of a render.
//   - Loop bindings are layered on top of the parent (With), never written into it.
//   - Resolution order: innermost binding -> outer bindings -> root object.
//
// A Scope is safe for concurrent use because nothing in it is ever mutated.
type Scope struct {
	parent *Scope
	name   string
	value  Value
	root   Value
}

// NewScope creates a root scope over the given context value.
func NewScope(root Value) *Scope {
	return &Scope{root: root}
}

// NewScopeFromMap creates a root scope from decoded JSON-like data.
func NewScopeFromMap(data map[string]any) *Scope {
	return NewScope(FromAny(data))
}

// With returns a child scope in which name resolves to v. The receiver is
// left untouched, so sibling iterations never observe each other's bindings.
func (s *Scope) With(name string, v Value) *Scope {
	return &Scope{parent: s, name: name, value: v, root: s.Root()}
}

// Root returns the root context value.
func (s *Scope) Root() Value {
	if s == nil {
		return Null()
	}
	return s.root
}

// Lookup resolves a dotted path such as "user.address.city" or "items.0".
// Unresolvable paths yield null.
func (s *Scope) Lookup(path string) Value {
	if path == "" {
		return Null()
	}
	return s.resolve(strings.Split(path, "."))
}

func (s *Scope) resolve(segments []string) Value {
	if s == nil || len(segments) == 0 {
		return Null()
	}

	head := segments[0]
	current, ok := s.binding(head)
	if !ok {
		current, ok = s.root.Field(head)
		if !ok {
			return Null()
		}
	}

	for _, seg := range segments[1:] {
		next, found := current.Field(seg)
		if !found {
			return Null()
		}
		current = next
	}
	return current
}

// binding walks the layer chain for a loop-bound name.
func (s *Scope) binding(name string) (Value, bool) {
	for layer := s; layer != nil; layer = layer.parent {
		if layer.parent != nil && layer.name == name {
			return layer.value, true
		}
	}
	return Null(), false
}

// Data flattens the scope into plain Go data: the root object with every
// visible binding overlaid. Used by extensions that need a JSON-like input.
func (s *Scope) Data() map[string]any {
	out := map[string]any{}
	if root, ok := s.Root().Any().(map[string]any); ok {
		for k, v := range root {
			out[k] = v
		}
	}

	var layers []*Scope
	for layer := s; layer != nil && layer.parent != nil; layer = layer.parent {
		layers = append(layers, layer)
	}
	// Outermost first so inner bindings win.
	for i := len(layers) - 1; i >= 0; i-- {
		out[layers[i].name] = layers[i].value.Any()
	}
	return out
}
