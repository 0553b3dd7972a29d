// Package blade parses and renders Blade-style templates: {{ }} interpolation
// with filters, @if / @unless conditionals, @foreach loops and opt-in
// @native blocks.
//
// A parsed tree is immutable. Parse never fails; malformed directives
// degrade to literal text. Rendering never fails either; evaluation errors
// become inline diagnostics at the failing node.
package blade

// NodeKind identifies a node variant. The string values are the kinds used
// in serialized artifacts.
type NodeKind string

const (
	KindBlock       NodeKind = "block"
	KindText        NodeKind = "text"
	KindInterp      NodeKind = "interp"
	KindConditional NodeKind = "if"
	KindLoop        NodeKind = "foreach"
	KindNative      NodeKind = "native"
)

// Node is one element of a syntax tree. Nodes and their children must not
// be modified after construction; trees are shared between concurrent renders.
type Node interface {
	Kind() NodeKind
}

// Block is an ordered sequence of nodes. The root of every tree is a Block.
type Block struct {
	Children []Node
}

// Text is literal passthrough output.
type Text struct {
	Literal string
}

// Interpolation evaluates Expr and pipes its display string through Filters.
type Interpolation struct {
	Expr    string
	Filters []FilterSpec
}

// Conditional renders Children when the truthiness of Expr differs from Negate.
// Negate is false for @if and true for @unless.
type Conditional struct {
	Expr     string
	Negate   bool
	Children []Node
}

// Loop renders Children once per element of the array Collection evaluates
// to, with Item bound to the element.
type Loop struct {
	Collection string
	Item       string
	Children   []Node
}

// Native is an opaque block handed to a NativeExecutor by dialect name.
type Native struct {
	Dialect string
	Body    string
}

// FilterSpec names a filter and its optional raw argument text.
type FilterSpec struct {
	Name   string
	Arg    string
	HasArg bool
}

func (*Block) Kind() NodeKind         { return KindBlock }
func (*Text) Kind() NodeKind          { return KindText }
func (*Interpolation) Kind() NodeKind { return KindInterp }
func (*Conditional) Kind() NodeKind   { return KindConditional }
func (*Loop) Kind() NodeKind          { return KindLoop }
func (*Native) Kind() NodeKind        { return KindNative }

// Walk calls fn for n and every descendant, depth-first in document order.
// Returning false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range children(n) {
		Walk(child, fn)
	}
}

func children(n Node) []Node {
	switch v := n.(type) {
	case *Block:
		return v.Children
	case *Conditional:
		return v.Children
	case *Loop:
		return v.Children
	default:
		return nil
	}
}

// Count returns the number of nodes in the tree rooted at n, n included.
func Count(n Node) int {
	total := 0
	Walk(n, func(Node) bool {
		total++
		return true
	})
	return total
}
