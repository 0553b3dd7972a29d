package blade

import (
	"math"
	"strings"
	"sync"

	"github.com/rendis/breeze/internal/expressions"
)

// FilterArg is the argument of one filter application. Value evaluates Raw
// as an expression against the current scope, falling back to Raw itself
// when it does not evaluate.
type FilterArg struct {
	Raw     string
	Present bool
	Value   func() expressions.Value
}

// String returns the display form of the evaluated argument.
func (a FilterArg) String() string {
	if !a.Present {
		return ""
	}
	return a.Value().String()
}

// FilterFunc transforms the current output string.
type FilterFunc func(in string, arg FilterArg) string

// Filters is a registry of named filters. Unknown names are ignored at
// apply time. Safe for concurrent use.
type Filters struct {
	mu    sync.RWMutex
	funcs map[string]FilterFunc
}

// NewFilters returns a registry holding the built-in filters:
// escape, upper, lower, trim, truncate, default and format.
func NewFilters() *Filters {
	return &Filters{funcs: map[string]FilterFunc{
		"escape":   escapeFilter,
		"upper":    upperFilter,
		"lower":    lowerFilter,
		"trim":     trimFilter,
		"truncate": truncateFilter,
		"default":  defaultFilter,
		"format":   formatFilter,
	}}
}

// Register adds or replaces a filter.
func (f *Filters) Register(name string, fn FilterFunc) {
	f.mu.Lock()
	f.funcs[name] = fn
	f.mu.Unlock()
}

// Lookup returns the filter registered under name.
func (f *Filters) Lookup(name string) (FilterFunc, bool) {
	f.mu.RLock()
	fn, ok := f.funcs[name]
	f.mu.RUnlock()
	return fn, ok
}

// Apply runs specs over value strictly left to right, each filter consuming
// the previous filter's output. Arguments are evaluated lazily with eval.
func (f *Filters) Apply(value string, specs []FilterSpec, scope *expressions.Scope, eval *expressions.Evaluator) string {
	out := value
	for _, spec := range specs {
		fn, ok := f.Lookup(spec.Name)
		if !ok {
			continue
		}
		out = fn(out, newFilterArg(spec, scope, eval))
	}
	return out
}

func newFilterArg(spec FilterSpec, scope *expressions.Scope, eval *expressions.Evaluator) FilterArg {
	arg := FilterArg{Raw: spec.Arg, Present: spec.HasArg}
	arg.Value = sync.OnceValue(func() expressions.Value {
		if !spec.HasArg {
			return expressions.Null()
		}
		v, err := eval.Evaluate(spec.Arg, scope)
		if err != nil {
			return expressions.String(spec.Arg)
		}
		return v
	})
	return arg
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeFilter(in string, _ FilterArg) string {
	return htmlEscaper.Replace(in)
}

// upperFilter and lowerFilter fold ASCII letters only.
func upperFilter(in string, _ FilterArg) string {
	return mapASCII(in, 'a', 'z', -32)
}

func lowerFilter(in string, _ FilterArg) string {
	return mapASCII(in, 'A', 'Z', 32)
}

func mapASCII(in string, lo, hi byte, delta int) string {
	b := []byte(in)
	for i, c := range b {
		if c >= lo && c <= hi {
			b[i] = byte(int(c) + delta)
		}
	}
	return string(b)
}

func trimFilter(in string, _ FilterArg) string {
	return strings.TrimSpace(in)
}

// truncateFilter hard-cuts to n characters. A missing, negative or
// non-numeric n leaves the input unchanged.
func truncateFilter(in string, arg FilterArg) string {
	if !arg.Present {
		return in
	}
	n, ok := arg.Value().ToNumber()
	if !ok || n < 0 || math.IsNaN(n) {
		return in
	}
	limit := int(n)
	count := 0
	for i := range in {
		if count == limit {
			return in[:i]
		}
		count++
	}
	return in
}

// defaultFilter substitutes its argument only when the current string is empty.
func defaultFilter(in string, arg FilterArg) string {
	if in != "" {
		return in
	}
	return arg.String()
}

// formatFilter substitutes the value into the first "{}" or "{0}" of the
// template argument. A template without a placeholder is returned as is.
func formatFilter(in string, arg FilterArg) string {
	if !arg.Present {
		return in
	}
	tpl := arg.String()
	brace := strings.Index(tpl, "{}")
	zero := strings.Index(tpl, "{0}")
	switch {
	case brace >= 0 && (zero < 0 || brace < zero):
		return tpl[:brace] + in + tpl[brace+2:]
	case zero >= 0:
		return tpl[:zero] + in + tpl[zero+3:]
	default:
		return tpl
	}
}
