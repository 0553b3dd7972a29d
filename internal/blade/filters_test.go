package blade

import (
	"sync"
	"testing"

	"github.com/rendis/breeze/internal/expressions"
	"github.com/stretchr/testify/assert"
)

func applyFilters(value string, data map[string]any, specs ...FilterSpec) string {
	return NewFilters().Apply(value, specs, expressions.NewScopeFromMap(data), expressions.NewEvaluator(0))
}

func arg(name, raw string) FilterSpec {
	return FilterSpec{Name: name, Arg: raw, HasArg: true}
}

func TestFilters_Builtins(t *testing.T) {
	tests := []struct {
		name string
		in   string
		spec FilterSpec
		want string
	}{
		{"escape", `<a href="x">Tom & 'Jerry'</a>`, FilterSpec{Name: "escape"}, "&lt;a href=&quot;x&quot;&gt;Tom &amp; &#39;Jerry&#39;&lt;/a&gt;"},
		{"upper", "hello wörld", FilterSpec{Name: "upper"}, "HELLO WöRLD"},
		{"lower", "HeLLo ÄB", FilterSpec{Name: "lower"}, "hello Äb"},
		{"trim", " \t hi \n", FilterSpec{Name: "trim"}, "hi"},
		{"truncate", "abcdef", arg("truncate", "3"), "abc"},
		{"truncate runes", "héllo", arg("truncate", "2"), "hé"},
		{"truncate longer", "abc", arg("truncate", "10"), "abc"},
		{"truncate zero", "abc", arg("truncate", "0"), ""},
		{"truncate bad arg", "abc", arg("truncate", "x y"), "abc"},
		{"truncate no arg", "abc", FilterSpec{Name: "truncate"}, "abc"},
		{"default on empty", "", arg("default", `"none"`), "none"},
		{"default keeps value", "0", arg("default", `"none"`), "0"},
		{"default keeps false", "false", arg("default", `"none"`), "false"},
		{"format braces", "Bob", arg("format", `"Hello, {}!"`), "Hello, Bob!"},
		{"format zero", "Bob", arg("format", `"Hi {0} and {0}"`), "Hi Bob and {0}"},
		{"format first placeholder", "v", arg("format", `"{0} {}"`), "v {}"},
		{"format raw fallback", "v", arg("format", "[{}]"), "[v]"},
		{"format no placeholder", "v", arg("format", `"static"`), "static"},
		{"unknown", "same", FilterSpec{Name: "nope"}, "same"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applyFilters(tt.in, nil, tt.spec))
		})
	}
}

func TestFilters_ArgumentIsExpression(t *testing.T) {
	data := map[string]any{"limit": 2, "fallback": "guest"}

	assert.Equal(t, "ab", applyFilters("abcdef", data, arg("truncate", "limit")))
	assert.Equal(t, "abcd", applyFilters("abcdef", data, arg("truncate", "limit * 2")))
	assert.Equal(t, "guest", applyFilters("", data, arg("default", "fallback")))
	assert.Equal(t, "guest!", applyFilters("", data, arg("default", `fallback + "!"`)))
}

func TestFilters_LeftToRight(t *testing.T) {
	// upper keeps the padding, trim then removes it.
	assert.Equal(t, "HI", applyFilters("  hi  ", nil, FilterSpec{Name: "upper"}, FilterSpec{Name: "trim"}))

	// Order changes the outcome.
	assert.Equal(t, "AB", applyFilters("abc", nil, arg("truncate", "2"), FilterSpec{Name: "upper"}))
	assert.Equal(t, "&lt;b&gt;", applyFilters("", nil, arg("default", `"<b>"`), FilterSpec{Name: "escape"}))
	assert.Equal(t, "<b>", applyFilters("", nil, FilterSpec{Name: "escape"}, arg("default", `"<b>"`)))
}

func TestFilters_Register(t *testing.T) {
	f := NewFilters()
	f.Register("reverse", func(in string, _ FilterArg) string {
		r := []rune(in)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r)
	})

	out := f.Apply("abc", []FilterSpec{{Name: "reverse"}, {Name: "upper"}}, expressions.NewScope(expressions.Null()), expressions.NewEvaluator(0))
	assert.Equal(t, "CBA", out)
}

func TestFilters_ConcurrentApply(t *testing.T) {
	f := NewFilters()
	eval := expressions.NewEvaluator(0)
	scope := expressions.NewScopeFromMap(map[string]any{"n": 3})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.Apply(" abcdef ", []FilterSpec{{Name: "trim"}, arg("truncate", "n"), {Name: "upper"}}, scope, eval)
			assert.Equal(t, "ABC", out)
		}()
	}
	wg.Wait()
}
