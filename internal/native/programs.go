package native

import (
	"sync"

	"github.com/rendis/breeze/pkg/schema"
)

// maxPrograms bounds each dialect's compiled-program cache. A full cache is
// dropped wholesale; template bodies are few and recompiling is cheap.
const maxPrograms = 512

// programCache memoizes compiled programs by block body. Compilation runs
// outside the lock, so two goroutines may compile the same body once each.
type programCache[P any] struct {
	compile func(body string) (P, error)

	mu    sync.Mutex
	progs map[string]P
}

func newProgramCache[P any](compile func(string) (P, error)) *programCache[P] {
	return &programCache[P]{compile: compile, progs: make(map[string]P)}
}

func (c *programCache[P]) get(body string) (P, error) {
	c.mu.Lock()
	p, ok := c.progs[body]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := c.compile(body)
	if err != nil {
		return p, err
	}

	c.mu.Lock()
	if len(c.progs) >= maxPrograms {
		clear(c.progs)
	}
	c.progs[body] = p
	c.mu.Unlock()
	return p, nil
}

func (c *programCache[P]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.progs)
}

func emptyBody(dialect string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "empty %s block", dialect)
}

// compileError reports a body that does not parse in its dialect.
func compileError(dialect, body string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %s", dialect, body, err).
		WithCause(err).
		WithDetails(map[string]any{"dialect": dialect})
}

// runError reports a body that compiled but failed against the render context.
func runError(dialect, body string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExecution, "%s: %q failed: %s", dialect, body, err).
		WithCause(err).
		WithDetails(map[string]any{"dialect": dialect})
}
