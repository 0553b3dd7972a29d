// Package native implements the opt-in @native template extension. Each
// dialect runs a block body against the render context and returns a value
// that is inserted into the output. Nothing in this package is reachable
// unless the engine is configured with native execution enabled.
package native

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/breeze/internal/expressions"
	"github.com/rendis/breeze/pkg/schema"
)

// Dialect evaluates native block bodies in one language.
type Dialect interface {
	Name() string
	Execute(ctx context.Context, body string, data map[string]any) (any, error)
}

// Registry dispatches native blocks to dialects by name.
type Registry struct {
	mu       sync.RWMutex
	dialects map[string]Dialect
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dialects: make(map[string]Dialect),
		logger:   logger,
	}
}

// NewDefaultRegistry creates a registry with the expr, cel, jq and sh dialects.
func NewDefaultRegistry(logger *slog.Logger, shell ShellConfig) (*Registry, error) {
	r := NewRegistry(logger)

	celDialect, err := NewCELDialect()
	if err != nil {
		return nil, err
	}
	for _, d := range []Dialect{NewExprDialect(), celDialect, NewJQDialect(), NewShellDialect(shell)} {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a dialect. Names are case-insensitive and must be unique.
func (r *Registry) Register(d Dialect) error {
	name := strings.ToLower(d.Name())
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "dialect name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dialects[name]; exists {
		return schema.NewErrorf(schema.ErrCodeValidation, "dialect %q already registered", name)
	}
	r.dialects[name] = d
	return nil
}

// Get returns the dialect registered under name.
func (r *Registry) Get(name string) (Dialect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dialects[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Names returns the registered dialect names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.dialects))
	for name := range r.dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs body with the named dialect and renders the result with the
// same display rules as interpolation. Failures are returned, never retried
// through another dialect.
func (r *Registry) Execute(ctx context.Context, dialect, body string, data map[string]any) (string, error) {
	d, ok := r.Get(dialect)
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "unknown native dialect %q", dialect).
			WithDetails(map[string]any{"available": r.Names()})
	}

	out, err := d.Execute(ctx, strings.TrimSpace(body), data)
	if err != nil {
		r.logger.Debug("native block failed",
			slog.String("dialect", d.Name()),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return display(out), nil
}

// display converts a dialect result to output text.
func display(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case error:
		return val.Error()
	}
	converted := expressions.FromAny(v)
	if converted.IsNull() {
		return fmt.Sprint(v)
	}
	return converted.String()
}
