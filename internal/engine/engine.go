// Package engine wires the template cache, the renderer, the view resolver
// and the optional native extension into the single object applications use.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rendis/breeze/internal/blade"
	"github.com/rendis/breeze/internal/cache"
	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/internal/native"
	"github.com/rendis/breeze/internal/store"
	"github.com/rendis/breeze/internal/validation"
	"github.com/rendis/breeze/internal/view"
	"github.com/rendis/breeze/pkg/schema"
)

// DefaultWarmPoolSize bounds concurrent parses during Warm.
const DefaultWarmPoolSize = 4

// Config is the engine's injected configuration.
type Config struct {
	ViewsPath  string
	Extensions []string
	Cache      cache.Config
	// NativeEnabled turns on @native blocks. Off by default.
	NativeEnabled bool
	Shell         native.ShellConfig
	WarmPoolSize  int
}

type options struct {
	store     store.ArtifactStore
	validator cache.Validator
	logger    *slog.Logger
	filters   *blade.Filters
	native    blade.NativeExecutor
}

// Option customizes an Engine.
type Option func(*options)

// WithStore enables the durable artifact tier. The engine owns the store
// and closes it in Close.
func WithStore(s store.ArtifactStore) Option {
	return func(o *options) { o.store = s }
}

// WithValidator replaces the embedded artifact schema check.
func WithValidator(v cache.Validator) Option {
	return func(o *options) { o.validator = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFilters replaces the built-in filter set.
func WithFilters(f *blade.Filters) Option {
	return func(o *options) { o.filters = f }
}

// WithNativeExecutor replaces the default dialect registry. It only takes
// effect when Config.NativeEnabled is set.
func WithNativeExecutor(n blade.NativeExecutor) Option {
	return func(o *options) { o.native = n }
}

// Engine renders templates. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	cache    *cache.TemplateCache
	renderer *blade.Renderer
	views    *view.Resolver
	native   blade.NativeExecutor
	store    store.ArtifactStore
	logger   *slog.Logger

	renders atomic.Uint64
}

// New builds an engine from cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrDefault(o.logger)
	if cfg.WarmPoolSize <= 0 {
		cfg.WarmPoolSize = DefaultWarmPoolSize
	}

	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if o.store != nil {
		v := o.validator
		if v == nil {
			av, err := validation.NewArtifactValidator()
			if err != nil {
				return nil, fmt.Errorf("artifact validator: %w", err)
			}
			v = av
		}
		cacheOpts = append(cacheOpts, cache.WithStore(o.store), cache.WithValidator(v))
	}

	renderOpts := []blade.RendererOption{blade.WithLogger(logger)}
	if o.filters != nil {
		renderOpts = append(renderOpts, blade.WithFilters(o.filters))
	}

	var exec blade.NativeExecutor
	if cfg.NativeEnabled {
		exec = o.native
		if exec == nil {
			reg, err := native.NewDefaultRegistry(logger, cfg.Shell)
			if err != nil {
				return nil, fmt.Errorf("native registry: %w", err)
			}
			exec = reg
		}
		renderOpts = append(renderOpts, blade.WithNative(exec))
		logger.Warn("native template execution enabled")
	}

	return &Engine{
		cfg:      cfg,
		cache:    cache.New(cfg.Cache, cacheOpts...),
		renderer: blade.NewRenderer(renderOpts...),
		views:    view.NewResolver(cfg.ViewsPath, cfg.Extensions...),
		native:   exec,
		store:    o.store,
		logger:   logger,
	}, nil
}

// RenderString renders inline template text. It never fails; problems are
// rendered inline.
func (e *Engine) RenderString(ctx context.Context, text string, data map[string]any) string {
	ctx = logging.EnsureRenderID(ctx)
	return e.render(ctx, e.cache.ResolveInline(text), data)
}

// RenderFile renders the template at path. Only an unreadable file is an
// error.
func (e *Engine) RenderFile(ctx context.Context, path string, data map[string]any) (string, error) {
	ctx = logging.WithTemplate(logging.EnsureRenderID(ctx), path)
	tree, err := e.cache.ResolveFile(ctx, path)
	if err != nil {
		return "", err
	}
	return e.render(ctx, tree, data), nil
}

// Render resolves a view name and renders it. A missing view is a NOT_FOUND
// error carrying the explanatory message.
func (e *Engine) Render(ctx context.Context, name string, data map[string]any) (string, error) {
	path, err := e.views.Resolve(name)
	if err != nil {
		return "", err
	}
	return e.RenderFile(logging.WithTemplate(ctx, name), path, data)
}

// RenderView is Render for callers that want a string no matter what: a
// missing view becomes "View [name] not found in <dir>".
func (e *Engine) RenderView(ctx context.Context, name string, data map[string]any) string {
	out, err := e.Render(ctx, name, data)
	if err == nil {
		return out
	}
	if schema.IsNotFound(err) {
		return e.views.NotFoundMessage(name)
	}
	e.logger.WarnContext(ctx, "view unreadable", slog.String("view", name), slog.String("error", err.Error()))
	return blade.Diagnostic(err.Error())
}

func (e *Engine) render(ctx context.Context, tree *blade.Block, data map[string]any) string {
	start := time.Now()
	out := e.renderer.RenderMap(ctx, tree, data)
	e.renders.Add(1)
	e.logger.DebugContext(ctx, "rendered",
		slog.Int("bytes", len(out)),
		slog.Duration("took", time.Since(start)),
	)
	return out
}

// WarmReport summarizes a Warm run.
type WarmReport struct {
	Files    int           `json:"files"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Warm parses every template under the views directory into the cache using
// a bounded worker pool.
func (e *Engine) Warm(ctx context.Context) (WarmReport, error) {
	start := time.Now()
	pool := newWarmPool(e.cfg.WarmPoolSize)
	defer pool.close()

	files := 0
	walkErr := e.views.Walk(func(path string) error {
		files++
		return pool.Go(ctx, path, func(ctx context.Context) error {
			_, err := e.cache.ResolveFile(ctx, path)
			return err
		})
	})
	poolErr := pool.wait()

	report := WarmReport{Files: files, Failed: pool.counts().Failed, Duration: time.Since(start)}
	if walkErr != nil {
		return report, fmt.Errorf("walk views %s: %w", e.views.Dir(), walkErr)
	}
	if poolErr != nil {
		return report, poolErr
	}
	e.logger.InfoContext(ctx, "cache warmed",
		slog.Int("files", report.Files),
		slog.Duration("took", report.Duration),
	)
	return report, nil
}

// Stats returns the cache statistics.
func (e *Engine) Stats() cache.Stats { return e.cache.Stats() }

// Renders counts completed renders since start.
func (e *Engine) Renders() uint64 { return e.renders.Load() }

// Clear empties the cache; clearDisk also empties the durable tier.
func (e *Engine) Clear(ctx context.Context, clearDisk bool) error {
	err := e.cache.Clear(ctx, clearDisk)
	e.logger.InfoContext(ctx, "cache cleared", slog.Bool("disk", clearDisk))
	return err
}

// Sweep drops expired cache entries.
func (e *Engine) Sweep() int { return e.cache.Sweep() }

// SetCacheBounds changes the cache limits at runtime.
func (e *Engine) SetCacheBounds(cfg cache.Config) { e.cache.SetBounds(cfg) }

// Views returns the view resolver.
func (e *Engine) Views() *view.Resolver { return e.views }

// Store returns the durable tier, or nil.
func (e *Engine) Store() store.ArtifactStore { return e.store }

// NativeEnabled reports whether @native blocks execute.
func (e *Engine) NativeEnabled() bool { return e.native != nil }

// Dialects lists the registered native dialects when the default registry
// is in use.
func (e *Engine) Dialects() []string {
	if reg, ok := e.native.(*native.Registry); ok {
		return reg.Names()
	}
	return nil
}

// Close releases the durable tier.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
