// Package cache memoizes parsed templates. File templates are keyed by path
// and content fingerprint, bounded by entry count (LRU) and age (TTL), and
// optionally backed by a durable artifact store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rendis/breeze/internal/blade"
	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/internal/store"
	"github.com/rendis/breeze/pkg/schema"
)

const (
	DefaultMaxItems = 256
	DefaultTTL      = time.Hour
)

// Config holds the runtime bounds. MaxItems <= 0 takes DefaultMaxItems;
// TTL == 0 disables expiry, negative takes DefaultTTL.
type Config struct {
	MaxItems int
	TTL      time.Duration
}

func (c Config) normalized() Config {
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.TTL < 0 {
		c.TTL = DefaultTTL
	}
	return c
}

// Validator checks a raw artifact before it is decoded.
type Validator interface {
	Validate(data []byte) error
}

// Option configures a TemplateCache.
type Option func(*TemplateCache)

// WithStore enables the durable tier.
func WithStore(s store.ArtifactStore) Option {
	return func(c *TemplateCache) { c.store = s }
}

// WithValidator checks artifacts read from the durable tier.
func WithValidator(v Validator) Option {
	return func(c *TemplateCache) { c.validator = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *TemplateCache) { c.logger = l }
}

// fileKey identifies a compiled file template.
type fileKey struct {
	path        string
	fingerprint string
}

// Stats is the externally observable cache state.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Entries       int    `json:"entries"`
	InlineEntries int    `json:"inline_entries"`
	MaxItems      int    `json:"max_items"`
	TTLSeconds    int64  `json:"ttl_seconds"`
	Evictions     uint64 `json:"evictions"`
	Expired       uint64 `json:"expired"`
	DiskHits      uint64 `json:"disk_hits"`
	DiskErrors    uint64 `json:"disk_errors"`
	DiskEnabled   bool   `json:"disk_enabled"`
}

// TemplateCache is safe for concurrent use. Trees it returns are shared and
// must not be mutated.
type TemplateCache struct {
	store     store.ArtifactStore
	validator Validator
	logger    *slog.Logger
	readFile  func(string) ([]byte, error)
	now       func() time.Time

	mu     sync.Mutex
	cfg    Config
	files  *lru[fileKey, *blade.Block]
	inline *lru[string, *blade.Block]
	byPath map[string]string

	hits, misses, evictions, expired atomic.Uint64
	diskHits, diskErrors             atomic.Uint64
}

// New creates a cache with the given bounds.
func New(cfg Config, opts ...Option) *TemplateCache {
	cfg = cfg.normalized()
	c := &TemplateCache{
		cfg:      cfg,
		files:    newLRU[fileKey, *blade.Block](cfg.MaxItems, cfg.TTL),
		inline:   newLRU[string, *blade.Block](cfg.MaxItems, cfg.TTL),
		byPath:   make(map[string]string),
		readFile: os.ReadFile,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// ResolveInline returns the tree for template text, parsing it at most once
// per fingerprint while it stays cached.
func (c *TemplateCache) ResolveInline(text string) *blade.Block {
	fp := Fingerprint([]byte(text))

	c.mu.Lock()
	tree, ok, expired := c.inline.get(fp, c.now())
	c.count(ok, expired)
	c.mu.Unlock()
	if ok {
		return tree
	}

	tree = blade.Parse(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok, _ := c.inline.get(fp, c.now()); ok {
		return existing
	}
	c.evicted(len(c.inline.put(fp, tree, c.now())))
	return tree
}

// ResolveFile reads path and returns its tree. A missing file is a NOT_FOUND
// error; durable tier failures are logged and never returned.
func (c *TemplateCache) ResolveFile(ctx context.Context, path string) (*blade.Block, error) {
	src, err := c.readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "template %q not found", path).WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return c.resolveSource(ctx, path, src), nil
}

func (c *TemplateCache) resolveSource(ctx context.Context, path string, src []byte) *blade.Block {
	key := fileKey{path: path, fingerprint: Fingerprint(src)}

	c.mu.Lock()
	tree, ok, expired := c.files.get(key, c.now())
	c.count(ok, expired)
	c.mu.Unlock()
	if ok {
		return tree
	}

	// Parse and disk IO run outside the lock; concurrent misses for the
	// same key may both parse and the first insert wins. Artifacts are JSON,
	// which cannot carry invalid UTF-8, so such sources skip the durable tier.
	durable := utf8.Valid(src)
	if durable {
		tree = c.load(ctx, key.fingerprint)
	}
	if tree == nil {
		tree = blade.Parse(string(src))
		if durable {
			c.persist(ctx, key.fingerprint, tree)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok, _ := c.files.get(key, c.now()); ok {
		return existing
	}
	if old, ok := c.byPath[path]; ok && old != key.fingerprint {
		c.files.delete(fileKey{path: path, fingerprint: old})
	}
	c.byPath[path] = key.fingerprint
	for _, k := range c.files.put(key, tree, c.now()) {
		if c.byPath[k.path] == k.fingerprint {
			delete(c.byPath, k.path)
		}
		c.evictions.Add(1)
	}
	return tree
}

// load returns the tree from the durable tier, or nil on any miss.
func (c *TemplateCache) load(ctx context.Context, fp string) *blade.Block {
	if c.store == nil {
		return nil
	}
	data, err := c.store.Get(ctx, fp)
	if err != nil {
		if !schema.IsNotFound(err) {
			c.diskFailure(ctx, "read", fp, err)
		}
		return nil
	}
	if c.validator != nil {
		if err := c.validator.Validate(data); err != nil {
			c.diskFailure(ctx, "validate", fp, err)
			return nil
		}
	}
	tree, err := blade.Decode(data, fp)
	if err != nil {
		c.diskFailure(ctx, "decode", fp, err)
		return nil
	}
	c.diskHits.Add(1)
	return tree
}

func (c *TemplateCache) persist(ctx context.Context, fp string, tree *blade.Block) {
	if c.store == nil {
		return
	}
	data, err := blade.Encode(fp, tree)
	if err != nil {
		c.diskFailure(ctx, "encode", fp, err)
		return
	}
	if err := c.store.Put(ctx, fp, data); err != nil {
		c.diskFailure(ctx, "write", fp, err)
	}
}

func (c *TemplateCache) diskFailure(ctx context.Context, op, fp string, err error) {
	c.diskErrors.Add(1)
	logging.LogWith(ctx, c.logger).Debug("artifact store "+op+" failed",
		slog.String("fingerprint", fp),
		slog.String("error", err.Error()),
	)
}

// count records a lookup outcome. Callers hold mu so Clear cannot reset the
// counters between the lookup and the increment.
func (c *TemplateCache) count(hit, expired bool) {
	if hit {
		c.hits.Add(1)
		return
	}
	c.misses.Add(1)
	if expired {
		c.expired.Add(1)
	}
}

func (c *TemplateCache) evicted(n int) {
	if n > 0 {
		c.evictions.Add(uint64(n))
	}
}

// Clear empties both memory tiers and resets counters. With clearDisk the
// durable tier is emptied too; its error is returned but the memory tiers
// are cleared regardless.
func (c *TemplateCache) Clear(ctx context.Context, clearDisk bool) error {
	c.mu.Lock()
	c.files.clear()
	c.inline.clear()
	clear(c.byPath)
	for _, n := range []*atomic.Uint64{&c.hits, &c.misses, &c.evictions, &c.expired, &c.diskHits, &c.diskErrors} {
		n.Store(0)
	}
	c.mu.Unlock()

	if clearDisk && c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			return schema.NewError(schema.ErrCodeCacheIO, "clear artifact store").WithCause(err)
		}
	}
	return nil
}

// Sweep drops expired entries from both tiers and returns how many went.
func (c *TemplateCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := c.files.sweep(now) + c.inline.sweep(now)
	for path, fp := range c.byPath {
		if _, ok := c.files.m[fileKey{path: path, fingerprint: fp}]; !ok {
			delete(c.byPath, path)
		}
	}
	c.expired.Add(uint64(n))
	return n
}

// SetBounds changes the limits at runtime, evicting immediately if needed.
func (c *TemplateCache) SetBounds(cfg Config) {
	cfg = cfg.normalized()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	for _, k := range c.files.resize(cfg.MaxItems, cfg.TTL) {
		if c.byPath[k.path] == k.fingerprint {
			delete(c.byPath, k.path)
		}
		c.evictions.Add(1)
	}
	c.evicted(len(c.inline.resize(cfg.MaxItems, cfg.TTL)))
}

func (c *TemplateCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Entries:       c.files.len(),
		InlineEntries: c.inline.len(),
		MaxItems:      c.cfg.MaxItems,
		TTLSeconds:    int64(c.cfg.TTL / time.Second),
		Evictions:     c.evictions.Load(),
		Expired:       c.expired.Load(),
		DiskHits:      c.diskHits.Load(),
		DiskErrors:    c.diskErrors.Load(),
		DiskEnabled:   c.store != nil,
	}
}
