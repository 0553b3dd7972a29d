package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/breeze/pkg/schema"
)

// BreakerState is the state of the durable tier's circuit.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // tier in use
	BreakerOpen                         // tier skipped
	BreakerHalfOpen                     // probing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes BreakerStore.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive IO failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe is allowed.
	Cooldown time.Duration
	// HalfOpenMax is the number of concurrent probes allowed while half-open.
	HalfOpenMax int
}

// DefaultBreakerConfig returns 5 failures, 30s cooldown, 1 probe.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// BreakerStore wraps an ArtifactStore so that a failing disk or database is
// skipped for a cooldown instead of being hit on every cache miss.
// NOT_FOUND is a normal answer and never counts as a failure.
type BreakerStore struct {
	inner  ArtifactStore
	config BreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            BreakerState
	failures         int
	lastFailure      time.Time
	halfOpenAttempts int
}

// NewBreakerStore wraps inner. Zero config fields take their defaults.
func NewBreakerStore(inner ArtifactStore, config BreakerConfig, logger *slog.Logger) *BreakerStore {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = def.HalfOpenMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerStore{inner: inner, config: config, logger: logger, now: time.Now}
}

// Unwrap returns the wrapped store.
func (b *BreakerStore) Unwrap() ArtifactStore { return b.inner }

func (b *BreakerStore) Get(ctx context.Context, fp string) ([]byte, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	data, err := b.inner.Get(ctx, fp)
	b.record(err)
	return data, err
}

func (b *BreakerStore) Put(ctx context.Context, fp string, data []byte) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.inner.Put(ctx, fp, data)
	b.record(err)
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, fp string) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.inner.Delete(ctx, fp)
	b.record(err)
	return err
}

// Clear always reaches the inner store and resets the circuit on success.
func (b *BreakerStore) Clear(ctx context.Context) error {
	err := b.inner.Clear(ctx)
	b.record(err)
	return err
}

func (b *BreakerStore) Close() error { return b.inner.Close() }

// State reports the current state, moving open to half-open once the
// cooldown has elapsed.
func (b *BreakerStore) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.config.Cooldown {
		b.state = BreakerHalfOpen
		b.halfOpenAttempts = 0
	}
	return b.state
}

// Stats returns diagnostic information for the admin surfaces.
func (b *BreakerStore) Stats() map[string]any {
	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]any{
		"state":                state.String(),
		"consecutive_failures": b.failures,
		"failure_threshold":    b.config.FailureThreshold,
		"cooldown":             b.config.Cooldown.String(),
	}
}

func (b *BreakerStore) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.config.Cooldown {
			b.state = BreakerHalfOpen
			b.halfOpenAttempts = 1
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"artifact store skipped after %d consecutive failures", b.failures).
			WithDetails(map[string]any{
				"state":              b.state.String(),
				"cooldown_remaining": (b.config.Cooldown - b.now().Sub(b.lastFailure)).String(),
			})
	case BreakerHalfOpen:
		if b.halfOpenAttempts >= b.config.HalfOpenMax {
			return schema.NewError(schema.ErrCodeCircuitOpen, "artifact store probe in flight")
		}
		b.halfOpenAttempts++
	}
	return nil
}

func (b *BreakerStore) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || schema.IsNotFound(err) {
		if b.state != BreakerClosed {
			b.logger.Info("artifact store recovered")
		}
		b.failures = 0
		b.halfOpenAttempts = 0
		b.state = BreakerClosed
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.config.FailureThreshold {
		if b.state != BreakerOpen {
			b.logger.Warn("artifact store circuit opened",
				slog.Int("consecutive_failures", b.failures),
				slog.String("error", err.Error()),
			)
		}
		b.state = BreakerOpen
	}
}
