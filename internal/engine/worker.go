package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var errWarmPoolClosed = errors.New("warm pool closed")

// warmCounts is a snapshot of a warmPool's task counters.
type warmCounts struct {
	Active int64
	Parsed int64
	Failed int64
	Panics int64
}

// warmPool runs labeled parse tasks on at most cap(slots) goroutines.
// Failures are wrapped with their label and joined by wait.
type warmPool struct {
	slots chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup

	active atomic.Int64
	parsed atomic.Int64
	failed atomic.Int64
	panics atomic.Int64

	mu       sync.Mutex
	closed   bool
	failures []error
}

func newWarmPool(size int) *warmPool {
	return &warmPool{
		slots: make(chan struct{}, max(size, 1)),
		stop:  make(chan struct{}),
	}
}

// Go blocks for a free slot, then runs fn in its own goroutine. It returns
// ctx.Err() if ctx ends first and errWarmPoolClosed after close.
func (p *warmPool) Go(ctx context.Context, label string, fn func(context.Context) error) error {
	select {
	case <-p.stop:
		return errWarmPoolClosed
	default:
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return errWarmPoolClosed
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return errWarmPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.active.Add(1)
	go func() {
		defer func() {
			p.active.Add(-1)
			<-p.slots
			p.wg.Done()
		}()
		p.exec(ctx, label, fn)
	}()
	return nil
}

func (p *warmPool) exec(ctx context.Context, label string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.fail(fmt.Errorf("%s: panic: %v", label, r))
		}
	}()
	if err := fn(ctx); err != nil {
		p.fail(fmt.Errorf("%s: %w", label, err))
		return
	}
	p.parsed.Add(1)
}

func (p *warmPool) fail(err error) {
	p.failed.Add(1)
	p.mu.Lock()
	p.failures = append(p.failures, err)
	p.mu.Unlock()
}

// wait returns once every started task has finished.
func (p *warmPool) wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.failures...)
}

// close stops accepting tasks and drains the running ones. Safe to repeat.
func (p *warmPool) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stop)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *warmPool) counts() warmCounts {
	return warmCounts{
		Active: p.active.Load(),
		Parsed: p.parsed.Load(),
		Failed: p.failed.Load(),
		Panics: p.panics.Load(),
	}
}
