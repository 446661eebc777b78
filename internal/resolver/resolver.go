// Package resolver sits between editor front-ends and the call context parser.
// It deduplicates identical in-flight requests, debounces bursts per document,
// bounds parse time and memoizes results by exact source prefix.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
	"github.com/doITmagic/laravel-callctx/internal/config"
)

var (
	// ErrSuperseded is the cancellation cause of a debounced request replaced
	// by a newer one for the same key.
	ErrSuperseded = errors.New("superseded by a newer request")
	ErrTimeout    = errors.New("call context parse timed out")
	ErrPanic      = errors.New("call context parse panicked")
	ErrClosed     = errors.New("resolver closed")
)

// ParseFunc computes the call context for a source prefix.
type ParseFunc func(prefix string) *callctx.CallContext

// Stats is a snapshot of resolver counters.
type Stats struct {
	Requests   int64
	CacheHits  int64
	Parses     int64
	Shared     int64
	Timeouts   int64
	Panics     int64
	Superseded int64
}

type cacheEntry struct {
	prefix string
	cc     *callctx.CallContext
}

type pending struct {
	cancel context.CancelCauseFunc
	gen    uint64
}

// Resolver is safe for concurrent use.
type Resolver struct {
	cfg    config.ResolverConfig
	logger *slog.Logger
	parse  ParseFunc

	cache *ristretto.Cache
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]pending
	gen     uint64
	closed  bool

	requests, hits, parses, shared, timeouts, panics, superseded atomic.Int64
}

// New creates a resolver. A nil parse uses callctx.Parse.
func New(cfg config.ResolverConfig, logger *slog.Logger, parse ParseFunc) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if parse == nil {
		parse = callctx.Parse
	}
	r := &Resolver{
		cfg:     cfg,
		logger:  logger.With("component", "resolver"),
		parse:   parse,
		pending: make(map[string]pending),
	}

	if cfg.CacheMaxCost > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e5,
			MaxCost:     cfg.CacheMaxCost,
			BufferItems: 64,
			Metrics:     true,
		})
		if err != nil {
			r.logger.Warn("Failed to create memo cache, caching disabled", "error", err)
		} else {
			r.cache = cache
		}
	}
	return r
}

// Resolve returns the call context for prefix. A nil context with a nil
// error means there is nothing to suggest at the cursor.
func (r *Resolver) Resolve(ctx context.Context, prefix string) (*callctx.CallContext, error) {
	r.requests.Add(1)
	if r.isClosed() {
		return nil, ErrClosed
	}

	if cc, ok := r.lookup(prefix); ok {
		r.hits.Add(1)
		return cc, nil
	}

	ch := r.group.DoChan(prefix, func() (any, error) {
		cc, err := r.parseBounded(prefix)
		if err == nil {
			r.store(prefix, cc)
		}
		return cc, err
	})

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case res := <-ch:
		if res.Shared {
			r.shared.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		cc, _ := res.Val.(*callctx.CallContext)
		return cc, nil
	}
}

// ResolveDebounced waits for the configured debounce interval before
// resolving. A newer call with the same key cancels this one with cause
// ErrSuperseded.
func (r *Resolver) ResolveDebounced(ctx context.Context, key, prefix string) (*callctx.CallContext, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if prev, ok := r.pending[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	r.gen++
	gen := r.gen
	r.pending[key] = pending{cancel: cancel, gen: gen}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if p, ok := r.pending[key]; ok && p.gen == gen {
			delete(r.pending, key)
		}
		r.mu.Unlock()
	}()

	if r.cfg.Debounce > 0 {
		timer := time.NewTimer(r.cfg.Debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, r.cancelled(ctx, key)
		case <-timer.C:
		}
	}

	cc, err := r.Resolve(ctx, prefix)
	if err != nil && ctx.Err() != nil {
		return nil, r.cancelled(ctx, key)
	}
	return cc, err
}

func (r *Resolver) cancelled(ctx context.Context, key string) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrSuperseded) {
		r.superseded.Add(1)
		r.logger.Debug("Request superseded", "key", key)
	}
	return cause
}

// parseBounded runs the parse on its own goroutine so a slow or stuck parse
// cannot hold the caller past ParseTimeout.
func (r *Resolver) parseBounded(prefix string) (*callctx.CallContext, error) {
	r.parses.Add(1)
	type result struct {
		cc  *callctx.CallContext
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.panics.Add(1)
				r.logger.Error("Recovered panic while parsing call context", "panic", p, "prefix_len", len(prefix))
				done <- result{err: fmt.Errorf("%w: %v", ErrPanic, p)}
			}
		}()
		done <- result{cc: r.parse(prefix)}
	}()

	if r.cfg.ParseTimeout <= 0 {
		res := <-done
		return res.cc, res.err
	}

	timer := time.NewTimer(r.cfg.ParseTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.cc, res.err
	case <-timer.C:
		r.timeouts.Add(1)
		r.logger.Warn("Call context parse timed out", "timeout", r.cfg.ParseTimeout, "prefix_len", len(prefix))
		return nil, ErrTimeout
	}
}

func (r *Resolver) lookup(prefix string) (*callctx.CallContext, bool) {
	if r.cache == nil {
		return nil, false
	}
	v, ok := r.cache.Get(prefix)
	if !ok {
		return nil, false
	}
	entry, ok := v.(cacheEntry)
	// ristretto keys are hashed; never serve a result for a different prefix
	if !ok || entry.prefix != prefix {
		return nil, false
	}
	return entry.cc, true
}

func (r *Resolver) store(prefix string, cc *callctx.CallContext) {
	if r.cache == nil {
		return
	}
	cost := int64(len(prefix)) + 1
	if !r.cache.SetWithTTL(prefix, cacheEntry{prefix: prefix, cc: cc}, cost, r.cfg.CacheTTL) {
		r.logger.Debug("Memo cache rejected entry", "cost", cost)
	}
}

// Stats returns the current counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Requests:   r.requests.Load(),
		CacheHits:  r.hits.Load(),
		Parses:     r.parses.Load(),
		Shared:     r.shared.Load(),
		Timeouts:   r.timeouts.Load(),
		Panics:     r.panics.Load(),
		Superseded: r.superseded.Load(),
	}
}

// CacheMetrics exposes the ristretto metrics, or nil when caching is off.
func (r *Resolver) CacheMetrics() *ristretto.Metrics {
	if r.cache == nil {
		return nil
	}
	return r.cache.Metrics
}

// Purge drops every memoized result.
func (r *Resolver) Purge() {
	if r.cache != nil {
		r.cache.Clear()
	}
}

func (r *Resolver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close cancels pending debounced requests and releases the cache.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for key, p := range r.pending {
		p.cancel(ErrClosed)
		delete(r.pending, key)
	}
	if r.cache != nil {
		r.cache.Close()
	}
}
