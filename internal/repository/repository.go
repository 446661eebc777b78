// Package repository holds the Laravel facts (routes, models, config keys,
// views, translations) that completion consults, loading them lazily with
// bounded retry and deduplicated concurrent loads.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/doITmagic/laravel-callctx/internal/utils"
)

var (
	ErrNotLoaded = errors.New("repository not loaded")
	ErrNoRoot    = errors.New("no project root")
)

// Loader produces the full item set of a repository.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Options controls loading behaviour.
type Options struct {
	MaxRetries  int
	RetryDelay  time.Duration
	LoadTimeout time.Duration
}

// Repository caches the items of one domain. Safe for concurrent use.
type Repository[T any] struct {
	name   string
	load   Loader[T]
	opts   Options
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	items    []T
	loaded   bool
	stale    bool
	loadedAt time.Time
	// generation counts invalidations
	generation uint64
}

// New creates an empty repository.
func New[T any](name string, load Loader[T], opts Options, logger *slog.Logger) *Repository[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Repository[T]{
		name:   name,
		load:   load,
		opts:   opts,
		logger: logger.With("repository", name),
	}
}

// Name returns the domain name.
func (r *Repository[T]) Name() string { return r.name }

// Items returns the current items, possibly stale. Callers must not modify
// the returned slice.
func (r *Repository[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items
}

// Loaded reports whether a load or restore has succeeded at least once.
func (r *Repository[T]) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// LoadedAt returns the time of the last successful load.
func (r *Repository[T]) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// Load runs the loader with retry. Concurrent calls share one load.
func (r *Repository[T]) Load(ctx context.Context) error {
	ch := r.group.DoChan(r.name, func() (any, error) {
		// detached from any single caller so a cancelled waiter does not
		// abort the load for everyone else
		loadCtx := context.WithoutCancel(ctx)
		if r.opts.LoadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, r.opts.LoadTimeout)
			defer cancel()
		}

		r.mu.RLock()
		gen := r.generation
		r.mu.RUnlock()

		start := time.Now()
		var items []T
		err := utils.Retry(loadCtx, r.opts.MaxRetries, r.opts.RetryDelay, func(ctx context.Context) error {
			var err error
			items, err = r.load(ctx)
			return err
		})
		if err != nil {
			r.logger.Warn("Repository load failed", "error", err)
			return nil, fmt.Errorf("load %s: %w", r.name, err)
		}

		r.mu.Lock()
		r.items = items
		r.loaded = true
		// an invalidation that arrived mid-load keeps the result stale
		r.stale = r.generation != gen
		r.loadedAt = time.Now()
		r.mu.Unlock()

		r.logger.Debug("Repository loaded", "items", len(items), "duration", time.Since(start))
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// WhenLoaded calls fn with the items once they are available, loading them
// first when the repository is empty or has been invalidated.
func (r *Repository[T]) WhenLoaded(ctx context.Context, fn func([]T)) error {
	r.mu.RLock()
	ready := r.loaded && !r.stale
	r.mu.RUnlock()

	if !ready {
		if err := r.Load(ctx); err != nil {
			// serve stale data rather than nothing
			if !r.Loaded() {
				return err
			}
			r.logger.Debug("Serving stale items after failed reload", "error", err)
		}
	}

	fn(r.Items())
	return nil
}

// Invalidate marks the items stale; the next WhenLoaded reloads them.
func (r *Repository[T]) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.generation++
	r.mu.Unlock()
}

// Restore installs items from a snapshot without running the loader.
func (r *Repository[T]) Restore(items []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
	r.loaded = true
	r.stale = false
	r.loadedAt = time.Now()
}
