package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
	"github.com/doITmagic/laravel-callctx/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.ResolverConfig {
	return config.ResolverConfig{
		Debounce:     20 * time.Millisecond,
		ParseTimeout: time.Second,
		CacheMaxCost: 1 << 20,
		CacheTTL:     time.Minute,
	}
}

type countingParser struct {
	calls atomic.Int64
	fn    ParseFunc
}

func (c *countingParser) parse(prefix string) *callctx.CallContext {
	c.calls.Add(1)
	if c.fn != nil {
		return c.fn(prefix)
	}
	return callctx.Parse(prefix)
}

func TestResolve_ReturnsParserResult(t *testing.T) {
	r := New(testConfig(), quietLogger(), nil)
	defer r.Close()

	cc, err := r.Resolve(context.Background(), "<?php\nUser::where(['what' => 'ok'], '")
	require.NoError(t, err)
	require.NotNil(t, cc)
	assert.Equal(t, "User", cc.Class())
	assert.Equal(t, "where", cc.Function())
	assert.Equal(t, 1, cc.ParamIndex())

	cc, err = r.Resolve(context.Background(), "<?php\n$x = 1;")
	require.NoError(t, err)
	assert.Nil(t, cc)
}

func TestResolve_MemoizesByExactPrefix(t *testing.T) {
	p := &countingParser{}
	r := New(testConfig(), quietLogger(), p.parse)
	defer r.Close()

	ctx := context.Background()
	first, err := r.Resolve(ctx, "<?php config('")
	require.NoError(t, err)
	r.cache.Wait()

	second, err := r.Resolve(ctx, "<?php config('")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), p.calls.Load())

	_, err = r.Resolve(ctx, "<?php config('a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.calls.Load())

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.Requests)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestResolve_CacheDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.CacheMaxCost = 0
	p := &countingParser{}
	r := New(cfg, quietLogger(), p.parse)
	defer r.Close()

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "<?php view('")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), p.calls.Load())
	assert.Nil(t, r.CacheMetrics())
}

func TestResolve_DeduplicatesInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := &countingParser{fn: func(prefix string) *callctx.CallContext {
		once.Do(func() { close(started) })
		<-release
		return callctx.Parse(prefix)
	}}
	cfg := testConfig()
	cfg.CacheMaxCost = 0
	r := New(cfg, quietLogger(), p.parse)
	defer r.Close()

	const callers = 4
	var wg sync.WaitGroup
	results := make([]*callctx.CallContext, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i > 0 {
				<-started
			}
			cc, err := r.Resolve(context.Background(), "<?php route('")
			assert.NoError(t, err)
			results[i] = cc
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), p.calls.Load())
	for _, cc := range results[1:] {
		assert.Same(t, results[0], cc)
	}
	assert.Positive(t, r.Stats().Shared)
}

func TestResolve_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	cfg := testConfig()
	cfg.ParseTimeout = 10 * time.Millisecond
	r := New(cfg, quietLogger(), func(string) *callctx.CallContext {
		<-block
		return nil
	})
	defer r.Close()

	cc, err := r.Resolve(context.Background(), "<?php config('")
	assert.Nil(t, cc)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int64(1), r.Stats().Timeouts)
}

func TestResolve_RecoversPanic(t *testing.T) {
	r := New(testConfig(), quietLogger(), func(string) *callctx.CallContext {
		panic("boom")
	})
	defer r.Close()

	cc, err := r.Resolve(context.Background(), "<?php config('")
	assert.Nil(t, cc)
	assert.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, int64(1), r.Stats().Panics)
}

func TestResolve_CallerCancellation(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := New(testConfig(), quietLogger(), func(string) *callctx.CallContext {
		<-block
		return nil
	})
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, "<?php config('")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveDebounced_Supersedes(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 100 * time.Millisecond
	p := &countingParser{}
	r := New(cfg, quietLogger(), p.parse)
	defer r.Close()

	firstErr := make(chan error, 1)
	go func() {
		_, err := r.ResolveDebounced(context.Background(), "file:///app.php", "<?php config('a")
		firstErr <- err
	}()

	// let the first request register before replacing it
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.pending["file:///app.php"]
		return ok
	}, time.Second, time.Millisecond)

	cc, err := r.ResolveDebounced(context.Background(), "file:///app.php", "<?php config('ab")
	require.NoError(t, err)
	require.NotNil(t, cc)
	assert.Equal(t, "config", cc.Function())

	err = <-firstErr
	assert.True(t, errors.Is(err, ErrSuperseded), "got %v", err)
	assert.Equal(t, int64(1), p.calls.Load())
	assert.Equal(t, int64(1), r.Stats().Superseded)
}

func TestResolveDebounced_DistinctKeysIndependent(t *testing.T) {
	r := New(testConfig(), quietLogger(), nil)
	defer r.Close()

	var wg sync.WaitGroup
	for _, key := range []string{"a.php", "b.php"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			cc, err := r.ResolveDebounced(context.Background(), key, "<?php trans('")
			assert.NoError(t, err)
			assert.NotNil(t, cc)
		}(key)
	}
	wg.Wait()
}

func TestClose_RejectsRequests(t *testing.T) {
	r := New(testConfig(), quietLogger(), nil)
	r.Close()
	r.Close()

	_, err := r.Resolve(context.Background(), "<?php config('")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.ResolveDebounced(context.Background(), "k", "<?php config('")
	assert.ErrorIs(t, err, ErrClosed)
}
