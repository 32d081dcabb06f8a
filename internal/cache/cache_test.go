package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gi8lino/jiralink/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	t.Parallel()

	t.Run("second Get is served from cache", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[string]("test", 10, nil)
		require.NoError(t, err)

		var calls atomic.Int32
		load := func(context.Context) (string, error) {
			calls.Add(1)
			return "value", nil
		}

		v1, err := l.Get(t.Context(), "k", load)
		require.NoError(t, err)
		v2, err := l.Get(t.Context(), "k", load)
		require.NoError(t, err)

		assert.Equal(t, "value", v1)
		assert.Equal(t, "value", v2)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("concurrent misses share one load", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[int]("test", 10, nil)
		require.NoError(t, err)

		var calls atomic.Int32
		release := make(chan struct{})
		load := func(context.Context) (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		}

		const waiters = 8
		var wg sync.WaitGroup
		results := make([]int, waiters)
		errs := make([]error, waiters)
		for i := range waiters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = l.Get(context.Background(), "k", load)
			}()
		}

		// give every goroutine time to join the flight before releasing it
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for i := range waiters {
			require.NoError(t, errs[i])
			assert.Equal(t, 42, results[i])
		}
	})

	t.Run("cancelled caller does not fail other waiters", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[string]("test", 10, nil)
		require.NoError(t, err)

		var calls atomic.Int32
		started := make(chan struct{})
		release := make(chan struct{})
		loadErr := make(chan error, 1)
		load := func(ctx context.Context) (string, error) {
			calls.Add(1)
			close(started)
			<-release
			loadErr <- ctx.Err()
			return "value", nil
		}

		ctxA, cancelA := context.WithCancel(t.Context())
		errA := make(chan error, 1)
		go func() {
			_, err := l.Get(ctxA, "k", load)
			errA <- err
		}()
		<-started

		type result struct {
			v   string
			err error
		}
		resB := make(chan result, 1)
		go func() {
			v, err := l.Get(context.Background(), "k", load)
			resB <- result{v, err}
		}()

		cancelA()
		assert.ErrorIs(t, <-errA, context.Canceled)

		close(release)
		b := <-resB
		require.NoError(t, b.err)
		assert.Equal(t, "value", b.v)
		assert.NoError(t, <-loadErr, "load must not see the cancellation of its first caller")
		assert.Equal(t, int32(1), calls.Load())

		v, ok := l.Peek("k")
		assert.True(t, ok)
		assert.Equal(t, "value", v)
	})

	t.Run("already cancelled caller does not start a load", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[string]("test", 10, nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		var calls atomic.Int32
		_, err = l.Get(ctx, "k", func(context.Context) (string, error) {
			calls.Add(1)
			return "value", nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("errors reach all waiters and are not cached", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[string]("test", 10, nil)
		require.NoError(t, err)

		var calls atomic.Int32
		boom := errors.New("boom")
		failing := func(context.Context) (string, error) {
			calls.Add(1)
			return "", boom
		}

		_, err = l.Get(t.Context(), "k", failing)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, l.Len())

		v, err := l.Get(t.Context(), "k", func(context.Context) (string, error) {
			calls.Add(1)
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("size is bounded", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[int]("test", 2, nil)
		require.NoError(t, err)

		for i := range 3 {
			_, err := l.Get(t.Context(), fmt.Sprintf("k%d", i), func(context.Context) (int, error) { return i, nil })
			require.NoError(t, err)
		}

		assert.Equal(t, 2, l.Len())
		_, ok := l.Peek("k0")
		assert.False(t, ok, "oldest entry should be evicted")
	})

	t.Run("invalidate forces reload", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[int]("test", 10, nil)
		require.NoError(t, err)

		var calls atomic.Int32
		load := func(context.Context) (int, error) { return int(calls.Add(1)), nil }

		v, _ := l.Get(t.Context(), "k", load)
		assert.Equal(t, 1, v)
		l.Invalidate("k")
		v, _ = l.Get(t.Context(), "k", load)
		assert.Equal(t, 2, v)

		l.Purge()
		assert.Equal(t, 0, l.Len())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		t.Parallel()

		l, err := cache.NewLoader[int]("test", 0, nil)
		require.NoError(t, err)
		assert.NotNil(t, l)
	})
}
