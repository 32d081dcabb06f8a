package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gi8lino/jiralink/internal/metrics"
)

// DefaultSize is the number of entries a Loader keeps when no size is given.
const DefaultSize = 1000

// LoadFunc fetches the value for a key on a cache miss.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Loader is a bounded memoizing store keyed by the exact input string.
// Concurrent misses for the same key share one LoadFunc call; failed loads are never stored.
type Loader[V any] struct {
	name    string
	entries *lru.Cache[string, V]
	group   singleflight.Group
	metrics *metrics.Collector
}

// NewLoader constructs a Loader holding at most size entries.
func NewLoader[V any](name string, size int, m *metrics.Collector) (*Loader[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", name, err)
	}
	return &Loader[V]{name: name, entries: entries, metrics: m}, nil
}

// Get returns the cached value for key, or calls load exactly once for all concurrent callers.
// The load is detached from the cancellation of the caller that started it; a caller whose
// context ends stops waiting with ctx.Err() and leaves the flight running for the others.
func (l *Loader[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	var zero V
	if v, ok := l.entries.Get(key); ok {
		l.metrics.ObserveCache(l.name, metrics.CacheHit)
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		// a flight that finished between our miss and DoChan already stored the value
		if v, ok := l.entries.Get(key); ok {
			l.metrics.ObserveCache(l.name, metrics.CacheHit)
			return v, nil
		}
		l.metrics.ObserveCache(l.name, metrics.CacheMiss)
		v, err := load(loadCtx)
		if err != nil {
			l.metrics.ObserveCache(l.name, metrics.CacheError)
			return v, err
		}
		l.entries.Add(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns a cached value without loading or touching recency.
func (l *Loader[V]) Peek(key string) (V, bool) {
	return l.entries.Peek(key)
}

// Invalidate removes key from the cache.
func (l *Loader[V]) Invalidate(key string) {
	l.entries.Remove(key)
}

// Purge removes all entries.
func (l *Loader[V]) Purge() {
	l.entries.Purge()
}

// Len returns the number of cached entries.
func (l *Loader[V]) Len() int {
	return l.entries.Len()
}
