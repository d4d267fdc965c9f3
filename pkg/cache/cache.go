package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/safecommute/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	cacheLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_loads_total",
		Help: "Loader invocations by cache name and result",
	}, []string{"cache", "result"})
)

// Entry is a cached value with its absolute expiry.
type Entry[V any] struct {
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer servable at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store persists entries by string key. Implementations must be safe for concurrent use.
type Store[V any] interface {
	Get(ctx context.Context, key string) (Entry[V], bool)
	Set(ctx context.Context, key string, entry Entry[V])
}

// Purger is implemented by stores that hold expired entries until asked to drop them.
type Purger interface {
	Purge(now time.Time) int
}

type clockSetter interface {
	setClock(now func() time.Time)
}

// Loader produces the value for a missing key.
type Loader[V any] func(ctx context.Context) (V, error)

// Cache is a TTL cache with single-flight loading. Loader errors are never cached.
type Cache[K comparable, V any] struct {
	name  string
	store Store[V]
	keyFn func(K) string
	now   func() time.Time
	group singleflight.Group
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithStore replaces the default in-memory store.
func WithStore[K comparable, V any](store Store[V]) Option[K, V] {
	return func(c *Cache[K, V]) {
		if store != nil {
			c.store = store
		}
	}
}

// WithKeyFunc sets how keys are rendered for the store.
func WithKeyFunc[K comparable, V any](fn func(K) string) Option[K, V] {
	return func(c *Cache[K, V]) {
		if fn != nil {
			c.keyFn = fn
		}
	}
}

// WithClock injects the time source.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache named for metrics and logs.
func New[K comparable, V any](name string, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		name:  name,
		keyFn: func(k K) string { return fmt.Sprint(k) },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore[V]()
	}
	if clocked, ok := c.store.(clockSetter); ok {
		clocked.setClock(c.now)
	}
	return c
}

// Name returns the cache name.
func (c *Cache[K, V]) Name() string {
	return c.name
}

// Get returns the live value for key.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	value, ok := c.lookup(ctx, c.keyFn(key))
	if ok {
		cacheRequestsTotal.WithLabelValues(c.name, "hit").Inc()
	} else {
		cacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
	}
	return value, ok
}

// Set stores value under key until ttl elapses. A non-positive ttl is ignored.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	c.put(ctx, c.keyFn(key), value, ttl)
}

// GetOrLoad returns the cached value or runs loader once per key across
// concurrent callers. The loader keeps running if the caller gives up and its
// result still populates the cache. Loaders may carry caller-specific state
// such as a credential, so a failure from another caller's loader is not
// trusted: the caller then runs its own loader.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, ttl time.Duration, loader Loader[V]) (V, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	storeKey := c.keyFn(key)
	detached := context.WithoutCancel(ctx)
	ran := false
	ch := c.group.DoChan(storeKey, func() (interface{}, error) {
		ran = true
		return c.load(detached, storeKey, ttl, loader)
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if ran || !res.Shared {
				return zero, res.Err
			}
			logger.DebugContext(ctx, "shared cache load failed, loading again", zap.String("cache", c.name), zap.Error(res.Err))
			value, err := c.load(detached, storeKey, ttl, loader)
			if err != nil {
				return zero, err
			}
			return value.(V), nil
		}
		if res.Shared {
			logger.DebugContext(ctx, "cache load shared", zap.String("cache", c.name))
		}
		return res.Val.(V), nil
	}
}

func (c *Cache[K, V]) load(ctx context.Context, storeKey string, ttl time.Duration, loader Loader[V]) (interface{}, error) {
	if value, ok := c.lookup(ctx, storeKey); ok {
		return value, nil
	}

	value, err := loader(ctx)
	if err != nil {
		cacheLoadsTotal.WithLabelValues(c.name, "error").Inc()
		return nil, err
	}
	cacheLoadsTotal.WithLabelValues(c.name, "success").Inc()
	c.put(ctx, storeKey, value, ttl)
	return value, nil
}

// Purge drops expired entries when the store supports it.
func (c *Cache[K, V]) Purge() int {
	if purger, ok := c.store.(Purger); ok {
		return purger.Purge(c.now())
	}
	return 0
}

func (c *Cache[K, V]) lookup(ctx context.Context, key string) (V, bool) {
	entry, ok := c.store.Get(ctx, key)
	if !ok || entry.Expired(c.now()) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

func (c *Cache[K, V]) put(ctx context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.store.Set(ctx, key, Entry[V]{Value: value, ExpiresAt: c.now().Add(ttl)})
}
