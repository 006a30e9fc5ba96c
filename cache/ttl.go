package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Loader fetches a value on a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

// TTL caches a small set of values, each for a fixed lifetime. It suits
// values that change only when the graph is reloaded, such as the
// relationship types present.
type TTL[V any] struct {
	c *expirable.LRU[string, V]
}

// NewTTL returns a TTL cache holding at most size entries for ttl each.
func NewTTL[V any](size int, ttl time.Duration) *TTL[V] {
	return &TTL[V]{c: expirable.NewLRU[string, V](size, nil, ttl)}
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Load errors are returned and nothing is cached.
func (t *TTL[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, ok := t.c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	t.c.Add(key, v)
	return v, nil
}

// Purge drops every entry.
func (t *TTL[V]) Purge() { t.c.Purge() }
