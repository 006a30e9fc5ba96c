// Package cache holds query-time caches: an in-process LRU for query
// embeddings, an optional Redis tier shared between processes, and a
// short-lived cache for values read from the graph.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize bounds the in-process query embedding LRU.
const DefaultEmbeddingCacheSize = 32

// Vectors stores embeddings by key. Implementations treat backend failures
// as misses.
type Vectors interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key string, v []float32)
}

// Key derives a cache key from the embedding model and the embedded text.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// LRU is an in-process Vectors.
type LRU struct {
	c *lru.Cache[string, []float32]
}

// NewLRU returns an LRU holding at most size entries.
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	c, _ := lru.New[string, []float32](size)
	return &LRU{c: c}
}

func (l *LRU) Get(_ context.Context, key string) ([]float32, bool) {
	return l.c.Get(key)
}

func (l *LRU) Put(_ context.Context, key string, v []float32) {
	l.c.Add(key, v)
}

// Len reports the number of cached entries.
func (l *LRU) Len() int { return l.c.Len() }

// Tiered checks the local cache first and falls back to a shared one,
// copying shared hits into the local tier.
type Tiered struct {
	local  Vectors
	shared Vectors
}

// NewTiered combines two tiers. A nil shared tier makes Tiered behave as
// local alone.
func NewTiered(local, shared Vectors) *Tiered {
	return &Tiered{local: local, shared: shared}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := t.local.Get(ctx, key); ok {
		return v, true
	}
	if t.shared == nil {
		return nil, false
	}
	v, ok := t.shared.Get(ctx, key)
	if ok {
		slog.Debug("cache: shared tier hit", "key", key[:min(len(key), 12)])
		t.local.Put(ctx, key, v)
	}
	return v, ok
}

func (t *Tiered) Put(ctx context.Context, key string, v []float32) {
	t.local.Put(ctx, key, v)
	if t.shared != nil {
		t.shared.Put(ctx, key, v)
	}
}
