package retrieval

import (
	"context"
	"errors"

	"github.com/brunobiangulo/gokg/cache"
	"github.com/brunobiangulo/gokg/llm"
)

// QueryEmbedder embeds question text, caching vectors by model and text.
type QueryEmbedder struct {
	embed  llm.Embedder
	model  string
	policy llm.RetryPolicy
	cache  cache.Vectors
}

// NewQueryEmbedder returns a QueryEmbedder. A nil cache gets an in-process
// LRU of cache.DefaultEmbeddingCacheSize entries.
func NewQueryEmbedder(embed llm.Embedder, model string, policy llm.RetryPolicy, vectors cache.Vectors) *QueryEmbedder {
	if vectors == nil {
		vectors = cache.NewLRU(cache.DefaultEmbeddingCacheSize)
	}
	return &QueryEmbedder{embed: embed, model: model, policy: policy, cache: vectors}
}

// Embed returns the embedding of text.
func (q *QueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(q.model, text)
	if v, ok := q.cache.Get(ctx, key); ok {
		return v, nil
	}
	out, err := llm.Embed(ctx, q.embed, q.policy, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	q.cache.Put(ctx, key, out[0])
	return out[0], nil
}
