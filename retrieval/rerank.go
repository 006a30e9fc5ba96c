package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/normalize"
	"github.com/brunobiangulo/gokg/store"
)

// DefaultRerankTopN is how many chunks survive reranking.
const DefaultRerankTopN = 5

// Reranker orders chunks by relevance to the question, most relevant first.
// It returns a reordering of its input, possibly cut short; it never adds
// chunks.
type Reranker interface {
	Rerank(ctx context.Context, question string, chunks []store.Chunk) ([]store.Chunk, error)
}

// ChunkVectors is the part of the chunk store the embedding reranker needs.
type ChunkVectors interface {
	MissingEmbeddings(ctx context.Context, ids []string) ([]string, error)
	PutEmbedding(ctx context.Context, chunkID string, embedding []float32) error
	Similarities(ctx context.Context, query []float32, ids []string) (map[string]float64, error)
}

// EmbeddingReranker scores chunks by cosine similarity between the question
// embedding and the chunk embeddings cached in the store. Chunks without a
// cached vector are embedded on first use.
type EmbeddingReranker struct {
	query   *QueryEmbedder
	embed   llm.Embedder
	policy  llm.RetryPolicy
	vectors ChunkVectors
}

// NewEmbeddingReranker returns an EmbeddingReranker.
func NewEmbeddingReranker(query *QueryEmbedder, embed llm.Embedder, policy llm.RetryPolicy, vectors ChunkVectors) *EmbeddingReranker {
	return &EmbeddingReranker{query: query, embed: embed, policy: policy, vectors: vectors}
}

func (r *EmbeddingReranker) Rerank(ctx context.Context, question string, chunks []store.Chunk) ([]store.Chunk, error) {
	if len(chunks) < 2 {
		return chunks, nil
	}
	ids := make([]string, len(chunks))
	byID := make(map[string]store.Chunk, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
		byID[c.ChunkID] = c
	}

	missing, err := r.vectors.MissingEmbeddings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("checking chunk embeddings: %w", err)
	}
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, id := range missing {
			texts[i] = byID[id].Text
		}
		vecs, err := llm.Embed(ctx, r.embed, r.policy, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks: %w", err)
		}
		for i, id := range missing {
			if err := r.vectors.PutEmbedding(ctx, id, vecs[i]); err != nil {
				return nil, fmt.Errorf("caching chunk embedding: %w", err)
			}
		}
		slog.Debug("retrieval: chunk embeddings cached", "count", len(missing))
	}

	q, err := r.query.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	sims, err := r.vectors.Similarities(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	return orderByScore(chunks, sims), nil
}

// TextScorer is the part of the chunk store the lexical reranker needs.
type TextScorer interface {
	TextScores(ctx context.Context, terms []string, ids []string) (map[string]float64, error)
}

// LexicalReranker scores chunks with BM25 over the question keywords.
// It needs no embedding service.
type LexicalReranker struct {
	scorer TextScorer
}

// NewLexicalReranker returns a LexicalReranker.
func NewLexicalReranker(scorer TextScorer) *LexicalReranker {
	return &LexicalReranker{scorer: scorer}
}

func (r *LexicalReranker) Rerank(ctx context.Context, question string, chunks []store.Chunk) ([]store.Chunk, error) {
	if len(chunks) < 2 {
		return chunks, nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	scores, err := r.scorer.TextScores(ctx, normalize.Keywords(question), ids)
	if err != nil {
		return nil, err
	}
	return orderByScore(chunks, scores), nil
}

// PairScorer scores each passage against the query, in passage order.
// llm.CrossEncoder implements it.
type PairScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float32, error)
}

// CrossEncoderReranker scores question/chunk pairs jointly and keeps the
// topN best.
type CrossEncoderReranker struct {
	scorer PairScorer
	topN   int
}

// NewCrossEncoderReranker returns a CrossEncoderReranker. topN <= 0 means
// DefaultRerankTopN.
func NewCrossEncoderReranker(scorer PairScorer, topN int) *CrossEncoderReranker {
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	return &CrossEncoderReranker{scorer: scorer, topN: topN}
}

func (r *CrossEncoderReranker) Rerank(ctx context.Context, question string, chunks []store.Chunk) ([]store.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	passages := make([]string, len(chunks))
	for i, c := range chunks {
		passages[i] = c.Text
	}
	scores, err := r.scorer.Score(ctx, question, passages)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(chunks) {
		return nil, fmt.Errorf("cross-encoder scored %d of %d chunks", len(scores), len(chunks))
	}
	byID := make(map[string]float64, len(chunks))
	for i, c := range chunks {
		byID[c.ChunkID] = float64(scores[i])
	}
	ranked := orderByScore(chunks, byID)
	return ranked[:min(r.topN, len(ranked))], nil
}

// orderByScore sorts chunks by descending score. Unscored chunks go last;
// ties keep their input order.
func orderByScore(chunks []store.Chunk, scores map[string]float64) []store.Chunk {
	out := make([]store.Chunk, len(chunks))
	copy(out, chunks)
	score := func(c store.Chunk) float64 {
		if s, ok := scores[c.ChunkID]; ok {
			return s
		}
		return math.Inf(-1)
	}
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}
