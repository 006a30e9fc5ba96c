package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brunobiangulo/gokg/store"
)

func numberedChunks(n int) (*memChunks, []string) {
	m := newMemChunks()
	ids := make([]string, n)
	for i := range n {
		id := fmt.Sprintf("c%02d", i)
		ids[i] = id
		m.chunks[id] = store.Chunk{ChunkID: id, Text: "testo " + id, SourceFile: "guida.pdf", PageNumber: page(i)}
	}
	return m, ids
}

func TestAugmentKeepsTopNAfterRerank(t *testing.T) {
	chunks, ids := numberedChunks(8)
	rr := &reverseReranker{}
	aug := NewTextAugmenter(chunks, rr, 5)

	var trace Trace
	_, kept := aug.Augment(context.Background(), "domanda", ids, &trace)

	assert.Equal(t, 1, rr.calls)
	assert.Equal(t, []string{"c03", "c04", "c05", "c06", "c07"}, kept)
	assert.True(t, trace.Reranked)
	assert.Equal(t, 8, trace.Candidates)
	assert.Equal(t, 5, trace.ChunksKept)
}

func TestAugmentRerankErrorKeepsGraphOrder(t *testing.T) {
	chunks, ids := numberedChunks(7)
	aug := NewTextAugmenter(chunks, &reverseReranker{err: errors.New("model down")}, 5)

	var trace Trace
	text, kept := aug.Augment(context.Background(), "domanda", ids, &trace)

	assert.Equal(t, []string{"c00", "c01", "c02", "c03", "c04"}, kept)
	assert.True(t, trace.RerankFailed)
	assert.False(t, trace.Reranked)
	assert.NotEmpty(t, text)
}

func TestAugmentWithoutRerankerKeepsEverything(t *testing.T) {
	chunks, ids := numberedChunks(9)
	var trace Trace
	_, kept := NewTextAugmenter(chunks, nil, 5).Augment(context.Background(), "q", ids, &trace)
	assert.Len(t, kept, 9)
}

func TestAugmentSkipsMissingAndFailingChunks(t *testing.T) {
	chunks := newMemChunks(
		store.Chunk{ChunkID: "a", Text: "alfa", SourceFile: "x.pdf"},
		store.Chunk{ChunkID: "b", Text: "beta", SourceFile: "x.pdf", PageNumber: page(1)},
	)
	chunks.failing["b"] = true

	var trace Trace
	text, kept := NewTextAugmenter(chunks, nil, 0).Augment(context.Background(), "q", []string{"b", "missing", "a"}, &trace)

	assert.Equal(t, []string{"a"}, kept)
	assert.Equal(t, 1, trace.Candidates)
	assert.Contains(t, text, "Fonte: x.pdf - Pagina N/A - Sezione 'N/A'")
}

func TestAugmentNothingFound(t *testing.T) {
	var trace Trace
	text, kept := NewTextAugmenter(newMemChunks(), nil, 0).Augment(context.Background(), "q", []string{"nope"}, &trace)
	assert.Empty(t, text)
	assert.Empty(t, kept)
}
