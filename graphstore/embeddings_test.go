package graphstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/gokg/graph"
	"github.com/brunobiangulo/gokg/llm"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	dims   int
	calls  int
	failOn int // 1-based call number that fails; 0 never
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == f.failOn {
		return nil, errors.New("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func loadNodes(t *testing.T, db *memGraph, n int) {
	t.Helper()
	entities := make([]graph.EntityCluster, n)
	for i := range entities {
		entities[i] = graph.EntityCluster{Name: fmt.Sprintf("entita %d", i), Type: "Condizione"}
	}
	_, err := NewLoader(db, 0).Load(context.Background(), entities, nil)
	require.NoError(t, err)
}

func TestEnrichEmbedsPendingNodes(t *testing.T) {
	db := newMemGraph()
	loadNodes(t, db, 25)
	emb := &fakeEmbedder{dims: 8}

	e := NewEnricher(db, emb, EnricherConfig{BatchSize: 10, Retry: llm.RetryPolicy{MaxAttempts: 1}})
	n, err := e.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, 3, emb.calls)
	for name, props := range db.nodes {
		assert.Len(t, props["embedding"], 8, name)
	}
	require.Len(t, db.indexes, 1)
	assert.Contains(t, db.indexes[0], VectorIndexName)
	assert.Contains(t, db.indexes[0], ": 8,")
	assert.Contains(t, db.indexes[0], "'cosine'")

	// a second run finds nothing to do
	n, err = e.Enrich(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, emb.calls)
}

func TestEnrichSkipsFailedBatch(t *testing.T) {
	db := newMemGraph()
	loadNodes(t, db, 20)
	emb := &fakeEmbedder{dims: 4, failOn: 1}

	e := NewEnricher(db, emb, EnricherConfig{BatchSize: 10, Concurrency: 1, Retry: llm.RetryPolicy{MaxAttempts: 1}})
	n, err := e.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	missing := 0
	for _, props := range db.nodes {
		if _, ok := props["embedding"]; !ok {
			missing++
		}
	}
	assert.Equal(t, 10, missing)
}

func TestEnrichUsesConfiguredDimensions(t *testing.T) {
	db := newMemGraph()
	loadNodes(t, db, 2)

	e := NewEnricher(db, &fakeEmbedder{dims: 4}, EnricherConfig{Dimensions: 768, Retry: llm.RetryPolicy{MaxAttempts: 1}})
	_, err := e.Enrich(context.Background())
	require.NoError(t, err)
	require.Len(t, db.indexes, 1)
	assert.Contains(t, db.indexes[0], ": 768,")
}

func TestEnsureIndexRejectsZeroDimensions(t *testing.T) {
	e := NewEnricher(newMemGraph(), &fakeEmbedder{}, EnricherConfig{})
	assert.Error(t, e.EnsureIndex(context.Background(), 0))
}

func TestNodeEmbeddingText(t *testing.T) {
	got := NodeEmbeddingText("offerta", "DocumentoSistema",
		[]string{"documento inviato"}, []string{"Offerta", "Offerta Economica"})
	assert.Equal(t, "Nome: offerta. Tipo: DocumentoSistema. Descrizione: documento inviato. Varianti: Offerta Economica.", got)

	assert.Equal(t, "Nome: bando.", NodeEmbeddingText("bando", "", nil, nil))
}
