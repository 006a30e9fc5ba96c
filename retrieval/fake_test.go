package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/store"
)

type runnerCall struct {
	kind   string
	cypher string
	params map[string]any
}

// Query kinds recognised by fakeGraph.
const (
	kindNeighborhood = "neighborhood"
	kindProcedure    = "procedure"
	kindRelationship = "relationship"
	kindFallback     = "fallback"
	kindRelTypes     = "reltypes"
	kindKeyword      = "keyword"
	kindVector       = "vector"
	kindExpansion    = "expansion"
)

func queryKind(cypher string) string {
	switch {
	case strings.Contains(cypher, "*1..2]->"):
		return kindProcedure
	case strings.Contains(cypher, "shortestPath"):
		return kindRelationship
	case strings.Contains(cypher, "CONTAINS $token"):
		return kindFallback
	case strings.Contains(cypher, "DISTINCT type(r)"):
		return kindRelTypes
	case strings.Contains(cypher, "UNWIND $terms"):
		return kindKeyword
	case strings.Contains(cypher, "db.index.vector.queryNodes"):
		return kindVector
	case strings.Contains(cypher, "$anchor_ids"):
		return kindExpansion
	case strings.Contains(cypher, "$patterns"):
		return kindNeighborhood
	}
	return ""
}

type fakeAnswer struct {
	rows []map[string]any
	err  error
}

// fakeGraph answers read queries by template kind.
type fakeGraph struct {
	mu      sync.Mutex
	answers map[string]fakeAnswer
	calls   []runnerCall
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{answers: map[string]fakeAnswer{}}
}

func (g *fakeGraph) on(kind string, rows []map[string]any, err error) *fakeGraph {
	g.answers[kind] = fakeAnswer{rows: rows, err: err}
	return g
}

func (g *fakeGraph) Read(_ context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kind := queryKind(cypher)
	g.calls = append(g.calls, runnerCall{kind: kind, cypher: cypher, params: params})
	a := g.answers[kind]
	return a.rows, a.err
}

func (g *fakeGraph) Write(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, errors.New("read only")
}

func (g *fakeGraph) count(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (g *fakeGraph) last(kind string) runnerCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i].kind == kind {
			return g.calls[i]
		}
	}
	return runnerCall{}
}

type staticAnalyzer struct {
	analysis Analysis
	calls    int
}

func (s *staticAnalyzer) Analyze(_ context.Context, question string) (Analysis, error) {
	s.calls++
	a := s.analysis
	a.Question = question
	return a, nil
}

// chatProvider returns the same content for every chat call.
type chatProvider struct {
	content string
	err     error
	calls   int
}

func (c *chatProvider) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &llm.ChatResponse{Content: c.content, FinishReason: "stop"}, nil
}

func (c *chatProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// memChunks is a map-backed chunk store.
type memChunks struct {
	chunks  map[string]store.Chunk
	failing map[string]bool
}

func newMemChunks(chunks ...store.Chunk) *memChunks {
	m := &memChunks{chunks: map[string]store.Chunk{}, failing: map[string]bool{}}
	for _, c := range chunks {
		m.chunks[c.ChunkID] = c
	}
	return m
}

func (m *memChunks) GetChunk(_ context.Context, id string) (store.Chunk, bool, error) {
	if m.failing[id] {
		return store.Chunk{}, false, errors.New("disk error")
	}
	c, ok := m.chunks[id]
	return c, ok, nil
}

// reverseReranker reverses its input, or fails.
type reverseReranker struct {
	err   error
	calls int
}

func (r *reverseReranker) Rerank(_ context.Context, _ string, chunks []store.Chunk) ([]store.Chunk, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		out[len(chunks)-1-i] = c
	}
	return out, nil
}

func page(n int) *int { return &n }

func node(name, typ string, chunkIDs ...string) map[string]any {
	ids := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = id
	}
	return map[string]any{
		"name":             name,
		"type":             typ,
		"descriptions":     []any{"descrizione di " + name},
		"original_names":   []any{name},
		"occurrence_count": int64(1),
		"source_chunk_ids": ids,
	}
}

func segment(start map[string]any, rel string, end map[string]any) map[string]any {
	return map[string]any{"start": start, "rel": rel, "end": end}
}
