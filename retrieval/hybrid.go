package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/brunobiangulo/gokg/graphstore"
	"github.com/brunobiangulo/gokg/telemetry"
)

// Hybrid retrieval bounds.
const (
	KeywordAnchorLimit = 50
	VectorTopK         = 20
	MaxAnchors         = 20
	ExpansionPerAnchor = 10
	ExpansionLimit     = 60
)

// HybridSource finds anchor nodes by keyword containment and by vector
// similarity over the node embeddings, fuses the two rankings and expands
// from the anchors to same-chunk and directly connected nodes. It needs
// the graph to have been enriched with embeddings.
type HybridSource struct {
	graph    graphstore.Runner
	analyzer QuestionAnalyzer
	embedder *QueryEmbedder
	text     *TextAugmenter
}

// NewHybridSource returns a HybridSource. A nil embedder disables vector
// anchors.
func NewHybridSource(graph graphstore.Runner, analyzer QuestionAnalyzer, embedder *QueryEmbedder, text *TextAugmenter) *HybridSource {
	return &HybridSource{graph: graph, analyzer: analyzer, embedder: embedder, text: text}
}

func (s *HybridSource) Retrieve(ctx context.Context, question string) (*Context, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	start := time.Now()
	ctx, span := telemetry.Start(ctx, "retrieval.hybrid")
	defer span.End()

	analysis, err := analyze(ctx, s.analyzer, question)
	if err != nil {
		return nil, err
	}
	out := &Context{Analysis: analysis, Trace: Trace{Source: "hybrid"}}

	keyword := s.keywordAnchors(ctx, analysis.SearchTerms(), &out.Trace)
	vector := s.vectorAnchors(ctx, analysis.Question, &out.Trace)
	out.Trace.KeywordAnchors = len(keyword)
	out.Trace.VectorAnchors = len(vector)

	fused := fuseRRF([]RankedList{
		{Method: "keyword", Weight: 1, IDs: keyword},
		{Method: "vector", Weight: 1, IDs: vector},
	}, MaxAnchors)
	out.Trace.FusedAnchors = len(fused)

	var rows []map[string]any
	if len(fused) > 0 {
		anchors := make([]string, len(fused))
		for i, f := range fused {
			anchors[i] = f.ID
		}
		rows = runQuery(ctx, s.graph, "expansion", expansionQuery(), map[string]any{
			"anchor_ids": anchors,
			"per_anchor": ExpansionPerAnchor,
			"limit":      ExpansionLimit,
		}, &out.Trace)
	}
	out.Trace.PrimaryRows = len(rows)

	finish(ctx, out, s.text, rows)
	out.Trace.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Int("anchors", len(fused)),
		attribute.Int("rows", len(rows)),
	)
	slog.Info("retrieval: context ready",
		"source", "hybrid", "keyword_anchors", len(keyword), "vector_anchors", len(vector),
		"rows", len(rows), "chunks", len(out.ChunkIDs), "elapsed", out.Trace.Elapsed)
	return out, nil
}

func (s *HybridSource) keywordAnchors(ctx context.Context, terms []string, trace *Trace) []string {
	if len(terms) == 0 {
		return nil
	}
	rows := runQuery(ctx, s.graph, "keyword_anchors", keywordAnchorQuery, map[string]any{
		"terms": terms,
		"limit": KeywordAnchorLimit,
	}, trace)
	return elementIDs(rows)
}

// vectorAnchors queries the node vector index. Embedding failures are
// logged and leave keyword anchors alone.
func (s *HybridSource) vectorAnchors(ctx context.Context, question string, trace *Trace) []string {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		slog.Warn("retrieval: question embedding failed, keyword anchors only", "error", err)
		return nil
	}
	rows := runQuery(ctx, s.graph, "vector_anchors", vectorAnchorQuery, map[string]any{
		"index_name": graphstore.VectorIndexName,
		"top_k":      VectorTopK,
		"embedding":  vec,
	}, trace)
	return elementIDs(rows)
}

// elementIDs reads the element_id column, in row order.
func elementIDs(rows []map[string]any) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if id := graphstore.String(r["element_id"]); id != "" {
			out = append(out, id)
		}
	}
	return out
}
