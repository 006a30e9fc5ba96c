package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/brunobiangulo/gokg/cache"
	"github.com/brunobiangulo/gokg/graphstore"
	"github.com/brunobiangulo/gokg/normalize"
	"github.com/brunobiangulo/gokg/telemetry"
)

// relTypesTTL bounds how long the relationship types present in the graph
// are remembered. The graph only changes when the loader runs.
const relTypesTTL = 10 * time.Minute

// AggregatedSource answers from the graph built over aggregated and
// clustered entities: an intent-specific query, one looser fallback, then
// the original text of the referenced chunks.
type AggregatedSource struct {
	graph    graphstore.Runner
	analyzer QuestionAnalyzer
	text     *TextAugmenter
	relTypes *cache.TTL[[]string]
}

// NewAggregatedSource returns an AggregatedSource. A nil text augmenter
// leaves the text context empty.
func NewAggregatedSource(graph graphstore.Runner, analyzer QuestionAnalyzer, text *TextAugmenter) *AggregatedSource {
	return &AggregatedSource{
		graph:    graph,
		analyzer: analyzer,
		text:     text,
		relTypes: cache.NewTTL[[]string](1, relTypesTTL),
	}
}

func (s *AggregatedSource) Retrieve(ctx context.Context, question string) (*Context, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	start := time.Now()
	ctx, span := telemetry.Start(ctx, "retrieval.aggregated")
	defer span.End()

	analysis, err := analyze(ctx, s.analyzer, question)
	if err != nil {
		return nil, err
	}
	out := &Context{Analysis: analysis, Trace: Trace{Source: "aggregated"}}
	out.Trace.Patterns = analysis.SearchPatterns()

	rows := s.primary(ctx, analysis, out.Trace.Patterns, &out.Trace)
	out.Trace.PrimaryRows = len(rows)

	if len(rows) == 0 {
		if token := fallbackToken(analysis); token != "" {
			out.Trace.FallbackUsed = true
			rows = s.query(ctx, "fallback", fallbackQuery(), map[string]any{"token": token}, &out.Trace)
			out.Trace.FallbackRows = len(rows)
		}
	}

	finish(ctx, out, s.text, rows)
	out.Trace.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.String("intent", string(analysis.Intent)),
		attribute.Int("rows", len(rows)),
		attribute.Bool("fallback", out.Trace.FallbackUsed),
	)
	slog.Info("retrieval: context ready",
		"source", "aggregated", "intent", analysis.Intent,
		"primary_rows", out.Trace.PrimaryRows, "fallback", out.Trace.FallbackUsed,
		"chunks", len(out.ChunkIDs), "elapsed", out.Trace.Elapsed)
	return out, nil
}

// primary runs the template selected by the intent.
func (s *AggregatedSource) primary(ctx context.Context, a Analysis, patterns []string, trace *Trace) []map[string]any {
	switch a.Intent {
	case IntentProcedure:
		types := proceduralTypes(s.relationshipTypes(ctx))
		return s.query(ctx, "procedure", procedureQuery(types), map[string]any{"patterns": patterns}, trace)
	case IntentRelationship:
		if len(a.KeyEntities) >= 2 {
			params := map[string]any{
				"first":  normalize.SearchPatterns(a.KeyEntities[0].Name),
				"second": normalize.SearchPatterns(a.KeyEntities[1].Name),
			}
			return s.query(ctx, "relationship", relationshipQuery(), params, trace)
		}
	}
	if len(patterns) == 0 {
		return nil
	}
	return s.query(ctx, "neighborhood", neighborhoodQuery(), map[string]any{"patterns": patterns}, trace)
}

// relationshipTypes lists the relationship types present in the graph. On
// failure it returns nil and the procedural defaults apply.
func (s *AggregatedSource) relationshipTypes(ctx context.Context) []string {
	types, err := s.relTypes.GetOrLoad(ctx, "types", func(ctx context.Context) ([]string, error) {
		return graphstore.RelationshipTypes(ctx, s.graph)
	})
	if err != nil {
		slog.Warn("retrieval: listing relationship types failed", "error", err)
		return nil
	}
	return types
}

func (s *AggregatedSource) query(ctx context.Context, name, cypher string, params map[string]any, trace *Trace) []map[string]any {
	return runQuery(ctx, s.graph, name, cypher, params, trace)
}

// runQuery executes a read query. A store failure is logged, counted in
// the trace and treated as no rows.
func runQuery(ctx context.Context, graph graphstore.Runner, name, cypher string, params map[string]any, trace *Trace) []map[string]any {
	ctx, span := telemetry.Start(ctx, "retrieval.query", attribute.String("query", name))
	defer span.End()
	rows, err := graph.Read(ctx, cypher, params)
	if err != nil {
		trace.GraphErrors++
		span.RecordError(err)
		slog.Warn("retrieval: graph query failed", "query", name, "error", err)
		return nil
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	slog.Debug("retrieval: graph query", "query", name, "rows", len(rows))
	return rows
}

// analyze validates the question and runs the analyzer, degrading to a
// keyword analysis when none is configured.
func analyze(ctx context.Context, analyzer QuestionAnalyzer, question string) (Analysis, error) {
	if analyzer == nil {
		return KeywordAnalysis(question), nil
	}
	ctx, span := telemetry.Start(ctx, "retrieval.analyze")
	defer span.End()
	return analyzer.Analyze(ctx, question)
}

// finish formats rows into the graph context and attaches the text of the
// referenced chunks.
func finish(ctx context.Context, out *Context, text *TextAugmenter, rows []map[string]any) {
	graphText, ids := FormatGraph(rows)
	out.GraphContext = graphText
	out.ChunkIDs = ids
	if text == nil || len(ids) == 0 {
		return
	}
	ctx, span := telemetry.Start(ctx, "retrieval.augment", attribute.Int("chunk_ids", len(ids)))
	defer span.End()
	out.TextContext, out.TextChunkIDs = text.Augment(ctx, out.Analysis.Question, ids, &out.Trace)
}
