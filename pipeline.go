package gokg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brunobiangulo/gokg/graph"
	"github.com/brunobiangulo/gokg/graphstore"
	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/store"
	"github.com/brunobiangulo/gokg/telemetry"
)

// Phase names used in logs, spans and PhaseStats.
const (
	PhaseExtraction  = "extraction"
	PhaseAggregation = "aggregation"
	PhaseClustering  = "clustering"
	PhaseLoad        = "load"
	PhaseEnrich      = "enrich"
)

// PhaseStats summarizes one pipeline phase.
type PhaseStats struct {
	Phase     string        `json:"phase"`
	Entities  int           `json:"entities"`
	Relations int           `json:"relations"`
	Skipped   int           `json:"skipped,omitempty"`
	Reused    bool          `json:"reused,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// PipelineDeps are the collaborators of a Pipeline. Nil Embedder and
// Graph are created from the Config on first use.
type PipelineDeps struct {
	Generator *llm.Generator
	Embedder  llm.Embedder
	Graph     graphstore.Runner
	Confirm   graph.Confirmer
}

// Pipeline runs the offline phases: extraction, aggregation, clustering,
// loading into Neo4j and node embedding enrichment. Each phase reads the
// stage files of the previous one from Config.OutputDir.
type Pipeline struct {
	cfg   Config
	deps  PipelineDeps
	runID string

	mu      sync.Mutex
	closers []func(context.Context) error
}

// NewPipeline returns a Pipeline. A nil Confirm answers no to every
// question: checkpoints are not resumed and stage files are rebuilt.
func NewPipeline(cfg Config, deps PipelineDeps) *Pipeline {
	if deps.Confirm == nil {
		deps.Confirm = graph.Always(false)
	}
	return &Pipeline{cfg: cfg, deps: deps, runID: uuid.NewString()}
}

// OpenPipeline creates the chat provider from cfg and returns a Pipeline.
// Neo4j and the embedding provider are connected when a phase needs them.
func OpenPipeline(cfg Config, confirm graph.Confirmer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chat, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}
	return NewPipeline(cfg, PipelineDeps{
		Generator: llm.NewGenerator(chat, cfg.Chat.Model, cfg.retryPolicy()),
		Confirm:   confirm,
	}), nil
}

// RunID identifies this pipeline run in logs and traces.
func (p *Pipeline) RunID() string { return p.runID }

// RunExtraction extracts mentions from every chunk and writes the raw
// stage files.
func (p *Pipeline) RunExtraction(ctx context.Context) (PhaseStats, error) {
	return p.extraction(ctx, false)
}

// RunAggregation merges the raw mentions by normalized name and writes the
// aggregated stage files.
func (p *Pipeline) RunAggregation(ctx context.Context) (PhaseStats, error) {
	return p.aggregation(ctx, false)
}

// RunClustering merges aggregated records that denote the same concept and
// writes the clustered stage files.
func (p *Pipeline) RunClustering(ctx context.Context) (PhaseStats, error) {
	return p.clustering(ctx, false)
}

// RunLoad writes the clustered stage files into Neo4j.
func (p *Pipeline) RunLoad(ctx context.Context) (PhaseStats, error) {
	return p.phase(ctx, PhaseLoad, func(ctx context.Context, st *PhaseStats) error {
		entities, err := graph.ReadStage[graph.EntityCluster](p.cfg.StagePath(graph.ClusteredEntitiesFile))
		if err != nil {
			return err
		}
		relations, err := graph.ReadStage[graph.RelationCluster](p.cfg.StagePath(graph.ClusteredRelationsFile))
		if err != nil {
			return err
		}
		db, err := p.graphRunner(ctx)
		if err != nil {
			return err
		}
		ls, err := graphstore.NewLoader(db, p.cfg.LoadBatchSize).Load(ctx, entities, relations)
		if err != nil {
			return err
		}
		st.Entities, st.Relations, st.Skipped = ls.Nodes, ls.Relations, ls.SkippedRelations
		return nil
	})
}

// RunEnrich embeds graph nodes that have no embedding yet and ensures the
// vector index exists.
func (p *Pipeline) RunEnrich(ctx context.Context) (PhaseStats, error) {
	return p.phase(ctx, PhaseEnrich, func(ctx context.Context, st *PhaseStats) error {
		db, err := p.graphRunner(ctx)
		if err != nil {
			return err
		}
		embed, err := p.embedder()
		if err != nil {
			return err
		}
		n, err := graphstore.NewEnricher(db, embed, graphstore.EnricherConfig{
			BatchSize:   p.cfg.EmbedBatchSize,
			Concurrency: p.cfg.EmbedConcurrency,
			Dimensions:  p.cfg.EmbeddingDim,
			Retry:       p.cfg.retryPolicy(),
		}).Enrich(ctx)
		st.Entities = n
		return err
	})
}

// RunAll runs every phase. Existing stage files are reused when the
// Confirmer agrees. Enrichment runs only in hybrid mode.
func (p *Pipeline) RunAll(ctx context.Context) ([]PhaseStats, error) {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, "pipeline.all", attribute.String("run_id", p.runID))
	defer span.End()

	steps := []func(context.Context) (PhaseStats, error){
		func(ctx context.Context) (PhaseStats, error) { return p.extraction(ctx, true) },
		func(ctx context.Context) (PhaseStats, error) { return p.aggregation(ctx, true) },
		func(ctx context.Context) (PhaseStats, error) { return p.clustering(ctx, true) },
		p.RunLoad,
	}
	if p.cfg.Mode == ModeHybrid {
		steps = append(steps, p.RunEnrich)
	}

	var all []PhaseStats
	for _, step := range steps {
		st, err := step(ctx)
		all = append(all, st)
		if err != nil {
			span.RecordError(err)
			return all, err
		}
	}
	slog.Info("pipeline: all phases complete",
		"run_id", p.runID, "phases", len(all), "elapsed", time.Since(start).Round(time.Millisecond))
	return all, nil
}

// Close releases connections opened by the phases.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := release(p.closers)
	p.closers = nil
	return err
}

func (p *Pipeline) extraction(ctx context.Context, reuse bool) (PhaseStats, error) {
	entPath := p.cfg.StagePath(graph.RawEntitiesFile)
	relPath := p.cfg.StagePath(graph.RawRelationsFile)
	return p.phase(ctx, PhaseExtraction, func(ctx context.Context, st *PhaseStats) error {
		if reuse && p.reuse(PhaseExtraction, entPath, relPath) {
			return countStage[graph.EntityMention, graph.RelationMention](entPath, relPath, st)
		}
		chunks, err := store.ReadChunks(p.cfg.ChunksPath)
		if err != nil {
			return err
		}
		b, err := graph.NewBuilder(p.deps.Generator, graph.BuilderConfig{
			AuditDir:        p.cfg.AuditDir,
			CheckpointDir:   p.cfg.CheckpointDir,
			CheckpointEvery: p.cfg.CheckpointEvery,
			CallDelay:       p.cfg.callDelay(),
			Concurrency:     p.cfg.Concurrency,
			BatchSize:       p.cfg.ExtractBatchSize,
		}, p.deps.Confirm)
		if err != nil {
			return err
		}
		build := b.Build
		if p.cfg.Concurrent {
			build = b.BuildConcurrent
		}
		entities, relations, err := build(ctx, chunks)
		if err != nil {
			return err
		}
		st.Entities, st.Relations = len(entities), len(relations)
		return writeStages(entPath, entities, relPath, relations)
	})
}

func (p *Pipeline) aggregation(ctx context.Context, reuse bool) (PhaseStats, error) {
	entPath := p.cfg.StagePath(graph.AggregatedEntitiesFile)
	relPath := p.cfg.StagePath(graph.AggregatedRelationsFile)
	return p.phase(ctx, PhaseAggregation, func(ctx context.Context, st *PhaseStats) error {
		if reuse && p.reuse(PhaseAggregation, entPath, relPath) {
			return countStage[graph.AggregatedEntity, graph.AggregatedRelation](entPath, relPath, st)
		}
		mentions, err := graph.ReadStage[graph.EntityMention](p.cfg.StagePath(graph.RawEntitiesFile))
		if err != nil {
			return err
		}
		relMentions, err := graph.ReadStage[graph.RelationMention](p.cfg.StagePath(graph.RawRelationsFile))
		if err != nil {
			return err
		}
		entities, relations := graph.Aggregate(mentions, relMentions)
		st.Entities, st.Relations = len(entities), len(relations)
		return writeStages(entPath, entities, relPath, relations)
	})
}

func (p *Pipeline) clustering(ctx context.Context, reuse bool) (PhaseStats, error) {
	entPath := p.cfg.StagePath(graph.ClusteredEntitiesFile)
	relPath := p.cfg.StagePath(graph.ClusteredRelationsFile)
	return p.phase(ctx, PhaseClustering, func(ctx context.Context, st *PhaseStats) error {
		if reuse && p.reuse(PhaseClustering, entPath, relPath) {
			return countStage[graph.EntityCluster, graph.RelationCluster](entPath, relPath, st)
		}
		aggEntities, err := graph.ReadStage[graph.AggregatedEntity](p.cfg.StagePath(graph.AggregatedEntitiesFile))
		if err != nil {
			return err
		}
		aggRelations, err := graph.ReadStage[graph.AggregatedRelation](p.cfg.StagePath(graph.AggregatedRelationsFile))
		if err != nil {
			return err
		}
		c := graph.NewClusterer(p.deps.Generator, graph.ClusterConfig{
			EntityBatchSize:   p.cfg.EntityBatchSize,
			RelationBatchSize: p.cfg.RelationBatchSize,
			CallDelay:         p.cfg.callDelay(),
		})
		entities, relations, err := c.Cluster(ctx, aggEntities, aggRelations)
		if err != nil {
			return err
		}
		st.Entities, st.Relations = len(entities), len(relations)
		return writeStages(entPath, entities, relPath, relations)
	})
}

// phase runs fn inside a span and logs its outcome.
func (p *Pipeline) phase(ctx context.Context, name string, fn func(context.Context, *PhaseStats) error) (PhaseStats, error) {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, "pipeline."+name,
		attribute.String("run_id", p.runID), attribute.String("phase", name))
	defer span.End()

	slog.Info("pipeline: phase started", "phase", name, "run_id", p.runID)
	st := PhaseStats{Phase: name}
	err := fn(ctx, &st)
	st.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Int("entities", st.Entities),
		attribute.Int("relations", st.Relations),
		attribute.Bool("reused", st.Reused),
	)
	if err != nil {
		span.RecordError(err)
		slog.Error("pipeline: phase failed", "phase", name, "run_id", p.runID, "error", err,
			"elapsed", st.Elapsed.Round(time.Millisecond))
		return st, fmt.Errorf("%s: %w", name, err)
	}
	slog.Info("pipeline: phase complete", "phase", name, "run_id", p.runID,
		"entities", st.Entities, "relations", st.Relations, "reused", st.Reused,
		"elapsed", st.Elapsed.Round(time.Millisecond))
	return st, nil
}

// reuse asks whether existing stage files should be kept.
func (p *Pipeline) reuse(phase string, paths ...string) bool {
	if !graph.StageExists(paths...) {
		return false
	}
	return p.deps.Confirm.Confirm(fmt.Sprintf("Found %s output (%s). Reuse it?", phase, strings.Join(paths, ", ")))
}

func (p *Pipeline) graphRunner(ctx context.Context) (graphstore.Runner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deps.Graph != nil {
		return p.deps.Graph, nil
	}
	client, err := graphstore.NewClient(ctx, p.cfg.GraphConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	p.deps.Graph = client
	p.closers = append(p.closers, client.Close)
	return client, nil
}

func (p *Pipeline) embedder() (llm.Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deps.Embedder != nil {
		return p.deps.Embedder, nil
	}
	e, err := llm.NewEmbedder(p.cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	if c, ok := e.(io.Closer); ok {
		p.closers = append(p.closers, closeFunc(c))
	}
	p.deps.Embedder = e
	return e, nil
}

func writeStages[E, R any](entPath string, entities []E, relPath string, relations []R) error {
	if err := graph.WriteStage(entPath, entities); err != nil {
		return err
	}
	return graph.WriteStage(relPath, relations)
}

func countStage[E, R any](entPath, relPath string, st *PhaseStats) error {
	entities, err := graph.ReadStage[E](entPath)
	if err != nil {
		return err
	}
	relations, err := graph.ReadStage[R](relPath)
	if err != nil {
		return err
	}
	st.Entities, st.Relations, st.Reused = len(entities), len(relations), true
	return nil
}
