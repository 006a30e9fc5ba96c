package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/store"
)

// Defaults for BuilderConfig.
const (
	DefaultCheckpointEvery = 10
	DefaultCallDelay       = 1500 * time.Millisecond
	DefaultConcurrency     = 5
	DefaultBatchSize       = 10

	extractionTemperature = 0.1
	extractionMaxTokens   = 4096
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(question string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(question string) bool { return f(question) }

// Always answers every question with the same value.
type Always bool

// Confirm returns a.
func (a Always) Confirm(string) bool { return bool(a) }

// BuilderConfig tunes extraction.
type BuilderConfig struct {
	// AuditDir receives <chunk_id>_input.txt and <chunk_id>_llm_output.json.
	// Empty disables auditing.
	AuditDir string
	// CheckpointDir holds extraction_checkpoint_<N>chunks.json. Empty
	// disables checkpointing.
	CheckpointDir   string
	CheckpointEvery int
	// CallDelay is the pause between consecutive model calls in Build.
	CallDelay time.Duration
	// Concurrency and BatchSize shape BuildConcurrent.
	Concurrency int
	BatchSize   int
}

func (c *BuilderConfig) applyDefaults() {
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.CallDelay < 0 {
		c.CallDelay = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Builder extracts entity and relation mentions from chunks.
type Builder struct {
	gen     *llm.Generator
	cfg     BuilderConfig
	confirm Confirmer
	audit   *auditor
	limiter *rate.Limiter
}

// NewBuilder creates a Builder. A nil confirm never resumes checkpoints.
func NewBuilder(gen *llm.Generator, cfg BuilderConfig, confirm Confirmer) (*Builder, error) {
	cfg.applyDefaults()
	a, err := newAuditor(cfg.AuditDir)
	if err != nil {
		return nil, err
	}
	if confirm == nil {
		confirm = Always(false)
	}
	limit := rate.Inf
	if cfg.CallDelay > 0 {
		limit = rate.Every(cfg.CallDelay)
	}
	return &Builder{
		gen:     gen,
		cfg:     cfg,
		confirm: confirm,
		audit:   a,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// chunkResult is what a single chunk contributes.
type chunkResult struct {
	entities  []EntityMention
	relations []RelationMention
	ok        bool
}

// run holds the accumulated state of one extraction pass.
type run struct {
	path      string
	start     int
	entities  []EntityMention
	relations []RelationMention
	succeeded int
	began     time.Time
}

// Build processes chunks one at a time, pacing model calls by CallDelay.
// A failed chunk is logged and skipped. The only error returned is context
// cancellation.
func (b *Builder) Build(ctx context.Context, chunks []store.Chunk) ([]EntityMention, []RelationMention, error) {
	r := b.resume(chunks)
	slog.Info("graph: extraction started", "chunks", len(chunks), "start", r.start, "mode", "sequential")

	for i := r.start; i < len(chunks); i++ {
		c := withID(chunks[i], i)
		if !c.Blank() {
			if err := b.limiter.Wait(ctx); err != nil {
				return r.entities, r.relations, err
			}
		}
		res := b.processChunk(ctx, c)
		if err := ctx.Err(); err != nil {
			return r.entities, r.relations, err
		}
		r.add(res)
		slog.Info("graph: chunk processed",
			"progress", fmt.Sprintf("%d/%d", i+1, len(chunks)),
			"chunk_id", c.ChunkID,
			"entities", len(res.entities), "relations", len(res.relations))

		if (i+1)%b.cfg.CheckpointEvery == 0 {
			b.checkpoint(r, i+1, len(chunks), c.ChunkID, false)
		}
	}

	b.finish(r, chunks)
	return r.entities, r.relations, nil
}

// BuildConcurrent processes chunks in batches of BatchSize with at most
// Concurrency model calls in flight. A task's error or panic yields an empty
// result for that chunk only. Results keep input order.
func (b *Builder) BuildConcurrent(ctx context.Context, chunks []store.Chunk) ([]EntityMention, []RelationMention, error) {
	r := b.resume(chunks)
	slog.Info("graph: extraction started", "chunks", len(chunks), "start", r.start,
		"mode", "concurrent", "concurrency", b.cfg.Concurrency, "batch_size", b.cfg.BatchSize)

	for lo := r.start; lo < len(chunks); lo += b.cfg.BatchSize {
		hi := min(lo+b.cfg.BatchSize, len(chunks))
		results := make([]chunkResult, hi-lo)

		var g errgroup.Group
		g.SetLimit(b.cfg.Concurrency)
		for i := lo; i < hi; i++ {
			c := withID(chunks[i], i)
			slot := &results[i-lo]
			g.Go(func() error {
				defer func() {
					if p := recover(); p != nil {
						slog.Error("graph: chunk task panicked", "chunk_id", c.ChunkID, "panic", p)
						*slot = chunkResult{}
					}
				}()
				*slot = b.processChunk(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return r.entities, r.relations, err
		}

		for _, res := range results {
			r.add(res)
		}
		slog.Info("graph: batch processed",
			"progress", fmt.Sprintf("%d/%d", hi, len(chunks)),
			"entities", len(r.entities), "relations", len(r.relations))
		b.checkpoint(r, hi, len(chunks), withID(chunks[hi-1], hi-1).ChunkID, false)
	}

	b.finish(r, chunks)
	return r.entities, r.relations, nil
}

func (r *run) add(res chunkResult) {
	if !res.ok {
		return
	}
	r.succeeded++
	r.entities = append(r.entities, res.entities...)
	r.relations = append(r.relations, res.relations...)
}

func withID(c store.Chunk, i int) store.Chunk {
	if c.ChunkID == "" {
		c.ChunkID = store.FallbackChunkID(i)
	}
	return c
}

// resume loads the checkpoint of a previous run over the same chunk count
// and, if the operator agrees, continues from its processed count.
func (b *Builder) resume(chunks []store.Chunk) *run {
	r := &run{began: time.Now()}
	if b.cfg.CheckpointDir == "" {
		return r
	}
	r.path = CheckpointPath(b.cfg.CheckpointDir, len(chunks))

	cp, err := LoadCheckpoint(r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("graph: ignoring unreadable checkpoint", "path", r.path, "error", err)
		}
		return r
	}

	question := fmt.Sprintf("Resume from checkpoint %s (%d/%d chunks, %d entities, %d relations, saved %s, last chunk %s)?",
		r.path, cp.ProcessedCount, cp.TotalChunks, len(cp.Entities), len(cp.Relations),
		cp.Timestamp.Format(time.DateTime), cp.LastProcessedChunkID)
	if !b.confirm.Confirm(question) {
		slog.Info("graph: starting from scratch", "checkpoint", r.path)
		return r
	}

	r.start = min(max(cp.ProcessedCount, 0), len(chunks))
	r.entities = cp.Entities
	r.relations = cp.Relations
	slog.Info("graph: resuming from checkpoint", "path", r.path,
		"processed", r.start, "total", len(chunks))
	return r
}

func (b *Builder) checkpoint(r *run, processed, total int, lastID string, completed bool) {
	if r.path == "" {
		return
	}
	cp := &Checkpoint{
		Entities:             r.entities,
		Relations:            r.relations,
		ProcessedCount:       processed,
		TotalChunks:          total,
		LastProcessedChunkID: lastID,
		Timestamp:            time.Now(),
		Completed:            completed,
	}
	if err := SaveCheckpoint(r.path, cp); err != nil {
		slog.Warn("graph: checkpoint failed", "path", r.path, "error", err)
		return
	}
	slog.Debug("graph: checkpoint saved", "path", r.path, "processed", processed)
}

func (b *Builder) finish(r *run, chunks []store.Chunk) {
	lastID := "unknown"
	if n := len(chunks); n > 0 {
		lastID = withID(chunks[n-1], n-1).ChunkID
	}
	b.checkpoint(r, len(chunks), len(chunks), lastID, true)
	slog.Info("graph: extraction complete",
		"chunks", len(chunks)-r.start,
		"succeeded", r.succeeded,
		"entities", len(r.entities),
		"relations", len(r.relations),
		"elapsed", time.Since(r.began).Round(time.Millisecond))
}

// processChunk runs prompt, model call, decode and provenance tagging for
// one chunk. It never fails; problems yield an empty result.
func (b *Builder) processChunk(ctx context.Context, c store.Chunk) chunkResult {
	b.audit.writeInput(c)
	if c.Blank() {
		slog.Warn("graph: skipping chunk without text", "chunk_id", c.ChunkID)
		return chunkResult{}
	}

	start := time.Now()
	out, err := b.gen.Generate(ctx, ExtractionPrompt(c), llm.ModeJSON, llm.GenerateOptions{
		System:      extractionSystemPrompt,
		Temperature: extractionTemperature,
		MaxTokens:   extractionMaxTokens,
	})
	b.audit.writeOutput(c.ChunkID, out)
	if err != nil {
		slog.Warn("graph: extraction call failed", "chunk_id", c.ChunkID, "error", err,
			"elapsed", time.Since(start).Round(time.Millisecond))
		return chunkResult{}
	}
	if out == "" {
		slog.Warn("graph: empty model output", "chunk_id", c.ChunkID)
		return chunkResult{}
	}

	d := DecodeExtraction(out)
	if !d.OK() {
		slog.Warn("graph: undecodable extraction", "chunk_id", c.ChunkID,
			"status", d.Status.String(), "error", d.Err)
		return chunkResult{}
	}

	prov := Provenance{
		ChunkID:      c.ChunkID,
		PageNumber:   c.PageNumber,
		SectionTitle: sectionTitle(c),
	}
	ents, rels := d.Value.Entities, d.Value.Relations
	for i := range ents {
		ents[i].Provenance = prov
	}
	for i := range rels {
		rels[i].Provenance = prov
	}
	return chunkResult{entities: ents, relations: rels, ok: true}
}
