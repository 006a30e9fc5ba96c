package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/gokg/llm"
)

// VectorIndexName is the node embedding index used by hybrid retrieval.
const VectorIndexName = "node_text_embeddings"

const (
	DefaultEmbedBatchSize   = 100
	DefaultEmbedConcurrency = 4
)

const pendingNodesQuery = `MATCH (n:Entity)
WHERE n.embedding IS NULL AND n.name IS NOT NULL
RETURN elementId(n) AS element_id, n.name AS name, n.type AS type,
       n.descriptions AS descriptions, n.original_names AS original_names`

const setEmbeddingStatement = `UNWIND $batch AS item
MATCH (n) WHERE elementId(n) = item.element_id
SET n.embedding = item.embedding`

// EnricherConfig tunes node embedding enrichment.
type EnricherConfig struct {
	BatchSize   int
	Concurrency int
	// Dimensions sizes the vector index. Zero takes the length of the first
	// embedding produced.
	Dimensions int
	Retry      llm.RetryPolicy
}

// Enricher attaches text embeddings to graph nodes that lack one and
// maintains the vector index over them.
type Enricher struct {
	db    Runner
	embed llm.Embedder
	cfg   EnricherConfig
}

// NewEnricher returns an Enricher.
func NewEnricher(db Runner, embed llm.Embedder, cfg EnricherConfig) *Enricher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEmbedConcurrency
	}
	return &Enricher{db: db, embed: embed, cfg: cfg}
}

type pendingNode struct {
	elementID string
	text      string
}

// Enrich embeds every pending node and returns how many were updated.
// A batch whose embedding call fails is skipped and left for the next run;
// write failures abort.
func (e *Enricher) Enrich(ctx context.Context) (int, error) {
	start := time.Now()
	rows, err := e.db.Read(ctx, pendingNodesQuery, nil)
	if err != nil {
		return 0, fmt.Errorf("listing nodes without embeddings: %w", err)
	}
	if len(rows) == 0 {
		slog.Info("graphstore: all nodes already embedded")
		return 0, nil
	}

	nodes := make([]pendingNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, pendingNode{
			elementID: String(row["element_id"]),
			text:      NodeEmbeddingText(String(row["name"]), String(row["type"]), Strings(row["descriptions"]), Strings(row["original_names"])),
		})
	}
	slog.Info("graphstore: embedding nodes", "count", len(nodes), "batch_size", e.cfg.BatchSize)

	var (
		updated atomic.Int64
		dims    atomic.Int64
	)
	dims.Store(int64(e.cfg.Dimensions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for batch := range slices.Chunk(nodes, e.cfg.BatchSize) {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, n := range batch {
				texts[i] = n.text
			}
			vectors, err := llm.Embed(gctx, e.embed, e.cfg.Retry, texts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("graphstore: embedding batch failed, skipping", "size", len(batch), "error", err)
				return nil
			}
			items := make([]map[string]any, len(batch))
			for i, n := range batch {
				items[i] = map[string]any{"element_id": n.elementID, "embedding": vectors[i]}
				if len(vectors[i]) > 0 {
					dims.CompareAndSwap(0, int64(len(vectors[i])))
				}
			}
			if _, err := e.db.Write(gctx, setEmbeddingStatement, map[string]any{"batch": items}); err != nil {
				return fmt.Errorf("writing embeddings: %w", err)
			}
			updated.Add(int64(len(batch)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(updated.Load()), err
	}

	if d := int(dims.Load()); d > 0 {
		if err := e.EnsureIndex(ctx, d); err != nil {
			return int(updated.Load()), err
		}
	}
	slog.Info("graphstore: enrichment complete",
		"updated", updated.Load(), "elapsed", time.Since(start).Round(time.Millisecond))
	return int(updated.Load()), nil
}

// EnsureIndex creates the cosine vector index over node embeddings.
func (e *Enricher) EnsureIndex(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("vector index dimensions must be positive, got %d", dimensions)
	}
	stmt := fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS
FOR (n:Entity) ON (n.embedding)
OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`,
		VectorIndexName, dimensions)
	if _, err := e.db.Write(ctx, stmt, nil); err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	return nil
}

// NodeEmbeddingText renders the text embedded for a node.
func NodeEmbeddingText(name, typ string, descriptions, variants []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nome: %s.", name)
	if typ != "" {
		fmt.Fprintf(&b, " Tipo: %s.", typ)
	}
	if len(descriptions) > 0 {
		fmt.Fprintf(&b, " Descrizione: %s.", strings.Join(descriptions, " "))
	}
	var others []string
	for _, v := range variants {
		if !strings.EqualFold(v, name) {
			others = append(others, v)
		}
	}
	if len(others) > 0 {
		fmt.Fprintf(&b, " Varianti: %s.", strings.Join(others, ", "))
	}
	return b.String()
}
