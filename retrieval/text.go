package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/brunobiangulo/gokg/store"
)

const textHeader = "--- Testo Originale dalle Guide per Contesto Aggiuntivo ---\n\n"

// ChunkGetter looks chunks up by id.
type ChunkGetter interface {
	GetChunk(ctx context.Context, id string) (store.Chunk, bool, error)
}

// TextAugmenter attaches the original text of the chunks the graph
// references.
type TextAugmenter struct {
	chunks   ChunkGetter
	reranker Reranker
	topN     int
}

// NewTextAugmenter returns a TextAugmenter. Without a reranker every
// referenced chunk is kept; with one, only the topN best.
func NewTextAugmenter(chunks ChunkGetter, reranker Reranker, topN int) *TextAugmenter {
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	return &TextAugmenter{chunks: chunks, reranker: reranker, topN: topN}
}

// Augment fetches the chunks in ids, reranks and truncates them, and
// renders them sorted by page then chunk id. Missing chunks and lookup
// errors are skipped; a reranker error keeps the original order.
func (t *TextAugmenter) Augment(ctx context.Context, question string, ids []string, trace *Trace) (string, []string) {
	if len(ids) == 0 {
		return "", nil
	}

	candidates := make([]store.Chunk, 0, len(ids))
	for _, id := range ids {
		c, found, err := t.chunks.GetChunk(ctx, id)
		if err != nil {
			slog.Warn("retrieval: chunk lookup failed", "chunk_id", id, "error", err)
			continue
		}
		if !found {
			slog.Debug("retrieval: chunk not in store", "chunk_id", id)
			continue
		}
		candidates = append(candidates, c)
	}
	trace.Candidates = len(candidates)
	if len(candidates) == 0 {
		return "", nil
	}

	kept := candidates
	if t.reranker != nil {
		ranked, err := t.reranker.Rerank(ctx, question, candidates)
		if err != nil {
			slog.Warn("retrieval: rerank failed, keeping graph order", "error", err)
			trace.RerankFailed = true
			ranked = candidates
		} else {
			trace.Reranked = true
		}
		kept = ranked[:min(t.topN, len(ranked))]
	}
	trace.ChunksKept = len(kept)

	sorted := make([]store.Chunk, len(kept))
	copy(sorted, kept)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := pageOf(sorted[i]), pageOf(sorted[j])
		if pi != pj {
			return pi < pj
		}
		return sorted[i].ChunkID < sorted[j].ChunkID
	})

	var b strings.Builder
	keptIDs := make([]string, len(sorted))
	b.WriteString(textHeader)
	for i, c := range sorted {
		keptIDs[i] = c.ChunkID
		section := c.SectionTitle
		if section == "" {
			section = "N/A"
		}
		fmt.Fprintf(&b, "Fonte: %s - Pagina %s - Sezione '%s'\n", c.SourceFile, c.Page(), section)
		b.WriteString("```\n")
		b.WriteString(c.Text)
		b.WriteString("\n```\n\n")
	}
	return strings.TrimSpace(b.String()), keptIDs
}

// Chunks without a page sort first.
func pageOf(c store.Chunk) int {
	if c.PageNumber == nil {
		return 0
	}
	return *c.PageNumber
}
