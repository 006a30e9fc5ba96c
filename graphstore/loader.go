package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/brunobiangulo/gokg/graph"
)

// DefaultLoadBatchSize bounds the rows sent in one UNWIND statement.
const DefaultLoadBatchSize = 500

const constraintStatement = `CREATE CONSTRAINT unique_entity_name IF NOT EXISTS
FOR (n:Entity) REQUIRE n.name IS UNIQUE`

// A repeat load overwrites node properties rather than accumulating them.
const nodeStatement = `UNWIND $entities AS e
MERGE (n:Entity {name: e.name})
SET n.type = e.type,
    n.descriptions = e.descriptions,
    n.original_names = e.original_names,
    n.original_members = e.original_members,
    n.source_chunk_ids = e.source_chunk_ids,
    n.source_pages = e.source_pages,
    n.source_sections = e.source_sections,
    n.occurrence_count = e.occurrence_count`

// %s is a backtick-quoted relationship type from graph.RelationTypes.
const edgeStatement = `UNWIND $relations AS r
MATCH (s:Entity {name: r.subject})
MATCH (o:Entity {name: r.object})
MERGE (s)-[rel:%s]->(o)
SET rel.contexts = r.contexts,
    rel.source_chunk_ids = r.source_chunk_ids,
    rel.source_pages = r.source_pages,
    rel.source_sections = r.source_sections,
    rel.occurrence_count = r.occurrence_count,
    rel.type = $type
RETURN count(rel) AS written`

// LoadStats summarizes one Load call.
type LoadStats struct {
	Nodes            int           `json:"nodes"`
	Relations        int           `json:"relations"`
	SkippedRelations int           `json:"skipped_relations"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Loader writes clustered entities and relations into Neo4j. It is the only
// writer of the graph and runs offline.
type Loader struct {
	db        Runner
	batchSize int
}

// NewLoader returns a Loader. batchSize <= 0 selects DefaultLoadBatchSize.
func NewLoader(db Runner, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultLoadBatchSize
	}
	return &Loader{db: db, batchSize: batchSize}
}

// Load upserts nodes then edges. Edges whose endpoints are missing are
// dropped by the MATCH clauses; edges with a predicate outside the
// vocabulary are skipped before reaching Cypher.
func (l *Loader) Load(ctx context.Context, entities []graph.EntityCluster, relations []graph.RelationCluster) (LoadStats, error) {
	start := time.Now()
	var stats LoadStats

	if _, err := l.db.Write(ctx, constraintStatement, nil); err != nil {
		return stats, fmt.Errorf("creating name constraint: %w", err)
	}

	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		rows = append(rows, nodeRow(e))
	}
	for batch := range slices.Chunk(rows, l.batchSize) {
		if _, err := l.db.Write(ctx, nodeStatement, map[string]any{"entities": batch}); err != nil {
			return stats, fmt.Errorf("writing nodes: %w", err)
		}
		stats.Nodes += len(batch)
	}
	slog.Info("graphstore: nodes loaded", "count", stats.Nodes)

	byPredicate := make(map[string][]map[string]any)
	var order []string
	for _, r := range relations {
		if !graph.IsRelationType(r.Predicate) {
			slog.Warn("graphstore: predicate outside vocabulary, skipping",
				"predicate", r.Predicate, "subject", r.Subject, "object", r.Object)
			stats.SkippedRelations++
			continue
		}
		if _, ok := byPredicate[r.Predicate]; !ok {
			order = append(order, r.Predicate)
		}
		byPredicate[r.Predicate] = append(byPredicate[r.Predicate], edgeRow(r))
	}

	for _, predicate := range order {
		stmt := fmt.Sprintf(edgeStatement, QuoteIdentifier(predicate))
		group := byPredicate[predicate]
		for batch := range slices.Chunk(group, l.batchSize) {
			res, err := l.db.Write(ctx, stmt, map[string]any{"relations": batch, "type": predicate})
			if err != nil {
				return stats, fmt.Errorf("writing %s edges: %w", predicate, err)
			}
			written := len(batch)
			if len(res) > 0 {
				if _, ok := res[0]["written"]; ok {
					written = Int(res[0]["written"])
				}
			}
			stats.Relations += written
			stats.SkippedRelations += len(batch) - written
		}
		slog.Debug("graphstore: edges loaded", "predicate", predicate, "count", len(group))
	}

	stats.Elapsed = time.Since(start)
	slog.Info("graphstore: load complete",
		"nodes", stats.Nodes, "relations", stats.Relations,
		"skipped", stats.SkippedRelations, "elapsed", stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

func nodeRow(e graph.EntityCluster) map[string]any {
	return map[string]any{
		"name":             e.Name,
		"type":             e.Type,
		"descriptions":     nonNil(e.Descriptions),
		"original_names":   nonNil(e.OriginalNames),
		"original_members": nonNil(e.Members),
		"source_chunk_ids": nonNil(e.SourceChunkIDs),
		"source_pages":     pageValues(e.SourcePages),
		"source_sections":  nonNil(e.SourceSections),
		"occurrence_count": int64(e.OccurrenceCount),
	}
}

func edgeRow(r graph.RelationCluster) map[string]any {
	return map[string]any{
		"subject":          r.Subject,
		"object":           r.Object,
		"contexts":         nonNil(r.Contexts),
		"source_chunk_ids": nonNil(r.SourceChunkIDs),
		"source_pages":     pageValues(r.SourcePages),
		"source_sections":  nonNil(r.SourceSections),
		"occurrence_count": int64(r.OccurrenceCount),
	}
}

// Neo4j stores integers as int64; a nil list would erase the property.
func pageValues(pages []int) []int64 {
	out := make([]int64, len(pages))
	for i, p := range pages {
		out[i] = int64(p)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// QuoteIdentifier backtick-quotes a Cypher identifier, doubling any
// embedded backticks.
func QuoteIdentifier(s string) string {
	out := make([]rune, 0, len(s)+2)
	out = append(out, '`')
	for _, r := range s {
		if r == '`' {
			out = append(out, '`')
		}
		out = append(out, r)
	}
	return string(append(out, '`'))
}
