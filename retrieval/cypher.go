package retrieval

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/gokg/graphstore"
)

// QueryLimit caps the rows of every graph query.
const QueryLimit = 20

// maxProceduralTypes bounds the edge types followed by procedure queries.
const maxProceduralTypes = 8

// proceduralKeywords select the relationship types procedure queries follow.
var proceduralKeywords = []string{"passo", "azione", "procedura", "richiede", "applica", "campo", "vincola", "parte", "descritto"}

// defaultProceduralTypes is used when the graph exposes no matching type.
var defaultProceduralTypes = []string{
	"haPassoSuccessivo",
	"precede",
	"richiedeInput",
	"haCampo",
	"includeOperazione",
	"èVincolatoDa",
	"siApplicaA",
	"èParteDi",
}

// nodeProjection returns the properties read from a node variable. The
// embedding is never returned.
func nodeProjection(v string) string {
	return v + ` {.name, .type, .descriptions, .original_names, .occurrence_count, .source_chunk_ids, .original_members_chunk_ids}`
}

// segmentsOf renders the relationships in list expression rels as
// {start, rel, end} maps.
func segmentsOf(rels string) string {
	return fmt.Sprintf(`[rel IN %s | {start: %s, rel: type(rel), end: %s}]`,
		rels, nodeProjection("startNode(rel)"), nodeProjection("endNode(rel)"))
}

const matchByPatterns = `MATCH (n:Entity)
WHERE any(p IN $patterns WHERE n.name = p OR n.name CONTAINS p)`

// neighborhoodQuery returns matching nodes with their 1-hop relations.
func neighborhoodQuery() string {
	return matchByPatterns + `
OPTIONAL MATCH (n)-[r]-(:Entity)
WITH n, r LIMIT ` + fmt.Sprint(QueryLimit) + `
RETURN ` + nodeProjection("n") + ` AS n, ` + segmentsOf("CASE WHEN r IS NULL THEN [] ELSE [r] END") + ` AS segments`
}

// procedureQuery follows the given relationship types up to two hops in
// both directions.
func procedureQuery(relTypes []string) string {
	quoted := make([]string, len(relTypes))
	for i, t := range relTypes {
		quoted[i] = graphstore.QuoteIdentifier(t)
	}
	pattern := strings.Join(quoted, "|")
	return matchByPatterns + `
OPTIONAL MATCH p1 = (n)-[:` + pattern + `*1..2]->(:Entity)
OPTIONAL MATCH p2 = (n)<-[:` + pattern + `*1..2]-(:Entity)
WITH n, p1, p2 LIMIT ` + fmt.Sprint(QueryLimit) + `
RETURN ` + nodeProjection("n") + ` AS n, ` +
		segmentsOf("coalesce(relationships(p1), []) + coalesce(relationships(p2), [])") + ` AS segments`
}

// relationshipQuery finds the shortest path between nodes matching the
// first and second pattern sets.
func relationshipQuery() string {
	return `MATCH (n:Entity)
WHERE any(p IN $first WHERE n.name = p OR n.name CONTAINS p)
MATCH (m:Entity)
WHERE any(p IN $second WHERE m.name = p OR m.name CONTAINS p) AND n <> m
MATCH path = shortestPath((n)-[*..6]-(m))
WITH n, path LIMIT ` + fmt.Sprint(QueryLimit) + `
RETURN ` + nodeProjection("n") + ` AS n, ` + segmentsOf("relationships(path)") + ` AS segments`
}

// fallbackQuery matches any node whose name contains $token, with its
// 1-hop relations.
func fallbackQuery() string {
	return `MATCH (n:Entity)
WHERE n.name CONTAINS $token
OPTIONAL MATCH (n)-[r]-(:Entity)
WITH n, r LIMIT ` + fmt.Sprint(QueryLimit) + `
RETURN ` + nodeProjection("n") + ` AS n, ` + segmentsOf("CASE WHEN r IS NULL THEN [] ELSE [r] END") + ` AS segments`
}

const keywordAnchorQuery = `UNWIND $terms AS term
MATCH (node:Entity)
WHERE toLower(node.name) CONTAINS term
   OR any(o IN coalesce(node.original_names, []) WHERE toLower(o) CONTAINS term)
WITH DISTINCT node LIMIT $limit
RETURN elementId(node) AS element_id`

const vectorAnchorQuery = `CALL db.index.vector.queryNodes($index_name, $top_k, $embedding)
YIELD node, score
RETURN elementId(node) AS element_id, score`

// expansionQuery returns the anchors, nodes sharing a chunk with an anchor
// and direct neighbors of an anchor.
func expansionQuery() string {
	return `MATCH (anchor:Entity) WHERE elementId(anchor) IN $anchor_ids
OPTIONAL MATCH (same:Entity)
WHERE same <> anchor
  AND any(c IN coalesce(same.source_chunk_ids, []) WHERE c IN coalesce(anchor.source_chunk_ids, []))
WITH anchor, collect(DISTINCT same)[..$per_anchor] AS same_chunk
OPTIONAL MATCH (anchor)--(direct:Entity)
WITH anchor, same_chunk, collect(DISTINCT direct)[..$per_anchor] AS direct
WITH collect(anchor) AS anchors, collect(same_chunk) AS sc, collect(direct) AS dn
WITH anchors + reduce(acc = [], l IN sc | acc + l) + reduce(acc = [], l IN dn | acc + l) AS nodes
UNWIND nodes AS node
WITH DISTINCT node LIMIT $limit
RETURN ` + nodeProjection("node") + ` AS n`
}

// proceduralTypes picks up to maxProceduralTypes relationship types whose
// name contains a procedural keyword, or the defaults when none does.
func proceduralTypes(available []string) []string {
	var out []string
	for _, t := range available {
		lower := strings.ToLower(t)
		for _, k := range proceduralKeywords {
			if strings.Contains(lower, k) {
				out = append(out, t)
				break
			}
		}
		if len(out) == maxProceduralTypes {
			break
		}
	}
	if len(out) == 0 {
		return defaultProceduralTypes
	}
	return out
}

// fallbackToken is the first word of the first key entity, lowercased.
func fallbackToken(a Analysis) string {
	if len(a.KeyEntities) == 0 {
		return ""
	}
	fields := strings.Fields(strings.ToLower(a.KeyEntities[0].Name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
