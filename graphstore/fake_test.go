package graphstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type edgeKey struct {
	subject, predicate, object string
}

// memGraph interprets the statements issued by Loader and Enricher against
// in-memory maps with MERGE semantics.
type memGraph struct {
	mu          sync.Mutex
	nodes       map[string]map[string]any
	edges       map[edgeKey]map[string]any
	constraints int
	indexes     []string
	writes      []string
	failWrites  bool
}

func newMemGraph() *memGraph {
	return &memGraph{
		nodes: make(map[string]map[string]any),
		edges: make(map[edgeKey]map[string]any),
	}
}

func (g *memGraph) Read(_ context.Context, cypher string, _ map[string]any) ([]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case cypher == pendingNodesQuery:
		var rows []map[string]any
		for name, props := range g.nodes {
			if _, ok := props["embedding"]; ok {
				continue
			}
			rows = append(rows, map[string]any{
				"element_id":     "id:" + name,
				"name":           name,
				"type":           props["type"],
				"descriptions":   props["descriptions"],
				"original_names": props["original_names"],
			})
		}
		return rows, nil
	case strings.Contains(cypher, "DISTINCT type(r)"):
		seen := map[string]bool{}
		var rows []map[string]any
		for k := range g.edges {
			if !seen[k.predicate] {
				seen[k.predicate] = true
				rows = append(rows, map[string]any{"relationship_type": k.predicate})
			}
		}
		return rows, nil
	case strings.HasPrefix(cypher, "MATCH (n) RETURN count(n)"):
		return []map[string]any{{"total": int64(len(g.nodes))}}, nil
	case strings.HasPrefix(cypher, "MATCH ()-[r]->() RETURN count(r)"):
		return []map[string]any{{"total": int64(len(g.edges))}}, nil
	}
	return nil, errors.New("memGraph: unsupported read")
}

func (g *memGraph) Write(_ context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWrites {
		return nil, errors.New("memGraph: write refused")
	}
	g.writes = append(g.writes, cypher)
	switch {
	case cypher == constraintStatement:
		g.constraints++
	case cypher == nodeStatement:
		for _, row := range params["entities"].([]map[string]any) {
			name := row["name"].(string)
			props := g.nodes[name]
			if props == nil {
				props = map[string]any{}
				g.nodes[name] = props
			}
			for k, v := range row {
				if k != "name" {
					props[k] = v
				}
			}
		}
	case strings.HasPrefix(cypher, "UNWIND $relations"):
		predicate := params["type"].(string)
		written := 0
		for _, row := range params["relations"].([]map[string]any) {
			s, o := row["subject"].(string), row["object"].(string)
			if g.nodes[s] == nil || g.nodes[o] == nil {
				continue
			}
			props := map[string]any{}
			for k, v := range row {
				if k != "subject" && k != "object" {
					props[k] = v
				}
			}
			g.edges[edgeKey{s, predicate, o}] = props
			written++
		}
		return []map[string]any{{"written": int64(written)}}, nil
	case cypher == setEmbeddingStatement:
		for _, item := range params["batch"].([]map[string]any) {
			name := strings.TrimPrefix(item["element_id"].(string), "id:")
			if props := g.nodes[name]; props != nil {
				props["embedding"] = item["embedding"]
			}
		}
	case strings.HasPrefix(cypher, "CREATE VECTOR INDEX"):
		g.indexes = append(g.indexes, cypher)
	default:
		return nil, errors.New("memGraph: unsupported write")
	}
	return nil, nil
}
