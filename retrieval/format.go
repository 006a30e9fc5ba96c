package retrieval

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/gokg/graphstore"
)

// NoGraphInformation is the graph context of an empty result.
const NoGraphInformation = "Nessuna informazione trovata nel Knowledge Graph."

const graphHeader = "Informazioni rilevanti trovate nel Knowledge Graph:\n\n"

// maxVariants bounds the surface variants printed per node.
const maxVariants = 3

// FormatGraph renders rows returned by the graph queries as Italian text
// and collects the chunk ids referenced by every node seen. Each row holds
// a node under "n" and optionally a list of {start, rel, end} maps under
// "segments". Nodes are deduplicated by name and type, relations by
// (subject, relation, object).
func FormatGraph(rows []map[string]any) (string, []string) {
	if len(rows) == 0 {
		return NoGraphInformation, nil
	}

	var (
		b        strings.Builder
		chunkIDs orderedIDs
		nodes    = make(map[string]bool)
		rels     = make(map[string]bool)
	)
	b.WriteString(graphHeader)

	for _, row := range rows {
		if n := graphstore.Map(row["n"]); n != nil {
			key := graphstore.String(n["name"]) + "\x00" + graphstore.String(n["type"])
			if !nodes[key] {
				nodes[key] = true
				chunkIDs.addNode(n)
				writeNode(&b, n)
			}
		}
		for _, seg := range graphstore.Maps(row["segments"]) {
			start, end := graphstore.Map(seg["start"]), graphstore.Map(seg["end"])
			rel := graphstore.String(seg["rel"])
			if start == nil || end == nil || rel == "" {
				continue
			}
			s, o := graphstore.String(start["name"]), graphstore.String(end["name"])
			key := s + "\x00" + rel + "\x00" + o
			if rels[key] {
				continue
			}
			rels[key] = true
			chunkIDs.addNode(start)
			chunkIDs.addNode(end)
			fmt.Fprintf(&b, "→ **Relazione**: %s --[%s]--> %s\n", s, rel, o)
			if d := firstDescription(end); d != "" {
				fmt.Fprintf(&b, "  • Dettaglio: %s\n", d)
			}
			b.WriteString("\n")
		}
	}

	if len(nodes) == 0 && len(rels) == 0 {
		return NoGraphInformation, nil
	}
	return strings.TrimSpace(b.String()), chunkIDs.items
}

func writeNode(b *strings.Builder, n map[string]any) {
	name := graphstore.String(n["name"])
	if name == "" {
		name = "N/A"
	}
	fmt.Fprintf(b, "✓ **Entità trovata**: %s\n", name)
	if t := graphstore.String(n["type"]); t != "" {
		fmt.Fprintf(b, "  • Tipo: %s\n", t)
	}
	if descs := graphstore.Strings(n["descriptions"]); len(descs) > 0 {
		fmt.Fprintf(b, "  • Descrizione: %s\n", strings.Join(descs, " | "))
	}
	if c := graphstore.Int(n["occurrence_count"]); c > 0 {
		fmt.Fprintf(b, "  • Occorrenze nel testo: %d\n", c)
	}
	if variants := graphstore.Strings(n["original_names"]); len(variants) > 0 {
		more := ""
		if len(variants) > maxVariants {
			variants, more = variants[:maxVariants], "..."
		}
		fmt.Fprintf(b, "  • Varianti trovate: %s%s\n", strings.Join(variants, ", "), more)
	}
	b.WriteString("\n")
}

func firstDescription(n map[string]any) string {
	if descs := graphstore.Strings(n["descriptions"]); len(descs) > 0 {
		return descs[0]
	}
	return ""
}

type orderedIDs struct {
	seen  map[string]bool
	items []string
}

func (o *orderedIDs) add(id string) {
	if id == "" {
		return
	}
	if o.seen == nil {
		o.seen = make(map[string]bool)
	}
	if !o.seen[id] {
		o.seen[id] = true
		o.items = append(o.items, id)
	}
}

func (o *orderedIDs) addNode(n map[string]any) {
	for _, key := range []string{"source_chunk_ids", "original_members_chunk_ids"} {
		for _, id := range graphstore.Strings(n[key]) {
			o.add(id)
		}
	}
}
