package graph

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/brunobiangulo/gokg/normalize"
)

// provenanceSet accumulates the provenance lists shared by every aggregate.
type provenanceSet struct {
	chunkIDs []string
	pages    []int
	sections []string
}

func (p *provenanceSet) add(pr Provenance) {
	if pr.ChunkID != "" {
		p.chunkIDs = append(p.chunkIDs, pr.ChunkID)
	}
	if pr.PageNumber != nil {
		p.pages = append(p.pages, *pr.PageNumber)
	}
	if pr.SectionTitle != "" {
		p.sections = append(p.sections, pr.SectionTitle)
	}
}

type entityBucket struct {
	names        []string
	types        []string
	descriptions []string
	prov         provenanceSet
	count        int
}

// Aggregate merges raw mentions by normalized identity. It is pure: the same
// input always yields the same, sorted output.
func Aggregate(entities []EntityMention, relations []RelationMention) ([]AggregatedEntity, []AggregatedRelation) {
	return AggregateEntities(entities), AggregateRelations(relations)
}

// AggregateEntities buckets mentions by normalize.Normalize(name). The
// canonical type and name are the most frequent ones, ties going to the
// first seen. Mentions whose name normalizes to "" are skipped.
func AggregateEntities(mentions []EntityMention) []AggregatedEntity {
	buckets := make(map[string]*entityBucket)
	skipped := 0
	for _, m := range mentions {
		name := strings.TrimSpace(m.Name)
		key := normalize.Normalize(name)
		if key == "" {
			skipped++
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &entityBucket{}
			buckets[key] = b
		}
		b.names = append(b.names, name)
		if t := strings.TrimSpace(m.Type); t != "" {
			b.types = append(b.types, t)
		}
		if d := strings.TrimSpace(m.Description); d != "" {
			b.descriptions = append(b.descriptions, d)
		}
		b.prov.add(m.Provenance)
		b.count++
	}

	out := make([]AggregatedEntity, 0, len(buckets))
	for key, b := range buckets {
		out = append(out, AggregatedEntity{
			Name:            key,
			CanonicalName:   majority(b.names),
			Type:            majority(b.types),
			OriginalNames:   uniqueSorted(b.names),
			DetectedTypes:   uniqueSorted(b.types),
			Descriptions:    uniqueSorted(b.descriptions),
			SourceChunkIDs:  uniqueSorted(b.prov.chunkIDs),
			SourcePages:     uniqueSorted(b.prov.pages),
			SourceSections:  uniqueSorted(b.prov.sections),
			OccurrenceCount: b.count,
		})
	}
	slices.SortFunc(out, func(a, b AggregatedEntity) int { return cmp.Compare(a.Name, b.Name) })

	slog.Info("graph: entities aggregated", "mentions", len(mentions), "unique", len(out), "skipped", skipped)
	return out
}

type tripleKey struct {
	subject, predicate, object string
}

type relationBucket struct {
	contexts []string
	prov     provenanceSet
	count    int
}

// AggregateRelations buckets mentions by normalized subject, trimmed
// predicate and normalized object.
func AggregateRelations(mentions []RelationMention) []AggregatedRelation {
	buckets := make(map[tripleKey]*relationBucket)
	skipped := 0
	for _, m := range mentions {
		k := tripleKey{
			subject:   normalize.Normalize(m.Subject),
			predicate: strings.TrimSpace(m.Predicate),
			object:    normalize.Normalize(m.Object),
		}
		if k.subject == "" || k.predicate == "" || k.object == "" {
			skipped++
			continue
		}
		b, ok := buckets[k]
		if !ok {
			b = &relationBucket{}
			buckets[k] = b
		}
		if c := strings.TrimSpace(m.Context); c != "" {
			b.contexts = append(b.contexts, c)
		}
		b.prov.add(m.Provenance)
		b.count++
	}

	out := make([]AggregatedRelation, 0, len(buckets))
	for k, b := range buckets {
		out = append(out, AggregatedRelation{
			Subject:         k.subject,
			Predicate:       k.predicate,
			Object:          k.object,
			Contexts:        uniqueSorted(b.contexts),
			SourceChunkIDs:  uniqueSorted(b.prov.chunkIDs),
			SourcePages:     uniqueSorted(b.prov.pages),
			SourceSections:  uniqueSorted(b.prov.sections),
			OccurrenceCount: b.count,
		})
	}
	slices.SortFunc(out, func(a, b AggregatedRelation) int {
		return cmp.Or(
			cmp.Compare(a.Subject, b.Subject),
			cmp.Compare(a.Predicate, b.Predicate),
			cmp.Compare(a.Object, b.Object),
		)
	})

	slog.Info("graph: relations aggregated", "mentions", len(mentions), "unique", len(out), "skipped", skipped)
	return out
}

// majority returns the most frequent value, ties going to the one seen
// first. It returns "" for an empty slice.
func majority(values []string) string {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best, bestN := "", 0
	for _, v := range order {
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}

// uniqueSorted returns a sorted copy of values without duplicates. It never
// returns nil so that JSON output carries [] rather than null.
func uniqueSorted[T cmp.Ordered](values []T) []T {
	out := slices.Clone(values)
	if out == nil {
		out = []T{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
