package retrieval

import "sort"

const rrfK = 60 // RRF constant (standard value from literature)

// Fused is one id after reciprocal rank fusion.
type Fused struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Methods []string `json:"methods"`
}

// RankedList is one ranking fed into fuseRRF.
type RankedList struct {
	Method string
	Weight float64
	IDs    []string
}

// fuseRRF combines rankings with Reciprocal Rank Fusion:
// score = sum(weight_i / (k + rank_i)). Duplicate ids within one list
// count at their best rank. Ties keep first-seen order. maxResults <= 0
// keeps everything.
func fuseRRF(lists []RankedList, maxResults int) []Fused {
	type entry struct {
		Fused
		order int
	}
	fused := make(map[string]*entry)
	next := 0

	for _, l := range lists {
		seen := make(map[string]bool, len(l.IDs))
		for rank, id := range l.IDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			e, ok := fused[id]
			if !ok {
				e = &entry{Fused: Fused{ID: id}, order: next}
				next++
				fused[id] = e
			}
			e.Score += l.Weight / float64(rrfK+rank+1)
			e.Methods = append(e.Methods, l.Method)
		}
	}

	entries := make([]*entry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].order < entries[j].order
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}
	out := make([]Fused, len(entries))
	for i, e := range entries {
		out[i] = e.Fused
	}
	return out
}
