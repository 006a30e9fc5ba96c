package reasoning

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Source is a chunk whose text was given to the model.
type Source struct {
	ChunkID    string `json:"chunk_id"`
	SourceFile string `json:"source_file"`
	Page       string `json:"page"`
	Section    string `json:"section,omitempty"`
}

// Citation is a reference found in an answer.
type Citation struct {
	Text      string `json:"text"`
	SourceRef string `json:"source_ref"`
	ChunkID   string `json:"chunk_id,omitempty"`
	Verified  bool   `json:"verified"`
}

var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([^()]+\.(?:pdf|xlsx|txt|md))[^)]*\)`), // (guida.pdf, Pagina 3)
	regexp.MustCompile(`(?i)(?:pagina|pag\.|p\.)\s*(\d+)`),        // Pagina 12
	regexp.MustCompile(`(?i)sezione\s+'([^']+)'`),                 // Sezione 'Accesso'
	regexp.MustCompile(`\[Fonte\s*(\d+)\]`),                       // [Fonte 1]
}

func (s *Synthesizer) sources(ctx context.Context, ids []string) []Source {
	out := make([]Source, 0, len(ids))
	for _, id := range ids {
		src := Source{ChunkID: id}
		if s.chunks != nil {
			c, found, err := s.chunks.GetChunk(ctx, id)
			switch {
			case err != nil:
				slog.Warn("reasoning: source lookup failed", "chunk_id", id, "error", err)
			case found:
				src.SourceFile = c.SourceFile
				src.Page = c.Page()
				src.Section = c.SectionTitle
			}
		}
		out = append(out, src)
	}
	return out
}

// ExtractCitations finds references to guides, pages and sections in an
// answer and matches them against the sources.
func ExtractCitations(answer string, sources []Source) []Citation {
	var citations []Citation
	seen := make(map[string]bool)
	for _, pattern := range citationPatterns {
		for _, m := range pattern.FindAllStringSubmatch(answer, -1) {
			ref := strings.TrimSpace(m[0])
			if seen[ref] {
				continue
			}
			seen[ref] = true
			c := Citation{Text: ref, SourceRef: strings.TrimSpace(m[1])}
			c.ChunkID, c.Verified = matchCitation(c.SourceRef, sources)
			citations = append(citations, c)
		}
	}
	return citations
}

// matchCitation resolves a reference by file name, section, page and
// finally by 1-based source position.
func matchCitation(ref string, sources []Source) (string, bool) {
	lower := strings.ToLower(ref)
	for _, s := range sources {
		if s.SourceFile != "" && strings.Contains(strings.ToLower(s.SourceFile), lower) {
			return s.ChunkID, true
		}
	}
	for _, s := range sources {
		if s.Section != "" && strings.Contains(strings.ToLower(s.Section), lower) {
			return s.ChunkID, true
		}
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n <= 0 {
		return "", false
	}
	for _, s := range sources {
		if s.Page == ref {
			return s.ChunkID, true
		}
	}
	if n <= len(sources) {
		return sources[n-1].ChunkID, true
	}
	return "", false
}
