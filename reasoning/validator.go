package reasoning

import (
	"regexp"
	"strings"
)

var sentenceEnd = regexp.MustCompile(`[.!?](?:\s+|$)`)

// validationResult holds what the answer checks found.
type validationResult struct {
	citationIssues    []string
	consistencyIssues []string
}

func (v *validationResult) issues() []string {
	var out []string
	out = append(out, v.citationIssues...)
	out = append(out, v.consistencyIssues...)
	return out
}

// validate runs the lexical answer checks.
func validate(answer string, sources []Source) *validationResult {
	result := &validationResult{}
	validateCitations(answer, sources, result)
	validateConsistency(answer, result)
	return result
}

// validateCitations checks that the answer names at least one of the
// guides it was given, and that "secondo il documento ..." style references
// point at one of them.
func validateCitations(answer string, sources []Source, result *validationResult) {
	lower := strings.ToLower(answer)

	known := false
	for _, s := range sources {
		if s.SourceFile != "" && strings.Contains(lower, strings.ToLower(s.SourceFile)) {
			known = true
			break
		}
		if s.Section != "" && strings.Contains(lower, strings.ToLower(s.Section)) {
			known = true
			break
		}
	}
	if !known && len(sources) > 0 {
		result.citationIssues = append(result.citationIssues,
			"la risposta non cita nessuna delle guide fornite")
	}

	for _, sent := range sentenceEnd.Split(answer, -1) {
		l := strings.ToLower(strings.TrimSpace(sent))
		if !strings.Contains(l, "secondo") && !strings.Contains(l, "come indicato in") {
			continue
		}
		if !strings.Contains(l, "documento") && !strings.Contains(l, "manuale") && !strings.Contains(l, "guida") {
			continue
		}
		found := false
		for _, s := range sources {
			if s.SourceFile != "" && strings.Contains(l, strings.ToLower(s.SourceFile)) {
				found = true
				break
			}
		}
		if !found {
			result.citationIssues = append(result.citationIssues,
				"possibile riferimento inventato: "+strings.TrimSpace(sent))
		}
	}
}

var externalKnowledge = []string{
	"in base alle mie conoscenze",
	"per quanto ne so",
	"in generale",
	"è risaputo",
	"solitamente",
}

// validateConsistency flags answers that lean on knowledge outside the
// context.
func validateConsistency(answer string, result *validationResult) {
	lower := strings.ToLower(answer)
	for _, phrase := range externalKnowledge {
		if strings.Contains(lower, phrase) {
			result.consistencyIssues = append(result.consistencyIssues,
				"la risposta sembra usare conoscenze esterne al contesto ("+phrase+")")
		}
	}
}
