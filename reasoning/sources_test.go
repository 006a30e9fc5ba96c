package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSources() []Source {
	return []Source{
		{ChunkID: "accesso.pdf_section_1", SourceFile: "accesso.pdf", Page: "3", Section: "Registrazione"},
		{ChunkID: "gare.pdf_section_7", SourceFile: "gare.pdf", Page: "12", Section: "Invio offerta"},
	}
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		wantRefs []string
		verified []bool
	}{
		{
			name:     "file in parentheses",
			answer:   "Registrati dal portale (accesso.pdf, Pagina 3).",
			wantRefs: []string{"accesso.pdf", "3"},
			verified: []bool{true, true},
		},
		{
			name:     "section reference",
			answer:   "Vedi la sezione 'Invio offerta'.",
			wantRefs: []string{"Invio offerta"},
			verified: []bool{true},
		},
		{
			name:     "source index",
			answer:   "Come indicato [Fonte 2].",
			wantRefs: []string{"2"},
			verified: []bool{true},
		},
		{
			name:     "unknown page",
			answer:   "A pagina 99 trovi tutto.",
			wantRefs: []string{"99"},
			verified: []bool{false},
		},
		{
			name:   "no citations",
			answer: "Accedi con SPID.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.answer, testSources())
			var refs []string
			var verified []bool
			for _, c := range got {
				refs = append(refs, c.SourceRef)
				verified = append(verified, c.Verified)
			}
			assert.Equal(t, tt.wantRefs, refs)
			assert.Equal(t, tt.verified, verified)
		})
	}
}

func TestMatchCitationByPage(t *testing.T) {
	id, ok := matchCitation("12", testSources())
	assert.True(t, ok)
	assert.Equal(t, "gare.pdf_section_7", id)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		wantIssues int
	}{
		{"cites a guide", "Secondo la guida accesso.pdf serve lo SPID.", 0},
		{"cites a section", "Nella parte Registrazione trovi il modulo.", 0},
		{"no reference", "Serve lo SPID.", 1},
		{"invented document", "Secondo il documento interno serve lo SPID. Vedi accesso.pdf.", 1},
		{"external knowledge", "In generale serve lo SPID (accesso.pdf).", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, validate(tt.answer, testSources()).issues(), tt.wantIssues)
		})
	}
	assert.Empty(t, validate("Serve lo SPID.", nil).issues())
}
