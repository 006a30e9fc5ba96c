package graph

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/gokg/llm"
)

func TestDecodeExtraction(t *testing.T) {
	t.Run("keeps valid records and trims fields", func(t *testing.T) {
		raw := "```json\n" + `{
			"entita": [
				{"nome_entita": " Password ", "tipo_entita": "DocumentoSistema", "descrizione_entita": " credenziale "},
				{"nome_entita": "Registrazione", "tipo_entita": "FunzionalitàPiattaforma"}
			],
			"relazioni": [
				{"soggetto": "Password", "predicato": "èParteDi", "oggetto": "Registrazione", "contesto_relazione": "x"}
			]
		}` + "\n```"
		d := DecodeExtraction(raw)
		require.True(t, d.OK(), "decode should succeed: %v", d.Err)
		require.Len(t, d.Value.Entities, 2)
		assert.Equal(t, "Password", d.Value.Entities[0].Name)
		assert.Equal(t, "credenziale", d.Value.Entities[0].Description)
		require.Len(t, d.Value.Relations, 1)
		assert.Equal(t, "èParteDi", d.Value.Relations[0].Predicate)
	})

	t.Run("drops records outside the vocabulary or incomplete", func(t *testing.T) {
		raw := `{
			"entita": [
				{"nome_entita": "A", "tipo_entita": "Inventato"},
				{"nome_entita": "", "tipo_entita": "Criterio"},
				{"nome_entita": "B", "tipo_entita": 3},
				"stringa",
				{"nome_entita": "C", "tipo_entita": "Criterio"}
			],
			"relazioni": [
				{"soggetto": "A", "predicato": "inventato", "oggetto": "C"},
				{"soggetto": "A", "oggetto": "C"},
				{"soggetto": "C", "predicato": "riguarda", "oggetto": "A"}
			]
		}`
		d := DecodeExtraction(raw)
		require.True(t, d.OK())
		require.Len(t, d.Value.Entities, 1, "only C survives")
		assert.Equal(t, "C", d.Value.Entities[0].Name)
		require.Len(t, d.Value.Relations, 1)
		assert.Equal(t, "riguarda", d.Value.Relations[0].Predicate)
	})

	t.Run("empty lists are valid", func(t *testing.T) {
		d := DecodeExtraction(`{"entita": [], "relazioni": []}`)
		assert.True(t, d.OK())
		assert.Empty(t, d.Value.Entities)
	})

	t.Run("missing key is a validation error", func(t *testing.T) {
		d := DecodeExtraction(`{"entita": []}`)
		assert.Equal(t, llm.DecodeValidationError, d.Status)
		assert.ErrorIs(t, d.Err, errMissingRelations)
	})

	t.Run("list of wrong type is a validation error", func(t *testing.T) {
		d := DecodeExtraction(`{"entita": {}, "relazioni": []}`)
		assert.Equal(t, llm.DecodeValidationError, d.Status)
	})

	t.Run("prose is a parse error", func(t *testing.T) {
		d := DecodeExtraction("Non ho trovato entità.")
		assert.Equal(t, llm.DecodeParseError, d.Status)
	})

	t.Run("truncated json is a parse error", func(t *testing.T) {
		d := DecodeExtraction(`{"entita": [{"nome_entita": "A"}, }`)
		assert.Equal(t, llm.DecodeParseError, d.Status)
	})
}

func TestTruncateKeepsRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"breve", 10, "breve"},
		{"abcdef", 3, "abc..."},
		{"città", 5, "citt..."}, // à spans bytes 4 and 5
		{"perché è", 6, "perch..."},
		{"è", 1, "..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "truncate(%q, %d)", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}

	long := strings.Repeat("à", 80)
	assert.True(t, utf8.ValidString(truncate(long, 100)))
}
