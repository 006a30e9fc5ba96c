package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mention(name, typ, chunk string, page int) EntityMention {
	return EntityMention{
		Name: name,
		Type: typ,
		Provenance: Provenance{
			ChunkID:      chunk,
			PageNumber:   intPtr(page),
			SectionTitle: "Sezione " + chunk,
		},
	}
}

func TestAggregateEntities(t *testing.T) {
	t.Run("count equals contributing mentions", func(t *testing.T) {
		mentions := []EntityMention{
			mention("Password", "DocumentoSistema", "c1", 1),
			mention("cambiare password", "AzioneUtente", "c2", 2),
			mention("Reset della password", "AzioneUtente", "c3", 3),
			mention("Operatore Economico", "RuoloUtente", "c1", 1),
			mention("OE", "RuoloUtente", "c4", 4),
			mention("   ", "RuoloUtente", "c4", 4),
		}
		agg := AggregateEntities(mentions)

		total := 0
		for _, e := range agg {
			total += e.OccurrenceCount
		}
		assert.Equal(t, len(mentions)-1, total, "every non-empty mention is counted once")

		names := make([]string, len(agg))
		for i, e := range agg {
			names[i] = e.Name
		}
		assert.IsIncreasing(t, names, "output is sorted by normalized name")
	})

	t.Run("password variants collapse", func(t *testing.T) {
		agg := AggregateEntities([]EntityMention{
			mention("cambiare password", "AzioneUtente", "c1", 1),
			mention("reset della password", "AzioneUtente", "c2", 2),
		})
		require.Len(t, agg, 1)
		assert.Equal(t, 2, agg[0].OccurrenceCount)
		assert.Equal(t, []string{"cambiare password", "reset della password"}, agg[0].OriginalNames)
		assert.Equal(t, []string{"c1", "c2"}, agg[0].SourceChunkIDs)
		assert.Equal(t, []int{1, 2}, agg[0].SourcePages)
	})

	t.Run("majority type with tie going to first seen", func(t *testing.T) {
		agg := AggregateEntities([]EntityMention{
			mention("Offerta", "DocumentoSistema", "c1", 1),
			mention("offerta", "TipoDocumento", "c2", 2),
		})
		require.Len(t, agg, 1)
		assert.Equal(t, "DocumentoSistema", agg[0].Type)
		assert.Equal(t, "Offerta", agg[0].CanonicalName)
		assert.Equal(t, []string{"DocumentoSistema", "TipoDocumento"}, agg[0].DetectedTypes)
	})

	t.Run("majority type wins over first seen", func(t *testing.T) {
		agg := AggregateEntities([]EntityMention{
			mention("Offerta", "DocumentoSistema", "c1", 1),
			mention("offerta", "TipoDocumento", "c2", 2),
			mention("offerta", "TipoDocumento", "c3", 3),
		})
		require.Len(t, agg, 1)
		assert.Equal(t, "TipoDocumento", agg[0].Type)
		assert.Equal(t, "offerta", agg[0].CanonicalName)
	})

	t.Run("descriptions are trimmed and deduplicated", func(t *testing.T) {
		a := mention("Offerta", "DocumentoSistema", "c1", 1)
		a.Description = " documento di gara "
		b := mention("Offerta", "DocumentoSistema", "c1", 1)
		b.Description = "documento di gara"
		c := mention("Offerta", "DocumentoSistema", "c1", 1)
		c.Description = "  "
		agg := AggregateEntities([]EntityMention{a, b, c})
		require.Len(t, agg, 1)
		assert.Equal(t, []string{"documento di gara"}, agg[0].Descriptions)
		assert.Equal(t, []string{"c1"}, agg[0].SourceChunkIDs)
		assert.Equal(t, 3, agg[0].OccurrenceCount)
	})

	t.Run("missing page is not recorded", func(t *testing.T) {
		m := mention("Offerta", "DocumentoSistema", "c1", 1)
		m.PageNumber = nil
		agg := AggregateEntities([]EntityMention{m})
		require.Len(t, agg, 1)
		assert.Empty(t, agg[0].SourcePages)
		assert.NotNil(t, agg[0].SourcePages, "lists serialize as []")
	})
}

func TestAggregateRelations(t *testing.T) {
	rel := func(s, p, o, ctx, chunk string) RelationMention {
		return RelationMention{Subject: s, Predicate: p, Object: o, Context: ctx,
			Provenance: Provenance{ChunkID: chunk}}
	}

	agg := AggregateRelations([]RelationMention{
		rel("Cambiare Password", "richiedeInput", "PWD", "ctx a", "c1"),
		rel("reset della password", " richiedeInput ", "password", "ctx b", "c2"),
		rel("Offerta", "èParteDi", "Gara", "", "c3"),
		rel("", "èParteDi", "Gara", "", "c3"),
		rel("Offerta", "", "Gara", "", "c3"),
	})

	require.Len(t, agg, 2, "one record per normalized triple")
	assert.Equal(t, "offerta", agg[0].Subject, "sorted by triple")
	assert.Equal(t, "password", agg[1].Subject)
	assert.Equal(t, "richiedeInput", agg[1].Predicate, "predicate kept as-is")
	assert.Equal(t, "password", agg[1].Object)
	assert.Equal(t, 2, agg[1].OccurrenceCount)
	assert.Equal(t, []string{"ctx a", "ctx b"}, agg[1].Contexts)
	assert.Empty(t, agg[0].Contexts)
}

func TestAggregateIsDeterministic(t *testing.T) {
	mentions := []EntityMention{
		mention("Gara", "PiattaformaModulo", "c1", 1),
		mention("Offerta", "DocumentoSistema", "c2", 2),
		mention("gara", "StatoProcedura", "c3", 3),
	}
	first := AggregateEntities(mentions)
	for range 5 {
		assert.Equal(t, first, AggregateEntities(mentions))
	}
}
