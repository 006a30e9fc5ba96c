package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aggEntity(name, typ string, count int) AggregatedEntity {
	return AggregatedEntity{
		Name:            name,
		CanonicalName:   name,
		Type:            typ,
		OriginalNames:   []string{name},
		DetectedTypes:   []string{typ},
		Descriptions:    []string{},
		SourceChunkIDs:  []string{"c-" + name},
		SourcePages:     []int{1},
		SourceSections:  []string{},
		OccurrenceCount: count,
	}
}

func aggRelation(s, p, o string) AggregatedRelation {
	return AggregatedRelation{
		Subject: s, Predicate: p, Object: o,
		Contexts:        []string{s + " " + o},
		SourceChunkIDs:  []string{"c1"},
		SourcePages:     []int{},
		SourceSections:  []string{},
		OccurrenceCount: 1,
	}
}

func members(clusters []EntityCluster) []string {
	var all []string
	for _, c := range clusters {
		all = append(all, c.Members...)
	}
	sort.Strings(all)
	return all
}

func entityNames(entities []AggregatedEntity) []string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	sort.Strings(names)
	return names
}

func TestClusterEntities(t *testing.T) {
	entities := []AggregatedEntity{
		aggEntity("operatore economico", "RuoloUtente", 2), // E1
		aggEntity("fornitore", "RuoloUtente", 3),           // E2
		aggEntity("oe", "Organismo", 1),                    // E3
		aggEntity("dgue", "DocumentoSistema", 1),           // E4
		aggEntity("salva", "ComandoUI", 1),                 // E5
	}

	t.Run("valid proposals form a partition", func(t *testing.T) {
		model := &fakeModel{respond: func(string) (string, error) {
			return `{"cluster": [
				{"membri": ["E1", "E2", "E3"], "nome_canonico": "Fornitore", "tipo_canonico": "RuoloUtente", "motivazione": "sinonimi"},
				{"membri": ["E2", "E4", "E99"], "nome_canonico": "DGUE", "tipo_canonico": "Inventato"},
				{"membri": ["E99"], "nome_canonico": "vuoto"}
			]}`, nil
		}}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{})
		clusters, err := c.ClusterEntities(context.Background(), entities)
		require.NoError(t, err)

		assert.Equal(t, entityNames(entities), members(clusters), "every entity is in exactly one cluster")
		require.Len(t, clusters, 3)

		byName := map[string]EntityCluster{}
		for _, c := range clusters {
			byName[c.Name] = c
		}
		f := byName["fornitore"]
		assert.Equal(t, []string{"operatore economico", "fornitore", "oe"}, f.Members)
		assert.Equal(t, "RuoloUtente", f.Type)
		assert.Equal(t, 6, f.OccurrenceCount)
		assert.Equal(t, "sinonimi", f.Rationale)
		assert.Equal(t, []string{"Organismo", "RuoloUtente"}, f.DetectedTypes)

		d := byName["dgue"]
		assert.Equal(t, []string{"dgue"}, d.Members, "E2 stays with its first cluster")
		assert.Equal(t, "DocumentoSistema", d.Type, "unknown type falls back to member majority")

		s := byName["salva"]
		assert.Equal(t, []string{"salva"}, s.Members, "unclaimed entity becomes a singleton")
		assert.Equal(t, "ComandoUI", s.Type)
	})

	t.Run("failed batch yields singletons", func(t *testing.T) {
		model := &fakeModel{respond: func(string) (string, error) {
			return "", errors.New("boom")
		}}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{EntityBatchSize: 2})
		clusters, err := c.ClusterEntities(context.Background(), entities)
		require.NoError(t, err)
		assert.Len(t, clusters, len(entities))
		assert.Equal(t, entityNames(entities), members(clusters))
		assert.Equal(t, 3, model.calls(), "5 entities in batches of 2")
	})

	t.Run("unparseable batch yields singletons", func(t *testing.T) {
		model := &fakeModel{respond: func(string) (string, error) {
			return "Ecco i gruppi: nessuno", nil
		}}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{})
		clusters, err := c.ClusterEntities(context.Background(), entities)
		require.NoError(t, err)
		assert.Len(t, clusters, len(entities))
	})

	t.Run("clusters sharing a canonical name are merged", func(t *testing.T) {
		model := &fakeModel{respond: func(prompt string) (string, error) {
			if strings.Contains(prompt, "E1:") {
				return `{"cluster": [{"membri": ["E1", "E2"], "nome_canonico": "fornitore"}]}`, nil
			}
			return `{"cluster": [{"membri": ["E3"], "nome_canonico": "Fornitore"}]}`, nil
		}}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{EntityBatchSize: 2})
		clusters, err := c.ClusterEntities(context.Background(), entities)
		require.NoError(t, err)
		assert.Equal(t, entityNames(entities), members(clusters))

		var names []string
		for _, c := range clusters {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"dgue", "fornitore", "salva"}, names)
	})

	t.Run("ids are only claimable within their batch", func(t *testing.T) {
		model := &fakeModel{respond: func(string) (string, error) {
			return `{"cluster": [{"membri": ["E1", "E5"], "nome_canonico": "x"}]}`, nil
		}}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{EntityBatchSize: 2})
		clusters, err := c.ClusterEntities(context.Background(), entities)
		require.NoError(t, err)
		assert.Equal(t, entityNames(entities), members(clusters))
	})
}

func TestClusterRelations(t *testing.T) {
	entities := []EntityCluster{
		{Name: "fornitore", Members: []string{"operatore economico", "fornitore"}},
		{Name: "dgue", Members: []string{"dgue"}},
	}
	relations := []AggregatedRelation{
		aggRelation("operatore economico", "richiedeDocumento", "dgue"), // R1
		aggRelation("fornitore", "necessita", "dgue"),                   // R2
		aggRelation("dgue", "èParteDi", "offerta"),                      // R3
	}

	t.Run("remaps, corrects predicates and merges identical triples", func(t *testing.T) {
		model := &fakeModel{respond: func(string) (string, error) {
			return `{"cluster": [{"membri": ["R1", "R2"], "predicato_canonico": "haBisognoDi", "motivazione": "stesso legame"}]}`, nil
		}}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{})
		clusters, err := c.ClusterRelations(context.Background(), relations, entities)
		require.NoError(t, err)
		require.Len(t, clusters, 2)

		first := clusters[0]
		assert.Equal(t, "dgue", first.Subject)
		assert.Equal(t, "offerta", first.Object, "unclaimed name keeps its normalized form")
		assert.Equal(t, "èParteDi", first.Predicate)
		assert.Equal(t, []string{"R3"}, first.Members)

		merged := clusters[1]
		assert.Equal(t, "fornitore", merged.Subject)
		assert.Equal(t, "haPrerequisito", merged.Predicate, "out-of-vocabulary predicate is corrected")
		assert.Equal(t, "dgue", merged.Object)
		assert.Equal(t, []string{"R1", "R2"}, merged.Members)
		assert.Equal(t, 2, merged.OccurrenceCount)
		assert.Equal(t, []string{"fornitore dgue", "operatore economico dgue"}, merged.Contexts)
		assert.Equal(t, "stesso legame", merged.Rationale)
	})

	t.Run("empty batch output leaves every relation as a singleton", func(t *testing.T) {
		model := &fakeModel{respond: func(string) (string, error) { return "", nil }}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{})
		clusters, err := c.ClusterRelations(context.Background(), relations, nil)
		require.NoError(t, err)
		require.Len(t, clusters, 3, "nothing lost")

		var ids []string
		for _, rc := range clusters {
			ids = append(ids, rc.Members...)
			assert.True(t, IsRelationType(rc.Predicate))
		}
		sort.Strings(ids)
		assert.Equal(t, []string{"R1", "R2", "R3"}, ids)
	})

	t.Run("relation ids partition across many batches", func(t *testing.T) {
		var many []AggregatedRelation
		for i := range 130 {
			many = append(many, aggRelation(fmt.Sprintf("s%d", i), "riguarda", "o"))
		}
		model := &fakeModel{respond: func(string) (string, error) { return `{"cluster": []}`, nil }}
		c := NewClusterer(newTestGenerator(t, model), ClusterConfig{})
		clusters, err := c.ClusterRelations(context.Background(), many, nil)
		require.NoError(t, err)
		assert.Len(t, clusters, 130)
		assert.Equal(t, 3, model.calls(), "130 relations in batches of 60")
	})
}

func TestClusterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &fakeModel{respond: func(string) (string, error) { return `{"cluster": []}`, nil }}
	c := NewClusterer(newTestGenerator(t, model), ClusterConfig{})
	_, _, err := c.Cluster(ctx, []AggregatedEntity{aggEntity("a", "Criterio", 1)}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
