//go:build integration

package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
)

const testPassword = "gokg-test-password"

func startNeo4j(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcneo4j.Run(ctx, "neo4j:5.26", tcneo4j.WithAdminPassword(testPassword))
	require.NoError(t, err, "starting neo4j container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminating neo4j container: %v", err)
		}
	})

	uri, err := container.BoltUrl(ctx)
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{URI: uri, User: "neo4j", Password: testPassword, Timeout: 30 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func TestNeo4jLoadIsIdempotent(t *testing.T) {
	client := startNeo4j(t)
	ctx := context.Background()
	entities, relations := sampleClusters()
	loader := NewLoader(client, 0)

	first, err := loader.Load(ctx, entities, relations)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Relations)

	_, err = loader.Load(ctx, entities, relations)
	require.NoError(t, err)

	stats, err := Count(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, Stats{Nodes: 3, Relationships: 2}, stats)

	rows, err := client.Read(ctx, "MATCH (n:Entity {name: $name}) RETURN n.original_members AS members, n.occurrence_count AS count",
		map[string]any{"name": "offerta"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"offerta", "offerta economica"}, Strings(rows[0]["members"]))
	assert.Equal(t, 4, Int(rows[0]["count"]))

	types, err := RelationshipTypes(ctx, client)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"puòEseguire", "haPrerequisito"}, types)
}

func TestNeo4jEnrichCreatesVectorIndex(t *testing.T) {
	client := startNeo4j(t)
	ctx := context.Background()
	entities, relations := sampleClusters()
	_, err := NewLoader(client, 0).Load(ctx, entities, relations)
	require.NoError(t, err)

	n, err := NewEnricher(client, &fakeEmbedder{dims: 4}, EnricherConfig{}).Enrich(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := client.Read(ctx, "SHOW VECTOR INDEXES YIELD name RETURN name", nil)
	require.NoError(t, err)
	var names []string
	for _, row := range rows {
		names = append(names, String(row["name"]))
	}
	assert.Contains(t, names, VectorIndexName)
}
