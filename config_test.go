package gokg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/gokg/reasoning"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeAggregated, cfg.Mode)
	assert.Equal(t, "testaggregated", cfg.GraphConfig().Database)
	assert.Equal(t, 1500, cfg.CallDelayMs)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "gokg.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
mode: hybrid
chunks_path: guide.json
neo4j:
  uri: bolt://graph:7687
  password: secret
embedding_dim: 3072
reranker: lexical
`), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, ModeHybrid, cfg.Mode)
		assert.Equal(t, "guide.json", cfg.ChunksPath)
		assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
		assert.Equal(t, "secret", cfg.Neo4j.Password)
		assert.Equal(t, 3072, cfg.EmbeddingDim)
		assert.Equal(t, RerankerLexical, cfg.Reranker)
		// untouched fields keep their defaults
		assert.Equal(t, "gemini", cfg.Chat.Provider)
		assert.Equal(t, "test", cfg.GraphConfig().Database)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "gokg.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"mode": "aggregated", "concurrency": 9, "chat": {"provider": "ollama", "model": "llama3.1:8b"}}`), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Concurrency)
		assert.Equal(t, "ollama", cfg.Chat.Provider)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"mode": `), 0o644))
		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GOKG_MODE", "Hybrid")
	t.Setenv("GOKG_EMBEDDING_DIM", "3072")
	t.Setenv("GOKG_CONCURRENT", "true")
	t.Setenv("GOKG_REDIS_ADDR", "localhost:6379")
	t.Setenv("NEO4J_URI", "neo4j://db:7687")
	t.Setenv("NEO4J_PASSWORD", "pw")
	t.Setenv("NEO4J_RAW_DATABASE", "raw")
	t.Setenv("GEMINI_API_KEY", "key-123")

	cfg := DefaultConfig()
	cfg.Embedding.APIKey = "explicit"
	cfg.ApplyEnv()

	assert.Equal(t, ModeHybrid, cfg.Mode)
	assert.Equal(t, 3072, cfg.EmbeddingDim)
	assert.True(t, cfg.Concurrent)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "neo4j://db:7687", cfg.Neo4j.URI)
	assert.Equal(t, "pw", cfg.Neo4j.Password)
	assert.Equal(t, "raw", cfg.GraphConfig().Database)
	assert.Equal(t, "key-123", cfg.Chat.APIKey)
	assert.Equal(t, "explicit", cfg.Embedding.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "raw" }},
		{"zero dim", func(c *Config) { c.EmbeddingDim = 0 }},
		{"no neo4j", func(c *Config) { c.Neo4j.URI = "" }},
		{"no chat", func(c *Config) { c.Chat.Provider = "" }},
		{"hybrid without embeddings", func(c *Config) {
			c.Mode = ModeHybrid
			c.Embedding.Provider = ""
			c.Reranker = RerankerNone
		}},
		{"embedding reranker without embeddings", func(c *Config) { c.Embedding.Provider = "" }},
		{"unknown reranker", func(c *Config) { c.Reranker = "colbert" }},
		{"negative delay", func(c *Config) { c.CallDelayMs = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestCrossEncoderReranker(t *testing.T) {
	t.Setenv("GOKG_RERANKER", RerankerCrossEncoder)
	t.Setenv("GOKG_CROSS_ENCODER_MODEL_DIR", "/models")

	cfg := DefaultConfig()
	cfg.Embedding.Provider = ""
	cfg.ApplyEnv()

	assert.Equal(t, RerankerCrossEncoder, cfg.Reranker)
	assert.Equal(t, "/models", cfg.CrossEncoder.ModelDir)
	assert.NoError(t, cfg.Validate(), "the cross-encoder runs locally and needs no embedding provider")
}

func TestModeDataType(t *testing.T) {
	assert.Equal(t, reasoning.DataTypeAggregated, ModeAggregated.DataType())
	assert.Equal(t, reasoning.DataTypeRaw, ModeHybrid.DataType())
}
