package gokg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/gokg/cache"
	"github.com/brunobiangulo/gokg/graphstore"
	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/reasoning"
)

// Mode selects the knowledge source used to answer questions.
type Mode string

const (
	// ModeAggregated queries the clustered graph with intent-specific
	// templates and a single looser fallback.
	ModeAggregated Mode = "aggregated"
	// ModeHybrid anchors by keyword and node embeddings, then expands the
	// neighborhood. It needs the graph to be enriched with embeddings.
	ModeHybrid Mode = "hybrid"
)

// DataType is the data_type reported for answers produced in this mode.
func (m Mode) DataType() string {
	if m == ModeHybrid {
		return reasoning.DataTypeRaw
	}
	return reasoning.DataTypeAggregated
}

// Reranker names accepted by Config.Reranker.
const (
	RerankerNone      = "none"
	RerankerLexical   = "lexical"
	RerankerEmbedding = "embedding"
	// RerankerCrossEncoder scores question/chunk pairs with a local
	// cross-encoder run through hugot.
	RerankerCrossEncoder = "cross_encoder"
)

// Config holds all configuration for gokg.
type Config struct {
	// Mode picks the knowledge source: "aggregated" (default) or "hybrid".
	Mode Mode `json:"mode" yaml:"mode"`

	// ChunksPath is the preprocessing JSON. The SQLite chunk store is built
	// next to it with the .db extension.
	ChunksPath string `json:"chunks_path" yaml:"chunks_path"`

	// OutputDir receives the stage files (raw, aggregated, clustered).
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// CheckpointDir holds extraction checkpoints. Empty disables them.
	CheckpointDir string `json:"checkpoint_dir" yaml:"checkpoint_dir"`

	// AuditDir receives per-chunk prompt and output files. Empty disables them.
	AuditDir string `json:"audit_dir" yaml:"audit_dir"`

	// Neo4j connection. Database is the aggregated graph.
	Neo4j graphstore.Config `json:"neo4j" yaml:"neo4j"`
	// RawDatabase is the graph queried in hybrid mode. Empty means
	// Neo4j.Database.
	RawDatabase string `json:"raw_database" yaml:"raw_database"`

	// LLM providers
	Chat      llm.Config `json:"chat" yaml:"chat"`
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	// EmbeddingDim must match the embedding model.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// MaxAttempts bounds the model calls per request, retries included.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Extraction
	Concurrent       bool `json:"concurrent" yaml:"concurrent"`               // use the bounded worker pool
	Concurrency      int  `json:"concurrency" yaml:"concurrency"`             // parallel model calls (default 5)
	ExtractBatchSize int  `json:"extract_batch_size" yaml:"extract_batch_size"` // chunks per concurrent batch (default 10)
	CheckpointEvery  int  `json:"checkpoint_every" yaml:"checkpoint_every"`   // chunks between checkpoints (default 10)
	CallDelayMs      int  `json:"call_delay_ms" yaml:"call_delay_ms"`         // pause between sequential calls (default 1500)

	// Clustering
	EntityBatchSize   int `json:"entity_batch_size" yaml:"entity_batch_size"`
	RelationBatchSize int `json:"relation_batch_size" yaml:"relation_batch_size"`

	// Loading and enrichment
	LoadBatchSize    int `json:"load_batch_size" yaml:"load_batch_size"`
	EmbedBatchSize   int `json:"embed_batch_size" yaml:"embed_batch_size"`
	EmbedConcurrency int `json:"embed_concurrency" yaml:"embed_concurrency"`

	// Retrieval
	Reranker   string `json:"reranker" yaml:"reranker"` // none, lexical, embedding, cross_encoder
	RerankTopN int    `json:"rerank_top_n" yaml:"rerank_top_n"`
	// CrossEncoder selects the cross_encoder reranker model. Only Model and
	// ModelDir are read.
	CrossEncoder llm.Config `json:"cross_encoder" yaml:"cross_encoder"`

	// Redis is an optional shared tier for query embeddings.
	Redis *cache.RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`

	// Synthesis
	Synthesis reasoning.Config `json:"synthesis" yaml:"synthesis"`
}

// DefaultConfig returns a Config for the EmPULIA guides on a local Neo4j
// and Gemini.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeAggregated,
		ChunksPath:    "data/processed/processed_chunks_toc_enhanced.json",
		OutputDir:     "data/kg",
		CheckpointDir: "checkpoints",
		Neo4j: graphstore.Config{
			URI:      "neo4j://localhost:7687",
			User:     "neo4j",
			Database: "testaggregated",
		},
		RawDatabase: "test",
		Chat: llm.Config{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
		},
		Embedding: llm.Config{
			Provider: "gemini",
			Model:    "text-embedding-004",
		},
		EmbeddingDim:      768,
		MaxAttempts:       3,
		Concurrency:       5,
		ExtractBatchSize:  10,
		CheckpointEvery:   10,
		CallDelayMs:       1500,
		EntityBatchSize:   40,
		RelationBatchSize: 60,
		LoadBatchSize:     graphstore.DefaultLoadBatchSize,
		EmbedBatchSize:    graphstore.DefaultEmbedBatchSize,
		EmbedConcurrency:  graphstore.DefaultEmbedConcurrency,
		Reranker:          RerankerEmbedding,
		RerankTopN:        5,
		Synthesis:         reasoning.Config{Temperature: 0.2, MaxTokens: 2048},
	}
}

// LoadConfig reads a YAML or JSON file over DefaultConfig. The format
// follows the extension; anything but .json is read as YAML.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, filepath.Base(path), err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GOKG_*, NEO4J_* and GEMINI_API_KEY.
func (c *Config) ApplyEnv() {
	setString(&c.ChunksPath, "GOKG_CHUNKS_PATH")
	setString(&c.OutputDir, "GOKG_OUTPUT_DIR")
	setString(&c.CheckpointDir, "GOKG_CHECKPOINT_DIR")
	setString(&c.AuditDir, "GOKG_AUDIT_DIR")
	setString(&c.Reranker, "GOKG_RERANKER")
	setString(&c.Chat.Provider, "GOKG_CHAT_PROVIDER")
	setString(&c.Chat.Model, "GOKG_CHAT_MODEL")
	setString(&c.Chat.BaseURL, "GOKG_CHAT_BASE_URL")
	setString(&c.Chat.APIKey, "GOKG_CHAT_API_KEY")
	setString(&c.Embedding.Provider, "GOKG_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "GOKG_EMBEDDING_MODEL")
	setString(&c.Embedding.BaseURL, "GOKG_EMBEDDING_BASE_URL")
	setString(&c.Embedding.APIKey, "GOKG_EMBEDDING_API_KEY")
	setString(&c.Embedding.ModelDir, "GOKG_EMBEDDING_MODEL_DIR")
	setInt(&c.EmbeddingDim, "GOKG_EMBEDDING_DIM")
	setInt(&c.Concurrency, "GOKG_CONCURRENCY")
	setInt(&c.RerankTopN, "GOKG_RERANK_TOP_N")
	setString(&c.CrossEncoder.Model, "GOKG_CROSS_ENCODER_MODEL")
	setString(&c.CrossEncoder.ModelDir, "GOKG_CROSS_ENCODER_MODEL_DIR")
	if v := os.Getenv("GOKG_MODE"); v != "" {
		c.Mode = Mode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("GOKG_CONCURRENT"); v != "" {
		c.Concurrent, _ = strconv.ParseBool(v)
	}
	if addr := os.Getenv("GOKG_REDIS_ADDR"); addr != "" {
		if c.Redis == nil {
			c.Redis = &cache.RedisConfig{}
		}
		c.Redis.Addr = addr
		setString(&c.Redis.Password, "GOKG_REDIS_PASSWORD")
	}

	setString(&c.Neo4j.URI, "NEO4J_URI")
	setString(&c.Neo4j.User, "NEO4J_USER")
	setString(&c.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&c.Neo4j.Database, "NEO4J_DATABASE")
	setString(&c.RawDatabase, "NEO4J_RAW_DATABASE")

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		for _, p := range []*llm.Config{&c.Chat, &c.Embedding} {
			if p.Provider == "gemini" && p.APIKey == "" {
				p.APIKey = key
			}
		}
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Mode != ModeAggregated && c.Mode != ModeHybrid:
		return fmt.Errorf("%w: mode must be %q or %q, got %q", ErrInvalidConfig, ModeAggregated, ModeHybrid, c.Mode)
	case c.EmbeddingDim <= 0:
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	case c.Neo4j.URI == "":
		return fmt.Errorf("%w: neo4j.uri is required", ErrInvalidConfig)
	case c.Chat.Provider == "":
		return fmt.Errorf("%w: chat.provider is required", ErrInvalidConfig)
	case c.Mode == ModeHybrid && c.Embedding.Provider == "":
		return fmt.Errorf("%w: hybrid mode needs an embedding provider", ErrInvalidConfig)
	case c.Concurrency < 0 || c.CallDelayMs < 0 || c.RerankTopN < 0:
		return fmt.Errorf("%w: concurrency, call_delay_ms and rerank_top_n must not be negative", ErrInvalidConfig)
	}
	switch c.Reranker {
	case "", RerankerNone, RerankerLexical, RerankerCrossEncoder:
	case RerankerEmbedding:
		if c.Embedding.Provider == "" {
			return fmt.Errorf("%w: embedding reranker needs an embedding provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown reranker %q", ErrInvalidConfig, c.Reranker)
	}
	return nil
}

// GraphConfig returns the Neo4j settings for the configured mode.
func (c *Config) GraphConfig() graphstore.Config {
	g := c.Neo4j
	if c.Mode == ModeHybrid && c.RawDatabase != "" {
		g.Database = c.RawDatabase
	}
	return g
}

// StagePath joins name onto OutputDir.
func (c *Config) StagePath(name string) string {
	return filepath.Join(c.OutputDir, name)
}

func (c *Config) retryPolicy() llm.RetryPolicy {
	p := llm.DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	return p
}

func (c *Config) callDelay() time.Duration {
	return time.Duration(c.CallDelayMs) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
