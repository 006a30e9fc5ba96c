package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// defaultHugotModel is a multilingual sentence-transformer that handles the
// Italian guide text (384 dim).
const defaultHugotModel = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"

// defaultCrossEncoderModel is a multilingual MS MARCO cross-encoder that
// scores Italian question/passage pairs.
const defaultCrossEncoderModel = "cross-encoder/mmarco-mMiniLMv2-L12-H384-v1"

// hugotEmbedder runs a feature-extraction pipeline in-process using the pure
// Go backend, so no embedding service is needed.
type hugotEmbedder struct {
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

// NewHugot creates a local embedder. cfg.Model names a Hugging Face model
// and cfg.ModelDir the download cache (default ./models).
func NewHugot(cfg Config) (Embedder, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultHugotModel
	}
	modelPath, err := prepareHugotModel(modelName, cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "gokg-embedder",
	}
	p, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	return &hugotEmbedder{session: session, pipeline: p}, nil
}

func (h *hugotEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("hugot returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// Close releases the ONNX session.
func (h *hugotEmbedder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session.Destroy()
}

// prepareHugotModel downloads the model on first use and returns its path.
func prepareHugotModel(modelName, modelDir string) (string, error) {
	if modelDir == "" {
		modelDir = "./models"
	}
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(modelName, modelDir, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s: %w", modelName, err)
	}
	return downloaded, nil
}

// CrossEncoder scores question/passage pairs jointly with a local
// cross-encoder model.
type CrossEncoder struct {
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.CrossEncoderPipeline
}

// NewCrossEncoder loads a cross-encoder. cfg.Model names a Hugging Face
// model (default cross-encoder/mmarco-mMiniLMv2-L12-H384-v1) and
// cfg.ModelDir the download cache.
func NewCrossEncoder(cfg Config) (*CrossEncoder, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultCrossEncoderModel
	}
	modelPath, err := prepareHugotModel(modelName, cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	config := hugot.CrossEncoderConfig{
		ModelPath: modelPath,
		Name:      "gokg-cross-encoder",
		Options: []hugot.CrossEncoderOption{
			pipelines.WithBatchSize(16),
			pipelines.WithSortResults(false),
		},
	}
	p, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create cross-encoder pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create cross-encoder pipeline: %w", err)
	}
	return &CrossEncoder{session: session, pipeline: p}, nil
}

// Score returns one relevance score per passage, in input order.
func (c *CrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out, err := c.pipeline.RunPipeline(query, passages)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder scoring: %w", err)
	}
	if len(out.Results) != len(passages) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d passages", len(out.Results), len(passages))
	}
	scores := make([]float32, len(passages))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("cross-encoder result index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}

// Close releases the ONNX session.
func (c *CrossEncoder) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Destroy()
}
