package llm

import (
	"context"
	"fmt"
)

// Embedder turns texts into fixed-length vectors.
type Embedder interface {
	// Embed generates embeddings for a batch of texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is the interface for LLM interactions. Implementations make a
// single attempt per call; retries belong to Generator and Retry.
type Provider interface {
	Embedder

	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // gemini, ollama, openai, custom, hugot (embeddings only)
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	// ModelDir is where hugot keeps downloaded ONNX models.
	ModelDir string `json:"model_dir,omitempty" yaml:"model_dir,omitempty"`
}

// NewProvider creates a chat-capable LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "hugot":
		return nil, fmt.Errorf("llm provider %s does not support chat", cfg.Provider)
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// NewEmbedder creates an embedding backend. Besides the remote providers it
// accepts "hugot", which runs a sentence-transformer locally.
func NewEmbedder(cfg Config) (Embedder, error) {
	if cfg.Provider == "hugot" {
		return NewHugot(cfg)
	}
	return NewProvider(cfg)
}
