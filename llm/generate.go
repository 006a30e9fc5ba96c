package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Mode tells the model which kind of answer the caller expects.
type Mode int

const (
	// ModeText asks for free-form prose (answer synthesis).
	ModeText Mode = iota
	// ModeJSON asks for a single JSON object (extraction, clustering, analysis).
	ModeJSON
)

func (m Mode) String() string {
	if m == ModeJSON {
		return "json"
	}
	return "text"
}

// ErrIncompleteOutput is returned when the model stopped for a reason other
// than finishing its answer (safety block, token limit).
var ErrIncompleteOutput = errors.New("llm: incomplete output")

// GenerateOptions tunes a single Generate call.
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Generator wraps a Provider with the prompt-in, text-out contract used by
// the pipeline: a mode flag, bounded retries and explicit empty-output
// signalling.
type Generator struct {
	chat   Provider
	model  string
	policy RetryPolicy
}

// NewGenerator creates a Generator. An empty model uses the provider default.
func NewGenerator(chat Provider, model string, policy RetryPolicy) *Generator {
	return &Generator{chat: chat, model: model, policy: policy}
}

// Generate sends prompt to the model and returns its text. Transient
// failures are retried according to the policy. The returned text is empty
// whenever err is non-nil.
func (g *Generator) Generate(ctx context.Context, prompt string, mode Mode, opts GenerateOptions) (string, error) {
	var msgs []Message
	if opts.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: opts.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	req := ChatRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if mode == ModeJSON {
		req.ResponseFormat = "json_object"
	}

	var resp *ChatResponse
	err := Retry(ctx, g.policy, "chat", func(ctx context.Context) error {
		var err error
		resp, err = g.chat.Chat(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}

	switch strings.ToLower(resp.FinishReason) {
	case "", "stop", "end_turn":
	default:
		slog.Warn("llm: response not completed",
			"finish_reason", resp.FinishReason, "mode", mode.String(), "model", resp.Model)
		return "", fmt.Errorf("%w: finish reason %s", ErrIncompleteOutput, resp.FinishReason)
	}

	slog.Debug("llm: response received",
		"mode", mode.String(), "model", resp.Model,
		"prompt_tokens", resp.PromptTokens, "completion_tokens", resp.CompletionTokens)
	return strings.TrimSpace(resp.Content), nil
}

// Embed embeds texts through e with the given retry policy.
func Embed(ctx context.Context, e Embedder, p RetryPolicy, texts []string) ([][]float32, error) {
	var out [][]float32
	err := Retry(ctx, p, "embed", func(ctx context.Context) error {
		var err error
		out, err = e.Embed(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(out), len(texts))
	}
	return out, nil
}
