package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Run("json mode sets response format and system prompt", func(t *testing.T) {
		p := &scriptedProvider{responses: []*ChatResponse{{Content: "  {\"a\":1}\n", FinishReason: "stop"}}}
		g := NewGenerator(p, "gemini-2.0-flash", fastPolicy)

		out, err := g.Generate(context.Background(), "estrai", ModeJSON, GenerateOptions{System: "sei un assistente", Temperature: 0.1, MaxTokens: 4096})
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, out)

		require.Len(t, p.requests, 1)
		req := p.requests[0]
		assert.Equal(t, "json_object", req.ResponseFormat)
		assert.Equal(t, "gemini-2.0-flash", req.Model)
		assert.Equal(t, 4096, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "estrai", req.Messages[1].Content)
	})

	t.Run("text mode has no response format", func(t *testing.T) {
		p := &scriptedProvider{responses: []*ChatResponse{{Content: "risposta", FinishReason: "stop"}}}
		out, err := NewGenerator(p, "", fastPolicy).Generate(context.Background(), "domanda", ModeText, GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, "risposta", out)
		assert.Empty(t, p.requests[0].ResponseFormat)
		assert.Len(t, p.requests[0].Messages, 1)
	})

	t.Run("safety block yields empty output", func(t *testing.T) {
		p := &scriptedProvider{responses: []*ChatResponse{{Content: "parziale", FinishReason: "content_filter"}}}
		out, err := NewGenerator(p, "", fastPolicy).Generate(context.Background(), "x", ModeJSON, GenerateOptions{})
		assert.ErrorIs(t, err, ErrIncompleteOutput)
		assert.Empty(t, out)
	})

	t.Run("rate limits are retried", func(t *testing.T) {
		p := &scriptedProvider{
			errs:      []error{&StatusError{Code: 429}, nil},
			responses: []*ChatResponse{nil, {Content: "ok", FinishReason: "stop"}},
		}
		out, err := NewGenerator(p, "", fastPolicy).Generate(context.Background(), "x", ModeText, GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 2, p.calls)
	})

	t.Run("exhausted retries return an error and no text", func(t *testing.T) {
		p := &scriptedProvider{errs: []error{&StatusError{Code: 503}, &StatusError{Code: 503}, &StatusError{Code: 503}}}
		out, err := NewGenerator(p, "", fastPolicy).Generate(context.Background(), "x", ModeText, GenerateOptions{})
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Empty(t, out)
		assert.Equal(t, 3, p.calls)
	})
}

func TestEmbedChecksCount(t *testing.T) {
	p := &scriptedProvider{}
	out, err := Embed(context.Background(), p, fastPolicy, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
