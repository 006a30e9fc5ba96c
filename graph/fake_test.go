package graph

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brunobiangulo/gokg/llm"
)

// fakeModel answers chat requests through respond and counts calls.
type fakeModel struct {
	mu       sync.Mutex
	respond  func(prompt string) (string, error)
	prompts  []string
	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

func (f *fakeModel) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	out, err := f.respond(prompt)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: out, FinishReason: "stop"}, nil
}

func (f *fakeModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newTestGenerator(t *testing.T, f *fakeModel) *llm.Generator {
	t.Helper()
	return llm.NewGenerator(f, "test-model", llm.RetryPolicy{MaxAttempts: 1})
}

// chunkIDIn pulls the chunk id out of an extraction prompt.
func chunkIDIn(prompt string) string {
	const marker = "(ID: "
	i := strings.Index(prompt, marker)
	if i < 0 {
		return ""
	}
	rest := prompt[i+len(marker):]
	return rest[:strings.Index(rest, ")")]
}

func intPtr(n int) *int { return &n }
