package llm

import (
	"context"
	"sync"
)

// scriptedProvider replays a fixed sequence of chat outcomes.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	errs      []error
	calls     int
	requests  []ChatRequest
}

func (s *scriptedProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &ChatResponse{Content: "", FinishReason: "stop"}, nil
}

func (s *scriptedProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}
