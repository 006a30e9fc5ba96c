// Package gokg builds a knowledge graph from the EmPULIA guides and answers
// questions against it.
//
// The offline Pipeline extracts entity and relation mentions from chunks,
// aggregates and clusters them and loads the result into Neo4j. A Service
// answers questions by retrieving graph and text context and synthesizing
// an answer from it.
package gokg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brunobiangulo/gokg/cache"
	"github.com/brunobiangulo/gokg/graphstore"
	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/reasoning"
	"github.com/brunobiangulo/gokg/retrieval"
	"github.com/brunobiangulo/gokg/store"
	"github.com/brunobiangulo/gokg/telemetry"
)

// closeTimeout bounds how long Close waits for each resource.
const closeTimeout = 10 * time.Second

// Deps are the collaborators of a Service.
type Deps struct {
	Source      retrieval.KnowledgeSource
	Synthesizer *reasoning.Synthesizer
	// DataType is reported in every Result.
	DataType string
	// Closers are released by Close, last first.
	Closers []func(context.Context) error
}

// Service answers questions. It is safe for concurrent use.
type Service struct {
	source   retrieval.KnowledgeSource
	synth    *reasoning.Synthesizer
	dataType string

	mu      sync.RWMutex
	closed  bool
	closers []func(context.Context) error
}

// NewService assembles a Service from its dependencies.
func NewService(d Deps) *Service {
	if d.DataType == "" {
		d.DataType = reasoning.DataTypeAggregated
	}
	return &Service{
		source:   d.Source,
		synth:    d.Synthesizer,
		dataType: d.DataType,
		closers:  d.Closers,
	}
}

// New connects to Neo4j, opens (and if needed builds) the chunk store and
// wires the knowledge source selected by cfg.Mode.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers []func(context.Context) error
	fail := func(err error) (*Service, error) {
		release(closers)
		return nil, err
	}

	client, err := graphstore.NewClient(ctx, cfg.GraphConfig())
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrGraphUnavailable, err))
	}
	closers = append(closers, client.Close)

	chunks, err := store.Open(ctx, cfg.ChunksPath, cfg.EmbeddingDim)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrChunkStoreUnavailable, err))
	}
	closers = append(closers, closeFunc(chunks))

	chat, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		return fail(fmt.Errorf("creating chat provider: %w", err))
	}
	policy := cfg.retryPolicy()
	gen := llm.NewGenerator(chat, cfg.Chat.Model, policy)

	var query *retrieval.QueryEmbedder
	var embedder llm.Embedder
	if cfg.Mode == ModeHybrid || cfg.Reranker == RerankerEmbedding {
		embedder, err = llm.NewEmbedder(cfg.Embedding)
		if err != nil {
			return fail(fmt.Errorf("creating embedding provider: %w", err))
		}
		if c, ok := embedder.(io.Closer); ok {
			closers = append(closers, closeFunc(c))
		}
		vectors, vecClose := queryCache(ctx, cfg.Redis)
		if vecClose != nil {
			closers = append(closers, vecClose)
		}
		query = retrieval.NewQueryEmbedder(embedder, cfg.Embedding.Model, policy, vectors)
	}

	var reranker retrieval.Reranker
	switch cfg.Reranker {
	case RerankerEmbedding:
		reranker = retrieval.NewEmbeddingReranker(query, embedder, policy, chunks)
	case RerankerLexical:
		reranker = retrieval.NewLexicalReranker(chunks)
	case RerankerCrossEncoder:
		ce, err := llm.NewCrossEncoder(cfg.CrossEncoder)
		if err != nil {
			return fail(fmt.Errorf("loading cross-encoder: %w", err))
		}
		closers = append(closers, closeFunc(ce))
		reranker = retrieval.NewCrossEncoderReranker(ce, cfg.RerankTopN)
	}
	text := retrieval.NewTextAugmenter(chunks, reranker, cfg.RerankTopN)
	analyzer := retrieval.NewAnalyzer(gen)

	var source retrieval.KnowledgeSource
	if cfg.Mode == ModeHybrid {
		source = retrieval.NewHybridSource(client, analyzer, query, text)
	} else {
		source = retrieval.NewAggregatedSource(client, analyzer, text)
	}

	slog.Info("gokg: service ready",
		"mode", cfg.Mode, "database", cfg.GraphConfig().Database,
		"chunks", cfg.ChunksPath, "reranker", cfg.Reranker)
	return NewService(Deps{
		Source:      source,
		Synthesizer: reasoning.New(gen, chunks, cfg.Synthesis),
		DataType:    cfg.Mode.DataType(),
		Closers:     closers,
	}), nil
}

// queryCache returns the question-embedding cache: an in-process LRU,
// backed by Redis when configured and reachable.
func queryCache(ctx context.Context, cfg *cache.RedisConfig) (cache.Vectors, func(context.Context) error) {
	local := cache.NewLRU(cache.DefaultEmbeddingCacheSize)
	if cfg == nil || cfg.Addr == "" {
		return local, nil
	}
	shared, err := cache.NewRedis(ctx, *cfg)
	if err != nil {
		slog.Warn("gokg: redis unavailable, using local embedding cache", "addr", cfg.Addr, "error", err)
		return local, nil
	}
	return cache.NewTiered(local, shared), closeFunc(shared)
}

// Ask retrieves context for question and synthesizes the answer. Close
// waits for answers in progress.
func (s *Service) Ask(ctx context.Context, question string) (*reasoning.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, err := s.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	return s.synth.Synthesize(ctx, strings.TrimSpace(question), rc, s.dataType), nil
}

// Retrieve returns the graph and text context for question without
// calling the synthesis model.
func (s *Service) Retrieve(ctx context.Context, question string) (*retrieval.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retrieve(ctx, question)
}

// retrieve must be called with s.mu held for reading.
func (s *Service) retrieve(ctx context.Context, question string) (*retrieval.Context, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	ctx, span := telemetry.Start(ctx, "gokg.retrieve")
	defer span.End()
	rc, err := s.source.Retrieve(ctx, question)
	if errors.Is(err, retrieval.ErrEmptyQuestion) {
		return nil, ErrEmptyQuestion
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	return rc, nil
}

// DataType reports the data_type of this service's answers.
func (s *Service) DataType() string { return s.dataType }

// Close releases every resource. It is safe to call more than once.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return release(s.closers)
}

func release(closers []func(context.Context) error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

func closeFunc(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}
