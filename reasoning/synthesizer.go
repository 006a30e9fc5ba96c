// Package reasoning turns retrieved context into the final answer.
package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/retrieval"
	"github.com/brunobiangulo/gokg/telemetry"
)

// Fixed answers used when the model is not consulted or fails.
const (
	NoInformationAnswer   = "Non ho trovato informazioni specifiche per rispondere alla tua domanda."
	GenerationErrorAnswer = "Si è verificato un problema nella generazione della risposta."
)

// Data types reported in a Result.
const (
	DataTypeAggregated = "aggregated"
	DataTypeRaw        = "raw"
)

// Result is the complete outcome of answering one question.
type Result struct {
	Question         string             `json:"question"`
	Answer           string             `json:"answer"`
	Contexts         []string           `json:"contexts"`
	Analysis         retrieval.Analysis `json:"analysis"`
	RetrievedContext *retrieval.Context `json:"retrieved_context"`
	DataType         string             `json:"data_type"`
	Sources          []Source           `json:"sources"`
	Citations        []Citation         `json:"citations,omitempty"`
	Issues           []string           `json:"issues,omitempty"`
	Generated        bool               `json:"generated"`
	ElapsedMs        int64              `json:"elapsed_ms"`
}

// Config tunes answer generation.
type Config struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Synthesizer writes answers grounded in a retrieval.Context.
type Synthesizer struct {
	gen    *llm.Generator
	chunks retrieval.ChunkGetter
	cfg    Config
}

// New returns a Synthesizer. chunks resolves source metadata and may be nil.
func New(gen *llm.Generator, chunks retrieval.ChunkGetter, cfg Config) *Synthesizer {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	return &Synthesizer{gen: gen, chunks: chunks, cfg: cfg}
}

// Synthesize answers question from rc. An empty context yields
// NoInformationAnswer without calling the model; a failed or empty
// generation yields GenerationErrorAnswer. Neither is an error.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, rc *retrieval.Context, dataType string) *Result {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, "reasoning.synthesize", attribute.String("data_type", dataType))
	defer span.End()

	if rc == nil {
		rc = &retrieval.Context{}
	}
	res := &Result{
		Question:         question,
		Analysis:         rc.Analysis,
		RetrievedContext: rc,
		DataType:         dataType,
		Contexts:         Contexts(rc),
	}
	res.Sources = s.sources(ctx, rc.TextChunkIDs)

	if !HasContext(rc) {
		slog.Info("reasoning: no usable context", "question_len", len(question))
		res.Answer = NoInformationAnswer
		res.ElapsedMs = time.Since(start).Milliseconds()
		return res
	}

	prompt := buildAnswerPrompt(question, rc.GraphContext, rc.TextContext)
	answer, err := s.gen.Generate(ctx, prompt, llm.ModeText, llm.GenerateOptions{
		System:      systemPrompt,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	switch {
	case err != nil:
		span.RecordError(err)
		slog.Warn("reasoning: answer generation failed", "error", err)
		res.Answer = GenerationErrorAnswer
	case strings.TrimSpace(answer) == "":
		slog.Warn("reasoning: empty answer from model")
		res.Answer = GenerationErrorAnswer
	default:
		res.Answer = answer
		res.Generated = true
		res.Citations = ExtractCitations(answer, res.Sources)
		res.Issues = validate(answer, res.Sources).issues()
	}

	res.ElapsedMs = time.Since(start).Milliseconds()
	span.SetAttributes(attribute.Bool("generated", res.Generated), attribute.Int("sources", len(res.Sources)))
	slog.Info("reasoning: answer ready",
		"generated", res.Generated, "sources", len(res.Sources), "issues", len(res.Issues),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res
}

// HasContext reports whether retrieval found anything: a graph context
// other than the "Nessuna ..." marker or a text context other than a
// "Nessun ..." marker.
func HasContext(rc *retrieval.Context) bool {
	return graphUsable(rc.GraphContext) || textUsable(rc.TextContext)
}

// Contexts lists the usable parts of rc, graph first.
func Contexts(rc *retrieval.Context) []string {
	out := []string{}
	if graphUsable(rc.GraphContext) {
		out = append(out, rc.GraphContext)
	}
	if textUsable(rc.TextContext) {
		out = append(out, rc.TextContext)
	}
	return out
}

func graphUsable(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.HasPrefix(s, "Nessuna")
}

func textUsable(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.HasPrefix(s, "Nessun")
}

const systemPrompt = `Sei l'assistente della piattaforma di e-procurement EmPULIA. Rispondi SOLO in base al contesto fornito.
Regole:
1. Riporta solo fatti presenti nel contesto (Knowledge Graph e testo delle guide).
2. Quando possibile cita la guida di provenienza indicando file e pagina, ad esempio (guida.pdf, Pagina 12).
3. Se il contesto non basta per rispondere, dichiaralo esplicitamente.
4. Per le procedure elenca i passi nell'ordine indicato dalle guide.
5. Rispondi in italiano, in modo conciso ma completo.`

func buildAnswerPrompt(question, graphContext, textContext string) string {
	return fmt.Sprintf("Domanda: %s\nContesto: %s\n%s\nRisposta:", question, graphContext, textContext)
}
