// Package retrieval answers questions against the knowledge graph: it
// analyzes the question, queries Neo4j, formats what it finds and attaches
// the original text of the chunks the graph points to.
package retrieval

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyQuestion is returned for a blank question before any call is made.
var ErrEmptyQuestion = errors.New("retrieval: empty question")

// Intent classifies what a question asks for.
type Intent string

const (
	IntentProcedure    Intent = "find_procedure"
	IntentDefinition   Intent = "find_definition"
	IntentRequirements Intent = "find_requirements"
	IntentRelationship Intent = "find_relationship"
	IntentGeneric      Intent = "generic_search"
)

// Intents lists every recognised intent.
var Intents = []Intent{IntentProcedure, IntentDefinition, IntentRequirements, IntentRelationship, IntentGeneric}

// ParseIntent maps s to a known intent; anything else is generic_search.
func ParseIntent(s string) Intent {
	for _, i := range Intents {
		if string(i) == s {
			return i
		}
	}
	return IntentGeneric
}

// KeyEntity is an entity named by the question.
type KeyEntity struct {
	Name string `json:"nome"`
	Type string `json:"tipo"`
}

// Analysis is the structured reading of a question.
type Analysis struct {
	Intent        Intent      `json:"intento"`
	KeyEntities   []KeyEntity `json:"entita_chiave"`
	ExpandedTerms []string    `json:"termini_di_ricerca_espansi"`
	Question      string      `json:"domanda_originale"`
	// KeywordOnly marks an analysis built without the model.
	KeywordOnly bool `json:"solo_parole_chiave,omitempty"`
}

// Context is what retrieval hands to answer synthesis.
type Context struct {
	GraphContext string   `json:"graph_context"`
	TextContext  string   `json:"text_context"`
	ChunkIDs     []string `json:"chunk_ids"`
	// TextChunkIDs are the chunks rendered in TextContext, in that order.
	TextChunkIDs []string `json:"text_chunk_ids,omitempty"`
	Analysis     Analysis `json:"analysis"`
	Trace        Trace    `json:"trace"`
}

// Trace records what each retrieval state did.
type Trace struct {
	Source         string        `json:"source"`
	Patterns       []string      `json:"patterns,omitempty"`
	PrimaryRows    int           `json:"primary_rows"`
	FallbackUsed   bool          `json:"fallback_used"`
	FallbackRows   int           `json:"fallback_rows"`
	KeywordAnchors int           `json:"keyword_anchors,omitempty"`
	VectorAnchors  int           `json:"vector_anchors,omitempty"`
	FusedAnchors   int           `json:"fused_anchors,omitempty"`
	GraphErrors    int           `json:"graph_errors,omitempty"`
	Candidates     int           `json:"candidate_chunks"`
	ChunksKept     int           `json:"chunks_kept"`
	Reranked       bool          `json:"reranked"`
	RerankFailed   bool          `json:"rerank_failed,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// KnowledgeSource retrieves the context for one question. Graph store
// failures degrade to an empty context; only invalid input is an error.
type KnowledgeSource interface {
	Retrieve(ctx context.Context, question string) (*Context, error)
}

// QuestionAnalyzer turns a question into an Analysis. Implementations
// degrade instead of failing; the error is reserved for invalid input.
type QuestionAnalyzer interface {
	Analyze(ctx context.Context, question string) (Analysis, error)
}
