package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/gokg/graph"
	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/normalize"
)

const analysisSystemPrompt = `Sei un agente esperto di Natural Language Understanding che analizza le domande degli utenti per interrogare un Knowledge Graph sulla piattaforma di e-procurement EmPULIA.
Rispondi esclusivamente con un oggetto JSON, senza commenti o spiegazioni.`

// %[1]s entity types, %[2]s question.
const analysisPrompt = `Converti la domanda dell'utente in un oggetto JSON con questi campi:

1. "intento": UNO dei seguenti valori
   - "find_procedure": domande su come fare qualcosa
   - "find_definition": domande su cos'è qualcosa
   - "find_requirements": domande su cosa serve per qualcosa
   - "find_relationship": domande che collegano o confrontano due o più concetti
   - "generic_search": tutte le altre domande
2. "entita_chiave": lista di oggetti {"nome": ..., "tipo": ...} per ogni entità citata, esplicitamente o implicitamente.
   "nome" è il nome normalizzato e conciso (es. "cambio psw" -> "Cambio Password").
   "tipo" è scelto da: %[1]s
3. "termini_di_ricerca_espansi": da 3 a 5 parole chiave, sinonimi e termini procedurali correlati.
4. "domanda_originale": la domanda esatta dell'utente.

Esempio
Domanda: "Spiegami la differenza tra Seggio di Gara e Commissione Tecnica."
JSON:
{"intento": "find_relationship", "entita_chiave": [{"nome": "Seggio di Gara", "tipo": "Organismo"}, {"nome": "Commissione Tecnica", "tipo": "Organismo"}], "termini_di_ricerca_espansi": ["seggio di gara", "commissione tecnica", "ruoli", "composizione"], "domanda_originale": "Spiegami la differenza tra Seggio di Gara e Commissione Tecnica."}

Esempio
Domanda: "Cosa serve per il ruolo di RUP PDG?"
JSON:
{"intento": "find_requirements", "entita_chiave": [{"nome": "RUP PDG", "tipo": "RuoloUtente"}], "termini_di_ricerca_espansi": ["rup pdg", "requisiti", "documenti necessari", "atto di nomina"], "domanda_originale": "Cosa serve per il ruolo di RUP PDG?"}

Domanda: "%[2]s"
JSON:`

type analysisPayload struct {
	Intent        *string      `json:"intento"`
	KeyEntities   *[]KeyEntity `json:"entita_chiave"`
	ExpandedTerms []string     `json:"termini_di_ricerca_espansi"`
	Question      string       `json:"domanda_originale"`
}

var (
	errMissingIntent   = errors.New(`missing "intento"`)
	errMissingEntities = errors.New(`missing "entita_chiave" list`)
)

func validateAnalysis(p *analysisPayload) error {
	if p.Intent == nil {
		return errMissingIntent
	}
	if p.KeyEntities == nil {
		return errMissingEntities
	}
	return nil
}

// Analyzer reads questions through the language model.
type Analyzer struct {
	gen *llm.Generator
}

// NewAnalyzer returns an Analyzer backed by gen.
func NewAnalyzer(gen *llm.Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze classifies the question and extracts its key entities. When the
// model fails or answers with the wrong shape, it falls back to
// KeywordAnalysis rather than returning an error.
func (a *Analyzer) Analyze(ctx context.Context, question string) (Analysis, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Analysis{}, ErrEmptyQuestion
	}

	prompt := fmt.Sprintf(analysisPrompt, strings.Join(graph.EntityTypes, ", "), question)
	out, err := a.gen.Generate(ctx, prompt, llm.ModeJSON, llm.GenerateOptions{
		System:      analysisSystemPrompt,
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Warn("retrieval: question analysis failed, using keywords", "error", err)
		return KeywordAnalysis(question), nil
	}

	d := llm.Decode(out, validateAnalysis)
	if !d.OK() {
		slog.Warn("retrieval: unusable analysis, using keywords",
			"status", d.Status.String(), "error", d.Err)
		return KeywordAnalysis(question), nil
	}

	p := d.Value
	analysis := Analysis{
		Intent:   ParseIntent(strings.TrimSpace(*p.Intent)),
		Question: question,
	}
	if analysis.Intent != Intent(strings.TrimSpace(*p.Intent)) {
		slog.Debug("retrieval: unknown intent mapped to generic_search", "intent", *p.Intent)
	}
	for _, e := range *p.KeyEntities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		e.Type = strings.TrimSpace(e.Type)
		analysis.KeyEntities = append(analysis.KeyEntities, e)
	}
	for _, t := range p.ExpandedTerms {
		if t = strings.TrimSpace(t); t != "" {
			analysis.ExpandedTerms = append(analysis.ExpandedTerms, t)
		}
	}
	slog.Debug("retrieval: question analyzed",
		"intent", analysis.Intent, "entities", len(analysis.KeyEntities), "terms", len(analysis.ExpandedTerms))
	return analysis, nil
}

// KeywordAnalysis builds an analysis without the model: a generic search
// whose key entities are the normalized keywords of the question.
func KeywordAnalysis(question string) Analysis {
	a := Analysis{Intent: IntentGeneric, Question: strings.TrimSpace(question), KeywordOnly: true}
	for _, k := range normalize.Keywords(question) {
		a.KeyEntities = append(a.KeyEntities, KeyEntity{Name: k})
		a.ExpandedTerms = append(a.ExpandedTerms, k)
	}
	return a
}

// SearchPatterns unions the search patterns of every key entity and
// expanded term, keeping first-seen order.
func (a Analysis) SearchPatterns() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		for _, p := range normalize.SearchPatterns(name) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	for _, e := range a.KeyEntities {
		add(e.Name)
	}
	for _, t := range a.ExpandedTerms {
		add(t)
	}
	return out
}

// SearchTerms returns the lowercased entity names and expanded terms used
// for keyword anchoring.
func (a Analysis) SearchTerms() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range a.ExpandedTerms {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, e := range a.KeyEntities {
		s := strings.ToLower(strings.TrimSpace(e.Name))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
