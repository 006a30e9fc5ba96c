package graph

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/gokg/llm"
)

// Extraction is the validated content of one extraction response.
type Extraction struct {
	Entities  []EntityMention
	Relations []RelationMention
}

// extractionPayload keeps records raw so that one malformed record does not
// fail the whole chunk.
type extractionPayload struct {
	Entities  *[]json.RawMessage `json:"entita"`
	Relations *[]json.RawMessage `json:"relazioni"`
}

var (
	errMissingEntities  = errors.New(`missing "entita" list`)
	errMissingRelations = errors.New(`missing "relazioni" list`)
)

func validateExtraction(p *extractionPayload) error {
	if p.Entities == nil {
		return errMissingEntities
	}
	if p.Relations == nil {
		return errMissingRelations
	}
	return nil
}

type entityRecord struct {
	Name        string `json:"nome_entita"`
	Type        string `json:"tipo_entita"`
	Description string `json:"descrizione_entita"`
}

type relationRecord struct {
	Subject   string `json:"soggetto"`
	Predicate string `json:"predicato"`
	Object    string `json:"oggetto"`
	Context   string `json:"contesto_relazione"`
}

// DecodeExtraction strictly decodes a model response. The top-level object
// must carry both lists; individual records that are malformed or fall
// outside the vocabularies are dropped with a warning and the rest is kept.
// Provenance is left empty for the caller to fill.
func DecodeExtraction(raw string) llm.Decoded[Extraction] {
	d := llm.Decode(raw, validateExtraction)
	if !d.OK() {
		return llm.Decoded[Extraction]{Status: d.Status, Err: d.Err}
	}

	var out Extraction
	for _, msg := range *d.Value.Entities {
		var r entityRecord
		if err := json.Unmarshal(msg, &r); err != nil {
			slog.Warn("graph: discarding malformed entity", "record", truncate(string(msg), 100), "error", err)
			continue
		}
		r.Name = strings.TrimSpace(r.Name)
		r.Type = strings.TrimSpace(r.Type)
		if r.Name == "" || r.Type == "" {
			slog.Warn("graph: discarding entity with missing fields", "record", truncate(string(msg), 100))
			continue
		}
		if !IsEntityType(r.Type) {
			slog.Warn("graph: discarding entity with unknown type", "name", r.Name, "type", r.Type)
			continue
		}
		out.Entities = append(out.Entities, EntityMention{
			Name:        r.Name,
			Type:        r.Type,
			Description: strings.TrimSpace(r.Description),
		})
	}

	for _, msg := range *d.Value.Relations {
		var r relationRecord
		if err := json.Unmarshal(msg, &r); err != nil {
			slog.Warn("graph: discarding malformed relation", "record", truncate(string(msg), 100), "error", err)
			continue
		}
		r.Subject = strings.TrimSpace(r.Subject)
		r.Predicate = strings.TrimSpace(r.Predicate)
		r.Object = strings.TrimSpace(r.Object)
		if r.Subject == "" || r.Predicate == "" || r.Object == "" {
			slog.Warn("graph: discarding relation with missing fields", "record", truncate(string(msg), 100))
			continue
		}
		if !IsRelationType(r.Predicate) {
			slog.Warn("graph: discarding relation with unknown predicate", "predicate", r.Predicate)
			continue
		}
		out.Relations = append(out.Relations, RelationMention{
			Subject:   r.Subject,
			Predicate: r.Predicate,
			Object:    r.Object,
			Context:   strings.TrimSpace(r.Context),
		})
	}

	return llm.Decoded[Extraction]{Status: llm.DecodeOK, Value: out}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
