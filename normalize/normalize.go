// Package normalize maps entity surface names to canonical forms.
//
// The synonym table and stop-word set defined here are shared by graph
// aggregation, clustering and retrieval. Any call site that needs to compare
// entity names must go through Normalize so identities line up.
package normalize

import (
	"strings"
)

// synonym maps a known variant phrase to its canonical term.
type synonym struct {
	variant   string
	canonical string
}

// synonyms is ordered: the substring scan in Normalize returns the first
// variant contained in the input, so earlier entries take precedence.
// Every canonical term must also appear as a variant mapping to itself.
var synonyms = []synonym{
	{"password", "password"},
	{"parola d'accesso", "password"},
	{"credenziali", "password"},
	{"pwd", "password"},

	{"dgue", "dgue"},
	{"documento unico europeo", "dgue"},
	{"documento unico", "dgue"},
	{"d.g.u.e.", "dgue"},

	{"empulia", "empulia"},
	{"piattaforma empulia", "empulia"},
	{"sistema empulia", "empulia"},
	{"em pulia", "empulia"},

	{"albo fornitori", "albo fornitori"},
	{"albo", "albo fornitori"},
	{"registro fornitori", "albo fornitori"},
	{"elenco fornitori", "albo fornitori"},

	{"iscrizione", "iscrizione"},
	{"registrazione", "iscrizione"},
	{"iscrizione albo", "iscrizione"},
	{"registrazione albo", "iscrizione"},

	{"fornitore", "fornitore"},
	{"operatore economico", "fornitore"},
	{"impresa", "fornitore"},
	{"ditta", "fornitore"},
	{"società", "fornitore"},

	{"documento", "documento"},
	{"documentazione", "documento"},
	{"documentazione richiesta", "documento"},
	{"allegato", "documento"},

	{"accesso", "accesso"},
	{"login", "accesso"},
	{"autenticazione", "accesso"},
	{"log in", "accesso"},
	{"entrata", "accesso"},

	{"procedura", "procedura"},
	{"processo", "procedura"},
	{"iter", "procedura"},
	{"prassi", "procedura"},

	{"cambiare", "modificare"},
	{"modificare", "modificare"},
	{"aggiornare", "modificare"},
	{"sostituire", "modificare"},
	{"reimpostare", "modificare"},

	{"reset", "reset"},
	{"ripristino", "reset"},
	{"azzeramento", "reset"},
	{"reimpostazione", "reset"},
}

var synonymIndex = func() map[string]string {
	m := make(map[string]string, len(synonyms))
	for _, s := range synonyms {
		if _, ok := m[s.variant]; !ok {
			m[s.variant] = s.canonical
		}
	}
	return m
}()

var stopWords = toSet(
	"il", "la", "lo", "gli", "le", "i", "un", "una", "uno",
	"del", "della", "dei", "delle", "dello", "degli",
	"di", "da", "in", "con", "per", "su", "tra", "fra",
	"a", "e", "o", "ma", "se", "come", "quando", "dove",
	"che", "chi", "cui", "quanto", "quale", "questo", "quello",
	"mio", "tuo", "suo", "nostro", "vostro", "loro",
	"mia", "tua", "sua", "nostra", "vostra",
)

var punctuation = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"`", "'",
	"–", "-",
	"—", "-",
)

// Normalize returns the canonical form of an entity name. It never fails:
// blank input yields "". Applying it twice gives the same result as once.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	s = punctuation.Replace(s)

	if canonical, ok := lookup(s); ok {
		return canonical
	}

	stripped := stripStopWords(s)
	if stripped == "" {
		return s
	}
	if canonical, ok := lookup(stripped); ok {
		return canonical
	}
	return stripped
}

// lookup tries an exact match first, then the first variant contained in s.
func lookup(s string) (string, bool) {
	if canonical, ok := synonymIndex[s]; ok {
		return canonical, true
	}
	for _, syn := range synonyms {
		if strings.Contains(s, syn.variant) {
			return syn.canonical, true
		}
	}
	return "", false
}

func stripStopWords(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if len([]rune(w)) <= 1 || stopWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// SearchPatterns returns the tolerant match patterns for a name: the
// lowercased original, the normalized form, every variant sharing its
// canonical term and the significant tokens of the normalized form.
// The result is de-duplicated and keeps insertion order.
func SearchPatterns(name string) []string {
	var out orderedSet

	out.add(strings.ToLower(strings.TrimSpace(name)))

	normalized := Normalize(name)
	out.add(normalized)

	for _, syn := range synonyms {
		if syn.canonical == normalized {
			out.add(syn.variant)
		}
	}

	for _, w := range strings.Fields(normalized) {
		if len([]rune(w)) > 2 {
			out.add(w)
		}
	}
	return out.items
}

// Keywords extracts normalized significant words from free text.
func Keywords(text string) []string {
	var out orderedSet
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if stopWords[w] || len([]rune(w)) <= 2 {
			continue
		}
		out.add(Normalize(w))
	}
	return out.items
}

// Canonicals returns the distinct canonical terms of the synonym table in
// declaration order.
func Canonicals() []string {
	var out orderedSet
	for _, syn := range synonyms {
		out.add(syn.canonical)
	}
	return out.items
}

// IsStopWord reports whether w is in the shared stop-word set.
func IsStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (o *orderedSet) add(s string) {
	if s == "" {
		return
	}
	if o.seen == nil {
		o.seen = make(map[string]struct{})
	}
	if _, ok := o.seen[s]; ok {
		return
	}
	o.seen[s] = struct{}{}
	o.items = append(o.items, s)
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Name pairs a surface name with its normalized form.
type Name struct {
	Original   string `json:"nome_originale"`
	Normalized string `json:"nome_normalizzato"`
}

// NormalizeAll normalizes a list of surface names, dropping those that
// normalize to nothing.
func NormalizeAll(names []string) []Name {
	out := make([]Name, 0, len(names))
	for _, n := range names {
		norm := Normalize(n)
		if norm == "" {
			continue
		}
		out = append(out, Name{Original: n, Normalized: norm})
	}
	return out
}
