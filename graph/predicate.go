package graph

import "strings"

// predicateRule maps any predicate containing one of keywords (after
// folding) to predicate. Rules are tried in order; the first hit wins.
type predicateRule struct {
	keywords  []string
	predicate string
}

var predicateRules = []predicateRule{
	{[]string{"passosuccessivo", "successiv", "dopo"}, "haPassoSuccessivo"},
	{[]string{"precede", "prima"}, "precede"},
	{[]string{"descritt", "descrizione", "sezione", "guida"}, "èDescrittoIn"},
	{[]string{"eseguitada", "eseguitoda", "svoltada"}, "èEseguitaDa"},
	{[]string{"puoeseguire", "esegue", "effettua"}, "puòEseguire"},
	{[]string{"sottofunzional"}, "haSottoFunzionalità"},
	{[]string{"includ", "comprende"}, "includeOperazione"},
	{[]string{"notific", "avvis"}, "produceNotifica"},
	{[]string{"genera", "produce", "crea", "emette"}, "generaDocumento"},
	{[]string{"documento", "allegat"}, "richiedeDocumento"},
	{[]string{"input", "inserire", "inserimento", "compila"}, "richiedeInput"},
	{[]string{"prerequisit", "necessit", "bisogno", "richied", "dipende"}, "haPrerequisito"},
	{[]string{"vincol", "condizion", "limitat"}, "èVincolatoDa"},
	{[]string{"campo", "campi"}, "haCampo"},
	{[]string{"puoaverestato", "puoassumere"}, "puòAvereStato"},
	{[]string{"stato"}, "haStato"},
	{[]string{"interagisc", "comunica", "collega", "integra"}, "interagisceCon"},
	{[]string{"invia", "trasmett", "inoltra"}, "inviaDatiA"},
	{[]string{"scad"}, "scadeIl"},
	{[]string{"termine", "entro"}, "haTermine"},
	{[]string{"messaggio", "mostra", "visualizz"}, "mostraMessaggio"},
	{[]string{"provien", "origin", "deriva"}, "provieneDa"},
	{[]string{"formula", "calcol"}, "utilizzaFormula"},
	{[]string{"criterio", "valutazion"}, "haCriterioDiValutazione"},
	{[]string{"applica"}, "siApplicaA"},
	{[]string{"parte", "appartien"}, "èParteDi"},
	{[]string{"contien", "element"}, "contieneElemento"},
	{[]string{"rimand", "riferiment", "vedi"}, "rimandaA"},
}

var accentFolder = strings.NewReplacer(
	"à", "a", "á", "a",
	"è", "e", "é", "e",
	"ì", "i", "í", "i",
	"ò", "o", "ó", "o",
	"ù", "u", "ú", "u",
	"_", "", "-", "", " ", "",
)

// foldPredicate lowercases p and drops accents and separators, so that
// "e_descritto_in", "È Descritto In" and "èDescrittoIn" compare equal.
func foldPredicate(p string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(p)))
}

var foldedRelationTypes = func() map[string]string {
	m := make(map[string]string, len(RelationTypes))
	for _, rt := range RelationTypes {
		m[foldPredicate(rt)] = rt
	}
	return m
}()

// CorrectPredicate maps an arbitrary predicate onto the closed vocabulary.
// Exact matches pass through, near-misses in case, accents or separators are
// repaired, and anything else goes through the keyword rules before falling
// back to RelGeneric.
func CorrectPredicate(p string) string {
	p = strings.TrimSpace(p)
	if IsRelationType(p) {
		return p
	}
	folded := foldPredicate(p)
	if folded == "" {
		return RelGeneric
	}
	if rt, ok := foldedRelationTypes[folded]; ok {
		return rt
	}
	for _, rule := range predicateRules {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				return rule.predicate
			}
		}
	}
	return RelGeneric
}
