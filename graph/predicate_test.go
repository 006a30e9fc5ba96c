package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrectPredicateKeepsVocabulary(t *testing.T) {
	for _, rt := range RelationTypes {
		assert.Equal(t, rt, CorrectPredicate(rt), "vocabulary term must pass through")
		assert.Equal(t, rt, CorrectPredicate("  "+rt+" "), "padding must not matter")
	}
}

func TestCorrectPredicateRulesOnlyTargetVocabulary(t *testing.T) {
	for _, rule := range predicateRules {
		assert.True(t, IsRelationType(rule.predicate), "rule target %q", rule.predicate)
		for _, kw := range rule.keywords {
			assert.Equal(t, foldPredicate(kw), kw, "keyword %q must already be folded", kw)
		}
	}
}

func TestCorrectPredicate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EDescrittoIn", "èDescrittoIn"},
		{"e_descritto_in", "èDescrittoIn"},
		{"È Descritto In", "èDescrittoIn"},
		{"puoEseguire", "puòEseguire"},
		{"ha_sotto_funzionalita", "haSottoFunzionalità"},
		{"HAPASSOSUCCESSIVO", "haPassoSuccessivo"},
		{"viene dopo", "haPassoSuccessivo"},
		{"avvienePrimaDi", "precede"},
		{"èDescrittaNellaSezione", "èDescrittoIn"},
		{"èSvoltaDa", "èEseguitaDa"},
		{"esegue", "puòEseguire"},
		{"comprende", "includeOperazione"},
		{"inviaNotifica", "produceNotifica"},
		{"creaPDF", "generaDocumento"},
		{"necessitaDocumento", "richiedeDocumento"},
		{"richiedeInserimento", "richiedeInput"},
		{"richiedeSPID", "haPrerequisito"},
		{"dipendeDa", "haPrerequisito"},
		{"haBisognoDi", "haPrerequisito"},
		{"èLimitatoDa", "èVincolatoDa"},
		{"haCampi", "haCampo"},
		{"puòAssumereStato", "puòAvereStato"},
		{"cambiaStato", "haStato"},
		{"comunicaCon", "interagisceCon"},
		{"trasmetteA", "inviaDatiA"},
		{"scadenza", "scadeIl"},
		{"entroIl", "haTermine"},
		{"visualizza", "mostraMessaggio"},
		{"derivaDa", "provieneDa"},
		{"calcolaCon", "utilizzaFormula"},
		{"valutazioneSecondo", "haCriterioDiValutazione"},
		{"siApplica", "siApplicaA"},
		{"faParteDi", "èParteDi"},
		{"appartieneA", "èParteDi"},
		{"contiene", "contieneElemento"},
		{"fariferimentoA", "rimandaA"},
		{"", RelGeneric},
		{"   ", RelGeneric},
		{"xyz", RelGeneric},
		{"correlato", RelGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CorrectPredicate(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsRelationType(got))
		})
	}
}
