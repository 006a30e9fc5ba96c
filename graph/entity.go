package graph

import "slices"

// EntityTypes is the closed entity type vocabulary. It is shared verbatim by
// the extraction prompt, output validation, clustering and the loader.
var EntityTypes = []string{
	"PiattaformaModulo",
	"FunzionalitàPiattaforma",
	"RuoloUtente",
	"AzioneUtente",
	"OperazioneSistema",
	"InterfacciaUtenteElemento",
	"ComandoUI",
	"DocumentoSistema",
	"TipoDocumento",
	"Prerequisito",
	"Condizione",
	"ParametroConfigurazione",
	"Criterio",
	"StatoDocumento",
	"StatoProcedura",
	"EnteEsterno",
	"Organismo",
	"TermineTemporale",
	"Scadenza",
	"MessaggioSistema",
	"Notifica",
	"SezioneGuida",
}

// RelationTypes is the closed predicate vocabulary. Loader statements
// interpolate these as relationship types, so nothing outside this list may
// reach Cypher.
var RelationTypes = []string{
	"haPassoSuccessivo",
	"precede",
	"richiedeInput",
	"haCampo",
	"èEseguitaDa",
	"puòEseguire",
	"haSottoFunzionalità",
	"includeOperazione",
	"generaDocumento",
	"richiedeDocumento",
	"haPrerequisito",
	"èVincolatoDa",
	"haStato",
	"puòAvereStato",
	"interagisceCon",
	"inviaDatiA",
	"haTermine",
	"scadeIl",
	"mostraMessaggio",
	"produceNotifica",
	"èDescrittoIn",
	"provieneDa",
	"utilizzaFormula",
	"haCriterioDiValutazione",
	"siApplicaA",
	"riguarda",
	"èParteDi",
	"contieneElemento",
	"rimandaA",
}

// Vocabulary members referenced directly by code.
const (
	TypeSection    = "SezioneGuida"
	RelDescribedIn = "èDescrittoIn"
	RelGeneric     = "riguarda"
)

// IsEntityType reports whether t belongs to the entity vocabulary.
func IsEntityType(t string) bool { return slices.Contains(EntityTypes, t) }

// IsRelationType reports whether p belongs to the predicate vocabulary.
func IsRelationType(p string) bool { return slices.Contains(RelationTypes, p) }

// Provenance locates the chunk a record was extracted from.
type Provenance struct {
	ChunkID      string `json:"source_chunk_id"`
	PageNumber   *int   `json:"source_page_number"`
	SectionTitle string `json:"source_section_title"`
}

// EntityMention is one entity occurrence reported by a single extraction call.
type EntityMention struct {
	Name        string `json:"nome_entita"`
	Type        string `json:"tipo_entita"`
	Description string `json:"descrizione_entita,omitempty"`
	Provenance
}

// RelationMention is one relation triple reported by a single extraction
// call. Subject and object are surface names.
type RelationMention struct {
	Subject   string `json:"soggetto"`
	Predicate string `json:"predicato"`
	Object    string `json:"oggetto"`
	Context   string `json:"contesto_relazione,omitempty"`
	Provenance
}

// AggregatedEntity groups every mention sharing a normalized name.
type AggregatedEntity struct {
	Name            string   `json:"nome_entita_norm"`
	CanonicalName   string   `json:"nome_entita_canonico"`
	Type            string   `json:"tipo_entita"`
	OriginalNames   []string `json:"nomi_originali"`
	DetectedTypes   []string `json:"tipi_rilevati"`
	Descriptions    []string `json:"descrizioni"`
	SourceChunkIDs  []string `json:"source_chunk_ids"`
	SourcePages     []int    `json:"source_page_numbers"`
	SourceSections  []string `json:"source_section_titles"`
	OccurrenceCount int      `json:"occurrence_count"`
}

// AggregatedRelation groups every mention sharing a normalized triple.
type AggregatedRelation struct {
	Subject         string   `json:"soggetto_norm"`
	Predicate       string   `json:"predicato"`
	Object          string   `json:"oggetto_norm"`
	Contexts        []string `json:"contesti"`
	SourceChunkIDs  []string `json:"source_chunk_ids"`
	SourcePages     []int    `json:"source_page_numbers"`
	SourceSections  []string `json:"source_section_titles"`
	OccurrenceCount int      `json:"occurrence_count"`
}

// EntityCluster merges aggregated entities that denote the same concept.
// Members holds the normalized names of the merged aggregated entities.
type EntityCluster struct {
	Name            string   `json:"nome_entita_cluster"`
	Type            string   `json:"tipo_entita_cluster"`
	Members         []string `json:"membri_cluster"`
	OriginalNames   []string `json:"nomi_originali"`
	DetectedTypes   []string `json:"tipi_rilevati"`
	Descriptions    []string `json:"descrizioni"`
	SourceChunkIDs  []string `json:"source_chunk_ids"`
	SourcePages     []int    `json:"source_page_numbers"`
	SourceSections  []string `json:"source_section_titles"`
	OccurrenceCount int      `json:"occurrence_count"`
	Rationale       string   `json:"motivazione,omitempty"`
}

// RelationCluster merges aggregated relations after subject and object have
// been remapped to cluster canonical names. Members holds relation ids.
type RelationCluster struct {
	Subject         string   `json:"soggetto_cluster"`
	Predicate       string   `json:"predicato_cluster"`
	Object          string   `json:"oggetto_cluster"`
	Members         []string `json:"membri_cluster"`
	Contexts        []string `json:"contesti"`
	SourceChunkIDs  []string `json:"source_chunk_ids"`
	SourcePages     []int    `json:"source_page_numbers"`
	SourceSections  []string `json:"source_section_titles"`
	OccurrenceCount int      `json:"occurrence_count"`
	Rationale       string   `json:"motivazione,omitempty"`
}
