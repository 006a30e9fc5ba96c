package graph

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/gokg/store"
)

// DefaultSectionTitle is shown to the model when a chunk has no title.
const DefaultSectionTitle = "Nessun Titolo Assegnato"

// extractionSystemPrompt frames every extraction call.
const extractionSystemPrompt = `Sei un assistente AI esperto nell'estrazione di informazioni strutturate da manuali utente per creare Knowledge Graph dettagliati sulla piattaforma EmPULIA. Presta attenzione ai dettagli procedurali e ai termini specifici della piattaforma.`

const extractionPrompt = `Analizza il seguente testo estratto dalla sezione "%[1]s" (identificata come entità "%[2]s") della guida della piattaforma EmPULIA.
Il tuo obiettivo è estrarre entità e relazioni per costruire un Knowledge Graph che descriva le procedure e le funzionalità della piattaforma.

--- TEXT START ---
%[4]s
--- TEXT END ---

ISTRUZIONI:

1. Entità. Estrai le entità rilevanti che appartengono a uno dei seguenti tipi:
   %[5]s
   Per ciascuna entità indica:
   - "nome_entita": il nome specifico dell'entità, senza varianti inutili di plurale o maiuscole.
   - "tipo_entita": uno dei tipi sopra, il più specifico possibile.
   - "descrizione_entita" (consigliato): una breve descrizione tratta dal testo.

   Includi sempre un'entità di tipo "SezioneGuida" con "nome_entita": "%[2]s" e "descrizione_entita": "La sezione della guida EmPULIA intitolata '%[1]s' (ID: %[3]s) da cui provengono queste informazioni."

2. Relazioni. Estrai le relazioni tra le entità identificate, incluse quelle verso "%[2]s".
   Il predicato deve essere uno dei seguenti tipi:
   %[6]s
   Per ogni relazione indica:
   - "soggetto": il nome_entita del soggetto.
   - "predicato": uno dei tipi sopra.
   - "oggetto": il nome_entita dell'oggetto.
   - "contesto_relazione" (consigliato): la frase del testo che giustifica la relazione.

Collega quante più entità possibile a "%[2]s" con il predicato "èDescrittoIn".

FORMATO OUTPUT:
Restituisci SOLO un oggetto JSON valido con esattamente due chiavi, "entita" e "relazioni", entrambe liste. Nessun testo prima o dopo, nessun blocco markdown.

{
  "entita": [
    {"nome_entita": "Selezione Ente", "tipo_entita": "FunzionalitàPiattaforma", "descrizione_entita": "Il primo passo della procedura di registrazione utente PA."},
    {"nome_entita": "%[2]s", "tipo_entita": "SezioneGuida", "descrizione_entita": "La sezione della guida EmPULIA intitolata '%[1]s' (ID: %[3]s) da cui provengono queste informazioni."}
  ],
  "relazioni": [
    {"soggetto": "Selezione Ente", "predicato": "èParteDi", "oggetto": "Registrazione Utente PA", "contesto_relazione": "La procedura si compone dei seguenti STEP: Selezione Ente"},
    {"soggetto": "Selezione Ente", "predicato": "èDescrittoIn", "oggetto": "%[2]s"}
  ]
}

Se il testo non contiene altre informazioni, restituisci solo l'entità SezioneGuida e una lista "relazioni" vuota.`

// SectionEntityName is the name of the mandatory SezioneGuida entity for a
// chunk: its section title, or SezioneSconosciuta_<last id segment>.
func SectionEntityName(c store.Chunk) string {
	if title := strings.TrimSpace(c.SectionTitle); title != "" {
		return title
	}
	id := c.ChunkID
	if i := strings.LastIndex(id, "_"); i >= 0 {
		id = id[i+1:]
	}
	return "SezioneSconosciuta_" + id
}

func sectionTitle(c store.Chunk) string {
	if strings.TrimSpace(c.SectionTitle) == "" {
		return DefaultSectionTitle
	}
	return c.SectionTitle
}

// ExtractionPrompt builds the user prompt asking the model for the entities
// and relations of a single chunk.
func ExtractionPrompt(c store.Chunk) string {
	return fmt.Sprintf(extractionPrompt,
		sectionTitle(c),
		SectionEntityName(c),
		c.ChunkID,
		c.Text,
		strings.Join(EntityTypes, ", "),
		strings.Join(RelationTypes, ", "),
	)
}
