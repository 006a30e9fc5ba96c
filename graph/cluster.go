package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/brunobiangulo/gokg/llm"
	"github.com/brunobiangulo/gokg/normalize"
)

// Defaults for ClusterConfig.
const (
	DefaultEntityBatchSize   = 40
	DefaultRelationBatchSize = 60

	clusterTemperature = 0.1
	clusterMaxTokens   = 8192
	maxPromptSnippets  = 2
)

const clusterSystemPrompt = `Sei un esperto di ontologie e Knowledge Graph per la piattaforma di e-procurement EmPULIA. Il tuo compito è riconoscere elementi duplicati o sinonimi e raggrupparli senza perdere informazioni.`

const entityClusterPrompt = `Di seguito trovi un elenco di entità estratte dalla guida EmPULIA. Ogni riga inizia con un identificativo (E<n>).

%s

Raggruppa le entità che indicano lo stesso concetto (sinonimi, abbreviazioni, varianti di forma). Ogni identificativo può comparire in un solo gruppo. Le entità senza duplicati possono restare da sole.
Per ogni gruppo indica:
- "membri": la lista degli identificativi;
- "nome_canonico": il nome più chiaro e completo per il concetto;
- "tipo_canonico": uno dei seguenti tipi: %s;
- "motivazione": una breve spiegazione.

Restituisci SOLO un oggetto JSON nel formato:
{"cluster": [{"membri": ["E1", "E4"], "nome_canonico": "...", "tipo_canonico": "...", "motivazione": "..."}]}`

const relationClusterPrompt = `Di seguito trovi un elenco di relazioni estratte dalla guida EmPULIA. Ogni riga inizia con un identificativo (R<n>).

%s

Raggruppa le relazioni che esprimono lo stesso legame e assegna a ciascun gruppo il predicato più adatto. Ogni identificativo può comparire in un solo gruppo.
Per ogni gruppo indica:
- "membri": la lista degli identificativi;
- "predicato_canonico": uno dei seguenti predicati: %s;
- "motivazione": una breve spiegazione.

Restituisci SOLO un oggetto JSON nel formato:
{"cluster": [{"membri": ["R1", "R7"], "predicato_canonico": "...", "motivazione": "..."}]}`

// ClusterConfig tunes clustering.
type ClusterConfig struct {
	EntityBatchSize   int
	RelationBatchSize int
	// CallDelay is the pause between consecutive model calls.
	CallDelay time.Duration
}

// Clusterer merges aggregated entities and relations that denote the same
// thing, using the model to propose groups. Whatever the model answers, the
// result is a partition of the input: nothing is dropped.
type Clusterer struct {
	gen     *llm.Generator
	cfg     ClusterConfig
	limiter *rate.Limiter
}

// NewClusterer creates a Clusterer.
func NewClusterer(gen *llm.Generator, cfg ClusterConfig) *Clusterer {
	if cfg.EntityBatchSize <= 0 {
		cfg.EntityBatchSize = DefaultEntityBatchSize
	}
	if cfg.RelationBatchSize <= 0 {
		cfg.RelationBatchSize = DefaultRelationBatchSize
	}
	limit := rate.Inf
	if cfg.CallDelay > 0 {
		limit = rate.Every(cfg.CallDelay)
	}
	return &Clusterer{gen: gen, cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

type clusterProposal struct {
	Members            []string `json:"membri"`
	CanonicalName      string   `json:"nome_canonico"`
	CanonicalType      string   `json:"tipo_canonico"`
	CanonicalPredicate string   `json:"predicato_canonico"`
	Rationale          string   `json:"motivazione"`
}

var errMissingClusters = errors.New(`missing "cluster" list`)

type clusterPayload struct {
	Clusters *[]clusterProposal `json:"cluster"`
}

func validateClusters(p *clusterPayload) error {
	if p.Clusters == nil {
		return errMissingClusters
	}
	return nil
}

// claimedGroup is a proposal whose members survived validation.
type claimedGroup struct {
	proposal clusterProposal
	ids      []string
}

// Cluster runs entity clustering, then relation clustering against the
// resulting entity clusters.
func (c *Clusterer) Cluster(ctx context.Context, entities []AggregatedEntity, relations []AggregatedRelation) ([]EntityCluster, []RelationCluster, error) {
	ec, err := c.ClusterEntities(ctx, entities)
	if err != nil {
		return nil, nil, err
	}
	rc, err := c.ClusterRelations(ctx, relations, ec)
	if err != nil {
		return nil, nil, err
	}
	return ec, rc, nil
}

// ClusterEntities groups entities in batches of EntityBatchSize. Entities
// left unclaimed, including every member of a batch the model failed on,
// become singleton clusters. Clusters that end up with the same canonical
// name are merged.
func (c *Clusterer) ClusterEntities(ctx context.Context, entities []AggregatedEntity) ([]EntityCluster, error) {
	start := time.Now()
	byID := make(map[string]AggregatedEntity, len(entities))
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = fmt.Sprintf("E%d", i+1)
		byID[ids[i]] = e
	}

	claimed := make(map[string]bool, len(entities))
	var clusters []EntityCluster
	for lo := 0; lo < len(ids); lo += c.cfg.EntityBatchSize {
		batch := ids[lo:min(lo+c.cfg.EntityBatchSize, len(ids))]
		lines := make([]string, len(batch))
		for i, id := range batch {
			lines[i] = entityLine(id, byID[id])
		}
		prompt := fmt.Sprintf(entityClusterPrompt, strings.Join(lines, "\n"), strings.Join(EntityTypes, ", "))

		groups, err := c.proposeBatch(ctx, "entity", prompt, batch, claimed)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			members := make([]AggregatedEntity, len(g.ids))
			for i, id := range g.ids {
				members[i] = byID[id]
			}
			clusters = append(clusters, newEntityCluster(g.proposal, members))
		}
	}

	singletons := 0
	for _, id := range ids {
		if !claimed[id] {
			clusters = append(clusters, newEntityCluster(clusterProposal{}, []AggregatedEntity{byID[id]}))
			singletons++
		}
	}

	out := mergeEntityClusters(clusters)
	slog.Info("graph: entities clustered",
		"entities", len(entities), "clusters", len(out), "singletons", singletons,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// ClusterRelations assigns every relation a canonical predicate, proposed
// per group by the model or repaired with CorrectPredicate, remaps subject
// and object through the entity clusters and merges relations that end up
// with the same triple.
func (c *Clusterer) ClusterRelations(ctx context.Context, relations []AggregatedRelation, entities []EntityCluster) ([]RelationCluster, error) {
	start := time.Now()
	byID := make(map[string]AggregatedRelation, len(relations))
	ids := make([]string, len(relations))
	for i, r := range relations {
		ids[i] = fmt.Sprintf("R%d", i+1)
		byID[ids[i]] = r
	}

	type assignment struct {
		predicate string
		rationale string
	}
	assigned := make(map[string]assignment, len(relations))
	claimed := make(map[string]bool, len(relations))

	for lo := 0; lo < len(ids); lo += c.cfg.RelationBatchSize {
		batch := ids[lo:min(lo+c.cfg.RelationBatchSize, len(ids))]
		lines := make([]string, len(batch))
		for i, id := range batch {
			lines[i] = relationLine(id, byID[id])
		}
		prompt := fmt.Sprintf(relationClusterPrompt, strings.Join(lines, "\n"), strings.Join(RelationTypes, ", "))

		groups, err := c.proposeBatch(ctx, "relation", prompt, batch, claimed)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			p := strings.TrimSpace(g.proposal.CanonicalPredicate)
			for _, id := range g.ids {
				pred := p
				if pred == "" {
					pred = byID[id].Predicate
				}
				assigned[id] = assignment{predicate: CorrectPredicate(pred), rationale: g.proposal.Rationale}
			}
		}
	}

	memberOf := make(map[string]string)
	for _, ec := range entities {
		for _, m := range ec.Members {
			memberOf[m] = ec.Name
		}
	}
	remap := func(name string) string {
		if canonical, ok := memberOf[name]; ok {
			return canonical
		}
		return name
	}

	var clusters []RelationCluster
	for _, id := range ids {
		r := byID[id]
		a, ok := assigned[id]
		if !ok {
			a = assignment{predicate: CorrectPredicate(r.Predicate)}
		}
		clusters = append(clusters, RelationCluster{
			Subject:         remap(r.Subject),
			Predicate:       a.predicate,
			Object:          remap(r.Object),
			Members:         []string{id},
			Contexts:        r.Contexts,
			SourceChunkIDs:  r.SourceChunkIDs,
			SourcePages:     r.SourcePages,
			SourceSections:  r.SourceSections,
			OccurrenceCount: r.OccurrenceCount,
			Rationale:       a.rationale,
		})
	}

	out := mergeRelationClusters(clusters)
	slog.Info("graph: relations clustered",
		"relations", len(relations), "clusters", len(out),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// proposeBatch asks the model to group batch and validates the answer:
// unknown ids are dropped, an id already claimed stays with its first
// cluster, and clusters left empty are discarded. A failed call or an
// undecodable answer yields no groups. Only context cancellation is returned
// as an error.
func (c *Clusterer) proposeBatch(ctx context.Context, kind, prompt string, batch []string, claimed map[string]bool) ([]claimedGroup, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.gen.Generate(ctx, prompt, llm.ModeJSON, llm.GenerateOptions{
		System:      clusterSystemPrompt,
		Temperature: clusterTemperature,
		MaxTokens:   clusterMaxTokens,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || out == "" {
		slog.Warn("graph: clustering batch failed, members become singletons",
			"kind", kind, "batch", len(batch), "first_id", batch[0], "error", err)
		return nil, nil
	}
	d := llm.Decode(out, validateClusters)
	if !d.OK() {
		slog.Warn("graph: undecodable clustering batch, members become singletons",
			"kind", kind, "batch", len(batch), "first_id", batch[0],
			"status", d.Status.String(), "error", d.Err)
		return nil, nil
	}

	inBatch := make(map[string]bool, len(batch))
	for _, id := range batch {
		inBatch[id] = true
	}

	var groups []claimedGroup
	for _, p := range *d.Value.Clusters {
		var ids []string
		for _, id := range p.Members {
			id = strings.TrimSpace(id)
			switch {
			case !inBatch[id]:
				slog.Warn("graph: dropping unknown cluster member", "kind", kind, "id", id)
			case claimed[id]:
				if !slices.Contains(ids, id) {
					slog.Warn("graph: member already claimed by an earlier cluster", "kind", kind, "id", id)
				}
			default:
				claimed[id] = true
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		groups = append(groups, claimedGroup{proposal: p, ids: ids})
	}
	return groups, nil
}

func entityLine(id string, e AggregatedEntity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %q", id, cmp.Or(e.CanonicalName, e.Name))
	if len(e.OriginalNames) > 1 {
		fmt.Fprintf(&b, " | varianti: %s", strings.Join(e.OriginalNames, ", "))
	}
	if len(e.DetectedTypes) > 0 {
		fmt.Fprintf(&b, " | tipi: %s", strings.Join(e.DetectedTypes, ", "))
	}
	if len(e.Descriptions) > 0 {
		fmt.Fprintf(&b, " | descrizioni: %s", strings.Join(firstN(e.Descriptions, maxPromptSnippets), "; "))
	}
	return b.String()
}

func relationLine(id string, r AggregatedRelation) string {
	line := fmt.Sprintf("%s: %q -[%s]-> %q", id, r.Subject, r.Predicate, r.Object)
	if len(r.Contexts) > 0 {
		line += " | contesti: " + strings.Join(firstN(r.Contexts, maxPromptSnippets), "; ")
	}
	return line
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// newEntityCluster folds members into one cluster. An empty or unknown
// proposed name falls back to the first member, an out-of-vocabulary type to
// the members' majority type.
func newEntityCluster(p clusterProposal, members []AggregatedEntity) EntityCluster {
	ec := EntityCluster{
		Name:      normalize.Normalize(p.CanonicalName),
		Type:      strings.TrimSpace(p.CanonicalType),
		Rationale: strings.TrimSpace(p.Rationale),
	}
	if ec.Name == "" {
		ec.Name = members[0].Name
	}
	if !IsEntityType(ec.Type) {
		types := make([]string, 0, len(members))
		for _, m := range members {
			if m.Type != "" {
				types = append(types, m.Type)
			}
		}
		ec.Type = majority(types)
	}
	for _, m := range members {
		ec.Members = append(ec.Members, m.Name)
		ec.OriginalNames = append(ec.OriginalNames, m.OriginalNames...)
		ec.DetectedTypes = append(ec.DetectedTypes, m.DetectedTypes...)
		ec.Descriptions = append(ec.Descriptions, m.Descriptions...)
		ec.SourceChunkIDs = append(ec.SourceChunkIDs, m.SourceChunkIDs...)
		ec.SourcePages = append(ec.SourcePages, m.SourcePages...)
		ec.SourceSections = append(ec.SourceSections, m.SourceSections...)
		ec.OccurrenceCount += m.OccurrenceCount
	}
	ec.OriginalNames = uniqueSorted(ec.OriginalNames)
	ec.DetectedTypes = uniqueSorted(ec.DetectedTypes)
	ec.Descriptions = uniqueSorted(ec.Descriptions)
	ec.SourceChunkIDs = uniqueSorted(ec.SourceChunkIDs)
	ec.SourcePages = uniqueSorted(ec.SourcePages)
	ec.SourceSections = uniqueSorted(ec.SourceSections)
	return ec
}

// mergeEntityClusters folds clusters sharing a canonical name, since the
// loader keys nodes by name. The first cluster's type and rationale win.
func mergeEntityClusters(clusters []EntityCluster) []EntityCluster {
	index := make(map[string]int, len(clusters))
	var out []EntityCluster
	for _, ec := range clusters {
		i, ok := index[ec.Name]
		if !ok {
			index[ec.Name] = len(out)
			out = append(out, ec)
			continue
		}
		dst := &out[i]
		dst.Members = append(dst.Members, ec.Members...)
		dst.OriginalNames = uniqueSorted(append(dst.OriginalNames, ec.OriginalNames...))
		dst.DetectedTypes = uniqueSorted(append(dst.DetectedTypes, ec.DetectedTypes...))
		dst.Descriptions = uniqueSorted(append(dst.Descriptions, ec.Descriptions...))
		dst.SourceChunkIDs = uniqueSorted(append(dst.SourceChunkIDs, ec.SourceChunkIDs...))
		dst.SourcePages = uniqueSorted(append(dst.SourcePages, ec.SourcePages...))
		dst.SourceSections = uniqueSorted(append(dst.SourceSections, ec.SourceSections...))
		dst.OccurrenceCount += ec.OccurrenceCount
		dst.Rationale = cmp.Or(dst.Rationale, ec.Rationale)
	}
	slices.SortFunc(out, func(a, b EntityCluster) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// mergeRelationClusters folds clusters with an identical triple.
func mergeRelationClusters(clusters []RelationCluster) []RelationCluster {
	index := make(map[tripleKey]int, len(clusters))
	var out []RelationCluster
	for _, rc := range clusters {
		k := tripleKey{rc.Subject, rc.Predicate, rc.Object}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			rc.Members = slices.Clone(rc.Members)
			rc.Contexts = uniqueSorted(rc.Contexts)
			rc.SourceChunkIDs = uniqueSorted(rc.SourceChunkIDs)
			rc.SourcePages = uniqueSorted(rc.SourcePages)
			rc.SourceSections = uniqueSorted(rc.SourceSections)
			out = append(out, rc)
			continue
		}
		dst := &out[i]
		dst.Members = append(dst.Members, rc.Members...)
		dst.Contexts = uniqueSorted(append(dst.Contexts, rc.Contexts...))
		dst.SourceChunkIDs = uniqueSorted(append(dst.SourceChunkIDs, rc.SourceChunkIDs...))
		dst.SourcePages = uniqueSorted(append(dst.SourcePages, rc.SourcePages...))
		dst.SourceSections = uniqueSorted(append(dst.SourceSections, rc.SourceSections...))
		dst.OccurrenceCount += rc.OccurrenceCount
		dst.Rationale = cmp.Or(dst.Rationale, rc.Rationale)
	}
	slices.SortFunc(out, func(a, b RelationCluster) int {
		return cmp.Or(
			cmp.Compare(a.Subject, b.Subject),
			cmp.Compare(a.Predicate, b.Predicate),
			cmp.Compare(a.Object, b.Object),
		)
	})
	return out
}
