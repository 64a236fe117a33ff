package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/utils"
)

// Confidence assigned to provider suggestions, before rank decay.
const (
	exactMatchConfidence = 0.9
	indexMatchConfidence = 0.75
	rankDecay            = 0.05
	minLinkConfidence    = 0.1
)

const (
	defaultMaxLinks        = 10
	indexHitsPerSuggestion = 3
	maxIndicationTerms     = 12
	minIndicationOverlap   = 0.1
)

// labelBoilerplate are indication words shared by nearly every label.
var labelBoilerplate = map[string]struct{}{
	"indicated": {}, "indication": {}, "indications": {}, "treatment": {}, "treat": {},
	"patients": {}, "adults": {}, "adult": {}, "pediatric": {}, "children": {}, "years": {},
	"age": {}, "adjunct": {}, "therapy": {}, "reduce": {}, "risk": {}, "relief": {},
	"symptoms": {}, "temporarily": {}, "management": {}, "usage": {}, "limitations": {},
	"tablets": {}, "capsules": {}, "injection": {}, "oral": {}, "daily": {},
}

// RelatedDrugResolver links a drug to other catalog drugs. Every link points
// at a drug that exists locally; names that cannot be resolved are dropped.
type RelatedDrugResolver struct {
	drugs    repositories.DrugRepository
	related  repositories.RelatedDrugRepository
	index    providers.DrugSearchIndex
	pipeline *GenerationPipeline
	maxLinks int
	logger   zerolog.Logger
}

// NewRelatedDrugResolver creates a resolver. index and pipeline may be nil, in
// which case names are matched exactly and only heuristics are used.
func NewRelatedDrugResolver(
	drugs repositories.DrugRepository,
	related repositories.RelatedDrugRepository,
	index providers.DrugSearchIndex,
	pipeline *GenerationPipeline,
	maxLinks int,
) *RelatedDrugResolver {
	if maxLinks <= 0 {
		maxLinks = defaultMaxLinks
	}
	return &RelatedDrugResolver{
		drugs:    drugs,
		related:  related,
		index:    index,
		pipeline: pipeline,
		maxLinks: maxLinks,
		logger:   observability.ComponentLogger("resolver"),
	}
}

// Resolve derives, validates, ranks and stores the related links of drug.
// Provider suggestions are used when useGeneration is set and the call
// succeeds; otherwise, or when no suggestion resolves, label overlap
// heuristics are used. The stored set replaces the previous one, except that
// a heuristic pass never overwrites links that came from generation.
func (r *RelatedDrugResolver) Resolve(ctx context.Context, drug *entities.DrugRecord, useGeneration bool) ([]*entities.RelatedDrugLink, error) {
	var links []*entities.RelatedDrugLink

	if !useGeneration {
		existing, err := r.related.ListBySource(ctx, drug.ID, 0)
		if err != nil {
			return nil, err
		}
		if hasGeneratedLinks(existing) {
			return existing, nil
		}
	}

	if useGeneration && r.pipeline != nil {
		suggestions, err := r.pipeline.RelatedSuggestions(ctx, drug)
		if err != nil {
			r.logger.Warn().Err(err).Str("drug_id", drug.ID).Msg("related suggestions unavailable, using heuristics")
		} else {
			links, err = r.fromSuggestions(ctx, drug, suggestions)
			if err != nil {
				return nil, err
			}
		}
	}

	if len(links) == 0 {
		var err error
		links, err = r.fromHeuristics(ctx, drug)
		if err != nil {
			return nil, err
		}
	}

	links = RankLinks(drug.ID, links, r.maxLinks)
	if err := r.related.ReplaceForSource(ctx, drug.ID, links); err != nil {
		return nil, err
	}
	return links, nil
}

func hasGeneratedLinks(links []*entities.RelatedDrugLink) bool {
	for _, l := range links {
		if l.Origin == entities.LinkOriginGeneration {
			return true
		}
	}
	return false
}

func (r *RelatedDrugResolver) fromSuggestions(ctx context.Context, drug *entities.DrugRecord, suggestions []entities.RelatedSuggestion) ([]*entities.RelatedDrugLink, error) {
	links := make([]*entities.RelatedDrugLink, 0, len(suggestions))
	for rank, suggestion := range suggestions {
		target, base, err := r.match(ctx, suggestion.Name)
		if err != nil {
			return nil, err
		}
		if target == nil {
			r.logger.Debug().Str("drug_id", drug.ID).Str("candidate", suggestion.Name).Msg("dropping unresolvable related drug")
			continue
		}

		relationship := suggestion.Relationship
		if relationship == entities.RelationshipAlternative {
			relationship = inferRelationship(drug, target, relationship)
		}
		links = append(links, &entities.RelatedDrugLink{
			SourceDrugID: drug.ID,
			TargetDrugID: target.ID,
			Relationship: relationship,
			Confidence:   round3(math.Max(base-rankDecay*float64(rank), minLinkConfidence)),
			Reason:       suggestion.Reason,
			Origin:       entities.LinkOriginGeneration,
		})
	}
	return links, nil
}

// match resolves a free-text name to one catalog drug. Exact brand or
// generic matches win; search index hits are candidates that must be
// re-read from the repository and agree on the normalized name.
func (r *RelatedDrugResolver) match(ctx context.Context, name string) (*entities.DrugRecord, float64, error) {
	key := utils.DrugMatchKey(name)
	if key == "" {
		return nil, 0, nil
	}

	for _, lookup := range uniqueStrings(strings.TrimSpace(name), key) {
		found, err := r.drugs.FindByName(ctx, lookup)
		if err != nil {
			return nil, 0, err
		}
		if len(found) > 0 {
			return found[0], exactMatchConfidence, nil
		}
	}

	if r.index == nil {
		return nil, 0, nil
	}
	hits, err := r.index.SearchByName(ctx, key, indexHitsPerSuggestion)
	if err != nil {
		r.logger.Warn().Err(err).Str("candidate", name).Msg("drug index lookup failed")
		return nil, 0, nil
	}
	if len(hits) == 0 {
		return nil, 0, nil
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.DrugID)
	}
	verified, err := r.drugs.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[string]*entities.DrugRecord, len(verified))
	for _, d := range verified {
		byID[d.ID] = d
	}
	for _, hit := range hits {
		if d, ok := byID[hit.DrugID]; ok && namesAgree(key, d) {
			return d, indexMatchConfidence, nil
		}
	}
	return nil, 0, nil
}

// namesAgree accepts a catalog drug whose brand or generic match key equals
// key or extends it by whole words ("atorvastatin" vs "atorvastatin calcium").
func namesAgree(key string, d *entities.DrugRecord) bool {
	for _, name := range []string{d.BrandName, d.GenericName} {
		other := utils.DrugMatchKey(name)
		if other == "" {
			continue
		}
		if other == key || strings.HasPrefix(other, key+" ") || strings.HasPrefix(key, other+" ") {
			return true
		}
	}
	return false
}

func (r *RelatedDrugResolver) fromHeuristics(ctx context.Context, drug *entities.DrugRecord) ([]*entities.RelatedDrugLink, error) {
	terms := indicationTermList(drug)
	sourceTerms := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		sourceTerms[term] = struct{}{}
	}
	query := repositories.CandidateQuery{
		ExcludeID:       drug.ID,
		Ingredients:     drug.Ingredients,
		PharmClasses:    drug.PharmClasses,
		IndicationTerms: firstN(terms, maxIndicationTerms),
		Limit:           50,
	}
	candidates, err := r.drugs.FindCandidates(ctx, query)
	if err != nil {
		return nil, err
	}

	links := make([]*entities.RelatedDrugLink, 0, len(candidates))
	for _, candidate := range candidates {
		if link := heuristicLink(drug, candidate, sourceTerms); link != nil {
			links = append(links, link)
		}
	}
	return links, nil
}

// heuristicLink scores every overlap kind and keeps the strongest.
func heuristicLink(drug, candidate *entities.DrugRecord, sourceTerms map[string]struct{}) *entities.RelatedDrugLink {
	var best *entities.RelatedDrugLink
	consider := func(rel entities.RelationshipType, confidence float64, reason string) {
		confidence = round3(confidence)
		link := &entities.RelatedDrugLink{
			SourceDrugID: drug.ID,
			TargetDrugID: candidate.ID,
			Relationship: rel,
			Confidence:   confidence,
			Reason:       reason,
			Origin:       entities.LinkOriginHeuristic,
		}
		if best == nil || link.RankBefore(best) {
			best = link
		}
	}

	if j := utils.Jaccard(lowerSet(drug.Ingredients), lowerSet(candidate.Ingredients)); j > 0 {
		consider(entities.RelationshipGenericEquivalent, 0.5+0.45*j, "shares active ingredients")
	}
	if j := utils.Jaccard(lowerSet(drug.PharmClasses), lowerSet(candidate.PharmClasses)); j > 0 {
		consider(entities.RelationshipSameClass, 0.4+0.5*j, "same pharmacologic class")
	}
	if j := utils.Jaccard(sourceTerms, indicationTerms(candidate)); j >= minIndicationOverlap {
		consider(entities.RelationshipSimilarIndication, 0.3+0.6*j, "similar indications")
	}
	return best
}

// inferRelationship upgrades an untyped suggestion using label overlap.
func inferRelationship(drug, target *entities.DrugRecord, fallback entities.RelationshipType) entities.RelationshipType {
	switch {
	case utils.Jaccard(lowerSet(drug.Ingredients), lowerSet(target.Ingredients)) > 0:
		return entities.RelationshipGenericEquivalent
	case utils.Jaccard(lowerSet(drug.PharmClasses), lowerSet(target.PharmClasses)) > 0:
		return entities.RelationshipSameClass
	}
	return fallback
}

// RankLinks drops self links and links outside [0,1], keeps the strongest
// link per target, orders by confidence, relationship priority and target ID,
// and truncates to limit.
func RankLinks(sourceID string, links []*entities.RelatedDrugLink, limit int) []*entities.RelatedDrugLink {
	best := make(map[string]*entities.RelatedDrugLink, len(links))
	for _, link := range links {
		if link == nil || link.TargetDrugID == "" || link.TargetDrugID == sourceID {
			continue
		}
		if link.Confidence < 0 || link.Confidence > 1 {
			continue
		}
		link.SourceDrugID = sourceID
		if current, ok := best[link.TargetDrugID]; !ok || link.RankBefore(current) {
			best[link.TargetDrugID] = link
		}
	}

	out := make([]*entities.RelatedDrugLink, 0, len(best))
	for _, link := range best {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RankBefore(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// indicationTermList returns distinctive indication terms in label order,
// without boilerplate and without the drug's own names.
func indicationTermList(d *entities.DrugRecord) []string {
	own := utils.TermSet(d.BrandName, d.GenericName)
	out := []string{}
	for _, term := range utils.Terms(strings.Join(d.Indications, " ")) {
		if _, ok := labelBoilerplate[term]; ok {
			continue
		}
		if _, ok := own[term]; ok {
			continue
		}
		out = append(out, term)
	}
	return out
}

func indicationTerms(d *entities.DrugRecord) map[string]struct{} {
	set := make(map[string]struct{})
	for _, term := range indicationTermList(d) {
		set[term] = struct{}{}
	}
	return set
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func uniqueStrings(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && !containsFold(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
