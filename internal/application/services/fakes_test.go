package services_test

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/evaluation"
	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
	"github.com/asaCurry/prescriber-point-sub001/pkg/retry"
	"github.com/asaCurry/prescriber-point-sub001/pkg/utils"
)

// memDrugs is an in-memory DrugRepository.
type memDrugs struct {
	mu    sync.Mutex
	drugs map[string]*entities.DrugRecord
	stale int
}

func newMemDrugs(drugs ...*entities.DrugRecord) *memDrugs {
	m := &memDrugs{drugs: map[string]*entities.DrugRecord{}}
	for _, d := range drugs {
		m.drugs[d.ID] = d
	}
	return m
}

func (m *memDrugs) Upsert(_ context.Context, drug *entities.DrugRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.drugs {
		if existing.ExternalID == drug.ExternalID {
			drug.ID = id
		}
	}
	if drug.ID == "" {
		drug.ID = "drug-" + drug.ExternalID
	}
	copied := *drug
	m.drugs[drug.ID] = &copied
	return nil
}

func (m *memDrugs) GetByID(_ context.Context, id string) (*entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drugs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("drug not found")
	}
	copied := *d
	return &copied, nil
}

func (m *memDrugs) GetBySlug(_ context.Context, slug string) (*entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drugs {
		if d.Slug == slug {
			copied := *d
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFoundError("drug not found")
}

func (m *memDrugs) GetByExternalID(_ context.Context, externalID string) (*entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drugs {
		if d.ExternalID == externalID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFoundError("drug not found")
}

func (m *memDrugs) GetByIDs(_ context.Context, ids []string) ([]*entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entities.DrugRecord{}
	for _, id := range ids {
		if d, ok := m.drugs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDrugs) FindByName(_ context.Context, name string) ([]*entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entities.DrugRecord{}
	for _, d := range m.drugs {
		if strings.EqualFold(d.BrandName, name) || strings.EqualFold(d.GenericName, name) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDrugs) FindCandidates(_ context.Context, q repositories.CandidateQuery) ([]*entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entities.DrugRecord{}
	for _, d := range m.drugs {
		if d.ID != q.ExcludeID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDrugs) MarkSourceStale(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drugs[id]
	if !ok {
		return apperrors.NewNotFoundError("drug not found")
	}
	d.SourceStale = true
	return nil
}

func (m *memDrugs) MarkAllSourceStale(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drugs {
		d.SourceStale = true
	}
	m.stale++
	return int64(len(m.drugs)), nil
}

func (m *memDrugs) List(_ context.Context, filter repositories.DrugFilter) ([]*entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entities.DrugRecord{}
	for _, d := range m.drugs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset >= len(out) {
		return []*entities.DrugRecord{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// memEnrichments is an in-memory EnrichmentRepository.
type memEnrichments struct {
	mu       sync.Mutex
	records  map[string]*entities.EnrichmentRecord
	saves    int
	attempts int
	due      []string
}

func newMemEnrichments() *memEnrichments {
	return &memEnrichments{records: map[string]*entities.EnrichmentRecord{}}
}

func (m *memEnrichments) GetByDrugID(_ context.Context, drugID string) (*entities.EnrichmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[drugID]
	if !ok {
		return nil, apperrors.NewNotFoundError("enrichment not found")
	}
	copied := *r
	return &copied, nil
}

func (m *memEnrichments) SaveGenerated(_ context.Context, record *entities.EnrichmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	if existing, ok := m.records[record.DrugID]; ok {
		copied.ID = existing.ID
		copied.LastAttemptAt = existing.LastAttemptAt
	}
	m.records[record.DrugID] = &copied
	m.saves++
	return nil
}

func (m *memEnrichments) MarkAttempt(_ context.Context, drugID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[drugID]
	if !ok {
		r = &entities.EnrichmentRecord{DrugID: drugID}
		m.records[drugID] = r
	}
	r.LastAttemptAt = &at
	m.attempts++
	return nil
}

func (m *memEnrichments) ListDue(_ context.Context, _, _ time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && len(m.due) > limit {
		return m.due[:limit], nil
	}
	return m.due, nil
}

func (m *memEnrichments) get(drugID string) *entities.EnrichmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[drugID]
}

// memRelated is an in-memory RelatedDrugRepository.
type memRelated struct {
	mu    sync.Mutex
	links map[string][]*entities.RelatedDrugLink
}

func newMemRelated() *memRelated {
	return &memRelated{links: map[string][]*entities.RelatedDrugLink{}}
}

func (m *memRelated) ReplaceForSource(_ context.Context, sourceDrugID string, links []*entities.RelatedDrugLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[sourceDrugID] = links
	return nil
}

func (m *memRelated) ListBySource(_ context.Context, sourceDrugID string, limit int) ([]*entities.RelatedDrugLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	links := m.links[sourceDrugID]
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (m *memRelated) get(sourceDrugID string) []*entities.RelatedDrugLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[sourceDrugID]
}

// scriptedProvider answers generation requests from per-type scripts and
// counts calls. A non-nil gate blocks every enrichment call until closed.
type scriptedProvider struct {
	mu         sync.Mutex
	enrichment []providerReply
	related    []providerReply
	gate       chan struct{}

	enrichmentCalls atomic.Int32
	relatedCalls    atomic.Int32
}

type providerReply struct {
	text string
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, req entities.GenerationRequest) (*entities.GeneratedOutput, error) {
	var reply providerReply
	switch req.Type {
	case entities.ContentTypeEnrichment:
		p.enrichmentCalls.Add(1)
		if p.gate != nil {
			select {
			case <-p.gate:
			case <-ctx.Done():
				return nil, apperrors.NewTransientError("generation timed out", ctx.Err())
			}
		}
		reply = p.next(&p.enrichment)
	case entities.ContentTypeRelatedDrugs:
		p.relatedCalls.Add(1)
		reply = p.next(&p.related)
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &entities.GeneratedOutput{Text: reply.text, Provider: "scripted", Model: "test-model"}, nil
}

// next pops a reply; the last reply repeats once the script is exhausted.
func (p *scriptedProvider) next(script *[]providerReply) providerReply {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(*script) == 0 {
		return providerReply{err: apperrors.NewTransientError("no scripted reply", nil)}
	}
	reply := (*script)[0]
	if len(*script) > 1 {
		*script = (*script)[1:]
	}
	return reply
}

// fixedScorer returns the same score for any content.
type fixedScorer float64

func (s fixedScorer) Score(*entities.EnrichmentContent, *entities.DrugRecord) float64 {
	return float64(s)
}

var _ evaluation.Scorer = fixedScorer(0)

// scoreSequence returns scripted scores in order; the last one repeats.
type scoreSequence struct {
	mu     sync.Mutex
	scores []float64
}

func newScoreSequence(scores ...float64) *scoreSequence {
	return &scoreSequence{scores: scores}
}

func (s *scoreSequence) Score(*entities.EnrichmentContent, *entities.DrugRecord) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	score := s.scores[0]
	if len(s.scores) > 1 {
		s.scores = s.scores[1:]
	}
	return score
}

// mockLabelSource is a testify double for providers.LabelSource.
type mockLabelSource struct {
	mock.Mock
}

func (m *mockLabelSource) FetchLabel(ctx context.Context, externalID string) (*entities.RawLabel, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RawLabel), args.Error(1)
}

// mockLabelInvalidator is a testify double for providers.LabelCacheInvalidator.
type mockLabelInvalidator struct {
	mock.Mock
}

func (m *mockLabelInvalidator) InvalidateLabel(ctx context.Context, externalID string) error {
	return m.Called(ctx, externalID).Error(0)
}

func (m *mockLabelInvalidator) InvalidateAllLabels(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// mockSearchIndex is a testify double for providers.DrugSearchIndex.
type mockSearchIndex struct {
	mock.Mock
}

func (m *mockSearchIndex) Index(ctx context.Context, drug *entities.DrugRecord) error {
	return m.Called(ctx, drug).Error(0)
}

func (m *mockSearchIndex) SearchByName(ctx context.Context, name string, limit int) ([]providers.DrugSearchHit, error) {
	args := m.Called(ctx, name, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]providers.DrugSearchHit), args.Error(1)
}

// fakeLocker is an in-process providers.Locker.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

type fakeLock struct {
	locker *fakeLocker
	key    string
}

func (l *fakeLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.key)
	return nil
}

func (f *fakeLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (providers.Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held[key] {
		return nil, providers.ErrLockNotAcquired
	}
	f.held[key] = true
	return &fakeLock{locker: f, key: key}, nil
}

// fixture wires an orchestrator over in-memory stores.
type fixture struct {
	drugs       *memDrugs
	enrichments *memEnrichments
	related     *memRelated
	provider    *scriptedProvider
	breakers    *breaker.Registry
	locker      *fakeLocker
	now         time.Time
}

func newFixture(drugs ...*entities.DrugRecord) *fixture {
	return &fixture{
		drugs:       newMemDrugs(drugs...),
		enrichments: newMemEnrichments(),
		related:     newMemRelated(),
		provider:    &scriptedProvider{},
		breakers:    breaker.NewRegistry(breaker.Settings{FailureThreshold: 5, Cooldown: time.Minute}),
		locker:      newFakeLocker(),
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) pipeline() *services.GenerationPipeline {
	policy := retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return services.NewGenerationPipeline(f.provider, f.breakers, policy, nil)
}

func (f *fixture) orchestrator(score float64) *services.EnrichmentOrchestrator {
	return f.orchestratorWithScorer(fixedScorer(score))
}

func (f *fixture) orchestratorWithScorer(scorer evaluation.Scorer) *services.EnrichmentOrchestrator {
	pipeline := f.pipeline()
	resolver := services.NewRelatedDrugResolver(f.drugs, f.related, nil, pipeline, 0)
	o := services.NewEnrichmentOrchestrator(
		f.drugs,
		f.enrichments,
		pipeline,
		scorer,
		evaluation.NewGuardrails(evaluation.GuardrailConfig{PublishThreshold: 0.7, AcceptThreshold: 0.4}),
		resolver,
		f.locker,
		nil,
		services.OrchestratorConfig{ValidityWindow: 24 * time.Hour, LockTTL: 5 * time.Second},
	)
	o.SetClock(func() time.Time { return f.now })
	return o
}

func lipitor() *entities.DrugRecord {
	return &entities.DrugRecord{
		ID:                "drug-42",
		ExternalID:        "0071-0155",
		Slug:              utils.Slugify("Lipitor", "0071-0155"),
		BrandName:         "Lipitor",
		GenericName:       "atorvastatin calcium",
		Indications:       []string{"Lipitor is indicated to reduce LDL cholesterol and the risk of myocardial infarction."},
		Contraindications: []string{"Active liver disease."},
		Warnings:          []string{"Myopathy and rhabdomyolysis."},
		Dosage:            []string{"10 mg to 80 mg once daily."},
		Ingredients:       []string{"atorvastatin calcium"},
		PharmClasses:      []string{"HMG-CoA Reductase Inhibitor [EPC]"},
	}
}

func crestor() *entities.DrugRecord {
	return &entities.DrugRecord{
		ID:           "drug-77",
		ExternalID:   "0310-0751",
		Slug:         "crestor-0310-0751",
		BrandName:    "Crestor",
		GenericName:  "rosuvastatin calcium",
		Indications:  []string{"Crestor is indicated to reduce LDL cholesterol in hyperlipidemia."},
		Ingredients:  []string{"rosuvastatin calcium"},
		PharmClasses: []string{"HMG-CoA Reductase Inhibitor [EPC]"},
	}
}

func enrichmentJSON() string {
	payload := map[string]any{
		"title":            "Lipitor (Atorvastatin): Uses and Safety",
		"meta_description": "Lipitor lowers LDL cholesterol.",
		"summary":          "Lipitor is a statin that lowers LDL cholesterol and reduces the risk of heart attack.",
		"section_summaries": map[string]string{
			"indications": "Used to lower LDL cholesterol and reduce cardiovascular risk.",
		},
		"faqs":     []map[string]string{{"question": "What is Lipitor?", "answer": "A statin for cholesterol."}},
		"keywords": []string{"lipitor", "atorvastatin"},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}
