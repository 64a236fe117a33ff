package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/evaluation"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// EnrichOptions controls a single enrich call.
type EnrichOptions struct {
	// WaitForCompletion blocks until generation finishes. Otherwise the
	// caller gets whatever is servable now and generation runs in the background.
	WaitForCompletion bool
	ForceRefresh      bool
}

// OrchestratorConfig holds freshness and exclusivity tuning.
type OrchestratorConfig struct {
	ValidityWindow time.Duration
	LockTTL        time.Duration
}

// EnrichmentOrchestrator decides when to generate content for a drug, makes
// sure only one generation per drug is in flight across callers and
// instances, gates the result on its confidence and persists it.
type EnrichmentOrchestrator struct {
	drugs       repositories.DrugRepository
	enrichments repositories.EnrichmentRepository
	pipeline    *GenerationPipeline
	scorer      evaluation.Scorer
	guardrails  *evaluation.Guardrails
	resolver    *RelatedDrugResolver
	locker      providers.Locker
	metrics     *observability.Metrics
	config      OrchestratorConfig
	sources     []ContentSource

	inflight   singleflight.Group
	background sync.WaitGroup
	now        func() time.Time
	logger     zerolog.Logger
}

// NewEnrichmentOrchestrator creates an orchestrator. locker and resolver may be nil.
func NewEnrichmentOrchestrator(
	drugs repositories.DrugRepository,
	enrichments repositories.EnrichmentRepository,
	pipeline *GenerationPipeline,
	scorer evaluation.Scorer,
	guardrails *evaluation.Guardrails,
	resolver *RelatedDrugResolver,
	locker providers.Locker,
	metrics *observability.Metrics,
	config OrchestratorConfig,
) *EnrichmentOrchestrator {
	if config.ValidityWindow <= 0 {
		config.ValidityWindow = 7 * 24 * time.Hour
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 90 * time.Second
	}
	return &EnrichmentOrchestrator{
		drugs:       drugs,
		enrichments: enrichments,
		pipeline:    pipeline,
		scorer:      scorer,
		guardrails:  guardrails,
		resolver:    resolver,
		locker:      locker,
		metrics:     metrics,
		config:      config,
		sources:     DefaultContentSources,
		now:         time.Now,
		logger:      observability.ComponentLogger("orchestrator"),
	}
}

// SetClock overrides the time source.
func (o *EnrichmentOrchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Wait blocks until every background enrichment started so far has finished.
func (o *EnrichmentOrchestrator) Wait() {
	o.background.Wait()
}

// Enrich returns servable content for a drug, generating it when the stored
// record is missing, stale or a refresh is forced. Generation failures never
// surface as errors; only lookup and persistence failures do.
func (o *EnrichmentOrchestrator) Enrich(ctx context.Context, drugID string, opts EnrichOptions) (*entities.EnrichmentResult, error) {
	ctx, span := observability.StartSpan(ctx, "orchestrator.enrich")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("drug.id", drugID),
		attribute.Bool("enrichment.wait", opts.WaitForCompletion),
		attribute.Bool("enrichment.force", opts.ForceRefresh),
	)

	result, err := o.enrich(ctx, drugID, opts)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.SetSpanAttributes(span, attribute.String("enrichment.status", string(result.Status)))
	observability.RecordEnrichmentOutcome(ctx, o.metrics, string(result.Status), result.Degraded)
	return result, nil
}

func (o *EnrichmentOrchestrator) enrich(ctx context.Context, drugID string, opts EnrichOptions) (*entities.EnrichmentResult, error) {
	if drugID == "" {
		return nil, apperrors.NewValidationError("drug ID is required")
	}

	drug, err := o.drugs.GetByID(ctx, drugID)
	if err != nil {
		return nil, err
	}
	record, err := o.currentRecord(ctx, drugID)
	if err != nil {
		return nil, err
	}

	if !opts.ForceRefresh && record.IsFresh(o.now(), o.config.ValidityWindow) {
		return o.result(drug, record, entities.StatusFresh), nil
	}

	if !opts.WaitForCompletion {
		o.startBackground(ctx, drug, opts.ForceRefresh)
		if record.Servable() {
			return o.result(drug, record, entities.StatusStale), nil
		}
		return o.result(drug, record, entities.StatusInProgress), nil
	}

	ch := o.inflight.DoChan(inflightKey(drugID), o.leader(ctx, drug, opts.ForceRefresh))
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entities.EnrichmentResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func inflightKey(drugID string) string {
	return "enrich:" + drugID
}

// startBackground runs generation detached from the caller. It shares the
// in-flight token with foreground callers, so at most one runs per drug.
func (o *EnrichmentOrchestrator) startBackground(ctx context.Context, drug *entities.DrugRecord, force bool) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		res := <-o.inflight.DoChan(inflightKey(drug.ID), o.leader(ctx, drug, force))
		if res.Err != nil {
			o.logger.Error().Err(res.Err).Str("drug_id", drug.ID).Msg("background enrichment failed")
		}
	}()
}

// leader returns the function run by whichever caller wins the in-flight
// token. It ignores the caller's cancellation and is bounded by LockTTL; if it
// overruns, the token is dropped so new callers are not stuck behind it.
func (o *EnrichmentOrchestrator) leader(ctx context.Context, drug *entities.DrugRecord, force bool) func() (any, error) {
	return func() (any, error) {
		key := inflightKey(drug.ID)
		timer := time.AfterFunc(o.config.LockTTL, func() { o.inflight.Forget(key) })
		defer timer.Stop()

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.LockTTL)
		defer cancel()
		return o.run(runCtx, drug, force)
	}
}

func (o *EnrichmentOrchestrator) run(ctx context.Context, drug *entities.DrugRecord, force bool) (*entities.EnrichmentResult, error) {
	logger := observability.LoggerFromContext(ctx).With().Str("component", "orchestrator").Str("drug_id", drug.ID).Logger()

	if o.locker != nil {
		lock, err := o.locker.TryAcquire(ctx, inflightKey(drug.ID), o.config.LockTTL)
		switch {
		case errors.Is(err, providers.ErrLockNotAcquired):
			logger.Debug().Msg("enrichment already running on another instance")
			record, err := o.currentRecord(ctx, drug.ID)
			if err != nil {
				return nil, err
			}
			return o.result(drug, record, entities.StatusInProgress), nil
		case err != nil:
			logger.Warn().Err(err).Msg("distributed lock unavailable, continuing with in-process exclusivity")
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Msg("failed to release enrichment lock")
				}
			}()
		}
	}

	// Another caller may have finished between our read and taking the lock.
	record, err := o.currentRecord(ctx, drug.ID)
	if err != nil {
		return nil, err
	}
	if !force && record.IsFresh(o.now(), o.config.ValidityWindow) {
		return o.result(drug, record, entities.StatusFresh), nil
	}

	content, genErr := o.pipeline.Enrichment(ctx, drug)
	if genErr != nil {
		return o.fail(ctx, logger, drug, record, genErr)
	}

	score := o.scorer.Score(content, drug)
	decision := o.guardrails.Decide(score)
	if decision == evaluation.DecisionReject {
		observability.RecordConfidence(ctx, o.metrics, score, false)
		return o.reject(ctx, logger, drug, record, score)
	}
	at := o.now().UTC()
	saved := &entities.EnrichmentRecord{
		DrugID:           drug.ID,
		Title:            content.Title,
		MetaDescription:  content.MetaDescription,
		Summary:          content.Summary,
		SectionSummaries: content.SectionSummaries,
		FAQs:             content.FAQs,
		Keywords:         content.Keywords,
		StructuredData:   entities.BuildDrugStructuredData(drug, content),
		Confidence:       &score,
		IsPublished:      decision == evaluation.DecisionPublish,
		IsReviewed:       false,
		ReviewReason:     o.guardrails.ReviewReason(score),
		Provider:         content.Provider,
		Model:            content.Model,
		LastSuccessAt:    &at,
	}
	if err := o.enrichments.SaveGenerated(ctx, saved); err != nil {
		return nil, err
	}
	observability.RecordConfidence(ctx, o.metrics, score, saved.IsPublished)

	logger.Info().
		Float64("confidence", score).
		Str("decision", string(decision)).
		Str("provider", saved.Provider).
		Msg("enrichment generated")

	o.resolveRelated(ctx, logger, drug, true)

	status := entities.StatusGenerated
	if !saved.IsPublished {
		status = entities.StatusPendingReview
	}
	return o.result(drug, saved, status), nil
}

// fail records the attempt and falls back to whatever is servable. Existing
// content and confidence are left untouched.
func (o *EnrichmentOrchestrator) fail(ctx context.Context, logger zerolog.Logger, drug *entities.DrugRecord, record *entities.EnrichmentRecord, cause error) (*entities.EnrichmentResult, error) {
	event := logger.Warn().Err(cause).Str("error_type", string(apperrors.TypeOf(cause)))
	var open *apperrors.BreakerOpenError
	if errors.As(cause, &open) {
		event = event.Str("operation", open.Operation).Dur("retry_after", open.RetryAfter)
	}
	event.Msg("enrichment failed, serving fallback")
	return o.fallback(ctx, logger, drug, record)
}

// reject discards content scored below the acceptance threshold. It is
// handled like a failed attempt so a previously stored record keeps serving.
func (o *EnrichmentOrchestrator) reject(ctx context.Context, logger zerolog.Logger, drug *entities.DrugRecord, record *entities.EnrichmentRecord, score float64) (*entities.EnrichmentResult, error) {
	logger.Warn().
		Float64("confidence", score).
		Str("reason", o.guardrails.ReviewReason(score)).
		Msg("generated content rejected, serving fallback")
	return o.fallback(ctx, logger, drug, record)
}

func (o *EnrichmentOrchestrator) fallback(ctx context.Context, logger zerolog.Logger, drug *entities.DrugRecord, record *entities.EnrichmentRecord) (*entities.EnrichmentResult, error) {
	at := o.now().UTC()
	if err := o.enrichments.MarkAttempt(ctx, drug.ID, at); err != nil {
		return nil, err
	}
	if record != nil {
		attempted := *record
		attempted.LastAttemptAt = &at
		record = &attempted
	} else {
		record = &entities.EnrichmentRecord{DrugID: drug.ID, LastAttemptAt: &at}
	}

	o.resolveRelated(ctx, logger, drug, false)

	result := o.result(drug, record, entities.StatusFailed)
	if record.Servable() {
		result.Status = entities.StatusStale
	}
	return result, nil
}

// resolveRelated refreshes related links. Its failures are logged, never returned.
func (o *EnrichmentOrchestrator) resolveRelated(ctx context.Context, logger zerolog.Logger, drug *entities.DrugRecord, useGeneration bool) {
	if o.resolver == nil {
		return
	}
	links, err := o.resolver.Resolve(ctx, drug, useGeneration)
	if err != nil {
		logger.Warn().Err(err).Msg("related drug resolution failed")
		return
	}
	logger.Debug().Int("links", len(links)).Bool("generation", useGeneration).Msg("related drugs resolved")
}

func (o *EnrichmentOrchestrator) currentRecord(ctx context.Context, drugID string) (*entities.EnrichmentRecord, error) {
	record, err := o.enrichments.GetByDrugID(ctx, drugID)
	if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (o *EnrichmentOrchestrator) result(drug *entities.DrugRecord, record *entities.EnrichmentRecord, status entities.EnrichmentStatus) *entities.EnrichmentResult {
	content := ServeContent(o.sources, drug, record)
	res := &entities.EnrichmentResult{
		Drug:       drug,
		Content:    content,
		Enrichment: record,
		Status:     status,
		Degraded:   content.Source == entities.ContentSourceRaw,
	}
	if record != nil && record.Confidence != nil {
		confidence := *record.Confidence
		res.Confidence = &confidence
	}
	if status == entities.StatusFresh && record != nil && !record.IsPublished {
		res.Status = entities.StatusPendingReview
	}
	return res
}
