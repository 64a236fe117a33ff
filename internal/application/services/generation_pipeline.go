package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
	"github.com/asaCurry/prescriber-point-sub001/pkg/retry"
)

// GenerationPipeline is the only path to the generation provider. Each call
// runs retry(breaker(provider)) with one breaker per operation, so a failing
// related-drugs call never opens the enrichment breaker.
type GenerationPipeline struct {
	provider providers.GenerationProvider
	breakers *breaker.Registry
	policy   retry.Policy
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewGenerationPipeline wires a provider behind the breaker registry and retry policy.
// Only transient errors are retried.
func NewGenerationPipeline(
	provider providers.GenerationProvider,
	breakers *breaker.Registry,
	policy retry.Policy,
	metrics *observability.Metrics,
) *GenerationPipeline {
	p := &GenerationPipeline{
		provider: provider,
		breakers: breakers,
		policy:   policy,
		metrics:  metrics,
		logger:   observability.ComponentLogger("generation"),
	}
	p.policy.IsRetryable = apperrors.IsTransient
	return p
}

// Enrichment asks for page content. Malformed output is returned as a validation error.
func (p *GenerationPipeline) Enrichment(ctx context.Context, drug *entities.DrugRecord) (*entities.EnrichmentContent, error) {
	parsed, err := p.call(ctx, breaker.OperationEnrichment, entities.GenerationRequest{Type: entities.ContentTypeEnrichment, Drug: drug}, entities.ParseEnrichmentContent)
	if err != nil {
		return nil, err
	}
	return parsed.(*entities.EnrichmentContent), nil
}

// RelatedSuggestions asks for related drug names.
func (p *GenerationPipeline) RelatedSuggestions(ctx context.Context, drug *entities.DrugRecord) ([]entities.RelatedSuggestion, error) {
	parsed, err := p.call(ctx, breaker.OperationRelatedDrugs, entities.GenerationRequest{Type: entities.ContentTypeRelatedDrugs, Drug: drug}, entities.ParseRelatedSuggestions)
	if err != nil {
		return nil, err
	}
	return parsed.(*entities.RelatedSuggestions).Items, nil
}

func (p *GenerationPipeline) call(
	ctx context.Context,
	operation string,
	req entities.GenerationRequest,
	parse func(entities.GeneratedOutput) entities.GeneratedContent,
) (entities.GeneratedContent, error) {
	ctx, span := observability.StartSpan(ctx, "generation."+operation)
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("generation.provider", p.provider.Name()),
		attribute.String("drug.id", req.Drug.ID),
	)

	cb := p.breakers.Get(operation)
	policy := p.policy
	policy.OnRetry = func(attempt int, err error, next time.Duration) {
		p.logger.Warn().Err(err).
			Str("operation", operation).
			Str("drug_id", req.Drug.ID).
			Int("attempt", attempt).
			Dur("next_delay", next).
			Msg("generation attempt failed, retrying")
	}

	content, err := retry.Execute(ctx, policy, func(ctx context.Context) (entities.GeneratedContent, error) {
		return breaker.Execute(ctx, cb, func(ctx context.Context) (entities.GeneratedContent, error) {
			start := time.Now()
			out, err := p.provider.Generate(ctx, req)
			observability.RecordGeneration(ctx, p.metrics, p.provider.Name(), string(req.Type), time.Since(start), err)
			if err != nil {
				return nil, err
			}
			parsed := parse(*out)
			if malformed, ok := parsed.(*entities.MalformedContent); ok {
				return nil, apperrors.NewValidationError("malformed " + string(req.Type) + " output: " + malformed.Reason)
			}
			return parsed, nil
		})
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return content, nil
}
