package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// Invalidation scopes accepted by the webhook.
const (
	InvalidationScopeDrug   = "drug"
	InvalidationScopeGlobal = "global"
)

// InvalidationResult reports what an invalidation touched.
type InvalidationResult struct {
	Scope       string `json:"scope"`
	DrugID      string `json:"drug_id,omitempty"`
	DrugsMarked int64  `json:"drugs_marked"`
}

// CacheInvalidationService makes drugs eligible for a source refetch on
// their next read. It never runs enrichment itself.
type CacheInvalidationService struct {
	drugs  repositories.DrugRepository
	labels providers.LabelCacheInvalidator
	logger zerolog.Logger
}

// NewCacheInvalidationService creates an invalidation service. drugs is
// expected to be the cached repository so record cache keys are dropped with
// the stale flag. labels may be nil when raw labels are not cached.
func NewCacheInvalidationService(drugs repositories.DrugRepository, labels providers.LabelCacheInvalidator) *CacheInvalidationService {
	return &CacheInvalidationService{
		drugs:  drugs,
		labels: labels,
		logger: observability.ComponentLogger("invalidation"),
	}
}

// Invalidate dispatches on scope.
func (s *CacheInvalidationService) Invalidate(ctx context.Context, scope, drugID string) (*InvalidationResult, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case InvalidationScopeDrug:
		return s.InvalidateDrug(ctx, drugID)
	case InvalidationScopeGlobal:
		return s.InvalidateAll(ctx)
	default:
		return nil, apperrors.NewValidationError("scope must be \"drug\" or \"global\"")
	}
}

// InvalidateDrug marks one drug's source stale and drops its cached record and raw label.
func (s *CacheInvalidationService) InvalidateDrug(ctx context.Context, drugID string) (*InvalidationResult, error) {
	drugID = strings.TrimSpace(drugID)
	if drugID == "" {
		return nil, apperrors.NewValidationError("drugId is required for drug scope")
	}

	drug, err := s.drugs.GetByID(ctx, drugID)
	if err != nil {
		return nil, err
	}
	if err := s.drugs.MarkSourceStale(ctx, drugID); err != nil {
		return nil, err
	}
	if s.labels != nil {
		if err := s.labels.InvalidateLabel(ctx, drug.ExternalID); err != nil {
			s.logger.Warn().Err(err).Str("external_id", drug.ExternalID).Msg("failed to drop cached label")
		}
	}

	s.logger.Info().Str("drug_id", drugID).Msg("drug invalidated")
	return &InvalidationResult{Scope: InvalidationScopeDrug, DrugID: drugID, DrugsMarked: 1}, nil
}

// InvalidateAll marks every drug stale and drops all cached records and labels.
func (s *CacheInvalidationService) InvalidateAll(ctx context.Context) (*InvalidationResult, error) {
	n, err := s.drugs.MarkAllSourceStale(ctx)
	if err != nil {
		return nil, err
	}
	if s.labels != nil {
		if err := s.labels.InvalidateAllLabels(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drop cached labels")
		}
	}

	s.logger.Info().Int64("drugs", n).Msg("all drugs invalidated")
	return &InvalidationResult{Scope: InvalidationScopeGlobal, DrugsMarked: n}, nil
}
