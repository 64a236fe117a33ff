package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// DrugService owns the catalog side: fetching labels from the source,
// normalizing and storing them, and reading drugs and their related links.
type DrugService struct {
	drugs      repositories.DrugRepository
	related    repositories.RelatedDrugRepository
	source     providers.LabelSource
	normalizer *SourceNormalizer
	index      providers.DrugSearchIndex
	sourceTTL  time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewDrugService creates a drug service. index may be nil.
func NewDrugService(
	drugs repositories.DrugRepository,
	related repositories.RelatedDrugRepository,
	source providers.LabelSource,
	normalizer *SourceNormalizer,
	index providers.DrugSearchIndex,
	sourceTTL time.Duration,
) *DrugService {
	if sourceTTL <= 0 {
		sourceTTL = 24 * time.Hour
	}
	return &DrugService{
		drugs:      drugs,
		related:    related,
		source:     source,
		normalizer: normalizer,
		index:      index,
		sourceTTL:  sourceTTL,
		now:        time.Now,
		logger:     observability.ComponentLogger("drugs"),
	}
}

// GetBySlug returns the stored drug, refetching its label first when the
// stored copy is past the source TTL or was invalidated. A failed refetch
// keeps serving the stored copy.
func (s *DrugService) GetBySlug(ctx context.Context, slug string) (*entities.DrugRecord, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, apperrors.NewValidationError("slug is required")
	}

	drug, err := s.drugs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !drug.NeedsRefetch(s.now(), s.sourceTTL) {
		return drug, nil
	}

	refreshed, err := s.FetchAndCache(ctx, drug.ExternalID)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("drug_id", drug.ID).
			Str("external_id", drug.ExternalID).
			Msg("label refetch failed, serving stored copy")
		return drug, nil
	}
	return refreshed, nil
}

// GetByID returns a stored drug.
func (s *DrugService) GetByID(ctx context.Context, id string) (*entities.DrugRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("drug ID is required")
	}
	return s.drugs.GetByID(ctx, id)
}

// FetchAndCache pulls a label from the source, normalizes it and upserts it.
// Malformed labels fail here and nothing is stored.
func (s *DrugService) FetchAndCache(ctx context.Context, externalID string) (*entities.DrugRecord, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperrors.NewValidationError("external ID is required")
	}

	raw, err := s.source.FetchLabel(ctx, externalID)
	if err != nil {
		return nil, err
	}
	drug, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	drug.SourceStale = false
	if err := s.drugs.Upsert(ctx, drug); err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.Index(ctx, drug); err != nil {
			s.logger.Warn().Err(err).Str("drug_id", drug.ID).Msg("failed to index drug")
		}
	}
	return drug, nil
}

// GetRelated returns the stored related links of a drug.
func (s *DrugService) GetRelated(ctx context.Context, drugID string, limit int) ([]*entities.RelatedDrugLink, error) {
	if _, err := s.GetByID(ctx, drugID); err != nil {
		return nil, err
	}
	return s.related.ListBySource(ctx, drugID, limit)
}

// Reindex pushes every stored drug into the search index, page by page.
func (s *DrugService) Reindex(ctx context.Context, pageSize int) (int, error) {
	if s.index == nil {
		return 0, apperrors.NewValidationError("search index is not configured")
	}
	if pageSize <= 0 {
		pageSize = 200
	}

	indexed := 0
	for offset := 0; ; offset += pageSize {
		page, err := s.drugs.List(ctx, repositories.DrugFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return indexed, err
		}
		for _, drug := range page {
			if err := s.index.Index(ctx, drug); err != nil {
				return indexed, err
			}
			indexed++
		}
		if len(page) < pageSize {
			return indexed, nil
		}
	}
}
