package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// Enricher is the orchestrator surface the batch service drives.
type Enricher interface {
	Enrich(ctx context.Context, drugID string, opts EnrichOptions) (*entities.EnrichmentResult, error)
}

// BatchItemResult is the outcome for one drug in a batch.
type BatchItemResult struct {
	DrugID     string                    `json:"drug_id"`
	Status     entities.EnrichmentStatus `json:"status,omitempty"`
	Degraded   bool                      `json:"degraded"`
	Confidence *float64                  `json:"confidence,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// BatchResult aggregates a batch run in request order.
type BatchResult struct {
	Items     []BatchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// BatchEnrichmentService fans enrichment out across many drugs with bounded
// concurrency so the provider's rate limit is respected.
type BatchEnrichmentService struct {
	enricher    Enricher
	concurrency int
	maxIDs      int
	logger      zerolog.Logger

	detached sync.WaitGroup
}

// NewBatchEnrichmentService creates a batch service.
func NewBatchEnrichmentService(enricher Enricher, concurrency, maxIDs int) *BatchEnrichmentService {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxIDs < 1 {
		maxIDs = 100
	}
	return &BatchEnrichmentService{
		enricher:    enricher,
		concurrency: concurrency,
		maxIDs:      maxIDs,
		logger:      observability.ComponentLogger("batch"),
	}
}

// NormalizeIDs trims, drops blanks and dedupes drug IDs, and enforces the batch limit.
func (s *BatchEnrichmentService) NormalizeIDs(drugIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(drugIDs))
	ids := make([]string, 0, len(drugIDs))
	for _, id := range drugIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("at least one drug ID is required")
	}
	if len(ids) > s.maxIDs {
		return nil, apperrors.NewValidationError(fmt.Sprintf("batch exceeds %d drug IDs", s.maxIDs))
	}
	return ids, nil
}

// Run enriches every drug and reports per-drug status. A failure for one
// drug never aborts the others; only a canceled context stops the batch.
func (s *BatchEnrichmentService) Run(ctx context.Context, drugIDs []string, opts EnrichOptions) (*BatchResult, error) {
	ids, err := s.NormalizeIDs(drugIDs)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItemResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = s.enrichOne(gctx, id, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BatchResult{Items: items}
	for _, item := range items {
		if item.Error != "" {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	s.logger.Info().
		Int("drugs", len(ids)).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Bool("wait", opts.WaitForCompletion).
		Msg("batch enrichment finished")
	return result, nil
}

// Start accepts a batch and enriches it in the background under the same
// concurrency limit as Run. It returns the accepted IDs without waiting;
// per-drug failures are logged. The work outlives the request context.
func (s *BatchEnrichmentService) Start(ctx context.Context, drugIDs []string, forceRefresh bool) ([]string, error) {
	ids, err := s.NormalizeIDs(drugIDs)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	opts := EnrichOptions{WaitForCompletion: true, ForceRefresh: forceRefresh}
	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		var g errgroup.Group
		g.SetLimit(s.concurrency)

		var mu sync.Mutex
		failed := 0
		for _, id := range ids {
			g.Go(func() error {
				if item := s.enrichOne(bg, id, opts); item.Error != "" {
					mu.Lock()
					failed++
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		s.logger.Info().
			Int("drugs", len(ids)).
			Int("failed", failed).
			Bool("force", forceRefresh).
			Msg("background batch enrichment finished")
	}()
	return ids, nil
}

// Wait blocks until every batch accepted by Start has finished.
func (s *BatchEnrichmentService) Wait() {
	s.detached.Wait()
}

func (s *BatchEnrichmentService) enrichOne(ctx context.Context, drugID string, opts EnrichOptions) BatchItemResult {
	res, err := s.enricher.Enrich(ctx, drugID, opts)
	if err != nil {
		s.logger.Warn().Err(err).Str("drug_id", drugID).Msg("batch item failed")
		return BatchItemResult{DrugID: drugID, Error: err.Error()}
	}
	return BatchItemResult{
		DrugID:     drugID,
		Status:     res.Status,
		Degraded:   res.Degraded,
		Confidence: res.Confidence,
	}
}
