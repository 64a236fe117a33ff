package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
)

// SweeperConfig tunes the periodic enrichment sweep.
type SweeperConfig struct {
	Interval       time.Duration
	ValidityWindow time.Duration
	RetryAfter     time.Duration
	BatchSize      int
}

// EnrichmentSweeper periodically enriches drugs that have never been
// enriched or whose content expired, skipping drugs that failed recently.
type EnrichmentSweeper struct {
	enrichments repositories.EnrichmentRepository
	batch       *BatchEnrichmentService
	config      SweeperConfig
	now         func() time.Time
	logger      zerolog.Logger
}

// NewEnrichmentSweeper creates a sweeper.
func NewEnrichmentSweeper(enrichments repositories.EnrichmentRepository, batch *BatchEnrichmentService, config SweeperConfig) *EnrichmentSweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.ValidityWindow <= 0 {
		config.ValidityWindow = 7 * 24 * time.Hour
	}
	if config.RetryAfter <= 0 {
		config.RetryAfter = time.Hour
	}
	return &EnrichmentSweeper{
		enrichments: enrichments,
		batch:       batch,
		config:      config,
		now:         time.Now,
		logger:      observability.ComponentLogger("sweeper"),
	}
}

// SweepOnce enriches one page of due drugs and returns how many were attempted.
func (s *EnrichmentSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.enrichments.ListDue(ctx, now.Add(-s.config.ValidityWindow), now.Add(-s.config.RetryAfter), s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	result, err := s.batch.Run(ctx, due, EnrichOptions{WaitForCompletion: true})
	if err != nil {
		return 0, err
	}
	s.logger.Info().
		Int("due", len(due)).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("enrichment sweep finished")
	return len(due), nil
}

// Start sweeps immediately and then on every interval until ctx is done.
// A non-positive interval disables the sweeper.
func (s *EnrichmentSweeper) Start(ctx context.Context) {
	if s.config.Interval <= 0 {
		s.logger.Info().Msg("enrichment sweeper disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("enrichment sweep failed")
			}
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("stopping enrichment sweeper")
				return
			case <-ticker.C:
			}
		}
	}()
	s.logger.Info().Dur("interval", s.config.Interval).Msg("started enrichment sweeper")
}
