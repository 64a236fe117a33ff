package repositories

import (
	"context"
	"time"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// EnrichmentRepository defines the interface for generated content storage.
type EnrichmentRepository interface {
	// GetByDrugID returns the record or a not-found error
	GetByDrugID(ctx context.Context, drugID string) (*entities.EnrichmentRecord, error)

	// SaveGenerated upserts content, confidence and publication flags, and sets
	// both last_attempt_at and last_success_at
	SaveGenerated(ctx context.Context, record *entities.EnrichmentRecord) error

	// MarkAttempt records a failed attempt without touching content or confidence
	MarkAttempt(ctx context.Context, drugID string, at time.Time) error

	// ListDue returns IDs of drugs never enriched or whose last success is older
	// than staleBefore, skipping those attempted after retryBefore
	ListDue(ctx context.Context, staleBefore, retryBefore time.Time, limit int) ([]string, error)
}
