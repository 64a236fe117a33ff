package repositories

import (
	"context"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// RelatedDrugRepository defines the interface for related-drug link storage.
type RelatedDrugRepository interface {
	// ReplaceForSource upserts links keyed by (source, target) and removes the
	// source's links that are not in the new set, atomically
	ReplaceForSource(ctx context.Context, sourceDrugID string, links []*entities.RelatedDrugLink) error

	// ListBySource returns links ordered by confidence, relationship priority and target ID
	ListBySource(ctx context.Context, sourceDrugID string, limit int) ([]*entities.RelatedDrugLink, error)
}
