package providers

import (
	"context"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// DrugSearchHit is a fuzzy catalog match. Hits are candidates only and must
// be confirmed against the repository before use.
type DrugSearchHit struct {
	DrugID      string
	BrandName   string
	GenericName string
	Score       float64
}

// DrugSearchIndex provides fuzzy name lookup over the drug catalog.
type DrugSearchIndex interface {
	Index(ctx context.Context, drug *entities.DrugRecord) error
	SearchByName(ctx context.Context, name string, limit int) ([]DrugSearchHit, error)
}
