package repositories

import (
	"context"
	"time"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// DrugRepository defines the interface for drug catalog storage
type DrugRepository interface {
	// Upsert inserts or updates a drug keyed by external identifier. The stored
	// ID is written back to drug.
	Upsert(ctx context.Context, drug *entities.DrugRecord) error

	// GetByID retrieves a drug by ID
	GetByID(ctx context.Context, id string) (*entities.DrugRecord, error)

	// GetBySlug retrieves a drug by slug
	GetBySlug(ctx context.Context, slug string) (*entities.DrugRecord, error)

	// GetByExternalID retrieves a drug by its source identifier
	GetByExternalID(ctx context.Context, externalID string) (*entities.DrugRecord, error)

	// GetByIDs retrieves multiple drugs by their IDs
	GetByIDs(ctx context.Context, ids []string) ([]*entities.DrugRecord, error)

	// FindByName returns drugs whose brand or generic name matches exactly, ignoring case
	FindByName(ctx context.Context, name string) ([]*entities.DrugRecord, error)

	// FindCandidates returns drugs sharing ingredients, pharmacologic classes or indication terms
	FindCandidates(ctx context.Context, query CandidateQuery) ([]*entities.DrugRecord, error)

	// MarkSourceStale flags one drug for refetch on next read
	MarkSourceStale(ctx context.Context, id string) error

	// MarkAllSourceStale flags every drug for refetch on next read
	MarkAllSourceStale(ctx context.Context) (int64, error)

	// List retrieves drugs page by page
	List(ctx context.Context, filter DrugFilter) ([]*entities.DrugRecord, error)
}

// CandidateQuery describes catalog overlap for heuristic related-drug lookup
type CandidateQuery struct {
	ExcludeID       string
	Ingredients     []string
	PharmClasses    []string
	IndicationTerms []string
	Limit           int
}

// DrugFilter defines filters for listing drugs
type DrugFilter struct {
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}
