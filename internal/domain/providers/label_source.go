package providers

import (
	"context"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// LabelSource fetches raw drug labels from the external source of truth.
type LabelSource interface {
	// FetchLabel returns the label for a product NDC, or a not-found error.
	FetchLabel(ctx context.Context, externalID string) (*entities.RawLabel, error)
}

// LabelCacheInvalidator drops cached raw labels so the next read refetches.
type LabelCacheInvalidator interface {
	InvalidateLabel(ctx context.Context, externalID string) error
	InvalidateAllLabels(ctx context.Context) error
}
