package providers

import (
	"context"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// GenerationProvider produces raw generated text for a drug. Implementations
// classify retryable failures (timeouts, 429, 5xx) as transient errors and
// never retry internally.
type GenerationProvider interface {
	Generate(ctx context.Context, req entities.GenerationRequest) (*entities.GeneratedOutput, error)
	Name() string
}
