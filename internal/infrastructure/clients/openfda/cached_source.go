package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
)

// LabelCachePattern matches every cached raw label.
const LabelCachePattern = "label:*"

func labelCacheKey(externalID string) string {
	return fmt.Sprintf("label:%s", externalID)
}

// CachedLabelSource keeps raw labels in the shared cache so repeated fetches
// of the same NDC stay under the source's rate limit.
type CachedLabelSource struct {
	source providers.LabelSource
	cache  providers.CacheProvider
	ttl    time.Duration
}

var (
	_ providers.LabelSource           = (*CachedLabelSource)(nil)
	_ providers.LabelCacheInvalidator = (*CachedLabelSource)(nil)
)

// NewCachedLabelSource wraps source with a cache. A non-positive ttl defaults to 24h.
func NewCachedLabelSource(source providers.LabelSource, cache providers.CacheProvider, ttl time.Duration) *CachedLabelSource {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedLabelSource{source: source, cache: cache, ttl: ttl}
}

// FetchLabel serves from cache when possible.
func (s *CachedLabelSource) FetchLabel(ctx context.Context, externalID string) (*entities.RawLabel, error) {
	key := labelCacheKey(externalID)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var label entities.RawLabel
		if err := json.Unmarshal(cached, &label); err == nil {
			return &label, nil
		}
		log.Ctx(ctx).Warn().Str("key", key).Msg("discarding unreadable cached label")
	}

	label, err := s.source.FetchLabel(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(label); err == nil {
		if err := s.cache.Set(ctx, key, data, int(s.ttl.Seconds())); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to cache label")
		}
	}
	return label, nil
}

// InvalidateLabel drops one cached label.
func (s *CachedLabelSource) InvalidateLabel(ctx context.Context, externalID string) error {
	return s.cache.Delete(ctx, labelCacheKey(externalID))
}

// InvalidateAllLabels drops every cached label.
func (s *CachedLabelSource) InvalidateAllLabels(ctx context.Context) error {
	_, err := s.cache.DeletePattern(ctx, LabelCachePattern)
	return err
}
