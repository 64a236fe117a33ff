package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
)

// CachedDrugAdapter wraps a DrugRepository with read-through caching of
// single-drug lookups.
type CachedDrugAdapter struct {
	repositories.DrugRepository
	cache providers.CacheProvider
}

// NewCachedDrugAdapter creates a new cached drug adapter
func NewCachedDrugAdapter(adapter repositories.DrugRepository, cache providers.CacheProvider) repositories.DrugRepository {
	return &CachedDrugAdapter{
		DrugRepository: adapter,
		cache:          cache,
	}
}

// Cache TTL (in seconds)
const drugByKeyTTL = 300

// DrugCachePattern matches every cached drug key.
const DrugCachePattern = "drug:*"

func drugIDCacheKey(id string) string {
	return fmt.Sprintf("drug:id:%s", id)
}

func drugSlugCacheKey(slug string) string {
	return fmt.Sprintf("drug:slug:%s", slug)
}

// DrugCacheKeys returns the cache keys a drug may be stored under.
func DrugCacheKeys(drug *entities.DrugRecord) []string {
	keys := []string{drugIDCacheKey(drug.ID)}
	if drug.Slug != "" {
		keys = append(keys, drugSlugCacheKey(drug.Slug))
	}
	return keys
}

// GetByID retrieves a drug by ID with caching
func (a *CachedDrugAdapter) GetByID(ctx context.Context, id string) (*entities.DrugRecord, error) {
	if drug := a.fromCache(ctx, drugIDCacheKey(id)); drug != nil {
		return drug, nil
	}
	drug, err := a.DrugRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.store(ctx, drug)
	return drug, nil
}

// GetBySlug retrieves a drug by slug with caching
func (a *CachedDrugAdapter) GetBySlug(ctx context.Context, slug string) (*entities.DrugRecord, error) {
	if drug := a.fromCache(ctx, drugSlugCacheKey(slug)); drug != nil {
		return drug, nil
	}
	drug, err := a.DrugRepository.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	a.store(ctx, drug)
	return drug, nil
}

// Upsert writes through and drops cached copies
func (a *CachedDrugAdapter) Upsert(ctx context.Context, drug *entities.DrugRecord) error {
	if err := a.DrugRepository.Upsert(ctx, drug); err != nil {
		return err
	}
	a.invalidate(ctx, DrugCacheKeys(drug)...)
	return nil
}

// MarkSourceStale flags the drug and drops cached copies
func (a *CachedDrugAdapter) MarkSourceStale(ctx context.Context, id string) error {
	// Slug is needed for the slug key; read from the database, not the cache.
	drug, lookupErr := a.DrugRepository.GetByID(ctx, id)
	if err := a.DrugRepository.MarkSourceStale(ctx, id); err != nil {
		return err
	}
	if lookupErr == nil {
		a.invalidate(ctx, DrugCacheKeys(drug)...)
	} else {
		a.invalidate(ctx, drugIDCacheKey(id))
	}
	return nil
}

// MarkAllSourceStale flags every drug and clears the drug cache
func (a *CachedDrugAdapter) MarkAllSourceStale(ctx context.Context) (int64, error) {
	n, err := a.DrugRepository.MarkAllSourceStale(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := a.cache.DeletePattern(ctx, DrugCachePattern); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to clear drug cache")
	}
	return n, nil
}

func (a *CachedDrugAdapter) fromCache(ctx context.Context, key string) *entities.DrugRecord {
	cached, err := a.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var drug entities.DrugRecord
	if err := json.Unmarshal(cached, &drug); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to unmarshal cached drug")
		return nil
	}
	return &drug
}

// store writes synchronously so a concurrent invalidation cannot be
// overwritten by a late background write.
func (a *CachedDrugAdapter) store(ctx context.Context, drug *entities.DrugRecord) {
	data, err := json.Marshal(drug)
	if err != nil {
		return
	}
	for _, key := range DrugCacheKeys(drug) {
		if err := a.cache.Set(ctx, key, data, drugByKeyTTL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to cache drug")
		}
	}
}

func (a *CachedDrugAdapter) invalidate(ctx context.Context, keys ...string) {
	if err := a.cache.Delete(ctx, keys...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate drug cache")
	}
}
