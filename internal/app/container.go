// Package app assembles the enrichment stack from configuration. Every
// binary builds the same graph so the API, the backfill job and the indexer
// agree on breakers, thresholds and caches.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/cache"
	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/database"
	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/lock"
	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/search"
	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/evaluation"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/anthropic"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/openai"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/openfda"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/postgres"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/redis"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/typesense"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	"github.com/asaCurry/prescriber-point-sub001/pkg/retry"
)

// Container holds the wired services and the clients that must be closed.
type Container struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Index    providers.DrugSearchIndex

	Breakers     *breaker.Registry
	Pipeline     *services.GenerationPipeline
	Scorer       *evaluation.ContentScorer
	Guardrails   *evaluation.Guardrails
	Orchestrator *services.EnrichmentOrchestrator
	Drugs        *services.DrugService
	Batch        *services.BatchEnrichmentService
	Invalidation *services.CacheInvalidationService
	Sweeper      *services.EnrichmentSweeper
}

// Build connects to Postgres, and to Redis and Typesense when they are
// reachable, then wires every service. Redis and Typesense are optional:
// without Redis the label cache falls back to process memory and the
// cross-instance lock is skipped; without Typesense related-drug names are
// matched exactly.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*Container, error) {
	logger := observability.ComponentLogger("bootstrap")

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}
	c := &Container{Postgres: pgClient}
	logger.Info().Msg("PostgreSQL client initialized")

	var cacheProvider providers.CacheProvider
	var locker providers.Locker
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-memory label cache without distributed locks")
		cacheProvider = cache.NewMemoryAdapter()
	} else {
		c.Redis = redisClient
		cacheProvider = cache.NewRedisAdapter(redisClient)
		locker = lock.NewRedisLocker(redisClient, "lock:")
		logger.Info().Msg("Redis client initialized")
	}

	if cfg.Typesense.Enabled {
		c.Index = newDrugIndex(ctx, &cfg.Typesense, logger)
	}

	provider, err := NewGenerationProvider(&cfg.Generation)
	if err != nil {
		c.Close()
		return nil, err
	}
	logger.Info().Str("provider", provider.Name()).Msg("generation provider configured")

	c.Breakers = NewBreakerRegistry(&cfg.Breaker, metrics)
	c.Pipeline = services.NewGenerationPipeline(provider, c.Breakers, NewRetryPolicy(&cfg.Retry), metrics)
	c.Scorer = evaluation.NewContentScorer(evaluation.ScorerConfig{
		MinSummaryChars: cfg.Enrichment.SummaryMinChars,
		MaxSummaryChars: cfg.Enrichment.SummaryMaxChars,
	})
	c.Guardrails = evaluation.NewGuardrails(evaluation.GuardrailConfig{
		PublishThreshold: cfg.Enrichment.PublishThreshold,
		AcceptThreshold:  cfg.Enrichment.AcceptThreshold,
	})

	var drugRepo repositories.DrugRepository = database.NewCachedDrugAdapter(database.NewDrugAdapter(pgClient), cacheProvider)
	enrichmentRepo := database.NewEnrichmentAdapter(pgClient)
	relatedRepo := database.NewRelatedDrugAdapter(pgClient)

	labels := openfda.NewCachedLabelSource(openfda.NewClient(&cfg.OpenFDA), cacheProvider, cfg.OpenFDA.CacheTTL)

	resolver := services.NewRelatedDrugResolver(drugRepo, relatedRepo, c.Index, c.Pipeline, 0)
	c.Orchestrator = services.NewEnrichmentOrchestrator(
		drugRepo,
		enrichmentRepo,
		c.Pipeline,
		c.Scorer,
		c.Guardrails,
		resolver,
		locker,
		metrics,
		services.OrchestratorConfig{
			ValidityWindow: cfg.Enrichment.ValidityWindow,
			LockTTL:        cfg.Enrichment.LockTTL,
		},
	)
	c.Drugs = services.NewDrugService(drugRepo, relatedRepo, labels, services.NewSourceNormalizer(), c.Index, cfg.OpenFDA.CacheTTL)
	c.Batch = services.NewBatchEnrichmentService(c.Orchestrator, cfg.Enrichment.BatchConcurrency, cfg.Enrichment.BatchMaxIDs)
	c.Invalidation = services.NewCacheInvalidationService(drugRepo, labels)
	c.Sweeper = services.NewEnrichmentSweeper(enrichmentRepo, c.Batch, services.SweeperConfig{
		Interval:       cfg.Enrichment.SweepInterval,
		ValidityWindow: cfg.Enrichment.ValidityWindow,
		RetryAfter:     cfg.Enrichment.RetryAfter,
	})

	return c, nil
}

// Close waits for background enrichment and releases clients.
func (c *Container) Close() {
	if c.Batch != nil {
		c.Batch.Wait()
	}
	if c.Orchestrator != nil {
		c.Orchestrator.Wait()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Postgres != nil {
		_ = c.Postgres.Close()
	}
}

// NewGenerationProvider returns the configured provider.
func NewGenerationProvider(cfg *config.GenerationConfig) (providers.GenerationProvider, error) {
	switch cfg.Provider {
	case "anthropic", "":
		client, err := anthropic.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return client, nil
	case "openai":
		client, err := openai.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// NewBreakerRegistry builds the per-operation breakers and reports every
// state change to the log and the transition counter.
func NewBreakerRegistry(cfg *config.BreakerConfig, metrics *observability.Metrics) *breaker.Registry {
	logger := observability.ComponentLogger("breaker")
	return breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
		MaxCooldown:      cfg.MaxCooldown,
		OnStateChange: func(name string, from, to breaker.State) {
			event := logger.Info()
			if to == breaker.StateOpen {
				event = logger.Warn()
			}
			event.Str("operation", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			observability.RecordBreakerTransition(context.Background(), metrics, name, from.String(), to.String())
		},
	})
}

// NewRetryPolicy maps retry configuration onto a policy. The pipeline decides
// which errors are retryable and logs each retry.
func NewRetryPolicy(cfg *config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
}

func newDrugIndex(ctx context.Context, cfg *config.TypesenseConfig, logger zerolog.Logger) providers.DrugSearchIndex {
	client, err := typesense.NewClient(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Typesense unavailable, related-drug matching will be exact")
		return nil
	}
	if err := client.InitSchema(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to init Typesense schema")
	}
	logger.Info().Str("collection", client.Collection()).Msg("Typesense drug index ready")
	return search.NewDrugIndex(client)
}
