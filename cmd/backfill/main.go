package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/app"
	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	"github.com/asaCurry/prescriber-point-sub001/pkg/secrets"
)

func main() {
	var drugID string
	var externalIDs string
	var force bool
	var maxRounds int

	flag.StringVar(&drugID, "drug", "", "single drug ID to enrich")
	flag.StringVar(&externalIDs, "fetch", "", "comma-separated NDCs to fetch from the label source and enrich")
	flag.BoolVar(&force, "force", false, "regenerate even when published content is still fresh")
	flag.IntVar(&maxRounds, "max-rounds", 100, "max sweep rounds when enriching everything due")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv("")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load secrets from Vault: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-backfill", cfg.Log.Env, cfg.Log.Level)

	container, err := app.Build(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}
	defer container.Close()

	start := time.Now()
	opts := services.EnrichOptions{WaitForCompletion: true, ForceRefresh: force}

	switch {
	case externalIDs != "":
		var ids []string
		for _, ext := range strings.Split(externalIDs, ",") {
			ext = strings.TrimSpace(ext)
			if ext == "" {
				continue
			}
			drug, err := container.Drugs.FetchAndCache(ctx, ext)
			if err != nil {
				log.Error().Err(err).Str("external_id", ext).Msg("fetch failed")
				continue
			}
			ids = append(ids, drug.ID)
		}
		if len(ids) == 0 {
			log.Fatal().Msg("no labels could be fetched")
		}
		report(container.Batch.Run(ctx, ids, opts))

	case drugID != "":
		report(container.Batch.Run(ctx, []string{drugID}, opts))

	default:
		total := 0
		for round := 0; round < maxRounds; round++ {
			n, err := container.Sweeper.SweepOnce(ctx)
			if err != nil {
				log.Error().Err(err).Int("round", round).Msg("sweep failed")
				break
			}
			if n == 0 {
				break
			}
			total += n
		}
		log.Info().Int("drugs", total).Msg("sweep finished")
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("backfill complete")
}

func report(result *services.BatchResult, err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("backfill failed")
	}
	for _, item := range result.Items {
		event := log.Info()
		if item.Error != "" {
			event = log.Error().Str("error", item.Error)
		}
		event.Str("drug_id", item.DrugID).
			Str("status", string(item.Status)).
			Bool("degraded", item.Degraded).
			Msg("drug processed")
	}
	log.Info().Int("succeeded", result.Succeeded).Int("failed", result.Failed).Msg("batch summary")
}
