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

	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/database"
	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/search"
	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/postgres"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/typesense"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
)

func main() {
	var reset bool
	var intervalFlag string
	var pageSize int
	flag.BoolVar(&reset, "reset", false, "delete existing Typesense collection before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.IntVar(&pageSize, "page-size", 200, "drugs read from Postgres per page")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-indexer", cfg.Log.Env, cfg.Log.Level)

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, cfg, reset, pageSize); err != nil {
			log.Error().Err(err).Msg("reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("next_run_in", interval).Msg("reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, cfg *config.Config, reset bool, pageSize int) error {
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		return err
	}
	if reset {
		if err := tsClient.DropCollection(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to drop collection")
		}
	}
	if err := tsClient.InitSchema(ctx); err != nil {
		return err
	}

	drugs := services.NewDrugService(
		database.NewDrugAdapter(pgClient),
		nil,
		nil,
		services.NewSourceNormalizer(),
		search.NewDrugIndex(tsClient),
		0,
	)

	start := time.Now()
	indexed, err := drugs.Reindex(ctx, pageSize)
	log.Info().Int("indexed", indexed).Dur("elapsed", time.Since(start)).Msg("drugs indexed")
	return err
}
