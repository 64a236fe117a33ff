package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/api/handlers"
	"github.com/asaCurry/prescriber-point-sub001/internal/api/routes"
	"github.com/asaCurry/prescriber-point-sub001/internal/app"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	"github.com/asaCurry/prescriber-point-sub001/pkg/secrets"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault secrets land in the environment before config is read
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv(""))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Log.Env, cfg.Log.Level)
	if vaultErr != nil {
		log.Fatal().Err(vaultErr).Msg("failed to load secrets from Vault")
	}
	if vaultResult.Enabled {
		log.Info().
			Str("path", vaultResult.Path).
			Int("loaded", vaultResult.Loaded).
			Int("skipped", vaultResult.Skipped).
			Strs("rejected", vaultResult.Rejected).
			Msg("Vault secrets applied")
	}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	container, err := app.Build(ctx, cfg, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}

	container.Sweeper.Start(ctx)

	checks := map[string]handlers.Pinger{"postgres": container.Postgres}
	if container.Redis != nil {
		checks["redis"] = container.Redis
	}

	var webhookHandler *handlers.WebhookHandler
	if cfg.Security.WebhookSecret != "" {
		webhookHandler = handlers.NewWebhookHandler(container.Invalidation, cfg.Security.WebhookSecret)
	} else {
		log.Warn().Msg("WEBHOOK_SECRET not set, invalidation webhook disabled")
	}
	var adminHandler *handlers.AdminHandler
	if cfg.Security.AdminToken != "" {
		adminHandler = handlers.NewAdminHandler(container.Breakers, cfg.Security.AdminToken)
	} else {
		log.Warn().Msg("ADMIN_TOKEN not set, admin endpoints disabled")
	}

	router := routes.NewRouter(
		handlers.NewDrugHandler(container.Drugs, container.Orchestrator),
		handlers.NewEnrichmentHandler(container.Batch),
		webhookHandler,
		adminHandler,
		handlers.NewHealthHandler(checks, container.Breakers),
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("server shutting down")

	// Stop the sweeper before draining so no new background work starts
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	container.Close()
	log.Info().Msg("server stopped")
}
