package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/evaluation"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
)

func main() {
	var goldenPath string
	var outPath string
	var minAccuracy float64
	flag.StringVar(&goldenPath, "golden", "config/golden_enrichment.json", "golden case file")
	flag.StringVar(&outPath, "out", "", "write the full summary as JSON to this file")
	flag.Float64Var(&minAccuracy, "min-accuracy", 0, "exit non-zero when decision accuracy falls below this value")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-evaluate", cfg.Log.Env, cfg.Log.Level)

	cases, err := evaluation.LoadGoldenCases(goldenPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load golden cases")
	}
	if err := evaluation.ValidateGoldenCases(cases); err != nil {
		log.Fatal().Err(err).Msg("invalid golden cases")
	}

	runner := evaluation.NewRunner(
		evaluation.NewContentScorer(evaluation.ScorerConfig{
			MinSummaryChars: cfg.Enrichment.SummaryMinChars,
			MaxSummaryChars: cfg.Enrichment.SummaryMaxChars,
		}),
		evaluation.NewGuardrails(evaluation.GuardrailConfig{
			PublishThreshold: cfg.Enrichment.PublishThreshold,
			AcceptThreshold:  cfg.Enrichment.AcceptThreshold,
		}),
	)

	summary, err := runner.Run(context.Background(), cases)
	if err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}

	for _, res := range summary.Results {
		event := log.Info()
		if !res.Agreement {
			event = log.Warn()
		}
		event.Str("case", res.CaseID).
			Float64("score", res.Score.Total).
			Str("decision", string(res.Decision)).
			Str("expected", string(res.Expected)).
			Str("reason", res.Reason).
			Msg("case evaluated")
	}

	log.Info().
		Int("cases", summary.TotalCases).
		Float64("mean_score", summary.MeanScore).
		Float64("publish_rate", summary.PublishRate).
		Float64("accept_rate", summary.AcceptRate).
		Float64("decision_accuracy", summary.DecisionAccuracy).
		Float64("publish_threshold", cfg.Enrichment.PublishThreshold).
		Float64("accept_threshold", cfg.Enrichment.AcceptThreshold).
		Msg("evaluation summary")

	if outPath != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to encode summary")
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			log.Fatal().Err(err).Msg("failed to write summary")
		}
	}

	if summary.DecisionAccuracy < minAccuracy {
		log.Error().Float64("min_accuracy", minAccuracy).Msg("decision accuracy below minimum")
		os.Exit(2)
	}
}
