package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/database"
	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/search"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/postgres"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/typesense"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	"github.com/asaCurry/prescriber-point-sub001/pkg/utils"
)

// Seeds a small statin catalog so drug pages and related-drug heuristics have
// something to work with before the label source is reachable.
func main() {
	var reset bool
	flag.BoolVar(&reset, "reset", os.Getenv("RESET_DB") == "true", "truncate drug tables before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-seed", cfg.Log.Env, cfg.Log.Level)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer pgClient.Close()

	ctx := context.Background()

	if reset {
		log.Info().Msg("truncating drug tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				related_drug_links,
				drug_enrichments,
				drugs
			CASCADE
		`)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to reset tables")
		}
	}

	var index *search.DrugIndex
	if cfg.Typesense.Enabled {
		tsClient, err := typesense.NewClient(&cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("Typesense unavailable, skipping indexing")
		} else if err := tsClient.InitSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to init Typesense schema, skipping indexing")
		} else {
			index = search.NewDrugIndex(tsClient)
		}
	}

	drugRepo := database.NewDrugAdapter(pgClient)
	seeded := 0
	for _, drug := range seedDrugs() {
		if err := drugRepo.Upsert(ctx, drug); err != nil {
			log.Error().Err(err).Str("drug", drug.BrandName).Msg("failed to seed drug")
			continue
		}
		seeded++
		if index != nil {
			if err := index.Index(ctx, drug); err != nil {
				log.Warn().Err(err).Str("drug", drug.BrandName).Msg("failed to index drug")
			}
		}
	}

	log.Info().Int("drugs", seeded).Msg("seeding complete")
}

func seedDrugs() []*entities.DrugRecord {
	now := time.Now().UTC()
	statin := "HMG-CoA Reductase Inhibitor [EPC]"
	lipid := "as an adjunct to diet to reduce LDL cholesterol in adults with primary hyperlipidemia"

	build := func(ndc, brand, generic, manufacturer string, indications ...string) *entities.DrugRecord {
		return &entities.DrugRecord{
			ExternalID:      ndc,
			Slug:            utils.Slugify(brand, ndc),
			BrandName:       brand,
			GenericName:     generic,
			Manufacturer:    manufacturer,
			Indications:     indications,
			Ingredients:     []string{strings.ToLower(generic)},
			PharmClasses:    []string{statin},
			SourceFetchedAt: now,
		}
	}

	return []*entities.DrugRecord{
		build("0071-0155", "Lipitor", "atorvastatin calcium", "Pfizer Laboratories",
			"LIPITOR is an HMG-CoA reductase inhibitor indicated to reduce the risk of myocardial infarction and stroke, and "+lipid+"."),
		build("0378-2017", "Atorvastatin Calcium", "atorvastatin calcium", "Mylan Pharmaceuticals",
			"Atorvastatin calcium tablets are indicated to reduce the risk of myocardial infarction and stroke, and "+lipid+"."),
		build("0310-0751", "Crestor", "rosuvastatin calcium", "AstraZeneca",
			"CRESTOR is an HMG-CoA reductase inhibitor indicated "+lipid+"."),
		build("0006-0740", "Zocor", "simvastatin", "Organon",
			"ZOCOR is indicated to reduce the risk of coronary heart disease death and "+lipid+"."),
	}
}
