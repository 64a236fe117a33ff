package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/providers"
	tsclient "github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/typesense"
)

// DrugIndex implements fuzzy drug name lookup using Typesense
type DrugIndex struct {
	client *tsclient.Client
}

// Ensure DrugIndex implements DrugSearchIndex
var _ providers.DrugSearchIndex = (*DrugIndex)(nil)

// NewDrugIndex creates a new Typesense drug index
func NewDrugIndex(client *tsclient.Client) *DrugIndex {
	return &DrugIndex{client: client}
}

// Index upserts a drug document
func (a *DrugIndex) Index(ctx context.Context, drug *entities.DrugRecord) error {
	_, err := a.client.Client().Collection(a.client.Collection()).Documents().Upsert(ctx, buildDrugDocument(drug))
	if err != nil {
		return fmt.Errorf("failed to index drug %s: %w", drug.ID, err)
	}
	return nil
}

// SearchByName returns name matches with typo tolerance
func (a *DrugIndex) SearchByName(ctx context.Context, name string, limit int) ([]providers.DrugSearchHit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	params := &api.SearchCollectionParams{
		Q:       pointer.String(name),
		QueryBy: pointer.String("brand_name,generic_name,ingredients"),
		PerPage: pointer.Int(limit),
	}

	result, err := a.client.Client().Collection(a.client.Collection()).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search drugs: %w", err)
	}
	if result.Hits == nil {
		return nil, nil
	}

	hits := make([]providers.DrugSearchHit, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		if h, ok := parseDrugHit(hit); ok {
			hits = append(hits, h)
		}
	}
	return hits, nil
}

func buildDrugDocument(drug *entities.DrugRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":            drug.ID,
		"slug":          drug.Slug,
		"brand_name":    drug.BrandName,
		"generic_name":  drug.GenericName,
		"manufacturer":  drug.Manufacturer,
		"ingredients":   nonNilStrings(drug.Ingredients),
		"pharm_classes": nonNilStrings(drug.PharmClasses),
		"updated_at":    drug.UpdatedAt.Unix(),
	}
}

func parseDrugHit(hit api.SearchResultHit) (providers.DrugSearchHit, bool) {
	if hit.Document == nil {
		return providers.DrugSearchHit{}, false
	}
	doc := *hit.Document
	id, _ := doc["id"].(string)
	if id == "" {
		return providers.DrugSearchHit{}, false
	}

	out := providers.DrugSearchHit{DrugID: id}
	out.BrandName, _ = doc["brand_name"].(string)
	out.GenericName, _ = doc["generic_name"].(string)
	if hit.TextMatch != nil {
		out.Score = float64(*hit.TextMatch)
	}
	return out, true
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
