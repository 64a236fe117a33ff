package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
	"github.com/asaCurry/prescriber-point-sub001/pkg/utils"
)

type openFDAFields struct {
	BrandName        []string `json:"brand_name"`
	GenericName      []string `json:"generic_name"`
	ManufacturerName []string `json:"manufacturer_name"`
	ProductNDC       []string `json:"product_ndc"`
	SubstanceName    []string `json:"substance_name"`
	PharmClassEPC    []string `json:"pharm_class_epc"`
	PharmClassMOA    []string `json:"pharm_class_moa"`
}

// openFDALabel is the subset of an OpenFDA drug label document we read.
// Every section is optional in the source.
type openFDALabel struct {
	SetID                   string        `json:"set_id"`
	IndicationsAndUsage     []string      `json:"indications_and_usage"`
	Purpose                 []string      `json:"purpose"`
	Contraindications       []string      `json:"contraindications"`
	BoxedWarning            []string      `json:"boxed_warning"`
	Warnings                []string      `json:"warnings"`
	WarningsAndCautions     []string      `json:"warnings_and_cautions"`
	DosageAndAdministration []string      `json:"dosage_and_administration"`
	AdverseReactions        []string      `json:"adverse_reactions"`
	ActiveIngredient        []string      `json:"active_ingredient"`
	OpenFDA                 openFDAFields `json:"openfda"`
}

// SourceNormalizer maps raw OpenFDA labels onto DrugRecord.
type SourceNormalizer struct{}

func NewSourceNormalizer() *SourceNormalizer {
	return &SourceNormalizer{}
}

// Normalize parses a raw label. Missing sections become empty slices; a label
// without a product NDC or without any name is rejected and nothing is created.
func (n *SourceNormalizer) Normalize(raw *entities.RawLabel) (*entities.DrugRecord, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, apperrors.NewValidationError("label payload is empty")
	}

	var label openFDALabel
	if err := json.Unmarshal(raw.Body, &label); err != nil {
		return nil, &apperrors.AppError{Type: apperrors.ErrorTypeValidation, Message: "label payload is not a JSON object", Err: err}
	}

	externalID := strings.TrimSpace(raw.ExternalID)
	if externalID == "" {
		externalID = first(label.OpenFDA.ProductNDC)
	}
	if externalID == "" {
		return nil, apperrors.NewValidationError("label has no product NDC")
	}

	brand := first(label.OpenFDA.BrandName)
	generic := first(label.OpenFDA.GenericName)
	if brand == "" && generic == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("label %s has neither brand nor generic name", externalID))
	}

	indications := cleanSections(label.IndicationsAndUsage)
	if len(indications) == 0 {
		indications = cleanSections(label.Purpose)
	}

	ingredients := cleanSections(label.OpenFDA.SubstanceName)
	if len(ingredients) == 0 {
		ingredients = cleanSections(label.ActiveIngredient)
	}
	for i, ingredient := range ingredients {
		ingredients[i] = strings.ToLower(ingredient)
	}

	slugName := brand
	if slugName == "" {
		slugName = generic
	}

	return &entities.DrugRecord{
		ExternalID:        externalID,
		SetID:             strings.TrimSpace(label.SetID),
		Slug:              utils.Slugify(slugName, externalID),
		BrandName:         brand,
		GenericName:       generic,
		Manufacturer:      first(label.OpenFDA.ManufacturerName),
		Indications:       indications,
		Contraindications: cleanSections(label.Contraindications),
		Warnings:          cleanSections(label.BoxedWarning, label.Warnings, label.WarningsAndCautions),
		Dosage:            cleanSections(label.DosageAndAdministration),
		Ingredients:       dedupe(ingredients),
		AdverseReactions:  cleanSections(label.AdverseReactions),
		PharmClasses:      dedupe(cleanSections(label.OpenFDA.PharmClassEPC, label.OpenFDA.PharmClassMOA)),
		SourceFetchedAt:   raw.FetchedAt.UTC(),
	}, nil
}

// cleanSections concatenates sections, collapsing whitespace and dropping blanks.
func cleanSections(groups ...[]string) []string {
	out := []string{}
	for _, group := range groups {
		for _, text := range group {
			if cleaned := strings.Join(strings.Fields(text), " "); cleaned != "" {
				out = append(out, cleaned)
			}
		}
	}
	return out
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
