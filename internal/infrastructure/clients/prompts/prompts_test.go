package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

func testDrug() *entities.DrugRecord {
	return &entities.DrugRecord{
		BrandName:        "Lipitor",
		GenericName:      "atorvastatin calcium",
		Ingredients:      []string{"atorvastatin calcium trihydrate"},
		Indications:      []string{"Reduce the risk of myocardial infarction."},
		Warnings:         []string{strings.Repeat("w", 2000)},
		AdverseReactions: []string{"Nasopharyngitis, arthralgia."},
	}
}

func TestBuild_Enrichment(t *testing.T) {
	system, user, err := Build(entities.GenerationRequest{Type: entities.ContentTypeEnrichment, Drug: testDrug()})
	require.NoError(t, err)

	assert.Contains(t, system, `"section_summaries"`)
	assert.Contains(t, user, "Brand name: Lipitor")
	assert.Contains(t, user, "Adverse reactions:")
	assert.NotContains(t, user, "Manufacturer:")
	assert.Contains(t, user, strings.Repeat("w", maxSectionChars)+"...")
	assert.NotContains(t, user, strings.Repeat("w", maxSectionChars+1))
}

func TestBuild_RelatedDrugs(t *testing.T) {
	system, user, err := Build(entities.GenerationRequest{Type: entities.ContentTypeRelatedDrugs, Drug: testDrug()})
	require.NoError(t, err)

	assert.Contains(t, system, "JSON array")
	assert.Contains(t, user, "Indications and usage:")
	assert.NotContains(t, user, "Warnings:")
}

func TestBuild_Invalid(t *testing.T) {
	_, _, err := Build(entities.GenerationRequest{Type: entities.ContentTypeEnrichment})
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))

	_, _, err = Build(entities.GenerationRequest{Type: "poem", Drug: testDrug()})
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
}
