// Package prompts builds provider-neutral prompts for drug content generation.
package prompts

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// maxSectionChars bounds how much of each label section is sent.
const maxSectionChars = 1500

const enrichmentSystemPrompt = `You write patient-friendly drug information pages for healthcare professionals and patients. Use only the FDA label text provided. Return ONLY valid JSON with this schema:
{
  "title": string (SEO page title, at most 60 characters),
  "meta_description": string (at most 160 characters),
  "summary": string (2-4 plain-language sentences),
  "section_summaries": {
    "indications": string,
    "contraindications": string,
    "warnings": string,
    "dosage": string,
    "side_effects": string
  },
  "faqs": [{"question": string, "answer": string}] (3-5 items),
  "keywords": string[] (3-8 lowercase search terms)
}
Omit a section summary when the label has no text for it. Do not invent dosing, interactions or claims that are not in the label. Do not give individual medical advice.`

const relatedSystemPrompt = `You suggest drugs related to a given drug for a prescriber reference site. Return ONLY a valid JSON array of at most 5 objects:
[{"name": string (brand or generic name), "relationship": "same_class" | "similar_indication" | "generic_equivalent" | "alternative", "reason": string (one short sentence)}]
Only suggest drugs approved in the United States. Do not include the given drug itself.`

// Build returns the system and user prompts for a generation request.
func Build(req entities.GenerationRequest) (system, user string, err error) {
	if req.Drug == nil {
		return "", "", apperrors.NewValidationError("generation request has no drug")
	}
	switch req.Type {
	case entities.ContentTypeEnrichment:
		return enrichmentSystemPrompt, buildLabelPrompt(req.Drug, true), nil
	case entities.ContentTypeRelatedDrugs:
		return relatedSystemPrompt, buildLabelPrompt(req.Drug, false), nil
	default:
		return "", "", apperrors.NewValidationError(fmt.Sprintf("unknown content type %q", req.Type))
	}
}

func buildLabelPrompt(drug *entities.DrugRecord, fullLabel bool) string {
	var b strings.Builder
	writeField(&b, "Brand name", drug.BrandName)
	writeField(&b, "Generic name", drug.GenericName)
	writeField(&b, "Manufacturer", drug.Manufacturer)
	writeField(&b, "Active ingredients", strings.Join(drug.Ingredients, ", "))
	writeField(&b, "Pharmacologic class", strings.Join(drug.PharmClasses, ", "))
	writeSection(&b, "Indications and usage", drug.Indications)
	if fullLabel {
		writeSection(&b, "Contraindications", drug.Contraindications)
		writeSection(&b, "Warnings", drug.Warnings)
		writeSection(&b, "Dosage and administration", drug.Dosage)
		writeSection(&b, "Adverse reactions", drug.AdverseReactions)
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func writeSection(b *strings.Builder, label string, paragraphs []string) {
	text := strings.TrimSpace(strings.Join(paragraphs, "\n"))
	if text == "" {
		return
	}
	fmt.Fprintf(b, "\n%s:\n%s\n", label, clip(text, maxSectionChars))
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
