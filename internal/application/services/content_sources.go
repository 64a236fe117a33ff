package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// ContentSource yields page content for a drug, or reports that it has none.
type ContentSource func(drug *entities.DrugRecord, record *entities.EnrichmentRecord) (*entities.ServedContent, bool)

// DefaultContentSources prefers published generated content and always ends
// with the raw label, which cannot fail.
var DefaultContentSources = []ContentSource{PublishedEnrichmentContent, RawLabelContent}

// ServeContent walks sources in order and returns the first hit.
func ServeContent(sources []ContentSource, drug *entities.DrugRecord, record *entities.EnrichmentRecord) *entities.ServedContent {
	for _, source := range sources {
		if content, ok := source(drug, record); ok {
			return content
		}
	}
	content, _ := RawLabelContent(drug, record)
	return content
}

// PublishedEnrichmentContent serves generated content only once it is published.
func PublishedEnrichmentContent(drug *entities.DrugRecord, record *entities.EnrichmentRecord) (*entities.ServedContent, bool) {
	if !record.Servable() {
		return nil, false
	}
	sections := make(map[string]string, len(record.SectionSummaries))
	for k, v := range record.SectionSummaries {
		sections[k] = v
	}
	structured := record.StructuredData
	if len(structured) == 0 {
		structured = entities.BuildDrugStructuredData(drug, nil)
	}
	return &entities.ServedContent{
		Title:           record.Title,
		MetaDescription: record.MetaDescription,
		Summary:         record.Summary,
		Sections:        sections,
		FAQs:            append([]entities.FAQ{}, record.FAQs...),
		Keywords:        append([]string{}, record.Keywords...),
		StructuredData:  structured,
		Source:          entities.ContentSourceEnrichment,
	}, true
}

// RawLabelContent builds page content from the label sections alone.
func RawLabelContent(drug *entities.DrugRecord, _ *entities.EnrichmentRecord) (*entities.ServedContent, bool) {
	title := drug.DisplayName()
	if drug.BrandName != "" && drug.GenericName != "" && !strings.EqualFold(drug.BrandName, drug.GenericName) {
		title = fmt.Sprintf("%s (%s)", drug.BrandName, drug.GenericName)
	}

	summary := ""
	if len(drug.Indications) > 0 {
		summary = drug.Indications[0]
	}

	sections := map[string]string{}
	for key, values := range map[string][]string{
		entities.SectionIndications:       drug.Indications,
		entities.SectionContraindications: drug.Contraindications,
		entities.SectionWarnings:          drug.Warnings,
		entities.SectionDosage:            drug.Dosage,
		entities.SectionSideEffects:       drug.AdverseReactions,
	} {
		if len(values) > 0 {
			sections[key] = strings.Join(values, "\n\n")
		}
	}

	keywords := []string{}
	for _, kw := range append([]string{drug.BrandName, drug.GenericName}, drug.Ingredients...) {
		if kw = strings.TrimSpace(kw); kw != "" && !containsFold(keywords, kw) {
			keywords = append(keywords, kw)
		}
	}

	return &entities.ServedContent{
		Title:           title,
		MetaDescription: clipRunes(summary, entities.MaxMetaDescriptionChars),
		Summary:         summary,
		Sections:        sections,
		FAQs:            []entities.FAQ{},
		Keywords:        keywords,
		StructuredData:  entities.BuildDrugStructuredData(drug, nil),
		Source:          entities.ContentSourceRaw,
	}, true
}

func clipRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit-3])
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

func containsFold(values []string, v string) bool {
	for _, existing := range values {
		if strings.EqualFold(existing, v) {
			return true
		}
	}
	return false
}
