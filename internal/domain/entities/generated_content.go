package entities

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ContentType selects what a generation call produces.
type ContentType string

const (
	ContentTypeEnrichment   ContentType = "enrichment"
	ContentTypeRelatedDrugs ContentType = "related_drugs"
)

// Limits applied to generated content at the ingestion boundary.
const (
	MaxTitleChars           = 60
	MaxMetaDescriptionChars = 160
	MaxFAQs                 = 5
	MaxRelatedSuggestions   = 5
)

// GenerationRequest is what the orchestrator asks a provider for.
type GenerationRequest struct {
	Type ContentType
	Drug *DrugRecord
}

// GeneratedOutput is the raw text a provider returned along with who produced it.
type GeneratedOutput struct {
	Text     string
	Provider string
	Model    string
}

// GeneratedContent is the validated result of parsing provider output. It is
// one of *EnrichmentContent, *RelatedSuggestions or *MalformedContent.
type GeneratedContent interface {
	generatedContent()
}

// EnrichmentContent is well-formed enrichment output.
type EnrichmentContent struct {
	Title            string            `json:"title"`
	MetaDescription  string            `json:"meta_description"`
	Summary          string            `json:"summary"`
	SectionSummaries map[string]string `json:"section_summaries"`
	FAQs             []FAQ             `json:"faqs"`
	Keywords         []string          `json:"keywords"`
	Provider         string            `json:"-"`
	Model            string            `json:"-"`
}

// RelatedSuggestion is a drug name proposed by the provider.
type RelatedSuggestion struct {
	Name         string           `json:"name"`
	Relationship RelationshipType `json:"relationship"`
	Reason       string           `json:"reason"`
}

// RelatedSuggestions is well-formed related-drug output.
type RelatedSuggestions struct {
	Items []RelatedSuggestion
}

// MalformedContent carries provider output that could not be validated.
type MalformedContent struct {
	Raw    string
	Reason string
}

func (*EnrichmentContent) generatedContent()  {}
func (*RelatedSuggestions) generatedContent() {}
func (*MalformedContent) generatedContent()   {}

// Summaries returns the overall summary followed by non-empty section summaries in display order.
func (c *EnrichmentContent) Summaries() []string {
	var out []string
	if strings.TrimSpace(c.Summary) != "" {
		out = append(out, c.Summary)
	}
	for _, key := range SectionKeys {
		if s := strings.TrimSpace(c.SectionSummaries[key]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type enrichmentPayload struct {
	Title            string            `json:"title"`
	MetaDescription  string            `json:"meta_description"`
	MetaDescription2 string            `json:"metaDescription"`
	Summary          string            `json:"summary"`
	Sections         map[string]string `json:"section_summaries"`
	Sections2        map[string]string `json:"sections"`
	FAQs             []FAQ             `json:"faqs"`
	FAQ              []FAQ             `json:"faq"`
	Keywords         []string          `json:"keywords"`
}

// ParseEnrichmentContent validates raw provider output for an enrichment request.
func ParseEnrichmentContent(out GeneratedOutput) GeneratedContent {
	cleaned := StripCodeFence(out.Text)
	if cleaned == "" {
		return &MalformedContent{Raw: out.Text, Reason: "empty response"}
	}

	var payload enrichmentPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return &MalformedContent{Raw: out.Text, Reason: fmt.Sprintf("invalid json: %v", err)}
	}

	content := &EnrichmentContent{
		Title:            truncateWords(strings.TrimSpace(payload.Title), MaxTitleChars),
		MetaDescription:  truncateWords(strings.TrimSpace(firstNonEmpty(payload.MetaDescription, payload.MetaDescription2)), MaxMetaDescriptionChars),
		Summary:          strings.TrimSpace(payload.Summary),
		SectionSummaries: map[string]string{},
		Keywords:         []string{},
		FAQs:             []FAQ{},
		Provider:         out.Provider,
		Model:            out.Model,
	}

	sections := payload.Sections
	if len(sections) == 0 {
		sections = payload.Sections2
	}
	for key, value := range sections {
		key = normalizeSectionKey(key)
		if key == "" || strings.TrimSpace(value) == "" {
			continue
		}
		content.SectionSummaries[key] = strings.TrimSpace(value)
	}

	faqs := payload.FAQs
	if len(faqs) == 0 {
		faqs = payload.FAQ
	}
	for _, faq := range faqs {
		q, a := strings.TrimSpace(faq.Question), strings.TrimSpace(faq.Answer)
		if q == "" || a == "" {
			continue
		}
		content.FAQs = append(content.FAQs, FAQ{Question: q, Answer: a})
		if len(content.FAQs) == MaxFAQs {
			break
		}
	}

	for _, kw := range payload.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			content.Keywords = append(content.Keywords, kw)
		}
	}

	if content.Title == "" && len(content.Summaries()) == 0 && len(content.FAQs) == 0 {
		return &MalformedContent{Raw: out.Text, Reason: "no recognizable enrichment fields"}
	}
	return content
}

type relatedPayload struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Reason       string `json:"reason"`
}

// ParseRelatedSuggestions validates raw provider output for a related-drugs
// request. A JSON array of objects is preferred; a plain comma-separated list
// of names is accepted with relationship alternative.
func ParseRelatedSuggestions(out GeneratedOutput) GeneratedContent {
	cleaned := StripCodeFence(out.Text)
	if cleaned == "" {
		return &MalformedContent{Raw: out.Text, Reason: "empty response"}
	}

	var items []RelatedSuggestion
	if strings.HasPrefix(cleaned, "[") || strings.HasPrefix(cleaned, "{") {
		var raw []relatedPayload
		if strings.HasPrefix(cleaned, "{") {
			var wrapper struct {
				Related json.RawMessage `json:"related"`
			}
			if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil || len(wrapper.Related) == 0 {
				return &MalformedContent{Raw: out.Text, Reason: "object response without related array"}
			}
			cleaned = string(wrapper.Related)
		}
		if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
			var names []string
			if nameErr := json.Unmarshal([]byte(cleaned), &names); nameErr != nil {
				return &MalformedContent{Raw: out.Text, Reason: fmt.Sprintf("invalid json: %v", err)}
			}
			raw = raw[:0]
			for _, n := range names {
				raw = append(raw, relatedPayload{Name: n})
			}
		}
		for _, r := range raw {
			items = append(items, RelatedSuggestion{
				Name:         strings.TrimSpace(r.Name),
				Relationship: ParseRelationshipType(r.Relationship),
				Reason:       strings.TrimSpace(r.Reason),
			})
		}
	} else {
		for _, name := range strings.Split(cleaned, ",") {
			items = append(items, RelatedSuggestion{
				Name:         strings.TrimSpace(name),
				Relationship: RelationshipAlternative,
			})
		}
	}

	valid := make([]RelatedSuggestion, 0, MaxRelatedSuggestions)
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		valid = append(valid, item)
		if len(valid) == MaxRelatedSuggestions {
			break
		}
	}
	if len(valid) == 0 {
		return &MalformedContent{Raw: out.Text, Reason: "no drug names in response"}
	}
	return &RelatedSuggestions{Items: valid}
}

// StripCodeFence removes a surrounding Markdown code fence, if any.
func StripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "{[") {
		cleaned = cleaned[nl+1:]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

func normalizeSectionKey(key string) string {
	k := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(key)))
	switch k {
	case "indications", "indications_and_usage", "uses":
		return SectionIndications
	case "contraindications":
		return SectionContraindications
	case "warnings", "warnings_and_precautions", "precautions":
		return SectionWarnings
	case "dosage", "dosage_and_administration", "dosing":
		return SectionDosage
	case "side_effects", "sideeffects", "adverse_reactions":
		return SectionSideEffects
	}
	return ""
}

func truncateWords(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.;:-")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
