package entities

import (
	"encoding/json"
	"time"
)

// Section keys used for per-section summaries.
const (
	SectionIndications       = "indications"
	SectionContraindications = "contraindications"
	SectionWarnings          = "warnings"
	SectionDosage            = "dosage"
	SectionSideEffects       = "side_effects"
)

// SectionKeys is the display order of summary sections.
var SectionKeys = []string{
	SectionIndications,
	SectionContraindications,
	SectionWarnings,
	SectionDosage,
	SectionSideEffects,
}

// Review reasons recorded when generated content is held back from publication.
const (
	ReviewReasonBelowPublish = "below_publish_threshold"
	ReviewReasonBelowAccept  = "below_acceptance_threshold"
)

// FAQ is a single generated question and answer.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// EnrichmentRecord stores generated content for a drug. A record may exist
// with only LastAttemptAt set when every attempt so far has failed.
type EnrichmentRecord struct {
	ID               string            `json:"id" db:"id"`
	DrugID           string            `json:"drug_id" db:"drug_id"`
	Title            string            `json:"title" db:"title"`
	MetaDescription  string            `json:"meta_description" db:"meta_description"`
	Summary          string            `json:"summary" db:"summary"`
	SectionSummaries map[string]string `json:"section_summaries" db:"section_summaries"`
	FAQs             []FAQ             `json:"faqs" db:"faqs"`
	Keywords         []string          `json:"keywords" db:"keywords"`
	StructuredData   json.RawMessage   `json:"structured_data,omitempty" db:"structured_data"`
	Confidence       *float64          `json:"confidence,omitempty" db:"confidence"`
	IsPublished      bool              `json:"is_published" db:"is_published"`
	IsReviewed       bool              `json:"is_reviewed" db:"is_reviewed"`
	ReviewReason     string            `json:"review_reason,omitempty" db:"review_reason"`
	Provider         string            `json:"provider" db:"provider"`
	Model            string            `json:"model" db:"model"`
	LastAttemptAt    *time.Time        `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	LastSuccessAt    *time.Time        `json:"last_success_at,omitempty" db:"last_success_at"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// HasContent reports whether at least one generation attempt succeeded.
func (e *EnrichmentRecord) HasContent() bool {
	return e != nil && e.LastSuccessAt != nil
}

// IsFresh reports whether the last success falls within the validity window.
func (e *EnrichmentRecord) IsFresh(now time.Time, window time.Duration) bool {
	return e.HasContent() && now.Sub(*e.LastSuccessAt) < window
}

// Servable reports whether the generated content may be shown as primary content.
func (e *EnrichmentRecord) Servable() bool {
	return e.HasContent() && e.IsPublished
}
