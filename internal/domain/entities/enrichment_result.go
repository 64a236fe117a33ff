package entities

import "encoding/json"

// ContentSource identifies where served content came from.
type ContentSource string

const (
	ContentSourceEnrichment ContentSource = "enrichment"
	ContentSourceRaw        ContentSource = "raw"
)

// EnrichmentStatus describes what happened during an enrich call.
type EnrichmentStatus string

const (
	StatusFresh         EnrichmentStatus = "fresh"
	StatusGenerated     EnrichmentStatus = "generated"
	StatusStale         EnrichmentStatus = "stale"
	StatusInProgress    EnrichmentStatus = "in_progress"
	StatusPendingReview EnrichmentStatus = "pending_review"
	StatusFailed        EnrichmentStatus = "failed"
)

// ServedContent is the page content handed to the presentation layer.
type ServedContent struct {
	Title           string            `json:"title"`
	MetaDescription string            `json:"meta_description"`
	Summary         string            `json:"summary"`
	Sections        map[string]string `json:"sections"`
	FAQs            []FAQ             `json:"faqs"`
	Keywords        []string          `json:"keywords"`
	StructuredData  json.RawMessage   `json:"structured_data,omitempty"`
	Source          ContentSource     `json:"source"`
}

// EnrichmentResult is the outcome of an enrich call.
type EnrichmentResult struct {
	Drug       *DrugRecord       `json:"drug"`
	Content    *ServedContent    `json:"content"`
	Enrichment *EnrichmentRecord `json:"-"`
	Status     EnrichmentStatus  `json:"status"`
	Degraded   bool              `json:"degraded"`
	Confidence *float64          `json:"confidence,omitempty"`
}
