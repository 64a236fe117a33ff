package entities

import (
	"encoding/json"
	"time"
)

// DrugRecord is a normalized drug label from the external source of truth.
type DrugRecord struct {
	ID                string    `json:"id" db:"id"`
	ExternalID        string    `json:"external_id" db:"external_id"` // product NDC
	SetID             string    `json:"set_id,omitempty" db:"set_id"`
	Slug              string    `json:"slug" db:"slug"`
	BrandName         string    `json:"brand_name" db:"brand_name"`
	GenericName       string    `json:"generic_name" db:"generic_name"`
	Manufacturer      string    `json:"manufacturer" db:"manufacturer"`
	Indications       []string  `json:"indications" db:"indications"`
	Contraindications []string  `json:"contraindications" db:"contraindications"`
	Warnings          []string  `json:"warnings" db:"warnings"`
	Dosage            []string  `json:"dosage" db:"dosage"`
	Ingredients       []string  `json:"ingredients" db:"ingredients"`
	AdverseReactions  []string  `json:"adverse_reactions" db:"adverse_reactions"`
	PharmClasses      []string  `json:"pharm_classes" db:"pharm_classes"`
	SourceFetchedAt   time.Time `json:"source_fetched_at" db:"source_fetched_at"`
	SourceStale       bool      `json:"source_stale" db:"source_stale"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName prefers the brand name.
func (d *DrugRecord) DisplayName() string {
	if d.BrandName != "" {
		return d.BrandName
	}
	return d.GenericName
}

// NeedsRefetch reports whether the raw source should be pulled again.
func (d *DrugRecord) NeedsRefetch(now time.Time, ttl time.Duration) bool {
	return d.SourceStale || now.Sub(d.SourceFetchedAt) >= ttl
}

// RawLabel is an unparsed label document as returned by the label source.
type RawLabel struct {
	ExternalID string          `json:"external_id"`
	Body       json.RawMessage `json:"body"`
	FetchedAt  time.Time       `json:"fetched_at"`
}
