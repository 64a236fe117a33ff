package entities

import (
	"strings"
	"time"
)

// RelationshipType classifies how two drugs are related.
type RelationshipType string

const (
	RelationshipSameClass         RelationshipType = "same_class"
	RelationshipSimilarIndication RelationshipType = "similar_indication"
	RelationshipGenericEquivalent RelationshipType = "generic_equivalent"
	RelationshipAlternative       RelationshipType = "alternative"
)

// Priority orders relationship types when confidences tie; higher wins.
func (t RelationshipType) Priority() int {
	switch t {
	case RelationshipSameClass:
		return 4
	case RelationshipSimilarIndication:
		return 3
	case RelationshipGenericEquivalent:
		return 2
	default:
		return 1
	}
}

// ParseRelationshipType maps loose model output onto a known type; unknown values become alternative.
func ParseRelationshipType(value string) RelationshipType {
	normalized := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(value)))
	switch RelationshipType(normalized) {
	case RelationshipSameClass, RelationshipSimilarIndication, RelationshipGenericEquivalent, RelationshipAlternative:
		return RelationshipType(normalized)
	}
	switch normalized {
	case "class", "same_drug_class", "same_therapeutic_class":
		return RelationshipSameClass
	case "generic", "equivalent", "generic_version":
		return RelationshipGenericEquivalent
	case "indication", "similar_use", "same_indication":
		return RelationshipSimilarIndication
	}
	return RelationshipAlternative
}

// Link origins.
const (
	LinkOriginGeneration = "generation"
	LinkOriginHeuristic  = "heuristic"
)

// RelatedDrugLink is a directed, scored association between two catalog drugs.
type RelatedDrugLink struct {
	ID           string           `json:"id" db:"id"`
	SourceDrugID string           `json:"source_drug_id" db:"source_drug_id"`
	TargetDrugID string           `json:"target_drug_id" db:"target_drug_id"`
	Relationship RelationshipType `json:"relationship" db:"relationship"`
	Confidence   float64          `json:"confidence" db:"confidence"`
	Reason       string           `json:"reason,omitempty" db:"reason"`
	Origin       string           `json:"origin" db:"origin"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`

	// Populated on read from the target drug row.
	TargetSlug        string `json:"target_slug,omitempty" db:"-"`
	TargetBrandName   string `json:"target_brand_name,omitempty" db:"-"`
	TargetGenericName string `json:"target_generic_name,omitempty" db:"-"`
}

// RankBefore orders links by confidence, then relationship priority, then target ID.
func (l *RelatedDrugLink) RankBefore(other *RelatedDrugLink) bool {
	if l.Confidence != other.Confidence {
		return l.Confidence > other.Confidence
	}
	if l.Relationship.Priority() != other.Relationship.Priority() {
		return l.Relationship.Priority() > other.Relationship.Priority()
	}
	return l.TargetDrugID < other.TargetDrugID
}
