package evaluation

import "github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"

// Decision is the publication outcome for a piece of generated content.
type Decision string

const (
	DecisionPublish   Decision = "publish"   // served as primary content
	DecisionReview    Decision = "review"    // kept for review, not served
	DecisionReject    Decision = "reject"    // below acceptance, kept for review, not served
	DecisionMalformed Decision = "malformed" // could not be parsed at all
)

// IsValid checks if the decision value is one of the defined constants.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionPublish, DecisionReview, DecisionReject, DecisionMalformed:
		return true
	}
	return false
}

// Breakdown holds the weighted components of a confidence score.
type Breakdown struct {
	Completeness float64 `json:"completeness"`
	Length       float64 `json:"length"`
	Overlap      float64 `json:"overlap"`
	Total        float64 `json:"total"`
}

// GoldenCase is a labeled provider response for a known drug.
type GoldenCase struct {
	ID       string               `json:"id"`
	Drug     *entities.DrugRecord `json:"drug"`
	Output   string               `json:"output"`
	Expected Decision             `json:"expected"`
}

// CaseResult holds the evaluation outcome for a single case.
type CaseResult struct {
	CaseID    string    `json:"case_id"`
	Score     Breakdown `json:"score"`
	Decision  Decision  `json:"decision"`
	Expected  Decision  `json:"expected"`
	Agreement bool      `json:"agreement"`
	Reason    string    `json:"reason,omitempty"`
}

// EvalSummary holds aggregate metrics across all golden cases.
type EvalSummary struct {
	TotalCases       int              `json:"total_cases"`
	MeanScore        float64          `json:"mean_score"`
	PublishRate      float64          `json:"publish_rate"`
	AcceptRate       float64          `json:"accept_rate"`
	DecisionAccuracy float64          `json:"decision_accuracy"`
	ByDecision       map[Decision]int `json:"by_decision"`
	Results          []CaseResult     `json:"results"`
}
