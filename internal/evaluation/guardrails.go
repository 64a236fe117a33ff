package evaluation

import "github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"

type GuardrailConfig struct {
	PublishThreshold float64
	AcceptThreshold  float64
}

// Guardrails turns a confidence score into a publication decision.
type Guardrails struct {
	config GuardrailConfig
}

func NewGuardrails(config GuardrailConfig) *Guardrails {
	if config.AcceptThreshold > config.PublishThreshold {
		config.AcceptThreshold = config.PublishThreshold
	}
	return &Guardrails{config: config}
}

// ShouldPublish reports whether content with this score may be served as primary content.
func (g *Guardrails) ShouldPublish(score float64) bool {
	return score >= g.config.PublishThreshold
}

// Decide maps a score onto publish, review or reject.
func (g *Guardrails) Decide(score float64) Decision {
	switch {
	case score >= g.config.PublishThreshold:
		return DecisionPublish
	case score >= g.config.AcceptThreshold:
		return DecisionReview
	default:
		return DecisionReject
	}
}

// ReviewReason returns why content with this score is held back, or "" when it publishes.
func (g *Guardrails) ReviewReason(score float64) string {
	switch g.Decide(score) {
	case DecisionReview:
		return entities.ReviewReasonBelowPublish
	case DecisionReject:
		return entities.ReviewReasonBelowAccept
	}
	return ""
}

func (g *Guardrails) PublishThreshold() float64 { return g.config.PublishThreshold }

func (g *Guardrails) AcceptThreshold() float64 { return g.config.AcceptThreshold }
