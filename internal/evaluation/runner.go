package evaluation

import (
	"context"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

// BreakdownScorer is a Scorer that can also explain its score.
type BreakdownScorer interface {
	Scorer
	Breakdown(content *entities.EnrichmentContent, drug *entities.DrugRecord) Breakdown
}

// Runner scores a golden set offline and reports how often the
// configured thresholds would publish, hold or reject.
type Runner struct {
	scorer     BreakdownScorer
	guardrails *Guardrails
}

func NewRunner(scorer BreakdownScorer, guardrails *Guardrails) *Runner {
	return &Runner{scorer: scorer, guardrails: guardrails}
}

func (r *Runner) Run(ctx context.Context, cases []GoldenCase) (*EvalSummary, error) {
	summary := &EvalSummary{
		TotalCases: len(cases),
		ByDecision: make(map[Decision]int),
		Results:    make([]CaseResult, 0, len(cases)),
	}

	var (
		scores    []float64
		expected  []Decision
		predicted []Decision
	)
	for _, gc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := r.evaluate(gc)
		summary.Results = append(summary.Results, res)
		summary.ByDecision[res.Decision]++
		if res.Decision != DecisionMalformed {
			scores = append(scores, res.Score.Total)
		}
		expected = append(expected, gc.Expected)
		predicted = append(predicted, res.Decision)
	}

	summary.MeanScore = Mean(scores)
	summary.PublishRate = Rate(summary.ByDecision[DecisionPublish], summary.TotalCases)
	summary.AcceptRate = Rate(summary.ByDecision[DecisionPublish]+summary.ByDecision[DecisionReview], summary.TotalCases)
	summary.DecisionAccuracy = Agreement(expected, predicted)
	return summary, nil
}

func (r *Runner) evaluate(gc GoldenCase) CaseResult {
	res := CaseResult{CaseID: gc.ID, Expected: gc.Expected}

	switch parsed := entities.ParseEnrichmentContent(entities.GeneratedOutput{Text: gc.Output}).(type) {
	case *entities.EnrichmentContent:
		res.Score = r.scorer.Breakdown(parsed, gc.Drug)
		res.Decision = r.guardrails.Decide(res.Score.Total)
		res.Reason = r.guardrails.ReviewReason(res.Score.Total)
	case *entities.MalformedContent:
		res.Decision = DecisionMalformed
		res.Reason = parsed.Reason
	}

	res.Agreement = res.Decision == res.Expected
	return res
}
