package evaluation

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/pkg/utils"
)

// Component weights. They sum to 1.
const (
	weightCompleteness = 0.4
	weightLength       = 0.3
	weightOverlap      = 0.3
)

// Overlap below overlapFloor scores zero; at overlapSaturation and above it scores one.
const (
	overlapFloor      = 0.05
	overlapSaturation = 0.3
)

// Scorer assigns a 0-1 quality score to generated content.
type Scorer interface {
	Score(content *entities.EnrichmentContent, drug *entities.DrugRecord) float64
}

// ScorerConfig bounds the plausible length of each summary in characters.
type ScorerConfig struct {
	MinSummaryChars int
	MaxSummaryChars int
}

// ContentScorer is the default Scorer. It holds no state beyond its
// configuration, so identical input always produces the identical score.
type ContentScorer struct {
	config ScorerConfig
}

// NewContentScorer creates a scorer, defaulting the summary band to 40-1200 characters.
func NewContentScorer(config ScorerConfig) *ContentScorer {
	if config.MinSummaryChars <= 0 {
		config.MinSummaryChars = 40
	}
	if config.MaxSummaryChars < config.MinSummaryChars {
		config.MaxSummaryChars = max(1200, config.MinSummaryChars)
	}
	return &ContentScorer{config: config}
}

var _ Scorer = (*ContentScorer)(nil)

// Score returns the weighted total.
func (s *ContentScorer) Score(content *entities.EnrichmentContent, drug *entities.DrugRecord) float64 {
	return s.Breakdown(content, drug).Total
}

// Breakdown returns every component alongside the weighted total.
func (s *ContentScorer) Breakdown(content *entities.EnrichmentContent, drug *entities.DrugRecord) Breakdown {
	if content == nil {
		return Breakdown{}
	}
	b := Breakdown{
		Completeness: completeness(content),
		Length:       s.lengthPlausibility(content),
		Overlap:      sourceOverlap(content, drug),
	}
	b.Total = round3(clamp01(weightCompleteness*b.Completeness + weightLength*b.Length + weightOverlap*b.Overlap))
	return b
}

// completeness is the fraction of required fields present: title, a summary and an FAQ.
func completeness(c *entities.EnrichmentContent) float64 {
	present := 0
	if strings.TrimSpace(c.Title) != "" {
		present++
	}
	if len(c.Summaries()) > 0 {
		present++
	}
	if len(c.FAQs) > 0 {
		present++
	}
	return float64(present) / 3
}

// lengthPlausibility is the fraction of summaries inside the configured band.
func (s *ContentScorer) lengthPlausibility(c *entities.EnrichmentContent) float64 {
	summaries := c.Summaries()
	if len(summaries) == 0 {
		return 0
	}
	within := 0
	for _, summary := range summaries {
		n := utf8.RuneCountInString(strings.TrimSpace(summary))
		if n >= s.config.MinSummaryChars && n <= s.config.MaxSummaryChars {
			within++
		}
	}
	return float64(within) / float64(len(summaries))
}

// sourceOverlap measures how much of the generated vocabulary appears in the label.
func sourceOverlap(c *entities.EnrichmentContent, drug *entities.DrugRecord) float64 {
	if drug == nil {
		return 0
	}
	generated := utils.TermSet(generatedText(c)...)
	if len(generated) == 0 {
		return 0
	}
	source := utils.TermSet(sourceText(drug)...)

	shared := 0
	for term := range generated {
		if _, ok := source[term]; ok {
			shared++
		}
	}
	ratio := float64(shared) / float64(len(generated))
	if ratio < overlapFloor {
		return 0
	}
	return math.Min(ratio/overlapSaturation, 1)
}

func generatedText(c *entities.EnrichmentContent) []string {
	texts := c.Summaries()
	for _, faq := range c.FAQs {
		texts = append(texts, faq.Answer)
	}
	return texts
}

func sourceText(d *entities.DrugRecord) []string {
	texts := []string{d.BrandName, d.GenericName}
	for _, section := range [][]string{d.Indications, d.Contraindications, d.Warnings, d.Dosage, d.AdverseReactions, d.Ingredients, d.PharmClasses} {
		texts = append(texts, section...)
	}
	return texts
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
