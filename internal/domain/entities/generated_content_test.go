package entities

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnrichmentContent_FencedJSON(t *testing.T) {
	raw := "```json\n" + `{
		"title": "Lipitor (Atorvastatin): Uses, Dosage, Warnings and Side Effects Explained",
		"meta_description": "Learn about Lipitor.",
		"summary": "Lipitor lowers LDL cholesterol.",
		"section_summaries": {"Indications and Usage": "Used with diet to lower cholesterol.", "unknown": "x"},
		"faqs": [
			{"question": "What is Lipitor?", "answer": "A statin."},
			{"question": "", "answer": "dropped"},
			{"question": "Q2", "answer": "A2"}, {"question": "Q3", "answer": "A3"},
			{"question": "Q4", "answer": "A4"}, {"question": "Q5", "answer": "A5"},
			{"question": "Q6", "answer": "A6"}
		],
		"keywords": ["statin", " "]
	}` + "\n```"

	got := ParseEnrichmentContent(GeneratedOutput{Text: raw, Provider: "anthropic", Model: "claude"})
	content, ok := got.(*EnrichmentContent)
	require.True(t, ok, "expected valid content, got %#v", got)

	assert.LessOrEqual(t, len(content.Title), MaxTitleChars)
	assert.True(t, strings.HasPrefix(content.Title, "Lipitor (Atorvastatin)"))
	assert.Equal(t, "Learn about Lipitor.", content.MetaDescription)
	assert.Equal(t, map[string]string{SectionIndications: "Used with diet to lower cholesterol."}, content.SectionSummaries)
	assert.Len(t, content.FAQs, MaxFAQs)
	assert.Equal(t, "What is Lipitor?", content.FAQs[0].Question)
	assert.Equal(t, []string{"statin"}, content.Keywords)
	assert.Equal(t, "anthropic", content.Provider)
	assert.Equal(t, []string{"Lipitor lowers LDL cholesterol.", "Used with diet to lower cholesterol."}, content.Summaries())
}

func TestParseEnrichmentContent_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not json", "{}", `{"faqs": []}`} {
		got := ParseEnrichmentContent(GeneratedOutput{Text: raw})
		_, ok := got.(*MalformedContent)
		assert.True(t, ok, "input %q", raw)
	}
}

func TestParseRelatedSuggestions(t *testing.T) {
	t.Run("json objects", func(t *testing.T) {
		got := ParseRelatedSuggestions(GeneratedOutput{Text: `[
			{"name": "Zocor", "relationship": "same class", "reason": "statin"},
			{"name": "Atorvastatin", "relationship": "generic"},
			{"name": "", "relationship": "alternative"},
			{"name": "Zetia", "relationship": "something-else"}
		]`})
		related, ok := got.(*RelatedSuggestions)
		require.True(t, ok)
		require.Len(t, related.Items, 3)
		assert.Equal(t, RelationshipSameClass, related.Items[0].Relationship)
		assert.Equal(t, RelationshipGenericEquivalent, related.Items[1].Relationship)
		assert.Equal(t, RelationshipAlternative, related.Items[2].Relationship)
	})

	t.Run("wrapped object", func(t *testing.T) {
		got := ParseRelatedSuggestions(GeneratedOutput{Text: `{"related": ["Crestor", "Pravachol"]}`})
		related, ok := got.(*RelatedSuggestions)
		require.True(t, ok)
		assert.Equal(t, "Crestor", related.Items[0].Name)
		assert.Len(t, related.Items, 2)
	})

	t.Run("comma separated truncated to five", func(t *testing.T) {
		got := ParseRelatedSuggestions(GeneratedOutput{Text: "Crestor, Zocor, Pravachol, Livalo, Lescol, Altoprev"})
		related, ok := got.(*RelatedSuggestions)
		require.True(t, ok)
		assert.Len(t, related.Items, MaxRelatedSuggestions)
		assert.Equal(t, RelationshipAlternative, related.Items[4].Relationship)
	})

	t.Run("malformed", func(t *testing.T) {
		_, ok := ParseRelatedSuggestions(GeneratedOutput{Text: "[{"}).(*MalformedContent)
		assert.True(t, ok)
		_, ok = ParseRelatedSuggestions(GeneratedOutput{Text: " , ,"}).(*MalformedContent)
		assert.True(t, ok)
	})
}

func TestRelatedDrugLink_RankBefore(t *testing.T) {
	a := &RelatedDrugLink{TargetDrugID: "b", Confidence: 0.8, Relationship: RelationshipAlternative}
	b := &RelatedDrugLink{TargetDrugID: "a", Confidence: 0.8, Relationship: RelationshipSameClass}
	c := &RelatedDrugLink{TargetDrugID: "c", Confidence: 0.9, Relationship: RelationshipAlternative}
	d := &RelatedDrugLink{TargetDrugID: "a", Confidence: 0.8, Relationship: RelationshipAlternative}

	assert.True(t, c.RankBefore(b))
	assert.True(t, b.RankBefore(a))
	assert.True(t, d.RankBefore(a))
	assert.False(t, a.RankBefore(d))
}

func TestEnrichmentRecord_Freshness(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	success := now.Add(-48 * time.Hour)
	attempt := now.Add(-time.Hour)

	var missing *EnrichmentRecord
	assert.False(t, missing.HasContent())

	attemptOnly := &EnrichmentRecord{LastAttemptAt: &attempt}
	assert.False(t, attemptOnly.IsFresh(now, 7*24*time.Hour))
	assert.False(t, attemptOnly.Servable())

	rec := &EnrichmentRecord{LastSuccessAt: &success, IsPublished: true}
	assert.True(t, rec.IsFresh(now, 7*24*time.Hour))
	assert.False(t, rec.IsFresh(now, 24*time.Hour))
	assert.True(t, rec.Servable())
}

func TestDrugRecord_NeedsRefetch(t *testing.T) {
	now := time.Now()
	d := &DrugRecord{SourceFetchedAt: now.Add(-time.Hour)}
	assert.False(t, d.NeedsRefetch(now, 24*time.Hour))
	d.SourceStale = true
	assert.True(t, d.NeedsRefetch(now, 24*time.Hour))
	d = &DrugRecord{SourceFetchedAt: now.Add(-25 * time.Hour)}
	assert.True(t, d.NeedsRefetch(now, 24*time.Hour))
}
