package utils

import (
	"regexp"
	"sort"
	"strings"
)

// NormalizedDrugName is the outcome of cleaning a label or model-supplied drug name.
type NormalizedDrugName struct {
	OriginalName string
	// MatchKey is the form used for case-insensitive catalog matching.
	MatchKey string
	// DisplayName is title-cased without strength or dosage-form qualifiers.
	DisplayName string
	// Qualifiers holds stripped strength/form tags such as "10_mg" or "extended_release".
	Qualifiers []string
}

var (
	parenQualifierRe = regexp.MustCompile(`\s*\(([^)]+)\)`)
	strengthRe       = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:(?:mg|mcg|ml|g|units?|iu)\b|%)(?:\s*/\s*\d*(?:\.\d+)?\s*(?:ml|g|actuation|dose)\b)?`)
	registeredMarkRe = regexp.MustCompile(`[®™©]`)
)

// dosageForms are trailing words that describe presentation, not the product.
var dosageForms = []string{
	"extended-release", "delayed-release", "orally disintegrating",
	"film-coated", "chewable", "tablets", "tablet", "capsules", "capsule",
	"injection", "injectable", "solution", "suspension", "oral", "cream",
	"ointment", "gel", "patch", "spray", "inhaler", "drops", "syrup",
	"er", "xr", "sr", "dr", "odt",
}

// NormalizeDrugName strips registered marks, parenthetical qualifiers,
// strengths and dosage forms so that "Lipitor® 10 mg Tablets" and
// "lipitor" resolve to the same catalog entry.
func NormalizeDrugName(name string) *NormalizedDrugName {
	result := &NormalizedDrugName{OriginalName: name, Qualifiers: []string{}}
	cleaned := strings.TrimSpace(registeredMarkRe.ReplaceAllString(name, ""))
	if cleaned == "" {
		return result
	}

	tags := map[string]bool{}
	for _, match := range parenQualifierRe.FindAllStringSubmatch(cleaned, -1) {
		if tag := NormalizeIdentifier(match[1]); tag != "" {
			tags[tag] = true
		}
	}
	cleaned = parenQualifierRe.ReplaceAllString(cleaned, "")

	for _, match := range strengthRe.FindAllString(cleaned, -1) {
		if tag := NormalizeIdentifier(match); tag != "" {
			tags[tag] = true
		}
	}
	cleaned = strengthRe.ReplaceAllString(cleaned, "")

	words := strings.Fields(strings.ToLower(cleaned))
	for len(words) > 1 && isDosageForm(words[len(words)-1]) {
		tags[NormalizeIdentifier(words[len(words)-1])] = true
		words = words[:len(words)-1]
	}
	for len(words) > 2 && isDosageForm(strings.Join(words[len(words)-2:], " ")) {
		tags[NormalizeIdentifier(strings.Join(words[len(words)-2:], " "))] = true
		words = words[:len(words)-2]
	}

	result.MatchKey = strings.Trim(strings.Join(words, " "), " ,;-")
	result.DisplayName = titleCase(result.MatchKey)
	for tag := range tags {
		result.Qualifiers = append(result.Qualifiers, tag)
	}
	sort.Strings(result.Qualifiers)
	return result
}

// DrugMatchKey returns only the catalog matching key for name.
func DrugMatchKey(name string) string {
	return NormalizeDrugName(name).MatchKey
}

func isDosageForm(word string) bool {
	for _, form := range dosageForms {
		if word == form {
			return true
		}
	}
	return false
}

func titleCase(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		if i > 0 && (word == "and" || word == "of" || word == "with") {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
