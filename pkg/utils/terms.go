package utils

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {}, "are": {},
	"was": {}, "were": {}, "been": {}, "have": {}, "has": {}, "had": {}, "not": {},
	"you": {}, "your": {}, "can": {}, "may": {}, "should": {}, "will": {}, "from": {},
	"into": {}, "than": {}, "then": {}, "its": {}, "their": {}, "they": {}, "there": {},
	"also": {}, "such": {}, "other": {}, "these": {}, "those": {}, "which": {}, "when": {},
	"what": {}, "who": {}, "how": {}, "any": {}, "all": {}, "each": {}, "use": {},
	"used": {}, "using": {}, "about": {}, "more": {}, "most": {}, "some": {}, "only": {},
	"does": {}, "did": {}, "but": {}, "our": {}, "out": {}, "over": {}, "under": {},
	"very": {}, "must": {}, "take": {}, "taking": {}, "like": {}, "one": {}, "two": {},
	"per": {}, "including": {}, "include": {}, "includes": {}, "based": {}, "after": {},
	"before": {}, "during": {}, "while": {}, "because": {}, "both": {}, "being": {},
}

// Terms lowercases text, splits on non-alphanumerics and drops stopwords
// and tokens shorter than three characters. Order follows first occurrence.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// TermSet returns the distinct terms of all texts.
func TermSet(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, text := range texts {
		for _, term := range Terms(text) {
			set[term] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for term := range a {
		if _, ok := b[term]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
