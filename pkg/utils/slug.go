package utils

import (
	"strings"
)

// Slugify builds the canonical URL slug for a drug from its brand name and
// external identifier. The name is lowercased, whitespace runs become single
// hyphens and anything outside [a-z0-9-] is dropped; the identifier keeps only
// digits and hyphens. "Lipitor" + "0071-0155" yields "lipitor-0071-0155".
func Slugify(brandName, identifier string) string {
	name := slugPart(strings.Join(strings.Fields(strings.ToLower(brandName)), "-"), isSlugNameRune)
	id := slugPart(identifier, isSlugIDRune)

	switch {
	case name == "":
		return id
	case id == "":
		return name
	default:
		return name + "-" + id
	}
}

func isSlugNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
}

func isSlugIDRune(r rune) bool {
	return (r >= '0' && r <= '9') || r == '-'
}

func slugPart(value string, keep func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(value))
	lastHyphen := false
	for _, r := range value {
		if !keep(r) {
			continue
		}
		if r == '-' {
			if lastHyphen {
				continue
			}
			lastHyphen = true
		} else {
			lastHyphen = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "-")
}

// NormalizeIdentifier converts a string to a lowercase underscore identifier
func NormalizeIdentifier(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	lastUnderscore := false
	for _, ch := range trimmed {
		isAlphaNum := (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')
		if isAlphaNum {
			b.WriteRune(ch)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
