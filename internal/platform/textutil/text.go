package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var strictPolicy = bluemonday.StrictPolicy()

// Clean strips markup and surrounding whitespace from user supplied text.
func Clean(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(trimmed)))
}

// NormalizeGender canonicalises gender input ("female" -> "Female") and reports whether it is accepted.
func NormalizeGender(value string, allowed ...string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	normalized := cases.Title(language.English).String(strings.ToLower(trimmed))
	for _, candidate := range allowed {
		if candidate == normalized {
			return normalized, true
		}
	}
	return normalized, false
}

// IsDigits reports whether value is non-empty and made only of ASCII digits.
func IsDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
