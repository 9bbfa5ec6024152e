package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns text in Unicode NFC form with surrounding whitespace
// removed, so composed and decomposed renderings of the same glyphs compare
// equal.
func Normalize(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

// Label renders a machine token such as "divided_high_confidence" as a
// human-readable title ("Divided High Confidence").
func Label(token string) string {
	token = strings.TrimSpace(strings.ReplaceAll(token, "_", " "))
	if token == "" {
		return ""
	}
	return cases.Title(language.English).String(token)
}
