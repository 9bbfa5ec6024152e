package textutil

import "strings"

// SanitizeID converts a file stem into an identifier made only of ASCII
// letters, digits, dots, hyphens, and underscores. Runs of other characters
// collapse to a single underscore. Returns "" when nothing usable remains.
func SanitizeID(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	lastUnderscore := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_.")
}
