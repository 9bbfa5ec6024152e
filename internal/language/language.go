package language

import "strings"

type entry struct {
	tesseract string
	iso2      string
	aliases   []string
	display   string
}

var languages = []entry{
	{"eng", "en", []string{"english"}, "English"},
	{"spa", "es", []string{"spanish"}, "Spanish"},
	{"fra", "fr", []string{"fre", "french"}, "French"},
	{"deu", "de", []string{"ger", "german"}, "German"},
	{"ita", "it", []string{"italian"}, "Italian"},
	{"por", "pt", []string{"portuguese"}, "Portuguese"},
	{"jpn", "ja", []string{"japanese"}, "Japanese"},
	{"kor", "ko", []string{"korean"}, "Korean"},
	{"chi_sim", "zh", []string{"zho", "chi", "chinese"}, "Chinese (Simplified)"},
	{"chi_tra", "", []string{"zh-tw", "zh_tw", "zh-hant"}, "Chinese (Traditional)"},
	{"rus", "ru", []string{"russian"}, "Russian"},
	{"ara", "ar", []string{"arabic"}, "Arabic"},
	{"hin", "hi", []string{"hindi"}, "Hindi"},
	{"nld", "nl", []string{"dut", "dutch"}, "Dutch"},
	{"pol", "pl", []string{"polish"}, "Polish"},
	{"swe", "sv", []string{"swedish"}, "Swedish"},
	{"dan", "da", []string{"danish"}, "Danish"},
	{"nor", "no", []string{"norwegian"}, "Norwegian"},
	{"fin", "fi", []string{"finnish"}, "Finnish"},
}

var index = buildIndex()

func buildIndex() map[string]*entry {
	idx := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		idx[e.tesseract] = e
		if e.iso2 != "" {
			idx[e.iso2] = e
		}
		for _, alias := range e.aliases {
			idx[alias] = e
		}
	}
	return idx
}

func clean(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ToTesseract returns the traineddata name for value, or value lowercased
// when it is not a known language. Empty input yields "".
func ToTesseract(value string) string {
	value = clean(value)
	if e, ok := index[value]; ok {
		return e.tesseract
	}
	return value
}

// Known reports whether value names a language in the built-in table.
func Known(value string) bool {
	_, ok := index[clean(value)]
	return ok
}

// DisplayName returns a human-readable name, the uppercased input when the
// language is unknown, or "Unknown" for empty input.
func DisplayName(value string) string {
	value = clean(value)
	if value == "" {
		return "Unknown"
	}
	if e, ok := index[value]; ok {
		return e.display
	}
	return strings.ToUpper(value)
}

// NormalizeList maps every entry to its traineddata name, dropping blanks
// and duplicates while keeping first-seen order.
func NormalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		name := ToTesseract(value)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
