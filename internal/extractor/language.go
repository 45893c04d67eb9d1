package extractor

import "strings"

// Tiny stopword-vote language detector. Good enough to tag metadata for
// retrieval analytics; not a linguistic authority.
var languageMarkers = map[string][]string{
	"en": {"the", "and", "for", "with", "that", "this", "from", "have"},
	"pt": {"que", "não", "para", "com", "uma", "por", "mais", "como"},
	"es": {"que", "los", "las", "para", "con", "una", "por", "como"},
}

// DetectLanguage returns "en", "pt", "es" or "unknown".
func DetectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 10 {
		return "unknown"
	}
	if len(words) > 500 {
		words = words[:500]
	}

	counts := map[string]int{}
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()")
		for lang, markers := range languageMarkers {
			for _, m := range markers {
				if w == m {
					counts[lang]++
				}
			}
		}
	}

	best, bestN := "unknown", 0
	for lang, n := range counts {
		if n > bestN {
			best, bestN = lang, n
		}
	}
	if bestN < 3 {
		return "unknown"
	}
	return best
}
