package extractor

import (
	"strings"
	"unicode"
)

// minContentLen is the floor below which a method's output is considered
// unusable and the chain moves on to the next method.
const minContentLen = 50

// QualityScore rates extracted text in [0,1]. It is a cheap heuristic:
// length earns a capped bonus, sentence punctuation density earns a
// bonus, and a high share of special/non-text characters is penalized.
func QualityScore(text string) float64 {
	text = strings.TrimSpace(text)
	n := len([]rune(text))
	if n == 0 {
		return 0
	}

	// Length bonus, capped at 1500 runes.
	score := 0.2 + 0.5*minf(float64(n)/1500.0, 1.0)

	// Sentence punctuation density bonus.
	sentences := 0
	special := 0
	for _, r := range text {
		switch {
		case r == '.' || r == '!' || r == '?':
			sentences++
		case r == unicode.ReplacementChar || unicode.IsControl(r) && r != '\n' && r != '\t':
			special++
		case !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && !unicode.IsPunct(r):
			special++
		}
	}
	per100 := float64(sentences) / (float64(n) / 100.0)
	score += minf(0.3, per100*0.1)

	// Special-character penalty.
	ratio := float64(special) / float64(n)
	score -= minf(0.4, ratio*2.0)

	return clamp01(score)
}

// usable reports whether a method produced content worth stopping the
// fallback chain for.
func usable(text string) bool {
	return len(strings.TrimSpace(text)) > minContentLen
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
