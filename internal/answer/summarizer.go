package answer

import (
	"regexp"
	"sort"
	"strings"
)

// FrequencySummarizer builds extractive summaries by ranking sentences
// on stopword-filtered word frequency. It is fully deterministic and
// needs no model, which is what makes it a safe fallback when the LLM
// provider is down.
type FrequencySummarizer struct {
	maxSentences int
}

const defaultMaxSentences = 5

func NewFrequencySummarizer(maxSentences int) *FrequencySummarizer {
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	return &FrequencySummarizer{maxSentences: maxSentences}
}

var sentenceSplit = regexp.MustCompile(`[.!?]+[\s\n]+|[.!?]+$|\n{2,}`)

// Summarize returns the highest-scoring sentences in their original
// order. Empty input returns "".
func (s *FrequencySummarizer) Summarize(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) <= s.maxSentences {
		return strings.Join(sentences, " ")
	}

	freq := wordFrequencies(text)

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	for i, sent := range sentences {
		var total float64
		words := tokenize(sent)
		for _, w := range words {
			total += freq[w]
		}
		if len(words) > 0 {
			total /= float64(len(words))
		}
		ranked = append(ranked, scored{index: i, score: total})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	top := ranked[:s.maxSentences]
	sort.Slice(top, func(i, j int) bool { return top[i].index < top[j].index })

	out := make([]string, 0, len(top))
	for _, sc := range top {
		out = append(out, sentences[sc.index])
	}
	return strings.Join(out, " ")
}

func splitSentences(text string) []string {
	var out []string
	for _, raw := range sentenceSplit.Split(text, -1) {
		s := strings.TrimSpace(raw)
		if len(s) >= 3 {
			out = append(out, ensureTerminated(s))
		}
	}
	return out
}

func ensureTerminated(s string) string {
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

// wordFrequencies counts non-stopword tokens, normalized so the most
// frequent word scores 1.0.
func wordFrequencies(text string) map[string]float64 {
	counts := map[string]float64{}
	var max float64
	for _, w := range tokenize(text) {
		counts[w]++
		if counts[w] > max {
			max = counts[w]
		}
	}
	if max == 0 {
		return counts
	}
	for w := range counts {
		counts[w] /= max
	}
	return counts
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(text string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// English and Portuguese stopwords, matching the languages the
// extractor's detector knows about.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "are": true, "was": true, "were": true, "has": true,
	"have": true, "had": true, "but": true, "not": true, "you": true,
	"all": true, "can": true, "her": true, "his": true, "one": true,
	"our": true, "out": true, "they": true, "their": true, "them": true,
	"from": true, "will": true, "would": true, "there": true, "what": true,
	"when": true, "which": true, "who": true, "how": true, "its": true,
	"por": true, "para": true, "com": true, "uma": true, "dos": true,
	"das": true, "que": true, "não": true, "nao": true, "mais": true,
	"como": true, "mas": true, "foi": true, "ele": true, "ela": true,
	"seu": true, "sua": true, "este": true, "esta": true, "isso": true,
	"são": true, "sao": true, "pelo": true, "pela": true, "até": true,
}
