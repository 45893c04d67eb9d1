package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeEmpty(t *testing.T) {
	s := NewFrequencySummarizer(3)
	assert.Equal(t, "", s.Summarize(""))
	assert.Equal(t, "", s.Summarize("   \n "))
}

func TestSummarizeShortTextPassesThrough(t *testing.T) {
	s := NewFrequencySummarizer(5)
	out := s.Summarize("One sentence. Another sentence.")
	assert.Contains(t, out, "One sentence.")
	assert.Contains(t, out, "Another sentence.")
}

func TestSummarizeDeterministic(t *testing.T) {
	s := NewFrequencySummarizer(2)
	text := longPassage + " " + longPassage

	first := s.Summarize(text)
	second := s.Summarize(text)
	assert.Equal(t, first, second)
}

func TestSummarizePrefersFrequentTopics(t *testing.T) {
	text := `The database migration requires careful planning. The database
migration touches every service. The database schema changes first.
Unrelated trivia about the office coffee machine. More migration database
discussion follows here. The cafeteria menu changed on Tuesday recently.`

	s := NewFrequencySummarizer(2)
	out := s.Summarize(text)

	assert.Contains(t, strings.ToLower(out), "database")
	assert.NotContains(t, strings.ToLower(out), "coffee")
}

func TestSummarizeKeepsOriginalOrder(t *testing.T) {
	text := `Alpha systems process the incoming alpha records every alpha cycle.
Filler sentence with nothing in common whatsoever. Beta systems archive the
beta records after each beta cycle. Another filler line with random words.
Gamma cleanup runs last in the alpha beta pipeline.`

	s := NewFrequencySummarizer(3)
	out := s.Summarize(text)

	require.NotEmpty(t, out)
	alphaIdx := strings.Index(out, "Alpha")
	betaIdx := strings.Index(out, "Beta")
	if alphaIdx >= 0 && betaIdx >= 0 {
		assert.Less(t, alphaIdx, betaIdx)
	}
}
