package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/core"
)

func TestQualityScoreBounds(t *testing.T) {
	assert.Equal(t, 0.0, QualityScore(""))
	assert.Equal(t, 0.0, QualityScore("   "))

	long := strings.Repeat("A clear sentence with real words. ", 100)
	score := QualityScore(long)
	assert.Greater(t, score, 0.7)
	assert.LessOrEqual(t, score, 1.0)
}

func TestQualityScorePenalizesGarbage(t *testing.T) {
	clean := strings.Repeat("Readable prose with normal punctuation. ", 40)
	garbage := strings.Repeat("��\x01\x02", 400)

	assert.Greater(t, QualityScore(clean), QualityScore(garbage))
}

func TestQualityScoreRewardsSentences(t *testing.T) {
	withSentences := strings.Repeat("Short sentence here. ", 75)
	noSentences := strings.Repeat("word ", 300)

	assert.Greater(t, QualityScore(withSentences), QualityScore(noSentences))
}

func TestUsable(t *testing.T) {
	assert.False(t, usable("too short"))
	assert.False(t, usable(strings.Repeat(" ", 200)))
	assert.True(t, usable(strings.Repeat("long enough content ", 5)))
}

func TestPageLimitValidatorAccepts(t *testing.T) {
	v := NewPageLimitValidator(100)

	res := v.EstimateAndValidate(10*textBytesPerPage, "txt")
	assert.True(t, res.Valid)
	assert.Equal(t, 10, res.EstimatedPages)
	assert.NoError(t, res.Err())
}

func TestPageLimitValidatorRejects(t *testing.T) {
	v := NewPageLimitValidator(100)

	res := v.EstimateAndValidate(500*textBytesPerPage, "txt")
	require.False(t, res.Valid)
	assert.ErrorIs(t, res.Err(), core.ErrValidation)
	assert.NotEmpty(t, res.Message)
}

func TestEstimatePagesPerFormat(t *testing.T) {
	assert.Equal(t, 2, EstimatePages(2*pdfBytesPerPage, "pdf"))
	assert.Equal(t, 1, EstimatePages(100, "png"))

	// spreadsheets estimate by rows, then rows per page
	rows := int64(200 * bytesPerRow)
	assert.Equal(t, 4, EstimatePages(rows, "csv"))
}

func TestDetectLanguage(t *testing.T) {
	en := strings.Repeat("the cat sat on the mat and then the dog came along with that ball ", 3)
	pt := strings.Repeat("o relatório mostra que a receita cresceu mais do que o esperado para o ano com uma margem maior ", 3)

	assert.Equal(t, "en", DetectLanguage(en))
	assert.Equal(t, "pt", DetectLanguage(pt))
	assert.Equal(t, "unknown", DetectLanguage("short"))
}
