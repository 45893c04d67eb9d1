package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patterned returns n characters where the byte at offset i is
// deterministic, so window boundaries can be verified by content.
func patterned(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return string(b)
}

func TestChunkWindowOffsets(t *testing.T) {
	text := patterned(2500)

	chunks := Chunk(text, 1000, 200)
	require.Len(t, chunks, 4)

	// step = window - overlap = 800
	assert.Equal(t, text[0:1000], chunks[0])
	assert.Equal(t, text[800:1800], chunks[1])
	assert.Equal(t, text[1600:2500], chunks[2])
	assert.Equal(t, text[2400:2500], chunks[3])
}

func TestChunkThreeThousandChars(t *testing.T) {
	chunks := Chunk(patterned(3000), 1000, 200)
	assert.Len(t, chunks, 4)
}

func TestChunkByteModeEmitsTrailingWindow(t *testing.T) {
	text := patterned(2500)

	windows := windowBytes(text, 1000, 200)
	require.Len(t, windows, 4)
	assert.Equal(t, text[2400:2500], windows[3])
}

func TestChunkForwardProgressWhenOverlapExceedsWindow(t *testing.T) {
	text := patterned(100)

	// overlap > window would loop forever without the step clamp
	chunks := Chunk(text, 10, 20)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 91, len(chunks)) // step clamped to 1
}

func TestChunkNeverEmptyForNonEmptyInput(t *testing.T) {
	// shorter than the minimum chunk length, still must yield one chunk
	chunks := Chunk("hi", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hi", chunks[0])
}

func TestChunkEmptyInput(t *testing.T) {
	assert.Nil(t, Chunk("", 1000, 200))
	assert.Nil(t, Chunk("   \n\t  ", 1000, 200))
}

func TestChunkIdempotent(t *testing.T) {
	text := patterned(5000)
	first := Chunk(text, 1000, 200)
	second := Chunk(text, 1000, 200)
	assert.Equal(t, first, second)
}

func TestChunkRuneModeKeepsMultibyteIntact(t *testing.T) {
	text := strings.Repeat("é", 2500) // 5000 bytes, still rune mode

	chunks := Chunk(text, 1000, 200)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
	}
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
}

func TestChunkZeroOverlap(t *testing.T) {
	text := patterned(2000)
	chunks := Chunk(text, 1000, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, text[:1000], chunks[0])
	assert.Equal(t, text[1000:], chunks[1])
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb", Normalize("a\r\nb"))
	assert.Equal(t, "a\nb", Normalize("a\rb"))
	assert.Equal(t, "a\n\nb", Normalize("a\n\n\n\n\nb"))
}

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	chunks := []string{"alpha beta", "gamma", "Alpha  Beta", "gamma", "delta"}
	out := Dedup(chunks)
	assert.Equal(t, []string{"alpha beta", "gamma", "delta"}, out)
}
