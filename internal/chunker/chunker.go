// Package chunker splits extracted document text into overlapping
// retrieval windows, with a structure-aware variant for tabular data.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultWindow is the default window size in characters.
const DefaultWindow = 1000

// DefaultOverlap is the default overlap between consecutive windows.
const DefaultOverlap = 200

// DefaultMinChunkLen drops near-empty fragments after windowing.
const DefaultMinChunkLen = 10

// ByteModeThreshold is the input size above which the chunker switches
// from rune-based to byte-based windowing. Byte mode may split a
// multi-byte character at a chunk boundary; that is an accepted
// throughput tradeoff for multi-megabyte inputs, not a bug.
const ByteModeThreshold = 2 << 20

var collapseNewlines = regexp.MustCompile(`\n{3,}`)

// Normalize canonicalizes line endings and collapses runs of 3+ blank
// lines, so identical content always chunks identically.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return collapseNewlines.ReplaceAllString(text, "\n\n")
}

// Chunk slides a window of `window` characters over the normalized text,
// advancing by window-overlap each step. Whitespace-only windows are
// dropped; results are trimmed. Forward progress is guaranteed even when
// overlap >= window (the step is clamped to 1).
//
// For any non-empty input the result is never empty: if the minimum
// length filter removes everything, a single chunk holding the (possibly
// truncated) full text is returned instead.
func Chunk(text string, window, overlap int) []string {
	return ChunkMin(text, window, overlap, DefaultMinChunkLen)
}

// ChunkMin is Chunk with an explicit minimum chunk length.
func ChunkMin(text string, window, overlap, minLen int) []string {
	text = Normalize(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if window < 1 {
		window = DefaultWindow
	}

	var raw []string
	if len(text) > ByteModeThreshold {
		raw = windowBytes(text, window, overlap)
	} else {
		raw = windowRunes(text, window, overlap)
	}

	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if len(c) >= minLen {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		// Never return zero chunks for non-empty input.
		fallback := strings.TrimSpace(text)
		if len(fallback) > window {
			fallback = fallback[:window]
		}
		out = append(out, fallback)
	}
	return out
}

// windowRunes walks codepoints so chunk boundaries never split a
// multi-byte character.
func windowRunes(text string, window, overlap int) []string {
	runes := []rune(text)
	step := window - overlap
	if step < 1 {
		step = 1
	}

	// Every start below len emits a window, including the trailing one
	// that begins inside the previous window's overlap.
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// windowBytes is the byte-oriented variant used for very large inputs.
// Boundaries are byte offsets, so a UTF-8 sequence may be cut.
func windowBytes(text string, window, overlap int) []string {
	step := window - overlap
	if step < 1 {
		step = 1
	}

	var out []string
	for start := 0; start < len(text); start += step {
		end := start + window
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[start:end])
	}
	return out
}

// Dedup collapses chunks whose normalized content is identical,
// keeping the first occurrence so ordinals stay stable.
func Dedup(chunks []string) []string {
	keep := DedupIndices(chunks)
	if len(keep) == len(chunks) {
		return chunks
	}
	out := make([]string, len(keep))
	for j, i := range keep {
		out[j] = chunks[i]
	}
	return out
}

// DedupIndices returns the indices of the first occurrence of each
// distinct normalized chunk, in order. Callers carrying per-chunk
// metadata use it to keep the metadata aligned with the kept chunks.
func DedupIndices(chunks []string) []int {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]int, 0, len(chunks))
	for i, c := range chunks {
		key := strings.ToLower(strings.Join(strings.Fields(c), " "))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, i)
	}
	return out
}
