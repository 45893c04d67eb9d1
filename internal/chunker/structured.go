package chunker

import (
	"strings"

	"github.com/quarry-ai/quarry/internal/models"
)

// StructuredChunk is one row-group chunk plus its provenance: the sheet
// it came from and the range of data rows it covers.
type StructuredChunk struct {
	Text     string
	Sheet    string
	RowStart int // first data row in the chunk, zero-based
	RowEnd   int // last data row, inclusive
}

// ChunkStructured chunks tabular content by logical row groups instead of
// blind character slicing. Each chunk repeats the sheet name and header
// line so every chunk is self-describing, and rows are packed greedily
// until the window budget would be exceeded. Retrieval over spreadsheets
// is materially better this way.
//
// A row larger than the whole window still gets its own chunk; rows are
// never split.
func ChunkStructured(payload *models.StructuredPayload, window int) []StructuredChunk {
	if payload.Empty() {
		return nil
	}
	if window < 1 {
		window = DefaultWindow
	}

	var out []StructuredChunk
	for _, sheet := range payload.Sheets {
		header := sheetHeader(sheet)

		var b strings.Builder
		b.WriteString(header)
		rowsInChunk := 0
		first, last := 0, 0

		flush := func() {
			if rowsInChunk == 0 {
				return
			}
			out = append(out, StructuredChunk{
				Text:     strings.TrimSpace(b.String()),
				Sheet:    sheet.Name,
				RowStart: first,
				RowEnd:   last,
			})
			b.Reset()
			b.WriteString(header)
			rowsInChunk = 0
		}

		for i, row := range sheet.Rows {
			line := strings.Join(row, " | ")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if rowsInChunk > 0 && b.Len()+len(line)+1 > window {
				flush()
			}
			if rowsInChunk == 0 {
				first = i
			}
			last = i
			b.WriteString(line)
			b.WriteString("\n")
			rowsInChunk++
		}
		flush()
	}
	return out
}

func sheetHeader(sheet models.Sheet) string {
	var b strings.Builder
	if sheet.Name != "" {
		b.WriteString("[")
		b.WriteString(sheet.Name)
		b.WriteString("]\n")
	}
	if len(sheet.Headers) > 0 {
		b.WriteString(strings.Join(sheet.Headers, " | "))
		b.WriteString("\n")
	}
	return b.String()
}
