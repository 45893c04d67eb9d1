package extractor

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/quarry-ai/quarry/internal/models"
)

// extractXLSX prefers structured extraction so the chunker can build
// row-group chunks with header context. When excelize cannot open the
// workbook the strategy degrades to the universal flat-text path.
func (e *Extractor) extractXLSX(ctx context.Context, data []byte) (*Result, error) {
	payload, err := readWorkbook(data)
	if err != nil {
		log.Printf("extractor: structured xlsx extraction failed, falling back to flat text: %v", err)
		return e.extractUniversal(ctx, data, "xlsx")
	}
	if payload.Empty() {
		return nil, nil
	}
	return &Result{
		Content:    flattenPayload(payload),
		Method:     "structured-xlsx",
		Structured: payload,
		Metadata:   map[string]any{"rows": payload.TotalRows(), "sheets": len(payload.Sheets)},
	}, nil
}

func readWorkbook(data []byte) (*models.StructuredPayload, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("excelize open: %w", err)
	}
	defer f.Close()

	payload := &models.StructuredPayload{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("excelize rows %q: %w", name, err)
		}
		sheet := models.Sheet{Name: name}
		for i, row := range rows {
			if i == 0 && headerish(row) {
				sheet.Headers = row
				continue
			}
			if rowEmpty(row) {
				continue
			}
			sheet.Rows = append(sheet.Rows, row)
		}
		if len(sheet.Rows) > 0 || len(sheet.Headers) > 0 {
			payload.Sheets = append(payload.Sheets, sheet)
		}
	}
	return payload, nil
}

// extractCSV parses with the stdlib reader, sniffing the delimiter from
// the first line. Malformed CSV degrades to plain text.
func (e *Extractor) extractCSV(ctx context.Context, data []byte) (*Result, error) {
	payload, err := readCSV(data)
	if err != nil {
		log.Printf("extractor: structured csv extraction failed, falling back to flat text: %v", err)
		return e.extractPlain(ctx, data)
	}
	if payload.Empty() {
		return e.extractPlain(ctx, data)
	}
	return &Result{
		Content:    flattenPayload(payload),
		Method:     "structured-csv",
		Structured: payload,
		Metadata:   map[string]any{"rows": payload.TotalRows()},
	}, nil
}

func readCSV(data []byte) (*models.StructuredPayload, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse: %w", err)
	}
	sheet := models.Sheet{Name: "data"}
	for i, row := range records {
		if i == 0 && headerish(row) {
			sheet.Headers = row
			continue
		}
		if rowEmpty(row) {
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return &models.StructuredPayload{Sheets: []models.Sheet{sheet}}, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	for _, d := range []byte{',', ';', '\t', '|'} {
		if bytes.IndexByte(line, d) >= 0 {
			return rune(d)
		}
	}
	return ','
}

// headerish guesses whether the first row is a header: every cell
// non-empty and none parse as pure numbers.
func headerish(row []string) bool {
	if len(row) == 0 {
		return false
	}
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			return false
		}
		if strings.IndexFunc(cell, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
			return false
		}
	}
	return true
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// flattenPayload renders the structured payload as readable text, one
// row per line with the header repeated per sheet. This flat form feeds
// keyword search; the payload itself feeds the structured chunker.
func flattenPayload(p *models.StructuredPayload) string {
	var b strings.Builder
	for _, sheet := range p.Sheets {
		if sheet.Name != "" {
			fmt.Fprintf(&b, "[%s]\n", sheet.Name)
		}
		if len(sheet.Headers) > 0 {
			b.WriteString(strings.Join(sheet.Headers, " | "))
			b.WriteString("\n")
		}
		for _, row := range sheet.Rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
