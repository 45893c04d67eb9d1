package extractor

import (
	"fmt"

	"github.com/quarry-ai/quarry/internal/core"
)

// DefaultMaxPages is the ceiling the validator enforces before any
// extraction work is spent on an oversized document.
const DefaultMaxPages = 2000

// Per-format size heuristics. These deliberately avoid parsing the file:
// the validator must stay cheap enough to run on every request.
const (
	pdfBytesPerPage   = 50 << 10 // scanned PDFs run much larger; this favors acceptance
	docBytesPerPage   = 30 << 10
	textBytesPerPage  = 3500
	bytesPerRow       = 80 // spreadsheet/CSV row estimate
	rowsPerPage       = 50
	imagePagesPerFile = 1
)

// PageLimitValidator estimates page counts from file size and format.
type PageLimitValidator struct {
	maxPages int
}

// ValidationResult reports the estimate and, when invalid, a message
// suitable for surfacing to the caller.
type ValidationResult struct {
	Valid          bool
	EstimatedPages int
	Message        string
}

func NewPageLimitValidator(maxPages int) *PageLimitValidator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PageLimitValidator{maxPages: maxPages}
}

// EstimateAndValidate runs before extraction and never parses the file.
// An invalid result must short-circuit the whole ingestion.
func (v *PageLimitValidator) EstimateAndValidate(sizeBytes int64, ext string) ValidationResult {
	pages := EstimatePages(sizeBytes, ext)
	if pages > v.maxPages {
		return ValidationResult{
			Valid:          false,
			EstimatedPages: pages,
			Message:        fmt.Sprintf("estimated %d pages exceeds the %d page limit", pages, v.maxPages),
		}
	}
	return ValidationResult{Valid: true, EstimatedPages: pages}
}

// Err wraps a failed validation in the shared taxonomy.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", core.ErrValidation, r.Message)
}

// EstimatePages converts size+format into a page estimate.
func EstimatePages(sizeBytes int64, ext string) int {
	if sizeBytes <= 0 {
		return 0
	}
	var pages int64
	switch FormatForExtension(ext) {
	case FormatPDF:
		pages = ceilDiv(sizeBytes, pdfBytesPerPage)
	case FormatDocx, FormatDoc, FormatRTF:
		pages = ceilDiv(sizeBytes, docBytesPerPage)
	case FormatCSV, FormatXLSX:
		rows := ceilDiv(sizeBytes, bytesPerRow)
		pages = ceilDiv(rows, rowsPerPage)
	case FormatImage:
		pages = imagePagesPerFile
	default:
		pages = ceilDiv(sizeBytes, textBytesPerPage)
	}
	if pages < 1 {
		pages = 1
	}
	return int(pages)
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
