package extractor

import (
	"context"
	"log"
	"strings"
)

// extractPDF tries the fast text layer first; a PDF with little or no
// text layer is treated as possibly scanned and sent through OCR.
// Table extraction and image OCR run as best-effort additions whose
// failures never fail the overall extraction.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (*Result, error) {
	size := int64(len(data))

	text, name := e.tryChain(ctx, size, []method{
		{name: "docconv", run: e.docconvMethod(data, "application/pdf", false)},
		{name: "pdftotext", run: func(ctx context.Context) (string, error) {
			return e.pdfText.Run(ctx, data)
		}},
		{name: "ocr", ocr: true, run: func(ctx context.Context) (string, error) {
			return e.pdfOCR.Run(ctx, data)
		}},
	})
	if name == "" {
		return nil, nil
	}

	res := &Result{Content: text, Method: name, Metadata: map[string]any{}}

	// Pure additions below: each is bounded, logged on failure, and
	// appended only when it brings content the main pass did not.
	if name != "pdftotext" {
		if tables := e.bestEffort(ctx, size, false, "pdf-tables", func(ctx context.Context) (string, error) {
			return e.pdfText.Run(ctx, data)
		}); usable(tables) && !strings.Contains(res.Content, firstLine(tables)) {
			res.Content += "\n\n" + tables
			res.Metadata["tables_extracted"] = true
		}
	}
	if name != "ocr" {
		if ocrText := e.bestEffort(ctx, size, true, "pdf-image-ocr", func(ctx context.Context) (string, error) {
			return e.pdfOCR.Run(ctx, data)
		}); usable(ocrText) && !strings.Contains(res.Content, firstLine(ocrText)) {
			res.Content += "\n\n" + ocrText
			res.Metadata["image_ocr_extracted"] = true
		}
	}

	return res, nil
}

// bestEffort runs one enhancement method and swallows every failure.
func (e *Extractor) bestEffort(ctx context.Context, size int64, ocr bool, label string, run func(ctx context.Context) (string, error)) string {
	text, err := runBounded(ctx, methodBudget(size, ocr), run)
	if err != nil {
		log.Printf("extractor: best-effort %s skipped: %v", label, err)
		return ""
	}
	return text
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i > 0 {
		return text[:i]
	}
	return text
}
