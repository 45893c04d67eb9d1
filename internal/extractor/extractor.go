// Package extractor converts raw files into plain text plus metadata.
// Each format dispatches to a strategy that walks an ordered chain of
// methods (native parser, external subprocess tools, OCR) and stops at
// the first one producing usable content.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
)

// DefaultMaxFileBytes rejects pathological uploads before any parsing.
const DefaultMaxFileBytes = 500 << 20

// Result is a successful extraction.
type Result struct {
	Content    string
	Quality    float64 // heuristic score in [0,1]
	Method     string  // winning method, e.g. "docconv", "pdftotext", "ocr"
	Metadata   map[string]any
	Structured *models.StructuredPayload // non-nil for spreadsheet/CSV content
}

// Extractor owns the strategy registry and the external tool handles.
type Extractor struct {
	maxFileBytes   int64
	useReadability bool

	ocr     Tool // tesseract via gosseract, images and scanned pages
	pdfText Tool // pdftotext subprocess, text layer + layout tables
	pdfOCR  Tool // ocrmypdf subprocess, sidecar text for scanned PDFs
}

// Option configures the extractor.
type Option func(*Extractor)

// WithMaxFileBytes overrides the size ceiling.
func WithMaxFileBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxFileBytes = n
		}
	}
}

// WithReadability routes HTML through the readability cleaner.
func WithReadability(on bool) Option {
	return func(e *Extractor) { e.useReadability = on }
}

// WithTools swaps the external tool implementations (tests use fakes).
func WithTools(ocr, pdfText, pdfOCR Tool) Option {
	return func(e *Extractor) {
		if ocr != nil {
			e.ocr = ocr
		}
		if pdfText != nil {
			e.pdfText = pdfText
		}
		if pdfOCR != nil {
			e.pdfOCR = pdfOCR
		}
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		maxFileBytes: DefaultMaxFileBytes,
		ocr:          NewOCRTool(),
		pdfText:      NewExecTool("pdftotext", "-layout", "-", "-"),
		pdfOCR:       NewExecTool("ocrmypdf", "--force-ocr", "--sidecar", "-", "-", TempOutputArg),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract converts file bytes into text plus metadata, dispatching on the
// declared extension. Unknown extensions fall through to the universal
// strategy. When every method comes up empty the error lists the
// supported formats so callers can retry intelligently.
func (e *Extractor) Extract(ctx context.Context, data []byte, ext string) (*Result, error) {
	if int64(len(data)) > e.maxFileBytes {
		return nil, fmt.Errorf("%w: file size %d exceeds limit %d bytes", core.ErrValidation, len(data), e.maxFileBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", core.ErrValidation)
	}

	format := FormatForExtension(ext)

	var (
		res *Result
		err error
	)
	switch format {
	case FormatPDF:
		res, err = e.extractPDF(ctx, data)
	case FormatXLSX:
		res, err = e.extractXLSX(ctx, data)
	case FormatCSV:
		res, err = e.extractCSV(ctx, data)
	case FormatImage:
		res, err = e.extractImage(ctx, data)
	case FormatText, FormatMarkdown:
		res, err = e.extractPlain(ctx, data)
	case FormatHTML:
		res, err = e.extractHTML(ctx, data)
	case FormatDocx, FormatDoc, FormatRTF:
		res, err = e.extractDocconv(ctx, data, mimeFor(format))
	default:
		res, err = e.extractUniversal(ctx, data, ext)
	}
	if err != nil {
		return nil, err
	}
	if res == nil || !usable(res.Content) && res.Structured.Empty() {
		return nil, fmt.Errorf("%w: no method produced usable content for %q (supported: %s)",
			core.ErrExtraction, ext, strings.Join(SupportedExtensions(), ", "))
	}

	res.Quality = QualityScore(res.Content)
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["extraction_method"] = res.Method
	res.Metadata["quality_score"] = res.Quality
	res.Metadata["format"] = format.String()
	res.Metadata["file_size"] = len(data)
	res.Metadata["language"] = DetectLanguage(res.Content)
	return res, nil
}

// tryChain runs methods in order, returning the first usable output.
// A timeout or error from one method only advances the chain.
func (e *Extractor) tryChain(ctx context.Context, size int64, methods []method) (string, string) {
	for _, m := range methods {
		text, err := runBounded(ctx, methodBudget(size, m.ocr), m.run)
		if err != nil {
			log.Printf("extractor: method %s failed: %v", m.name, err)
			continue
		}
		if usable(text) {
			return text, m.name
		}
	}
	return "", ""
}

type method struct {
	name string
	ocr  bool // selects the generous OCR time budget
	run  func(ctx context.Context) (string, error)
}

func (e *Extractor) docconvMethod(data []byte, mime string, readability bool) func(ctx context.Context) (string, error) {
	return func(_ context.Context) (string, error) {
		res, err := docconv.Convert(bytes.NewReader(data), mime, readability)
		if err != nil {
			return "", fmt.Errorf("docconv: %w", err)
		}
		return res.Body, nil
	}
}

func (e *Extractor) extractDocconv(ctx context.Context, data []byte, mime string) (*Result, error) {
	text, name := e.tryChain(ctx, int64(len(data)), []method{
		{name: "docconv", run: e.docconvMethod(data, mime, false)},
	})
	if name == "" {
		return nil, nil
	}
	return &Result{Content: text, Method: name}, nil
}

func (e *Extractor) extractHTML(ctx context.Context, data []byte) (*Result, error) {
	methods := []method{
		{name: "docconv", run: e.docconvMethod(data, "text/html", false)},
	}
	if e.useReadability {
		// Readability first: boilerplate removal usually wins for web pages.
		methods = []method{
			{name: "readability", run: e.docconvMethod(data, "text/html", true)},
			{name: "docconv", run: e.docconvMethod(data, "text/html", false)},
		}
	}
	text, name := e.tryChain(ctx, int64(len(data)), methods)
	if name == "" {
		return nil, nil
	}
	return &Result{Content: text, Method: name}, nil
}

func (e *Extractor) extractPlain(_ context.Context, data []byte) (*Result, error) {
	text := sanitizeUTF8(data)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return &Result{Content: text, Method: "native"}, nil
}

// extractUniversal handles unknown extensions: guess a mime type from
// the extension, let docconv have a go, then fall back to treating the
// bytes as plain text when they look textual.
func (e *Extractor) extractUniversal(ctx context.Context, data []byte, ext string) (*Result, error) {
	mime := docconv.MimeTypeByExtension("file." + strings.TrimPrefix(ext, "."))
	text, name := e.tryChain(ctx, int64(len(data)), []method{
		{name: "docconv", run: e.docconvMethod(data, mime, false)},
	})
	if name != "" {
		return &Result{Content: text, Method: name}, nil
	}
	if looksTextual(data) {
		return &Result{Content: sanitizeUTF8(data), Method: "native"}, nil
	}
	return nil, nil
}

func sanitizeUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

// looksTextual samples the head of the file for a low share of control
// and invalid bytes.
func looksTextual(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if !utf8.Valid(sample) {
		return false
	}
	control := 0
	for _, b := range sample {
		if b < 0x09 || (b > 0x0D && b < 0x20) {
			control++
		}
	}
	return float64(control)/float64(len(sample)) < 0.05
}
