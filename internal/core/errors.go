package core

import "errors"

// Error taxonomy shared across the pipeline. Handlers map these onto
// HTTP statuses; services wrap them with fmt.Errorf("...: %w", ...) so
// callers can test with errors.Is.
var (
	// ErrValidation covers bad input: missing query, oversized file,
	// unsupported format, page limit exceeded. Nothing is created.
	ErrValidation = errors.New("validation failed")

	// ErrExtraction means every extraction method was exhausted.
	// No document row is created.
	ErrExtraction = errors.New("extraction failed")

	// ErrProcessing covers chunking/storage failure after the document
	// row exists. Triggers retry with degraded options, then rollback.
	ErrProcessing = errors.New("processing failed")

	// ErrExternalService marks an embedding or generation model being
	// unavailable or timing out. Always recovered locally.
	ErrExternalService = errors.New("external service unavailable")

	// ErrNotFound marks an unknown document/tenant combination.
	ErrNotFound = errors.New("not found")
)
