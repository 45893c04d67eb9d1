// Package ingestion runs the document pipeline: validate, extract,
// persist, chunk, embed. It degrades instead of failing where it can,
// and rolls back cleanly where it cannot.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quarry-ai/quarry/internal/chunker"
	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/extractor"
	"github.com/quarry-ai/quarry/internal/models"
)

const (
	defaultEmbedBatch  = 32
	embedConcurrency   = 4
	emergencyChunkSize = 4000
)

// Options tune one ingestion run. The zero value means defaults.
type Options struct {
	Window        int
	Overlap       int
	Dedup         bool
	Structured    bool // row-group chunking when a structured payload exists
	SkipEmbedding bool // fast mode: persist chunks with null embeddings
}

// DefaultOptions is the full-quality pipeline configuration.
func DefaultOptions() Options {
	return Options{
		Window:     chunker.DefaultWindow,
		Overlap:    chunker.DefaultOverlap,
		Dedup:      true,
		Structured: true,
	}
}

// degraded is the retry configuration: smaller window, no structured
// chunking, no dedup. It trades quality for the best chance of success.
func (o Options) degraded() Options {
	w := o.Window / 2
	if w < 100 {
		w = 100
	}
	return Options{Window: w, Overlap: 0, SkipEmbedding: o.SkipEmbedding}
}

// Input is one document to ingest.
type Input struct {
	TenantID    string
	Title       string
	Filename    string
	ContentType string
	Source      string // upload | url | paste | video | batch
	Data        []byte
}

// Result summarizes a finished ingestion.
type Result struct {
	DocumentID    string   `json:"document_id"`
	ChunkCount    int      `json:"chunk_count"`
	EmbeddedCount int      `json:"embedded_count"`
	Quality       float64  `json:"quality"`
	Method        string   `json:"method"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Pipeline holds the ingestion dependencies. Embedder and object
// storage may be nil; the pipeline then skips those stages with a
// warning instead of failing.
type Pipeline struct {
	db        core.DbClient
	obj       core.ObjectClient
	bucket    string
	extractor *extractor.Extractor
	validator *extractor.PageLimitValidator
	embedder  core.EmbeddingProvider
	llm       core.LLMProvider

	embedBatch int
}

func NewPipeline(db core.DbClient, obj core.ObjectClient, bucket string, ext *extractor.Extractor, validator *extractor.PageLimitValidator, embedder core.EmbeddingProvider, llm core.LLMProvider) *Pipeline {
	return &Pipeline{
		db:         db,
		obj:        obj,
		bucket:     bucket,
		extractor:  ext,
		validator:  validator,
		embedder:   embedder,
		llm:        llm,
		embedBatch: defaultEmbedBatch,
	}
}

// Ingest runs the full pipeline synchronously. progress may be nil; when
// set it receives the coarse milestones 10, 30, 90.
func (p *Pipeline) Ingest(ctx context.Context, in Input, opts Options, progress func(int)) (*Result, error) {
	report := func(pct int) {
		if progress != nil {
			progress(pct)
		}
	}

	if err := p.validate(in); err != nil {
		return nil, err
	}
	report(10)

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(in.Filename), "."))
	extracted, err := p.extractor.Extract(ctx, in.Data, ext)
	if err != nil {
		return nil, err
	}
	report(30)

	warnings := []string{}
	storageKey := ""
	if p.obj != nil {
		storageKey = objectKey(in.TenantID, in.Filename)
		if _, upErr := p.obj.UploadFile(ctx, p.bucket, storageKey, in.Data, in.ContentType); upErr != nil {
			log.Printf("ingestion: object upload failed, continuing without storage copy: %v", upErr)
			warnings = append(warnings, "original file not archived: "+upErr.Error())
			storageKey = ""
		}
	}

	doc := p.buildDocument(in, extracted, storageKey)
	if err := p.db.CreateDocument(ctx, doc); err != nil {
		p.deleteObject(ctx, storageKey)
		return nil, fmt.Errorf("create document: %w", err)
	}

	res, err := p.chunkEmbedStore(ctx, doc.ID, extracted, opts)
	if err != nil {
		primaryErr := err
		log.Printf("ingestion: chunk/store failed for %s, retrying degraded: %v", doc.ID, err)
		res, err = p.chunkEmbedStore(ctx, doc.ID, extracted, opts.degraded())
		if err == nil {
			warnings = append(warnings, "processed with degraded chunking options")
		} else {
			// callers get both attempts' messages, not just the retry's
			err = errors.Join(primaryErr, fmt.Errorf("degraded retry: %w", err))
		}
	}
	if err != nil {
		emergencyErr := p.emergencyPersist(ctx, doc.ID, extracted.Content)
		if emergencyErr == nil {
			warnings = append(warnings, "stored as a single emergency chunk: "+err.Error())
			res = &storeResult{chunks: 1}
		} else {
			rbErr := p.rollback(ctx, doc.ID, storageKey)
			return nil, errors.Join(fmt.Errorf("%w: chunk and store: %v", core.ErrProcessing, err), rbErr)
		}
	}
	report(90)

	p.suggestQuestions(doc.ID, extracted.Content)

	return &Result{
		DocumentID:    doc.ID,
		ChunkCount:    res.chunks,
		EmbeddedCount: res.embedded,
		Quality:       extracted.Quality,
		Method:        extracted.Method,
		Warnings:      append(warnings, res.warnings...),
	}, nil
}

func (p *Pipeline) validate(in Input) error {
	if in.TenantID == "" {
		return fmt.Errorf("%w: missing tenant", core.ErrValidation)
	}
	if len(in.Data) == 0 {
		return fmt.Errorf("%w: empty file", core.ErrValidation)
	}
	if in.Filename == "" {
		return fmt.Errorf("%w: missing filename", core.ErrValidation)
	}
	if p.validator != nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(in.Filename), "."))
		if err := p.validator.EstimateAndValidate(int64(len(in.Data)), ext).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) buildDocument(in Input, extracted *extractor.Result, storageKey string) *models.Document {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.Filename
	}
	source := in.Source
	if source == "" {
		source = models.SourceUpload
	}

	meta := map[string]any{}
	for k, v := range extracted.Metadata {
		meta[k] = v
	}
	if storageKey != "" {
		meta["storage_key"] = storageKey
	}
	if extracted.Structured != nil && !extracted.Structured.Empty() {
		meta["structured_rows"] = extracted.Structured.TotalRows()
		meta["structured_sheets"] = extracted.Structured.SheetNames()
	}

	return &models.Document{
		ID:        uuid.NewString(),
		TenantID:  in.TenantID,
		Title:     title,
		Source:    source,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}

type storeResult struct {
	chunks   int
	embedded int
	warnings []string
}

// chunkEmbedStore splits the extracted content, embeds what it can and
// writes everything in one insert. An embedding outage is recovered by
// persisting null-embedding chunks; keyword search still covers them.
func (p *Pipeline) chunkEmbedStore(ctx context.Context, docID string, extracted *extractor.Result, opts Options) (*storeResult, error) {
	window := opts.Window
	if window <= 0 {
		window = chunker.DefaultWindow
	}
	overlap := opts.Overlap

	// metas runs parallel to pieces: structured chunks carry their
	// sheet/row provenance, window chunks carry none.
	var pieces []string
	var metas []map[string]any
	if opts.Structured && extracted.Structured != nil && !extracted.Structured.Empty() {
		for _, sc := range chunker.ChunkStructured(extracted.Structured, window) {
			pieces = append(pieces, sc.Text)
			metas = append(metas, map[string]any{
				"sheet":     sc.Sheet,
				"row_start": sc.RowStart,
				"row_end":   sc.RowEnd,
			})
		}
	}
	if len(pieces) == 0 {
		metas = nil
		pieces = chunker.Chunk(extracted.Content, window, overlap)
	}
	if opts.Dedup {
		keep := chunker.DedupIndices(pieces)
		if len(keep) != len(pieces) {
			kept := make([]string, len(keep))
			var keptMetas []map[string]any
			if metas != nil {
				keptMetas = make([]map[string]any, len(keep))
			}
			for j, i := range keep {
				kept[j] = pieces[i]
				if metas != nil {
					keptMetas[j] = metas[i]
				}
			}
			pieces, metas = kept, keptMetas
		}
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced", core.ErrProcessing)
	}

	res := &storeResult{chunks: len(pieces)}

	var vecs [][]float32
	if p.embedder != nil && !opts.SkipEmbedding {
		var err error
		vecs, err = p.embedAll(ctx, pieces)
		if err != nil {
			log.Printf("ingestion: embedding failed for %s, storing without vectors: %v", docID, err)
			res.warnings = append(res.warnings, "embeddings unavailable, keyword search only: "+err.Error())
			vecs = nil
		}
	}

	now := time.Now().UTC()
	rows := make([]models.DocumentChunk, len(pieces))
	for i, content := range pieces {
		rows[i] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Ordinal:    i,
			Content:    content,
			CreatedAt:  now,
		}
		if metas != nil {
			rows[i].Meta = metas[i]
		}
		if vecs != nil {
			rows[i].Embedding = vecs[i]
			res.embedded++
		}
	}

	if err := p.db.InsertDocumentChunks(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert chunks: %w", err)
	}
	return res, nil
}

// embedAll splits the texts into bounded batches and embeds them
// concurrently. Results land at fixed offsets so output order always
// matches input order; any batch failure cancels the rest.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += p.embedBatch {
		start := start
		end := start + p.embedBatch
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := p.embedder.EmbedTexts(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%w: embedding count mismatch: got %d want %d", core.ErrExternalService, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// emergencyPersist is the last resort before rollback: one truncated
// chunk, no embedding, so the document is at least keyword-searchable.
func (p *Pipeline) emergencyPersist(ctx context.Context, docID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: no content to persist", core.ErrProcessing)
	}
	if len(content) > emergencyChunkSize {
		content = content[:emergencyChunkSize]
	}
	return p.db.InsertDocumentChunks(ctx, []models.DocumentChunk{{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Ordinal:    0,
		Content:    content,
		Meta:       map[string]any{"emergency": true},
		CreatedAt:  time.Now().UTC(),
	}})
}

// rollback removes the partially ingested document and its stored file.
// Both failures are reported so nothing disappears silently.
func (p *Pipeline) rollback(ctx context.Context, docID, storageKey string) error {
	var errs []error
	if err := p.db.DeleteDocument(ctx, docID); err != nil {
		errs = append(errs, fmt.Errorf("rollback document %s: %w", docID, err))
	}
	if storageKey != "" && p.obj != nil {
		if err := p.obj.DeleteFile(ctx, p.bucket, storageKey); err != nil {
			errs = append(errs, fmt.Errorf("rollback object %s: %w", storageKey, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) deleteObject(ctx context.Context, storageKey string) {
	if storageKey == "" || p.obj == nil {
		return
	}
	if err := p.obj.DeleteFile(ctx, p.bucket, storageKey); err != nil {
		log.Printf("ingestion: orphan object cleanup failed for %s: %v", storageKey, err)
	}
}

// objectKey gives every upload a collision-free, tenant-scoped S3 key.
func objectKey(tenantID, filename string) string {
	filename = strings.ReplaceAll(strings.TrimSpace(filename), " ", "_")
	return path.Join("tenants", tenantID, "documents", uuid.NewString(), filename)
}
