package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/extractor"
	"github.com/quarry-ai/quarry/internal/models"
)

// fakeDB records every persistence call the pipeline makes.
type fakeDB struct {
	core.DbClient
	mu sync.Mutex

	docs         []*models.Document
	inserted     [][]models.DocumentChunk
	deletedDocs  []string
	metaPatches  []map[string]any
	jobs         map[string]*models.IngestionJob
	jobUpdates   []jobUpdate
	createDocErr error
	// insertErr fails InsertDocumentChunks when it returns true for the
	// given batch, letting tests target specific attempts.
	insertErr func(batch []models.DocumentChunk) error
}

type jobUpdate struct {
	status   string
	progress int
}

func newFakeDB() *fakeDB {
	return &fakeDB{jobs: map[string]*models.IngestionJob{}}
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createDocErr != nil {
		return f.createDocErr
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeDB) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocs = append(f.deletedDocs, id)
	return nil
}

func (f *fakeDB) UpdateDocumentMetadata(_ context.Context, _ string, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaPatches = append(f.metaPatches, patch)
	return nil
}

func (f *fakeDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		if err := f.insertErr(chunks); err != nil {
			return err
		}
	}
	f.inserted = append(f.inserted, chunks)
	return nil
}

func (f *fakeDB) CreateIngestionJob(_ context.Context, job *models.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeDB) UpdateIngestionJob(_ context.Context, id, status string, progress int, result map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobUpdates = append(f.jobUpdates, jobUpdate{status: status, progress: progress})
	if job, ok := f.jobs[id]; ok {
		job.Status = status
		job.Progress = progress
		job.Result = result
	}
	return nil
}

func (f *fakeDB) allChunks() []models.DocumentChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DocumentChunk
	for _, batch := range f.inserted {
		out = append(out, batch...)
	}
	return out
}

type fakeObj struct {
	core.ObjectClient
	mu       sync.Mutex
	uploaded []string
	deleted  []string
	upErr    error
}

func (f *fakeObj) UploadFile(_ context.Context, _, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upErr != nil {
		return "", f.upErr
	}
	f.uploaded = append(f.uploaded, key)
	return "https://bucket/" + key, nil
}

func (f *fakeObj) DeleteFile(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func testContent(n int) []byte {
	sentence := "This document describes the ingestion pipeline in detail. "
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(sentence)
	}
	return []byte(b.String()[:n])
}

func testInput(data []byte) Input {
	return Input{
		TenantID:    "t1",
		Title:       "Test Doc",
		Filename:    "test.txt",
		ContentType: "text/plain",
		Source:      models.SourceUpload,
		Data:        data,
	}
}

func newTestPipeline(db *fakeDB, obj core.ObjectClient, emb core.EmbeddingProvider) *Pipeline {
	return NewPipeline(db, obj, "bucket", extractor.New(), extractor.NewPageLimitValidator(0), emb, nil)
}

func TestIngestHappyPath(t *testing.T) {
	db := newFakeDB()
	obj := &fakeObj{}
	p := newTestPipeline(db, obj, &fakeEmbedder{})

	res, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), nil)
	require.NoError(t, err)

	require.Len(t, db.docs, 1)
	assert.Equal(t, "t1", db.docs[0].TenantID)
	assert.Len(t, obj.uploaded, 1)

	chunks := db.allChunks()
	require.NotEmpty(t, chunks)
	assert.Equal(t, len(chunks), res.ChunkCount)
	assert.Equal(t, len(chunks), res.EmbeddedCount)

	// ordinals are contiguous from zero
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.NotNil(t, ch.Embedding)
		assert.Equal(t, db.docs[0].ID, ch.DocumentID)
	}
}

func TestIngestValidation(t *testing.T) {
	p := newTestPipeline(newFakeDB(), nil, nil)

	_, err := p.Ingest(context.Background(), Input{TenantID: "t1", Filename: "a.txt"}, DefaultOptions(), nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = p.Ingest(context.Background(), Input{Filename: "a.txt", Data: []byte("x")}, DefaultOptions(), nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestIngestEmbeddingFailureDegradesToKeywordOnly(t *testing.T) {
	db := newFakeDB()
	p := newTestPipeline(db, nil, &fakeEmbedder{err: errors.New("quota exceeded")})

	res, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.EmbeddedCount)
	assert.NotEmpty(t, res.Warnings)
	for _, ch := range db.allChunks() {
		assert.Nil(t, ch.Embedding)
	}
}

func TestIngestRetriesWithDegradedOptions(t *testing.T) {
	db := newFakeDB()
	attempts := 0
	db.insertErr = func(_ []models.DocumentChunk) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient insert failure")
		}
		return nil
	}
	p := newTestPipeline(db, nil, nil)

	res, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, strings.Join(res.Warnings, " "), "degraded")
}

func TestIngestSurfacesBothAttemptErrors(t *testing.T) {
	db := newFakeDB()
	attempts := 0
	db.insertErr = func(_ []models.DocumentChunk) error {
		attempts++
		switch attempts {
		case 1:
			return errors.New("primary insert refused")
		case 2:
			return errors.New("degraded insert refused")
		default:
			return errors.New("emergency insert refused")
		}
	}
	p := newTestPipeline(db, nil, nil)

	_, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProcessing)

	// neither attempt's message is dropped
	assert.Contains(t, err.Error(), "primary insert refused")
	assert.Contains(t, err.Error(), "degraded insert refused")
}

func TestIngestStructuredChunkProvenance(t *testing.T) {
	var csv strings.Builder
	csv.WriteString("id,customer,total\n")
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&csv, "%d,customer-%d,19.90\n", i, i)
	}

	db := newFakeDB()
	p := newTestPipeline(db, nil, nil)

	in := Input{
		TenantID:    "t1",
		Filename:    "orders.csv",
		ContentType: "text/csv",
		Data:        []byte(csv.String()),
	}
	_, err := p.Ingest(context.Background(), in, DefaultOptions(), nil)
	require.NoError(t, err)

	chunks := db.allChunks()
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		require.NotNil(t, ch.Meta)
		assert.Equal(t, "data", ch.Meta["sheet"])
	}
	assert.Equal(t, 0, chunks[0].Meta["row_start"])
	assert.Equal(t, 79, chunks[len(chunks)-1].Meta["row_end"])

	require.Len(t, db.docs, 1)
	assert.Equal(t, 80, db.docs[0].Metadata["structured_rows"])
	assert.Equal(t, []string{"data"}, db.docs[0].Metadata["structured_sheets"])
}

func TestIngestEmergencySingleChunk(t *testing.T) {
	db := newFakeDB()
	db.insertErr = func(batch []models.DocumentChunk) error {
		if len(batch) > 1 {
			return errors.New("bulk insert broken")
		}
		return nil
	}
	p := newTestPipeline(db, nil, nil)

	res, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunkCount)

	chunks := db.allChunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, true, chunks[0].Meta["emergency"])
	assert.Empty(t, db.deletedDocs)
}

func TestIngestRollbackOnTotalFailure(t *testing.T) {
	db := newFakeDB()
	db.insertErr = func(_ []models.DocumentChunk) error {
		return errors.New("storage down")
	}
	obj := &fakeObj{}
	p := newTestPipeline(db, obj, nil)

	_, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProcessing)

	// document row and uploaded object are both gone
	require.Len(t, db.docs, 1)
	assert.Equal(t, []string{db.docs[0].ID}, db.deletedDocs)
	assert.Equal(t, obj.uploaded, obj.deleted)
}

func TestIngestContinuesWhenUploadFails(t *testing.T) {
	db := newFakeDB()
	obj := &fakeObj{upErr: errors.New("s3 down")}
	p := newTestPipeline(db, obj, nil)

	res, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)

	require.Len(t, db.docs, 1)
	_, hasKey := db.docs[0].Metadata["storage_key"]
	assert.False(t, hasKey)
}

func TestIngestProgressMilestones(t *testing.T) {
	db := newFakeDB()
	p := newTestPipeline(db, nil, nil)

	var seen []int
	_, err := p.Ingest(context.Background(), testInput(testContent(3000)), DefaultOptions(), func(pct int) {
		seen = append(seen, pct)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 30, 90}, seen)
}

func TestJobRunnerLifecycle(t *testing.T) {
	db := newFakeDB()
	p := newTestPipeline(db, nil, nil)
	r := NewJobRunner(p, 1)

	jobID, err := r.Enqueue(context.Background(), testInput(testContent(3000)), DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	// run the queued job directly instead of racing a worker goroutine
	r.process(context.Background(), <-r.jobs)

	job := db.jobs[jobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.NotEmpty(t, job.Result["document_id"])

	// progress only ever moves forward
	last := -1
	for _, u := range db.jobUpdates {
		assert.GreaterOrEqual(t, u.progress, last)
		last = u.progress
	}
}

func TestJobRunnerFailureIsTerminal(t *testing.T) {
	db := newFakeDB()
	p := newTestPipeline(db, nil, nil)
	r := NewJobRunner(p, 1)

	jobID, err := r.Enqueue(context.Background(), Input{TenantID: "t1", Filename: "a.txt"}, DefaultOptions())
	require.NoError(t, err)

	r.process(context.Background(), <-r.jobs)

	job := db.jobs[jobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.NotEmpty(t, job.Result["error"])
}
