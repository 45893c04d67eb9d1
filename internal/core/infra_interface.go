package core

import (
	"context"
	"io"
	"time"

	"github.com/quarry-ai/quarry/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, tenantID, id string) (*models.Document, error)
	ListDocumentsByTenant(ctx context.Context, tenantID string) ([]models.Document, error)
	LatestDocumentID(ctx context.Context, tenantID string) (string, error)
	UpdateDocumentMetadata(ctx context.Context, id string, patch map[string]any) error
	DeleteDocument(ctx context.Context, id string) error // cascades to chunks

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	CountEmbeddedChunks(ctx context.Context, documentIDs []string) (int, error)

	// SearchChunksVector orders by cosine distance to queryVec, ascending.
	SearchChunksVector(ctx context.Context, tenantID string, documentIDs []string, queryVec []float32, limit int) ([]ScoredChunk, error)
	// SearchChunksKeyword is biased toward case-insensitive exact substring
	// matches, with full-text rank as a complement.
	SearchChunksKeyword(ctx context.Context, tenantID string, documentIDs []string, query string, limit int) ([]ScoredChunk, error)

	CreateIngestionJob(ctx context.Context, job *models.IngestionJob) error
	GetIngestionJob(ctx context.Context, tenantID, id string) (*models.IngestionJob, error)
	UpdateIngestionJob(ctx context.Context, id string, status string, progress int, result map[string]any) error

	InsertFeedback(ctx context.Context, fb *models.Feedback) error
	InsertMetric(ctx context.Context, m *models.MetricEvent) error
	QueryMetrics(ctx context.Context, tenantID, name string, since, until time.Time) ([]models.MetricEvent, error)

	Close() error
}

// ScoredChunk is a chunk paired with the similarity or rank score the
// store computed for it. Higher is better for both search flavors.
type ScoredChunk struct {
	Chunk models.DocumentChunk
	Score float64
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
