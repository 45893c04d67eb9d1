package models

import (
	"time"
)

// Document source types.
const (
	SourceUpload = "upload"
	SourceURL    = "url"
	SourcePaste  = "paste"
	SourceVideo  = "video"
	SourceBatch  = "batch"
)

// Document represents one ingested unit of content, scoped to a tenant.
type Document struct {
	ID        string         `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	Title     string         `db:"title" json:"title"`
	Source    string         `db:"source" json:"source"` // upload | url | paste | video | batch
	Metadata  map[string]any `db:"metadata" json:"metadata"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// StorageKey returns the object-storage key recorded at ingestion time,
// or "" when the original file was not kept.
func (d *Document) StorageKey() string {
	if d.Metadata == nil {
		return ""
	}
	key, _ := d.Metadata["storage_key"].(string)
	return key
}

// DocumentChunk represents one retrievable slice of a document.
// Embedding is nil until computed; fast-mode ingestion leaves it nil.
type DocumentChunk struct {
	ID         string         `db:"id" json:"id"`
	DocumentID string         `db:"document_id" json:"document_id"`
	Ordinal    int            `db:"ordinal" json:"ordinal"`
	Content    string         `db:"content" json:"content"`
	Embedding  []float32      `db:"embedding" json:"embedding,omitempty"` // pgvector column, nullable
	Meta       map[string]any `db:"meta" json:"meta,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Ingestion job statuses. Transitions are monotonic: a job never moves
// back out of completed or failed.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// IngestionJob tracks progress of one asynchronous ingestion request.
type IngestionJob struct {
	ID        string         `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	Status    string         `db:"status" json:"status"` // queued | processing | completed | failed
	Progress  int            `db:"progress" json:"progress"`
	Result    map[string]any `db:"result" json:"result,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Feedback is an append-only rating (+1 / -1) tied to a query and
// optionally a document, used for retrieval-quality analytics.
type Feedback struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	Query      string    `db:"query" json:"query"`
	DocumentID string    `db:"document_id" json:"document_id,omitempty"`
	Rating     int       `db:"rating" json:"rating"` // +1 or -1
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MetricEvent is an append-only operational metric sample (query latency,
// cache hit rate, ...) queryable by tenant and time window.
type MetricEvent struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name"`
	Value     float64   `db:"value" json:"value"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
