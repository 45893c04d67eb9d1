package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	meta, err := marshalJSON(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `
		INSERT INTO documents (id, tenant_id, title, source, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	_, err = c.db.ExecContext(ctx, q,
		doc.ID, doc.TenantID, doc.Title, doc.Source, meta, nullTime(doc.CreatedAt))
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, tenantID, id string) (*models.Document, error) {
	const q = `
		SELECT id, tenant_id, title, source, metadata, created_at
		FROM documents
		WHERE id = $1 AND tenant_id = $2
	`
	var (
		d    models.Document
		meta []byte
	)
	err := c.db.QueryRowContext(ctx, q, id, tenantID).Scan(
		&d.ID, &d.TenantID, &d.Title, &d.Source, &meta, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meta, &d.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByTenant(ctx context.Context, tenantID string) ([]models.Document, error) {
	const q = `
		SELECT id, tenant_id, title, source, metadata, created_at
		FROM documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var (
			d    models.Document
			meta []byte
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Source, &meta, &d.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) LatestDocumentID(ctx context.Context, tenantID string) (string, error) {
	const q = `
		SELECT id FROM documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var id string
	err := c.db.QueryRowContext(ctx, q, tenantID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: tenant %s has no documents", core.ErrNotFound, tenantID)
	}
	return id, err
}

// UpdateDocumentMetadata merges the patch into the existing jsonb map.
// created_at and the rest of the row stay immutable.
func (c *DatabaseClient) UpdateDocumentMetadata(ctx context.Context, id string, patch map[string]any) error {
	raw, err := marshalJSON(patch)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}
	const q = `
		UPDATE documents
		SET metadata = metadata || $2::jsonb
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, raw)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	return nil
}

// DeleteDocument removes the row; chunks go with it via ON DELETE CASCADE.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	return nil
}

// Chunks

// InsertDocumentChunks inserts chunks in a single transaction so a
// failed document never shows a partial chunk set.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, ordinal, content, embedding, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := marshalJSON(ch.Meta)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal chunk meta: %w", err)
		}

		// Nullable embedding: fast-mode chunks carry nil until embedded.
		var emb any
		if ch.Embedding != nil {
			emb = pgvector.NewVector(ch.Embedding)
		}

		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Ordinal, ch.Content, emb, meta, nullTime(ch.CreatedAt),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, ordinal, content, embedding, meta
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY ordinal ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch   models.DocumentChunk
			emb  nullableVector
			meta []byte
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Ordinal, &ch.Content, &emb, &meta); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		if err := json.Unmarshal(meta, &ch.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal chunk meta: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountEmbeddedChunks(ctx context.Context, documentIDs []string) (int, error) {
	var (
		n   int
		err error
	)
	if len(documentIDs) == 0 {
		err = c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM document_chunks WHERE embedding IS NOT NULL`).Scan(&n)
	} else {
		err = c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM document_chunks
			 WHERE embedding IS NOT NULL AND document_id::text = ANY($1)`,
			documentIDs).Scan(&n)
	}
	return n, err
}

// SearchChunksVector orders by cosine distance ascending and returns
// 1-distance as the similarity score, so higher is better.
func (c *DatabaseClient) SearchChunksVector(ctx context.Context, tenantID string, documentIDs []string, queryVec []float32, limit int) ([]core.ScoredChunk, error) {
	vec := pgvector.NewVector(queryVec)

	var (
		rows *sql.Rows
		err  error
	)
	if len(documentIDs) == 0 {
		const q = `
			SELECT c.id, c.document_id, c.ordinal, c.content, c.meta,
			       1 - (c.embedding <=> $2) AS score
			FROM document_chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.tenant_id = $1 AND c.embedding IS NOT NULL
			ORDER BY c.embedding <=> $2 ASC
			LIMIT $3
		`
		rows, err = c.db.QueryContext(ctx, q, tenantID, vec, limit)
	} else {
		const q = `
			SELECT c.id, c.document_id, c.ordinal, c.content, c.meta,
			       1 - (c.embedding <=> $2) AS score
			FROM document_chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.tenant_id = $1 AND c.embedding IS NOT NULL
			  AND c.document_id::text = ANY($3)
			ORDER BY c.embedding <=> $2 ASC
			LIMIT $4
		`
		rows, err = c.db.QueryContext(ctx, q, tenantID, vec, documentIDs, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScoredChunks(rows)
}

// SearchChunksKeyword biases toward case-insensitive exact substring
// matches, with full-text rank as a complement.
func (c *DatabaseClient) SearchChunksKeyword(ctx context.Context, tenantID string, documentIDs []string, query string, limit int) ([]core.ScoredChunk, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(documentIDs) == 0 {
		const q = `
			SELECT c.id, c.document_id, c.ordinal, c.content, c.meta,
			       (CASE WHEN c.content ILIKE '%' || $2 || '%' THEN 0.6 ELSE 0.0 END
			        + 0.4 * ts_rank(to_tsvector('simple', c.content),
			                        websearch_to_tsquery('simple', $2))) AS score
			FROM document_chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.tenant_id = $1
			  AND (c.content ILIKE '%' || $2 || '%'
			       OR to_tsvector('simple', c.content) @@ websearch_to_tsquery('simple', $2))
			ORDER BY score DESC, c.ordinal ASC
			LIMIT $3
		`
		rows, err = c.db.QueryContext(ctx, q, tenantID, query, limit)
	} else {
		const q = `
			SELECT c.id, c.document_id, c.ordinal, c.content, c.meta,
			       (CASE WHEN c.content ILIKE '%' || $2 || '%' THEN 0.6 ELSE 0.0 END
			        + 0.4 * ts_rank(to_tsvector('simple', c.content),
			                        websearch_to_tsquery('simple', $2))) AS score
			FROM document_chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.tenant_id = $1
			  AND c.document_id::text = ANY($3)
			  AND (c.content ILIKE '%' || $2 || '%'
			       OR to_tsvector('simple', c.content) @@ websearch_to_tsquery('simple', $2))
			ORDER BY score DESC, c.ordinal ASC
			LIMIT $4
		`
		rows, err = c.db.QueryContext(ctx, q, tenantID, query, documentIDs, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScoredChunks(rows)
}

func scanScoredChunks(rows *sql.Rows) ([]core.ScoredChunk, error) {
	var out []core.ScoredChunk
	for rows.Next() {
		var (
			sc   core.ScoredChunk
			meta []byte
		)
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.Ordinal,
			&sc.Chunk.Content, &meta, &sc.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &sc.Chunk.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal chunk meta: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Ingestion jobs

func (c *DatabaseClient) CreateIngestionJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	result, err := marshalJSON(job.Result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	const q = `
		INSERT INTO ingestion_jobs (id, tenant_id, status, progress, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`
	_, err = c.db.ExecContext(ctx, q, job.ID, job.TenantID, job.Status, job.Progress, result)
	return err
}

func (c *DatabaseClient) GetIngestionJob(ctx context.Context, tenantID, id string) (*models.IngestionJob, error) {
	const q = `
		SELECT id, tenant_id, status, progress, result, created_at, updated_at
		FROM ingestion_jobs
		WHERE id = $1 AND tenant_id = $2
	`
	var (
		j      models.IngestionJob
		result []byte
	)
	err := c.db.QueryRowContext(ctx, q, id, tenantID).Scan(
		&j.ID, &j.TenantID, &j.Status, &j.Progress, &result, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: job %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &j.Result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
	}
	return &j, nil
}

// UpdateIngestionJob enforces the monotonic transitions in SQL: terminal
// jobs never change again, and progress never moves backwards.
func (c *DatabaseClient) UpdateIngestionJob(ctx context.Context, id string, status string, progress int, result map[string]any) error {
	raw, err := marshalJSON(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	const q = `
		UPDATE ingestion_jobs
		SET status = $2,
		    progress = GREATEST(progress, $3),
		    result = COALESCE($4::jsonb, result),
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`
	var rawArg any
	if result != nil {
		rawArg = raw
	}
	_, err = c.db.ExecContext(ctx, q, id, status, progress, rawArg)
	return err
}

// Feedback & metrics

func (c *DatabaseClient) InsertFeedback(ctx context.Context, fb *models.Feedback) error {
	if fb == nil {
		return errors.New("nil feedback")
	}
	const q = `
		INSERT INTO feedback (id, tenant_id, query, document_id, rating, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, now())
	`
	_, err := c.db.ExecContext(ctx, q, fb.ID, fb.TenantID, fb.Query, fb.DocumentID, fb.Rating)
	return err
}

func (c *DatabaseClient) InsertMetric(ctx context.Context, m *models.MetricEvent) error {
	if m == nil {
		return errors.New("nil metric")
	}
	const q = `
		INSERT INTO metric_events (id, tenant_id, name, value, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	_, err := c.db.ExecContext(ctx, q, m.ID, m.TenantID, m.Name, m.Value)
	return err
}

func (c *DatabaseClient) QueryMetrics(ctx context.Context, tenantID, name string, since, until time.Time) ([]models.MetricEvent, error) {
	const q = `
		SELECT id, tenant_id, name, value, created_at
		FROM metric_events
		WHERE tenant_id = $1 AND name = $2 AND created_at >= $3 AND created_at < $4
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, name, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MetricEvent
	for rows.Next() {
		var m models.MetricEvent
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Value, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// helpers

// nullableVector scans a vector column that may be NULL.
type nullableVector struct {
	vec *pgvector.Vector
}

func (n *nullableVector) Scan(src any) error {
	if src == nil {
		return nil
	}
	var v pgvector.Vector
	if err := v.Scan(src); err != nil {
		return err
	}
	n.vec = &v
	return nil
}

func (n *nullableVector) Slice() []float32 {
	if n.vec == nil {
		return nil
	}
	return n.vec.Slice()
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
