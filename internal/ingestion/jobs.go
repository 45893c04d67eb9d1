package ingestion

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-ai/quarry/internal/models"
)

// ErrQueueFull means the async queue is at capacity; clients should
// retry later or ingest synchronously.
var ErrQueueFull = errors.New("ingestion queue full")

const (
	jobQueueSize   = 64
	defaultWorkers = 2
	jobTimeout     = 30 * time.Minute
)

type job struct {
	id   string
	in   Input
	opts Options
}

// JobRunner processes ingestion requests asynchronously. Requests go
// through a bounded channel into a small fixed worker pool; job state
// lives in the database so it survives across API calls.
type JobRunner struct {
	pipeline *Pipeline
	jobs     chan job
	workers  int
}

func NewJobRunner(p *Pipeline, workers int) *JobRunner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &JobRunner{
		pipeline: p,
		jobs:     make(chan job, jobQueueSize),
		workers:  workers,
	}
}

// Start launches the worker goroutines. They exit when ctx is canceled.
func (r *JobRunner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-r.jobs:
					r.process(ctx, j)
				}
			}
		}()
	}
}

// Enqueue persists a queued job row and schedules it. Returns the job ID
// the client polls. Fails fast when the queue is full rather than
// blocking the HTTP handler.
func (r *JobRunner) Enqueue(ctx context.Context, in Input, opts Options) (string, error) {
	j := job{id: uuid.NewString(), in: in, opts: opts}

	if err := r.pipeline.db.CreateIngestionJob(ctx, &models.IngestionJob{
		ID:        j.id,
		TenantID:  in.TenantID,
		Status:    models.JobQueued,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}

	select {
	case r.jobs <- j:
		return j.id, nil
	default:
		r.setState(ctx, j.id, models.JobFailed, 0, map[string]any{"error": "ingestion queue full"})
		return "", ErrQueueFull
	}
}

// process runs one job to a terminal state. Progress milestones are
// 10 (validated), 30 (extracted), 90 (chunks stored), 100 (done); the
// store enforces that terminal states never regress.
func (r *JobRunner) process(ctx context.Context, j job) {
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	r.setState(jobCtx, j.id, models.JobProcessing, 0, nil)

	res, err := r.pipeline.Ingest(jobCtx, j.in, j.opts, func(pct int) {
		r.setState(jobCtx, j.id, models.JobProcessing, pct, nil)
	})
	if err != nil {
		log.Printf("ingestion: job %s failed: %v", j.id, err)
		// ctx may already be dead; give the failure write its own deadline
		failCtx, failCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer failCancel()
		r.setState(failCtx, j.id, models.JobFailed, 100, map[string]any{"error": err.Error()})
		return
	}

	r.setState(jobCtx, j.id, models.JobCompleted, 100, map[string]any{
		"document_id":    res.DocumentID,
		"chunk_count":    res.ChunkCount,
		"embedded_count": res.EmbeddedCount,
		"quality":        res.Quality,
		"method":         res.Method,
		"warnings":       res.Warnings,
	})
}

func (r *JobRunner) setState(ctx context.Context, id, status string, progress int, result map[string]any) {
	if err := r.pipeline.db.UpdateIngestionJob(ctx, id, status, progress, result); err != nil {
		log.Printf("ingestion: job %s state update failed: %v", id, err)
	}
}
