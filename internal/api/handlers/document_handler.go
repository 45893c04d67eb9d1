package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/quarry-ai/quarry/internal/api/middlewares"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/ingestion"
)

type DocumentHandler struct {
	db       core.DbClient
	obj      core.ObjectClient
	pipeline *ingestion.Pipeline
	runner   *ingestion.JobRunner
	cfg      *config.Config
}

func NewDocumentHandler(db core.DbClient, obj core.ObjectClient, p *ingestion.Pipeline, r *ingestion.JobRunner, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{db: db, obj: obj, pipeline: p, runner: r, cfg: cfg}
}

// IngestDocument accepts a multipart upload and either processes it
// inline or schedules an async job when async=true.
func (h *DocumentHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxFileBytes+1))
	if err != nil {
		http.Error(w, "read upload failed", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.cfg.MaxFileBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	in := ingestion.Input{
		TenantID:    tenantID,
		Title:       r.FormValue("title"),
		Filename:    filepath.Base(header.Filename),
		ContentType: contentType,
		Source:      r.FormValue("source"),
		Data:        data,
	}
	opts := parseOptions(r)

	if r.FormValue("async") == "true" {
		jobID, err := h.runner.Enqueue(r.Context(), in, opts)
		if err != nil {
			if errors.Is(err, ingestion.ErrQueueFull) {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
		return
	}

	res, err := h.pipeline.Ingest(r.Context(), in, opts, nil)
	if err != nil {
		log.Printf("http: ingest failed for tenant %s: %v", tenantID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func parseOptions(r *http.Request) ingestion.Options {
	opts := ingestion.DefaultOptions()
	if v, err := strconv.Atoi(r.FormValue("window")); err == nil && v > 0 {
		opts.Window = v
	}
	if v, err := strconv.Atoi(r.FormValue("overlap")); err == nil && v >= 0 {
		opts.Overlap = v
	}
	if r.FormValue("dedup") == "false" {
		opts.Dedup = false
	}
	if r.FormValue("structured") == "false" {
		opts.Structured = false
	}
	if r.FormValue("fast") == "true" {
		opts.SkipEmbedding = true
	}
	return opts
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	documents, err := h.db.ListDocumentsByTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	id := chi.URLParam(r, "id")

	doc, err := h.db.GetDocumentByID(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument removes the document row (chunks cascade) and then the
// stored file. A failed object delete is logged, not surfaced: the
// document is already gone and the orphan can be swept later.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	id := chi.URLParam(r, "id")

	doc, err := h.db.GetDocumentByID(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.db.DeleteDocument(r.Context(), doc.ID); err != nil {
		writeError(w, err)
		return
	}
	if key := doc.StorageKey(); key != "" && h.obj != nil {
		if err := h.obj.DeleteFile(r.Context(), h.cfg.BucketName, key); err != nil {
			log.Printf("http: stored file delete failed for %s: %v", doc.ID, err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadDocument streams the original uploaded file back to the
// caller. Documents ingested without object storage have no stored copy.
func (h *DocumentHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	id := chi.URLParam(r, "id")

	doc, err := h.db.GetDocumentByID(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	key := doc.StorageKey()
	if key == "" || h.obj == nil {
		http.Error(w, "no stored file for this document", http.StatusNotFound)
		return
	}

	rc, err := h.obj.GetObjectReader(r.Context(), h.cfg.BucketName, key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(key)+"\"")
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("http: download stream failed for %s: %v", doc.ID, err)
	}
}

func (h *DocumentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	id := chi.URLParam(r, "id")

	job, err := h.db.GetIngestionJob(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
