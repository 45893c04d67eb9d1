package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-ai/quarry/internal/answer"
	middleware "github.com/quarry-ai/quarry/internal/api/middlewares"
	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
)

type ChatHandler struct {
	db        core.DbClient
	generator *answer.Generator
}

func NewChatHandler(db core.DbClient, g *answer.Generator) *ChatHandler {
	return &ChatHandler{db: db, generator: g}
}

type queryRequest struct {
	Query               string   `json:"query"`
	DocumentIDs         []string `json:"document_ids,omitempty"`
	FallbackLatest      bool     `json:"fallback_latest,omitempty"`
	Limit               int      `json:"limit,omitempty"`
	VectorWeight        float64  `json:"vector_weight,omitempty"`
	KeywordWeight       float64  `json:"keyword_weight,omitempty"`
	SimilarityThreshold float64  `json:"similarity_threshold,omitempty"`
	Rerank              bool     `json:"rerank,omitempty"`
	Diversify           bool     `json:"diversify,omitempty"`
}

// QueryDocuments answers a question over the tenant's corpus.
func (h *ChatHandler) QueryDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	started := time.Now()
	ans, err := h.generator.Query(r.Context(), tenantID, req.Query, answer.QueryOptions{
		DocumentIDs:         req.DocumentIDs,
		FallbackLatest:      req.FallbackLatest,
		Limit:               req.Limit,
		VectorWeight:        req.VectorWeight,
		KeywordWeight:       req.KeywordWeight,
		SimilarityThreshold: req.SimilarityThreshold,
		Rerank:              req.Rerank,
		Diversify:           req.Diversify,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.recordLatency(tenantID, time.Since(started))

	writeJSON(w, http.StatusOK, ans)
}

// recordLatency is best-effort and never blocks the response path.
func (h *ChatHandler) recordLatency(tenantID string, d time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := h.db.InsertMetric(ctx, &models.MetricEvent{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Name:      "query_latency_ms",
			Value:     float64(d.Milliseconds()),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("http: latency metric write failed: %v", err)
		}
	}()
}
