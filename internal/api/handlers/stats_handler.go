package handlers

import (
	"net/http"
	"time"

	middleware "github.com/quarry-ai/quarry/internal/api/middlewares"
	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/embedcache"
	"github.com/quarry-ai/quarry/internal/retriever"
)

type StatsHandler struct {
	db        core.DbClient
	retriever *retriever.Retriever
	cache     *embedcache.CachedProvider // nil when embedding is disabled
}

func NewStatsHandler(db core.DbClient, r *retriever.Retriever, cache *embedcache.CachedProvider) *StatsHandler {
	return &StatsHandler{db: db, retriever: r, cache: cache}
}

type statsResponse struct {
	Retrieval    retriever.Stats   `json:"retrieval"`
	Cache        *embedcache.Stats `json:"embedding_cache,omitempty"`
	QueryLatency *latencyStats     `json:"query_latency,omitempty"`
}

type latencyStats struct {
	Count int     `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MaxMs float64 `json:"max_ms"`
}

// GetStats reports retriever hit counts, embedding cache behavior, and
// query latency over the last 24 hours.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	resp := statsResponse{Retrieval: h.retriever.Stats()}

	if h.cache != nil {
		cs := h.cache.Stats(r.Context())
		resp.Cache = &cs
	}

	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)
	events, err := h.db.QueryMetrics(r.Context(), tenantID, "query_latency_ms", since, until)
	if err == nil && len(events) > 0 {
		ls := &latencyStats{Count: len(events)}
		var sum float64
		for _, ev := range events {
			sum += ev.Value
			if ev.Value > ls.MaxMs {
				ls.MaxMs = ev.Value
			}
		}
		ls.AvgMs = sum / float64(len(events))
		resp.QueryLatency = ls
	}

	writeJSON(w, http.StatusOK, resp)
}
