package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	middleware "github.com/quarry-ai/quarry/internal/api/middlewares"
	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
)

type FeedbackHandler struct {
	db core.DbClient
}

func NewFeedbackHandler(db core.DbClient) *FeedbackHandler {
	return &FeedbackHandler{db: db}
}

type feedbackRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
	Rating     int    `json:"rating"` // +1 or -1
}

// SubmitFeedback stores one thumbs-up/down rating for a past query.
func (h *FeedbackHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, fmt.Errorf("%w: missing query", core.ErrValidation))
		return
	}
	if req.Rating != 1 && req.Rating != -1 {
		writeError(w, fmt.Errorf("%w: rating must be +1 or -1", core.ErrValidation))
		return
	}

	fb := &models.Feedback{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Query:      req.Query,
		DocumentID: req.DocumentID,
		Rating:     req.Rating,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.db.InsertFeedback(r.Context(), fb); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}
