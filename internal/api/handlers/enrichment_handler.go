package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
)

// BatchEnricher runs enrichment for many drugs at once.
type BatchEnricher interface {
	Run(ctx context.Context, drugIDs []string, opts services.EnrichOptions) (*services.BatchResult, error)
	Start(ctx context.Context, drugIDs []string, forceRefresh bool) ([]string, error)
}

// EnrichmentHandler handles enrichment HTTP requests
type EnrichmentHandler struct {
	batch BatchEnricher
}

// NewEnrichmentHandler creates a new enrichment handler
func NewEnrichmentHandler(batch BatchEnricher) *EnrichmentHandler {
	return &EnrichmentHandler{batch: batch}
}

type batchEnrichmentRequest struct {
	DrugIDs           []string `json:"drugIds"`
	WaitForCompletion bool     `json:"waitForCompletion"`
	ForceRefresh      bool     `json:"forceRefresh"`
}

// Batch handles POST /enrichment/batch
func (h *EnrichmentHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchEnrichmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.WaitForCompletion {
		result, err := h.batch.Run(r.Context(), req.DrugIDs, services.EnrichOptions{
			WaitForCompletion: true,
			ForceRefresh:      req.ForceRefresh,
		})
		if err != nil {
			respondWithAppError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, result)
		return
	}

	accepted, err := h.batch.Start(r.Context(), req.DrugIDs, req.ForceRefresh)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": accepted,
		"count":    len(accepted),
	})
}
