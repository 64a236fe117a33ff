package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

const (
	defaultRelatedLimit = 10
	maxRelatedLimit     = 50
)

// DrugService is the catalog surface used by the drug endpoints.
type DrugService interface {
	GetBySlug(ctx context.Context, slug string) (*entities.DrugRecord, error)
	FetchAndCache(ctx context.Context, externalID string) (*entities.DrugRecord, error)
	GetRelated(ctx context.Context, drugID string, limit int) ([]*entities.RelatedDrugLink, error)
}

// Enricher produces servable content for a drug.
type Enricher interface {
	Enrich(ctx context.Context, drugID string, opts services.EnrichOptions) (*entities.EnrichmentResult, error)
}

// DrugHandler handles drug page HTTP requests
type DrugHandler struct {
	drugs    DrugService
	enricher Enricher
}

// NewDrugHandler creates a new drug handler
func NewDrugHandler(drugs DrugService, enricher Enricher) *DrugHandler {
	return &DrugHandler{
		drugs:    drugs,
		enricher: enricher,
	}
}

// GetDrug handles GET /drugs/{slug}. With waitForEnrichment=true the request
// blocks until generation finishes; otherwise it returns what is servable now
// and generation continues in the background.
func (h *DrugHandler) GetDrug(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		respondWithError(w, http.StatusBadRequest, "slug is required")
		return
	}

	drug, err := h.drugs.GetBySlug(r.Context(), slug)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.enricher.Enrich(r.Context(), drug.ID, services.EnrichOptions{
		WaitForCompletion: boolParam(r, "waitForEnrichment"),
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetRelated handles GET /drugs/{id}/related
func (h *DrugHandler) GetRelated(w http.ResponseWriter, r *http.Request) {
	drugID := r.PathValue("id")
	if drugID == "" {
		respondWithError(w, http.StatusBadRequest, "drug ID is required")
		return
	}

	limit := defaultRelatedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxRelatedLimit)
	}

	links, err := h.drugs.GetRelated(r.Context(), drugID, limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if links == nil {
		links = []*entities.RelatedDrugLink{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"related": links,
		"count":   len(links),
	})
}

// FetchAndCache handles POST /drugs/fetch-and-cache/{externalId}. The label is
// fetched and stored synchronously; enrichment follows the same
// waitForEnrichment contract as GetDrug.
func (h *DrugHandler) FetchAndCache(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("externalId")
	if externalID == "" {
		respondWithError(w, http.StatusBadRequest, "external ID is required")
		return
	}

	drug, err := h.drugs.FetchAndCache(r.Context(), externalID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.enricher.Enrich(r.Context(), drug.ID, services.EnrichOptions{
		WaitForCompletion: boolParam(r, "waitForEnrichment"),
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}
