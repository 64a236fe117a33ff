package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
)

// WebhookSecretHeader carries the shared secret on inbound webhooks.
const WebhookSecretHeader = "X-Webhook-Secret"

// Invalidator marks cached source data stale.
type Invalidator interface {
	Invalidate(ctx context.Context, scope, drugID string) (*services.InvalidationResult, error)
}

// WebhookHandler handles upstream change notifications
type WebhookHandler struct {
	invalidator Invalidator
	secret      string
}

// NewWebhookHandler creates a new webhook handler. An empty secret rejects every call.
func NewWebhookHandler(invalidator Invalidator, secret string) *WebhookHandler {
	return &WebhookHandler{
		invalidator: invalidator,
		secret:      secret,
	}
}

type invalidateRequest struct {
	Scope  string `json:"scope"`
	DrugID string `json:"drugId"`
}

// Invalidate handles POST /webhooks/invalidate
func (h *WebhookHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if !secretMatches(h.secret, r.Header.Get(WebhookSecretHeader)) {
		respondWithError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.invalidator.Invalidate(r.Context(), req.Scope, req.DrugID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func secretMatches(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
