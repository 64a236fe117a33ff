package handlers

import (
	"net/http"

	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
)

// AdminTokenHeader authenticates operator endpoints.
const AdminTokenHeader = "X-Admin-Token"

// BreakerAdmin exposes breaker state to operators.
type BreakerAdmin interface {
	Snapshot() []breaker.Snapshot
	Reset(name string) error
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	breakers BreakerAdmin
	token    string
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(breakers BreakerAdmin, token string) *AdminHandler {
	return &AdminHandler{
		breakers: breakers,
		token:    token,
	}
}

// ListBreakers handles GET /admin/breakers
func (h *AdminHandler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	if !secretMatches(h.token, r.Header.Get(AdminTokenHeader)) {
		respondWithError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": h.breakers.Snapshot(),
	})
}

// ResetBreaker handles POST /admin/breakers/{operation}/reset
func (h *AdminHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	if !secretMatches(h.token, r.Header.Get(AdminTokenHeader)) {
		respondWithError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}

	operation := r.PathValue("operation")
	if err := h.breakers.Reset(operation); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	observabilityLog(r).Info().Str("operation", operation).Msg("circuit breaker reset by operator")
	respondWithJSON(w, http.StatusOK, map[string]string{
		"operation": operation,
		"state":     breaker.StateClosed.String(),
	})
}
