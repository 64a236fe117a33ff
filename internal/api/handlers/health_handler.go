package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStates lists breaker snapshots.
type BreakerStates interface {
	Snapshot() []breaker.Snapshot
}

// HealthHandler reports dependency health
type HealthHandler struct {
	checks   map[string]Pinger
	breakers BreakerStates
	timeout  time.Duration
}

// NewHealthHandler creates a health handler. Nil pingers are skipped so optional
// dependencies can be passed straight through.
func NewHealthHandler(checks map[string]Pinger, breakers BreakerStates) *HealthHandler {
	filtered := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthHandler{
		checks:   filtered,
		breakers: breakers,
		timeout:  2 * time.Second,
	}
}

// Health handles GET /health. Dependencies failing makes the service unhealthy;
// an open breaker only degrades it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			deps[name] = "down"
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			observabilityLog(r).Warn().Err(err).Str("dependency", name).Msg("health check failed")
			continue
		}
		deps[name] = "up"
	}

	breakers := map[string]string{}
	if h.breakers != nil {
		for _, snap := range h.breakers.Snapshot() {
			breakers[snap.Name] = snap.State
			if snap.State != breaker.StateClosed.String() && status == "healthy" {
				status = "degraded"
			}
		}
	}

	respondWithJSON(w, code, map[string]interface{}{
		"status":       status,
		"dependencies": deps,
		"breakers":     breakers,
		"time":         time.Now().UTC(),
	})
}

func observabilityLog(r *http.Request) *zerolog.Logger {
	return observability.LoggerFromContext(r.Context())
}
