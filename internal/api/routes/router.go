package routes

import (
	"net/http"

	"github.com/asaCurry/prescriber-point-sub001/internal/api/handlers"
	"github.com/asaCurry/prescriber-point-sub001/internal/api/middleware"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	drugHandler       *handlers.DrugHandler
	enrichmentHandler *handlers.EnrichmentHandler
	webhookHandler    *handlers.WebhookHandler
	adminHandler      *handlers.AdminHandler
	healthHandler     *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	drugHandler *handlers.DrugHandler,
	enrichmentHandler *handlers.EnrichmentHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		drugHandler:       drugHandler,
		enrichmentHandler: enrichmentHandler,
		webhookHandler:    webhookHandler,
		adminHandler:      adminHandler,
		healthHandler:     healthHandler,
		allowedOrigins:    allowedOrigins,
		metrics:           metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Drug pages
	r.mux.HandleFunc("GET /drugs/{slug}", r.drugHandler.GetDrug)
	r.mux.HandleFunc("GET /drugs/{id}/related", r.drugHandler.GetRelated)
	r.mux.HandleFunc("POST /drugs/fetch-and-cache/{externalId}", r.drugHandler.FetchAndCache)

	r.mux.HandleFunc("POST /enrichment/batch", r.enrichmentHandler.Batch)

	if r.webhookHandler != nil {
		r.mux.HandleFunc("POST /webhooks/invalidate", r.webhookHandler.Invalidate)
	}

	if r.adminHandler != nil {
		r.mux.HandleFunc("GET /admin/breakers", r.adminHandler.ListBreakers)
		r.mux.HandleFunc("POST /admin/breakers/{operation}/reset", r.adminHandler.ResetBreaker)
	}

	// Observability sits directly on the mux so it can read the matched pattern.
	var handler http.Handler = r.mux
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ResponseOptimization(handler)

	// CORS is outermost so preflight never reaches the handlers.
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
