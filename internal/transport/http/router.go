package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netban/internal/platform/middleware"
)

// NewRouter wires the admin API. Mutating and read routes sit behind bearer
// auth when a validator is configured; health and metrics stay open for
// probes and scrapers.
func NewRouter(h *Handler, validator middleware.Validator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if validator != nil {
			r.Use(middleware.RequireAuth(validator, logger))
		}
		r.Post("/punishments", h.handleIssue)
		r.Post("/punishments/lift", h.handleLift)
		r.Get("/punishments/{subject}", h.handleCheck)
		r.Get("/checks/join/{subject}", h.handleJoinCheck)
	})

	return r
}
