/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the storefront

ROUTE GROUPS:
  /api/events/*    inbound events from the order subsystem
  /api/accounts/*  wallet operations keyed by account
  /api/admin/*     sweep audit trail
  /metrics         Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware here; the ledger sits behind the platform
  gateway, which owns sessions and service auth.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Inbound events
		r.Route("/events", func(r chi.Router) {
			r.Post("/order-completed", h.OrderCompleted)
		})

		// Wallet operations
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Post("/accrue", h.Accrue)
			r.Post("/spend", h.Spend)
			r.Get("/balance", h.GetBalance)
			r.Get("/history", h.GetHistory)
			r.Post("/expire", h.Expire)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/expiration-runs", h.ListExpirationRuns)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
