/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/cases/*      Claim, finalize, lookup, listing
  /api/session      The analyst's active case
  /api/reports/*    Dashboards
  /healthz          Liveness

SECURITY NOTE:
  No authentication middleware. The analyst is whoever the X-Analyst
  header says.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/ccbdesk/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", AnalystHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", h.ListCases)
			r.Post("/claim", h.ClaimCase)
			r.Post("/finalize", h.FinalizeCase)
			r.Get("/{id}", h.GetCase)
		})

		r.Get("/session", h.GetSession)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/status", h.StatusReport)
			r.Get("/analysts", h.AnalystReport)
			r.Get("/months", h.MonthsReport)
			r.Get("/months/{month}", h.MonthReport)
			r.Get("/period", h.PeriodReport)
		})
	})

	return r
}
