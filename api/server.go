/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/loans/*    Loan servicing operations and figures

SECURITY NOTE:
  No authentication middleware. Deployments front this with their own
  gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.CreateLoan)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLoan)
				r.Put("/terms", h.UpdateTerms)
				r.Get("/schedule", h.GetSchedule)
				r.Get("/transactions", h.GetTransactions)
				r.Delete("/transactions/{txID}", h.DeleteTransaction)
				r.Post("/repayments", h.RecordRepayment)
				r.Post("/advances", h.RecordAdvance)
				r.Post("/regenerate", h.Regenerate)

				r.Get("/statement", h.GetStatement)
				r.Get("/settlement-quote", h.GetSettlementQuote)
				r.Get("/reconciliation", h.GetReconciliation)
			})
		})
	})

	return r
}
