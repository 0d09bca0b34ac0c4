package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Rate limiter for DELETE operations: burst of 20, refill 1 per 500ms
	deleteRateLimiter := NewRateLimiter(20, 500*time.Millisecond)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Respondent routes (no auth)
		r.Get("/health", h.Health)
		r.Post("/render", h.Render)
		r.Get("/render/{formID}/{sessionID}", h.RenderPersisted)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Post("/answers", h.SubmitAnswer)
				r.Post("/advance", h.Advance)
				r.Post("/complete", h.Complete)
				r.Get("/responses", h.Responses)
			})
		})

		// Admin routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Post("/forms", h.ImportForm)
			r.Get("/forms", h.ListForms)
			r.Get("/forms/{formID}", h.GetForm)
			// DELETE cascades to sessions and answers, so it is throttled
			r.With(deleteRateLimiter.Middleware).Delete("/forms/{formID}", h.DeleteForm)
			r.Get("/snapshot", h.Snapshot)
		})
	})

	return r
}
