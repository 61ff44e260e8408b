package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/openmiclive/lineup/pkg/logger"
)

// NewRouter wires the admin API. Everything except the health check sits
// behind staff authentication.
func NewRouter(h *Handler, jwtSecret string, l logger.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.HTTPLogger(l))

	r.Get("/healthz", h.HealthCheck)

	r.Route("/api/v1/events/{eventID}", func(r chi.Router) {
		r.Use(Auth(jwtSecret))

		r.Get("/queue", h.GetQueue)
		r.Post("/advance", h.Advance)
		r.Post("/refresh", h.Refresh)
		r.Post("/polling/pause", h.PausePolling)
		r.Post("/polling/resume", h.ResumePolling)

		r.Route("/signups/{signupID}", func(r chi.Router) {
			r.Post("/promote", h.Promote)
			r.Post("/start", h.StartTurn)
			r.Post("/complete", h.Complete)
			r.Post("/skip", h.Skip)
			r.Post("/cancel", h.Cancel)
			r.Put("/reorder", h.Reorder)
			r.Post("/prioritize", h.Prioritize)
			r.Delete("/", h.Delete)
		})
	})

	return r
}
