// Package api wires the HTTP surface of the download service.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ytsnap/ytsnap/internal/api/handler"
	mw "github.com/ytsnap/ytsnap/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	downloadHandler *handler.DownloadHandler,
	historyHandler *handler.HistoryHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Post("/downloads", downloadHandler.Submit)
		r.Get("/downloads", downloadHandler.List)
		r.Get("/downloads/{runID}", downloadHandler.Get)
		r.Delete("/downloads/{runID}", downloadHandler.Cancel)

		r.Get("/history", historyHandler.List)
	})

	return r
}
