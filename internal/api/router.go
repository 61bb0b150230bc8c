// Package api assembles the HTTP router for the notebook-saver service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ddegner/notebook-saver-sub001/internal/api/handlers"
	"github.com/ddegner/notebook-saver-sub001/internal/api/middleware"
	"github.com/ddegner/notebook-saver-sub001/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-Id", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract", h.ExtractText)

		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.ListModels)
			r.Post("/refresh", h.RefreshModels)
		})

		r.Route("/handoff", func(r chi.Router) {
			r.Post("/", h.SubmitHandoff)
			r.Post("/drain", h.DrainHandoff)
			r.Get("/pending", h.PendingHandoffs)
		})

		r.Route("/lifecycle", func(r chi.Router) {
			r.Post("/active", h.Activate)
			r.Post("/inactive", h.Deactivate)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "notebook-saver",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "notebook-saver",
		})
	}
}
