// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/logging"
)

// NewRouter wires all routes. Health and metrics sit outside the token
// gate; everything under /api/v1 requires it.
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Security.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if !cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow))
		}
		r.Use(prometheusMetrics)
		r.Use(authenticate(&cfg.Security))

		r.Get("/stats", h.Stats)
		r.Get("/users", h.Users)
		r.Post("/sync", h.SyncUser)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sync", h.AdminSync)
			r.Post("/users/sync", h.AdminUsersSync)
			r.Post("/generate", h.AdminGenerate)
			r.Post("/enrich", h.AdminEnrich)
		})
	})

	return r
}

// requestID tags every request with an X-Request-ID for log
// correlation, honoring an id supplied by a proxy. The id also rides
// the request context so logging.Ctx picks it up downstream.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}
