// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api exposes the HTTP surface: stats retrieval, sync and
// enrichment triggers with streamed progress, the user directory, and
// health plus Prometheus endpoints. All endpoints sit behind a single
// shared-token gate.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/database"
	"github.com/wrapparr/wrapparr/internal/enrich"
	"github.com/wrapparr/wrapparr/internal/stats"
	syncpkg "github.com/wrapparr/wrapparr/internal/sync"
)

// Pinger is the connectivity check the readiness probe uses.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler carries the dependencies of all API endpoints.
type Handler struct {
	db       *database.DB
	client   Pinger
	engine   *syncpkg.Engine
	pipeline *enrich.Pipeline
	stats    *stats.Engine
	cfg      *config.Config

	startTime time.Time
	now       func() time.Time
}

// NewHandler creates the API handler. client may be nil when no
// Tautulli connection is configured; sync endpoints then report the
// configuration error.
func NewHandler(db *database.DB, client Pinger, engine *syncpkg.Engine, pipeline *enrich.Pipeline, statsEngine *stats.Engine, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		client:    client,
		engine:    engine,
		pipeline:  pipeline,
		stats:     statsEngine,
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "up",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HealthReady reports readiness: the database must answer, and when a
// Tautulli connection is configured it must answer too.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	components := map[string]string{"database": "up"}
	ready := true

	if err := h.db.Ping(ctx); err != nil {
		components["database"] = "down"
		ready = false
	}

	if h.client != nil {
		components["tautulli"] = "up"
		if err := h.client.Ping(ctx); err != nil {
			components["tautulli"] = "down"
			ready = false
		}
	} else {
		components["tautulli"] = "unconfigured"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{
		"ready":      ready,
		"components": components,
	})
}

// Users returns the imported user directory.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "users_failed", "Failed to list users", err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// queryInt parses an integer query parameter, returning def when the
// parameter is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// queryBool treats "1" and "true" as true.
func queryBool(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "1" || v == "true"
}

// queryDate parses a YYYY-MM-DD query parameter, nil when absent.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// currentYearRange returns the inclusive day range of the current
// calendar year, capped at today.
func (h *Handler) currentYearRange() (time.Time, time.Time) {
	now := h.now()
	return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), now
}
