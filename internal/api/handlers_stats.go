// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/wrapparr/wrapparr/internal/stats"
)

// Stats returns the wrapped statistics document for a user.
//
//	GET /api/v1/stats?user_id=1&year=2026&from=2026-01-01&to=2026-06-30&refresh=1
//
// year defaults to the current calendar year; from/to override the
// year-derived period. refresh bypasses the cached document.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt(r, "user_id", 0)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_user", "user_id is required and must be a positive integer", err)
		return
	}

	year, err := queryInt(r, "year", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_year", "year must be an integer", err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD", err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD", err)
		return
	}

	doc, err := h.stats.GetStats(r.Context(), userID, stats.Options{
		Year:         year,
		From:         from,
		To:           to,
		ForceRefresh: queryBool(r, "refresh"),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_failed", "Failed to compute statistics", err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}
