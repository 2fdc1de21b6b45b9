// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"net/http"

	"github.com/wrapparr/wrapparr/internal/logging"
)

// AdminSync runs the global orchestrated sync for the current year,
// streaming "[SYNC] " prefixed progress lines.
//
//	POST /api/v1/admin/sync?force=1
func (h *Handler) AdminSync(w http.ResponseWriter, r *http.Request) {
	start, end := h.currentYearRange()
	logging.Ctx(r.Context()).Info().Time("from", start).Time("to", end).Msg("Global sync requested")

	stream := newLineStreamer(w, "[SYNC] ")

	if queryBool(r, "force") {
		if err := h.db.DeleteCheckpointsAllUsers(r.Context(), start, end.AddDate(0, 0, 1)); err != nil {
			stream.WriteLine("ERROR: Failed to drop checkpoints: " + err.Error())
			return
		}
		stream.WriteLine("INFO: Force refresh, dropped all checkpoints in range.")
	}

	result, err := h.engine.SyncGlobalHistory(r.Context(), start, end, stream.WriteLine)
	if err != nil {
		writeSyncError(stream, err)
		return
	}
	stream.WriteLine(fmt.Sprintf("[ADMIN] Sync Complete. Synced %d days, %d entries.", result.DaysImported, result.EventsImported))
}

// AdminUsersSync imports the Tautulli user table.
//
//	POST /api/v1/admin/users/sync
func (h *Handler) AdminUsersSync(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.SyncUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "users_sync_failed", "Failed to sync users from Tautulli", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"usersSynced": count})
}

// AdminGenerate force-refreshes every user's statistics document,
// streaming per-user progress.
//
//	POST /api/v1/admin/generate
func (h *Handler) AdminGenerate(w http.ResponseWriter, r *http.Request) {
	stream := newLineStreamer(w, "")
	if err := h.stats.GenerateAll(r.Context(), stream.WriteLine); err != nil {
		stream.WriteLine("ERROR: " + err.Error())
	}
}

// AdminEnrich runs the metadata enrichment pipeline over the current
// year's distinct titles, streaming per-item progress.
//
//	POST /api/v1/admin/enrich
func (h *Handler) AdminEnrich(w http.ResponseWriter, r *http.Request) {
	start, end := h.currentYearRange()

	stream := newLineStreamer(w, "")
	result, err := h.pipeline.Run(r.Context(), start, end.AddDate(0, 0, 1), stream.WriteLine)
	if err != nil {
		stream.WriteLine("ERROR: " + err.Error())
		return
	}
	stream.WriteLine(fmt.Sprintf("INFO: Processed %d items, %d scored, %d failed.", result.Processed, result.Scored, result.Failed))
}
