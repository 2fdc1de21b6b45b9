// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wrapparr/wrapparr/internal/logging"
	syncpkg "github.com/wrapparr/wrapparr/internal/sync"
)

// SyncUser imports one user's watch history, streaming progress lines.
//
//	POST /api/v1/sync?user_id=1&from=2026-01-01&to=2026-06-30&force=1
//
// The range defaults to the current calendar year up to today.
func (h *Handler) SyncUser(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt(r, "user_id", 0)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_user", "user_id is required and must be a positive integer", err)
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

	start, end := h.currentYearRange()
	if from != nil {
		start = *from
	}
	if to != nil {
		end = *to
	}

	logging.Ctx(r.Context()).Info().
		Int("user_id", userID).
		Time("from", start).
		Time("to", end).
		Msg("History sync requested")

	stream := newLineStreamer(w, "")
	result, err := h.engine.SyncUserHistory(r.Context(), userID, start, end, queryBool(r, "force"), stream.WriteLine)
	if err != nil {
		writeSyncError(stream, err)
		return
	}
	stream.WriteLine(fmt.Sprintf("DONE: Synced %d days, %d entries.", result.DaysImported, result.EventsImported))
}

// writeSyncError reports a sync failure on the stream in the error
// taxonomy's terms. The HTTP status is already committed at this point.
func writeSyncError(stream *lineStreamer, err error) {
	switch {
	case errors.Is(err, syncpkg.ErrConfigurationMissing):
		stream.WriteLine("ERROR: Tautulli connection is not configured.")
	case errors.Is(err, syncpkg.ErrCancelled):
		stream.WriteLine("INFO: Sync cancelled.")
	default:
		stream.WriteLine("ERROR: " + err.Error())
	}
}
