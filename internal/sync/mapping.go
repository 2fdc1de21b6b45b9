// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package sync

import (
	"strconv"
	"strings"
	"time"

	"github.com/wrapparr/wrapparr/internal/models"
	"github.com/wrapparr/wrapparr/internal/tautulli"
)

// dayOf truncates a time to midnight in its own location.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// sameDay reports whether ts falls on the calendar day `day`,
// evaluated in day's location.
func sameDay(ts, day time.Time) bool {
	ts = ts.In(day.Location())
	return ts.Year() == day.Year() && ts.YearDay() == day.YearDay()
}

// withinAdjacentDays reports whether ts falls within `window` calendar
// days of `day`. Used to suppress out-of-day warnings for timezone
// boundary noise from the upstream API.
func withinAdjacentDays(ts, day time.Time, window int) bool {
	ts = ts.In(day.Location())
	tsDay := dayOf(ts)
	diff := tsDay.Sub(dayOf(day)) / (24 * time.Hour)
	if diff < 0 {
		diff = -diff
	}
	return int(diff) <= window
}

// ratingKeyString renders a numeric rating key, with 0 as "unknown".
func ratingKeyString(key tautulli.FlexInt) string {
	if key == 0 {
		return ""
	}
	return strconv.FormatInt(int64(key), 10)
}

// clampPercent bounds a percent-complete value to [0, 100].
func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// mapEvent converts one upstream history record, plus whatever metadata
// was resolved for its item, into a WatchEvent. Missing metadata leaves
// the enrichment fields at their unknown zero values.
func mapEvent(rec *tautulli.HistoryRecord, meta *tautulli.MetadataData) models.WatchEvent {
	tautulliID := rec.RowID
	if tautulliID == 0 {
		tautulliID = rec.ID
	}

	userID := 0
	if rec.UserID != nil {
		userID = *rec.UserID
	}

	duration := int(rec.Duration)
	if duration < 0 {
		duration = 0
	}

	e := models.WatchEvent{
		UserID:               userID,
		TautulliID:           tautulliID,
		Date:                 time.Unix(rec.Date, 0),
		Duration:             duration,
		PercentComplete:      clampPercent(int(rec.PercentComplete)),
		MediaType:            rec.MediaType,
		Year:                 int(rec.Year),
		Title:                rec.Title,
		FullTitle:            rec.FullTitle,
		RatingKey:            ratingKeyString(rec.RatingKey),
		ParentRatingKey:      ratingKeyString(rec.ParentRatingKey),
		GrandparentRatingKey: ratingKeyString(rec.GrandparentRatingKey),
		TranscodeDecision:    rec.TranscodeDecision,
		Player:               rec.Player,
	}
	if rec.ParentTitle != nil {
		e.ParentTitle = *rec.ParentTitle
	}
	if rec.GrandparentTitle != nil {
		e.GrandparentTitle = *rec.GrandparentTitle
	}

	if meta != nil {
		e.Actors = strings.Join(meta.Actors, ",")
		e.Genres = strings.Join(meta.Genres, ",")
		// Critic rating preferred, audience rating as fallback
		if meta.Rating != 0 {
			e.Rating = float64(meta.Rating)
		} else if meta.AudienceRating != 0 {
			e.Rating = float64(meta.AudienceRating)
		}
		e.FileSize = meta.FileSizeBytes()
	}

	return e
}
