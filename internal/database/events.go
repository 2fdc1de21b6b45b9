// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wrapparr/wrapparr/internal/models"
)

const watchEventColumns = `user_id, tautulli_id, date, duration, percent_complete, media_type, year,
	title, parent_title, grandparent_title, full_title,
	rating_key, parent_rating_key, grandparent_rating_key,
	actors, genres, rating, file_size, transcode_decision, player`

// ReplaceDayEvents atomically replaces one user's events for one
// calendar day: existing rows in [dayStart, dayEnd) are deleted and the
// given events inserted in a single transaction, so a re-sync can never
// duplicate a day or leave it half-written.
func (db *DB) ReplaceDayEvents(ctx context.Context, userID int, dayStart, dayEnd time.Time, events []models.WatchEvent) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM watch_events WHERE user_id = ? AND date >= ? AND date < ?`,
		userID, dayStart, dayEnd); err != nil {
		return fmt.Errorf("failed to delete day events: %w", err)
	}

	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit day replacement: %w", err)
	}
	return nil
}

// ReplaceDayEventsAllUsers is the global-sync variant: it replaces the
// day's events for every user at once, alongside the fetched records.
func (db *DB) ReplaceDayEventsAllUsers(ctx context.Context, dayStart, dayEnd time.Time, events []models.WatchEvent) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM watch_events WHERE date >= ? AND date < ?`,
		dayStart, dayEnd); err != nil {
		return fmt.Errorf("failed to delete day events: %w", err)
	}

	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit day replacement: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []models.WatchEvent) error {
	if len(events) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO watch_events (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		watchEventColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range events {
		e := &events[i]
		if _, err := stmt.ExecContext(ctx,
			e.UserID, e.TautulliID, e.Date, e.Duration, e.PercentComplete, e.MediaType, e.Year,
			e.Title, e.ParentTitle, e.GrandparentTitle, e.FullTitle,
			e.RatingKey, e.ParentRatingKey, e.GrandparentRatingKey,
			e.Actors, e.Genres, e.Rating, e.FileSize, e.TranscodeDecision, e.Player,
		); err != nil {
			return fmt.Errorf("failed to insert event (tautulli_id=%d): %w", e.TautulliID, err)
		}
	}
	return nil
}

// KeysWithMetadata reports which of the given rating keys already have
// at least one stored event carrying cast and genre data. Sync uses
// this to skip redundant upstream metadata fetches.
func (db *DB) KeysWithMetadata(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	const chunkSize = 500
	for i := 0; i < len(keys); i += chunkSize {
		end := i + chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[i:end]

		placeholders := ""
		args := make([]interface{}, len(chunk))
		for j, k := range chunk {
			if j > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args[j] = k
		}

		rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(
			`SELECT DISTINCT rating_key FROM watch_events
			 WHERE rating_key IN (%s) AND actors != '' AND genres != ''`, placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query enriched keys: %w", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				closeRows(rows)
				return nil, fmt.Errorf("failed to scan rating key: %w", err)
			}
			result[key] = true
		}
		err = rows.Err()
		closeRows(rows)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// EventsForPeriod returns one user's events in [start, end), ordered by
// playback date ascending. The ordering is load-bearing for the binge
// and pause passes downstream.
func (db *DB) EventsForPeriod(ctx context.Context, userID int, start, end time.Time) ([]models.WatchEvent, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, %s FROM watch_events WHERE user_id = ? AND date >= ? AND date < ? ORDER BY date ASC, id ASC`,
		watchEventColumns), userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer closeRows(rows)

	return scanEvents(rows)
}

// CountEventsForPeriod returns how many events one user has in [start, end).
func (db *DB) CountEventsForPeriod(ctx context.Context, userID int, start, end time.Time) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watch_events WHERE user_id = ? AND date >= ? AND date < ?`,
		userID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// EventUserIDs returns the distinct user ids that have at least one
// event in [start, end).
func (db *DB) EventUserIDs(ctx context.Context, start, end time.Time) ([]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM watch_events WHERE date >= ? AND date < ? ORDER BY user_id`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query event user ids: %w", err)
	}
	defer closeRows(rows)

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]models.WatchEvent, error) {
	var events []models.WatchEvent
	for rows.Next() {
		var e models.WatchEvent
		if err := rows.Scan(
			&e.ID,
			&e.UserID, &e.TautulliID, &e.Date, &e.Duration, &e.PercentComplete, &e.MediaType, &e.Year,
			&e.Title, &e.ParentTitle, &e.GrandparentTitle, &e.FullTitle,
			&e.RatingKey, &e.ParentRatingKey, &e.GrandparentRatingKey,
			&e.Actors, &e.Genres, &e.Rating, &e.FileSize, &e.TranscodeDecision, &e.Player,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
