// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCheckpoint reports whether a (user, day) pair has a completed
// checkpoint. Days without a row return (false, nil).
func (db *DB) GetCheckpoint(ctx context.Context, userID int, day time.Time) (bool, error) {
	var completed bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT completed FROM sync_checkpoints WHERE user_id = ? AND day = ?`,
		userID, day).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	return completed, nil
}

// CompletedDays returns the set of days in [start, end) that one user
// has completed checkpoints for, keyed by YYYY-MM-DD.
func (db *DB) CompletedDays(ctx context.Context, userID int, start, end time.Time) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT day FROM sync_checkpoints WHERE user_id = ? AND day >= ? AND day < ? AND completed`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed days: %w", err)
	}
	defer closeRows(rows)

	days := make(map[string]bool)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days[day.Format("2006-01-02")] = true
	}
	return days, rows.Err()
}

// UpsertCheckpoint marks a (user, day) pair as completed.
func (db *DB) UpsertCheckpoint(ctx context.Context, userID int, day time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_checkpoints (user_id, day, completed) VALUES (?, ?, true)
		 ON CONFLICT (user_id, day) DO UPDATE SET completed = true, created_at = now()`,
		userID, day)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

// DeleteCheckpoints drops one user's checkpoints in [start, end),
// forcing the next sync to re-fetch those days.
func (db *DB) DeleteCheckpoints(ctx context.Context, userID int, start, end time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_checkpoints WHERE user_id = ? AND day >= ? AND day < ?`,
		userID, start, end)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

// DeleteCheckpointsAllUsers drops every user's checkpoints in
// [start, end). Used by a forced global sync.
func (db *DB) DeleteCheckpointsAllUsers(ctx context.Context, start, end time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_checkpoints WHERE day >= ? AND day < ?`,
		start, end)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

// ReplaceDayCheckpoints atomically replaces all checkpoints for one day
// with completed rows for the given users. Global sync calls this after
// writing a day's events so every user whose history appeared that day
// is marked in one pass.
func (db *DB) ReplaceDayCheckpoints(ctx context.Context, day time.Time, userIDs []int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_checkpoints WHERE day = ?`, day); err != nil {
		return fmt.Errorf("failed to clear day checkpoints: %w", err)
	}

	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_checkpoints (user_id, day, completed) VALUES (?, ?, true)`,
			id, day); err != nil {
			return fmt.Errorf("failed to insert checkpoint for user %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint replacement: %w", err)
	}
	return nil
}

// GlobalCompletedDays returns the days in [start, end) where at least
// one completed checkpoint exists, keyed by YYYY-MM-DD. Global sync
// treats such days as done.
func (db *DB) GlobalCompletedDays(ctx context.Context, start, end time.Time) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT day FROM sync_checkpoints WHERE day >= ? AND day < ? AND completed`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed days: %w", err)
	}
	defer closeRows(rows)

	days := make(map[string]bool)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days[day.Format("2006-01-02")] = true
	}
	return days, rows.Err()
}
