// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wrapparr/wrapparr/internal/models"
)

// UpsertUser inserts or updates one user record. The stats cache is
// untouched so a user-table refresh does not invalidate computed stats.
func (db *DB) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, thumb, is_active) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			thumb = excluded.thumb,
			is_active = excluded.is_active`,
		u.ID, u.Username, u.Email, u.Thumb, u.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
	}
	return nil
}

// GetUser returns one user by id, or (nil, nil) when unknown.
func (db *DB) GetUser(ctx context.Context, id int) (*models.User, error) {
	var u models.User
	var generatedAt sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, thumb, is_active, stats_generated_at FROM users WHERE id = ?`,
		id).Scan(&u.ID, &u.Username, &u.Email, &u.Thumb, &u.IsActive, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	if generatedAt.Valid {
		u.StatsGeneratedAt = &generatedAt.Time
	}
	return &u, nil
}

// ListUsers returns all known users ordered by id.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, email, thumb, is_active, stats_generated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		var u models.User
		var generatedAt sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Thumb, &u.IsActive, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if generatedAt.Valid {
			u.StatsGeneratedAt = &generatedAt.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ActiveUserIDs returns the ids of users marked active, ordered by id.
func (db *DB) ActiveUserIDs(ctx context.Context) ([]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM users WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
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

// StatsCache returns a user's cached stats document, or ("", nil) when
// no cache exists.
func (db *DB) StatsCache(ctx context.Context, userID int) (string, error) {
	var cache sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT stats_cache FROM users WHERE id = ?`, userID).Scan(&cache)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query stats cache: %w", err)
	}
	if !cache.Valid {
		return "", nil
	}
	return cache.String, nil
}

// SaveStatsCache stores a user's serialized stats document. The row is
// created if the user is not yet known, which happens when stats are
// requested before the user table has been synced.
func (db *DB) SaveStatsCache(ctx context.Context, userID int, doc string) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, stats_cache, stats_generated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			stats_cache = excluded.stats_cache,
			stats_generated_at = excluded.stats_generated_at`,
		userID, doc, now)
	if err != nil {
		return fmt.Errorf("failed to save stats cache: %w", err)
	}
	return nil
}

// ClearStatsCache drops the cached stats for the given users. An empty
// slice clears every user's cache, which global sync uses after
// rewriting history.
func (db *DB) ClearStatsCache(ctx context.Context, userIDs []int) error {
	if len(userIDs) == 0 {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE users SET stats_cache = NULL, stats_generated_at = NULL`)
		if err != nil {
			return fmt.Errorf("failed to clear stats caches: %w", err)
		}
		return nil
	}

	for _, id := range userIDs {
		if _, err := db.conn.ExecContext(ctx,
			`UPDATE users SET stats_cache = NULL, stats_generated_at = NULL WHERE id = ?`,
			id); err != nil {
			return fmt.Errorf("failed to clear stats cache for user %d: %w", id, err)
		}
	}
	return nil
}
