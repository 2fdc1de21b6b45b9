// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
//
// Tables:
//   - watch_events: imported playback history, one row per grouped play
//   - sync_checkpoints: (user, day) pairs whose history is fully imported
//   - media_enrichment: external ratings per distinct title, shared across users
//   - users: Plex users plus their serialized stats cache
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS watch_events_id_seq;`,

		`CREATE TABLE IF NOT EXISTS watch_events (
			id BIGINT PRIMARY KEY DEFAULT nextval('watch_events_id_seq'),
			user_id INTEGER NOT NULL,
			tautulli_id BIGINT NOT NULL,
			date TIMESTAMP NOT NULL,
			duration INTEGER NOT NULL DEFAULT 0,
			percent_complete INTEGER NOT NULL DEFAULT 0,
			media_type TEXT NOT NULL,
			year INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			parent_title TEXT NOT NULL DEFAULT '',
			grandparent_title TEXT NOT NULL DEFAULT '',
			full_title TEXT NOT NULL DEFAULT '',
			rating_key TEXT NOT NULL DEFAULT '',
			parent_rating_key TEXT NOT NULL DEFAULT '',
			grandparent_rating_key TEXT NOT NULL DEFAULT '',
			actors TEXT NOT NULL DEFAULT '',
			genres TEXT NOT NULL DEFAULT '',
			rating DOUBLE NOT NULL DEFAULT 0,
			file_size BIGINT NOT NULL DEFAULT 0,
			transcode_decision TEXT NOT NULL DEFAULT '',
			player TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS sync_checkpoints (
			user_id INTEGER NOT NULL,
			day DATE NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, day)
		);`,

		`CREATE TABLE IF NOT EXISTS media_enrichment (
			rating_key TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			kind TEXT NOT NULL,
			year INTEGER NOT NULL DEFAULT 0,
			imdb_id TEXT NOT NULL DEFAULT '',
			tmdb_id TEXT NOT NULL DEFAULT '',
			rating_imdb DOUBLE,
			rating_rt_critic INTEGER,
			rating_tmdb DOUBLE,
			unified_score INTEGER,
			poster TEXT NOT NULL DEFAULT '',
			raw_response TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			thumb TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT true,
			stats_cache TEXT,
			stats_generated_at TIMESTAMP
		);`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// createIndexes creates indexes for the common query patterns: per-user
// day replacement during sync, period scans during stats generation,
// and enrichment candidate lookups.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_watch_events_user_date ON watch_events(user_id, date);`,
		`CREATE INDEX IF NOT EXISTS idx_watch_events_date ON watch_events(date);`,
		`CREATE INDEX IF NOT EXISTS idx_watch_events_rating_key ON watch_events(rating_key);`,
		`CREATE INDEX IF NOT EXISTS idx_watch_events_grandparent ON watch_events(grandparent_rating_key);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_checkpoints_day ON sync_checkpoints(day);`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
