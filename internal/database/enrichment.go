// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/wrapparr/wrapparr/internal/models"
)

// UpsertEnrichment inserts or replaces one enrichment record, keyed by
// rating key.
func (db *DB) UpsertEnrichment(ctx context.Context, e *models.MediaEnrichment) error {
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO media_enrichment
			(rating_key, title, kind, year, imdb_id, tmdb_id,
			 rating_imdb, rating_rt_critic, rating_tmdb, unified_score,
			 poster, raw_response, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (rating_key) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			year = excluded.year,
			imdb_id = excluded.imdb_id,
			tmdb_id = excluded.tmdb_id,
			rating_imdb = excluded.rating_imdb,
			rating_rt_critic = excluded.rating_rt_critic,
			rating_tmdb = excluded.rating_tmdb,
			unified_score = excluded.unified_score,
			poster = excluded.poster,
			raw_response = excluded.raw_response,
			updated_at = excluded.updated_at`,
		e.RatingKey, e.Title, e.Kind, e.Year, e.IMDbID, e.TMDBID,
		e.RatingIMDb, e.RatingRTCritic, e.RatingTMDB, e.UnifiedScore,
		e.Poster, e.RawResponse, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment for %s: %w", e.RatingKey, err)
	}
	return nil
}

// ScoredKeys returns the set of rating keys that already carry a
// unified score. The enrichment pipeline skips these.
func (db *DB) ScoredKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT rating_key FROM media_enrichment WHERE unified_score IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored keys: %w", err)
	}
	defer closeRows(rows)

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan rating key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

// EnrichmentByKeys returns enrichment records for the given rating
// keys, keyed by rating key. Missing keys are simply absent.
func (db *DB) EnrichmentByKeys(ctx context.Context, keys []string) (map[string]models.MediaEnrichment, error) {
	result := make(map[string]models.MediaEnrichment, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	// DuckDB lacks array binding through database/sql; chunked IN lists
	// keep the statement size bounded.
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
			`SELECT rating_key, title, kind, year, imdb_id, tmdb_id,
				rating_imdb, rating_rt_critic, rating_tmdb, unified_score,
				poster, updated_at
			 FROM media_enrichment WHERE rating_key IN (%s)`, placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query enrichment: %w", err)
		}

		for rows.Next() {
			var e models.MediaEnrichment
			if err := rows.Scan(
				&e.RatingKey, &e.Title, &e.Kind, &e.Year, &e.IMDbID, &e.TMDBID,
				&e.RatingIMDb, &e.RatingRTCritic, &e.RatingTMDB, &e.UnifiedScore,
				&e.Poster, &e.UpdatedAt,
			); err != nil {
				closeRows(rows)
				return nil, fmt.Errorf("failed to scan enrichment: %w", err)
			}
			result[e.RatingKey] = e
		}
		err = rows.Err()
		closeRows(rows)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// DistinctTitles derives the enrichment candidate set from watch
// history in [start, end): movies keyed by their own rating key,
// episodes collapsed to their series key and title. Year is carried for
// movies only; series year varies per episode and is left unknown.
func (db *DB) DistinctTitles(ctx context.Context, start, end time.Time) ([]models.EnrichmentCandidate, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT ON (key) key, title, year, kind FROM (
			SELECT
				CASE WHEN media_type = 'episode' AND grandparent_rating_key != ''
					THEN grandparent_rating_key ELSE rating_key END AS key,
				CASE WHEN media_type = 'episode' AND grandparent_title != ''
					THEN grandparent_title ELSE title END AS title,
				CASE WHEN media_type = 'movie' THEN year ELSE 0 END AS year,
				CASE WHEN media_type = 'episode' THEN 'series' ELSE 'movie' END AS kind
			FROM watch_events
			WHERE date >= ? AND date < ? AND media_type IN ('movie', 'episode')
		) WHERE key != '' AND title != ''
		ORDER BY key`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct titles: %w", err)
	}
	defer closeRows(rows)

	var candidates []models.EnrichmentCandidate
	for rows.Next() {
		var c models.EnrichmentCandidate
		if err := rows.Scan(&c.RatingKey, &c.Title, &c.Year, &c.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
