// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"fmt"
	"time"
)

// UserSeconds pairs a user id with their total watch seconds.
type UserSeconds struct {
	UserID  int
	Seconds int64
}

// PerUserWatchSeconds returns every user's total watch seconds in
// [start, end), ordered most-watched first. The leaderboard is built
// from this single cross-user aggregate; all other passes operate on
// one user's events.
func (db *DB) PerUserWatchSeconds(ctx context.Context, start, end time.Time) ([]UserSeconds, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, CAST(SUM(duration) AS BIGINT) AS total
		 FROM watch_events
		 WHERE date >= ? AND date < ?
		 GROUP BY user_id
		 ORDER BY total DESC, user_id ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-user totals: %w", err)
	}
	defer closeRows(rows)

	var totals []UserSeconds
	for rows.Next() {
		var us UserSeconds
		if err := rows.Scan(&us.UserID, &us.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan user total: %w", err)
		}
		totals = append(totals, us)
	}
	return totals, rows.Err()
}
