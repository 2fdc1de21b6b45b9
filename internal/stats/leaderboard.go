// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

import (
	"math"
	"sort"

	"github.com/wrapparr/wrapparr/internal/database"
	"github.com/wrapparr/wrapparr/internal/models"
)

// buildComparison ranks every known user by watch seconds in the
// period, including users with zero history. The caller's own entry is
// labeled "You"; everyone else gets a deterministic flavor label from
// their percentile tier.
func buildComparison(users []models.User, perUser []database.UserSeconds, callerID int) models.Comparison {
	secondsByUser := make(map[int]int64, len(perUser))
	for _, us := range perUser {
		secondsByUser[us.UserID] = us.Seconds
	}

	type entry struct {
		id      int
		seconds int64
		isYou   bool
	}
	board := make([]entry, 0, len(users))
	var grandTotal int64
	var callerSeconds int64

	for _, u := range users {
		seconds := secondsByUser[u.ID]
		grandTotal += seconds
		if u.ID == callerID {
			callerSeconds = seconds
		}
		board = append(board, entry{id: u.ID, seconds: seconds, isYou: u.ID == callerID})
	}

	sort.SliceStable(board, func(i, j int) bool {
		return board[i].seconds > board[j].seconds
	})

	leaderboard := make([]models.LeaderboardEntry, 0, len(board))
	for i, e := range board {
		if e.isYou {
			leaderboard = append(leaderboard, models.LeaderboardEntry{Label: "You", Seconds: e.seconds, IsYou: true})
			continue
		}
		percentile := 1 - float64(i)/float64(len(board))
		leaderboard = append(leaderboard, models.LeaderboardEntry{
			Label:   flavorLabel(e.id, e.seconds, percentile),
			Seconds: e.seconds,
		})
	}

	comparison := models.Comparison{
		You:         models.LeaderboardEntry{Label: "You", Seconds: callerSeconds, IsYou: true},
		Average:     models.LeaderboardEntry{Label: "Average"},
		Top:         models.LeaderboardEntry{Label: "None"},
		Bottom:      models.LeaderboardEntry{Label: "None"},
		Leaderboard: leaderboard,
	}
	if len(leaderboard) > 0 {
		comparison.Average.Seconds = int64(math.Round(float64(grandTotal) / float64(len(leaderboard))))
		top := leaderboard[0]
		bottom := leaderboard[len(leaderboard)-1]
		comparison.Top = models.LeaderboardEntry{Label: top.Label, Seconds: top.Seconds}
		comparison.Bottom = models.LeaderboardEntry{Label: bottom.Label, Seconds: bottom.Seconds}
	}
	return comparison
}
