// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

// Anonymized flavor labels for the peer leaderboard, one list per
// percentile tier. Label choice within a tier is keyed on the user id
// so repeated calls produce the same name; collisions between users
// are accepted.
var (
	godTier = []string{
		"The Server Load", "Vitamin D Deficient", "The Retina Burner", "Premium Bandwidth Hog",
		"CEO of Binging", "The Electricity Bill", "Couch Fossil", "The 4K Connoisseur",
		"No Life Detected", "The Main Character",
	}
	highTier = []string{
		"The Binge-Watcher", "Content Sommelier", "Professional Procrastinator", "Sleep Deprived",
		"The Marathon Runner", "Remote Control Dictator", "Subtitle Scholar", "WiFi Warrior",
		"Pixel Perfect", "The Introvert",
	}
	midTier = []string{
		"The Normie", "Casual Friday", "The 'Just One Episode' Liar", "Healthy Social Life (Sarcastically)",
		"The NPC", "Weekend Warrior", "Background Noise Expert", "The 720p Enjoyer",
		"Buffer Buddy", "Average Joe",
	}
	lowTier = []string{
		"The Tourist", "Touching Grass", "The Monthly Login", "Forgotten Password",
		"The Guest Account", "Are You Still Watching?", "The Trailer Watcher",
		"Dial-Up Survivor", "The Lurker", "Participation Trophy",
	}
	freeloaderTier = []string{
		"The Freeloader", "Waste of a Seat", "Plex Pass Denier", "The Ghost",
		"Who Is This?", "Bandwidth Savior", "Log In, Log Out", "The Myth",
		"404 User Not Found", "Lowest of Them All",
	}
)

// Percentile thresholds for tier assignment. A zero-seconds user lands
// in the freeloader tier regardless of percentile.
const (
	godPercentile  = 0.90
	highPercentile = 0.70
	midPercentile  = 0.25
)

// flavorLabel picks the deterministic label for a non-caller user.
// percentile runs 1.0 (top of the board) down to 0.0.
func flavorLabel(userID int, seconds int64, percentile float64) string {
	var tier []string
	switch {
	case seconds == 0:
		tier = freeloaderTier
	case percentile >= godPercentile:
		tier = godTier
	case percentile >= highPercentile:
		tier = highTier
	case percentile >= midPercentile:
		tier = midTier
	default:
		tier = lowTier
	}
	return tier[userID%len(tier)]
}
