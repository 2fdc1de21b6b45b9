// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrich

import "math"

// Unified score weights. Missing sources redistribute their weight
// proportionally across whatever is present.
const (
	weightIMDb = 0.4
	weightRT   = 0.4
	weightTMDB = 0.2
)

// UnifiedScore combines up to three rating sources into a single 0-100
// integer. IMDb and TMDB arrive on a 0-10 scale, the Rotten Tomatoes
// critic score is already a percentage. Returns nil when no source is
// available.
func UnifiedScore(imdb *float64, rtCritic *int, tmdb *float64) *int {
	var totalScore, totalWeight float64

	if imdb != nil {
		totalScore += math.Round(*imdb*10) * weightIMDb
		totalWeight += weightIMDb
	}
	if rtCritic != nil {
		totalScore += float64(*rtCritic) * weightRT
		totalWeight += weightRT
	}
	if tmdb != nil {
		totalScore += math.Round(*tmdb*10) * weightTMDB
		totalWeight += weightTMDB
	}

	if totalWeight == 0 {
		return nil
	}

	score := int(math.Round(totalScore / totalWeight))
	return &score
}
