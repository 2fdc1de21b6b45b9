// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// Enrichment kinds stored on MediaEnrichment.Kind. Episodes are
// enriched at series granularity, so the stored kind is "series"
// rather than "episode".
const (
	EnrichmentKindMovie  = "movie"
	EnrichmentKindSeries = "series"
)

// MediaEnrichment holds external identifiers and ratings for one
// distinct title, keyed by its Plex rating key (the series key for
// episodes). Records are shared across users and updated in place on
// re-enrichment; the pipeline never deletes them.
type MediaEnrichment struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	Kind      string `json:"kind"` // movie | series
	Year      int    `json:"year"` // 0 = unknown

	IMDbID string `json:"imdbId"`
	TMDBID string `json:"tmdbId"`

	// Rating sources, nil when the source had no answer.
	RatingIMDb     *float64 `json:"ratingImdb"`     // 0-10
	RatingRTCritic *int     `json:"ratingRtCritic"` // 0-100 percentage
	RatingTMDB     *float64 `json:"ratingTmdb"`     // 0-10

	// UnifiedScore is a 0-100 weighted combination of whichever rating
	// sources are present, nil when no source is available.
	UnifiedScore *int `json:"unifiedScore"`

	Poster string `json:"poster"`

	// RawResponse preserves the aggregator's full reply for audit.
	RawResponse string `json:"-"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// EnrichmentCandidate is a distinct title derived from history that the
// enrichment pipeline may still need to process.
type EnrichmentCandidate struct {
	RatingKey string
	Title     string
	Year      int // 0 = unknown (always 0 for series)
	Kind      string
}
