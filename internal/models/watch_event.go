// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the core persisted and computed data types:
// watch events, sync checkpoints, media enrichment records, server
// users, and the composite wrapped statistics document.
package models

import (
	"strconv"
	"time"
)

// Media kinds stored on WatchEvent.MediaType.
const (
	MediaTypeMovie   = "movie"
	MediaTypeEpisode = "episode"
)

// Transcode decisions reported by the upstream history feed.
const (
	TranscodeDecisionDirect    = "direct play"
	TranscodeDecisionTranscode = "transcode"
	TranscodeDecisionCopy      = "copy"
)

// WatchEvent is one playback record imported from the upstream history
// feed, decorated with whatever metadata was resolved at import time.
//
// Events belong to exactly one user and are only ever written in bulk:
// a day re-sync deletes and recreates the whole day for that user, so
// individual rows are never mutated. Duration and PercentComplete are
// clamped on ingest (duration >= 0, percent in [0,100]).
type WatchEvent struct {
	ID         int64     `json:"id"`
	UserID     int       `json:"userId"`
	TautulliID int64     `json:"tautulliId"`
	Date       time.Time `json:"date"`

	Duration        int    `json:"duration"` // seconds
	PercentComplete int    `json:"percentComplete"`
	MediaType       string `json:"mediaType"` // movie | episode
	Year            int    `json:"year"`      // 0 = unknown

	Title            string `json:"title"`
	ParentTitle      string `json:"parentTitle"`
	GrandparentTitle string `json:"grandparentTitle"`
	FullTitle        string `json:"fullTitle"`

	RatingKey            string `json:"ratingKey"`
	ParentRatingKey      string `json:"parentRatingKey"`
	GrandparentRatingKey string `json:"grandparentRatingKey"`

	// Enrichment fields populated opportunistically during sync.
	Actors   string  `json:"actors"` // comma-separated cast names, "" = unknown
	Genres   string  `json:"genres"` // comma-separated genre tags, "" = unknown
	Rating   float64 `json:"rating"` // 0 = unknown
	FileSize int64   `json:"fileSize"`

	TranscodeDecision string `json:"transcodeDecision"`
	Player            string `json:"player"`
}

// SeriesKey returns the identifier the event's series is keyed by:
// the grandparent rating key for episodes, the event's own key otherwise.
func (e *WatchEvent) SeriesKey() string {
	if e.MediaType == MediaTypeEpisode && e.GrandparentRatingKey != "" {
		return e.GrandparentRatingKey
	}
	return e.RatingKey
}

// SeriesTitle returns the display title of the event's series for
// episodes, falling back to the event title when the series title is
// missing (the upstream feed occasionally omits it).
func (e *WatchEvent) SeriesTitle() string {
	if e.MediaType == MediaTypeEpisode && e.GrandparentTitle != "" {
		return e.GrandparentTitle
	}
	return e.Title
}

// SyncCheckpoint marks a (user, calendar day) pair whose history has
// been fully imported. A completed day is never re-fetched unless a
// force refresh drops the checkpoint first. "Today" is never marked
// completed since its data is still accumulating.
type SyncCheckpoint struct {
	UserID    int       `json:"userId"`
	Day       time.Time `json:"day"` // date-only, midnight local
	Completed bool      `json:"completed"`
}

// User is a Plex user imported from the upstream user table. The stats
// cache blob lives on the user row so a history re-sync can clear it
// in the same store.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Thumb    string `json:"thumb"`
	IsActive bool   `json:"isActive"`

	StatsGeneratedAt *time.Time `json:"statsGeneratedAt,omitempty"`
}

// DisplayName returns the username, or a stable placeholder when the
// upstream record has none.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return "User " + strconv.Itoa(u.ID)
}
