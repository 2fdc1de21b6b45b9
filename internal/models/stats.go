// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// StatsDocument is the composite wrapped-statistics document computed
// for one user and period. It is serialized as-is into the per-user
// stats cache and consumed verbatim by the presentation layer.
type StatsDocument struct {
	UserID      int       `json:"userId"`
	Year        int       `json:"year"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	GeneratedAt time.Time `json:"generatedAt"`

	TotalSeconds   int64          `json:"totalSeconds"`
	TotalDuration  string         `json:"totalDuration"` // "123h 45m"
	MediaTypeSplit MediaTypeSplit `json:"mediaTypeSplit"`
	TotalBandwidth int64          `json:"totalBandwidth"` // bytes

	OldestMovie *TitleYear `json:"oldestMovie,omitempty"`
	OldestShow  *TitleYear `json:"oldestShow,omitempty"`

	TopActors  []ActorStat  `json:"yourStan,omitempty"`
	GenreWheel []GenreShare `json:"genreWheel"`

	TimeTraveler DecadeCount `json:"timeTraveler"`
	AverageYear  int         `json:"averageYear"`

	TechStats TechStats `json:"techStats"`

	CommitmentIssues CommitmentIssues `json:"commitmentIssues"`

	BingeRecord *BingeRecord `json:"bingeRecord,omitempty"`

	LazyDay      LazyDay      `json:"lazyDay"`
	ActivityType ActivityType `json:"activityType"`

	LongestBreak      *LongestBreak `json:"longestBreak,omitempty"`
	TopShowByEpisodes *TitleCount   `json:"topShowByEpisodes,omitempty"`

	ValueProposition int   `json:"valueProposition"` // whole dollars
	PirateBayValue   int64 `json:"pirateBayValue"`   // whole dollars

	Comparison Comparison `json:"comparison"`

	AISummary string `json:"aiSummary,omitempty"`
}

// MediaTypeSplit divides total watch seconds between movies and shows.
type MediaTypeSplit struct {
	Movies int64 `json:"movies"`
	Shows  int64 `json:"shows"`
}

// TitleYear pairs a title with its release year.
type TitleYear struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// TitleCount pairs a title with a play/episode count.
type TitleCount struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// ActorStat ranks an actor by the number of distinct projects they
// appeared in across the user's history.
type ActorStat struct {
	Actor    string   `json:"actor"`
	Count    int      `json:"count"` // distinct projects
	Time     int64    `json:"time"`  // aggregate watch seconds
	Titles   []string `json:"titles"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// GenreShare is one slice of the genre wheel.
type GenreShare struct {
	Genre      string `json:"genre"`
	Percentage int    `json:"percentage"`
}

// DecadeCount is the most-watched release decade.
type DecadeCount struct {
	Decade string `json:"decade"` // "1990s", "N/A" when unknown
	Count  int    `json:"count"`
}

// TechStats summarizes device and transcode behavior.
type TechStats struct {
	TotalDataGB      int             `json:"totalDataGB"`
	TranscodePercent int             `json:"transcodePercent"`
	TopPlatforms     []PlatformCount `json:"topPlatforms"`
}

// PlatformCount is one player/platform with its play count.
type PlatformCount struct {
	Platform string `json:"platform"`
	Count    int    `json:"count"`
}

// CommitmentIssues lists movies abandoned below the completion threshold.
type CommitmentIssues struct {
	Count  int      `json:"count"`
	Titles []string `json:"titles"`
}

// BingeRecord is the longest run of back-to-back same-series episodes.
type BingeRecord struct {
	Show  string `json:"show"`
	Count int    `json:"count"`
	Date  string `json:"date"` // date of the run's last episode
}

// LazyDay reports hours watched per weekday, chart ordered Monday first.
type LazyDay struct {
	Winner    DayHours   `json:"winner"`
	ChartData []DayHours `json:"chartData"`
}

// DayHours is one weekday's watch hours.
type DayHours struct {
	Day   string `json:"day"`
	Short string `json:"short,omitempty"`
	Hours int    `json:"hours"`
}

// ActivityType classifies the user by time-of-day viewing habits.
type ActivityType struct {
	Winner      string           `json:"winner"`
	Description string           `json:"description"`
	Breakdown   []ActivityBucket `json:"breakdown"`
}

// ActivityBucket is one time-of-day bucket's total watch seconds.
type ActivityBucket struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// LongestBreak is the largest gap in days between replays of one item.
type LongestBreak struct {
	Title string `json:"title"`
	Days  int    `json:"days"`
}

// Comparison holds the peer leaderboard and summary markers.
type Comparison struct {
	You         LeaderboardEntry   `json:"you"`
	Average     LeaderboardEntry   `json:"average"`
	Top         LeaderboardEntry   `json:"top"`
	Bottom      LeaderboardEntry   `json:"bottom"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardEntry is one user's ranked total with their anonymized
// flavor label. IsYou marks the caller's own entry.
type LeaderboardEntry struct {
	Label   string `json:"label"`
	Seconds int64  `json:"seconds"`
	IsYou   bool   `json:"isYou,omitempty"`
}
