// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stats computes the wrapped statistics document: a fixed
// sequence of independent aggregation passes over one user's watch
// events for a period, plus a peer leaderboard over all users.
//
// Documents are cached per user as an opaque JSON blob; a corrupt or
// absent cache falls through to full recomputation. Sync invalidates
// the cache through the event bus rather than calling in here.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/wrapparr/wrapparr/internal/database"
	"github.com/wrapparr/wrapparr/internal/events"
	"github.com/wrapparr/wrapparr/internal/logging"
	"github.com/wrapparr/wrapparr/internal/metrics"
	"github.com/wrapparr/wrapparr/internal/models"
)

// ProgressFunc receives human-readable progress lines during bulk
// generation. A nil ProgressFunc is valid and discards all lines.
type ProgressFunc func(msg string)

func (p ProgressFunc) emitf(format string, args ...interface{}) {
	if p != nil {
		p(fmt.Sprintf(format, args...))
	}
}

// Store is the persistence surface the stats engine reads and writes.
// *database.DB satisfies it.
type Store interface {
	EventsForPeriod(ctx context.Context, userID int, start, end time.Time) ([]models.WatchEvent, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	PerUserWatchSeconds(ctx context.Context, start, end time.Time) ([]database.UserSeconds, error)
	StatsCache(ctx context.Context, userID int) (string, error)
	SaveStatsCache(ctx context.Context, userID int, doc string) error
	ClearStatsCache(ctx context.Context, userIDs []int) error
}

// PortraitClient looks up actor portraits by name. *enrich.TMDBClient
// satisfies it; nil disables portraits.
type PortraitClient interface {
	PersonImageURL(ctx context.Context, name string) (string, error)
}

// Options modify a stats request. Zero Year means the current calendar
// year; From/To override the year-derived period when set.
type Options struct {
	Year         int
	From         *time.Time
	To           *time.Time
	ForceRefresh bool
}

// Engine computes and caches wrapped statistics documents.
type Engine struct {
	store     Store
	portraits PortraitClient
	ai        *AIClient

	now func() time.Time
}

// NewEngine creates a stats engine. portraits and ai are optional.
func NewEngine(store Store, portraits PortraitClient, ai *AIClient) *Engine {
	return &Engine{
		store:     store,
		portraits: portraits,
		ai:        ai,
		now:       time.Now,
	}
}

// SubscribeInvalidations wires the engine's cache onto the event bus:
// sync completions clear the affected users' cached documents.
func (e *Engine) SubscribeInvalidations(ctx context.Context, bus *events.Bus) error {
	return bus.SubscribeStatsInvalidated(ctx, func(ctx context.Context, event events.StatsInvalidated) error {
		return e.store.ClearStatsCache(ctx, event.UserIDs)
	})
}

// GetStats returns the wrapped statistics document for a user and
// period. Unless ForceRefresh is set, a previously cached document is
// returned as-is; a corrupt cache counts as a miss.
func (e *Engine) GetStats(ctx context.Context, userID int, opts Options) (*models.StatsDocument, error) {
	year := opts.Year
	if year == 0 {
		year = e.now().Year()
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.Local)
	if opts.From != nil {
		start = *opts.From
	}
	if opts.To != nil {
		end = *opts.To
	}

	if !opts.ForceRefresh {
		if cached, err := e.store.StatsCache(ctx, userID); err != nil {
			logging.Warn().Err(err).Int("user_id", userID).Msg("Failed to read stats cache")
		} else if cached != "" {
			var doc models.StatsDocument
			if err := json.Unmarshal([]byte(cached), &doc); err != nil {
				logging.Warn().Err(err).Int("user_id", userID).Msg("Corrupt stats cache, recomputing")
			} else {
				metrics.StatsCacheHits.Inc()
				return &doc, nil
			}
		}
	}
	metrics.StatsCacheMisses.Inc()

	genStart := e.now()
	defer func() {
		metrics.StatsGenerationDuration.Observe(time.Since(genStart).Seconds())
	}()

	doc, err := e.compute(ctx, userID, year, start, end)
	if err != nil {
		return nil, err
	}

	if serialized, err := json.Marshal(doc); err != nil {
		logging.Error().Err(err).Int("user_id", userID).Msg("Failed to serialize stats document")
	} else if err := e.store.SaveStatsCache(ctx, userID, string(serialized)); err != nil {
		logging.Error().Err(err).Int("user_id", userID).Msg("Failed to save stats cache")
	}

	return doc, nil
}

// compute runs every aggregation pass for one user and period.
func (e *Engine) compute(ctx context.Context, userID, year int, start, end time.Time) (*models.StatsDocument, error) {
	events, err := e.store.EventsForPeriod(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	split, bandwidth := totals(events)
	totalSeconds := split.Movies + split.Shows

	oldestMovie, oldestShow := oldestByKind(events)
	actors := topActors(events)
	e.decoratePortraits(ctx, actors)
	decade, avgYear := timeTraveler(events, year)
	valueProposition, pirateBay := monetary(events, split.Shows)

	doc := &models.StatsDocument{
		UserID:      userID,
		Year:        year,
		PeriodStart: start,
		PeriodEnd:   end,
		GeneratedAt: e.now(),

		TotalSeconds:   totalSeconds,
		TotalDuration:  formatDuration(totalSeconds),
		MediaTypeSplit: split,
		TotalBandwidth: bandwidth,

		OldestMovie: oldestMovie,
		OldestShow:  oldestShow,

		TopActors:  actors,
		GenreWheel: genreWheel(events),

		TimeTraveler: decade,
		AverageYear:  avgYear,

		TechStats: techStats(events, bandwidth),

		CommitmentIssues: commitmentIssues(events),
		BingeRecord:      bingeRecord(events),

		LazyDay:      lazyDay(events),
		ActivityType: activityType(events),

		LongestBreak:      longestBreak(events),
		TopShowByEpisodes: topShowByEpisodes(events),

		ValueProposition: valueProposition,
		PirateBayValue:   pirateBay,
	}

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	perUser, err := e.store.PerUserWatchSeconds(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate leaderboard: %w", err)
	}
	doc.Comparison = buildComparison(users, perUser, userID)
	doc.Comparison.You.Seconds = totalSeconds

	if e.ai != nil && totalSeconds > 0 {
		doc.AISummary = e.generateSummary(ctx, doc)
	}

	return doc, nil
}

// decoratePortraits attaches portrait URLs to the top actors, best
// effort.
func (e *Engine) decoratePortraits(ctx context.Context, actors []models.ActorStat) {
	if e.portraits == nil {
		return
	}
	for i := range actors {
		url, err := e.portraits.PersonImageURL(ctx, actors[i].Actor)
		if err != nil {
			logging.Debug().Err(err).Str("actor", actors[i].Actor).Msg("Portrait lookup failed")
			continue
		}
		actors[i].ImageURL = url
	}
}

// generateSummary composes the statistics context and asks the AI
// client for a roast. Failures yield the placeholder, never an error.
func (e *Engine) generateSummary(ctx context.Context, doc *models.StatsDocument) string {
	statsContext, err := json.Marshal(map[string]interface{}{
		"user":              map[string]int{"id": doc.UserID, "year": doc.Year},
		"totalDuration":     doc.TotalDuration,
		"lazyDay":           doc.LazyDay,
		"vibe":              doc.ActivityType,
		"stan":              doc.TopActors,
		"genreWheel":        doc.GenreWheel,
		"binge":             doc.BingeRecord,
		"commitmentIssues":  doc.CommitmentIssues,
		"tech":              doc.TechStats,
		"timeTraveler":      doc.TimeTraveler,
		"longestBreak":      doc.LongestBreak,
		"topShowByEpisodes": doc.TopShowByEpisodes,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to compose AI context")
		return aiPlaceholder
	}

	summary, err := e.ai.Summarize(ctx, string(statsContext))
	if err != nil {
		logging.Error().Err(err).Int("user_id", doc.UserID).Msg("AI summary generation failed")
		return aiPlaceholder
	}
	return summary
}

// GenerateAll force-refreshes the stats document for every known user,
// reporting progress per user. Individual failures are reported and
// skipped.
func (e *Engine) GenerateAll(ctx context.Context, progress ProgressFunc) error {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	progress.emitf("INFO: Starting generation for %d users...", len(users))
	for i, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		percent := (i + 1) * 100 / len(users)
		progress.emitf("GENERATING: [%d/%d] %s (%d%%)", i+1, len(users), u.DisplayName(), percent)

		if _, err := e.GetStats(ctx, u.ID, Options{ForceRefresh: true}); err != nil {
			progress.emitf("ERROR: Failed for %s: %v", u.DisplayName(), err)
		}
	}
	progress.emitf("INFO: Generation Complete!")
	return nil
}
