// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sync implements the day-checkpointed history import: the
// per-user engine walking a date range one calendar day at a time, and
// the global orchestrator fanning the same walk out across all active
// users with bounded day concurrency.
//
// A day is the unit of work and of atomicity. Each day is fetched,
// filtered, decorated with metadata, and written as a single
// delete+insert transaction; a completed checkpoint marks it done.
// Cancellation is cooperative at day and metadata-batch granularity,
// so stopping mid-range never leaves a half-written day.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/logging"
	"github.com/wrapparr/wrapparr/internal/metrics"
	"github.com/wrapparr/wrapparr/internal/models"
	"github.com/wrapparr/wrapparr/internal/tautulli"
)

// boundaryOverlapDays is the adjacency window for suppressing
// out-of-day discard warnings. Tautulli's start_date filter follows the
// server's timezone, so records spilling into neighboring days are
// expected noise, not data loss.
const boundaryOverlapDays = 1

// Client is the slice of the Tautulli API the sync engine consumes.
// *tautulli.Client and *tautulli.BreakerClient both satisfy it.
type Client interface {
	GetHistory(ctx context.Context, userID *int, day time.Time, start, length int) (*tautulli.History, error)
	GetMetadata(ctx context.Context, ratingKey string) (*tautulli.Metadata, error)
	GetUsers(ctx context.Context) (*tautulli.Users, error)
}

// Store is the persistence surface the sync engine writes through.
// *database.DB satisfies it; tests substitute fakes.
type Store interface {
	ReplaceDayEvents(ctx context.Context, userID int, dayStart, dayEnd time.Time, events []models.WatchEvent) error
	ReplaceDayEventsAllUsers(ctx context.Context, dayStart, dayEnd time.Time, events []models.WatchEvent) error
	KeysWithMetadata(ctx context.Context, keys []string) (map[string]bool, error)

	GetCheckpoint(ctx context.Context, userID int, day time.Time) (bool, error)
	UpsertCheckpoint(ctx context.Context, userID int, day time.Time) error
	DeleteCheckpoints(ctx context.Context, userID int, start, end time.Time) error
	DeleteCheckpointsAllUsers(ctx context.Context, start, end time.Time) error
	ReplaceDayCheckpoints(ctx context.Context, day time.Time, userIDs []int) error
	GlobalCompletedDays(ctx context.Context, start, end time.Time) (map[string]bool, error)

	UpsertUser(ctx context.Context, u *models.User) error
	ActiveUserIDs(ctx context.Context) ([]int, error)
	ClearStatsCache(ctx context.Context, userIDs []int) error
}

// Publisher announces stats-cache invalidations after successful syncs.
type Publisher interface {
	PublishStatsInvalidated(userIDs []int) error
}

// Result reports what a sync run accomplished.
type Result struct {
	DaysImported   int `json:"daysImported"`
	EventsImported int `json:"eventsImported"`
}

// Engine runs history syncs. Safe for concurrent use; re-entrant syncs
// for the same user are not mutex-guarded, the idempotent per-day
// delete+insert makes duplicate runs harmless.
type Engine struct {
	client Client
	store  Store
	bus    Publisher
	cfg    config.SyncConfig

	// now is stubbed in tests to pin "today".
	now func() time.Time
}

// NewEngine creates a sync engine. A nil client means no Tautulli
// connection is configured; sync calls will fail with
// ErrConfigurationMissing.
func NewEngine(client Client, store Store, bus Publisher, cfg config.SyncConfig) *Engine {
	return &Engine{
		client: client,
		store:  store,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SyncUserHistory imports one user's watch history for the inclusive
// day range [from, to].
//
// Completed checkpoints skip their day unless force is set, which drops
// the checkpoint first. "Today" is always re-fetched and never
// checkpointed since its data is still accumulating. A history fetch
// failure aborts the remaining range. On success the user's cached
// stats are invalidated.
func (e *Engine) SyncUserHistory(ctx context.Context, userID int, from, to time.Time, force bool, progress ProgressFunc) (Result, error) {
	if e.client == nil {
		return Result{}, ErrConfigurationMissing
	}

	start := dayOf(from)
	end := dayOf(to)
	if end.Before(start) {
		return Result{}, fmt.Errorf("invalid range: %s is after %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	runStart := e.now()
	defer func() {
		metrics.SyncRunDuration.WithLabelValues("user").Observe(time.Since(runStart).Seconds())
	}()

	progress.emitf("INFO: Starting sync from %s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))

	totalDays := int(end.Sub(start)/(24*time.Hour)) + 1
	tracker := newProgressTracker(progress, totalDays)

	var result Result
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		tracker.step(day.Format("January 2006"))

		isToday := sameDay(e.now(), day)

		if force {
			if err := e.store.DeleteCheckpoints(ctx, userID, day, day.AddDate(0, 0, 1)); err != nil {
				return result, fmt.Errorf("failed to drop checkpoint: %w", err)
			}
		}

		completed, err := e.store.GetCheckpoint(ctx, userID, day)
		if err != nil {
			return result, fmt.Errorf("failed to read checkpoint: %w", err)
		}
		if completed && !force {
			metrics.SyncDaysTotal.WithLabelValues("skipped").Inc()
			continue
		}

		events, err := e.importDay(ctx, &userID, day, progress)
		if err != nil {
			metrics.SyncDaysTotal.WithLabelValues("failed").Inc()
			return result, err
		}

		if err := e.store.ReplaceDayEvents(ctx, userID, day, day.AddDate(0, 0, 1), events); err != nil {
			metrics.SyncDaysTotal.WithLabelValues("failed").Inc()
			return result, fmt.Errorf("failed to persist day %s: %w", day.Format("2006-01-02"), err)
		}

		if !isToday {
			if err := e.store.UpsertCheckpoint(ctx, userID, day); err != nil {
				return result, fmt.Errorf("failed to write checkpoint: %w", err)
			}
			result.DaysImported++
		}

		result.EventsImported += len(events)
		metrics.SyncDaysTotal.WithLabelValues("completed").Inc()
		metrics.SyncEventsImported.Add(float64(len(events)))
	}

	e.invalidateStats([]int{userID})

	return result, nil
}

// importDay fetches one day of history, filters it to the day, and
// decorates the surviving events with metadata. A nil userID fetches
// the global feed. The returned events are not yet persisted.
func (e *Engine) importDay(ctx context.Context, userID *int, day time.Time, progress ProgressFunc) ([]models.WatchEvent, error) {
	history, err := e.client.GetHistory(ctx, userID, day, 0, e.cfg.HistoryPageSize)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return nil, fmt.Errorf("%w: day %s: %v", ErrUpstreamFetch, day.Format("2006-01-02"), err)
	}

	records := history.Response.Data.Data

	// The upstream start_date filter follows the Tautulli server's
	// timezone; keep only records on this exact day and note whether
	// any discard is beyond neighboring-day boundary noise.
	valid := make([]tautulli.HistoryRecord, 0, len(records))
	discarded := 0
	farDiscard := false
	for i := range records {
		ts := time.Unix(records[i].Date, 0)
		if sameDay(ts, day) {
			valid = append(valid, records[i])
			continue
		}
		discarded++
		if !withinAdjacentDays(ts, day, boundaryOverlapDays) {
			farDiscard = true
		}
	}

	if len(records) > 0 && len(valid) == 0 && farDiscard {
		sample := time.Unix(records[0].Date, 0)
		progress.emitf("WARN: Found %d items for %s but filtered all! Sample: %s vs Current: %s",
			len(records), day.Format("2006-01-02"),
			sample.Format("2006-01-02 15:04"), day.Format("2006-01-02 15:04"))
	}

	metadata, err := e.fetchDayMetadata(ctx, valid)
	if err != nil {
		return nil, err
	}

	events := make([]models.WatchEvent, 0, len(valid))
	for i := range valid {
		rec := &valid[i]
		var meta *tautulli.MetadataData
		if m, ok := metadata[ratingKeyString(rec.RatingKey)]; ok {
			meta = m
		}
		events = append(events, mapEvent(rec, meta))
	}
	return events, nil
}

// fetchDayMetadata resolves metadata for the distinct rating keys in a
// day's records, skipping keys whose stored events already carry cast
// and genre data. Remaining keys are fetched in small concurrent
// batches with a pause in between as a rate-limit courtesy. Individual
// failures are swallowed: the event is imported bare.
func (e *Engine) fetchDayMetadata(ctx context.Context, records []tautulli.HistoryRecord) (map[string]*tautulli.MetadataData, error) {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(records))
	for i := range records {
		key := ratingKeyString(records[i].RatingKey)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}

	known, err := e.store.KeysWithMetadata(ctx, keys)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to check locally enriched keys, fetching all")
		known = map[string]bool{}
	}

	missing := make([]string, 0, len(keys))
	for _, key := range keys {
		if !known[key] {
			missing = append(missing, key)
		}
	}

	results := make(map[string]*tautulli.MetadataData, len(missing))
	var mu sync.Mutex

	batchSize := e.cfg.MetadataBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	for i := 0; i < len(missing); i += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		end := i + batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[i:end]

		var wg sync.WaitGroup
		for _, key := range batch {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				meta, err := e.client.GetMetadata(ctx, key)
				if err != nil {
					// Item is persisted without enrichment fields
					logging.Debug().Err(err).Str("rating_key", key).Msg("Metadata fetch failed")
					return
				}
				mu.Lock()
				results[key] = &meta.Response.Data
				mu.Unlock()
			}(key)
		}
		wg.Wait()

		if end < len(missing) && e.cfg.MetadataBatchPause > 0 {
			select {
			case <-time.After(e.cfg.MetadataBatchPause):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
		}
	}

	return results, nil
}

// SyncUsers imports the Tautulli user table into the local store.
func (e *Engine) SyncUsers(ctx context.Context) (int, error) {
	if e.client == nil {
		return 0, ErrConfigurationMissing
	}

	users, err := e.client.GetUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	count := 0
	for _, rec := range users.Response.Data {
		if rec.UserID == 0 {
			continue
		}
		u := models.User{
			ID:       rec.UserID,
			Username: rec.Username,
			Email:    rec.Email,
			Thumb:    rec.UserThumb,
			IsActive: rec.IsActive != 0,
		}
		if err := e.store.UpsertUser(ctx, &u); err != nil {
			return count, err
		}
		count++
	}

	logging.Info().Int("users", count).Msg("Synced user directory")
	return count, nil
}

// invalidateStats publishes a stats invalidation, falling back to a
// direct cache clear when no bus is wired.
func (e *Engine) invalidateStats(userIDs []int) {
	if e.bus != nil {
		if err := e.bus.PublishStatsInvalidated(userIDs); err != nil {
			logging.Error().Err(err).Ints("user_ids", userIDs).Msg("Failed to publish stats invalidation")
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.ClearStatsCache(ctx, userIDs); err != nil {
		logging.Error().Err(err).Ints("user_ids", userIDs).Msg("Failed to clear stats cache")
	}
}
