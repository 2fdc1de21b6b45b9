// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wrapparr/wrapparr/internal/metrics"
	"github.com/wrapparr/wrapparr/internal/models"
)

// SyncGlobalHistory imports watch history for every active user over
// the inclusive day range [from, to].
//
// Each day is processed once for all users: one global history fetch,
// filtered to active users, metadata deduplicated across everyone's
// items, events replaced for the whole day, and all active users
// batch-checkpointed in a single transaction. Days run with bounded
// concurrency; progress is reported after each concurrency window
// rather than per day. On completion every active user's stats cache
// is invalidated in one pass.
func (e *Engine) SyncGlobalHistory(ctx context.Context, from, to time.Time, progress ProgressFunc) (Result, error) {
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
		metrics.SyncRunDuration.WithLabelValues("global").Observe(time.Since(runStart).Seconds())
	}()

	activeIDs, err := e.store.ActiveUserIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list active users: %w", err)
	}
	if len(activeIDs) == 0 {
		progress.emit("WARN: No active users known, run a user sync first")
		return Result{}, nil
	}
	activeSet := make(map[int]bool, len(activeIDs))
	for _, id := range activeIDs {
		activeSet[id] = true
	}

	doneDays, err := e.store.GlobalCompletedDays(ctx, start, end.AddDate(0, 0, 1))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read completed days: %w", err)
	}

	var days []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}

	progress.emitf("INFO: Starting global sync from %s to %s for %d users",
		start.Format("2006-01-02"), end.Format("2006-01-02"), len(activeIDs))

	window := e.cfg.DayConcurrency
	if window <= 0 {
		window = 10
	}

	var result Result
	lastMonth := ""
	for i := 0; i < len(days); i += window {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		end := i + window
		if end > len(days) {
			end = len(days)
		}
		batch := days[i:end]

		if month := batch[0].Format("January 2006"); month != lastMonth {
			progress.emitf("MONTH_START:%s", month)
			lastMonth = month
		}

		type dayResult struct {
			imported bool
			events   int
			err      error
		}
		results := make([]dayResult, len(batch))

		var wg sync.WaitGroup
		for j, day := range batch {
			if doneDays[day.Format("2006-01-02")] {
				metrics.SyncDaysTotal.WithLabelValues("skipped").Inc()
				continue
			}
			wg.Add(1)
			go func(j int, day time.Time) {
				defer wg.Done()
				imported, events, err := e.syncGlobalDay(ctx, day, activeSet, activeIDs, progress)
				results[j] = dayResult{imported: imported, events: events, err: err}
			}(j, day)
		}
		wg.Wait()

		for _, r := range results {
			if r.err != nil {
				metrics.SyncDaysTotal.WithLabelValues("failed").Inc()
				return result, r.err
			}
			if r.imported {
				result.DaysImported++
			}
			result.EventsImported += r.events
			metrics.SyncEventsImported.Add(float64(r.events))
		}

		progress.emitf("PROGRESS:%d", end*100/len(days))
	}

	// One bulk invalidation instead of per-user churn
	e.invalidateStats(nil)

	return result, nil
}

// syncGlobalDay imports one day for all active users. Returns whether
// the day counted as imported (today never does) and how many events
// were written.
func (e *Engine) syncGlobalDay(ctx context.Context, day time.Time, activeSet map[int]bool, activeIDs []int, progress ProgressFunc) (bool, int, error) {
	events, err := e.importDay(ctx, nil, day, progress)
	if err != nil {
		return false, 0, err
	}

	// The global feed includes shared-server users we do not track
	filtered := make([]models.WatchEvent, 0, len(events))
	for i := range events {
		if activeSet[events[i].UserID] {
			filtered = append(filtered, events[i])
		}
	}

	if err := e.store.ReplaceDayEventsAllUsers(ctx, day, day.AddDate(0, 0, 1), filtered); err != nil {
		return false, 0, fmt.Errorf("failed to persist day %s: %w", day.Format("2006-01-02"), err)
	}

	if sameDay(e.now(), day) {
		metrics.SyncDaysTotal.WithLabelValues("completed").Inc()
		return false, len(filtered), nil
	}

	if err := e.store.ReplaceDayCheckpoints(ctx, day, activeIDs); err != nil {
		return false, 0, fmt.Errorf("failed to checkpoint day %s: %w", day.Format("2006-01-02"), err)
	}

	metrics.SyncDaysTotal.WithLabelValues("completed").Inc()
	return true, len(filtered), nil
}
