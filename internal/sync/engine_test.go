// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/database"
	"github.com/wrapparr/wrapparr/internal/models"
	"github.com/wrapparr/wrapparr/internal/tautulli"
)

// fakeClient serves canned history and metadata keyed by day.
type fakeClient struct {
	mu            gosync.Mutex
	history       map[string][]tautulli.HistoryRecord
	metadata      map[string]*tautulli.Metadata
	historyErr    map[string]error
	historyCalls  map[string]int
	metadataCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		history:      make(map[string][]tautulli.HistoryRecord),
		metadata:     make(map[string]*tautulli.Metadata),
		historyErr:   make(map[string]error),
		historyCalls: make(map[string]int),
	}
}

func (f *fakeClient) GetHistory(_ context.Context, _ *int, day time.Time, _, _ int) (*tautulli.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := day.Format("2006-01-02")
	f.historyCalls[key]++
	if err := f.historyErr[key]; err != nil {
		return nil, err
	}
	records := f.history[key]
	return &tautulli.History{Response: tautulli.HistoryResponse{
		Result: "success",
		Data:   tautulli.HistoryData{RecordsFiltered: len(records), RecordsTotal: len(records), Data: records},
	}}, nil
}

func (f *fakeClient) GetMetadata(_ context.Context, ratingKey string) (*tautulli.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	if meta, ok := f.metadata[ratingKey]; ok {
		return meta, nil
	}
	return nil, errors.New("metadata not found")
}

func (f *fakeClient) GetUsers(_ context.Context) (*tautulli.Users, error) {
	return &tautulli.Users{Response: tautulli.UsersResponse{
		Result: "success",
		Data: []tautulli.UserRecord{
			{UserID: 1, Username: "alice", IsActive: 1},
			{UserID: 2, Username: "bob", IsActive: 1},
			{UserID: 3, Username: "carol", IsActive: 0},
		},
	}}, nil
}

func (f *fakeClient) calls(day time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[day.Format("2006-01-02")]
}

func histRecord(userID int, ts time.Time, mediaType, title string, ratingKey int64, duration int) tautulli.HistoryRecord {
	uid := userID
	return tautulli.HistoryRecord{
		Date:      ts.Unix(),
		RowID:     ts.Unix(),
		UserID:    &uid,
		MediaType: mediaType,
		Title:     title,
		FullTitle: title,
		RatingKey: tautulli.FlexInt(ratingKey),
		Duration:  tautulli.FlexInt(duration),
	}
}

func testStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		HistoryPageSize:    2000,
		MetadataBatchSize:  5,
		MetadataBatchPause: 0,
		DayConcurrency:     10,
	}
}

func testEngine(t *testing.T, client *fakeClient, db *database.DB, now time.Time) *Engine {
	t.Helper()
	e := NewEngine(client, db, nil, testSyncConfig())
	e.now = func() time.Time { return now }
	return e
}

func TestSyncUserHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)
	d1 := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(2024, 8, 3, 0, 0, 0, 0, time.UTC)

	seed := func(client *fakeClient) {
		for i := 0; i < 3; i++ {
			day := d1.AddDate(0, 0, i)
			key := day.Format("2006-01-02")
			client.history[key] = []tautulli.HistoryRecord{
				histRecord(1, day.Add(10*time.Hour), "movie", fmt.Sprintf("Movie %d", i), int64(100+i), 5000),
				histRecord(1, day.Add(20*time.Hour), "episode", "Pilot", int64(200+i), 1800),
			}
		}
	}

	t.Run("idempotent without force", func(t *testing.T) {
		client := newFakeClient()
		seed(client)
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		first, err := engine.SyncUserHistory(ctx, 1, d1, d3, false, nil)
		if err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		if first.DaysImported != 3 || first.EventsImported != 6 {
			t.Errorf("unexpected first result: %+v", first)
		}

		second, err := engine.SyncUserHistory(ctx, 1, d1, d3, false, nil)
		if err != nil {
			t.Fatalf("second sync failed: %v", err)
		}
		if second.DaysImported != 0 {
			t.Errorf("expected 0 days on second run, got %d", second.DaysImported)
		}

		count, err := db.CountEventsForPeriod(ctx, 1, d1, d3.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 6 {
			t.Errorf("expected 6 events after double sync, got %d", count)
		}
	})

	t.Run("force bypasses checkpoints", func(t *testing.T) {
		client := newFakeClient()
		seed(client)
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		if _, err := engine.SyncUserHistory(ctx, 1, d1, d3, false, nil); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		forced, err := engine.SyncUserHistory(ctx, 1, d1, d3, true, nil)
		if err != nil {
			t.Fatalf("forced sync failed: %v", err)
		}
		if forced.DaysImported != 3 {
			t.Errorf("expected force to re-import 3 days, got %d", forced.DaysImported)
		}
	})

	t.Run("today is refetched and never checkpointed", func(t *testing.T) {
		client := newFakeClient()
		today := dayOf(now)
		client.history[today.Format("2006-01-02")] = []tautulli.HistoryRecord{
			histRecord(1, today.Add(8*time.Hour), "movie", "Fresh", 500, 3600),
		}
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		first, err := engine.SyncUserHistory(ctx, 1, today, today, false, nil)
		if err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if first.DaysImported != 0 {
			t.Errorf("expected today to not count as imported, got %d", first.DaysImported)
		}

		done, err := db.GetCheckpoint(ctx, 1, today)
		if err != nil {
			t.Fatalf("checkpoint read failed: %v", err)
		}
		if done {
			t.Error("expected no checkpoint for today")
		}

		if _, err := engine.SyncUserHistory(ctx, 1, today, today, false, nil); err != nil {
			t.Fatalf("second sync failed: %v", err)
		}
		if got := client.calls(today); got != 2 {
			t.Errorf("expected today fetched twice, got %d", got)
		}
	})

	t.Run("day isolation on forced resync", func(t *testing.T) {
		client := newFakeClient()
		seed(client)
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		if _, err := engine.SyncUserHistory(ctx, 1, d1, d1, false, nil); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		stray := models.WatchEvent{
			UserID: 1, TautulliID: 999999, Date: d1.Add(5 * time.Hour),
			MediaType: "movie", Title: "Stray", RatingKey: "999",
		}
		events, err := db.EventsForPeriod(ctx, 1, d1, d1.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if err := db.ReplaceDayEvents(ctx, 1, d1, d1.AddDate(0, 0, 1), append(events, stray)); err != nil {
			t.Fatalf("stray insert failed: %v", err)
		}

		if _, err := engine.SyncUserHistory(ctx, 1, d1, d1, true, nil); err != nil {
			t.Fatalf("forced resync failed: %v", err)
		}

		events, err = db.EventsForPeriod(ctx, 1, d1, d1.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		for _, e := range events {
			if e.Title == "Stray" {
				t.Error("expected stray event to be replaced")
			}
		}
		if len(events) != 2 {
			t.Errorf("expected 2 events after resync, got %d", len(events))
		}
	})

	t.Run("cancellation stops cleanly", func(t *testing.T) {
		client := newFakeClient()
		seed(client)
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := engine.SyncUserHistory(cancelled, 1, d1, d3, false, nil)
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	})

	t.Run("fetch failure aborts the range", func(t *testing.T) {
		client := newFakeClient()
		seed(client)
		client.historyErr["2024-08-02"] = errors.New("connection refused")
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		result, err := engine.SyncUserHistory(ctx, 1, d1, d3, false, nil)
		if !errors.Is(err, ErrUpstreamFetch) {
			t.Fatalf("expected ErrUpstreamFetch, got %v", err)
		}
		if result.DaysImported != 1 {
			t.Errorf("expected 1 day imported before abort, got %d", result.DaysImported)
		}
		if got := client.calls(d3); got != 0 {
			t.Errorf("expected day 3 never fetched after abort, got %d calls", got)
		}
	})

	t.Run("missing configuration", func(t *testing.T) {
		db := testStore(t)
		engine := NewEngine(nil, db, nil, testSyncConfig())
		if _, err := engine.SyncUserHistory(ctx, 1, d1, d3, false, nil); !errors.Is(err, ErrConfigurationMissing) {
			t.Errorf("expected ErrConfigurationMissing, got %v", err)
		}
	})

	t.Run("sync invalidates stats cache", func(t *testing.T) {
		client := newFakeClient()
		seed(client)
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		if err := db.SaveStatsCache(ctx, 1, `{"totalSeconds":1}`); err != nil {
			t.Fatalf("seed cache failed: %v", err)
		}
		if _, err := engine.SyncUserHistory(ctx, 1, d1, d1, false, nil); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		cache, err := db.StatsCache(ctx, 1)
		if err != nil {
			t.Fatalf("cache read failed: %v", err)
		}
		if cache != "" {
			t.Errorf("expected cache cleared after sync, got %q", cache)
		}
	})
}

func TestDayFiltering(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)
	d := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("out-of-day events are discarded", func(t *testing.T) {
		client := newFakeClient()
		client.history["2024-08-01"] = []tautulli.HistoryRecord{
			histRecord(1, d.Add(10*time.Hour), "movie", "Kept", 1, 3600),
			histRecord(1, d.AddDate(0, 0, 1).Add(1*time.Hour), "movie", "Spill", 2, 3600),
		}
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		result, err := engine.SyncUserHistory(ctx, 1, d, d, false, nil)
		if err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if result.EventsImported != 1 {
			t.Errorf("expected 1 event imported, got %d", result.EventsImported)
		}
	})

	t.Run("boundary-only discard emits no warning", func(t *testing.T) {
		client := newFakeClient()
		client.history["2024-08-01"] = []tautulli.HistoryRecord{
			histRecord(1, d.AddDate(0, 0, 1).Add(1*time.Hour), "movie", "Spill", 2, 3600),
		}
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		var lines []string
		_, err := engine.SyncUserHistory(ctx, 1, d, d, false, func(msg string) { lines = append(lines, msg) })
		if err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		for _, line := range lines {
			if strings.HasPrefix(line, "WARN:") {
				t.Errorf("unexpected warning for adjacent-day spill: %q", line)
			}
		}
	})

	t.Run("far discard warns", func(t *testing.T) {
		client := newFakeClient()
		client.history["2024-08-01"] = []tautulli.HistoryRecord{
			histRecord(1, d.AddDate(0, 0, 10), "movie", "Wrong", 3, 3600),
		}
		db := testStore(t)
		engine := testEngine(t, client, db, now)

		var warned bool
		_, err := engine.SyncUserHistory(ctx, 1, d, d, false, func(msg string) {
			if strings.HasPrefix(msg, "WARN:") {
				warned = true
			}
		})
		if err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if !warned {
			t.Error("expected a warning for far out-of-day discard")
		}
	})
}

func TestMetadataDecoration(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)
	d := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	client.history["2024-08-01"] = []tautulli.HistoryRecord{
		histRecord(1, d.Add(10*time.Hour), "movie", "Heat", 1001, 3600),
	}
	client.metadata["1001"] = &tautulli.Metadata{Response: tautulli.MetadataResponse{
		Result: "success",
		Data: tautulli.MetadataData{
			RatingKey: "1001",
			Title:     "Heat",
			MediaType: "movie",
			Rating:    8.3,
			Actors:    []string{"Al Pacino", "Robert De Niro"},
			Genres:    []string{"Crime", "Drama"},
			MediaInfo: []tautulli.MediaInfo{{Parts: []tautulli.MediaPart{{FileSize: 12884901888}}}},
		},
	}}

	db := testStore(t)
	engine := testEngine(t, client, db, now)

	if _, err := engine.SyncUserHistory(ctx, 1, d, d, false, nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	events, err := db.EventsForPeriod(ctx, 1, d, d.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Actors != "Al Pacino,Robert De Niro" {
		t.Errorf("unexpected actors: %q", e.Actors)
	}
	if e.Genres != "Crime,Drama" {
		t.Errorf("unexpected genres: %q", e.Genres)
	}
	if e.Rating != 8.3 {
		t.Errorf("unexpected rating: %v", e.Rating)
	}
	if e.FileSize != 12884901888 {
		t.Errorf("unexpected file size: %d", e.FileSize)
	}

	// Same key on a later day: local rows already carry metadata
	callsBefore := client.metadataCalls
	d2 := d.AddDate(0, 0, 1)
	client.history["2024-08-02"] = []tautulli.HistoryRecord{
		histRecord(1, d2.Add(10*time.Hour), "movie", "Heat", 1001, 3600),
	}
	if _, err := engine.SyncUserHistory(ctx, 1, d2, d2, false, nil); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if client.metadataCalls != callsBefore {
		t.Errorf("expected no metadata refetch for locally enriched key, got %d extra calls",
			client.metadataCalls-callsBefore)
	}
}

func TestSyncUsers(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	engine := testEngine(t, newFakeClient(), db, time.Now())

	count, err := engine.SyncUsers(ctx)
	if err != nil {
		t.Fatalf("user sync failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 users synced, got %d", count)
	}

	active, err := db.ActiveUserIDs(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active users, got %v", active)
	}
}

func TestSyncGlobalHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)
	d1 := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	client.history["2024-08-01"] = []tautulli.HistoryRecord{
		histRecord(1, d1.Add(10*time.Hour), "movie", "A", 1, 3600),
		histRecord(2, d1.Add(11*time.Hour), "movie", "B", 2, 3600),
		histRecord(99, d1.Add(12*time.Hour), "movie", "Intruder", 3, 3600),
	}
	client.history["2024-08-02"] = []tautulli.HistoryRecord{
		histRecord(1, d2.Add(10*time.Hour), "episode", "Pilot", 4, 1800),
	}

	db := testStore(t)
	engine := testEngine(t, client, db, now)

	if _, err := engine.SyncUsers(ctx); err != nil {
		t.Fatalf("user sync failed: %v", err)
	}
	if err := db.SaveStatsCache(ctx, 1, `{"stale":true}`); err != nil {
		t.Fatalf("seed cache failed: %v", err)
	}

	result, err := engine.SyncGlobalHistory(ctx, d1, d2, nil)
	if err != nil {
		t.Fatalf("global sync failed: %v", err)
	}
	if result.DaysImported != 2 {
		t.Errorf("expected 2 days imported, got %d", result.DaysImported)
	}
	if result.EventsImported != 3 {
		t.Errorf("expected 3 events after active-user filtering, got %d", result.EventsImported)
	}

	ids, err := db.EventUserIDs(ctx, d1, d2.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	for _, id := range ids {
		if id == 99 {
			t.Error("expected inactive user 99 filtered out")
		}
	}

	for _, uid := range []int{1, 2} {
		done, err := db.GetCheckpoint(ctx, uid, d1)
		if err != nil {
			t.Fatalf("checkpoint read failed: %v", err)
		}
		if !done {
			t.Errorf("expected user %d checkpointed for day 1", uid)
		}
	}

	cache, err := db.StatsCache(ctx, 1)
	if err != nil {
		t.Fatalf("cache read failed: %v", err)
	}
	if cache != "" {
		t.Errorf("expected stats cache cleared after global sync, got %q", cache)
	}

	// Second run skips both completed days
	again, err := engine.SyncGlobalHistory(ctx, d1, d2, nil)
	if err != nil {
		t.Fatalf("second global sync failed: %v", err)
	}
	if again.DaysImported != 0 {
		t.Errorf("expected 0 days on second run, got %d", again.DaysImported)
	}
}
