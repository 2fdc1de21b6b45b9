// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

import (
	"context"
	"testing"
	"time"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/database"
	"github.com/wrapparr/wrapparr/internal/events"
	"github.com/wrapparr/wrapparr/internal/models"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUsers(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []models.User{
		{ID: 1, Username: "alice", IsActive: true},
		{ID: 2, Username: "bob", IsActive: true},
	} {
		u := u
		if err := db.UpsertUser(ctx, &u); err != nil {
			t.Fatalf("failed to seed user: %v", err)
		}
	}
}

func seedScenario(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	events := []models.WatchEvent{
		{UserID: 1, TautulliID: 1, Date: day.Add(18 * time.Hour), MediaType: "movie",
			Title: "Movie X", RatingKey: "10", Year: 2020, Duration: 5000, PercentComplete: 100},
		{UserID: 1, TautulliID: 2, Date: day.Add(20 * time.Hour), MediaType: "movie",
			Title: "Movie X", RatingKey: "10", Year: 2020, Duration: 5000, PercentComplete: 100},
		{UserID: 1, TautulliID: 3, Date: day.Add(22 * time.Hour), MediaType: "movie",
			Title: "Movie X", RatingKey: "10", Year: 2020, Duration: 5000, PercentComplete: 100},
		{UserID: 1, TautulliID: 4, Date: day.Add(12 * time.Hour), MediaType: "movie",
			Title: "Movie Y", RatingKey: "11", Year: 1999, Duration: 7200, PercentComplete: 95},
	}
	if err := db.ReplaceDayEvents(ctx, 1, day, day.AddDate(0, 0, 1), events); err != nil {
		t.Fatalf("failed to seed events: %v", err)
	}
}

func testEngine(db *database.DB) *Engine {
	e := NewEngine(db, nil, nil)
	e.now = func() time.Time { return time.Date(2024, 12, 20, 12, 0, 0, 0, time.Local) }
	return e
}

func TestGetStatsScenario(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedUsers(t, db)
	seedScenario(t, db)
	engine := testEngine(db)

	doc, err := engine.GetStats(ctx, 1, Options{Year: 2024})
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	if doc.MediaTypeSplit.Movies != 22200 {
		t.Errorf("expected 22200 movie seconds, got %d", doc.MediaTypeSplit.Movies)
	}
	if doc.TotalSeconds != 22200 {
		t.Errorf("expected 22200 total seconds, got %d", doc.TotalSeconds)
	}
	if doc.TotalDuration != "6h 10m" {
		t.Errorf("unexpected duration string: %q", doc.TotalDuration)
	}
	if doc.OldestMovie == nil || doc.OldestMovie.Title != "Movie Y" || doc.OldestMovie.Year != 1999 {
		t.Errorf("unexpected oldest movie: %+v", doc.OldestMovie)
	}
	if doc.CommitmentIssues.Count != 0 {
		t.Errorf("expected empty commitment list, got %+v", doc.CommitmentIssues)
	}
	// 2 distinct movies, zero show hours
	if doc.ValueProposition != 24 {
		t.Errorf("unexpected value proposition: %d", doc.ValueProposition)
	}
	if doc.PirateBayValue != 2*150000 {
		t.Errorf("unexpected pirate bay value: %d", doc.PirateBayValue)
	}
	if len(doc.Comparison.Leaderboard) != 2 {
		t.Fatalf("expected 2 leaderboard entries, got %d", len(doc.Comparison.Leaderboard))
	}
	if !doc.Comparison.Leaderboard[0].IsYou || doc.Comparison.Leaderboard[0].Label != "You" {
		t.Errorf("expected caller on top: %+v", doc.Comparison.Leaderboard[0])
	}
	if doc.Comparison.You.Seconds != 22200 {
		t.Errorf("unexpected own seconds: %d", doc.Comparison.You.Seconds)
	}
}

func TestGetStatsCacheBehavior(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedUsers(t, db)
	seedScenario(t, db)
	engine := testEngine(db)

	first, err := engine.GetStats(ctx, 1, Options{Year: 2024})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// New events land but the cache has not been invalidated yet
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.Local)
	extra := []models.WatchEvent{{
		UserID: 1, TautulliID: 99, Date: day.Add(10 * time.Hour), MediaType: "movie",
		Title: "Movie Z", RatingKey: "12", Year: 2021, Duration: 3600, PercentComplete: 100,
	}}
	if err := db.ReplaceDayEvents(ctx, 1, day, day.AddDate(0, 0, 1), extra); err != nil {
		t.Fatalf("failed to add events: %v", err)
	}

	cached, err := engine.GetStats(ctx, 1, Options{Year: 2024})
	if err != nil {
		t.Fatalf("cached call failed: %v", err)
	}
	if cached.TotalSeconds != first.TotalSeconds {
		t.Errorf("expected cached document, got recomputed total %d", cached.TotalSeconds)
	}

	// Invalidation makes the next call recompute
	if err := db.ClearStatsCache(ctx, []int{1}); err != nil {
		t.Fatalf("failed to clear cache: %v", err)
	}
	fresh, err := engine.GetStats(ctx, 1, Options{Year: 2024})
	if err != nil {
		t.Fatalf("fresh call failed: %v", err)
	}
	if fresh.TotalSeconds != first.TotalSeconds+3600 {
		t.Errorf("expected recomputed total %d, got %d", first.TotalSeconds+3600, fresh.TotalSeconds)
	}

	// Force bypasses the cache outright
	forced, err := engine.GetStats(ctx, 1, Options{Year: 2024, ForceRefresh: true})
	if err != nil {
		t.Fatalf("forced call failed: %v", err)
	}
	if forced.TotalSeconds != fresh.TotalSeconds {
		t.Errorf("unexpected forced total: %d", forced.TotalSeconds)
	}
}

func TestGetStatsCorruptCacheRecomputes(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedUsers(t, db)
	seedScenario(t, db)
	engine := testEngine(db)

	if err := db.SaveStatsCache(ctx, 1, "{not json"); err != nil {
		t.Fatalf("failed to seed corrupt cache: %v", err)
	}

	doc, err := engine.GetStats(ctx, 1, Options{Year: 2024})
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if doc.TotalSeconds != 22200 {
		t.Errorf("expected recomputation over corrupt cache, got %d", doc.TotalSeconds)
	}
}

func TestLeaderboardDeterminism(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedUsers(t, db)
	seedScenario(t, db)
	engine := testEngine(db)

	first, err := engine.GetStats(ctx, 1, Options{Year: 2024, ForceRefresh: true})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := engine.GetStats(ctx, 1, Options{Year: 2024, ForceRefresh: true})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if len(first.Comparison.Leaderboard) != len(second.Comparison.Leaderboard) {
		t.Fatal("leaderboard size changed between calls")
	}
	for i := range first.Comparison.Leaderboard {
		if first.Comparison.Leaderboard[i].Label != second.Comparison.Leaderboard[i].Label {
			t.Errorf("label %d changed: %q vs %q", i,
				first.Comparison.Leaderboard[i].Label, second.Comparison.Leaderboard[i].Label)
		}
	}

	// The zero-history peer always lands in the freeloader tier
	peer := first.Comparison.Leaderboard[1]
	if peer.Seconds != 0 || peer.Label != freeloaderTier[2%len(freeloaderTier)] {
		t.Errorf("unexpected peer entry: %+v", peer)
	}
}

func TestSubscribeInvalidations(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedUsers(t, db)
	seedScenario(t, db)
	engine := testEngine(db)

	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	if err := engine.SubscribeInvalidations(ctx, bus); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if _, err := engine.GetStats(ctx, 1, Options{Year: 2024}); err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if err := bus.PublishStatsInvalidated([]int{1}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		cache, err := db.StatsCache(ctx, 1)
		if err != nil {
			t.Fatalf("cache read failed: %v", err)
		}
		if cache == "" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("cache was not cleared after invalidation event")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestGenerateAll(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedUsers(t, db)
	seedScenario(t, db)
	engine := testEngine(db)

	var lines []string
	if err := engine.GenerateAll(ctx, func(msg string) { lines = append(lines, msg) }); err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	for _, id := range []int{1, 2} {
		cache, err := db.StatsCache(ctx, id)
		if err != nil {
			t.Fatalf("cache read failed: %v", err)
		}
		if cache == "" {
			t.Errorf("expected cached document for user %d", id)
		}
	}
	if len(lines) < 4 {
		t.Errorf("expected progress lines, got %v", lines)
	}
}
