// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/database"
	"github.com/wrapparr/wrapparr/internal/models"
	"github.com/wrapparr/wrapparr/internal/tautulli"
)

type fakeMetadataClient struct {
	metadata map[string]*tautulli.Metadata
}

func (f *fakeMetadataClient) GetMetadata(_ context.Context, ratingKey string) (*tautulli.Metadata, error) {
	if meta, ok := f.metadata[ratingKey]; ok {
		return meta, nil
	}
	return nil, fmt.Errorf("metadata not found for %s", ratingKey)
}

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedHistory(t *testing.T, db *database.DB) (start, end time.Time) {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	events := []models.WatchEvent{
		{
			UserID: 1, TautulliID: 1, Date: day.Add(10 * time.Hour),
			MediaType: "movie", Title: "The Matrix", Year: 1999,
			RatingKey: "100", FullTitle: "The Matrix", Duration: 8000,
		},
		{
			UserID: 1, TautulliID: 2, Date: day.Add(14 * time.Hour),
			MediaType: "episode", Title: "Ozymandias",
			GrandparentTitle: "Breaking Bad",
			RatingKey:        "201", GrandparentRatingKey: "200",
			FullTitle: "Breaking Bad - Ozymandias", Duration: 2800,
		},
	}
	if err := db.ReplaceDayEvents(ctx, 1, day, day.AddDate(0, 0, 1), events); err != nil {
		t.Fatalf("failed to seed history: %v", err)
	}
	return day, day.AddDate(0, 0, 1)
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	start, end := seedHistory(t, db)

	tmdbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search/tv":
			fmt.Fprint(w, `{"results":[{"id":1396}]}`)
		case "/tv/1396/external_ids":
			fmt.Fprint(w, `{"imdb_id":"tt0903747"}`)
		case "/movie/603":
			fmt.Fprint(w, `{"vote_average":8.2}`)
		case "/tv/1396":
			fmt.Fprint(w, `{"vote_average":8.9}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer tmdbSrv.Close()

	omdbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("i") {
		case "tt0133093":
			fmt.Fprint(w, `{"Title":"The Matrix","Poster":"https://img/matrix.jpg","imdbRating":"8.7","imdbID":"tt0133093","Ratings":[{"Source":"Rotten Tomatoes","Value":"83%"}],"Response":"True"}`)
		case "tt0903747":
			fmt.Fprint(w, `{"Title":"Breaking Bad","Poster":"N/A","imdbRating":"9.5","imdbID":"tt0903747","Ratings":[],"Response":"True"}`)
		default:
			fmt.Fprint(w, `{"Response":"False","Error":"Movie not found!"}`)
		}
	}))
	defer omdbSrv.Close()

	client := &fakeMetadataClient{metadata: map[string]*tautulli.Metadata{
		"100": {Response: tautulli.MetadataResponse{Result: "success", Data: tautulli.MetadataData{
			RatingKey: "100",
			Guids:     tautulli.GUIDList{"imdb://tt0133093", "tmdb://603"},
		}}},
		// Series key resolves without GUIDs, exercising the search fallback
		"200": {Response: tautulli.MetadataResponse{Result: "success", Data: tautulli.MetadataData{
			RatingKey: "200",
		}}},
	}}

	pipeline := NewPipeline(client, db,
		NewTMDBClient(&config.TMDBConfig{APIKey: "k", BaseURL: tmdbSrv.URL}),
		NewOMDbClient(&config.OMDbConfig{APIKey: "k", BaseURL: omdbSrv.URL}),
		config.EnrichConfig{BatchSize: 25, BatchPause: time.Millisecond})

	result, err := pipeline.Run(ctx, start, end, nil)
	if err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}
	if result.Processed != 2 || result.Scored != 2 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	enrichments, err := db.EnrichmentByKeys(ctx, []string{"100", "200"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	movie, ok := enrichments["100"]
	if !ok {
		t.Fatal("expected movie enrichment")
	}
	if movie.IMDbID != "tt0133093" || movie.TMDBID != "603" {
		t.Errorf("unexpected movie ids: imdb=%q tmdb=%q", movie.IMDbID, movie.TMDBID)
	}
	if movie.RatingIMDb == nil || *movie.RatingIMDb != 8.7 {
		t.Errorf("unexpected imdb rating: %v", movie.RatingIMDb)
	}
	if movie.RatingRTCritic == nil || *movie.RatingRTCritic != 83 {
		t.Errorf("unexpected rt rating: %v", movie.RatingRTCritic)
	}
	if movie.RatingTMDB == nil || *movie.RatingTMDB != 8.2 {
		t.Errorf("unexpected tmdb rating: %v", movie.RatingTMDB)
	}
	// 87*0.4 + 83*0.4 + 82*0.2 = 84.4
	if movie.UnifiedScore == nil || *movie.UnifiedScore != 84 {
		t.Errorf("unexpected unified score: %v", movie.UnifiedScore)
	}
	if movie.Poster != "https://img/matrix.jpg" {
		t.Errorf("unexpected poster: %q", movie.Poster)
	}

	series, ok := enrichments["200"]
	if !ok {
		t.Fatal("expected series enrichment")
	}
	if series.Kind != models.EnrichmentKindSeries {
		t.Errorf("unexpected series kind: %q", series.Kind)
	}
	if series.TMDBID != "1396" || series.IMDbID != "tt0903747" {
		t.Errorf("unexpected series ids: imdb=%q tmdb=%q", series.IMDbID, series.TMDBID)
	}
	// 95*0.4 + 89*0.2 = 55.8 over weight 0.6
	if series.UnifiedScore == nil || *series.UnifiedScore != 93 {
		t.Errorf("unexpected series score: %v", series.UnifiedScore)
	}
	if series.Poster != "" {
		t.Errorf("expected N/A poster dropped, got %q", series.Poster)
	}
}

func TestPipelineSkipsScoredItems(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	start, end := seedHistory(t, db)

	score := 80
	for _, key := range []string{"100", "200"} {
		if err := db.UpsertEnrichment(ctx, &models.MediaEnrichment{
			RatingKey: key, Title: "done", Kind: "movie", UnifiedScore: &score,
		}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	pipeline := NewPipeline(&fakeMetadataClient{}, db, nil, nil,
		config.EnrichConfig{BatchSize: 25, BatchPause: time.Millisecond})

	result, err := pipeline.Run(ctx, start, end, nil)
	if err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("expected nothing processed, got %+v", result)
	}
}

func TestPipelineSurvivesItemFailures(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	start, end := seedHistory(t, db)

	// No metadata, no external providers: items are saved unscored
	pipeline := NewPipeline(&fakeMetadataClient{}, db, nil, nil,
		config.EnrichConfig{BatchSize: 25, BatchPause: time.Millisecond})

	result, err := pipeline.Run(ctx, start, end, nil)
	if err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}
	if result.Processed != 2 || result.Scored != 0 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	enrichments, err := db.EnrichmentByKeys(ctx, []string{"100", "200"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(enrichments) != 2 {
		t.Errorf("expected both items saved unscored, got %d", len(enrichments))
	}
	for key, e := range enrichments {
		if e.UnifiedScore != nil {
			t.Errorf("expected no score for %s, got %d", key, *e.UnifiedScore)
		}
	}
}
