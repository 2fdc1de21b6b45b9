// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package tautulli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wrapparr/wrapparr/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(&config.TautulliConfig{
		URL:     srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	return client, srv
}

func TestGetHistory(t *testing.T) {
	t.Run("parses records and passes day parameters", func(t *testing.T) {
		var gotQuery map[string]string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			gotQuery = map[string]string{
				"cmd":          q.Get("cmd"),
				"apikey":       q.Get("apikey"),
				"grouping":     q.Get("grouping"),
				"order_column": q.Get("order_column"),
				"order_dir":    q.Get("order_dir"),
				"start_date":   q.Get("start_date"),
				"user_id":      q.Get("user_id"),
				"length":       q.Get("length"),
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"response": {
					"result": "success",
					"data": {
						"recordsFiltered": 1,
						"recordsTotal": 1,
						"data": [{
							"date": 1720000000,
							"user_id": 42,
							"media_type": "episode",
							"title": "Pilot",
							"grandparent_title": "Some Show",
							"full_title": "Some Show - Pilot",
							"rating_key": 1001,
							"grandparent_rating_key": "900",
							"duration": "1800",
							"percent_complete": 97,
							"year": 2019,
							"transcode_decision": "direct play",
							"player": "Living Room TV"
						}]
					}
				}
			}`))
		})

		userID := 42
		day := time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)
		history, err := client.GetHistory(context.Background(), &userID, day, 0, 1000)
		if err != nil {
			t.Fatalf("GetHistory failed: %v", err)
		}

		if gotQuery["cmd"] != "get_history" {
			t.Errorf("expected cmd=get_history, got %q", gotQuery["cmd"])
		}
		if gotQuery["apikey"] != "test-key" {
			t.Errorf("expected apikey=test-key, got %q", gotQuery["apikey"])
		}
		if gotQuery["grouping"] != "1" {
			t.Errorf("expected grouping=1, got %q", gotQuery["grouping"])
		}
		if gotQuery["order_column"] != "date" || gotQuery["order_dir"] != "asc" {
			t.Errorf("expected date asc ordering, got %q %q", gotQuery["order_column"], gotQuery["order_dir"])
		}
		if gotQuery["start_date"] != "2024-07-03" {
			t.Errorf("expected start_date=2024-07-03, got %q", gotQuery["start_date"])
		}
		if gotQuery["user_id"] != "42" {
			t.Errorf("expected user_id=42, got %q", gotQuery["user_id"])
		}

		records := history.Response.Data.Data
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		rec := records[0]
		if rec.UserID == nil || *rec.UserID != 42 {
			t.Errorf("expected user_id 42, got %v", rec.UserID)
		}
		// rating_key numeric, grandparent_rating_key string: both parse
		if rec.RatingKey != 1001 {
			t.Errorf("expected rating_key 1001, got %d", rec.RatingKey)
		}
		if rec.GrandparentRatingKey != 900 {
			t.Errorf("expected grandparent_rating_key 900, got %d", rec.GrandparentRatingKey)
		}
		// duration arrives as a string here
		if rec.Duration != 1800 {
			t.Errorf("expected duration 1800, got %d", rec.Duration)
		}
		if rec.GrandparentTitle == nil || *rec.GrandparentTitle != "Some Show" {
			t.Errorf("unexpected grandparent_title: %v", rec.GrandparentTitle)
		}
	})

	t.Run("omits user_id for global fetch", func(t *testing.T) {
		var hadUserID bool
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			hadUserID = r.URL.Query().Has("user_id")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"response": {"result": "success", "data": {"recordsFiltered": 0, "recordsTotal": 0, "data": []}}}`))
		})

		day := time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)
		if _, err := client.GetHistory(context.Background(), nil, day, 0, 1000); err != nil {
			t.Fatalf("GetHistory failed: %v", err)
		}
		if hadUserID {
			t.Error("expected no user_id parameter for global fetch")
		}
	})

	t.Run("surfaces API error message", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"response": {"result": "error", "message": "Invalid apikey", "data": {}}}`))
		})

		day := time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)
		_, err := client.GetHistory(context.Background(), nil, day, 0, 1000)
		if err == nil {
			t.Fatal("expected error for result=error response")
		}
	})
}

func TestGetMetadata(t *testing.T) {
	t.Run("parses guids actors and media info", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("rating_key"); got != "1001" {
				t.Errorf("expected rating_key=1001, got %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"response": {
					"result": "success",
					"data": {
						"rating_key": "1001",
						"title": "Heat",
						"media_type": "movie",
						"year": 1995,
						"rating": "8.3",
						"audience_rating": 8.7,
						"guid": "com.plexapp.agents.imdb://tt0113277?lang=en",
						"guids": ["imdb://tt0113277", "tmdb://949"],
						"actors": ["Al Pacino", "Robert De Niro"],
						"genres": ["Crime", "Drama"],
						"media_info": [{"parts": [{"file_size": "12884901888"}]}]
					}
				}
			}`))
		})

		metadata, err := client.GetMetadata(context.Background(), "1001")
		if err != nil {
			t.Fatalf("GetMetadata failed: %v", err)
		}

		data := metadata.Response.Data
		if data.Rating != 8.3 {
			t.Errorf("expected rating 8.3 from string value, got %v", data.Rating)
		}
		if data.AudienceRating != 8.7 {
			t.Errorf("expected audience_rating 8.7, got %v", data.AudienceRating)
		}
		guids := data.AllGUIDs()
		if len(guids) != 3 {
			t.Fatalf("expected 3 guids (2 array + root), got %d: %v", len(guids), guids)
		}
		if guids[0] != "imdb://tt0113277" {
			t.Errorf("unexpected first guid: %q", guids[0])
		}
		if len(data.Actors) != 2 || data.Actors[0] != "Al Pacino" {
			t.Errorf("unexpected actors: %v", data.Actors)
		}
		if got := data.FileSizeBytes(); got != 12884901888 {
			t.Errorf("expected file size 12884901888, got %d", got)
		}
	})

	t.Run("accepts object-shaped guids", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"response": {
					"result": "success",
					"data": {
						"rating_key": "7",
						"title": "Old Agent Movie",
						"media_type": "movie",
						"guids": [{"id": "imdb://tt0000001"}, {"id": "tmdb://5"}]
					}
				}
			}`))
		})

		metadata, err := client.GetMetadata(context.Background(), "7")
		if err != nil {
			t.Fatalf("GetMetadata failed: %v", err)
		}
		guids := metadata.Response.Data.Guids
		if len(guids) != 2 || guids[0] != "imdb://tt0000001" {
			t.Errorf("unexpected guids: %v", guids)
		}
	})
}

func TestGetUsers(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cmd"); got != "get_users" {
			t.Errorf("expected cmd=get_users, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"response": {
				"result": "success",
				"data": [
					{"user_id": 1, "username": "alice", "email": "alice@example.com", "user_thumb": "", "is_active": 1},
					{"user_id": 2, "username": "bob", "email": "", "user_thumb": "", "is_active": "0"}
				]
			}
		}`))
	})

	users, err := client.GetUsers(context.Background())
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(users.Response.Data) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users.Response.Data))
	}
	if users.Response.Data[0].IsActive != 1 {
		t.Errorf("expected alice active, got %d", users.Response.Data[0].IsActive)
	}
	if users.Response.Data[1].IsActive != 0 {
		t.Errorf("expected bob inactive (string zero), got %d", users.Response.Data[1].IsActive)
	}
}

func TestRateLimitRetry(t *testing.T) {
	t.Run("retries after 429 and succeeds", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"response": {"result": "success", "data": []}}`))
		}))
		defer srv.Close()

		client := NewClient(&config.TautulliConfig{URL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
		client.retryBaseDelay = time.Millisecond

		if _, err := client.GetUsers(context.Background()); err != nil {
			t.Fatalf("expected success after retry, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewClient(&config.TautulliConfig{URL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
		client.maxRetries = 2
		client.retryBaseDelay = time.Millisecond

		if _, err := client.GetUsers(context.Background()); err == nil {
			t.Fatal("expected error after exhausting retries")
		}
	})

	t.Run("honors context cancellation during backoff", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewClient(&config.TautulliConfig{URL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
		client.retryBaseDelay = 10 * time.Second

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := client.GetUsers(ctx)
		if err == nil {
			t.Fatal("expected context error")
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("cancellation took too long: %v", elapsed)
		}
	})
}

func TestPing(t *testing.T) {
	t.Run("succeeds on 200", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("cmd"); got != "arnold" {
				t.Errorf("expected cmd=arnold, got %q", got)
			}
			w.WriteHeader(http.StatusOK)
		})
		if err := client.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("fails on non-200", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		if err := client.Ping(context.Background()); err == nil {
			t.Error("expected error for 401 response")
		}
	})
}
