// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/models"
)

// TMDBClient talks to The Movie Database API. The zero-value client is
// not usable; a nil client disables TMDB lookups in the pipeline.
type TMDBClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewTMDBClient creates a TMDB client, or nil when no API key is
// configured.
func NewTMDBClient(cfg *config.TMDBConfig) *TMDBClient {
	if cfg.APIKey == "" {
		return nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.themoviedb.org/3"
	}
	return &TMDBClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// tmdbEndpoint maps an enrichment kind to the TMDB path segment.
func tmdbEndpoint(kind string) string {
	if kind == models.EnrichmentKindSeries {
		return "tv"
	}
	return "movie"
}

func (c *TMDBClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode tmdb response: %w", err)
	}
	return nil
}

// Search finds a TMDB identifier by title and optional year. Returns
// "" when nothing matches. Useful for localized titles whose Plex GUIDs
// carry no usable identifier.
func (c *TMDBClient) Search(ctx context.Context, title string, year int, kind string) (string, error) {
	params := url.Values{}
	params.Set("query", title)
	if year > 0 {
		if kind == models.EnrichmentKindSeries {
			params.Set("first_air_date_year", strconv.Itoa(year))
		} else {
			params.Set("year", strconv.Itoa(year))
		}
	}

	var payload struct {
		Results []struct {
			ID int64 `json:"id"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/search/"+tmdbEndpoint(kind), params, &payload); err != nil {
		return "", err
	}
	if len(payload.Results) == 0 {
		return "", nil
	}
	return strconv.FormatInt(payload.Results[0].ID, 10), nil
}

// Rating fetches the community vote average (0-10) for a TMDB item.
// Returns nil when the item has no votes.
func (c *TMDBClient) Rating(ctx context.Context, tmdbID, kind string) (*float64, error) {
	var payload struct {
		VoteAverage float64 `json:"vote_average"`
	}
	if err := c.get(ctx, "/"+tmdbEndpoint(kind)+"/"+tmdbID, url.Values{}, &payload); err != nil {
		return nil, err
	}
	if payload.VoteAverage == 0 {
		return nil, nil
	}
	return &payload.VoteAverage, nil
}

// PersonImageURL looks up a portrait for an actor by name. Returns ""
// when TMDB has no match or no profile image.
func (c *TMDBClient) PersonImageURL(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("query", name)

	var payload struct {
		Results []struct {
			ProfilePath string `json:"profile_path"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/search/person", params, &payload); err != nil {
		return "", err
	}
	if len(payload.Results) == 0 || payload.Results[0].ProfilePath == "" {
		return "", nil
	}
	return "https://image.tmdb.org/t/p/w185" + payload.Results[0].ProfilePath, nil
}

// ExternalIMDbID cross-references a TMDB item to its IMDb identifier.
// Returns "" when TMDB knows no mapping.
func (c *TMDBClient) ExternalIMDbID(ctx context.Context, tmdbID, kind string) (string, error) {
	var payload struct {
		IMDbID string `json:"imdb_id"`
	}
	if err := c.get(ctx, "/"+tmdbEndpoint(kind)+"/"+tmdbID+"/external_ids", url.Values{}, &payload); err != nil {
		return "", err
	}
	return payload.IMDbID, nil
}
