// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/models"
)

// OMDbResult is the slice of an OMDb reply the pipeline consumes.
// OMDb encodes absence as the literal string "N/A" rather than null.
type OMDbResult struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Poster     string `json:"Poster"`
	IMDbRating string `json:"imdbRating"`
	IMDbID     string `json:"imdbID"`
	Ratings    []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
	Response string `json:"Response"`
	Error    string `json:"Error,omitempty"`

	// Raw is the full reply body, preserved for audit.
	Raw []byte `json:"-"`
}

// IMDbRatingValue parses the IMDb rating, nil for "N/A" or garbage.
func (r *OMDbResult) IMDbRatingValue() *float64 {
	if r.IMDbRating == "" || r.IMDbRating == "N/A" {
		return nil
	}
	v, err := strconv.ParseFloat(r.IMDbRating, 64)
	if err != nil {
		return nil
	}
	return &v
}

// RTCriticValue parses the Rotten Tomatoes critic percentage ("87%"),
// nil when the reply carries none.
func (r *OMDbResult) RTCriticValue() *int {
	for _, rating := range r.Ratings {
		if rating.Source != "Rotten Tomatoes" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(rating.Value, "%"))
		if err != nil {
			return nil
		}
		return &v
	}
	return nil
}

// PosterURL returns the poster URL, "" for "N/A".
func (r *OMDbResult) PosterURL() string {
	if r.Poster == "N/A" {
		return ""
	}
	return r.Poster
}

// OMDbClient talks to the OMDb ratings aggregator. A nil client
// disables OMDb lookups in the pipeline.
type OMDbClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOMDbClient creates an OMDb client, or nil when no API key is
// configured.
func NewOMDbClient(cfg *config.OMDbConfig) *OMDbClient {
	if cfg.APIKey == "" {
		return nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://www.omdbapi.com"
	}
	return &OMDbClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Lookup queries OMDb by IMDb identifier when one is known, otherwise
// by title, year, and kind. A "not found" reply is returned as an
// error so callers treat it like any other miss.
func (c *OMDbClient) Lookup(ctx context.Context, title string, year int, kind, imdbID string) (*OMDbResult, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	if imdbID != "" {
		params.Set("i", imdbID)
	} else {
		params.Set("t", title)
		if year > 0 {
			params.Set("y", strconv.Itoa(year))
		}
		params.Set("type", omdbType(kind))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("omdb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("omdb returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read omdb response: %w", err)
	}

	var result OMDbResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode omdb response: %w", err)
	}
	result.Raw = body

	if result.Response == "False" {
		return nil, fmt.Errorf("omdb: %s", result.Error)
	}
	return &result, nil
}

func omdbType(kind string) string {
	if kind == models.EnrichmentKindSeries {
		return "series"
	}
	return "movie"
}
