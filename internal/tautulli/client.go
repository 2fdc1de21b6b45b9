// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tautulli implements the HTTP client for the Tautulli v2 API.
//
// All endpoints share the /api/v2?apikey=...&cmd=... shape and wrap
// their payload in {"response": {"result", "message", "data"}}. The
// client handles HTTP 429 rate limiting with exponential backoff and
// validates the response wrapper before returning typed data.
package tautulli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/metrics"
)

// maxErrorBodySize caps how much of an error response body is read for
// diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// historyDateFormat is the YYYY-MM-DD form get_history's start_date expects.
const historyDateFormat = "2006-01-02"

// readBodyForError reads up to maxErrorBodySize of the response body
// for error reporting, returning a placeholder if reading fails.
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// Client handles communication with the Tautulli HTTP API.
//
// Rate limiting: HTTP 429 responses are retried with exponential
// backoff (1s, 2s, 4s, 8s, 16s), honoring Retry-After when present.
//
// Thread safety: safe for concurrent use, each call builds its own
// request.
type Client struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a Tautulli API client from the provided configuration.
func NewClient(cfg *config.TautulliConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
		maxRetries:     5,
		retryBaseDelay: 1 * time.Second,
	}
}

// doRequestWithRateLimit performs a GET with automatic HTTP 429 handling.
// The context cancels both in-flight requests and backoff waits.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close() // retrying anyway

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		// 1s, 2s, 4s, 8s, 16s
		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))

		// Retry-After (RFC 6585) overrides the computed backoff
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// makeRequest handles common Tautulli API request boilerplate: it adds
// apikey and cmd to the query, performs the request with rate limit
// handling, checks the HTTP status, decodes JSON into result, and
// validates the response wrapper's result field.
func (c *Client) makeRequest(ctx context.Context, cmd string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", cmd)

	reqURL := fmt.Sprintf("%s/api/v2?%s", c.baseURL, params.Encode())

	start := time.Now()
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	metrics.UpstreamRequestDuration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to make %s request: %w", cmd, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return fmt.Errorf("%s request failed with status %d: %s", cmd, resp.StatusCode, string(body))
	}

	if err := decodeJSONResponse(resp, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", cmd, err)
	}

	return validateResponse(result, cmd)
}

// decodeJSONResponse decodes the HTTP response body into result.
func decodeJSONResponse(resp *http.Response, result interface{}) error {
	decoder := json.NewDecoder(resp.Body)
	return decoder.Decode(result)
}

// validateResponse checks the Tautulli response wrapper for success.
// All response types share the Response.Result/Response.Message shape,
// so reflection reads the fields without per-type validation code.
func validateResponse(result interface{}, cmd string) error {
	v := reflect.ValueOf(result)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return nil
	}

	responseField := v.FieldByName("Response")
	if !responseField.IsValid() {
		return nil
	}

	resultField := responseField.FieldByName("Result")
	if !resultField.IsValid() || resultField.Kind() != reflect.String {
		return nil
	}

	if resultField.String() != "success" {
		msg := "unknown error"
		messageField := responseField.FieldByName("Message")
		if messageField.IsValid() && messageField.Kind() == reflect.Ptr && !messageField.IsNil() {
			if messageField.Elem().Kind() == reflect.String {
				msg = messageField.Elem().String()
			}
		}
		return fmt.Errorf("%s request failed: %s", cmd, msg)
	}

	return nil
}

// Ping verifies connectivity to the Tautulli API.
func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", "arnold")

	reqURL := fmt.Sprintf("%s/api/v2?%s", c.baseURL, params.Encode())

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return fmt.Errorf("failed to ping Tautulli: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Tautulli ping failed with status: %d", resp.StatusCode)
	}

	return nil
}

// GetHistory retrieves grouped playback history for a single calendar
// day, ordered oldest first. A nil userID fetches history across all
// users. Tautulli's start_date selects records whose playback date
// falls on that day in the server's timezone, which may differ from
// ours; callers filter the returned records to the day they asked for.
func (c *Client) GetHistory(ctx context.Context, userID *int, day time.Time, start, length int) (*History, error) {
	params := url.Values{}
	params.Set("grouping", "1")
	params.Set("order_column", "date")
	params.Set("order_dir", "asc")
	params.Set("start_date", day.Format(historyDateFormat))
	params.Set("start", strconv.Itoa(start))
	params.Set("length", strconv.Itoa(length))
	if userID != nil {
		params.Set("user_id", strconv.Itoa(*userID))
	}

	var history History
	if err := c.makeRequest(ctx, "get_history", params, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// GetMetadata retrieves full metadata for a rating key.
func (c *Client) GetMetadata(ctx context.Context, ratingKey string) (*Metadata, error) {
	params := url.Values{}
	params.Set("rating_key", ratingKey)

	var metadata Metadata
	if err := c.makeRequest(ctx, "get_metadata", params, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// GetUsers retrieves all users known to the Tautulli server.
func (c *Client) GetUsers(ctx context.Context) (*Users, error) {
	var users Users
	if err := c.makeRequest(ctx, "get_users", nil, &users); err != nil {
		return nil, err
	}
	return &users, nil
}
