// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config defines the Wrapparr configuration model and its loader.
//
// Configuration is layered (defaults, then YAML file, then WRAPPARR_*
// environment variables) via koanf v2. See koanf.go for the loader.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Wrapparr server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Logging  LoggingConfig  `koanf:"logging"`
	Tautulli TautulliConfig `koanf:"tautulli"`
	TMDB     TMDBConfig     `koanf:"tmdb"`
	OMDb     OMDbConfig     `koanf:"omdb"`
	AI       AIConfig       `koanf:"ai"`
	Sync     SyncConfig     `koanf:"sync"`
	Enrich   EnrichConfig   `koanf:"enrich"`
	Security SecurityConfig `koanf:"security"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds the DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// TautulliConfig holds the upstream Tautulli connection.
type TautulliConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// Configured reports whether a Tautulli connection has been set up.
// Sync and enrichment refuse to run without one.
func (c *TautulliConfig) Configured() bool {
	return c.URL != "" && c.APIKey != ""
}

// TMDBConfig holds the TMDB catalog provider credentials.
type TMDBConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// OMDbConfig holds the OMDb ratings aggregator credentials.
type OMDbConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// AIConfig controls the optional roast-summary generation.
// Instructions is passed through verbatim as the system prompt.
type AIConfig struct {
	Enabled      bool   `koanf:"enabled"`
	APIKey       string `koanf:"api_key"`
	BaseURL      string `koanf:"base_url"`
	Model        string `koanf:"model"`
	Instructions string `koanf:"instructions"`
}

// SyncConfig tunes the history sync engine.
type SyncConfig struct {
	// HistoryPageSize is the row limit requested per day fetch.
	HistoryPageSize int `koanf:"history_page_size" validate:"min=1"`

	// MetadataBatchSize bounds concurrent metadata lookups within a day.
	MetadataBatchSize int `koanf:"metadata_batch_size" validate:"min=1"`

	// MetadataBatchPause is the courtesy pause between metadata batches.
	MetadataBatchPause time.Duration `koanf:"metadata_batch_pause"`

	// DayConcurrency bounds in-flight days during a global sync.
	DayConcurrency int `koanf:"day_concurrency" validate:"min=1"`

	// Interval enables periodic current-year global sync when > 0.
	Interval time.Duration `koanf:"interval"`
}

// EnrichConfig tunes the metadata enrichment pipeline.
type EnrichConfig struct {
	BatchSize  int           `koanf:"batch_size" validate:"min=1"`
	BatchPause time.Duration `koanf:"batch_pause"`
}

// SecurityConfig holds the shared-token API gate.
// Authentication scheme design is deliberately out of scope; the API
// carries a single bearer token compared in constant time.
type SecurityConfig struct {
	APIToken          string        `koanf:"api_token"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3885,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/wrapparr.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Tautulli: TautulliConfig{
			Timeout: 30 * time.Second,
		},
		TMDB: TMDBConfig{
			BaseURL: "https://api.themoviedb.org/3",
		},
		OMDb: OMDbConfig{
			BaseURL: "https://www.omdbapi.com",
		},
		AI: AIConfig{
			Enabled: false,
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Sync: SyncConfig{
			HistoryPageSize:    2000,
			MetadataBatchSize:  5,
			MetadataBatchPause: 500 * time.Millisecond,
			DayConcurrency:     10,
			Interval:           0, // periodic sync disabled by default
		},
		Enrich: EnrichConfig{
			BatchSize:  25,
			BatchPause: 500 * time.Millisecond,
		},
		Security: SecurityConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
	}
}

// Validate checks the configuration for structural and semantic errors.
// Struct tags cover ranges; hand checks cover cross-field rules that
// tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Tautulli.URL != "" {
		u, err := url.Parse(c.Tautulli.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("tautulli.url %q is not a valid URL", c.Tautulli.URL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("tautulli.url scheme must be http or https, got %q", u.Scheme)
		}
	}
	if c.Tautulli.URL != "" && c.Tautulli.APIKey == "" {
		return fmt.Errorf("tautulli.api_key is required when tautulli.url is set")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required when ai.enabled is true")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	return nil
}
