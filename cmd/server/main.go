// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the Wrapparr server.
//
// Wrapparr builds a Plex "year in review" from Tautulli watch history.
// It imports history day by day into DuckDB, enriches watched titles
// with TMDB and OMDb ratings, and serves computed wrapped statistics
// over a small REST API.
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, config.yaml, then WRAPPARR_* env vars (Koanf v2)
//  2. Database: DuckDB with the events, users, checkpoints, and enrichment tables
//  3. Tautulli client: circuit-breaker wrapped, optional until configured
//  4. Event bus: in-process pub/sub for stats cache invalidation
//  5. Engines: history sync, metadata enrichment, stats computation
//  6. HTTP server: REST API plus health and Prometheus endpoints
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting connections, waits up to 10s for in-flight requests, then
// closes the bus and database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wrapparr/wrapparr/internal/api"
	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/database"
	"github.com/wrapparr/wrapparr/internal/enrich"
	"github.com/wrapparr/wrapparr/internal/events"
	"github.com/wrapparr/wrapparr/internal/logging"
	"github.com/wrapparr/wrapparr/internal/stats"
	"github.com/wrapparr/wrapparr/internal/sync"
	"github.com/wrapparr/wrapparr/internal/tautulli"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors log through the default logger; Init has not run yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("tautulli_configured", cfg.Tautulli.Configured()).
		Msg("Starting Wrapparr")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The Tautulli client is optional: without it the server still
	// answers stats from previously imported history.
	var client sync.Client
	var pinger api.Pinger
	if cfg.Tautulli.Configured() {
		breaker := tautulli.NewBreakerClient(&cfg.Tautulli)
		client = breaker
		pinger = breaker
		if err := breaker.Ping(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to reach Tautulli (will retry on demand)")
		} else {
			logging.Info().Str("url", cfg.Tautulli.URL).Msg("Connected to Tautulli")
		}
	} else {
		logging.Warn().Msg("Tautulli is not configured, sync endpoints will refuse to run")
	}

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	engine := sync.NewEngine(client, db, bus, cfg.Sync)

	tmdb := enrich.NewTMDBClient(&cfg.TMDB)
	omdb := enrich.NewOMDbClient(&cfg.OMDb)
	if tmdb == nil {
		logging.Info().Msg("TMDB enrichment disabled (no API key)")
	}
	if omdb == nil {
		logging.Info().Msg("OMDb enrichment disabled (no API key)")
	}
	pipeline := enrich.NewPipeline(client, db, tmdb, omdb, cfg.Enrich)

	// A nil *TMDBClient must stay a nil interface for the stats engine.
	var portraits stats.PortraitClient
	if tmdb != nil {
		portraits = tmdb
	}
	ai := stats.NewAIClient(&cfg.AI)
	if ai != nil {
		logging.Info().Str("model", cfg.AI.Model).Msg("AI summaries enabled")
	}
	statsEngine := stats.NewEngine(db, portraits, ai)

	if err := statsEngine.SubscribeInvalidations(ctx, bus); err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe stats cache invalidation")
	}

	if cfg.Sync.Interval > 0 && client != nil {
		go runPeriodicSync(ctx, engine, cfg.Sync.Interval)
	}

	handler := api.NewHandler(db, pinger, engine, pipeline, statsEngine, cfg)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: 0, // streaming sync responses outlive any fixed write deadline
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal().Err(err).Msg("HTTP server failed")
	}

	<-ctx.Done()
	logging.Info().Msg("Application stopped gracefully")
}

// runPeriodicSync re-imports the current calendar year on a fixed
// interval. Checkpointing keeps each run cheap: only today and any
// not-yet-completed days are fetched.
func runPeriodicSync(ctx context.Context, engine *sync.Engine, interval time.Duration) {
	logging.Info().Dur("interval", interval).Msg("Periodic sync enabled")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

		if _, err := engine.SyncUsers(ctx); err != nil {
			logging.Error().Err(err).Msg("Periodic user sync failed")
		}
		result, err := engine.SyncGlobalHistory(ctx, start, now, nil)
		if err != nil {
			if errors.Is(err, sync.ErrCancelled) {
				return
			}
			logging.Error().Err(err).Msg("Periodic history sync failed")
			continue
		}
		logging.Info().
			Int("days", result.DaysImported).
			Int("events", result.EventsImported).
			Msg("Periodic sync complete")
	}
}
