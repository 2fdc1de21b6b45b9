// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package enrich resolves external identifiers and ratings for the
// distinct titles in watch history. Movies are keyed by their own
// rating key, episodes by their series key; each title is enriched
// once and shared across users.
//
// Per title the pipeline walks a fixed ladder: Plex GUIDs, TMDB search
// fallback, TMDB to IMDb cross-reference, TMDB community rating, OMDb
// for IMDb and Rotten Tomatoes scores. Whatever subset answers feeds a
// weighted unified score. Individual failures never abort a run.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wrapparr/wrapparr/internal/config"
	"github.com/wrapparr/wrapparr/internal/logging"
	"github.com/wrapparr/wrapparr/internal/metrics"
	"github.com/wrapparr/wrapparr/internal/models"
	"github.com/wrapparr/wrapparr/internal/tautulli"
)

// ProgressFunc receives human-readable progress lines during a run.
// A nil ProgressFunc is valid and discards all lines.
type ProgressFunc func(msg string)

func (p ProgressFunc) emitf(format string, args ...interface{}) {
	if p != nil {
		p(fmt.Sprintf(format, args...))
	}
}

// MetadataClient is the slice of the Tautulli API the pipeline consumes.
type MetadataClient interface {
	GetMetadata(ctx context.Context, ratingKey string) (*tautulli.Metadata, error)
}

// Store is the persistence surface the pipeline reads and writes.
type Store interface {
	DistinctTitles(ctx context.Context, start, end time.Time) ([]models.EnrichmentCandidate, error)
	ScoredKeys(ctx context.Context) (map[string]bool, error)
	UpsertEnrichment(ctx context.Context, e *models.MediaEnrichment) error
}

// Result reports what an enrichment run accomplished.
type Result struct {
	Processed int `json:"processed"`
	Scored    int `json:"scored"`
	Failed    int `json:"failed"`
}

// Pipeline runs metadata enrichment. TMDB and OMDb clients are
// optional; a nil client skips that source.
type Pipeline struct {
	client MetadataClient
	store  Store
	tmdb   *TMDBClient
	omdb   *OMDbClient
	cfg    config.EnrichConfig

	now func() time.Time
}

// NewPipeline creates an enrichment pipeline.
func NewPipeline(client MetadataClient, store Store, tmdb *TMDBClient, omdb *OMDbClient, cfg config.EnrichConfig) *Pipeline {
	return &Pipeline{
		client: client,
		store:  store,
		tmdb:   tmdb,
		omdb:   omdb,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run enriches every distinct title in the period that does not yet
// have a unified score. Titles are processed in concurrent batches with
// a pause between batches to stay friendly to the external APIs.
func (p *Pipeline) Run(ctx context.Context, start, end time.Time, progress ProgressFunc) (Result, error) {
	candidates, err := p.store.DistinctTitles(ctx, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list distinct titles: %w", err)
	}

	scored, err := p.store.ScoredKeys(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list scored keys: %w", err)
	}

	pending := make([]models.EnrichmentCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !scored[c.RatingKey] {
			pending = append(pending, c)
		}
	}

	if len(pending) == 0 {
		progress.emitf("INFO: No new items to enrich.")
		return Result{}, nil
	}

	progress.emitf("INFO: Starting enrichment for %d items.", len(pending))

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}
	pause := p.cfg.BatchPause
	if pause <= 0 {
		pause = 500 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(pause), 1)

	var result Result
	var mu sync.Mutex

	for i := 0; i < len(pending); i += batchSize {
		if err := limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("enrichment cancelled: %w", err)
		}

		batchEnd := i + batchSize
		if batchEnd > len(pending) {
			batchEnd = len(pending)
		}
		batch := pending[i:batchEnd]

		var wg sync.WaitGroup
		for j := range batch {
			wg.Add(1)
			go func(c models.EnrichmentCandidate) {
				defer wg.Done()
				enrichment, err := p.enrichOne(ctx, c, progress)
				mu.Lock()
				defer mu.Unlock()
				result.Processed++
				if err != nil {
					result.Failed++
					metrics.EnrichmentOutcomes.WithLabelValues("failed").Inc()
					progress.emitf("ERROR processing %s: %v", c.Title, err)
					return
				}
				if enrichment.UnifiedScore != nil {
					result.Scored++
					metrics.EnrichmentOutcomes.WithLabelValues("scored").Inc()
				} else {
					metrics.EnrichmentOutcomes.WithLabelValues("unscored").Inc()
				}
			}(batch[j])
		}
		wg.Wait()
	}

	progress.emitf("DONE: Enrichment complete.")
	return result, nil
}

// enrichOne resolves identifiers and ratings for a single title and
// persists the result.
func (p *Pipeline) enrichOne(ctx context.Context, c models.EnrichmentCandidate, progress ProgressFunc) (*models.MediaEnrichment, error) {
	progress.emitf("Processing: %s", c.Title)

	e := models.MediaEnrichment{
		RatingKey: c.RatingKey,
		Title:     c.Title,
		Kind:      c.Kind,
		Year:      c.Year,
		UpdatedAt: p.now(),
	}

	// Plex metadata: identifiers plus generic rating estimates that
	// later sources may override. A nil client skips straight to the
	// external sources.
	if p.client != nil {
		if meta, err := p.client.GetMetadata(ctx, c.RatingKey); err != nil {
			progress.emitf("WARN: Metadata fetch failed for %s: %v", c.Title, err)
		} else {
			guids := meta.Response.Data.AllGUIDs()
			e.IMDbID = ExtractIMDbID(guids)
			e.TMDBID = ExtractTMDBID(guids)

			if r := float64(meta.Response.Data.Rating); r > 0 {
				e.RatingTMDB = &r
			}
			if ar := float64(meta.Response.Data.AudienceRating); ar > 0 {
				// Audience ratings usually come on a 0-10 scale, rarely
				// already as a percentage
				pct := int(ar*10 + 0.5)
				if ar > 10 {
					pct = int(ar + 0.5)
				}
				e.RatingRTCritic = &pct
			}
		}
	}

	// Localized titles often carry no usable GUID; a TMDB search by
	// title and year recovers most of them.
	if e.TMDBID == "" && p.tmdb != nil {
		if id, err := p.tmdb.Search(ctx, c.Title, c.Year, c.Kind); err != nil {
			logging.Debug().Err(err).Str("title", c.Title).Msg("TMDB search failed")
		} else {
			e.TMDBID = id
		}
	}

	if e.TMDBID != "" && e.IMDbID == "" && p.tmdb != nil {
		if id, err := p.tmdb.ExternalIMDbID(ctx, e.TMDBID, c.Kind); err != nil {
			logging.Debug().Err(err).Str("title", c.Title).Msg("TMDB external-ids lookup failed")
		} else {
			e.IMDbID = id
		}
	}

	if e.TMDBID != "" && p.tmdb != nil {
		if v, err := p.tmdb.Rating(ctx, e.TMDBID, c.Kind); err != nil {
			logging.Debug().Err(err).Str("title", c.Title).Msg("TMDB rating fetch failed")
		} else if v != nil {
			e.RatingTMDB = v
		}
	}

	if p.omdb != nil {
		if omdb, err := p.omdb.Lookup(ctx, c.Title, c.Year, c.Kind, e.IMDbID); err != nil {
			logging.Debug().Err(err).Str("title", c.Title).Msg("OMDb lookup failed")
		} else {
			e.RawResponse = string(omdb.Raw)
			if e.IMDbID == "" && omdb.IMDbID != "N/A" {
				e.IMDbID = omdb.IMDbID
			}
			if poster := omdb.PosterURL(); poster != "" {
				e.Poster = poster
			}
			if v := omdb.IMDbRatingValue(); v != nil {
				e.RatingIMDb = v
			}
			if v := omdb.RTCriticValue(); v != nil {
				e.RatingRTCritic = v
			}
		}
	}

	e.UnifiedScore = UnifiedScore(e.RatingIMDb, e.RatingRTCritic, e.RatingTMDB)

	if err := p.store.UpsertEnrichment(ctx, &e); err != nil {
		return nil, fmt.Errorf("failed to persist enrichment: %w", err)
	}

	if e.UnifiedScore != nil {
		progress.emitf("  > Enriched %q: Unified Score %d", c.Title, *e.UnifiedScore)
	} else {
		progress.emitf("  > Saved %q (no score calculated)", c.Title)
	}
	return &e, nil
}
