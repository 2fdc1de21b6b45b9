// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package sync

import "errors"

// Error taxonomy for sync operations. Only these three classes reach
// callers: everything below one-item granularity (a single metadata
// fetch, a single enrichment source) is swallowed and logged.
var (
	// ErrConfigurationMissing means no Tautulli connection is
	// configured. Fatal and immediate, never retried.
	ErrConfigurationMissing = errors.New("tautulli configuration missing")

	// ErrUpstreamFetch wraps a failed history fetch. It aborts the
	// whole range: connectivity failures are systemic, not per-day.
	ErrUpstreamFetch = errors.New("upstream history fetch failed")

	// ErrCancelled marks cooperative cancellation. Callers treat it as
	// a clean stop, not a failure.
	ErrCancelled = errors.New("sync cancelled")
)
