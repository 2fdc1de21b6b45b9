// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"sync"

	"github.com/wrapparr/wrapparr/internal/logging"
)

// lineStreamer writes newline-delimited progress text to the client,
// flushing after every line so the UI can render sync progress live.
// Safe for concurrent use: orchestrated syncs report from multiple
// goroutines.
type lineStreamer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	prefix  string
}

// newLineStreamer prepares the response for streaming. The prefix is
// prepended to every line.
func newLineStreamer(w http.ResponseWriter, prefix string) *lineStreamer {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &lineStreamer{w: w, flusher: flusher, prefix: prefix}
}

// WriteLine emits one progress line.
func (s *lineStreamer) WriteLine(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write([]byte(s.prefix + msg + "\n")); err != nil {
		logging.Debug().Err(err).Msg("Progress stream write failed")
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
