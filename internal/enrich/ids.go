// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrich

import (
	"regexp"
	"strings"
)

// Plex agents encode external identifiers in GUID strings with no
// single canonical shape. Seen in the wild:
//
//	imdb://tt0133093
//	tmdb://603
//	com.plexapp.agents.imdb://tt0133093?lang=en
//	com.plexapp.agents.themoviedb://603?lang=en
var (
	imdbIDPattern      = regexp.MustCompile(`(tt\d+)`)
	tmdbNamespaceID    = regexp.MustCompile(`tmdb://(\d+)`)
	firstDigitsPattern = regexp.MustCompile(`(\d+)`)
)

// ExtractIMDbID returns the first IMDb identifier found in the GUID
// list, or "" when none matches.
func ExtractIMDbID(guids []string) string {
	for _, g := range guids {
		if !strings.Contains(g, "imdb") && !strings.Contains(g, "tt") {
			continue
		}
		if m := imdbIDPattern.FindStringSubmatch(g); m != nil {
			return m[1]
		}
	}
	return ""
}

// ExtractTMDBID returns the first TMDB identifier found in the GUID
// list, or "" when none matches. The tmdb:// namespace is preferred;
// for legacy agent URIs the first digit run is taken.
func ExtractTMDBID(guids []string) string {
	for _, g := range guids {
		if !strings.Contains(g, "tmdb") && !strings.Contains(g, "themoviedb") {
			continue
		}
		if m := tmdbNamespaceID.FindStringSubmatch(g); m != nil {
			return m[1]
		}
		if m := firstDigitsPattern.FindStringSubmatch(g); m != nil {
			return m[1]
		}
	}
	return ""
}
