// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package sync

import "fmt"

// ProgressFunc receives human-readable progress lines during a sync.
// Lines use distinguishable prefixes so a UI can parse them:
//
//	INFO: <text>            general information
//	PROGRESS:<n>            percent of days processed, 0-100
//	MONTH_START:<Month Year> the day walk crossed into a new month
//	WARN: <text>            non-fatal anomaly
//
// A nil ProgressFunc is valid and discards all lines.
type ProgressFunc func(msg string)

func (p ProgressFunc) emit(msg string) {
	if p != nil {
		p(msg)
	}
}

func (p ProgressFunc) emitf(format string, args ...interface{}) {
	if p != nil {
		p(fmt.Sprintf(format, args...))
	}
}

// progressTracker emits PROGRESS and MONTH_START lines as the day walk
// advances, deduplicating repeated percentages.
type progressTracker struct {
	sink         ProgressFunc
	totalDays    int
	processed    int
	lastPercent  int
	lastMonthKey string
}

func newProgressTracker(sink ProgressFunc, totalDays int) *progressTracker {
	return &progressTracker{sink: sink, totalDays: totalDays}
}

// step advances the tracker by one day and emits lines as needed.
func (t *progressTracker) step(monthLabel string) {
	t.processed++
	percent := t.processed * 100 / t.totalDays
	if percent > t.lastPercent {
		t.sink.emitf("PROGRESS:%d", percent)
		t.lastPercent = percent
	}
	if monthLabel != t.lastMonthKey {
		t.sink.emitf("MONTH_START:%s", monthLabel)
		t.lastMonthKey = monthLabel
	}
}
