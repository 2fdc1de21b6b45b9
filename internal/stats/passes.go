// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/wrapparr/wrapparr/internal/models"
)

// Fixed constants of the aggregation passes.
const (
	// implausibleYearFloor excludes bogus release years from the
	// oldest-by-kind pass. Plex sometimes reports 0 or placeholder
	// years.
	implausibleYearFloor = 1800

	// commitmentThreshold is the exclusive percent-complete below which
	// a movie counts as abandoned.
	commitmentThreshold = 20
	commitmentTitlesCap = 50

	// bingeGap is the maximum wall-clock gap between one episode's
	// computed end and the next episode's start for the run to continue.
	bingeGap = 20 * time.Minute

	// Monetary constants: digital movie purchase, streaming month, and
	// US statutory damages per infringed work.
	pricePerMovie      = 12.00
	pricePerStreamMo   = 15.49
	hoursPerStreamMo   = 10.0
	statutoryDamagesUS = 150_000
)

// Time-of-day classification thresholds.
const (
	balancedVariance  = 0.15
	dominantThreshold = 0.50
	morningThreshold  = 0.40
)

// totals sums watch seconds by kind and file sizes across the period.
func totals(events []models.WatchEvent) (split models.MediaTypeSplit, bandwidth int64) {
	for i := range events {
		e := &events[i]
		switch e.MediaType {
		case models.MediaTypeMovie:
			split.Movies += int64(e.Duration)
		case models.MediaTypeEpisode:
			split.Shows += int64(e.Duration)
		}
		bandwidth += e.FileSize
	}
	return split, bandwidth
}

// formatDuration renders seconds as "123h 45m".
func formatDuration(seconds int64) string {
	return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
}

// oldestByKind finds the oldest plausible release per kind, ties broken
// by row order.
func oldestByKind(events []models.WatchEvent) (movie, show *models.TitleYear) {
	for i := range events {
		e := &events[i]
		if e.Year <= implausibleYearFloor {
			continue
		}
		switch e.MediaType {
		case models.MediaTypeMovie:
			if movie == nil || e.Year < movie.Year {
				movie = &models.TitleYear{Title: e.Title, Year: e.Year}
			}
		case models.MediaTypeEpisode:
			if show == nil || e.Year < show.Year {
				show = &models.TitleYear{Title: e.SeriesTitle(), Year: e.Year}
			}
		}
	}
	return movie, show
}

// topActors ranks actors by distinct-project count, ties broken by
// first-seen order. Each actor is credited once per distinct project
// but accumulates the duration of every event they appear on.
func topActors(events []models.WatchEvent) []models.ActorStat {
	type actorAgg struct {
		projects map[string]bool
		seconds  int64
		order    int
	}
	actors := make(map[string]*actorAgg)
	order := 0

	for i := range events {
		e := &events[i]
		if e.Actors == "" {
			continue
		}
		project := e.SeriesTitle()
		for _, raw := range strings.Split(e.Actors, ",") {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			agg, ok := actors[name]
			if !ok {
				agg = &actorAgg{projects: make(map[string]bool), order: order}
				actors[name] = agg
				order++
			}
			agg.projects[project] = true
			agg.seconds += int64(e.Duration)
		}
	}

	names := make([]string, 0, len(actors))
	for name := range actors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := actors[names[i]], actors[names[j]]
		if len(a.projects) != len(b.projects) {
			return len(a.projects) > len(b.projects)
		}
		return a.order < b.order
	})

	if len(names) > 5 {
		names = names[:5]
	}

	result := make([]models.ActorStat, 0, len(names))
	for _, name := range names {
		agg := actors[name]
		titles := make([]string, 0, len(agg.projects))
		for title := range agg.projects {
			titles = append(titles, title)
		}
		sort.Strings(titles)
		result = append(result, models.ActorStat{
			Actor:  name,
			Count:  len(agg.projects),
			Time:   agg.seconds,
			Titles: titles,
		})
	}
	return result
}

// genreWheel computes the top 5 genres by share of all genre-tag
// occurrences, counted per occurrence rather than per distinct title.
func genreWheel(events []models.WatchEvent) []models.GenreShare {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	total := 0
	order := 0

	for i := range events {
		if events[i].Genres == "" {
			continue
		}
		for _, raw := range strings.Split(events[i].Genres, ",") {
			genre := strings.TrimSpace(raw)
			if genre == "" {
				continue
			}
			if _, ok := counts[genre]; !ok {
				firstSeen[genre] = order
				order++
			}
			counts[genre]++
			total++
		}
	}
	if total == 0 {
		return []models.GenreShare{}
	}

	genres := make([]string, 0, len(counts))
	for g := range counts {
		genres = append(genres, g)
	}
	sort.Slice(genres, func(i, j int) bool {
		if counts[genres[i]] != counts[genres[j]] {
			return counts[genres[i]] > counts[genres[j]]
		}
		return firstSeen[genres[i]] < firstSeen[genres[j]]
	})
	if len(genres) > 5 {
		genres = genres[:5]
	}

	wheel := make([]models.GenreShare, 0, len(genres))
	for _, g := range genres {
		wheel = append(wheel, models.GenreShare{
			Genre:      g,
			Percentage: int(math.Round(float64(counts[g]) / float64(total) * 100)),
		})
	}
	return wheel
}

// timeTraveler returns the most-watched release decade and the rounded
// average release year. fallbackYear is used when no event carries a
// year.
func timeTraveler(events []models.WatchEvent, fallbackYear int) (models.DecadeCount, int) {
	decades := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	yearSum, yearCount := 0, 0

	for i := range events {
		year := events[i].Year
		if year == 0 {
			continue
		}
		key := fmt.Sprintf("%ds", year/10*10)
		if _, ok := decades[key]; !ok {
			firstSeen[key] = order
			order++
		}
		decades[key]++
		yearSum += year
		yearCount++
	}

	if yearCount == 0 {
		return models.DecadeCount{Decade: "N/A", Count: 0}, fallbackYear
	}

	best := models.DecadeCount{}
	for key, count := range decades {
		if count > best.Count || (count == best.Count && firstSeen[key] < firstSeen[best.Decade]) {
			best = models.DecadeCount{Decade: key, Count: count}
		}
	}
	avg := int(math.Round(float64(yearSum) / float64(yearCount)))
	return best, avg
}

// techStats summarizes total data volume, transcode share, and the top
// 5 players by play count.
func techStats(events []models.WatchEvent, bandwidth int64) models.TechStats {
	transcodes := 0
	players := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0

	for i := range events {
		e := &events[i]
		if e.TranscodeDecision == models.TranscodeDecisionTranscode {
			transcodes++
		}
		if e.Player != "" {
			if _, ok := players[e.Player]; !ok {
				firstSeen[e.Player] = order
				order++
			}
			players[e.Player]++
		}
	}

	names := make([]string, 0, len(players))
	for p := range players {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool {
		if players[names[i]] != players[names[j]] {
			return players[names[i]] > players[names[j]]
		}
		return firstSeen[names[i]] < firstSeen[names[j]]
	})
	if len(names) > 5 {
		names = names[:5]
	}
	top := make([]models.PlatformCount, 0, len(names))
	for _, p := range names {
		top = append(top, models.PlatformCount{Platform: p, Count: players[p]})
	}

	pct := 0
	if len(events) > 0 {
		pct = int(math.Round(float64(transcodes) / float64(len(events)) * 100))
	}
	return models.TechStats{
		TotalDataGB:      int(math.Round(float64(bandwidth) / (1024 * 1024 * 1024))),
		TranscodePercent: pct,
		TopPlatforms:     top,
	}
}

// commitmentIssues lists movies abandoned below the completion
// threshold. The count covers everything, the title list is capped.
func commitmentIssues(events []models.WatchEvent) models.CommitmentIssues {
	issues := models.CommitmentIssues{Titles: []string{}}
	for i := range events {
		e := &events[i]
		if e.MediaType != models.MediaTypeMovie || e.PercentComplete >= commitmentThreshold {
			continue
		}
		issues.Count++
		if len(issues.Titles) < commitmentTitlesCap {
			issues.Titles = append(issues.Titles, e.Title)
		}
	}
	return issues
}

// bingeRecord finds the longest run of back-to-back same-series
// episodes. The run continues when the next episode starts within
// bingeGap of the previous episode's computed end (start + duration).
// The first run reaching the maximum length wins; an equal-length later
// run does not override it. Events must be ordered by start time.
func bingeRecord(events []models.WatchEvent) *models.BingeRecord {
	episodes := make([]*models.WatchEvent, 0, len(events))
	for i := range events {
		if events[i].MediaType == models.MediaTypeEpisode && events[i].GrandparentRatingKey != "" {
			episodes = append(episodes, &events[i])
		}
	}
	if len(episodes) == 0 {
		return nil
	}

	maxStreak := 0
	best := models.BingeRecord{}
	streak := 1

	endRun := func(last *models.WatchEvent) {
		if streak > maxStreak {
			maxStreak = streak
			best = models.BingeRecord{
				Show:  last.SeriesTitle(),
				Count: streak,
				Date:  last.Date.Format("Mon Jan 2 2006"),
			}
		}
		streak = 1
	}

	for i := 1; i < len(episodes); i++ {
		prev, curr := episodes[i-1], episodes[i]
		if prev.GrandparentTitle != "" && prev.GrandparentTitle == curr.GrandparentTitle {
			prevEnd := prev.Date.Add(time.Duration(prev.Duration) * time.Second)
			gap := curr.Date.Sub(prevEnd)
			if gap >= 0 && gap < bingeGap {
				streak++
				continue
			}
		}
		endRun(prev)
	}
	endRun(episodes[len(episodes)-1])

	if maxStreak <= 1 {
		return nil
	}
	return &best
}

// lazyDay buckets watch hours by weekday. The chart is ordered Monday
// first; the winner is the weekday with the most hours, ties broken in
// Sunday-first order.
func lazyDay(events []models.WatchEvent) models.LazyDay {
	longNames := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	shortNames := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

	var seconds [7]int64
	for i := range events {
		seconds[int(events[i].Date.Weekday())] += int64(events[i].Duration)
	}

	days := make([]models.DayHours, 7)
	for i := 0; i < 7; i++ {
		days[i] = models.DayHours{
			Day:   longNames[i],
			Short: shortNames[i],
			Hours: int(math.Round(float64(seconds[i]) / 3600)),
		}
	}

	winner := days[0]
	for _, d := range days[1:] {
		if d.Hours > winner.Hours {
			winner = d
		}
	}

	chart := make([]models.DayHours, 0, 7)
	chart = append(chart, days[1:]...)
	chart = append(chart, days[0])

	return models.LazyDay{
		Winner:    models.DayHours{Day: winner.Day, Hours: winner.Hours},
		ChartData: chart,
	}
}

// activityType classifies viewing habits by time-of-day share.
// Buckets: morning 05:00-11:00, day 11:00-22:00, night 22:00-05:00.
// Precedence: balanced spread, night-dominant, day-dominant,
// morning-leaning, then whichever of day/night is larger.
func activityType(events []models.WatchEvent) models.ActivityType {
	var morning, day, night int64
	for i := range events {
		h := events[i].Date.Hour()
		v := int64(events[i].Duration)
		switch {
		case h >= 5 && h < 11:
			morning += v
		case h >= 11 && h < 22:
			day += v
		default:
			night += v
		}
	}

	total := morning + day + night
	if total == 0 {
		total = 1
	}
	mornPct := float64(morning) / float64(total)
	dayPct := float64(day) / float64(total)
	nightPct := float64(night) / float64(total)

	maxPct := math.Max(mornPct, math.Max(dayPct, nightPct))
	minPct := math.Min(mornPct, math.Min(dayPct, nightPct))

	var vibe, desc string
	switch {
	case maxPct-minPct < balancedVariance:
		vibe = "The Zen Master"
		desc = "Perfect harmony. You watch content when you want, without bias."
	case nightPct > dominantThreshold:
		vibe = "The Vampire"
		desc = "The sun is your enemy. Screen time increases as the world goes dark."
	case dayPct > dominantThreshold:
		vibe = "The Daydreamer"
		desc = "You max out your entertainment while the sun is up."
	case mornPct > morningThreshold:
		vibe = "The Early Bird"
		desc = "Cartoons with cereal? You start your day with a play button."
	case dayPct > nightPct:
		vibe = "The Daytime Dweller"
		desc = "You prefer the light, but you aren't afraid of the dark."
	default:
		vibe = "The Night Owl"
		desc = "You lean towards the evening, but aren't fully nocturnal yet."
	}

	return models.ActivityType{
		Winner:      vibe,
		Description: desc,
		Breakdown: []models.ActivityBucket{
			{Label: "Morning", Value: morning},
			{Label: "Day", Value: day},
			{Label: "Night", Value: night},
		},
	}
}

// longestBreak finds the item replayed across the widest gap in the
// period: max minus min play time per rating key, reported in whole
// days and only when at least one day.
func longestBreak(events []models.WatchEvent) *models.LongestBreak {
	type span struct {
		first, last time.Time
		title       string
		plays       int
	}
	spans := make(map[string]*span)
	keys := []string{}

	for i := range events {
		e := &events[i]
		if e.RatingKey == "" {
			continue
		}
		title := e.Title
		if e.GrandparentTitle != "" {
			title = e.GrandparentTitle
		}
		s, ok := spans[e.RatingKey]
		if !ok {
			spans[e.RatingKey] = &span{first: e.Date, last: e.Date, title: title, plays: 1}
			keys = append(keys, e.RatingKey)
			continue
		}
		s.plays++
		if e.Date.Before(s.first) {
			s.first = e.Date
		}
		if e.Date.After(s.last) {
			s.last = e.Date
		}
	}

	var best *models.LongestBreak
	for _, key := range keys {
		s := spans[key]
		if s.plays < 2 {
			continue
		}
		days := int(s.last.Sub(s.first).Hours() / 24)
		if days < 1 {
			continue
		}
		if best == nil || days > best.Days {
			best = &models.LongestBreak{Title: s.title, Days: days}
		}
	}
	return best
}

// topShowByEpisodes finds the series with the most episode plays.
func topShowByEpisodes(events []models.WatchEvent) *models.TitleCount {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0

	for i := range events {
		e := &events[i]
		if e.MediaType != models.MediaTypeEpisode {
			continue
		}
		title := e.SeriesTitle()
		if title == "" {
			title = "Unknown"
		}
		if _, ok := counts[title]; !ok {
			firstSeen[title] = order
			order++
		}
		counts[title]++
	}

	var best *models.TitleCount
	for title, count := range counts {
		if best == nil || count > best.Count ||
			(count == best.Count && firstSeen[title] < firstSeen[best.Title]) {
			best = &models.TitleCount{Title: title, Count: count}
		}
	}
	return best
}

// monetary computes the value proposition and the statutory-damages
// gag figure from distinct item counts.
func monetary(events []models.WatchEvent, showSeconds int64) (valueProposition int, pirateBay int64) {
	movies := make(map[string]bool)
	episodes := make(map[string]bool)
	for i := range events {
		e := &events[i]
		if e.RatingKey == "" {
			continue
		}
		switch e.MediaType {
		case models.MediaTypeMovie:
			movies[e.RatingKey] = true
		case models.MediaTypeEpisode:
			episodes[e.RatingKey] = true
		}
	}

	tvHours := float64(showSeconds) / 3600
	value := float64(len(movies))*pricePerMovie + tvHours/hoursPerStreamMo*pricePerStreamMo
	return int(math.Round(value)), int64(len(movies)+len(episodes)) * statutoryDamagesUS
}
