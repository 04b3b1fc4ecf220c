package inactivity

import (
	"sort"
	"time"

	"platewatch/internal/domain/radar"
	"platewatch/internal/stats"
)

// CameraMeta is what the monitor needs to know about a camera beyond the
// readings in the current window: who operates it and when it first spoke.
// Cameras absent from the map are discovered from the window readings.
type CameraMeta struct {
	Company   string
	FirstSeen time.Time
}

// Options scopes a computation.
type Options struct {
	// WindowStart / WindowEnd bound the days under consideration.
	WindowStart time.Time
	WindowEnd   time.Time

	// IncrementalSince is the capture-time watermark: only camera-days
	// touched by readings captured after it are recomputed, plus silent
	// days on or after its date (a silent day is never touched by data
	// yet must keep accruing full-day rows). Zero means recompute every
	// day in the window.
	IncrementalSince time.Time
}

type cameraSeries struct {
	key      string
	company  string
	first    time.Time
	readings []radar.Reading
}

// Compute builds one InactivityRecord per touched (camera, company, day).
// Each reading's gap runs to the next reading of the same camera
// (look-ahead by one) and is clipped at the end of the calendar day; the
// stretch from midnight to the first reading of the day is charged to the
// day as well. A day with no readings inside the camera's lifetime counts
// as silent for the full 24 hours.
func Compute(readings []radar.Reading, meta map[string]CameraMeta, opts Options) []radar.InactivityRecord {
	series := groupByCamera(readings, meta)

	var records []radar.InactivityRecord
	for _, s := range series {
		records = append(records, computeCamera(s, opts)...)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CameraKey != records[j].CameraKey {
			return records[i].CameraKey < records[j].CameraKey
		}
		return records[i].Date.Before(records[j].Date)
	})
	return records
}

func groupByCamera(readings []radar.Reading, meta map[string]CameraMeta) []cameraSeries {
	byKey := make(map[string]*cameraSeries)

	for key, m := range meta {
		byKey[key] = &cameraSeries{key: key, company: m.Company, first: m.FirstSeen}
	}

	for _, r := range readings {
		if r.CameraKey == "" {
			continue
		}
		s, ok := byKey[r.CameraKey]
		if !ok {
			s = &cameraSeries{key: r.CameraKey, company: r.Company, first: r.ObservedAt}
			byKey[r.CameraKey] = s
		}
		if s.company == "" {
			s.company = r.Company
		}
		if s.first.IsZero() || r.ObservedAt.Before(s.first) {
			s.first = r.ObservedAt
		}
		s.readings = append(s.readings, r)
	}

	out := make([]cameraSeries, 0, len(byKey))
	for _, s := range byKey {
		sort.Slice(s.readings, func(i, j int) bool {
			return s.readings[i].ObservedAt.Before(s.readings[j].ObservedAt)
		})
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func computeCamera(s cameraSeries, opts Options) []radar.InactivityRecord {
	if s.first.IsZero() {
		// Never seen at all: no lifetime to account for.
		return nil
	}

	rangeStart := startOfDay(opts.WindowStart)
	if firstDay := startOfDay(s.first); firstDay.After(rangeStart) {
		rangeStart = firstDay
	}

	var records []radar.InactivityRecord
	for day := rangeStart; day.Before(opts.WindowEnd); day = day.AddDate(0, 0, 1) {
		dayReadings := readingsInDay(s.readings, day)
		if !touched(day, dayReadings, opts.IncrementalSince) {
			continue
		}
		records = append(records, computeDay(s, day, opts.WindowEnd, dayReadings))
	}
	return records
}

// touched decides whether a (camera, day) partition must be recomputed.
// A finalized day untouched by new data is skipped so reprocessing cost
// stays bounded by actual arrivals.
func touched(day time.Time, dayReadings []radar.Reading, since time.Time) bool {
	if since.IsZero() {
		return true
	}
	if len(dayReadings) == 0 {
		return !day.Before(startOfDay(since))
	}
	for _, r := range dayReadings {
		if r.CapturedAt.After(since) {
			return true
		}
	}
	return false
}

func computeDay(s cameraSeries, day, windowEnd time.Time, dayReadings []radar.Reading) radar.InactivityRecord {
	dayEnd := day.AddDate(0, 0, 1)
	// The in-progress day is charged only up to the window end; the hours
	// that have not elapsed yet are accounted on the next run, when this
	// row is replaced.
	if windowEnd.Before(dayEnd) {
		dayEnd = windowEnd
	}

	rec := radar.InactivityRecord{
		CameraKey: s.key,
		Company:   s.company,
		Date:      day,
		ReadCount: len(dayReadings),
	}

	all := uniqueTimes(s.readings)
	dayTimes := timesInDay(all, day, dayEnd)
	if len(dayTimes) == 0 {
		rec.InactiveHours = dayEnd.Sub(day).Hours()
	} else {
		rec.InactiveHours = gapHours(all, dayTimes, day, dayEnd)
		fillLatency(&rec, dayReadings)
	}

	rec.Over1h = rec.InactiveHours > 1
	rec.Over3h = rec.InactiveHours > 3
	rec.Over6h = rec.InactiveHours > 6
	rec.Over12h = rec.InactiveHours > 12
	rec.FullDay = rec.InactiveHours >= 24

	return rec
}

// gapHours sums the silent stretches attributable to the day: midnight to
// the first reading, then each reading's look-ahead gap to the next reading
// of the camera, clipped at end of day. The last reading's open gap is
// censored at the calendar-day boundary. Times are deduplicated so several
// plates read in the same second charge the gap once.
func gapHours(all, dayTimes []time.Time, day, dayEnd time.Time) float64 {
	total := dayTimes[0].Sub(day).Hours()

	for _, t := range dayTimes {
		next, ok := nextTimeAfter(all, t)
		gapEnd := dayEnd
		if ok && next.Before(dayEnd) {
			gapEnd = next
		}
		if gapEnd.After(t) {
			total += gapEnd.Sub(t).Hours()
		}
	}
	return total
}

// nextTimeAfter finds the first time strictly after t in the sorted series.
func nextTimeAfter(sorted []time.Time, t time.Time) (time.Time, bool) {
	idx := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].After(t)
	})
	if idx == len(sorted) {
		return time.Time{}, false
	}
	return sorted[idx], true
}

// uniqueTimes extracts the sorted distinct observation times of a series
// whose readings are already sorted by observation time.
func uniqueTimes(sorted []radar.Reading) []time.Time {
	times := make([]time.Time, 0, len(sorted))
	for _, r := range sorted {
		if len(times) > 0 && times[len(times)-1].Equal(r.ObservedAt) {
			continue
		}
		times = append(times, r.ObservedAt)
	}
	return times
}

func timesInDay(sorted []time.Time, day, dayEnd time.Time) []time.Time {
	lo := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Before(day)
	})
	hi := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Before(dayEnd)
	})
	return sorted[lo:hi]
}

// fillLatency computes capture-delay statistics from the day's readings,
// restricted to non-negative deltas: a negative delta is residual clock
// skew, not a real latency.
func fillLatency(rec *radar.InactivityRecord, dayReadings []radar.Reading) {
	deltas := make([]float64, 0, len(dayReadings))
	for _, r := range dayReadings {
		if d := r.Latency(); d >= 0 {
			deltas = append(deltas, d.Seconds())
		}
	}
	rec.AvgLatencyS = stats.Mean(deltas)
	rec.MedianLatencyS = stats.Median(deltas)
}

func readingsInDay(sorted []radar.Reading, day time.Time) []radar.Reading {
	dayEnd := day.AddDate(0, 0, 1)
	lo := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].ObservedAt.Before(day)
	})
	hi := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].ObservedAt.Before(dayEnd)
	})
	return sorted[lo:hi]
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
