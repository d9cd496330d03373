// Package window defines the half-open time windows the detection engine
// compares: a rolling 24h baseline and the 6h recent period tested against it.
package window

import "time"

const (
	// BaselineHours is the width of the reference distribution window.
	BaselineHours = 24
	// RecentHours is the width of the comparison window ending at "now".
	RecentHours = 6
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window width.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Baseline returns the reference window relative to now: [now-30h, now-6h).
// Observations in this window form the distribution recent values are tested
// against.
func Baseline(now time.Time) Window {
	return Window{
		Start: now.Add(-time.Duration(BaselineHours+RecentHours) * time.Hour),
		End:   now.Add(-RecentHours * time.Hour),
	}
}

// Recent returns the comparison window [now-6h, now).
func Recent(now time.Time) Window {
	return Window{
		Start: now.Add(-RecentHours * time.Hour),
		End:   now,
	}
}

// HourBucket truncates t to the start of its hour bucket.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// Hour returns the one-hour window covering t's bucket. Correlation lookups
// use it to align related metrics to the exact hour of an anomaly.
func Hour(t time.Time) Window {
	start := HourBucket(t)
	return Window{Start: start, End: start.Add(time.Hour)}
}
