package insights

import "time"

// Clock supplies "now" to detection and scoring so tests can pin time
// deterministically instead of depending on the execution instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant; intended for tests.
type FixedClock struct {
	Time time.Time
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time {
	return c.Time
}
