package shared

import "time"

// Clock supplies "now" so business dates can be pinned in tests and
// batch runs can be replayed for a given as-of date
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time {
	return c.At
}

// Today returns the current business date of the clock
func Today(c Clock) time.Time {
	return TruncateDay(c.Now())
}
