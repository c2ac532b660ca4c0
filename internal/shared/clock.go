package shared

import "time"

// Clock returns the current instant.
type Clock func() time.Time

// SystemClock reads the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// DateOf truncates t to its calendar date, expressed at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of clock() observed in loc.
func Today(clock Clock, loc *time.Location) time.Time {
	if clock == nil {
		clock = SystemClock
	}
	now := clock()
	if loc != nil {
		now = now.In(loc)
	}
	return DateOf(now)
}
