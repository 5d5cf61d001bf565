// Package timeutil provides calendar-day utilities and an injectable clock
// for the progress engine. Streak continuity depends on calendar-day
// boundaries, so all day comparisons must go through these helpers with a
// single, explicit timezone policy.
// No external dependencies - uses only standard library.
package timeutil

import (
	"math"
	"time"
)

// Clock abstracts the current-time source so day-boundary logic can be
// tested deterministically.
type Clock interface {
	// Now returns the current time in the clock's location.
	Now() time.Time
}

// systemClock reads the wall clock in a fixed location.
type systemClock struct {
	loc *time.Location
}

// SystemClock returns a Clock backed by the wall clock in the given
// location. A nil location falls back to time.Local, matching the host
// environment's calendar.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return &systemClock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// FixedClock is a Clock that always returns the same instant.
// Intended for tests that simulate day boundaries.
type FixedClock struct {
	Current time.Time
}

// NewFixedClock creates a FixedClock pinned to the given instant.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{Current: t}
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time {
	return c.Current
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}

// AdvanceDays moves the clock forward by whole calendar days.
func (c *FixedClock) AdvanceDays(days int) {
	c.Current = c.Current.AddDate(0, 0, days)
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
// b is converted into a's location first so the comparison uses one
// calendar, regardless of how the timestamps were produced.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween returns the number of calendar-day boundaries between earlier
// and later (0 for the same day, 1 for adjacent days). Negative results mean
// later is actually before earlier. Adjacent midnights can be 23 or 25 hours
// apart across a DST shift, so the quotient is rounded, not truncated.
func DaysBetween(earlier, later time.Time) int {
	earlier = StartOfDay(earlier.In(later.Location()))
	later = StartOfDay(later)
	return int(math.Round(later.Sub(earlier).Hours() / 24))
}

// IsYesterday reports whether prev falls on the calendar day immediately
// before now's day. Compared via date arithmetic so a DST shift between the
// two days cannot skew the answer.
func IsYesterday(prev, now time.Time) bool {
	return SameDay(prev.AddDate(0, 0, 1), now)
}
