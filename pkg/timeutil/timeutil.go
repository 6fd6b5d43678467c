// Package timeutil provides calendar helpers that work in a caller-supplied
// time zone. Streaks and weekly activity are counted in the learner's local
// calendar, so every helper takes the location explicitly.
package timeutil

import (
	"fmt"
	"time"
)

// FormatDate is the layout used for day keys.
const FormatDate = "2006-01-02"

// LoadLocation resolves a zone name, treating "" and "UTC" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

// orUTC returns loc or UTC when loc is nil.
func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(orUTC(loc))
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// EndOfDay returns the last nanosecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DaysBetween returns the number of calendar days from a to b in loc.
// The result is negative when b is on an earlier day than a. It counts
// calendar dates, not 24h periods, so DST transitions do not skew it.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	la, lb := a.In(orUTC(loc)), b.In(orUTC(loc))
	da := time.Date(la.Year(), la.Month(), la.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(lb.Year(), lb.Month(), lb.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// IsSameDay reports whether a and b fall on the same calendar day in loc.
func IsSameDay(a, b time.Time, loc *time.Location) bool {
	return DaysBetween(a, b, loc) == 0
}

// LastNDays returns the start of each of the n calendar days ending with
// now's day, oldest first.
func LastNDays(now time.Time, n int, loc *time.Location) []time.Time {
	if n <= 0 {
		return nil
	}
	today := StartOfDay(now, loc)
	days := make([]time.Time, n)
	for i := 0; i < n; i++ {
		days[i] = today.AddDate(0, 0, i-(n-1))
	}
	return days
}

// DateKey formats t's calendar day in loc as YYYY-MM-DD.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(orUTC(loc)).Format(FormatDate)
}
