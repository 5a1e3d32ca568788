// Package calendar converts the server's epoch-day keys into local calendar dates.
//
// All arithmetic goes through epoch days rather than durations so that DST transitions in the
// display location never shift a date by one.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DaysPerWeek = 7

	// Range of dates representable as YYYY-MM-DD (0001-01-01 .. 9999-12-31).
	MinEpochDay int64 = -719162
	MaxEpochDay int64 = 2932896

	secondsPerDay = 24 * 60 * 60
)

var ErrMalformedDate = errors.New("malformed date")

type MalformedDateError struct {
	Key    string
	Reason string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed epoch day %q: %s", e.Key, e.Reason)
}

func (e *MalformedDateError) Unwrap() error { return ErrMalformedDate }

// ParseEpochDay parses a wire key. Non-integers and days outside the calendar range are rejected.
func ParseEpochDay(key string) (int64, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return 0, &MalformedDateError{Key: key, Reason: "empty"}
	}
	day, err := strconv.ParseInt(k, 10, 64)
	if err != nil {
		return 0, &MalformedDateError{Key: key, Reason: "not an integer"}
	}
	if day < MinEpochDay || day > MaxEpochDay {
		return 0, &MalformedDateError{Key: key, Reason: "out of range"}
	}
	return day, nil
}

// FormatEpochDay is the inverse of ParseEpochDay.
func FormatEpochDay(day int64) string { return strconv.FormatInt(day, 10) }

// LocalDate maps an epoch day to local midnight: epoch day -> UTC midnight -> same Y/M/D in loc.
func LocalDate(day int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := time.Unix(day*secondsPerDay, 0).UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EpochDay returns the epoch day of t's calendar date in t's own location.
func EpochDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

// DateOnly truncates t to midnight in its location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func AddDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, t.Location())
}

// SundayOf returns the Sunday on or before t.
func SundayOf(t time.Time) time.Time {
	return AddDays(t, -int(t.Weekday()))
}

// DaysBetween is EpochDay(to) - EpochDay(from).
func DaysBetween(from, to time.Time) int {
	return int(EpochDay(to) - EpochDay(from))
}

// WeeksBetween counts whole weeks from from to to, rounding toward negative infinity so that a
// date one day before an anchor Sunday lands in week -1.
func WeeksBetween(from, to time.Time) int {
	return floorDiv(DaysBetween(from, to), DaysPerWeek)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ParseDate parses YYYY-MM-DD as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: expected YYYY-MM-DD", ErrMalformedDate, s)
	}
	return t, nil
}

// ShortString formats as M/D/YYYY.
func ShortString(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}
