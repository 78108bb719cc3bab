/*
Package calendar provides the time arithmetic the scheduling engine is built on.

PURPOSE:
  Shifts are booked as a calendar day plus a time-of-day window. Every other
  component needs the same small set of answers about those values: how long
  is a window, which week/month/year does a day fall into, and do two windows
  collide. Those answers live here and nowhere else.

KEY CONCEPTS IN THIS FILE (time.go):
  - Clock: a time of day, stored as minutes since midnight (00:00 - 24:00)
  - Date helpers: UTC-midnight normalization and Clock-to-instant conversion
  - DurationHours: exact decimal hours between two clocks
  - IntervalsOverlap: half-open overlap test

DESIGN PRINCIPLES:
  1. Dates are always UTC midnight. Time zones are a presentation concern.
  2. Hours use decimal.Decimal so 7h20m does not become 7.3333333334.
  3. Intervals are half-open: [start, end). Touching windows do not collide.

SEE ALSO:
  - period.go: Period type and bucket keys (week/month/year)
  - roster/types.go: Shift uses Clock and Date
*/
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidInterval is returned when an interval ends at or before its start.
var ErrInvalidInterval = errors.New("invalid interval: end must be after start")

// =============================================================================
// CLOCK - Time of day
// =============================================================================

// Clock is a time of day in minutes since midnight. 1440 (24:00) is valid
// only as the end of a window.
type Clock int

const (
	MinutesPerDay       = 24 * 60
	Midnight      Clock = 0
	EndOfDay      Clock = MinutesPerDay
)

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

// ParseClock parses "HH:MM". "24:00" is accepted.
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }
func (c Clock) Valid() bool { return c >= Midnight && c <= EndOfDay }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

// MarshalText lets Clock travel as "HH:MM" in JSON.
func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// =============================================================================
// DATES
// =============================================================================

// Date returns UTC midnight of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time-of-day component, keeping the calendar day as seen
// in the value's own location.
func Truncate(t time.Time) time.Time { return Date(t.Year(), t.Month(), t.Day()) }

// ParseDate parses "2006-01-02".
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as "2006-01-02".
func FormatDate(t time.Time) string { return t.Format("2006-01-02") }

// SameDay reports whether two instants share a calendar day.
func SameDay(a, b time.Time) bool { return Truncate(a).Equal(Truncate(b)) }

// At combines a day and a time of day into an instant.
func At(date time.Time, c Clock) time.Time {
	return Truncate(date).Add(time.Duration(c) * time.Minute)
}

// =============================================================================
// DURATION AND OVERLAP
// =============================================================================

var minutesPerHour = decimal.NewFromInt(60)

// DurationHours returns end-start in hours. Fails when end <= start.
func DurationHours(start, end Clock) (decimal.Decimal, error) {
	if end <= start {
		return decimal.Zero, fmt.Errorf("%w: %s-%s", ErrInvalidInterval, start, end)
	}
	return decimal.NewFromInt(int64(end - start)).Div(minutesPerHour), nil
}

// IntervalsOverlap is a half-open overlap test: [aStart, aEnd) vs [bStart, bEnd).
// Intervals that merely touch at an endpoint do not overlap.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DaysBetween counts whole days from one date to another.
func DaysBetween(from, to time.Time) int {
	return int(Truncate(to).Sub(Truncate(from)).Hours() / 24)
}
