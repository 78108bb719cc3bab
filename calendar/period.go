package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Inclusive range of calendar days
// =============================================================================

// Period is an inclusive range of days [Start, End]. Payroll runs, leave
// windows and list queries are all expressed as periods.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalizes both ends to UTC midnight.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: Truncate(start), End: Truncate(end)}
}

// Valid reports whether Start <= End.
func (p Period) Valid() bool { return !p.End.Before(p.Start) }

// Contains returns true if the day of t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := Truncate(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Overlaps reports whether two inclusive day ranges share at least one day.
func (p Period) Overlaps(o Period) bool {
	return !p.Start.After(o.End) && !o.Start.After(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return "[" + FormatDate(p.Start) + ", " + FormatDate(p.End) + "]"
}

// MonthPeriod covers a calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := Date(year, month, 1)
	return Period{Start: start, End: start.AddDate(0, 1, -1)}
}

// YearPeriod covers a calendar year.
func YearPeriod(year int) Period {
	return Period{Start: Date(year, time.January, 1), End: Date(year, time.December, 31)}
}

// WeekPeriod covers ISO week `week` of ISO year `year` (Monday to Sunday).
func WeekPeriod(year, week int) Period {
	// January 4th is always in ISO week 1.
	jan4 := Date(year, time.January, 4)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+(week-1)*7)
	return Period{Start: monday, End: monday.AddDate(0, 0, 6)}
}

// =============================================================================
// BUCKET KEYS - Stable, string-sortable identifiers
// =============================================================================

// WeekKey identifies the ISO-8601 week of a day, e.g. "2025-W03". The year
// is the ISO week-year, so 2024-12-30 maps to "2025-W01".
func WeekKey(t time.Time) string {
	year, week := Truncate(t).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// StartOfWeek is the Monday of the ISO week containing t.
func StartOfWeek(t time.Time) time.Time {
	day := Truncate(t)
	return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
}

// MonthKey identifies the calendar month of a day, e.g. "2025-03".
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// YearKey identifies the calendar year of a day, e.g. "2025".
func YearKey(t time.Time) string {
	return fmt.Sprintf("%04d", t.Year())
}

// ParsePeriod accepts a bucket key ("2025", "2025-03", "2025-W10") or an
// explicit range "2025-03-01..2025-03-15".
func ParsePeriod(s string) (Period, error) {
	if from, to, ok := strings.Cut(s, ".."); ok {
		start, err := ParseDate(from)
		if err != nil {
			return Period{}, err
		}
		end, err := ParseDate(to)
		if err != nil {
			return Period{}, err
		}
		p := NewPeriod(start, end)
		if !p.Valid() {
			return Period{}, fmt.Errorf("invalid period %q: end before start", s)
		}
		return p, nil
	}

	if y, w, ok := strings.Cut(s, "-W"); ok {
		year, err1 := strconv.Atoi(y)
		week, err2 := strconv.Atoi(w)
		if err1 != nil || err2 != nil || week < 1 || week > 53 {
			return Period{}, fmt.Errorf("invalid week key %q", s)
		}
		return WeekPeriod(year, week), nil
	}

	if y, m, ok := strings.Cut(s, "-"); ok {
		year, err1 := strconv.Atoi(y)
		month, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || month < 1 || month > 12 {
			return Period{}, fmt.Errorf("invalid month key %q", s)
		}
		return MonthPeriod(year, time.Month(month)), nil
	}

	year, err := strconv.Atoi(s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	return YearPeriod(year), nil
}
