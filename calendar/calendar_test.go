package calendar_test

import (
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shift-engine/calendar"
)

func TestDurationHours(t *testing.T) {
	h, err := calendar.DurationHours(calendar.NewClock(9, 0), calendar.NewClock(17, 30))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8.5").Equal(h), "got %s", h)

	h, err = calendar.DurationHours(calendar.Midnight, calendar.EndOfDay)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(24).Equal(h))
}

func TestDurationHours_RejectsEmptyAndReversed(t *testing.T) {
	_, err := calendar.DurationHours(calendar.NewClock(9, 0), calendar.NewClock(9, 0))
	assert.ErrorIs(t, err, calendar.ErrInvalidInterval)

	_, err = calendar.DurationHours(calendar.NewClock(17, 0), calendar.NewClock(9, 0))
	assert.ErrorIs(t, err, calendar.ErrInvalidInterval)
}

func TestIntervalsOverlap_TouchingIsNotOverlap(t *testing.T) {
	day := calendar.Date(2025, time.March, 10)
	at := func(h int) time.Time { return calendar.At(day, calendar.NewClock(h, 0)) }

	assert.False(t, calendar.IntervalsOverlap(at(9), at(12), at(12), at(15)), "touching endpoints")
	assert.True(t, calendar.IntervalsOverlap(at(9), at(13), at(12), at(15)))
	assert.True(t, calendar.IntervalsOverlap(at(10), at(11), at(9), at(15)), "containment")
	assert.False(t, calendar.IntervalsOverlap(at(9), at(10), at(11), at(12)))
}

func TestWeekKey_UsesISOWeekYear(t *testing.T) {
	// 2024-12-30 is a Monday belonging to ISO week 1 of 2025.
	assert.Equal(t, "2025-W01", calendar.WeekKey(calendar.Date(2024, time.December, 30)))
	assert.Equal(t, "2025-W03", calendar.WeekKey(calendar.Date(2025, time.January, 15)))
	// 2021-01-03 (Sunday) still belongs to 2020-W53.
	assert.Equal(t, "2020-W53", calendar.WeekKey(calendar.Date(2021, time.January, 3)))
}

func TestStartOfWeek(t *testing.T) {
	// 2025-03-01 is a Saturday in 2025-W09, which starts on 2025-02-24.
	assert.Equal(t, calendar.Date(2025, time.February, 24), calendar.StartOfWeek(calendar.Date(2025, time.March, 1)))
	assert.Equal(t, calendar.Date(2025, time.March, 10), calendar.StartOfWeek(calendar.Date(2025, time.March, 10)))
	assert.Equal(t, calendar.Date(2025, time.March, 10), calendar.StartOfWeek(calendar.Date(2025, time.March, 16)))
	assert.Equal(t, "2025-W01", calendar.WeekKey(calendar.StartOfWeek(calendar.Date(2025, time.January, 1))))
}

func TestBucketKeys_SortChronologically(t *testing.T) {
	days := []time.Time{
		calendar.Date(2025, time.November, 3),
		calendar.Date(2025, time.February, 10),
		calendar.Date(2024, time.December, 2),
	}
	var weeks, months []string
	for _, d := range days {
		weeks = append(weeks, calendar.WeekKey(d))
		months = append(months, calendar.MonthKey(d))
	}
	sort.Strings(weeks)
	sort.Strings(months)

	assert.Equal(t, []string{"2024-W49", "2025-W07", "2025-W45"}, weeks)
	assert.Equal(t, []string{"2024-12", "2025-02", "2025-11"}, months)
	assert.Equal(t, "2025", calendar.YearKey(days[0]))
}

func TestParseClock(t *testing.T) {
	c, err := calendar.ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, calendar.NewClock(9, 30), c)
	assert.Equal(t, "09:30", c.String())

	c, err = calendar.ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, calendar.EndOfDay, c)

	for _, bad := range []string{"24:30", "10:60", "nine", "-1:00"} {
		_, err := calendar.ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := calendar.ParsePeriod("2025-02")
	require.NoError(t, err)
	assert.Equal(t, calendar.Date(2025, time.February, 1), p.Start)
	assert.Equal(t, calendar.Date(2025, time.February, 28), p.End)

	p, err = calendar.ParsePeriod("2025-W03")
	require.NoError(t, err)
	assert.Equal(t, calendar.Date(2025, time.January, 13), p.Start)
	assert.Equal(t, calendar.Date(2025, time.January, 19), p.End)

	p, err = calendar.ParsePeriod("2025")
	require.NoError(t, err)
	assert.Len(t, p.Days(), 365)

	p, err = calendar.ParsePeriod("2025-03-01..2025-03-03")
	require.NoError(t, err)
	assert.Len(t, p.Days(), 3)

	_, err = calendar.ParsePeriod("2025-03-05..2025-03-01")
	assert.Error(t, err)
	_, err = calendar.ParsePeriod("2025-13")
	assert.Error(t, err)
}

func TestPeriod_ContainsAndOverlaps(t *testing.T) {
	march := calendar.MonthPeriod(2025, time.March)
	assert.True(t, march.Contains(time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, march.Contains(calendar.Date(2025, time.April, 1)))

	lateMarch := calendar.NewPeriod(calendar.Date(2025, time.March, 31), calendar.Date(2025, time.April, 2))
	assert.True(t, march.Overlaps(lateMarch))
	assert.False(t, march.Overlaps(calendar.MonthPeriod(2025, time.April)))
}
