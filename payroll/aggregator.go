/*
Package payroll turns completed, attended shifts into pay.

PURPOSE:
  Aggregator walks a worker's COMPLETED shifts on which the worker was marked
  present and produces regular/overtime hours and pay for a period. Records
  are computed on demand and never stored: the shift store is the source of
  truth.

ALGORITHM (per worker):
  1. Collect COMPLETED shifts in the period where the worker is present.
  2. Sort by (date, start, id).
  3. Charge the ceiling with the worker's hours from the days of the first
     ISO week that fall before the period, so a week split across two runs
     is never paid more than the limit at the regular rate.
  4. For each shift: hours = end - start; split against the running total
     of its ISO week (WeeklyCeiling). First hours are regular, the rest is
     overtime.
  5. RegularPay = regular × Base; OvertimePay = overtime × Overtime.

  Chronological order matters. With a 44h ceiling, 30h then 20h yields
  44 regular + 6 overtime. Processing in any other order could tag a
  different shift as overtime.

BUCKETS:
  Weekly / monthly / annual totals are a reporting side output: raw hours
  summed per WeekKey / MonthKey / YearKey, no ceiling applied.

KNOWN LIMITATION:
  A shift is attributed entirely to the week of its date. Shifts never cross
  midnight, so no shift actually straddles two weeks; the rule is kept
  rather than splitting hours at the Sunday/Monday boundary.

DISCOVERY:
  A manager request without workers reports every worker assigned to a
  COMPLETED shift in the period. Workers who never checked in get a zero
  record, so absences stay visible.

CONSISTENCY:
  One run reads one snapshot (shifts.Store.View), so attendance recorded
  concurrently is either fully in or fully out of the result.

SEE ALSO:
  - rates.go: Rates and WeeklyCeiling
  - calendar/period.go: bucket keys
*/
package payroll

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/roster"
	"github.com/warp/shift-engine/shifts"
)

// =============================================================================
// TYPES
// =============================================================================

// Record is one worker's pay for one period.
type Record struct {
	WorkerID roster.WorkerID
	Period   calendar.Period

	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	RegularPay    decimal.Decimal
	OvertimePay   decimal.Decimal
	TotalPay      decimal.Decimal

	ContributingShifts []roster.ShiftID // chronological

	Weekly  map[string]decimal.Decimal
	Monthly map[string]decimal.Decimal
	Annual  map[string]decimal.Decimal
}

// TotalHours is regular + overtime.
func (r Record) TotalHours() decimal.Decimal { return r.RegularHours.Add(r.OvertimeHours) }

// Request selects whose pay to compute. An empty worker list means "every
// worker assigned to a completed shift in the period" for managers and "myself" for workers.
type Request struct {
	Workers []roster.WorkerID
	Period  calendar.Period
}

// Report is the result of one aggregation run.
type Report struct {
	Period  calendar.Period
	Rates   Rates
	Records []Record // sorted by worker id
	Totals  Summary
}

// Summary totals a report across workers.
type Summary struct {
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	TotalPay      decimal.Decimal
}

// Source is the snapshot provider; *shifts.Store implements it.
type Source interface {
	View(ctx context.Context, fn func(shifts.Reader) error) error
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	source Source
	rates  Rates
	log    logrus.FieldLogger
}

func NewAggregator(source Source, rates Rates, log logrus.FieldLogger) *Aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{source: source, rates: rates, log: log}
}

func (a *Aggregator) Rates() Rates { return a.rates }

// Aggregate computes pay for the requested workers inside one snapshot.
func (a *Aggregator) Aggregate(ctx context.Context, sess roster.Session, req Request) (*Report, error) {
	if !req.Period.Valid() {
		return nil, &roster.ValidationError{Field: "period", Message: "end before start"}
	}
	workers, err := scopeWorkers(sess, req.Workers)
	if err != nil {
		return nil, err
	}

	report := &Report{Period: req.Period, Rates: a.rates}
	err = a.source.View(ctx, func(r shifts.Reader) error {
		if workers == nil {
			found, err := workersInPeriod(ctx, r, req.Period)
			if err != nil {
				return err
			}
			workers = found
		}
		// Reach back to the Monday of the first week for the ceiling.
		lookup := calendar.Period{Start: calendar.StartOfWeek(req.Period.Start), End: req.Period.End}
		for _, w := range workers {
			list, err := r.ListByWorker(ctx, w, lookup)
			if err != nil {
				return fmt.Errorf("failed to load shifts for %s: %w", w, err)
			}
			rec, err := Compute(w, req.Period, list, a.rates)
			if err != nil {
				return err
			}
			report.Records = append(report.Records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(report.Records, func(i, j int) bool { return report.Records[i].WorkerID < report.Records[j].WorkerID })
	report.Totals = summarize(report.Records)

	a.log.WithFields(logrus.Fields{
		"period":    req.Period.String(),
		"workers":   len(report.Records),
		"total_pay": report.Totals.TotalPay.StringFixed(2),
		"actor":     sess.ActorID,
	}).Info("payroll aggregated")
	return report, nil
}

// Compute produces one worker's record from that worker's shifts. Shifts
// not COMPLETED or not attended by the worker are skipped. Attended shifts
// earlier in the period's first ISO week only charge the weekly ceiling;
// anything else outside the period is ignored.
func Compute(worker roster.WorkerID, period calendar.Period, list []roster.Shift, rates Rates) (Record, error) {
	rec := Record{
		WorkerID:           worker,
		Period:             period,
		RegularHours:       decimal.Zero,
		OvertimeHours:      decimal.Zero,
		ContributingShifts: []roster.ShiftID{},
		Weekly:             make(map[string]decimal.Decimal),
		Monthly:            make(map[string]decimal.Decimal),
		Annual:             make(map[string]decimal.Decimal),
	}

	start := calendar.Truncate(period.Start)
	firstWeek := calendar.StartOfWeek(start)
	var carried []roster.Shift
	worked := make([]roster.Shift, 0, len(list))
	for _, s := range list {
		if s.Status != roster.StatusCompleted || !s.IsPresent(worker) {
			continue
		}
		day := calendar.Truncate(s.Date)
		switch {
		case period.Contains(day):
			worked = append(worked, s)
		case !day.Before(firstWeek) && day.Before(start):
			carried = append(carried, s)
		}
	}
	roster.SortShifts(worked)

	ceiling := NewWeeklyCeiling(rates.WeeklyLimit)
	for _, s := range carried {
		hours, err := calendar.DurationHours(s.Start, s.End)
		if err != nil {
			return Record{}, fmt.Errorf("shift %s: %w", s.ID, err)
		}
		ceiling.Split(calendar.WeekKey(s.Date), hours)
	}
	for _, s := range worked {
		hours, err := calendar.DurationHours(s.Start, s.End)
		if err != nil {
			return Record{}, fmt.Errorf("shift %s: %w", s.ID, err)
		}
		week := calendar.WeekKey(s.Date)
		regular, overtime := ceiling.Split(week, hours)

		rec.RegularHours = rec.RegularHours.Add(regular)
		rec.OvertimeHours = rec.OvertimeHours.Add(overtime)
		rec.ContributingShifts = append(rec.ContributingShifts, s.ID)

		rec.Weekly[week] = rec.Weekly[week].Add(hours)
		rec.Monthly[calendar.MonthKey(s.Date)] = rec.Monthly[calendar.MonthKey(s.Date)].Add(hours)
		rec.Annual[calendar.YearKey(s.Date)] = rec.Annual[calendar.YearKey(s.Date)].Add(hours)
	}

	rec.RegularPay = rec.RegularHours.Mul(rates.Base)
	rec.OvertimePay = rec.OvertimeHours.Mul(rates.Overtime)
	rec.TotalPay = rec.RegularPay.Add(rec.OvertimePay)
	return rec, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scopeWorkers applies the session's visibility. nil means "discover".
func scopeWorkers(sess roster.Session, requested []roster.WorkerID) ([]roster.WorkerID, error) {
	if !sess.CanManage() {
		if len(requested) == 0 {
			return []roster.WorkerID{sess.ActorID}, nil
		}
		for _, w := range requested {
			if !sess.CanView(w) {
				return nil, &roster.ForbiddenError{ActorID: sess.ActorID, Action: "view payroll of " + string(w)}
			}
		}
	}
	if len(requested) == 0 {
		return nil, nil
	}
	seen := make(map[roster.WorkerID]bool)
	var out []roster.WorkerID
	for _, w := range requested {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out, nil
}

func workersInPeriod(ctx context.Context, r shifts.Reader, period calendar.Period) ([]roster.WorkerID, error) {
	list, err := r.ListByDateRange(ctx, period)
	if err != nil {
		return nil, err
	}
	seen := make(map[roster.WorkerID]bool)
	workers := []roster.WorkerID{}
	for _, s := range list {
		if s.Status != roster.StatusCompleted {
			continue
		}
		for _, w := range s.AssignedWorkers {
			if !seen[w] {
				seen[w] = true
				workers = append(workers, w)
			}
		}
	}
	return roster.SortWorkers(workers), nil
}

func summarize(records []Record) Summary {
	sum := Summary{RegularHours: decimal.Zero, OvertimeHours: decimal.Zero, TotalPay: decimal.Zero}
	for _, r := range records {
		sum.RegularHours = sum.RegularHours.Add(r.RegularHours)
		sum.OvertimeHours = sum.OvertimeHours.Add(r.OvertimeHours)
		sum.TotalPay = sum.TotalPay.Add(r.TotalPay)
	}
	return sum
}
