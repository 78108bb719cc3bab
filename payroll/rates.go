package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATES - Pay policy constants
// =============================================================================

// Rates is the pay policy for an aggregation run.
type Rates struct {
	Base        decimal.Decimal // per regular hour
	Overtime    decimal.Decimal // per overtime hour
	WeeklyLimit decimal.Decimal // hours per ISO week paid at Base
}

// DefaultRates is the policy used when configuration does not override it.
func DefaultRates() Rates {
	return Rates{
		Base:        decimal.NewFromInt(10),
		Overtime:    decimal.NewFromInt(15),
		WeeklyLimit: decimal.NewFromInt(44),
	}
}

// ParseRates builds Rates from decimal strings.
func ParseRates(base, overtime, weeklyLimit string) (Rates, error) {
	var r Rates
	var err error
	if r.Base, err = decimal.NewFromString(base); err != nil {
		return Rates{}, fmt.Errorf("invalid base rate %q: %w", base, err)
	}
	if r.Overtime, err = decimal.NewFromString(overtime); err != nil {
		return Rates{}, fmt.Errorf("invalid overtime rate %q: %w", overtime, err)
	}
	if r.WeeklyLimit, err = decimal.NewFromString(weeklyLimit); err != nil {
		return Rates{}, fmt.Errorf("invalid weekly limit %q: %w", weeklyLimit, err)
	}
	return r, r.Validate()
}

func (r Rates) Validate() error {
	if r.Base.IsNegative() || r.Overtime.IsNegative() {
		return fmt.Errorf("pay rates must not be negative")
	}
	if r.WeeklyLimit.IsNegative() {
		return fmt.Errorf("weekly limit must not be negative")
	}
	return nil
}

// =============================================================================
// WEEKLY CEILING - Overtime spillover rule
// =============================================================================

// WeeklyCeiling splits hours into regular and overtime. The first hours
// worked in a week are regular; anything past the limit is overtime. Feed it
// shifts in chronological order: the split depends on what came before.
type WeeklyCeiling struct {
	limit decimal.Decimal
	used  map[string]decimal.Decimal
}

func NewWeeklyCeiling(limit decimal.Decimal) *WeeklyCeiling {
	return &WeeklyCeiling{limit: limit, used: make(map[string]decimal.Decimal)}
}

// Split books hours against the week and returns the regular/overtime parts.
func (c *WeeklyCeiling) Split(week string, hours decimal.Decimal) (regular, overtime decimal.Decimal) {
	cumulative := c.used[week]
	remaining := decimal.Max(decimal.Zero, c.limit.Sub(cumulative))

	if hours.LessThanOrEqual(remaining) {
		regular, overtime = hours, decimal.Zero
	} else {
		regular, overtime = remaining, hours.Sub(remaining)
	}
	c.used[week] = cumulative.Add(hours)
	return regular, overtime
}

// Used returns the hours booked so far against the week.
func (c *WeeklyCeiling) Used(week string) decimal.Decimal { return c.used[week] }
