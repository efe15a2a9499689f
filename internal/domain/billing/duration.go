package billing

import (
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/shared"
)

// DurationUnit is the calendar unit of a billing period
type DurationUnit string

const (
	UnitDay   DurationUnit = "day"
	UnitWeek  DurationUnit = "week"
	UnitMonth DurationUnit = "month"
	UnitYear  DurationUnit = "year"
)

// maxDurationValue bounds each unit to roughly ten years
var maxDurationValue = map[DurationUnit]int{
	UnitDay:   3650,
	UnitWeek:  520,
	UnitMonth: 120,
	UnitYear:  10,
}

// IsValid checks if the unit is a known DurationUnit
func (u DurationUnit) IsValid() bool {
	_, ok := maxDurationValue[u]
	return ok
}

func (u DurationUnit) String() string {
	return string(u)
}

// Duration is a calendar length such as "1 month" or "2 week"
type Duration struct {
	Value int          `json:"value"`
	Unit  DurationUnit `json:"unit"`
}

// NewDuration validates and builds a Duration
func NewDuration(value int, unit DurationUnit) (Duration, error) {
	d := Duration{Value: value, Unit: unit}
	if err := d.Validate(); err != nil {
		return Duration{}, err
	}
	return d, nil
}

// MonthlyDuration is the default recognition interval
func MonthlyDuration() Duration {
	return Duration{Value: 1, Unit: UnitMonth}
}

// Validate reports a ConfigurationError for non-positive values, unknown
// units or values above the unit's bound
func (d Duration) Validate() error {
	if !d.Unit.IsValid() {
		return shared.NewConfigurationError("INVALID_DURATION_UNIT",
			fmt.Sprintf("Duration unit %q must be one of day, week, month, year", d.Unit))
	}
	if d.Value <= 0 {
		return shared.NewConfigurationError("INVALID_DURATION_VALUE", "Duration value must be positive")
	}
	if limit := maxDurationValue[d.Unit]; d.Value > limit {
		return shared.NewConfigurationError("INVALID_DURATION_VALUE",
			fmt.Sprintf("Duration value cannot exceed %d %ss", limit, d.Unit))
	}
	return nil
}

// TotalDaysApprox is the nominal length in days (month = 30, year = 365)
func (d Duration) TotalDaysApprox() int {
	switch d.Unit {
	case UnitWeek:
		return d.Value * 7
	case UnitMonth:
		return d.Value * 30
	case UnitYear:
		return d.Value * 365
	default:
		return d.Value
	}
}

// AddIntervals returns anchor advanced by n whole durations. Month and year
// arithmetic clamps to the end of the target month once, computed from the
// anchor, so repeated cuts do not drift (Jan 31, Feb 29, Mar 31, ...).
func (d Duration) AddIntervals(anchor time.Time, n int) time.Time {
	steps := d.Value * n
	switch d.Unit {
	case UnitDay:
		return shared.AddDays(anchor, steps)
	case UnitWeek:
		return shared.AddDays(anchor, 7*steps)
	case UnitMonth:
		return shared.AddMonthsClamped(anchor, steps)
	case UnitYear:
		return shared.AddMonthsClamped(anchor, 12*steps)
	default:
		return shared.TruncateDay(anchor)
	}
}

// NextDate is the start of the following period
func (d Duration) NextDate(from time.Time) time.Time {
	return d.AddIntervals(from, 1)
}

// PeriodRange returns the inclusive [start, end] of the period beginning
// at from. end + 1 day == NextDate(from).
func (d Duration) PeriodRange(from time.Time) DateRange {
	start := shared.TruncateDay(from)
	return DateRange{Start: start, End: shared.AddDays(d.NextDate(start), -1)}
}

func (d Duration) String() string {
	if d.Value == 1 {
		return fmt.Sprintf("1 %s", d.Unit)
	}
	return fmt.Sprintf("%d %ss", d.Value, d.Unit)
}

// DateRange is an inclusive range of business dates
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Length is the inclusive number of days in the range
func (r DateRange) Length() int {
	return shared.DaysBetween(r.Start, r.End) + 1
}

// Contains reports whether d falls within the range
func (r DateRange) Contains(d time.Time) bool {
	d = shared.TruncateDay(d)
	return !d.Before(r.Start) && !d.After(r.End)
}
