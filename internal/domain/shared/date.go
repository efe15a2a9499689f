package shared

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of business dates
const DateLayout = "2006-01-02"

// Date builds a business date (midnight UTC)
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the time-of-day and normalizes to UTC, keeping the
// calendar date as seen in t's own location
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, NewValidationError("INVALID_DATE", fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s))
	}
	return t, nil
}

// FormatDate renders a business date
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddDays shifts a business date by n calendar days
func AddDays(t time.Time, n int) time.Time {
	return TruncateDay(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b (b - a)
func DaysBetween(a, b time.Time) int {
	return int(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24)
}

// DaysInMonth returns the number of days of the given month
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped adds n months keeping the day of month, clamped to the
// last day of the target month (Jan 31 + 1 month = Feb 28/29)
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := TruncateDay(t).Date()
	total := int(m) - 1 + n
	ty := y + total/12
	tm := total % 12
	if tm < 0 {
		tm += 12
		ty--
	}
	month := time.Month(tm + 1)
	if last := DaysInMonth(ty, month); d > last {
		d = last
	}
	return Date(ty, month, d)
}

// DatePtr returns a pointer to a truncated copy of t
func DatePtr(t time.Time) *time.Time {
	d := TruncateDay(t)
	return &d
}
