package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date (no time-of-day component)
// =============================================================================

// Date is a calendar date. Time-of-day lives in TimeOfDay; keeping the two
// apart is what makes the midnight-wrap rules expressible.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Value: s, Reason: "expected YYYY-MM-DD"}
	}
	return Date{Time: t}, nil
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// Comparison
func (d Date) Before(other Date) bool { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool  { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool  { return d.normalize().After(other.normalize()) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) Next() Date         { return d.AddDays(1) }
func (d Date) Prev() Date         { return d.AddDays(-1) }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) YearMonth() YearMonth { return YearMonth{Year: d.Year(), Month: d.Month()} }

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// =============================================================================
// TIME OF DAY - Minutes since midnight on a 24h clock
// =============================================================================

// TimeOfDay is a clock time expressed as minutes since midnight, in [0, 1440).
// Minute resolution is the system's scheduling granularity.
type TimeOfDay int

const MinutesPerDay = 24 * 60

// ParseTimeOfDay parses "HH:MM". Exactly two digits, a colon, two digits;
// anything looser (trailing garbage, leading spaces, single-digit hours) is
// rejected. "24:00" is rejected too; an interval ending at midnight is
// written with End 00:00, which wraps per the interval rules.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' ||
		!isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, &ValidationError{Field: "time", Value: s, Reason: "expected HH:MM"}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, &ValidationError{Field: "time", Value: s, Reason: "out of range"}
	}
	return TimeOfDay(h*60 + m), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustTimeOfDay is ParseTimeOfDay for literals in configuration and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

// =============================================================================
// YEAR MONTH - Aggregation key
// =============================================================================

// YearMonth is the calendar month an aggregate or commission decision is
// keyed by.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, &ValidationError{Field: "month", Value: s, Reason: "expected YYYY-MM"}
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && d.Month() == ym.Month
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) Equal(other YearMonth) bool { return ym == other }

func (ym YearMonth) Next() YearMonth {
	t := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// FirstDay and LastDay bound the month for range queries.
func (ym YearMonth) FirstDay() Date { return NewDate(ym.Year, ym.Month, 1) }
func (ym YearMonth) LastDay() Date  { return ym.Next().FirstDay().Prev() }

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }
