package engine

import (
	"time"
)

// =============================================================================
// DATE - Calendar-day abstraction (interest accrues per whole day)
// =============================================================================

// Date is a calendar day in UTC. All engine arithmetic is whole-day: a loan
// that starts and is evaluated on the same day has accrued for zero days.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date  { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date { return Date{t: d.t.AddDate(n, 0, 0)} }

// AddMonths advances by calendar months, clamping to the last day of the
// target month. Jan 31 + 1 month is Feb 28 (or 29), never Mar 2/3. Schedule
// due dates anchored to a month-end start day depend on this.
func (d Date) AddMonths(n int) Date {
	year, month, day := d.t.Date()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := daysInMonth(first.Year(), first.Month())
	if day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// JSON round-trips as "2006-01-02".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DATE UTILITIES
// =============================================================================

// DaysBetween returns whole calendar days from 'from' to 'to'.
// Negative when 'to' precedes 'from'.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// StartOfNextMonth returns the first day of the month after d.
func StartOfNextMonth(d Date) Date {
	return NewDate(d.Year(), d.Month()+1, 1)
}
