package generic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - A calendar day (this IS a calendar system, not a clock)
// =============================================================================

const isoLayout = "2006-01-02"

// Date is a calendar day in UTC. The time-of-day part is always midnight, so
// arithmetic never crosses a DST boundary.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &DateError{Value: s, Err: err}
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for fixtures and literals. It panics on bad input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return SameDate(d, other) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year(), d.Month(), d.Day()+n)
}

// AddMonths shifts by n months, clamping the day to the target month's length
// (Jan 31 + 1 month = Feb 29 in a leap year).
func (d Date) AddMonths(n int) Date {
	first := NewDate(d.Year(), d.Month()+time.Month(n), 1)
	return SetDate(first, d.Day(), nil)
}

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) ISOWeek() int {
	_, week := d.Time.ISOWeek()
	return week
}

func (d Date) String() string { return FormatISODate(d) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

// FormatISODate renders YYYY-MM-DD from the UTC fields.
func FormatISODate(d Date) string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year(), int(d.Month()), d.Day())
}

// SameDate ignores everything below the day.
func SameDate(a, b Date) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// StartOfWeek returns the Monday of the ISO week containing d.
func StartOfWeek(d Date) Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

func StartOfMonth(d Date) Date { return NewDate(d.Year(), d.Month(), 1) }

func EndOfMonth(d Date) Date {
	return NewDate(d.Year(), d.Month(), DaysIn(d.Year(), d.Month()))
}

// DaysIn returns the number of days in the month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DayFits reports whether the day-of-month exists in that month.
func DayFits(year int, month time.Month, day int) bool {
	return day >= 1 && day <= DaysIn(year, month)
}

// SetDate replaces the day-of-month and, when month is non-nil, the month.
// Days past the end of the month are clamped to the last day instead of
// rolling into the next month; use DayFits to detect that case.
func SetDate(d Date, day int, month *time.Month) Date {
	m := d.Month()
	if month != nil {
		m = *month
	}
	if day < 1 {
		day = 1
	}
	if last := DaysIn(d.Year(), m); day > last {
		day = last
	}
	return NewDate(d.Year(), m, day)
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween counts calendar days from a to b (negative when b is earlier).
func DaysBetween(from, to Date) int {
	return int((to.Time.Unix() - from.Time.Unix()) / secondsPerDay)
}

// CalendarWeeksBetween counts Monday-anchored week boundaries between a and b.
func CalendarWeeksBetween(from, to Date) int {
	return DaysBetween(StartOfWeek(from), StartOfWeek(to)) / 7
}

// CalendarMonthsBetween counts month boundaries between a and b.
func CalendarMonthsBetween(from, to Date) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// ParseWeekday accepts full or three-letter English names, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return wd, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
