package recurrence

import (
	"fmt"
	"time"
)

// facility is the fixed timezone all calendar math happens in. Sessions are
// scheduled against the facility's wall clock, never the server's or a
// client's local time.
var facility = time.FixedZone("IST", 2*60*60)

// Location returns the fixed facility timezone.
func Location() *time.Location {
	return facility
}

// dateLayout is the wire/storage form of a calendar day.
const dateLayout = "2006-01-02"

// Date identifies a calendar day in the facility timezone. It deliberately
// carries no time-of-day so that generated occurrences cannot drift across
// day boundaries under DST or client timezone skew.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate constructs a normalized Date. Out-of-range values roll over the way
// time.Date rolls them.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, facility))
}

// DateOf returns the calendar day containing t, evaluated in the facility
// timezone.
func DateOf(t time.Time) Date {
	in := t.In(facility)
	return Date{Year: in.Year(), Month: in.Month(), Day: in.Day()}
}

// ParseDate parses a YYYY-MM-DD day identifier.
func ParseDate(value string) (Date, error) {
	t, err := time.ParseInLocation(dateLayout, value, facility)
	if err != nil {
		return Date{}, fmt.Errorf("recurrence: invalid date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// MarshalText renders the date as YYYY-MM-DD for JSON and query parameters.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a YYYY-MM-DD day identifier.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Time returns midnight of the date in the facility timezone.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, facility)
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d falls strictly after other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// AddDays returns the date n calendar days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Weekday returns the day of week, Sunday == 0.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// DaysSince returns the number of calendar days from other to d. The facility
// zone has a fixed offset, so every day is exactly 24 hours long.
func (d Date) DaysSince(other Date) int {
	return int(d.Time().Sub(other.Time()) / (24 * time.Hour))
}

// MonthsSince returns the number of whole calendar months from other to d,
// ignoring the day component.
func (d Date) MonthsSince(other Date) int {
	return (d.Year-other.Year)*12 + int(d.Month) - int(other.Month)
}

// StartOfWeek returns the Sunday on or before d. Weekly interval math is
// anchored on Sunday-started weeks.
func (d Date) StartOfWeek() Date {
	return d.AddDays(-int(d.Weekday()))
}

func minDate(a, b Date) Date {
	if b.Before(a) {
		return b
	}
	return a
}

func maxDate(a, b Date) Date {
	if a.Before(b) {
		return b
	}
	return a
}
