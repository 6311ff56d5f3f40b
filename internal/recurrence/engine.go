package recurrence

import (
	"errors"
	"time"
)

// Frequency names the supported recurrence cadences.
type Frequency string

const (
	// FrequencyDaily fires every Interval days from the anchor.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly fires on the selected weekdays of every Interval-th week.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly fires on the anchor's day-of-month every Interval months.
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether the frequency is one of the supported cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Rule describes a recurrence series.
type Rule struct {
	Frequency Frequency
	// Interval is "every N units". Values below 1 are treated as 1.
	Interval int
	// Weekdays restricts weekly rules to the listed days. An empty set
	// implies the anchor's own weekday.
	Weekdays []time.Weekday
	// Anchor is the series start day and the reference point for all
	// interval arithmetic.
	Anchor Date
	// EndsOn, when set, is the last day (inclusive) the rule may fire.
	EndsOn *Date
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// Occurrences returns, in ascending order, every calendar day in
// [rangeStart, rangeEnd] on which the rule fires. It is pure and
// deterministic: the same rule and range always produce the same days.
//
// Iteration is clamped to [max(rangeStart, anchor), min(rangeEnd, endsOn)].
// Monthly rules anchored on day 29-31 skip months that lack that day; they
// never clamp to the month's last day.
func Occurrences(rule Rule, rangeStart, rangeEnd Date) ([]Date, error) {
	if !rule.Frequency.Valid() {
		return nil, ErrInvalidFrequency
	}

	lower := maxDate(rangeStart, rule.Anchor)
	upper := rangeEnd
	if rule.EndsOn != nil {
		upper = minDate(upper, *rule.EndsOn)
	}
	if lower.After(upper) {
		return nil, nil
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdaySet[day] = struct{}{}
	}
	if len(weekdaySet) == 0 {
		weekdaySet[rule.Anchor.Weekday()] = struct{}{}
	}

	var days []Date
	for current := lower; !current.After(upper); current = current.AddDays(1) {
		if qualifies(rule.Frequency, interval, weekdaySet, rule.Anchor, current) {
			days = append(days, current)
		}
	}
	return days, nil
}

func qualifies(freq Frequency, interval int, weekdaySet map[time.Weekday]struct{}, anchor, date Date) bool {
	switch freq {
	case FrequencyDaily:
		return date.DaysSince(anchor)%interval == 0
	case FrequencyWeekly:
		if _, ok := weekdaySet[date.Weekday()]; !ok {
			return false
		}
		weeks := date.StartOfWeek().DaysSince(anchor.StartOfWeek()) / 7
		return weeks%interval == 0
	case FrequencyMonthly:
		if date.Day != anchor.Day {
			return false
		}
		return date.MonthsSince(anchor)%interval == 0
	}
	return false
}
