package recurrence

import (
	"testing"
	"time"
)

func TestParseDateRoundTrip(t *testing.T) {
	date, err := ParseDate("2024-03-31")
	if err != nil {
		t.Fatalf("ParseDate returned error: %v", err)
	}
	if date.Year != 2024 || date.Month != time.March || date.Day != 31 {
		t.Fatalf("unexpected date: %+v", date)
	}
	if got := date.String(); got != "2024-03-31" {
		t.Fatalf("String returned %q", got)
	}
}

func TestParseDateRejectsMalformedInput(t *testing.T) {
	for _, raw := range []string{"", "31-03-2024", "2024/03/31", "2024-13-01"} {
		if _, err := ParseDate(raw); err == nil {
			t.Errorf("ParseDate(%q) succeeded, want error", raw)
		}
	}
}

func TestDateOfUsesFacilityTimezone(t *testing.T) {
	// 23:30 UTC is already the next day at the facility.
	instant := time.Date(2024, time.June, 10, 23, 30, 0, 0, time.UTC)
	if got := DateOf(instant.In(Location())); got != NewDate(2024, time.June, 11) {
		t.Fatalf("DateOf returned %v", got)
	}
}

func TestDaysSince(t *testing.T) {
	anchor := NewDate(2024, time.January, 1)
	if got := NewDate(2024, time.January, 15).DaysSince(anchor); got != 14 {
		t.Fatalf("DaysSince returned %d, want 14", got)
	}
	if got := anchor.DaysSince(NewDate(2024, time.January, 15)); got != -14 {
		t.Fatalf("negative DaysSince returned %d, want -14", got)
	}
	// Across a leap day.
	if got := NewDate(2024, time.March, 1).DaysSince(NewDate(2024, time.February, 1)); got != 29 {
		t.Fatalf("leap-month DaysSince returned %d, want 29", got)
	}
}

func TestMonthsSince(t *testing.T) {
	anchor := NewDate(2024, time.November, 15)
	if got := NewDate(2025, time.February, 15).MonthsSince(anchor); got != 3 {
		t.Fatalf("MonthsSince returned %d, want 3", got)
	}
}

func TestStartOfWeekIsSunday(t *testing.T) {
	// 2024-01-03 is a Wednesday; the week starts on Sunday 2023-12-31.
	wednesday := NewDate(2024, time.January, 3)
	if got := wednesday.StartOfWeek(); got != NewDate(2023, time.December, 31) {
		t.Fatalf("StartOfWeek returned %v", got)
	}
	sunday := NewDate(2023, time.December, 31)
	if got := sunday.StartOfWeek(); got != sunday {
		t.Fatalf("StartOfWeek of a Sunday returned %v", got)
	}
}

func TestAddDaysCrossesMonthBoundary(t *testing.T) {
	if got := NewDate(2024, time.January, 30).AddDays(3); got != NewDate(2024, time.February, 2) {
		t.Fatalf("AddDays returned %v", got)
	}
	if got := NewDate(2024, time.March, 1).AddDays(-1); got != NewDate(2024, time.February, 29) {
		t.Fatalf("AddDays(-1) returned %v", got)
	}
}

func TestDateTextMarshalling(t *testing.T) {
	date := NewDate(2024, time.July, 4)
	raw, err := date.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText returned error: %v", err)
	}
	var decoded Date
	if err := decoded.UnmarshalText(raw); err != nil {
		t.Fatalf("UnmarshalText returned error: %v", err)
	}
	if decoded != date {
		t.Fatalf("round trip produced %v, want %v", decoded, date)
	}
}
