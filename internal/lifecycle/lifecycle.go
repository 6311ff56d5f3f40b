// Package lifecycle holds the pure status arithmetic shared by every mutation
// path: session status from capacity and participant count, appointment status
// from the wall clock, and session duration in decimal hours. Centralizing the
// derivation here is what keeps the "status is a function of time and
// capacity" invariant from being recomputed inconsistently at call sites.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/example/care-scheduler/internal/recurrence"
)

// SessionStatus is the lifecycle state of a session instance.
type SessionStatus string

const (
	// SessionOpen accepts further join requests.
	SessionOpen SessionStatus = "open"
	// SessionFull has reached capacity. Past sessions stay full permanently.
	SessionFull SessionStatus = "full"
	// SessionCanceled was canceled by a manager and is sticky until restored.
	SessionCanceled SessionStatus = "canceled"
)

// AppointmentStatus is the temporal state of a session's appointment.
type AppointmentStatus string

const (
	AppointmentUpcoming   AppointmentStatus = "upcoming"
	AppointmentInProgress AppointmentStatus = "in-progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCanceled   AppointmentStatus = "canceled"
)

// Timing classifies a session window against a reference instant.
type Timing int

const (
	// TimingUpcoming means the window has not started yet.
	TimingUpcoming Timing = iota
	// TimingOngoing means the reference instant falls inside the window.
	TimingOngoing
	// TimingPast means the window has fully ended.
	TimingPast
)

// ParseClock validates an HH:MM time-of-day and returns minutes since
// midnight.
func ParseClock(value string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("lifecycle: invalid time of day %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("lifecycle: invalid time of day %q", value)
	}
	return hour*60 + minute, nil
}

// clockMinutes is ParseClock for already-validated values; malformed input
// degrades to midnight rather than panicking mid-derivation.
func clockMinutes(value string) int {
	minutes, err := ParseClock(value)
	if err != nil {
		return 0
	}
	return minutes
}

// WindowBounds returns the absolute start and end instants of a session
// window in the facility timezone.
func WindowBounds(date recurrence.Date, startTime, endTime string) (time.Time, time.Time) {
	midnight := date.Time()
	start := midnight.Add(time.Duration(clockMinutes(startTime)) * time.Minute)
	end := midnight.Add(time.Duration(clockMinutes(endTime)) * time.Minute)
	return start, end
}

// Classify places now relative to the session window.
func Classify(now time.Time, date recurrence.Date, startTime, endTime string) Timing {
	start, end := WindowBounds(date, startTime, endTime)
	now = now.In(recurrence.Location())
	switch {
	case now.Before(start):
		return TimingUpcoming
	case now.Before(end):
		return TimingOngoing
	default:
		return TimingPast
	}
}

// DeriveAppointmentStatus computes the non-canceled appointment status from
// the wall clock. Canceled is sticky and never derived; callers preserve it
// until an explicit restore.
func DeriveAppointmentStatus(now time.Time, date recurrence.Date, startTime, endTime string) AppointmentStatus {
	switch Classify(now, date, startTime, endTime) {
	case TimingUpcoming:
		return AppointmentUpcoming
	case TimingOngoing:
		return AppointmentInProgress
	default:
		return AppointmentCompleted
	}
}

// SessionStatusFor computes the open/full state of a non-canceled session.
// External-group sessions are always full, and a session whose window has
// ended stays full: its capacity records who actually attended, not a
// future-facing target.
func SessionStatusFor(approvedCount, capacity int, external, past bool) SessionStatus {
	if external || past {
		return SessionFull
	}
	if approvedCount >= capacity {
		return SessionFull
	}
	return SessionOpen
}

// DurationHours returns the session length in decimal hours.
func DurationHours(startTime, endTime string) float64 {
	return float64(clockMinutes(endTime)-clockMinutes(startTime)) / 60
}
