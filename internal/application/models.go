package application

import (
	"time"

	"github.com/example/care-scheduler/internal/persistence"
	"github.com/example/care-scheduler/internal/recurrence"
)

// PatternInput describes the recurrence cadence requested for a session series.
type PatternInput struct {
	Frequency recurrence.Frequency
	Interval  int
	Weekdays  []time.Weekday
	EndDate   *recurrence.Date
}

// ExternalGroupInput describes a visiting group attached to a new session.
type ExternalGroupInput struct {
	GroupName      string
	ContactPerson  string
	ContactPhone   string
	PurposeOfVisit string
	Size           int
	Notes          string
}

// CreateSessionInput carries the fields needed to create a session. A non-nil
// Pattern makes the session the anchor of a new series; a non-nil
// ExternalGroup dedicates the session to a visiting group.
type CreateSessionInput struct {
	Date          recurrence.Date
	StartTime     string
	EndTime       string
	Capacity      int
	ResidentIDs   []string
	Preapproved   []persistence.Participant
	Category      *string
	Notes         string
	Pattern       *PatternInput
	ExternalGroup *ExternalGroupInput
	// ConfirmedBy names the staff member recording attendance for sessions
	// created with a date already in the past.
	ConfirmedBy string
}

// EditSessionInput carries a partial session update. Nil pointers leave the
// corresponding field untouched.
type EditSessionInput struct {
	StartTime   *string
	EndTime     *string
	Capacity    *int
	ResidentIDs []string
	Category    *string
	Notes       *string
}

// AttendanceInput carries a confirmed attendance outcome for a participant.
type AttendanceInput struct {
	AppointmentID string
	Participant   persistence.Participant
	Status        persistence.AttendanceStatus
	ConfirmedBy   string
	Notes         string
}

// RegisterVolunteerInput carries the fields needed to register a volunteer.
type RegisterVolunteerInput struct {
	FullName         string
	GroupAffiliation *string
}

// RegisterResidentInput carries the fields needed to register a resident.
type RegisterResidentInput struct {
	FullName string
}
