package persistence

import (
	"time"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/recurrence"
)

// ParticipantKind distinguishes individual volunteers from external visiting
// groups, which occupy a whole session as a single capacity-filling unit.
type ParticipantKind string

const (
	ParticipantVolunteer     ParticipantKind = "volunteer"
	ParticipantExternalGroup ParticipantKind = "external_group"
)

// Participant references a session participant by id and kind.
type Participant struct {
	ID   string          `json:"id"`
	Kind ParticipantKind `json:"kind"`
}

// JoinRequestStatus is the state of a volunteer's join request.
type JoinRequestStatus string

const (
	RequestPending  JoinRequestStatus = "pending"
	RequestApproved JoinRequestStatus = "approved"
	RequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest tracks a volunteer's request to join a session.
type JoinRequest struct {
	VolunteerID string            `json:"volunteerId"`
	Status      JoinRequestStatus `json:"status"`
	RequestedAt time.Time         `json:"requestedAt"`
	DecidedAt   *time.Time        `json:"decidedAt,omitempty"`
	// Reason is required on rejection and empty otherwise.
	Reason string `json:"reason,omitempty"`
}

// Pattern is the recurrence configuration carried by a rule and copied onto
// the rule's anchor session.
type Pattern struct {
	Frequency recurrence.Frequency `json:"frequency"`
	Interval  int                  `json:"interval"`
	Weekdays  []time.Weekday       `json:"weekdays,omitempty"`
	EndDate   *recurrence.Date     `json:"endDate,omitempty"`
}

// Rule is a stored recurrence rule. Materialization derives future session
// instances from it; the anchor session shares the rule's id.
type Rule struct {
	ID          string
	Active      bool
	StartDate   recurrence.Date
	StartTime   string
	EndTime     string
	Pattern     Pattern
	Capacity    int
	ResidentIDs []string
	// Preapproved participants are copied onto every materialized instance.
	Preapproved []Participant
	Category    *string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is a concrete dated occurrence with a capacity and participants.
type Session struct {
	ID          string
	Date        recurrence.Date
	StartTime   string
	EndTime     string
	Capacity    int
	Status      lifecycle.SessionStatus
	Approved    []Participant
	Requests    []JoinRequest
	ResidentIDs []string
	// RuleID back-references the generating rule. The anchor instance has
	// RuleID equal to its own id and additionally carries the pattern copy.
	RuleID        *string
	Pattern       *Pattern
	AppointmentID *string
	Category      *string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsRecurring reports whether the session was produced by (or anchors) a
// recurrence rule.
func (s Session) IsRecurring() bool {
	return s.RuleID != nil
}

// IsAnchor reports whether the session is the first instance of its series.
func (s Session) IsAnchor() bool {
	return s.RuleID != nil && *s.RuleID == s.ID
}

// HasExternalGroup reports whether the sole participant is a visiting group.
func (s Session) HasExternalGroup() bool {
	for _, p := range s.Approved {
		if p.Kind == ParticipantExternalGroup {
			return true
		}
	}
	return false
}

// Appointment records who attends a session and its temporal status. Its id
// always equals the session id so concurrent creators converge on one record.
type Appointment struct {
	ID           string
	SessionID    string
	ResidentIDs  []string
	Participants []Participant
	Status       lifecycle.AppointmentStatus
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttendanceStatus is the confirmed outcome for a participant.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// Qualifies reports whether the status counts toward completed-session
// aggregates. Absent records only ever touch the status tally.
func (s AttendanceStatus) Qualifies() bool {
	return s == AttendancePresent || s == AttendanceLate
}

// AttendanceRecord is the ground truth of a participant's presence. Records
// without an appointment id are standalone facility visits keyed by date.
type AttendanceRecord struct {
	ID            string
	AppointmentID *string
	Participant   Participant
	Status        AttendanceStatus
	ConfirmedBy   string
	ConfirmedAt   time.Time
	Date          *recurrence.Date
	VisitStarted  *time.Time
	VisitEnded    *time.Time
	Notes         string
}

// AttendanceTally counts confirmed attendance outcomes by status.
type AttendanceTally struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

// HistoryEntry is one appointment in a participant's engagement history.
// Counterparts are the resident ids on a volunteer's entry and the
// participant ids on a resident's entry.
type HistoryEntry struct {
	AppointmentID string                      `json:"appointmentId"`
	Date          recurrence.Date             `json:"date"`
	StartTime     string                      `json:"startTime"`
	EndTime       string                      `json:"endTime"`
	Counterparts  []string                    `json:"counterparts,omitempty"`
	Status        lifecycle.AppointmentStatus `json:"status"`
}

// Volunteer is a participant account with its aggregate engagement counters.
// The counters are a pure function of the attendance records that exist for
// the volunteer and are only ever moved together with a record create/delete.
type Volunteer struct {
	ID               string
	FullName         string
	GroupAffiliation *string
	Tally            AttendanceTally
	TotalSessions    int
	TotalHours       float64
	History          []HistoryEntry
	Active           bool
	CreatedAt        time.Time
}

// Resident is a care-facility resident with aggregate engagement counters.
// Resident totals are gated on "any qualifying volunteer attended", not
// counted per volunteer.
type Resident struct {
	ID            string
	FullName      string
	TotalSessions int
	TotalHours    float64
	History       []HistoryEntry
	Active        bool
	CreatedAt     time.Time
}

// ExternalGroup describes a visiting party attached to a single session.
type ExternalGroup struct {
	ID             string
	AppointmentID  *string
	GroupName      string
	ContactPerson  string
	ContactPhone   string
	PurposeOfVisit string
	// Size is the declared head count; it becomes the session capacity.
	Size      int
	Notes     string
	CreatedAt time.Time
}
