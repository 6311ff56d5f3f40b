package persistence

import (
	"context"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/recurrence"
)

// RuleRepository exposes CRUD operations for recurrence rules.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule Rule) error
	UpdateRule(ctx context.Context, rule Rule) error
	GetRule(ctx context.Context, id string) (Rule, error)
	ListActiveRules(ctx context.Context) ([]Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// SessionFilter narrows session queries.
type SessionFilter struct {
	From   *recurrence.Date
	To     *recurrence.Date
	RuleID *string
	Status *lifecycle.SessionStatus
}

// SessionRepository stores session instances.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	UpdateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// AppointmentRepository stores appointments keyed by session id.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appointment Appointment) error
	UpdateAppointment(ctx context.Context, appointment Appointment) error
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
}

// AttendanceRepository stores confirmed attendance records.
type AttendanceRepository interface {
	CreateAttendance(ctx context.Context, record AttendanceRecord) error
	UpdateAttendance(ctx context.Context, record AttendanceRecord) error
	GetAttendance(ctx context.Context, id string) (AttendanceRecord, error)
	// FindForAppointment returns the record tying a participant to an
	// appointment, or ErrNotFound when none exists.
	FindForAppointment(ctx context.Context, appointmentID, participantID string) (AttendanceRecord, error)
	ListForAppointment(ctx context.Context, appointmentID string) ([]AttendanceRecord, error)
	ListForParticipant(ctx context.Context, participantID string) ([]AttendanceRecord, error)
	DeleteAttendance(ctx context.Context, id string) error
}

// VolunteerRepository stores volunteer accounts and their aggregates.
type VolunteerRepository interface {
	CreateVolunteer(ctx context.Context, volunteer Volunteer) error
	UpdateVolunteer(ctx context.Context, volunteer Volunteer) error
	GetVolunteer(ctx context.Context, id string) (Volunteer, error)
	ListVolunteers(ctx context.Context) ([]Volunteer, error)
}

// ResidentRepository stores residents and their aggregates.
type ResidentRepository interface {
	CreateResident(ctx context.Context, resident Resident) error
	UpdateResident(ctx context.Context, resident Resident) error
	GetResident(ctx context.Context, id string) (Resident, error)
	ListResidents(ctx context.Context) ([]Resident, error)
}

// ExternalGroupRepository stores visiting group records.
type ExternalGroupRepository interface {
	CreateExternalGroup(ctx context.Context, group ExternalGroup) error
	UpdateExternalGroup(ctx context.Context, group ExternalGroup) error
	GetExternalGroup(ctx context.Context, id string) (ExternalGroup, error)
	DeleteExternalGroup(ctx context.Context, id string) error
}
