package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/persistence"
)

// canceledRejectionReason is stamped on pending requests when their session
// is canceled so the volunteer sees why the request closed.
const canceledRejectionReason = "session canceled"

// ExternalGroupStore captures the visiting group interactions needed by services.
type ExternalGroupStore interface {
	CreateExternalGroup(ctx context.Context, group persistence.ExternalGroup) error
	UpdateExternalGroup(ctx context.Context, group persistence.ExternalGroup) error
	GetExternalGroup(ctx context.Context, id string) (persistence.ExternalGroup, error)
	DeleteExternalGroup(ctx context.Context, id string) error
}

// AttendanceLedger is the slice of the ledger that session lifecycle
// transitions drive.
type AttendanceLedger interface {
	RecordAttendance(ctx context.Context, input AttendanceInput) (persistence.AttendanceRecord, error)
	ReverseAttendance(ctx context.Context, appointmentID string, participant persistence.Participant) (bool, error)
	AddHistory(ctx context.Context, session persistence.Session, participant persistence.Participant) error
	RemoveHistory(ctx context.Context, session persistence.Session, participant persistence.Participant) error
	ReconcileSessionTimes(ctx context.Context, session persistence.Session, previousStart, previousEnd string) error
}

// SessionService orchestrates session creation and lifecycle transitions.
// Every transition keeps the session, its appointment, and the attendance
// ledger consistent with each other.
type SessionService struct {
	rules        RuleStore
	sessions     SessionStore
	appointments AppointmentStore
	groups       ExternalGroupStore
	ledger       AttendanceLedger
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewSessionService wires dependencies for session operations.
func NewSessionService(rules RuleStore, sessions SessionStore, appointments AppointmentStore, groups ExternalGroupStore, ledger AttendanceLedger, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		rules:        rules,
		sessions:     sessions,
		appointments: appointments,
		groups:       groups,
		ledger:       ledger,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// Create validates the input and persists a session together with its
// appointment. A recurring input additionally creates the rule; the session
// becomes the series anchor and shares the rule's id. An external group input
// dedicates the session to the group and sets capacity to the group's size.
func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "session", "create")

	if err := validateSessionInput(input); err != nil {
		return persistence.Session{}, err
	}

	id := s.idGenerator()
	now := s.now()

	capacity := input.Capacity
	approved := append([]persistence.Participant(nil), input.Preapproved...)

	if input.ExternalGroup != nil {
		group := persistence.ExternalGroup{
			ID:             s.idGenerator(),
			AppointmentID:  &id,
			GroupName:      strings.TrimSpace(input.ExternalGroup.GroupName),
			ContactPerson:  input.ExternalGroup.ContactPerson,
			ContactPhone:   input.ExternalGroup.ContactPhone,
			PurposeOfVisit: input.ExternalGroup.PurposeOfVisit,
			Size:           input.ExternalGroup.Size,
			Notes:          input.ExternalGroup.Notes,
			CreatedAt:      now,
		}
		if err := s.groups.CreateExternalGroup(ctx, group); err != nil {
			return persistence.Session{}, mapRepoError(err)
		}
		capacity = group.Size
		approved = []persistence.Participant{{ID: group.ID, Kind: persistence.ParticipantExternalGroup}}
	}

	past := lifecycle.Classify(now, input.Date, input.StartTime, input.EndTime) == lifecycle.TimingPast
	session := persistence.Session{
		ID:          id,
		Date:        input.Date,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Capacity:    capacity,
		Status:      lifecycle.SessionStatusFor(len(approved), capacity, input.ExternalGroup != nil, past),
		Approved:    approved,
		ResidentIDs: append([]string(nil), input.ResidentIDs...),
		Category:    input.Category,
		Notes:       input.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(approved) > 0 {
		session.AppointmentID = &id
	}

	if input.Pattern != nil {
		pattern := persistence.Pattern{
			Frequency: input.Pattern.Frequency,
			Interval:  input.Pattern.Interval,
			Weekdays:  append([]time.Weekday(nil), input.Pattern.Weekdays...),
			EndDate:   input.Pattern.EndDate,
		}
		rule := persistence.Rule{
			ID:          id,
			Active:      true,
			StartDate:   input.Date,
			StartTime:   input.StartTime,
			EndTime:     input.EndTime,
			Pattern:     pattern,
			Capacity:    capacity,
			ResidentIDs: append([]string(nil), input.ResidentIDs...),
			Preapproved: append([]persistence.Participant(nil), input.Preapproved...),
			Category:    input.Category,
			Notes:       input.Notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.rules.CreateRule(ctx, rule); err != nil {
			return persistence.Session{}, mapRepoError(err)
		}
		session.RuleID = &id
		session.Pattern = &pattern
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}

	// The appointment is created lazily with the first participant; a session
	// nobody attends yet has none.
	if len(approved) > 0 {
		appointment := persistence.Appointment{
			ID:           id,
			SessionID:    id,
			ResidentIDs:  append([]string(nil), session.ResidentIDs...),
			Participants: append([]persistence.Participant(nil), approved...),
			Status:       lifecycle.DeriveAppointmentStatus(now, session.Date, session.StartTime, session.EndTime),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.appointments.CreateAppointment(ctx, appointment); err != nil {
			return persistence.Session{}, mapRepoError(err)
		}

		if s.ledger != nil {
			for _, participant := range approved {
				if err := s.ledger.AddHistory(ctx, session, participant); err != nil {
					return persistence.Session{}, err
				}
			}

			// A session recorded after the fact has already happened, so its
			// approved participants are marked present straight away.
			if appointment.Status == lifecycle.AppointmentCompleted {
				confirmedBy := strings.TrimSpace(input.ConfirmedBy)
				if confirmedBy == "" {
					confirmedBy = "staff"
				}
				for _, participant := range approved {
					if _, err := s.ledger.RecordAttendance(ctx, AttendanceInput{
						AppointmentID: id,
						Participant:   participant,
						Status:        persistence.AttendancePresent,
						ConfirmedBy:   confirmedBy,
					}); err != nil {
						return persistence.Session{}, err
					}
				}
			}
		}
	}

	logger.Info("session created", "session_id", id, "recurring", input.Pattern != nil, "external_group", input.ExternalGroup != nil)
	return session, nil
}

// Get returns a single session.
func (s *SessionService) Get(ctx context.Context, id string) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("SessionService is nil")
	}
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	return session, nil
}

// List returns sessions matching the filter.
func (s *SessionService) List(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	if s == nil {
		return nil, fmt.Errorf("SessionService is nil")
	}
	sessions, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return sessions, nil
}

// Edit applies a partial update to a session and recomputes its status.
// Canceled sessions cannot be edited; restore them first.
func (s *SessionService) Edit(ctx context.Context, id string, input EditSessionInput) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "session", "edit", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if session.Status == lifecycle.SessionCanceled {
		return persistence.Session{}, ErrSessionCanceled
	}
	previousStart, previousEnd := session.StartTime, session.EndTime

	if input.StartTime != nil {
		session.StartTime = *input.StartTime
	}
	if input.EndTime != nil {
		session.EndTime = *input.EndTime
	}
	if input.Capacity != nil {
		session.Capacity = *input.Capacity
	}
	if input.ResidentIDs != nil {
		session.ResidentIDs = append([]string(nil), input.ResidentIDs...)
	}
	if input.Category != nil {
		session.Category = input.Category
	}
	if input.Notes != nil {
		session.Notes = *input.Notes
	}

	vErr := &ValidationError{}
	validateWindow(session.StartTime, session.EndTime, vErr)
	if !session.HasExternalGroup() && session.Capacity < 1 {
		vErr.add("capacity", "capacity must be at least 1")
	}
	if session.Capacity < len(session.Approved) {
		vErr.add("capacity", "capacity cannot drop below the approved participant count")
	}
	if vErr.HasErrors() {
		return persistence.Session{}, vErr
	}

	now := s.now()
	past := lifecycle.Classify(now, session.Date, session.StartTime, session.EndTime) == lifecycle.TimingPast
	session.Status = lifecycle.SessionStatusFor(len(session.Approved), session.Capacity, session.HasExternalGroup(), past)
	session.UpdatedAt = now
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}

	appointment, err := s.appointments.GetAppointment(ctx, id)
	if err == nil {
		appointment.ResidentIDs = append([]string(nil), session.ResidentIDs...)
		appointment.UpdatedAt = now
		if err := s.appointments.UpdateAppointment(ctx, appointment); err != nil {
			return persistence.Session{}, mapRepoError(err)
		}
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.Session{}, mapRepoError(err)
	}

	if s.ledger != nil {
		if err := s.ledger.ReconcileSessionTimes(ctx, session, previousStart, previousEnd); err != nil {
			return persistence.Session{}, err
		}
	}

	logger.Info("session updated")
	return session, nil
}

// Cancel marks a session and its appointment canceled, closes pending join
// requests, and reverses any attendance already confirmed for its
// participants. Canceling an already canceled session is a no-op.
func (s *SessionService) Cancel(ctx context.Context, id string) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "session", "cancel", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if session.Status == lifecycle.SessionCanceled {
		return session, nil
	}

	now := s.now()
	reversed := 0
	for _, participant := range session.Approved {
		ok, err := s.ledger.ReverseAttendance(ctx, s.appointmentIDFor(session), participant)
		if err != nil {
			return persistence.Session{}, err
		}
		if ok {
			reversed++
		}
	}

	for i := range session.Requests {
		if session.Requests[i].Status == persistence.RequestPending {
			session.Requests[i].Status = persistence.RequestRejected
			session.Requests[i].Reason = canceledRejectionReason
			decidedAt := now
			session.Requests[i].DecidedAt = &decidedAt
		}
	}

	session.Status = lifecycle.SessionCanceled
	session.UpdatedAt = now
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}

	if err := s.setAppointmentStatus(ctx, session, lifecycle.AppointmentCanceled, now); err != nil {
		return persistence.Session{}, err
	}

	logger.Info("session canceled", "attendance_reversed", reversed)
	return session, nil
}

// Restore brings a canceled session back. The restored status is recomputed
// from the clock rather than remembered: a session whose window has passed
// comes back full with a completed appointment, and in that case the present
// attendance records the cancelation reversed are recreated.
func (s *SessionService) Restore(ctx context.Context, id string, confirmedBy string) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "session", "restore", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if session.Status != lifecycle.SessionCanceled {
		return session, nil
	}

	now := s.now()
	derived := lifecycle.DeriveAppointmentStatus(now, session.Date, session.StartTime, session.EndTime)
	past := derived == lifecycle.AppointmentCompleted

	session.Status = lifecycle.SessionStatusFor(len(session.Approved), session.Capacity, session.HasExternalGroup(), past)
	session.UpdatedAt = now
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}

	if err := s.setAppointmentStatus(ctx, session, derived, now); err != nil {
		return persistence.Session{}, err
	}

	if derived == lifecycle.AppointmentCompleted {
		for _, participant := range session.Approved {
			input := AttendanceInput{
				AppointmentID: s.appointmentIDFor(session),
				Participant:   participant,
				Status:        persistence.AttendancePresent,
				ConfirmedBy:   confirmedBy,
			}
			if _, err := s.ledger.RecordAttendance(ctx, input); err != nil {
				return persistence.Session{}, err
			}
		}
	}

	logger.Info("session restored", "status", string(session.Status))
	return session, nil
}

// Delete removes a session with its appointment, attendance effects, and any
// attached visiting group. Deleting a series anchor also deletes the rule, so
// no further occurrences materialize; already materialized instances remain.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "session", "delete", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return mapRepoError(err)
	}
	if err := s.deleteCascade(ctx, session); err != nil {
		return err
	}
	if session.IsAnchor() {
		if err := s.rules.DeleteRule(ctx, *session.RuleID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return mapRepoError(err)
		}
		logger.Info("anchor deleted with rule", "rule_id", *session.RuleID)
		return nil
	}
	logger.Info("session deleted")
	return nil
}

// DeleteFutureOccurrences removes the given occurrence and every later one in
// its series, then truncates the rule's end date to the day before so the
// deleted tail never rematerializes. Earlier occurrences are untouched. If
// nothing of the series remains before the cut, the rule itself is deleted.
func (s *SessionService) DeleteFutureOccurrences(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "session", "delete_future_occurrences", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return mapRepoError(err)
	}
	if !session.IsRecurring() {
		vErr := &ValidationError{}
		vErr.add("sessionId", "session is not part of a recurring series")
		return vErr
	}

	rule, err := s.rules.GetRule(ctx, *session.RuleID)
	if err != nil {
		return mapRepoError(err)
	}

	instances, err := s.sessions.ListSessions(ctx, persistence.SessionFilter{RuleID: session.RuleID})
	if err != nil {
		return mapRepoError(err)
	}

	deleted := 0
	for _, instance := range instances {
		if instance.Date.Before(session.Date) {
			continue
		}
		if err := s.deleteCascade(ctx, instance); err != nil {
			return err
		}
		deleted++
	}

	cutoff := session.Date.AddDays(-1)
	if cutoff.Before(rule.StartDate) {
		if err := s.rules.DeleteRule(ctx, rule.ID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return mapRepoError(err)
		}
		logger.Info("series fully deleted", "rule_id", rule.ID, "sessions_deleted", deleted)
		return nil
	}

	rule.Pattern.EndDate = &cutoff
	rule.UpdatedAt = s.now()
	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		return mapRepoError(err)
	}

	logger.Info("series truncated", "rule_id", rule.ID, "end_date", cutoff.String(), "sessions_deleted", deleted)
	return nil
}

// deleteCascade reverses the ledger for every approved participant and then
// removes the appointment, any visiting group, and the session itself.
func (s *SessionService) deleteCascade(ctx context.Context, session persistence.Session) error {
	appointmentID := s.appointmentIDFor(session)
	for _, participant := range session.Approved {
		if _, err := s.ledger.ReverseAttendance(ctx, appointmentID, participant); err != nil {
			return err
		}
		if participant.Kind == persistence.ParticipantExternalGroup {
			if err := s.groups.DeleteExternalGroup(ctx, participant.ID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
				return mapRepoError(err)
			}
		}
	}
	if err := s.appointments.DeleteAppointment(ctx, appointmentID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return mapRepoError(err)
	}
	if err := s.sessions.DeleteSession(ctx, session.ID); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *SessionService) setAppointmentStatus(ctx context.Context, session persistence.Session, status lifecycle.AppointmentStatus, now time.Time) error {
	appointment, err := s.appointments.GetAppointment(ctx, s.appointmentIDFor(session))
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return mapRepoError(err)
	}
	appointment.Status = status
	appointment.UpdatedAt = now
	if err := s.appointments.UpdateAppointment(ctx, appointment); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *SessionService) appointmentIDFor(session persistence.Session) string {
	if session.AppointmentID != nil {
		return *session.AppointmentID
	}
	return session.ID
}

func validateSessionInput(input CreateSessionInput) error {
	vErr := &ValidationError{}
	if input.Date.IsZero() {
		vErr.add("date", "date is required")
	}
	validateWindow(input.StartTime, input.EndTime, vErr)

	if input.ExternalGroup != nil {
		if input.Pattern != nil {
			vErr.add("pattern", "external group visits cannot recur")
		}
		if strings.TrimSpace(input.ExternalGroup.GroupName) == "" {
			vErr.add("groupName", "group name is required")
		}
		if input.ExternalGroup.Size < 1 {
			vErr.add("numberOfParticipants", "group size must be at least 1")
		}
		if len(input.Preapproved) > 0 {
			vErr.add("preapproved", "external group visits take no other participants")
		}
	} else if input.Capacity < 1 {
		vErr.add("capacity", "capacity must be at least 1")
	}

	if input.Capacity > 0 && len(input.Preapproved) > input.Capacity {
		vErr.add("preapproved", "preapproved participants exceed capacity")
	}

	if input.Pattern != nil {
		if !input.Pattern.Frequency.Valid() {
			vErr.add("frequency", "frequency must be daily, weekly, or monthly")
		}
		if input.Pattern.Interval < 1 {
			vErr.add("interval", "interval must be at least 1")
		}
		if input.Pattern.EndDate != nil && input.Pattern.EndDate.Before(input.Date) {
			vErr.add("endDate", "end date cannot precede the start date")
		}
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func validateWindow(startTime, endTime string, vErr *ValidationError) {
	startMinutes, startErr := lifecycle.ParseClock(startTime)
	if startErr != nil {
		vErr.add("startTime", "start time must be HH:MM")
	}
	endMinutes, endErr := lifecycle.ParseClock(endTime)
	if endErr != nil {
		vErr.add("endTime", "end time must be HH:MM")
	}
	if startErr == nil && endErr == nil && endMinutes <= startMinutes {
		vErr.add("endTime", "end time must be after start time")
	}
}
