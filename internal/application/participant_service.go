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

// ParticipantService manages volunteer and resident accounts and the
// join-request flow that gates session participation.
type ParticipantService struct {
	sessions     SessionStore
	appointments AppointmentStore
	volunteers   VolunteerStore
	residents    ResidentStore
	ledger       AttendanceLedger
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewParticipantService wires dependencies for participation operations.
func NewParticipantService(sessions SessionStore, appointments AppointmentStore, volunteers VolunteerStore, residents ResidentStore, ledger AttendanceLedger, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ParticipantService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ParticipantService{
		sessions:     sessions,
		appointments: appointments,
		volunteers:   volunteers,
		residents:    residents,
		ledger:       ledger,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// RegisterVolunteer creates a volunteer account with zeroed counters.
func (s *ParticipantService) RegisterVolunteer(ctx context.Context, input RegisterVolunteerInput) (persistence.Volunteer, error) {
	if s == nil {
		return persistence.Volunteer{}, fmt.Errorf("ParticipantService is nil")
	}
	if strings.TrimSpace(input.FullName) == "" {
		vErr := &ValidationError{}
		vErr.add("fullName", "full name is required")
		return persistence.Volunteer{}, vErr
	}
	volunteer := persistence.Volunteer{
		ID:               s.idGenerator(),
		FullName:         strings.TrimSpace(input.FullName),
		GroupAffiliation: input.GroupAffiliation,
		Active:           true,
		CreatedAt:        s.now(),
	}
	if err := s.volunteers.CreateVolunteer(ctx, volunteer); err != nil {
		return persistence.Volunteer{}, mapRepoError(err)
	}
	return volunteer, nil
}

// RegisterResident creates a resident record with zeroed counters.
func (s *ParticipantService) RegisterResident(ctx context.Context, input RegisterResidentInput) (persistence.Resident, error) {
	if s == nil {
		return persistence.Resident{}, fmt.Errorf("ParticipantService is nil")
	}
	if strings.TrimSpace(input.FullName) == "" {
		vErr := &ValidationError{}
		vErr.add("fullName", "full name is required")
		return persistence.Resident{}, vErr
	}
	resident := persistence.Resident{
		ID:        s.idGenerator(),
		FullName:  strings.TrimSpace(input.FullName),
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := s.residents.CreateResident(ctx, resident); err != nil {
		return persistence.Resident{}, mapRepoError(err)
	}
	return resident, nil
}

// GetVolunteer returns a volunteer with its aggregates.
func (s *ParticipantService) GetVolunteer(ctx context.Context, id string) (persistence.Volunteer, error) {
	if s == nil {
		return persistence.Volunteer{}, fmt.Errorf("ParticipantService is nil")
	}
	volunteer, err := s.volunteers.GetVolunteer(ctx, id)
	if err != nil {
		return persistence.Volunteer{}, mapRepoError(err)
	}
	return volunteer, nil
}

// ListVolunteers returns every volunteer account.
func (s *ParticipantService) ListVolunteers(ctx context.Context) ([]persistence.Volunteer, error) {
	if s == nil {
		return nil, fmt.Errorf("ParticipantService is nil")
	}
	volunteers, err := s.volunteers.ListVolunteers(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return volunteers, nil
}

// GetResident returns a resident with its aggregates.
func (s *ParticipantService) GetResident(ctx context.Context, id string) (persistence.Resident, error) {
	if s == nil {
		return persistence.Resident{}, fmt.Errorf("ParticipantService is nil")
	}
	resident, err := s.residents.GetResident(ctx, id)
	if err != nil {
		return persistence.Resident{}, mapRepoError(err)
	}
	return resident, nil
}

// ListResidents returns every resident record.
func (s *ParticipantService) ListResidents(ctx context.Context) ([]persistence.Resident, error) {
	if s == nil {
		return nil, fmt.Errorf("ParticipantService is nil")
	}
	residents, err := s.residents.ListResidents(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return residents, nil
}

// RequestJoin files a volunteer's request to join a session. Requests are
// only accepted while the session is open and in the future; filing the same
// request twice returns the unchanged session.
func (s *ParticipantService) RequestJoin(ctx context.Context, sessionID, volunteerID string) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("ParticipantService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "participant", "request_join", "session_id", sessionID, "volunteer_id", volunteerID)

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if session.Status == lifecycle.SessionCanceled {
		return persistence.Session{}, ErrSessionCanceled
	}
	if s.isPast(session) {
		return persistence.Session{}, ErrPastSession
	}
	if session.Status == lifecycle.SessionFull {
		return persistence.Session{}, ErrSessionFull
	}
	if _, err := s.volunteers.GetVolunteer(ctx, volunteerID); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if approvedIndex(session.Approved, volunteerID) >= 0 {
		return persistence.Session{}, ErrAlreadyExists
	}
	for _, request := range session.Requests {
		if request.VolunteerID == volunteerID && request.Status == persistence.RequestPending {
			return session, nil
		}
	}

	session.Requests = append(session.Requests, persistence.JoinRequest{
		VolunteerID: volunteerID,
		Status:      persistence.RequestPending,
		RequestedAt: s.now(),
	})
	session.UpdatedAt = s.now()
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}

	logger.Info("join request filed")
	return session, nil
}

// Decide resolves a pending join request. Approval moves the volunteer into
// the approved set and may flip the session to full; rejection requires a
// non-empty reason.
func (s *ParticipantService) Decide(ctx context.Context, sessionID, volunteerID string, approve bool, reason string) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("ParticipantService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "participant", "decide_request", "session_id", sessionID, "volunteer_id", volunteerID)

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}

	requestIdx := -1
	for i, request := range session.Requests {
		if request.VolunteerID == volunteerID && request.Status == persistence.RequestPending {
			requestIdx = i
			break
		}
	}
	if requestIdx < 0 {
		return persistence.Session{}, ErrNotFound
	}

	now := s.now()
	if !approve {
		if strings.TrimSpace(reason) == "" {
			vErr := &ValidationError{}
			vErr.add("reason", "a rejection reason is required")
			return persistence.Session{}, vErr
		}
		session.Requests[requestIdx].Status = persistence.RequestRejected
		session.Requests[requestIdx].Reason = strings.TrimSpace(reason)
		session.Requests[requestIdx].DecidedAt = &now
		session.UpdatedAt = now
		if err := s.sessions.UpdateSession(ctx, session); err != nil {
			return persistence.Session{}, mapRepoError(err)
		}
		logger.Info("join request rejected")
		return session, nil
	}

	if session.Status == lifecycle.SessionCanceled {
		return persistence.Session{}, ErrSessionCanceled
	}
	if s.isPast(session) {
		return persistence.Session{}, ErrPastSession
	}
	if len(session.Approved) >= session.Capacity {
		return persistence.Session{}, ErrSessionFull
	}

	participant := persistence.Participant{ID: volunteerID, Kind: persistence.ParticipantVolunteer}
	session.Approved = append(session.Approved, participant)
	session.Requests[requestIdx].Status = persistence.RequestApproved
	session.Requests[requestIdx].DecidedAt = &now
	session.Status = lifecycle.SessionStatusFor(len(session.Approved), session.Capacity, session.HasExternalGroup(), false)
	session.UpdatedAt = now
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if err := s.syncAppointmentParticipants(ctx, session, now); err != nil {
		return persistence.Session{}, err
	}
	if err := s.ledger.AddHistory(ctx, session, participant); err != nil {
		return persistence.Session{}, err
	}

	logger.Info("join request approved", "approved_count", len(session.Approved))
	return session, nil
}

// AddDirect places a participant into the approved set without a request,
// for staff-managed assignments and after-the-fact corrections. Adding an
// already approved participant returns the unchanged session. On a session
// whose window has already ended the participant is marked present right
// away, confirmed by the named staff member, so the correction lands in the
// ledger the same way a removal is walked back.
func (s *ParticipantService) AddDirect(ctx context.Context, sessionID string, participant persistence.Participant, confirmedBy string) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("ParticipantService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "participant", "add_direct", "session_id", sessionID, "participant_id", participant.ID)

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if session.Status == lifecycle.SessionCanceled {
		return persistence.Session{}, ErrSessionCanceled
	}
	if approvedIndex(session.Approved, participant.ID) >= 0 {
		return session, nil
	}
	if len(session.Approved) >= session.Capacity {
		return persistence.Session{}, ErrSessionFull
	}
	if participant.Kind == persistence.ParticipantVolunteer {
		if _, err := s.volunteers.GetVolunteer(ctx, participant.ID); err != nil {
			return persistence.Session{}, mapRepoError(err)
		}
	}

	now := s.now()
	past := s.isPast(session)
	session.Approved = append(session.Approved, participant)
	session.Status = lifecycle.SessionStatusFor(len(session.Approved), session.Capacity, session.HasExternalGroup(), past)
	session.UpdatedAt = now
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if err := s.syncAppointmentParticipants(ctx, session, now); err != nil {
		return persistence.Session{}, err
	}
	if err := s.ledger.AddHistory(ctx, session, participant); err != nil {
		return persistence.Session{}, err
	}

	if past {
		if strings.TrimSpace(confirmedBy) == "" {
			confirmedBy = "staff"
		}
		appointmentID := session.ID
		if session.AppointmentID != nil {
			appointmentID = *session.AppointmentID
		}
		if _, err := s.ledger.RecordAttendance(ctx, AttendanceInput{
			AppointmentID: appointmentID,
			Participant:   participant,
			Status:        persistence.AttendancePresent,
			ConfirmedBy:   confirmedBy,
		}); err != nil {
			return persistence.Session{}, err
		}
	}

	logger.Info("participant added", "approved_count", len(session.Approved), "attendance_recorded", past)
	return session, nil
}

// RemoveDirect takes a participant out of the approved set and reverses any
// attendance already confirmed for them, so leaving a past session also
// walks back the counters it earned.
func (s *ParticipantService) RemoveDirect(ctx context.Context, sessionID, participantID string) (persistence.Session, error) {
	if s == nil {
		return persistence.Session{}, fmt.Errorf("ParticipantService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "participant", "remove_direct", "session_id", sessionID, "participant_id", participantID)

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	idx := approvedIndex(session.Approved, participantID)
	if idx < 0 {
		return persistence.Session{}, ErrNotFound
	}

	participant := session.Approved[idx]
	appointmentID := session.ID
	if session.AppointmentID != nil {
		appointmentID = *session.AppointmentID
	}
	reversed, err := s.ledger.ReverseAttendance(ctx, appointmentID, participant)
	if err != nil {
		return persistence.Session{}, err
	}

	now := s.now()
	session.Approved = append(session.Approved[:idx], session.Approved[idx+1:]...)
	if session.Status != lifecycle.SessionCanceled {
		session.Status = lifecycle.SessionStatusFor(len(session.Approved), session.Capacity, session.HasExternalGroup(), s.isPast(session))
	}
	session.UpdatedAt = now
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return persistence.Session{}, mapRepoError(err)
	}
	if err := s.syncAppointmentParticipants(ctx, session, now); err != nil {
		return persistence.Session{}, err
	}
	if err := s.ledger.RemoveHistory(ctx, session, participant); err != nil {
		return persistence.Session{}, err
	}

	logger.Info("participant removed", "attendance_reversed", reversed)
	return session, nil
}

// syncAppointmentParticipants keeps the appointment in lockstep with the
// approved set. The appointment exists only while the session has
// participants: the first one creates it, and removing the last one deletes
// it again unless the session was canceled.
func (s *ParticipantService) syncAppointmentParticipants(ctx context.Context, session persistence.Session, now time.Time) error {
	appointmentID := session.ID
	if session.AppointmentID != nil {
		appointmentID = *session.AppointmentID
	}
	appointment, err := s.appointments.GetAppointment(ctx, appointmentID)
	if errors.Is(err, persistence.ErrNotFound) {
		if len(session.Approved) == 0 {
			return nil
		}
		appointment = persistence.Appointment{
			ID:           appointmentID,
			SessionID:    session.ID,
			ResidentIDs:  append([]string(nil), session.ResidentIDs...),
			Participants: append([]persistence.Participant(nil), session.Approved...),
			Status:       lifecycle.DeriveAppointmentStatus(now, session.Date, session.StartTime, session.EndTime),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.appointments.CreateAppointment(ctx, appointment); err != nil && !errors.Is(err, persistence.ErrDuplicate) {
			return mapRepoError(err)
		}
		return nil
	}
	if err != nil {
		return mapRepoError(err)
	}
	if len(session.Approved) == 0 && appointment.Status != lifecycle.AppointmentCanceled {
		if err := s.appointments.DeleteAppointment(ctx, appointmentID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return mapRepoError(err)
		}
		return nil
	}
	appointment.Participants = append([]persistence.Participant(nil), session.Approved...)
	appointment.UpdatedAt = now
	if err := s.appointments.UpdateAppointment(ctx, appointment); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *ParticipantService) isPast(session persistence.Session) bool {
	return lifecycle.Classify(s.now(), session.Date, session.StartTime, session.EndTime) == lifecycle.TimingPast
}

func approvedIndex(approved []persistence.Participant, participantID string) int {
	for i, p := range approved {
		if p.ID == participantID {
			return i
		}
	}
	return -1
}
