package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/persistence"
	"github.com/example/care-scheduler/internal/recurrence"
)

// SessionStore captures the session lookups needed across services.
type SessionStore interface {
	CreateSession(ctx context.Context, session persistence.Session) error
	UpdateSession(ctx context.Context, session persistence.Session) error
	GetSession(ctx context.Context, id string) (persistence.Session, error)
	ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// AppointmentStore captures the appointment interactions needed across services.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appointment persistence.Appointment) error
	UpdateAppointment(ctx context.Context, appointment persistence.Appointment) error
	GetAppointment(ctx context.Context, id string) (persistence.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
}

// AttendanceStore captures the attendance record interactions used by the ledger.
type AttendanceStore interface {
	CreateAttendance(ctx context.Context, record persistence.AttendanceRecord) error
	UpdateAttendance(ctx context.Context, record persistence.AttendanceRecord) error
	GetAttendance(ctx context.Context, id string) (persistence.AttendanceRecord, error)
	FindForAppointment(ctx context.Context, appointmentID, participantID string) (persistence.AttendanceRecord, error)
	ListForAppointment(ctx context.Context, appointmentID string) ([]persistence.AttendanceRecord, error)
	ListForParticipant(ctx context.Context, participantID string) ([]persistence.AttendanceRecord, error)
	DeleteAttendance(ctx context.Context, id string) error
}

// VolunteerStore captures the volunteer account interactions needed across services.
type VolunteerStore interface {
	CreateVolunteer(ctx context.Context, volunteer persistence.Volunteer) error
	UpdateVolunteer(ctx context.Context, volunteer persistence.Volunteer) error
	GetVolunteer(ctx context.Context, id string) (persistence.Volunteer, error)
	ListVolunteers(ctx context.Context) ([]persistence.Volunteer, error)
}

// ResidentStore captures the resident interactions needed across services.
type ResidentStore interface {
	CreateResident(ctx context.Context, resident persistence.Resident) error
	UpdateResident(ctx context.Context, resident persistence.Resident) error
	GetResident(ctx context.Context, id string) (persistence.Resident, error)
	ListResidents(ctx context.Context) ([]persistence.Resident, error)
}

// LedgerService keeps attendance records and the aggregate counters derived
// from them in lockstep. Every counter movement happens together with a
// record create or delete, never independently, so replaying the records
// always reproduces the counters.
type LedgerService struct {
	sessions     SessionStore
	appointments AppointmentStore
	attendance   AttendanceStore
	volunteers   VolunteerStore
	residents    ResidentStore
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewLedgerService wires dependencies for attendance bookkeeping.
func NewLedgerService(sessions SessionStore, appointments AppointmentStore, attendance AttendanceStore, volunteers VolunteerStore, residents ResidentStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *LedgerService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &LedgerService{
		sessions:     sessions,
		appointments: appointments,
		attendance:   attendance,
		volunteers:   volunteers,
		residents:    residents,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// RecordAttendance confirms a participant's outcome for an appointment and
// advances the affected aggregates. Recording the same participant twice for
// one appointment returns the existing record without moving any counter.
func (s *LedgerService) RecordAttendance(ctx context.Context, input AttendanceInput) (persistence.AttendanceRecord, error) {
	if s == nil {
		return persistence.AttendanceRecord{}, fmt.Errorf("LedgerService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ledger", "record_attendance", "appointment_id", input.AppointmentID, "participant_id", input.Participant.ID)

	if err := validateAttendanceInput(input); err != nil {
		return persistence.AttendanceRecord{}, err
	}

	existing, err := s.attendance.FindForAppointment(ctx, input.AppointmentID, input.Participant.ID)
	if err == nil {
		logger.Info("attendance already recorded", "record_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}

	appointment, err := s.appointments.GetAppointment(ctx, input.AppointmentID)
	if err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}
	session, err := s.sessions.GetSession(ctx, appointment.SessionID)
	if err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}

	priorQualifying, err := s.countQualifying(ctx, appointment.ID)
	if err != nil {
		return persistence.AttendanceRecord{}, err
	}

	record := persistence.AttendanceRecord{
		ID:            s.idGenerator(),
		AppointmentID: &input.AppointmentID,
		Participant:   input.Participant,
		Status:        input.Status,
		ConfirmedBy:   input.ConfirmedBy,
		ConfirmedAt:   s.now(),
		Notes:         input.Notes,
	}
	if err := s.attendance.CreateAttendance(ctx, record); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return s.attendance.FindForAppointment(ctx, input.AppointmentID, input.Participant.ID)
		}
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}

	if err := s.applyForward(ctx, session, appointment, record, priorQualifying); err != nil {
		return persistence.AttendanceRecord{}, err
	}

	logger.Info("attendance recorded", "record_id", record.ID, "status", string(record.Status))
	return record, nil
}

// ReverseAttendance deletes a participant's attendance record for an
// appointment and walks back the counters it advanced. It reports whether a
// record existed; reversing an absent record is a no-op, not an error.
func (s *LedgerService) ReverseAttendance(ctx context.Context, appointmentID string, participant persistence.Participant) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("LedgerService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ledger", "reverse_attendance", "appointment_id", appointmentID, "participant_id", participant.ID)

	record, err := s.attendance.FindForAppointment(ctx, appointmentID, participant.ID)
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapRepoError(err)
	}

	appointment, err := s.appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		return false, mapRepoError(err)
	}
	session, err := s.sessions.GetSession(ctx, appointment.SessionID)
	if err != nil {
		return false, mapRepoError(err)
	}

	if err := s.attendance.DeleteAttendance(ctx, record.ID); err != nil {
		return false, mapRepoError(err)
	}

	if err := s.applyReverse(ctx, session, appointment, record); err != nil {
		return false, err
	}

	logger.Info("attendance reversed", "record_id", record.ID, "status", string(record.Status))
	return true, nil
}

// StartVisit opens a standalone facility visit record for a volunteer. Visit
// records are not tied to an appointment and never touch session counters.
func (s *LedgerService) StartVisit(ctx context.Context, volunteerID, confirmedBy string) (persistence.AttendanceRecord, error) {
	if s == nil {
		return persistence.AttendanceRecord{}, fmt.Errorf("LedgerService is nil")
	}
	if _, err := s.volunteers.GetVolunteer(ctx, volunteerID); err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}

	started := s.now()
	visitDate := recurrence.DateOf(started)
	record := persistence.AttendanceRecord{
		ID:           s.idGenerator(),
		Participant:  persistence.Participant{ID: volunteerID, Kind: persistence.ParticipantVolunteer},
		Status:       persistence.AttendancePresent,
		ConfirmedBy:  confirmedBy,
		ConfirmedAt:  started,
		Date:         &visitDate,
		VisitStarted: &started,
	}
	if err := s.attendance.CreateAttendance(ctx, record); err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}
	return record, nil
}

// EndVisit closes a facility visit and credits the elapsed time to the
// volunteer's hour total. Ending an already closed visit is a no-op.
func (s *LedgerService) EndVisit(ctx context.Context, recordID string) (persistence.AttendanceRecord, error) {
	if s == nil {
		return persistence.AttendanceRecord{}, fmt.Errorf("LedgerService is nil")
	}
	record, err := s.attendance.GetAttendance(ctx, recordID)
	if err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}
	if record.VisitStarted == nil {
		vErr := &ValidationError{}
		vErr.add("recordId", "record is not a facility visit")
		return persistence.AttendanceRecord{}, vErr
	}
	if record.VisitEnded != nil {
		return record, nil
	}

	ended := s.now()
	record.VisitEnded = &ended
	if err := s.attendance.UpdateAttendance(ctx, record); err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}

	volunteer, err := s.volunteers.GetVolunteer(ctx, record.Participant.ID)
	if err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}
	volunteer.TotalHours += ended.Sub(*record.VisitStarted).Hours()
	if err := s.volunteers.UpdateVolunteer(ctx, volunteer); err != nil {
		return persistence.AttendanceRecord{}, mapRepoError(err)
	}
	return record, nil
}

// AddHistory files the session's appointment in the participant's engagement
// history and refreshes the entry each resident on the appointment carries
// for it. History follows membership, not attendance: approving a volunteer
// for a future session already files the entry, and a later attendance record
// only updates it in place.
func (s *LedgerService) AddHistory(ctx context.Context, session persistence.Session, participant persistence.Participant) error {
	if s == nil {
		return fmt.Errorf("LedgerService is nil")
	}

	appointmentID := session.ID
	if session.AppointmentID != nil {
		appointmentID = *session.AppointmentID
	}
	appointment, err := s.appointments.GetAppointment(ctx, appointmentID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return mapRepoError(err)
	}

	if participant.Kind == persistence.ParticipantVolunteer {
		volunteer, err := s.volunteers.GetVolunteer(ctx, participant.ID)
		if err != nil {
			return mapRepoError(err)
		}
		volunteer.History = upsertHistory(volunteer.History, persistence.HistoryEntry{
			AppointmentID: appointment.ID,
			Date:          session.Date,
			StartTime:     session.StartTime,
			EndTime:       session.EndTime,
			Counterparts:  append([]string(nil), appointment.ResidentIDs...),
			Status:        appointment.Status,
		})
		if err := s.volunteers.UpdateVolunteer(ctx, volunteer); err != nil {
			return mapRepoError(err)
		}
	}

	counterparts := participantIDs(appointment.Participants)
	for _, residentID := range appointment.ResidentIDs {
		resident, err := s.residents.GetResident(ctx, residentID)
		if err != nil {
			return mapRepoError(err)
		}
		resident.History = upsertHistory(resident.History, persistence.HistoryEntry{
			AppointmentID: appointment.ID,
			Date:          session.Date,
			StartTime:     session.StartTime,
			EndTime:       session.EndTime,
			Counterparts:  counterparts,
			Status:        appointment.Status,
		})
		if err := s.residents.UpdateResident(ctx, resident); err != nil {
			return mapRepoError(err)
		}
	}
	return nil
}

// RemoveHistory drops the participant's history entry for the session and
// brings the residents' entries up to date with the remaining participants.
// When the appointment is gone or empty the residents' entries go with it.
func (s *LedgerService) RemoveHistory(ctx context.Context, session persistence.Session, participant persistence.Participant) error {
	if s == nil {
		return fmt.Errorf("LedgerService is nil")
	}

	appointmentID := session.ID
	if session.AppointmentID != nil {
		appointmentID = *session.AppointmentID
	}

	if participant.Kind == persistence.ParticipantVolunteer {
		volunteer, err := s.volunteers.GetVolunteer(ctx, participant.ID)
		if err != nil {
			return mapRepoError(err)
		}
		volunteer.History = removeHistory(volunteer.History, appointmentID)
		if err := s.volunteers.UpdateVolunteer(ctx, volunteer); err != nil {
			return mapRepoError(err)
		}
	}

	appointment, err := s.appointments.GetAppointment(ctx, appointmentID)
	dropResidentEntries := errors.Is(err, persistence.ErrNotFound)
	if err != nil && !dropResidentEntries {
		return mapRepoError(err)
	}
	if !dropResidentEntries && len(appointment.Participants) == 0 {
		dropResidentEntries = true
	}

	for _, residentID := range session.ResidentIDs {
		resident, err := s.residents.GetResident(ctx, residentID)
		if err != nil {
			return mapRepoError(err)
		}
		if dropResidentEntries {
			resident.History = removeHistory(resident.History, appointmentID)
		} else {
			refreshHistoryCounterparts(resident.History, appointmentID, participantIDs(appointment.Participants))
		}
		if err := s.residents.UpdateResident(ctx, resident); err != nil {
			return mapRepoError(err)
		}
	}
	return nil
}

// ReconcileSessionTimes re-values the hours credited for a session whose
// start or end time changed after attendance was confirmed. Each qualifying
// record is moved from the old duration to the new one and the matching
// history entries are retimed; no record is created or deleted, so the
// counters remain a pure function of the records that exist.
func (s *LedgerService) ReconcileSessionTimes(ctx context.Context, session persistence.Session, previousStart, previousEnd string) error {
	if s == nil {
		return fmt.Errorf("LedgerService is nil")
	}
	if previousStart == session.StartTime && previousEnd == session.EndTime {
		return nil
	}

	appointmentID := session.ID
	if session.AppointmentID != nil {
		appointmentID = *session.AppointmentID
	}
	appointment, err := s.appointments.GetAppointment(ctx, appointmentID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return mapRepoError(err)
	}

	records, err := s.attendance.ListForAppointment(ctx, appointment.ID)
	if err != nil {
		return mapRepoError(err)
	}

	delta := lifecycle.DurationHours(session.StartTime, session.EndTime) - lifecycle.DurationHours(previousStart, previousEnd)
	qualifying := 0
	for _, record := range records {
		if !record.Status.Qualifies() {
			continue
		}
		qualifying++
		if record.Participant.Kind != persistence.ParticipantVolunteer {
			continue
		}
		volunteer, err := s.volunteers.GetVolunteer(ctx, record.Participant.ID)
		if err != nil {
			return mapRepoError(err)
		}
		volunteer.TotalHours = clampHours(volunteer.TotalHours + delta)
		retimeHistory(volunteer.History, appointment.ID, session.StartTime, session.EndTime)
		if err := s.volunteers.UpdateVolunteer(ctx, volunteer); err != nil {
			return mapRepoError(err)
		}
	}

	if qualifying == 0 {
		return nil
	}
	for _, residentID := range appointment.ResidentIDs {
		resident, err := s.residents.GetResident(ctx, residentID)
		if err != nil {
			return mapRepoError(err)
		}
		resident.TotalHours = clampHours(resident.TotalHours + delta)
		retimeHistory(resident.History, appointment.ID, session.StartTime, session.EndTime)
		if err := s.residents.UpdateResident(ctx, resident); err != nil {
			return mapRepoError(err)
		}
	}
	return nil
}

func (s *LedgerService) countQualifying(ctx context.Context, appointmentID string) (int, error) {
	records, err := s.attendance.ListForAppointment(ctx, appointmentID)
	if err != nil {
		return 0, mapRepoError(err)
	}
	count := 0
	for _, r := range records {
		if r.Status.Qualifies() {
			count++
		}
	}
	return count, nil
}

// applyForward advances volunteer and resident aggregates for a newly created
// record. priorQualifying is the number of qualifying records that existed for
// the appointment before this one; residents are credited only when it was
// zero, because resident totals count sessions with at least one qualifying
// participant rather than participants themselves.
func (s *LedgerService) applyForward(ctx context.Context, session persistence.Session, appointment persistence.Appointment, record persistence.AttendanceRecord, priorQualifying int) error {
	hours := lifecycle.DurationHours(session.StartTime, session.EndTime)

	if record.Participant.Kind == persistence.ParticipantVolunteer {
		volunteer, err := s.volunteers.GetVolunteer(ctx, record.Participant.ID)
		if err != nil {
			return mapRepoError(err)
		}
		bumpTally(&volunteer.Tally, record.Status, 1)
		if record.Status.Qualifies() {
			volunteer.TotalSessions++
			volunteer.TotalHours += hours
			volunteer.History = upsertHistory(volunteer.History, persistence.HistoryEntry{
				AppointmentID: appointment.ID,
				Date:          session.Date,
				StartTime:     session.StartTime,
				EndTime:       session.EndTime,
				Counterparts:  append([]string(nil), appointment.ResidentIDs...),
				Status:        appointment.Status,
			})
		}
		if err := s.volunteers.UpdateVolunteer(ctx, volunteer); err != nil {
			return mapRepoError(err)
		}
	}

	if record.Status.Qualifies() && priorQualifying == 0 {
		counterparts := participantIDs(appointment.Participants)
		for _, residentID := range appointment.ResidentIDs {
			resident, err := s.residents.GetResident(ctx, residentID)
			if err != nil {
				return mapRepoError(err)
			}
			resident.TotalSessions++
			resident.TotalHours += hours
			resident.History = upsertHistory(resident.History, persistence.HistoryEntry{
				AppointmentID: appointment.ID,
				Date:          session.Date,
				StartTime:     session.StartTime,
				EndTime:       session.EndTime,
				Counterparts:  counterparts,
				Status:        appointment.Status,
			})
			if err := s.residents.UpdateResident(ctx, resident); err != nil {
				return mapRepoError(err)
			}
		}
	}
	return nil
}

// applyReverse walks back the aggregate movements of a deleted record. The
// record is already gone from the store, so a remaining-qualifying count of
// zero means this was the appointment's last qualifying participant.
func (s *LedgerService) applyReverse(ctx context.Context, session persistence.Session, appointment persistence.Appointment, record persistence.AttendanceRecord) error {
	hours := lifecycle.DurationHours(session.StartTime, session.EndTime)

	if record.Participant.Kind == persistence.ParticipantVolunteer {
		volunteer, err := s.volunteers.GetVolunteer(ctx, record.Participant.ID)
		if err != nil {
			return mapRepoError(err)
		}
		bumpTally(&volunteer.Tally, record.Status, -1)
		if record.Status.Qualifies() {
			if volunteer.TotalSessions > 0 {
				volunteer.TotalSessions--
			}
			volunteer.TotalHours = clampHours(volunteer.TotalHours - hours)
			volunteer.History = removeHistory(volunteer.History, appointment.ID)
		}
		if err := s.volunteers.UpdateVolunteer(ctx, volunteer); err != nil {
			return mapRepoError(err)
		}
	}

	if record.Status.Qualifies() {
		remaining, err := s.countQualifying(ctx, appointment.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			for _, residentID := range appointment.ResidentIDs {
				resident, err := s.residents.GetResident(ctx, residentID)
				if err != nil {
					return mapRepoError(err)
				}
				if resident.TotalSessions > 0 {
					resident.TotalSessions--
				}
				resident.TotalHours = clampHours(resident.TotalHours - hours)
				resident.History = removeHistory(resident.History, appointment.ID)
				if err := s.residents.UpdateResident(ctx, resident); err != nil {
					return mapRepoError(err)
				}
			}
		}
	}
	return nil
}

func validateAttendanceInput(input AttendanceInput) error {
	vErr := &ValidationError{}
	if input.AppointmentID == "" {
		vErr.add("appointmentId", "appointment id is required")
	}
	if input.Participant.ID == "" {
		vErr.add("participantId", "participant id is required")
	}
	switch input.Participant.Kind {
	case persistence.ParticipantVolunteer, persistence.ParticipantExternalGroup:
	default:
		vErr.add("participantKind", "unknown participant kind")
	}
	switch input.Status {
	case persistence.AttendancePresent, persistence.AttendanceLate, persistence.AttendanceAbsent:
	default:
		vErr.add("status", "status must be present, late, or absent")
	}
	if input.ConfirmedBy == "" {
		vErr.add("confirmedBy", "confirming staff member is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func bumpTally(tally *persistence.AttendanceTally, status persistence.AttendanceStatus, delta int) {
	switch status {
	case persistence.AttendancePresent:
		tally.Present = clampCount(tally.Present + delta)
	case persistence.AttendanceLate:
		tally.Late = clampCount(tally.Late + delta)
	case persistence.AttendanceAbsent:
		tally.Absent = clampCount(tally.Absent + delta)
	}
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampHours(h float64) float64 {
	if h < 0 {
		return 0
	}
	return h
}

// upsertHistory replaces the entry for the same appointment or appends a new
// one, so repeated filings of one appointment never duplicate it.
func upsertHistory(entries []persistence.HistoryEntry, entry persistence.HistoryEntry) []persistence.HistoryEntry {
	for i := range entries {
		if entries[i].AppointmentID == entry.AppointmentID {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}

// refreshHistoryCounterparts rewrites the counterpart list on an existing
// entry in place; entries that were already removed are not recreated.
func refreshHistoryCounterparts(entries []persistence.HistoryEntry, appointmentID string, counterparts []string) {
	for i := range entries {
		if entries[i].AppointmentID == appointmentID {
			entries[i].Counterparts = append([]string(nil), counterparts...)
		}
	}
}

func retimeHistory(entries []persistence.HistoryEntry, appointmentID, start, end string) {
	for i := range entries {
		if entries[i].AppointmentID == appointmentID {
			entries[i].StartTime = start
			entries[i].EndTime = end
		}
	}
}

func removeHistory(entries []persistence.HistoryEntry, appointmentID string) []persistence.HistoryEntry {
	kept := entries[:0]
	for _, e := range entries {
		if e.AppointmentID != appointmentID {
			kept = append(kept, e)
		}
	}
	return kept
}

func participantIDs(participants []persistence.Participant) []string {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	return ids
}
