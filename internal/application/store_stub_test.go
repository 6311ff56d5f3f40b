package application

import (
	"context"
	"sort"

	"github.com/example/care-scheduler/internal/persistence"
)

// memoryStore backs every store interface with maps so service tests can
// observe the exact records a flow leaves behind. It mirrors the repository
// error contract: missing records return persistence.ErrNotFound and
// conflicting creates return persistence.ErrDuplicate.
type memoryStore struct {
	rules        map[string]persistence.Rule
	sessions     map[string]persistence.Session
	appointments map[string]persistence.Appointment
	attendance   map[string]persistence.AttendanceRecord
	volunteers   map[string]persistence.Volunteer
	residents    map[string]persistence.Resident
	groups       map[string]persistence.ExternalGroup
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		rules:        make(map[string]persistence.Rule),
		sessions:     make(map[string]persistence.Session),
		appointments: make(map[string]persistence.Appointment),
		attendance:   make(map[string]persistence.AttendanceRecord),
		volunteers:   make(map[string]persistence.Volunteer),
		residents:    make(map[string]persistence.Resident),
		groups:       make(map[string]persistence.ExternalGroup),
	}
}

func (m *memoryStore) CreateRule(_ context.Context, rule persistence.Rule) error {
	if _, ok := m.rules[rule.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *memoryStore) UpdateRule(_ context.Context, rule persistence.Rule) error {
	if _, ok := m.rules[rule.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *memoryStore) GetRule(_ context.Context, id string) (persistence.Rule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return persistence.Rule{}, persistence.ErrNotFound
	}
	return rule, nil
}

func (m *memoryStore) ListActiveRules(_ context.Context) ([]persistence.Rule, error) {
	rules := make([]persistence.Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		if rule.Active {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (m *memoryStore) DeleteRule(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memoryStore) CreateSession(_ context.Context, session persistence.Session) error {
	if _, ok := m.sessions[session.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range m.sessions {
		if existing.RuleID != nil && session.RuleID != nil &&
			*existing.RuleID == *session.RuleID && existing.Date == session.Date {
			return persistence.ErrDuplicate
		}
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memoryStore) UpdateSession(_ context.Context, session persistence.Session) error {
	if _, ok := m.sessions[session.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memoryStore) GetSession(_ context.Context, id string) (persistence.Session, error) {
	session, ok := m.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (m *memoryStore) ListSessions(_ context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	sessions := make([]persistence.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if filter.From != nil && session.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && session.Date.After(*filter.To) {
			continue
		}
		if filter.RuleID != nil && (session.RuleID == nil || *session.RuleID != *filter.RuleID) {
			continue
		}
		if filter.Status != nil && session.Status != *filter.Status {
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Date != sessions[j].Date {
			return sessions[i].Date.Before(sessions[j].Date)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

func (m *memoryStore) DeleteSession(_ context.Context, id string) error {
	if _, ok := m.sessions[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memoryStore) CreateAppointment(_ context.Context, appointment persistence.Appointment) error {
	if _, ok := m.appointments[appointment.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.appointments[appointment.ID] = appointment
	return nil
}

func (m *memoryStore) UpdateAppointment(_ context.Context, appointment persistence.Appointment) error {
	if _, ok := m.appointments[appointment.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.appointments[appointment.ID] = appointment
	return nil
}

func (m *memoryStore) GetAppointment(_ context.Context, id string) (persistence.Appointment, error) {
	appointment, ok := m.appointments[id]
	if !ok {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	return appointment, nil
}

func (m *memoryStore) DeleteAppointment(_ context.Context, id string) error {
	if _, ok := m.appointments[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.appointments, id)
	return nil
}

func (m *memoryStore) CreateAttendance(_ context.Context, record persistence.AttendanceRecord) error {
	if _, ok := m.attendance[record.ID]; ok {
		return persistence.ErrDuplicate
	}
	if record.AppointmentID != nil {
		for _, existing := range m.attendance {
			if existing.AppointmentID != nil && *existing.AppointmentID == *record.AppointmentID &&
				existing.Participant.ID == record.Participant.ID {
				return persistence.ErrDuplicate
			}
		}
	}
	m.attendance[record.ID] = record
	return nil
}

func (m *memoryStore) UpdateAttendance(_ context.Context, record persistence.AttendanceRecord) error {
	if _, ok := m.attendance[record.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.attendance[record.ID] = record
	return nil
}

func (m *memoryStore) GetAttendance(_ context.Context, id string) (persistence.AttendanceRecord, error) {
	record, ok := m.attendance[id]
	if !ok {
		return persistence.AttendanceRecord{}, persistence.ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) FindForAppointment(_ context.Context, appointmentID, participantID string) (persistence.AttendanceRecord, error) {
	for _, record := range m.attendance {
		if record.AppointmentID != nil && *record.AppointmentID == appointmentID &&
			record.Participant.ID == participantID {
			return record, nil
		}
	}
	return persistence.AttendanceRecord{}, persistence.ErrNotFound
}

func (m *memoryStore) ListForAppointment(_ context.Context, appointmentID string) ([]persistence.AttendanceRecord, error) {
	var records []persistence.AttendanceRecord
	for _, record := range m.attendance {
		if record.AppointmentID != nil && *record.AppointmentID == appointmentID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *memoryStore) ListForParticipant(_ context.Context, participantID string) ([]persistence.AttendanceRecord, error) {
	var records []persistence.AttendanceRecord
	for _, record := range m.attendance {
		if record.Participant.ID == participantID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *memoryStore) DeleteAttendance(_ context.Context, id string) error {
	if _, ok := m.attendance[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.attendance, id)
	return nil
}

func (m *memoryStore) CreateVolunteer(_ context.Context, volunteer persistence.Volunteer) error {
	if _, ok := m.volunteers[volunteer.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.volunteers[volunteer.ID] = volunteer
	return nil
}

func (m *memoryStore) UpdateVolunteer(_ context.Context, volunteer persistence.Volunteer) error {
	if _, ok := m.volunteers[volunteer.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.volunteers[volunteer.ID] = volunteer
	return nil
}

func (m *memoryStore) GetVolunteer(_ context.Context, id string) (persistence.Volunteer, error) {
	volunteer, ok := m.volunteers[id]
	if !ok {
		return persistence.Volunteer{}, persistence.ErrNotFound
	}
	return volunteer, nil
}

func (m *memoryStore) ListVolunteers(_ context.Context) ([]persistence.Volunteer, error) {
	volunteers := make([]persistence.Volunteer, 0, len(m.volunteers))
	for _, volunteer := range m.volunteers {
		volunteers = append(volunteers, volunteer)
	}
	sort.Slice(volunteers, func(i, j int) bool { return volunteers[i].ID < volunteers[j].ID })
	return volunteers, nil
}

func (m *memoryStore) CreateResident(_ context.Context, resident persistence.Resident) error {
	if _, ok := m.residents[resident.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.residents[resident.ID] = resident
	return nil
}

func (m *memoryStore) UpdateResident(_ context.Context, resident persistence.Resident) error {
	if _, ok := m.residents[resident.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.residents[resident.ID] = resident
	return nil
}

func (m *memoryStore) GetResident(_ context.Context, id string) (persistence.Resident, error) {
	resident, ok := m.residents[id]
	if !ok {
		return persistence.Resident{}, persistence.ErrNotFound
	}
	return resident, nil
}

func (m *memoryStore) ListResidents(_ context.Context) ([]persistence.Resident, error) {
	residents := make([]persistence.Resident, 0, len(m.residents))
	for _, resident := range m.residents {
		residents = append(residents, resident)
	}
	sort.Slice(residents, func(i, j int) bool { return residents[i].ID < residents[j].ID })
	return residents, nil
}

func (m *memoryStore) CreateExternalGroup(_ context.Context, group persistence.ExternalGroup) error {
	if _, ok := m.groups[group.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.groups[group.ID] = group
	return nil
}

func (m *memoryStore) UpdateExternalGroup(_ context.Context, group persistence.ExternalGroup) error {
	if _, ok := m.groups[group.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.groups[group.ID] = group
	return nil
}

func (m *memoryStore) GetExternalGroup(_ context.Context, id string) (persistence.ExternalGroup, error) {
	group, ok := m.groups[id]
	if !ok {
		return persistence.ExternalGroup{}, persistence.ErrNotFound
	}
	return group, nil
}

func (m *memoryStore) DeleteExternalGroup(_ context.Context, id string) error {
	if _, ok := m.groups[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.groups, id)
	return nil
}
