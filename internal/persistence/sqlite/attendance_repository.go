package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/example/care-scheduler/internal/persistence"
)

// AttendanceRepository implements persistence.AttendanceRepository on SQLite.
// The (appointment_id, participant_id) unique index is what makes concurrent
// duplicate confirmations collapse into ErrDuplicate.
type AttendanceRepository struct {
	db *sqlx.DB
}

type attendanceRow struct {
	ID              string         `db:"id"`
	AppointmentID   sql.NullString `db:"appointment_id"`
	ParticipantID   string         `db:"participant_id"`
	ParticipantKind string         `db:"participant_kind"`
	Status          string         `db:"status"`
	ConfirmedBy     string         `db:"confirmed_by"`
	ConfirmedAt     string         `db:"confirmed_at"`
	Date            sql.NullString `db:"date"`
	VisitStarted    sql.NullString `db:"visit_started"`
	VisitEnded      sql.NullString `db:"visit_ended"`
	Notes           string         `db:"notes"`
}

const insertAttendanceQuery = `
INSERT INTO attendance_records (id, appointment_id, participant_id, participant_kind, status, confirmed_by, confirmed_at, date, visit_started, visit_ended, notes)
VALUES (:id, :appointment_id, :participant_id, :participant_kind, :status, :confirmed_by, :confirmed_at, :date, :visit_started, :visit_ended, :notes)`

const updateAttendanceQuery = `
UPDATE attendance_records SET appointment_id = :appointment_id, participant_id = :participant_id,
	participant_kind = :participant_kind, status = :status, confirmed_by = :confirmed_by,
	confirmed_at = :confirmed_at, date = :date, visit_started = :visit_started,
	visit_ended = :visit_ended, notes = :notes
WHERE id = :id`

// CreateAttendance inserts a new attendance record.
func (r *AttendanceRepository) CreateAttendance(ctx context.Context, record persistence.AttendanceRecord) error {
	_, err := r.db.NamedExecContext(ctx, insertAttendanceQuery, attendanceToRow(record))
	return mapError(err)
}

// UpdateAttendance rewrites an existing attendance record.
func (r *AttendanceRepository) UpdateAttendance(ctx context.Context, record persistence.AttendanceRecord) error {
	result, err := r.db.NamedExecContext(ctx, updateAttendanceQuery, attendanceToRow(record))
	return ensureAffected(result, err)
}

// GetAttendance fetches a record by id.
func (r *AttendanceRepository) GetAttendance(ctx context.Context, id string) (persistence.AttendanceRecord, error) {
	var row attendanceRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM attendance_records WHERE id = ?`, id); err != nil {
		return persistence.AttendanceRecord{}, mapError(err)
	}
	return attendanceFromRow(row)
}

// FindForAppointment returns the record tying a participant to an appointment.
func (r *AttendanceRepository) FindForAppointment(ctx context.Context, appointmentID, participantID string) (persistence.AttendanceRecord, error) {
	var row attendanceRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM attendance_records WHERE appointment_id = ? AND participant_id = ?`, appointmentID, participantID)
	if err != nil {
		return persistence.AttendanceRecord{}, mapError(err)
	}
	return attendanceFromRow(row)
}

// ListForAppointment returns every record for an appointment.
func (r *AttendanceRepository) ListForAppointment(ctx context.Context, appointmentID string) ([]persistence.AttendanceRecord, error) {
	var rows []attendanceRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM attendance_records WHERE appointment_id = ? ORDER BY id`, appointmentID); err != nil {
		return nil, mapError(err)
	}
	return attendanceFromRows(rows)
}

// ListForParticipant returns every record for a participant, visits included.
func (r *AttendanceRepository) ListForParticipant(ctx context.Context, participantID string) ([]persistence.AttendanceRecord, error) {
	var rows []attendanceRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM attendance_records WHERE participant_id = ? ORDER BY confirmed_at, id`, participantID); err != nil {
		return nil, mapError(err)
	}
	return attendanceFromRows(rows)
}

// DeleteAttendance removes a record by id.
func (r *AttendanceRepository) DeleteAttendance(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = ?`, id)
	return ensureAffected(result, err)
}

func attendanceToRow(record persistence.AttendanceRecord) attendanceRow {
	return attendanceRow{
		ID:              record.ID,
		AppointmentID:   nullString(record.AppointmentID),
		ParticipantID:   record.Participant.ID,
		ParticipantKind: string(record.Participant.Kind),
		Status:          string(record.Status),
		ConfirmedBy:     record.ConfirmedBy,
		ConfirmedAt:     formatTime(record.ConfirmedAt),
		Date:            nullDate(record.Date),
		VisitStarted:    nullTime(record.VisitStarted),
		VisitEnded:      nullTime(record.VisitEnded),
		Notes:           record.Notes,
	}
}

func attendanceFromRow(row attendanceRow) (persistence.AttendanceRecord, error) {
	confirmedAt, err := parseTime(row.ConfirmedAt)
	if err != nil {
		return persistence.AttendanceRecord{}, err
	}
	date, err := datePtr(row.Date)
	if err != nil {
		return persistence.AttendanceRecord{}, err
	}
	visitStarted, err := timePtr(row.VisitStarted)
	if err != nil {
		return persistence.AttendanceRecord{}, err
	}
	visitEnded, err := timePtr(row.VisitEnded)
	if err != nil {
		return persistence.AttendanceRecord{}, err
	}
	return persistence.AttendanceRecord{
		ID:            row.ID,
		AppointmentID: stringPtr(row.AppointmentID),
		Participant: persistence.Participant{
			ID:   row.ParticipantID,
			Kind: persistence.ParticipantKind(row.ParticipantKind),
		},
		Status:       persistence.AttendanceStatus(row.Status),
		ConfirmedBy:  row.ConfirmedBy,
		ConfirmedAt:  confirmedAt,
		Date:         date,
		VisitStarted: visitStarted,
		VisitEnded:   visitEnded,
		Notes:        row.Notes,
	}, nil
}

func attendanceFromRows(rows []attendanceRow) ([]persistence.AttendanceRecord, error) {
	records := make([]persistence.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		record, err := attendanceFromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
