package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/persistence"
)

// AppointmentRepository implements persistence.AppointmentRepository on SQLite.
type AppointmentRepository struct {
	db *sqlx.DB
}

type appointmentRow struct {
	ID           string `db:"id"`
	SessionID    string `db:"session_id"`
	ResidentIDs  string `db:"resident_ids"`
	Participants string `db:"participants"`
	Status       string `db:"status"`
	Notes        string `db:"notes"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

const insertAppointmentQuery = `
INSERT INTO appointments (id, session_id, resident_ids, participants, status, notes, created_at, updated_at)
VALUES (:id, :session_id, :resident_ids, :participants, :status, :notes, :created_at, :updated_at)`

const updateAppointmentQuery = `
UPDATE appointments SET session_id = :session_id, resident_ids = :resident_ids,
	participants = :participants, status = :status, notes = :notes, updated_at = :updated_at
WHERE id = :id`

// CreateAppointment inserts a new appointment.
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appointment persistence.Appointment) error {
	row, err := appointmentToRow(appointment)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, insertAppointmentQuery, row)
	return mapError(err)
}

// UpdateAppointment rewrites an existing appointment.
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, appointment persistence.Appointment) error {
	row, err := appointmentToRow(appointment)
	if err != nil {
		return err
	}
	result, err := r.db.NamedExecContext(ctx, updateAppointmentQuery, row)
	return ensureAffected(result, err)
}

// GetAppointment fetches an appointment by id.
func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	var row appointmentRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM appointments WHERE id = ?`, id); err != nil {
		return persistence.Appointment{}, mapError(err)
	}
	return appointmentFromRow(row)
}

// DeleteAppointment removes an appointment by id.
func (r *AppointmentRepository) DeleteAppointment(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	return ensureAffected(result, err)
}

func appointmentToRow(appointment persistence.Appointment) (appointmentRow, error) {
	residentIDs, err := encodeJSON(appointment.ResidentIDs)
	if err != nil {
		return appointmentRow{}, err
	}
	participants, err := encodeJSON(appointment.Participants)
	if err != nil {
		return appointmentRow{}, err
	}
	return appointmentRow{
		ID:           appointment.ID,
		SessionID:    appointment.SessionID,
		ResidentIDs:  residentIDs,
		Participants: participants,
		Status:       string(appointment.Status),
		Notes:        appointment.Notes,
		CreatedAt:    formatTime(appointment.CreatedAt),
		UpdatedAt:    formatTime(appointment.UpdatedAt),
	}, nil
}

func appointmentFromRow(row appointmentRow) (persistence.Appointment, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Appointment{}, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return persistence.Appointment{}, err
	}
	appointment := persistence.Appointment{
		ID:        row.ID,
		SessionID: row.SessionID,
		Status:    lifecycle.AppointmentStatus(row.Status),
		Notes:     row.Notes,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if err := decodeJSON(row.ResidentIDs, &appointment.ResidentIDs); err != nil {
		return persistence.Appointment{}, err
	}
	if err := decodeJSON(row.Participants, &appointment.Participants); err != nil {
		return persistence.Appointment{}, err
	}
	return appointment, nil
}
