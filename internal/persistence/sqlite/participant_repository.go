package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/example/care-scheduler/internal/persistence"
)

// VolunteerRepository implements persistence.VolunteerRepository on SQLite.
type VolunteerRepository struct {
	db *sqlx.DB
}

type volunteerRow struct {
	ID               string         `db:"id"`
	FullName         string         `db:"full_name"`
	GroupAffiliation sql.NullString `db:"group_affiliation"`
	Tally            string         `db:"tally"`
	TotalSessions    int            `db:"total_sessions"`
	TotalHours       float64        `db:"total_hours"`
	History          string         `db:"history"`
	Active           bool           `db:"active"`
	CreatedAt        string         `db:"created_at"`
}

const insertVolunteerQuery = `
INSERT INTO volunteers (id, full_name, group_affiliation, tally, total_sessions, total_hours, history, active, created_at)
VALUES (:id, :full_name, :group_affiliation, :tally, :total_sessions, :total_hours, :history, :active, :created_at)`

const updateVolunteerQuery = `
UPDATE volunteers SET full_name = :full_name, group_affiliation = :group_affiliation, tally = :tally,
	total_sessions = :total_sessions, total_hours = :total_hours, history = :history, active = :active
WHERE id = :id`

// CreateVolunteer inserts a new volunteer account.
func (r *VolunteerRepository) CreateVolunteer(ctx context.Context, volunteer persistence.Volunteer) error {
	row, err := volunteerToRow(volunteer)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, insertVolunteerQuery, row)
	return mapError(err)
}

// UpdateVolunteer rewrites an existing volunteer account.
func (r *VolunteerRepository) UpdateVolunteer(ctx context.Context, volunteer persistence.Volunteer) error {
	row, err := volunteerToRow(volunteer)
	if err != nil {
		return err
	}
	result, err := r.db.NamedExecContext(ctx, updateVolunteerQuery, row)
	return ensureAffected(result, err)
}

// GetVolunteer fetches a volunteer by id.
func (r *VolunteerRepository) GetVolunteer(ctx context.Context, id string) (persistence.Volunteer, error) {
	var row volunteerRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM volunteers WHERE id = ?`, id); err != nil {
		return persistence.Volunteer{}, mapError(err)
	}
	return volunteerFromRow(row)
}

// ListVolunteers returns every volunteer ordered by name.
func (r *VolunteerRepository) ListVolunteers(ctx context.Context) ([]persistence.Volunteer, error) {
	var rows []volunteerRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM volunteers ORDER BY full_name, id`); err != nil {
		return nil, mapError(err)
	}
	volunteers := make([]persistence.Volunteer, 0, len(rows))
	for _, row := range rows {
		volunteer, err := volunteerFromRow(row)
		if err != nil {
			return nil, err
		}
		volunteers = append(volunteers, volunteer)
	}
	return volunteers, nil
}

func volunteerToRow(volunteer persistence.Volunteer) (volunteerRow, error) {
	tally, err := encodeJSON(volunteer.Tally)
	if err != nil {
		return volunteerRow{}, err
	}
	history, err := encodeJSON(volunteer.History)
	if err != nil {
		return volunteerRow{}, err
	}
	return volunteerRow{
		ID:               volunteer.ID,
		FullName:         volunteer.FullName,
		GroupAffiliation: nullString(volunteer.GroupAffiliation),
		Tally:            tally,
		TotalSessions:    volunteer.TotalSessions,
		TotalHours:       volunteer.TotalHours,
		History:          history,
		Active:           volunteer.Active,
		CreatedAt:        formatTime(volunteer.CreatedAt),
	}, nil
}

func volunteerFromRow(row volunteerRow) (persistence.Volunteer, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Volunteer{}, err
	}
	volunteer := persistence.Volunteer{
		ID:               row.ID,
		FullName:         row.FullName,
		GroupAffiliation: stringPtr(row.GroupAffiliation),
		TotalSessions:    row.TotalSessions,
		TotalHours:       row.TotalHours,
		Active:           row.Active,
		CreatedAt:        createdAt,
	}
	if err := decodeJSON(row.Tally, &volunteer.Tally); err != nil {
		return persistence.Volunteer{}, err
	}
	if err := decodeJSON(row.History, &volunteer.History); err != nil {
		return persistence.Volunteer{}, err
	}
	return volunteer, nil
}

// ResidentRepository implements persistence.ResidentRepository on SQLite.
type ResidentRepository struct {
	db *sqlx.DB
}

type residentRow struct {
	ID            string  `db:"id"`
	FullName      string  `db:"full_name"`
	TotalSessions int     `db:"total_sessions"`
	TotalHours    float64 `db:"total_hours"`
	History       string  `db:"history"`
	Active        bool    `db:"active"`
	CreatedAt     string  `db:"created_at"`
}

const insertResidentQuery = `
INSERT INTO residents (id, full_name, total_sessions, total_hours, history, active, created_at)
VALUES (:id, :full_name, :total_sessions, :total_hours, :history, :active, :created_at)`

const updateResidentQuery = `
UPDATE residents SET full_name = :full_name, total_sessions = :total_sessions,
	total_hours = :total_hours, history = :history, active = :active
WHERE id = :id`

// CreateResident inserts a new resident record.
func (r *ResidentRepository) CreateResident(ctx context.Context, resident persistence.Resident) error {
	row, err := residentToRow(resident)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, insertResidentQuery, row)
	return mapError(err)
}

// UpdateResident rewrites an existing resident record.
func (r *ResidentRepository) UpdateResident(ctx context.Context, resident persistence.Resident) error {
	row, err := residentToRow(resident)
	if err != nil {
		return err
	}
	result, err := r.db.NamedExecContext(ctx, updateResidentQuery, row)
	return ensureAffected(result, err)
}

// GetResident fetches a resident by id.
func (r *ResidentRepository) GetResident(ctx context.Context, id string) (persistence.Resident, error) {
	var row residentRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM residents WHERE id = ?`, id); err != nil {
		return persistence.Resident{}, mapError(err)
	}
	return residentFromRow(row)
}

// ListResidents returns every resident ordered by name.
func (r *ResidentRepository) ListResidents(ctx context.Context) ([]persistence.Resident, error) {
	var rows []residentRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM residents ORDER BY full_name, id`); err != nil {
		return nil, mapError(err)
	}
	residents := make([]persistence.Resident, 0, len(rows))
	for _, row := range rows {
		resident, err := residentFromRow(row)
		if err != nil {
			return nil, err
		}
		residents = append(residents, resident)
	}
	return residents, nil
}

func residentToRow(resident persistence.Resident) (residentRow, error) {
	history, err := encodeJSON(resident.History)
	if err != nil {
		return residentRow{}, err
	}
	return residentRow{
		ID:            resident.ID,
		FullName:      resident.FullName,
		TotalSessions: resident.TotalSessions,
		TotalHours:    resident.TotalHours,
		History:       history,
		Active:        resident.Active,
		CreatedAt:     formatTime(resident.CreatedAt),
	}, nil
}

func residentFromRow(row residentRow) (persistence.Resident, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Resident{}, err
	}
	resident := persistence.Resident{
		ID:            row.ID,
		FullName:      row.FullName,
		TotalSessions: row.TotalSessions,
		TotalHours:    row.TotalHours,
		Active:        row.Active,
		CreatedAt:     createdAt,
	}
	if err := decodeJSON(row.History, &resident.History); err != nil {
		return persistence.Resident{}, err
	}
	return resident, nil
}
