package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/example/care-scheduler/internal/persistence"
)

// ExternalGroupRepository implements persistence.ExternalGroupRepository on SQLite.
type ExternalGroupRepository struct {
	db *sqlx.DB
}

type groupRow struct {
	ID             string         `db:"id"`
	AppointmentID  sql.NullString `db:"appointment_id"`
	GroupName      string         `db:"group_name"`
	ContactPerson  string         `db:"contact_person"`
	ContactPhone   string         `db:"contact_phone"`
	PurposeOfVisit string         `db:"purpose_of_visit"`
	Size           int            `db:"size"`
	Notes          string         `db:"notes"`
	CreatedAt      string         `db:"created_at"`
}

const insertGroupQuery = `
INSERT INTO external_groups (id, appointment_id, group_name, contact_person, contact_phone, purpose_of_visit, size, notes, created_at)
VALUES (:id, :appointment_id, :group_name, :contact_person, :contact_phone, :purpose_of_visit, :size, :notes, :created_at)`

const updateGroupQuery = `
UPDATE external_groups SET appointment_id = :appointment_id, group_name = :group_name,
	contact_person = :contact_person, contact_phone = :contact_phone,
	purpose_of_visit = :purpose_of_visit, size = :size, notes = :notes
WHERE id = :id`

// CreateExternalGroup inserts a new visiting group record.
func (r *ExternalGroupRepository) CreateExternalGroup(ctx context.Context, group persistence.ExternalGroup) error {
	_, err := r.db.NamedExecContext(ctx, insertGroupQuery, groupToRow(group))
	return mapError(err)
}

// UpdateExternalGroup rewrites an existing visiting group record.
func (r *ExternalGroupRepository) UpdateExternalGroup(ctx context.Context, group persistence.ExternalGroup) error {
	result, err := r.db.NamedExecContext(ctx, updateGroupQuery, groupToRow(group))
	return ensureAffected(result, err)
}

// GetExternalGroup fetches a visiting group by id.
func (r *ExternalGroupRepository) GetExternalGroup(ctx context.Context, id string) (persistence.ExternalGroup, error) {
	var row groupRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM external_groups WHERE id = ?`, id); err != nil {
		return persistence.ExternalGroup{}, mapError(err)
	}
	return groupFromRow(row)
}

// DeleteExternalGroup removes a visiting group by id.
func (r *ExternalGroupRepository) DeleteExternalGroup(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM external_groups WHERE id = ?`, id)
	return ensureAffected(result, err)
}

func groupToRow(group persistence.ExternalGroup) groupRow {
	return groupRow{
		ID:             group.ID,
		AppointmentID:  nullString(group.AppointmentID),
		GroupName:      group.GroupName,
		ContactPerson:  group.ContactPerson,
		ContactPhone:   group.ContactPhone,
		PurposeOfVisit: group.PurposeOfVisit,
		Size:           group.Size,
		Notes:          group.Notes,
		CreatedAt:      formatTime(group.CreatedAt),
	}
}

func groupFromRow(row groupRow) (persistence.ExternalGroup, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.ExternalGroup{}, err
	}
	return persistence.ExternalGroup{
		ID:             row.ID,
		AppointmentID:  stringPtr(row.AppointmentID),
		GroupName:      row.GroupName,
		ContactPerson:  row.ContactPerson,
		ContactPhone:   row.ContactPhone,
		PurposeOfVisit: row.PurposeOfVisit,
		Size:           row.Size,
		Notes:          row.Notes,
		CreatedAt:      createdAt,
	}, nil
}
