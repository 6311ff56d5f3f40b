package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/persistence"
	"github.com/example/care-scheduler/internal/recurrence"
)

// SessionRepository implements persistence.SessionRepository on SQLite.
type SessionRepository struct {
	db *sqlx.DB
}

type sessionRow struct {
	ID            string         `db:"id"`
	Date          string         `db:"date"`
	StartTime     string         `db:"start_time"`
	EndTime       string         `db:"end_time"`
	Capacity      int            `db:"capacity"`
	Status        string         `db:"status"`
	Approved      string         `db:"approved"`
	Requests      string         `db:"requests"`
	ResidentIDs   string         `db:"resident_ids"`
	RuleID        sql.NullString `db:"rule_id"`
	Pattern       sql.NullString `db:"pattern"`
	AppointmentID sql.NullString `db:"appointment_id"`
	Category      sql.NullString `db:"category"`
	Notes         string         `db:"notes"`
	CreatedAt     string         `db:"created_at"`
	UpdatedAt     string         `db:"updated_at"`
}

const insertSessionQuery = `
INSERT INTO sessions (id, date, start_time, end_time, capacity, status, approved, requests, resident_ids, rule_id, pattern, appointment_id, category, notes, created_at, updated_at)
VALUES (:id, :date, :start_time, :end_time, :capacity, :status, :approved, :requests, :resident_ids, :rule_id, :pattern, :appointment_id, :category, :notes, :created_at, :updated_at)`

const updateSessionQuery = `
UPDATE sessions SET date = :date, start_time = :start_time, end_time = :end_time, capacity = :capacity,
	status = :status, approved = :approved, requests = :requests, resident_ids = :resident_ids,
	rule_id = :rule_id, pattern = :pattern, appointment_id = :appointment_id,
	category = :category, notes = :notes, updated_at = :updated_at
WHERE id = :id`

// CreateSession inserts a new session instance.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) error {
	row, err := sessionToRow(session)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, insertSessionQuery, row)
	return mapError(err)
}

// UpdateSession rewrites an existing session.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) error {
	row, err := sessionToRow(session)
	if err != nil {
		return err
	}
	result, err := r.db.NamedExecContext(ctx, updateSessionQuery, row)
	return ensureAffected(result, err)
}

// GetSession fetches a session by id.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	var row sessionRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM sessions WHERE id = ?`, id); err != nil {
		return persistence.Session{}, mapError(err)
	}
	return sessionFromRow(row)
}

// ListSessions returns sessions matching the filter, ordered by date.
func (r *SessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	clauses := []string{}
	args := []any{}
	if filter.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, filter.To.String())
	}
	if filter.RuleID != nil {
		clauses = append(clauses, "rule_id = ?")
		args = append(args, *filter.RuleID)
	}
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT * FROM sessions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date, start_time, id"

	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	sessions := make([]persistence.Session, 0, len(rows))
	for _, row := range rows {
		session, err := sessionFromRow(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// DeleteSession removes a session by id.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return ensureAffected(result, err)
}

func sessionToRow(session persistence.Session) (sessionRow, error) {
	approved, err := encodeJSON(session.Approved)
	if err != nil {
		return sessionRow{}, err
	}
	requests, err := encodeJSON(session.Requests)
	if err != nil {
		return sessionRow{}, err
	}
	residentIDs, err := encodeJSON(session.ResidentIDs)
	if err != nil {
		return sessionRow{}, err
	}
	pattern := sql.NullString{}
	if session.Pattern != nil {
		encoded, err := encodeJSON(session.Pattern)
		if err != nil {
			return sessionRow{}, err
		}
		pattern = sql.NullString{String: encoded, Valid: true}
	}
	return sessionRow{
		ID:            session.ID,
		Date:          session.Date.String(),
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		Capacity:      session.Capacity,
		Status:        string(session.Status),
		Approved:      approved,
		Requests:      requests,
		ResidentIDs:   residentIDs,
		RuleID:        nullString(session.RuleID),
		Pattern:       pattern,
		AppointmentID: nullString(session.AppointmentID),
		Category:      nullString(session.Category),
		Notes:         session.Notes,
		CreatedAt:     formatTime(session.CreatedAt),
		UpdatedAt:     formatTime(session.UpdatedAt),
	}, nil
}

func sessionFromRow(row sessionRow) (persistence.Session, error) {
	date, err := recurrence.ParseDate(row.Date)
	if err != nil {
		return persistence.Session{}, err
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Session{}, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return persistence.Session{}, err
	}

	session := persistence.Session{
		ID:            row.ID,
		Date:          date,
		StartTime:     row.StartTime,
		EndTime:       row.EndTime,
		Capacity:      row.Capacity,
		Status:        lifecycle.SessionStatus(row.Status),
		RuleID:        stringPtr(row.RuleID),
		AppointmentID: stringPtr(row.AppointmentID),
		Category:      stringPtr(row.Category),
		Notes:         row.Notes,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
	if err := decodeJSON(row.Approved, &session.Approved); err != nil {
		return persistence.Session{}, err
	}
	if err := decodeJSON(row.Requests, &session.Requests); err != nil {
		return persistence.Session{}, err
	}
	if err := decodeJSON(row.ResidentIDs, &session.ResidentIDs); err != nil {
		return persistence.Session{}, err
	}
	if row.Pattern.Valid && row.Pattern.String != "" {
		var pattern persistence.Pattern
		if err := decodeJSON(row.Pattern.String, &pattern); err != nil {
			return persistence.Session{}, err
		}
		session.Pattern = &pattern
	}
	return session, nil
}
