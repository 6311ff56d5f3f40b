// Package sqlite provides the SQLite implementations of the persistence
// repositories. All collection-valued fields are stored as JSON text columns
// and timestamps as RFC3339 strings.
package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	id            TEXT PRIMARY KEY,
	active        INTEGER NOT NULL DEFAULT 1,
	start_date    TEXT NOT NULL,
	start_time    TEXT NOT NULL,
	end_time      TEXT NOT NULL,
	frequency     TEXT NOT NULL,
	interval      INTEGER NOT NULL DEFAULT 1,
	weekdays      TEXT NOT NULL DEFAULT '[]',
	end_date      TEXT,
	capacity      INTEGER NOT NULL,
	resident_ids  TEXT NOT NULL DEFAULT '[]',
	preapproved   TEXT NOT NULL DEFAULT '[]',
	category      TEXT,
	notes         TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	date           TEXT NOT NULL,
	start_time     TEXT NOT NULL,
	end_time       TEXT NOT NULL,
	capacity       INTEGER NOT NULL,
	status         TEXT NOT NULL,
	approved       TEXT NOT NULL DEFAULT '[]',
	requests       TEXT NOT NULL DEFAULT '[]',
	resident_ids   TEXT NOT NULL DEFAULT '[]',
	rule_id        TEXT,
	pattern        TEXT,
	appointment_id TEXT,
	category       TEXT,
	notes          TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	UNIQUE (rule_id, date)
);
CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions (date);
CREATE INDEX IF NOT EXISTS idx_sessions_rule ON sessions (rule_id);

CREATE TABLE IF NOT EXISTS appointments (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	resident_ids TEXT NOT NULL DEFAULT '[]',
	participants TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id               TEXT PRIMARY KEY,
	appointment_id   TEXT,
	participant_id   TEXT NOT NULL,
	participant_kind TEXT NOT NULL,
	status           TEXT NOT NULL,
	confirmed_by     TEXT NOT NULL DEFAULT '',
	confirmed_at     TEXT NOT NULL,
	date             TEXT,
	visit_started    TEXT,
	visit_ended      TEXT,
	notes            TEXT NOT NULL DEFAULT '',
	UNIQUE (appointment_id, participant_id)
);
CREATE INDEX IF NOT EXISTS idx_attendance_participant ON attendance_records (participant_id);

CREATE TABLE IF NOT EXISTS volunteers (
	id                TEXT PRIMARY KEY,
	full_name         TEXT NOT NULL,
	group_affiliation TEXT,
	tally             TEXT NOT NULL DEFAULT '{}',
	total_sessions    INTEGER NOT NULL DEFAULT 0,
	total_hours       REAL NOT NULL DEFAULT 0,
	history           TEXT NOT NULL DEFAULT '[]',
	active            INTEGER NOT NULL DEFAULT 1,
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS residents (
	id             TEXT PRIMARY KEY,
	full_name      TEXT NOT NULL,
	total_sessions INTEGER NOT NULL DEFAULT 0,
	total_hours    REAL NOT NULL DEFAULT 0,
	history        TEXT NOT NULL DEFAULT '[]',
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS external_groups (
	id               TEXT PRIMARY KEY,
	appointment_id   TEXT,
	group_name       TEXT NOT NULL,
	contact_person   TEXT NOT NULL DEFAULT '',
	contact_phone    TEXT NOT NULL DEFAULT '',
	purpose_of_visit TEXT NOT NULL DEFAULT '',
	size             INTEGER NOT NULL,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);
`

// Store owns the SQLite connection and hands out repositories bound to it.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at dsn and bootstraps the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one open connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Rules returns the rule repository.
func (s *Store) Rules() *RuleRepository { return &RuleRepository{db: s.db} }

// Sessions returns the session repository.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{db: s.db} }

// Appointments returns the appointment repository.
func (s *Store) Appointments() *AppointmentRepository { return &AppointmentRepository{db: s.db} }

// Attendance returns the attendance record repository.
func (s *Store) Attendance() *AttendanceRepository { return &AttendanceRepository{db: s.db} }

// Volunteers returns the volunteer repository.
func (s *Store) Volunteers() *VolunteerRepository { return &VolunteerRepository{db: s.db} }

// Residents returns the resident repository.
func (s *Store) Residents() *ResidentRepository { return &ResidentRepository{db: s.db} }

// ExternalGroups returns the visiting group repository.
func (s *Store) ExternalGroups() *ExternalGroupRepository { return &ExternalGroupRepository{db: s.db} }
