package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/example/care-scheduler/internal/persistence"
	"github.com/example/care-scheduler/internal/recurrence"
)

// RuleRepository implements persistence.RuleRepository on SQLite.
type RuleRepository struct {
	db *sqlx.DB
}

type ruleRow struct {
	ID          string         `db:"id"`
	Active      bool           `db:"active"`
	StartDate   string         `db:"start_date"`
	StartTime   string         `db:"start_time"`
	EndTime     string         `db:"end_time"`
	Frequency   string         `db:"frequency"`
	Interval    int            `db:"interval"`
	Weekdays    string         `db:"weekdays"`
	EndDate     sql.NullString `db:"end_date"`
	Capacity    int            `db:"capacity"`
	ResidentIDs string         `db:"resident_ids"`
	Preapproved string         `db:"preapproved"`
	Category    sql.NullString `db:"category"`
	Notes       string         `db:"notes"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

const insertRuleQuery = `
INSERT INTO rules (id, active, start_date, start_time, end_time, frequency, interval, weekdays, end_date, capacity, resident_ids, preapproved, category, notes, created_at, updated_at)
VALUES (:id, :active, :start_date, :start_time, :end_time, :frequency, :interval, :weekdays, :end_date, :capacity, :resident_ids, :preapproved, :category, :notes, :created_at, :updated_at)`

const updateRuleQuery = `
UPDATE rules SET active = :active, start_date = :start_date, start_time = :start_time, end_time = :end_time,
	frequency = :frequency, interval = :interval, weekdays = :weekdays, end_date = :end_date,
	capacity = :capacity, resident_ids = :resident_ids, preapproved = :preapproved,
	category = :category, notes = :notes, updated_at = :updated_at
WHERE id = :id`

// CreateRule inserts a new recurrence rule.
func (r *RuleRepository) CreateRule(ctx context.Context, rule persistence.Rule) error {
	row, err := ruleToRow(rule)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, insertRuleQuery, row)
	return mapError(err)
}

// UpdateRule rewrites an existing rule.
func (r *RuleRepository) UpdateRule(ctx context.Context, rule persistence.Rule) error {
	row, err := ruleToRow(rule)
	if err != nil {
		return err
	}
	result, err := r.db.NamedExecContext(ctx, updateRuleQuery, row)
	return ensureAffected(result, err)
}

// GetRule fetches a rule by id.
func (r *RuleRepository) GetRule(ctx context.Context, id string) (persistence.Rule, error) {
	var row ruleRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM rules WHERE id = ?`, id); err != nil {
		return persistence.Rule{}, mapError(err)
	}
	return ruleFromRow(row)
}

// ListActiveRules returns every rule still eligible for materialization.
func (r *RuleRepository) ListActiveRules(ctx context.Context) ([]persistence.Rule, error) {
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM rules WHERE active = 1 ORDER BY id`); err != nil {
		return nil, mapError(err)
	}
	rules := make([]persistence.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := ruleFromRow(row)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// DeleteRule removes a rule by id.
func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	return ensureAffected(result, err)
}

func ruleToRow(rule persistence.Rule) (ruleRow, error) {
	weekdays, err := encodeJSON(rule.Pattern.Weekdays)
	if err != nil {
		return ruleRow{}, err
	}
	residentIDs, err := encodeJSON(rule.ResidentIDs)
	if err != nil {
		return ruleRow{}, err
	}
	preapproved, err := encodeJSON(rule.Preapproved)
	if err != nil {
		return ruleRow{}, err
	}
	return ruleRow{
		ID:          rule.ID,
		Active:      rule.Active,
		StartDate:   rule.StartDate.String(),
		StartTime:   rule.StartTime,
		EndTime:     rule.EndTime,
		Frequency:   string(rule.Pattern.Frequency),
		Interval:    rule.Pattern.Interval,
		Weekdays:    weekdays,
		EndDate:     nullDate(rule.Pattern.EndDate),
		Capacity:    rule.Capacity,
		ResidentIDs: residentIDs,
		Preapproved: preapproved,
		Category:    nullString(rule.Category),
		Notes:       rule.Notes,
		CreatedAt:   formatTime(rule.CreatedAt),
		UpdatedAt:   formatTime(rule.UpdatedAt),
	}, nil
}

func ruleFromRow(row ruleRow) (persistence.Rule, error) {
	startDate, err := recurrence.ParseDate(row.StartDate)
	if err != nil {
		return persistence.Rule{}, err
	}
	endDate, err := datePtr(row.EndDate)
	if err != nil {
		return persistence.Rule{}, err
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Rule{}, err
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return persistence.Rule{}, err
	}

	rule := persistence.Rule{
		ID:        row.ID,
		Active:    row.Active,
		StartDate: startDate,
		StartTime: row.StartTime,
		EndTime:   row.EndTime,
		Pattern: persistence.Pattern{
			Frequency: recurrence.Frequency(row.Frequency),
			Interval:  row.Interval,
			EndDate:   endDate,
		},
		Capacity:  row.Capacity,
		Category:  stringPtr(row.Category),
		Notes:     row.Notes,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if err := decodeJSON(row.Weekdays, &rule.Pattern.Weekdays); err != nil {
		return persistence.Rule{}, err
	}
	if err := decodeJSON(row.ResidentIDs, &rule.ResidentIDs); err != nil {
		return persistence.Rule{}, err
	}
	if err := decodeJSON(row.Preapproved, &rule.Preapproved); err != nil {
		return persistence.Rule{}, err
	}
	return rule, nil
}
