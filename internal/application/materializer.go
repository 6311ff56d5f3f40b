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

// DefaultHorizonDays is how far ahead of today sessions are materialized.
const DefaultHorizonDays = 60

// RuleStore captures the recurrence rule interactions needed across services.
type RuleStore interface {
	CreateRule(ctx context.Context, rule persistence.Rule) error
	UpdateRule(ctx context.Context, rule persistence.Rule) error
	GetRule(ctx context.Context, id string) (persistence.Rule, error)
	ListActiveRules(ctx context.Context) ([]persistence.Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// Failure records a single occurrence that could not be materialized.
type Failure struct {
	RuleID string
	Date   recurrence.Date
	Err    error
}

// Report summarizes one materialization run.
type Report struct {
	Created  int
	Skipped  int
	Failures []Failure
}

// Materializer converts active recurrence rules into concrete session and
// appointment records inside a rolling horizon. Runs are idempotent: an
// occurrence is identified by its rule id and date, so repeated runs converge
// on the same set of sessions.
type Materializer struct {
	rules        RuleStore
	sessions     SessionStore
	appointments AppointmentStore
	ledger       AttendanceLedger
	horizonDays  int
	now          func() time.Time
	logger       *slog.Logger
}

// NewMaterializer wires dependencies for occurrence materialization. A
// horizonDays of zero or less falls back to DefaultHorizonDays.
func NewMaterializer(rules RuleStore, sessions SessionStore, appointments AppointmentStore, ledger AttendanceLedger, horizonDays int, now func() time.Time, logger *slog.Logger) *Materializer {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		rules:        rules,
		sessions:     sessions,
		appointments: appointments,
		ledger:       ledger,
		horizonDays:  horizonDays,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// Materialize walks every active rule and creates the session instances
// needed to cover the caller's visible range plus the rolling horizon. The
// window never reaches into the past, even when the visible range does: the
// lower bound is clamped to today, and the upper bound is whichever of the
// visible end and today+horizon lies further out. Nil range bounds fall back
// to the horizon window. One failing occurrence does not abort the run; it is
// reported and the walk continues.
func (m *Materializer) Materialize(ctx context.Context, visibleFrom, visibleTo *recurrence.Date) (Report, error) {
	if m == nil {
		return Report{}, fmt.Errorf("Materializer is nil")
	}
	logger := serviceLogger(ctx, m.logger, "materializer", "materialize")

	today := recurrence.DateOf(m.now())
	start := today
	if visibleFrom != nil && visibleFrom.After(start) {
		start = *visibleFrom
	}
	horizon := today.AddDays(m.horizonDays)
	if visibleTo != nil && visibleTo.After(horizon) {
		horizon = *visibleTo
	}

	rules, err := m.rules.ListActiveRules(ctx)
	if err != nil {
		return Report{}, mapRepoError(err)
	}

	var report Report
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := m.materializeRule(ctx, rule, start, horizon, &report); err != nil {
			report.Failures = append(report.Failures, Failure{RuleID: rule.ID, Date: today, Err: err})
			logger.Error("rule materialization failed", "rule_id", rule.ID, "error", err)
		}
	}

	logger.Info("materialization finished", "created", report.Created, "skipped", report.Skipped, "failures", len(report.Failures))
	return report, nil
}

func (m *Materializer) materializeRule(ctx context.Context, rule persistence.Rule, from, to recurrence.Date, report *Report) error {
	occurrences, err := recurrence.Occurrences(recurrence.Rule{
		Frequency: rule.Pattern.Frequency,
		Interval:  rule.Pattern.Interval,
		Weekdays:  rule.Pattern.Weekdays,
		Anchor:    rule.StartDate,
		EndsOn:    rule.Pattern.EndDate,
	}, from, to)
	if err != nil {
		return err
	}

	// The anchor session carries the rule's own id rather than a derived
	// one, so existing instances are matched by date, not by id.
	existing, err := m.sessions.ListSessions(ctx, persistence.SessionFilter{RuleID: &rule.ID})
	if err != nil {
		return mapRepoError(err)
	}
	taken := make(map[recurrence.Date]struct{}, len(existing))
	for _, s := range existing {
		taken[s.Date] = struct{}{}
	}

	for _, date := range occurrences {
		if _, ok := taken[date]; ok {
			report.Skipped++
			continue
		}
		if err := m.materializeOccurrence(ctx, rule, date); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				report.Skipped++
				continue
			}
			report.Failures = append(report.Failures, Failure{RuleID: rule.ID, Date: date, Err: err})
			continue
		}
		report.Created++
	}
	return nil
}

// materializeOccurrence creates the session and its appointment for one date.
// The derived id makes concurrent runs collide on the same record, which is
// reported as ErrAlreadyExists and treated by the caller as convergence.
func (m *Materializer) materializeOccurrence(ctx context.Context, rule persistence.Rule, date recurrence.Date) error {
	sessionID := fmt.Sprintf("%s_%s", rule.ID, date)
	now := m.now()

	approved := append([]persistence.Participant(nil), rule.Preapproved...)
	status := lifecycle.SessionStatusFor(len(approved), rule.Capacity, hasExternalGroup(approved), false)

	session := persistence.Session{
		ID:          sessionID,
		Date:        date,
		StartTime:   rule.StartTime,
		EndTime:     rule.EndTime,
		Capacity:    rule.Capacity,
		Status:      status,
		Approved:    approved,
		ResidentIDs: append([]string(nil), rule.ResidentIDs...),
		RuleID:      &rule.ID,
		Category:    rule.Category,
		Notes:       rule.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(approved) > 0 {
		session.AppointmentID = &sessionID
	}
	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return mapRepoError(err)
	}

	// The appointment exists only when someone attends; instances without
	// pre-approved participants get theirs lazily on the first join.
	if len(approved) == 0 {
		return nil
	}

	appointment := persistence.Appointment{
		ID:           sessionID,
		SessionID:    sessionID,
		ResidentIDs:  append([]string(nil), rule.ResidentIDs...),
		Participants: append([]persistence.Participant(nil), approved...),
		Status:       lifecycle.DeriveAppointmentStatus(now, date, rule.StartTime, rule.EndTime),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.appointments.CreateAppointment(ctx, appointment); err != nil {
		// The session may outlive a failed appointment create from an
		// earlier crashed run. A duplicate here means the pair already
		// exists with its ledger entries and is fine to keep.
		if errors.Is(err, persistence.ErrDuplicate) {
			return nil
		}
		return mapRepoError(err)
	}

	// History entries ride on the appointment create above, so a rerun that
	// hits the duplicate branch never files them twice.
	if m.ledger != nil {
		for _, participant := range approved {
			if err := m.ledger.AddHistory(ctx, session, participant); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasExternalGroup(participants []persistence.Participant) bool {
	for _, p := range participants {
		if p.Kind == persistence.ParticipantExternalGroup {
			return true
		}
	}
	return false
}
