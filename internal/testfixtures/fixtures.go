// Package testfixtures provides deterministic builders for tests: a
// controllable clock, a sequential id generator, and record fixtures with
// functional overrides.
package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/persistence"
	"github.com/example/care-scheduler/internal/recurrence"
)

var (
	volunteerCounter uint64
	residentCounter  uint64
	sessionCounter   uint64
	ruleCounter      uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, recurrence.Location())

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// VolunteerOption configures a generated volunteer fixture.
type VolunteerOption func(*persistence.Volunteer)

// NewVolunteerFixture returns a deterministic volunteer with optional overrides.
func NewVolunteerFixture(opts ...VolunteerOption) persistence.Volunteer {
	idx := atomic.AddUint64(&volunteerCounter, 1)
	volunteer := persistence.Volunteer{
		ID:        fmt.Sprintf("volunteer-%03d", idx),
		FullName:  fmt.Sprintf("Volunteer %03d", idx),
		Active:    true,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&volunteer)
	}
	return volunteer
}

// WithVolunteerID overrides the generated volunteer id.
func WithVolunteerID(id string) VolunteerOption {
	return func(v *persistence.Volunteer) {
		v.ID = id
	}
}

// ResidentOption configures a generated resident fixture.
type ResidentOption func(*persistence.Resident)

// NewResidentFixture returns a deterministic resident with optional overrides.
func NewResidentFixture(opts ...ResidentOption) persistence.Resident {
	idx := atomic.AddUint64(&residentCounter, 1)
	resident := persistence.Resident{
		ID:        fmt.Sprintf("resident-%03d", idx),
		FullName:  fmt.Sprintf("Resident %03d", idx),
		Active:    true,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&resident)
	}
	return resident
}

// WithResidentID overrides the generated resident id.
func WithResidentID(id string) ResidentOption {
	return func(r *persistence.Resident) {
		r.ID = id
	}
}

// SessionOption configures a generated session fixture.
type SessionOption func(*persistence.Session)

// NewSessionFixture returns a deterministic open session one week after the
// reference time, with its appointment id already derived.
func NewSessionFixture(opts ...SessionOption) persistence.Session {
	idx := atomic.AddUint64(&sessionCounter, 1)
	id := fmt.Sprintf("session-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	session := persistence.Session{
		ID:            id,
		Date:          recurrence.DateOf(referenceTime).AddDays(7),
		StartTime:     "10:00",
		EndTime:       "12:00",
		Capacity:      5,
		Status:        lifecycle.SessionOpen,
		AppointmentID: &id,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	for _, opt := range opts {
		opt(&session)
	}
	return session
}

// WithSessionID overrides the generated session id and its appointment id.
func WithSessionID(id string) SessionOption {
	return func(s *persistence.Session) {
		s.ID = id
		s.AppointmentID = &id
	}
}

// WithSessionDate places the session on a specific date.
func WithSessionDate(date recurrence.Date) SessionOption {
	return func(s *persistence.Session) {
		s.Date = date
	}
}

// WithSessionCapacity overrides the capacity.
func WithSessionCapacity(capacity int) SessionOption {
	return func(s *persistence.Session) {
		s.Capacity = capacity
	}
}

// WithSessionApproved sets the approved participant list.
func WithSessionApproved(participants ...persistence.Participant) SessionOption {
	return func(s *persistence.Session) {
		s.Approved = participants
	}
}

// RuleOption configures a generated rule fixture.
type RuleOption func(*persistence.Rule)

// NewRuleFixture returns a deterministic weekly rule anchored one day after
// the reference time.
func NewRuleFixture(opts ...RuleOption) persistence.Rule {
	idx := atomic.AddUint64(&ruleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	rule := persistence.Rule{
		ID:        fmt.Sprintf("rule-%03d", idx),
		Active:    true,
		StartDate: recurrence.DateOf(referenceTime).AddDays(1),
		StartTime: "10:00",
		EndTime:   "12:00",
		Pattern: persistence.Pattern{
			Frequency: recurrence.FrequencyWeekly,
			Interval:  1,
		},
		Capacity:  5,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&rule)
	}
	return rule
}

// WithRuleID overrides the generated rule id.
func WithRuleID(id string) RuleOption {
	return func(r *persistence.Rule) {
		r.ID = id
	}
}

// WithRulePattern overrides the recurrence pattern.
func WithRulePattern(pattern persistence.Pattern) RuleOption {
	return func(r *persistence.Rule) {
		r.Pattern = pattern
	}
}

// WithRuleStartDate anchors the rule on a specific date.
func WithRuleStartDate(date recurrence.Date) RuleOption {
	return func(r *persistence.Rule) {
		r.StartDate = date
	}
}
