package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/persistence"
	"github.com/example/care-scheduler/internal/recurrence"
	"github.com/example/care-scheduler/internal/testfixtures"
)

func newSessionHarness() (*SessionService, *memoryStore, *testfixtures.Clock) {
	store := newMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("gen")
	ledger := NewLedgerService(store, store, store, store, store, ids.NextFunc(), clock.NowFunc(), nil)
	service := NewSessionService(store, store, store, store, ledger, ids.NextFunc(), clock.NowFunc(), nil)
	return service, store, clock
}

func futureDate(clock *testfixtures.Clock, days int) recurrence.Date {
	return recurrence.DateOf(clock.Now()).AddDays(days)
}

func TestCreateRecurringSessionAnchorsSeries(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	session, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 7),
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  3,
		Pattern:   &PatternInput{Frequency: recurrence.FrequencyWeekly, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !session.IsAnchor() {
		t.Fatalf("created session is not the series anchor: rule id %v", session.RuleID)
	}
	rule, ok := store.rules[session.ID]
	if !ok {
		t.Fatal("rule not created under the session id")
	}
	if !rule.Active || rule.StartDate != session.Date {
		t.Errorf("rule = %+v, want active and anchored on the session date", rule)
	}
	// No one is approved yet, so the appointment is deferred until the
	// first participant joins.
	if _, ok := store.appointments[session.ID]; ok {
		t.Error("appointment created before any participant joined")
	}
	if session.AppointmentID != nil {
		t.Errorf("appointment id = %q, want none before anyone joined", *session.AppointmentID)
	}
	if session.Status != lifecycle.SessionOpen {
		t.Errorf("session status = %s, want open", session.Status)
	}
}

func TestCreateExternalGroupSessionIsFull(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	session, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 3),
		StartTime: "14:00",
		EndTime:   "16:00",
		ExternalGroup: &ExternalGroupInput{
			GroupName:     "Harbor Choir",
			ContactPerson: "A. Chen",
			Size:          12,
		},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if session.Capacity != 12 {
		t.Errorf("capacity = %d, want the group size 12", session.Capacity)
	}
	if session.Status != lifecycle.SessionFull {
		t.Errorf("status = %s, want full", session.Status)
	}
	if len(session.Approved) != 1 || session.Approved[0].Kind != persistence.ParticipantExternalGroup {
		t.Fatalf("approved = %+v, want the single group participant", session.Approved)
	}
	group, ok := store.groups[session.Approved[0].ID]
	if !ok {
		t.Fatal("external group record not created")
	}
	if group.AppointmentID == nil || *group.AppointmentID != session.ID {
		t.Errorf("group appointment back-reference = %v, want %s", group.AppointmentID, session.ID)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	service, _, clock := newSessionHarness()
	ctx := context.Background()

	_, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 3),
		StartTime: "12:00",
		EndTime:   "10:00",
		Pattern:   &PatternInput{Frequency: recurrence.FrequencyWeekly, Interval: 1},
		ExternalGroup: &ExternalGroupInput{
			GroupName: "",
			Size:      0,
		},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	for _, field := range []string{"endTime", "pattern", "groupName", "numberOfParticipants"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("missing field error for %s", field)
		}
	}
}

func TestEditRejectsCapacityBelowApproved(t *testing.T) {
	service, _, clock := newSessionHarness()
	ctx := context.Background()

	volunteerA := registerVolunteer(t, service, "Ada Mensah")
	volunteerB := registerVolunteer(t, service, "Lior Katz")
	session, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 5),
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  3,
		Preapproved: []persistence.Participant{
			{ID: volunteerA, Kind: persistence.ParticipantVolunteer},
			{ID: volunteerB, Kind: persistence.ParticipantVolunteer},
		},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	capacity := 1
	_, err = service.Edit(ctx, session.ID, EditSessionInput{Capacity: &capacity})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if _, ok := vErr.FieldErrors["capacity"]; !ok {
		t.Errorf("missing field error for capacity: %v", vErr.FieldErrors)
	}
}

// registerVolunteer seeds a volunteer through the store the harness shares.
func registerVolunteer(t *testing.T, service *SessionService, name string) string {
	t.Helper()
	store, ok := service.sessions.(*memoryStore)
	if !ok {
		t.Fatal("harness store is not the shared memory store")
	}
	volunteer := testfixtures.NewVolunteerFixture()
	volunteer.FullName = name
	store.volunteers[volunteer.ID] = volunteer
	return volunteer.ID
}

func TestCreatePastSessionRecordsAttendance(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	volunteerID := registerVolunteer(t, service, "Ada Mensah")
	session, err := service.Create(ctx, CreateSessionInput{
		Date:        recurrence.DateOf(clock.Now()).AddDays(-3),
		StartTime:   "10:00",
		EndTime:     "12:00",
		Capacity:    3,
		Preapproved: []persistence.Participant{{ID: volunteerID, Kind: persistence.ParticipantVolunteer}},
		ConfirmedBy: "staff-7",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if session.Status != lifecycle.SessionFull {
		t.Errorf("status = %s, want full for a past session", session.Status)
	}
	if store.appointments[session.ID].Status != lifecycle.AppointmentCompleted {
		t.Errorf("appointment status = %s, want completed", store.appointments[session.ID].Status)
	}
	if len(store.attendance) != 1 {
		t.Fatalf("attendance records = %d, want 1", len(store.attendance))
	}
	for _, record := range store.attendance {
		if record.Status != persistence.AttendancePresent || record.ConfirmedBy != "staff-7" {
			t.Errorf("record = %+v, want present confirmed by staff-7", record)
		}
	}
	volunteer := store.volunteers[volunteerID]
	if volunteer.TotalSessions != 1 || volunteer.TotalHours != 2 {
		t.Errorf("volunteer aggregates = %d sessions, %v hours; want 1 and 2", volunteer.TotalSessions, volunteer.TotalHours)
	}
}

func TestEditSessionTimesRevaluesCreditedHours(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	volunteerID := registerVolunteer(t, service, "Ada Mensah")
	resident := testfixtures.NewResidentFixture()
	store.residents[resident.ID] = resident

	session, err := service.Create(ctx, CreateSessionInput{
		Date:        futureDate(clock, 5),
		StartTime:   "10:00",
		EndTime:     "12:00",
		Capacity:    3,
		ResidentIDs: []string{resident.ID},
		Preapproved: []persistence.Participant{{ID: volunteerID, Kind: persistence.ParticipantVolunteer}},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	ledger := NewLedgerService(store, store, store, store, store, testfixtures.NewIDGenerator("rec").NextFunc(), clock.NowFunc(), nil)
	if _, err := ledger.RecordAttendance(ctx, AttendanceInput{
		AppointmentID: session.ID,
		Participant:   persistence.Participant{ID: volunteerID, Kind: persistence.ParticipantVolunteer},
		Status:        persistence.AttendancePresent,
		ConfirmedBy:   "staff-1",
	}); err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}

	newEnd := "13:30"
	if _, err := service.Edit(ctx, session.ID, EditSessionInput{EndTime: &newEnd}); err != nil {
		t.Fatalf("Edit returned error: %v", err)
	}

	volunteer := store.volunteers[volunteerID]
	if volunteer.TotalHours != 3.5 {
		t.Errorf("volunteer hours = %v, want 3.5 after the end time moved", volunteer.TotalHours)
	}
	if volunteer.TotalSessions != 1 {
		t.Errorf("volunteer sessions = %d, want 1 (revaluation must not recount)", volunteer.TotalSessions)
	}
	if len(volunteer.History) != 1 || volunteer.History[0].EndTime != "13:30" {
		t.Errorf("volunteer history not retimed: %+v", volunteer.History)
	}
	got := store.residents[resident.ID]
	if got.TotalHours != 3.5 {
		t.Errorf("resident hours = %v, want 3.5", got.TotalHours)
	}
	if len(got.History) != 1 || got.History[0].EndTime != "13:30" {
		t.Errorf("resident history not retimed: %+v", got.History)
	}
}

func TestCancelReversesLedgerAndClosesRequests(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	volunteerID := registerVolunteer(t, service, "Ada Mensah")
	pendingID := registerVolunteer(t, service, "Lior Katz")
	session, err := service.Create(ctx, CreateSessionInput{
		Date:        futureDate(clock, 5),
		StartTime:   "10:00",
		EndTime:     "12:00",
		Capacity:    3,
		Preapproved: []persistence.Participant{{ID: volunteerID, Kind: persistence.ParticipantVolunteer}},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	session.Requests = append(session.Requests, persistence.JoinRequest{
		VolunteerID: pendingID,
		Status:      persistence.RequestPending,
		RequestedAt: clock.Now(),
	})
	store.sessions[session.ID] = session

	ledger := NewLedgerService(store, store, store, store, store, testfixtures.NewIDGenerator("rec").NextFunc(), clock.NowFunc(), nil)
	if _, err := ledger.RecordAttendance(ctx, AttendanceInput{
		AppointmentID: session.ID,
		Participant:   persistence.Participant{ID: volunteerID, Kind: persistence.ParticipantVolunteer},
		Status:        persistence.AttendancePresent,
		ConfirmedBy:   "staff-1",
	}); err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}

	canceled, err := service.Cancel(ctx, session.ID)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if canceled.Status != lifecycle.SessionCanceled {
		t.Errorf("status = %s, want canceled", canceled.Status)
	}
	if len(store.attendance) != 0 {
		t.Errorf("attendance records remain after cancel: %d", len(store.attendance))
	}
	if got := store.volunteers[volunteerID]; got.TotalSessions != 0 || got.Tally.Present != 0 {
		t.Errorf("volunteer aggregates not reversed: %+v", got)
	}
	request := canceled.Requests[0]
	if request.Status != persistence.RequestRejected {
		t.Errorf("pending request status = %s, want rejected", request.Status)
	}
	if request.Reason != "session canceled" {
		t.Errorf("rejection reason = %q", request.Reason)
	}
	if store.appointments[session.ID].Status != lifecycle.AppointmentCanceled {
		t.Errorf("appointment status = %s, want canceled", store.appointments[session.ID].Status)
	}

	// Canceling again must be a no-op.
	again, err := service.Cancel(ctx, session.ID)
	if err != nil {
		t.Fatalf("second Cancel returned error: %v", err)
	}
	if again.Status != lifecycle.SessionCanceled {
		t.Errorf("second cancel status = %s", again.Status)
	}
}

func TestRestoreUpcomingSessionReopens(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	session, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 5),
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  3,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := service.Cancel(ctx, session.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	restored, err := service.Restore(ctx, session.ID, "staff-2")
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if restored.Status != lifecycle.SessionOpen {
		t.Errorf("status = %s, want open", restored.Status)
	}
	// An empty session never had an appointment, and the round trip through
	// cancel and restore does not conjure one.
	if _, ok := store.appointments[session.ID]; ok {
		t.Error("appointment exists for a session without participants")
	}
	if len(store.attendance) != 0 {
		t.Errorf("restore of an upcoming session created attendance: %d records", len(store.attendance))
	}
}

func TestRestoreCompletedSessionRecreatesAttendance(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	volunteerID := registerVolunteer(t, service, "Ada Mensah")
	session, err := service.Create(ctx, CreateSessionInput{
		Date:        futureDate(clock, 1),
		StartTime:   "10:00",
		EndTime:     "12:00",
		Capacity:    3,
		Preapproved: []persistence.Participant{{ID: volunteerID, Kind: persistence.ParticipantVolunteer}},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := service.Cancel(ctx, session.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	// Move past the session window, then restore.
	clock.Advance(48 * time.Hour)
	restored, err := service.Restore(ctx, session.ID, "staff-2")
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if restored.Status != lifecycle.SessionFull {
		t.Errorf("status = %s, want full for a past session", restored.Status)
	}
	if store.appointments[session.ID].Status != lifecycle.AppointmentCompleted {
		t.Errorf("appointment status = %s, want completed", store.appointments[session.ID].Status)
	}
	record, err := store.FindForAppointment(ctx, session.ID, volunteerID)
	if err != nil {
		t.Fatalf("attendance not recreated: %v", err)
	}
	if record.Status != persistence.AttendancePresent {
		t.Errorf("recreated record status = %s, want present", record.Status)
	}
	if record.ConfirmedBy != "staff-2" {
		t.Errorf("recreated record confirmed by %q, want staff-2", record.ConfirmedBy)
	}
	if got := store.volunteers[volunteerID]; got.TotalSessions != 1 || got.TotalHours != 2 {
		t.Errorf("volunteer aggregates = (%d, %v), want (1, 2)", got.TotalSessions, got.TotalHours)
	}
}

func TestDeleteAnchorRemovesRule(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	session, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 7),
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  3,
		Pattern:   &PatternInput{Frequency: recurrence.FrequencyWeekly, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := service.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := store.sessions[session.ID]; ok {
		t.Error("session still stored")
	}
	if _, ok := store.appointments[session.ID]; ok {
		t.Error("appointment still stored")
	}
	if _, ok := store.rules[session.ID]; ok {
		t.Error("rule still stored; anchor delete must remove it")
	}
}

func TestDeleteExternalGroupSessionRemovesGroup(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	session, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 3),
		StartTime: "14:00",
		EndTime:   "16:00",
		ExternalGroup: &ExternalGroupInput{
			GroupName: "Harbor Choir",
			Size:      8,
		},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := service.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(store.groups) != 0 {
		t.Errorf("external group records remain: %d", len(store.groups))
	}
}

func TestDeleteFutureOccurrencesTruncatesRule(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	anchorDate := futureDate(clock, 7)
	anchor, err := service.Create(ctx, CreateSessionInput{
		Date:      anchorDate,
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  3,
		Pattern:   &PatternInput{Frequency: recurrence.FrequencyWeekly, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// Materialize the next two weeks of the series.
	materializer := NewMaterializer(store, store, store, nil, 21, clock.NowFunc(), nil)
	if _, err := materializer.Materialize(ctx, nil, nil); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	instances, err := store.ListSessions(ctx, persistence.SessionFilter{RuleID: &anchor.ID})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("instances = %d, want anchor plus two materialized", len(instances))
	}

	// Cut from the second occurrence onward.
	if err := service.DeleteFutureOccurrences(ctx, instances[1].ID); err != nil {
		t.Fatalf("DeleteFutureOccurrences returned error: %v", err)
	}

	remaining, err := store.ListSessions(ctx, persistence.SessionFilter{RuleID: &anchor.ID})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != anchor.ID {
		t.Fatalf("remaining instances = %+v, want only the anchor", remaining)
	}
	rule := store.rules[anchor.ID]
	wantEnd := instances[1].Date.AddDays(-1)
	if rule.Pattern.EndDate == nil || *rule.Pattern.EndDate != wantEnd {
		t.Errorf("rule end date = %v, want %s", rule.Pattern.EndDate, wantEnd)
	}

	// A rerun must not resurrect the deleted tail.
	report, err := materializer.Materialize(ctx, nil, nil)
	if err != nil {
		t.Fatalf("rerun returned error: %v", err)
	}
	if report.Created != 0 {
		t.Errorf("rerun created = %d, want 0", report.Created)
	}
}

func TestDeleteFutureOccurrencesFromAnchorDeletesRule(t *testing.T) {
	service, store, clock := newSessionHarness()
	ctx := context.Background()

	anchor, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 7),
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  3,
		Pattern:   &PatternInput{Frequency: recurrence.FrequencyWeekly, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	materializer := NewMaterializer(store, store, store, nil, 21, clock.NowFunc(), nil)
	if _, err := materializer.Materialize(ctx, nil, nil); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if err := service.DeleteFutureOccurrences(ctx, anchor.ID); err != nil {
		t.Fatalf("DeleteFutureOccurrences returned error: %v", err)
	}
	if len(store.sessions) != 0 {
		t.Errorf("sessions remain: %d", len(store.sessions))
	}
	if _, ok := store.rules[anchor.ID]; ok {
		t.Error("rule still stored after cutting the whole series")
	}
}

func TestDeleteFutureOccurrencesRejectsOneOffSessions(t *testing.T) {
	service, _, clock := newSessionHarness()
	ctx := context.Background()

	session, err := service.Create(ctx, CreateSessionInput{
		Date:      futureDate(clock, 3),
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  3,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	err = service.DeleteFutureOccurrences(ctx, session.ID)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
}
