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

func newParticipantHarness() (*ParticipantService, *memoryStore, *testfixtures.Clock) {
	store := newMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("gen")
	ledger := NewLedgerService(store, store, store, store, store, ids.NextFunc(), clock.NowFunc(), nil)
	service := NewParticipantService(store, store, store, store, ledger, ids.NextFunc(), clock.NowFunc(), nil)
	return service, store, clock
}

func TestRegisterVolunteerRequiresName(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	_, err := service.RegisterVolunteer(ctx, RegisterVolunteerInput{FullName: "  "})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}

	volunteer, err := service.RegisterVolunteer(ctx, RegisterVolunteerInput{FullName: " Ada Mensah "})
	if err != nil {
		t.Fatalf("RegisterVolunteer returned error: %v", err)
	}
	if volunteer.FullName != "Ada Mensah" {
		t.Errorf("full name = %q, want trimmed", volunteer.FullName)
	}
	if !volunteer.Active {
		t.Error("new volunteer not active")
	}
	if _, ok := store.volunteers[volunteer.ID]; !ok {
		t.Error("volunteer not stored")
	}
}

func TestRegisterResidentRequiresName(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	_, err := service.RegisterResident(ctx, RegisterResidentInput{})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}

	resident, err := service.RegisterResident(ctx, RegisterResidentInput{FullName: "Noor Haddad"})
	if err != nil {
		t.Fatalf("RegisterResident returned error: %v", err)
	}
	if _, ok := store.residents[resident.ID]; !ok {
		t.Error("resident not stored")
	}
}

func TestRequestJoinFilesPendingRequest(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	session := testfixtures.NewSessionFixture()
	seedSession(t, store, session)

	updated, err := service.RequestJoin(ctx, session.ID, volunteer.ID)
	if err != nil {
		t.Fatalf("RequestJoin returned error: %v", err)
	}
	if len(updated.Requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(updated.Requests))
	}
	if updated.Requests[0].Status != persistence.RequestPending {
		t.Errorf("request status = %s, want pending", updated.Requests[0].Status)
	}

	// Filing the same request twice does not duplicate it.
	again, err := service.RequestJoin(ctx, session.ID, volunteer.ID)
	if err != nil {
		t.Fatalf("repeat RequestJoin returned error: %v", err)
	}
	if len(again.Requests) != 1 {
		t.Errorf("requests after repeat = %d, want 1", len(again.Requests))
	}
}

func TestRequestJoinGuards(t *testing.T) {
	service, store, clock := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer

	full := testfixtures.NewSessionFixture(
		testfixtures.WithSessionCapacity(1),
		testfixtures.WithSessionApproved(persistence.Participant{ID: "other", Kind: persistence.ParticipantVolunteer}),
	)
	full.Status = lifecycle.SessionFull
	seedSession(t, store, full)
	if _, err := service.RequestJoin(ctx, full.ID, volunteer.ID); !errors.Is(err, ErrSessionFull) {
		t.Errorf("full session error = %v, want ErrSessionFull", err)
	}

	past := testfixtures.NewSessionFixture(
		testfixtures.WithSessionDate(recurrence.DateOf(clock.Now()).AddDays(-1)),
	)
	seedSession(t, store, past)
	if _, err := service.RequestJoin(ctx, past.ID, volunteer.ID); !errors.Is(err, ErrPastSession) {
		t.Errorf("past session error = %v, want ErrPastSession", err)
	}

	canceled := testfixtures.NewSessionFixture()
	canceled.Status = lifecycle.SessionCanceled
	seedSession(t, store, canceled)
	if _, err := service.RequestJoin(ctx, canceled.ID, volunteer.ID); !errors.Is(err, ErrSessionCanceled) {
		t.Errorf("canceled session error = %v, want ErrSessionCanceled", err)
	}

	open := testfixtures.NewSessionFixture()
	seedSession(t, store, open)
	if _, err := service.RequestJoin(ctx, open.ID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown volunteer error = %v, want ErrNotFound", err)
	}
}

func TestDecideApprovalFillsSession(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	session := testfixtures.NewSessionFixture(testfixtures.WithSessionCapacity(1))
	seedSession(t, store, session)

	if _, err := service.RequestJoin(ctx, session.ID, volunteer.ID); err != nil {
		t.Fatalf("RequestJoin returned error: %v", err)
	}
	updated, err := service.Decide(ctx, session.ID, volunteer.ID, true, "")
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if len(updated.Approved) != 1 || updated.Approved[0].ID != volunteer.ID {
		t.Fatalf("approved = %+v", updated.Approved)
	}
	if updated.Requests[0].Status != persistence.RequestApproved {
		t.Errorf("request status = %s, want approved", updated.Requests[0].Status)
	}
	if updated.Status != lifecycle.SessionFull {
		t.Errorf("session status = %s, want full at capacity", updated.Status)
	}
	appointment := store.appointments[session.ID]
	if len(appointment.Participants) != 1 || appointment.Participants[0].ID != volunteer.ID {
		t.Errorf("appointment participants not synced: %+v", appointment.Participants)
	}
}

func TestDecideApprovalBeyondCapacityIsRejected(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	first := testfixtures.NewVolunteerFixture()
	second := testfixtures.NewVolunteerFixture()
	store.volunteers[first.ID] = first
	store.volunteers[second.ID] = second
	session := testfixtures.NewSessionFixture(testfixtures.WithSessionCapacity(1))
	seedSession(t, store, session)

	// Both requests are filed while the session is still open.
	if _, err := service.RequestJoin(ctx, session.ID, first.ID); err != nil {
		t.Fatalf("RequestJoin returned error: %v", err)
	}
	if _, err := service.RequestJoin(ctx, session.ID, second.ID); err != nil {
		t.Fatalf("second RequestJoin returned error: %v", err)
	}
	if _, err := service.Decide(ctx, session.ID, first.ID, true, ""); err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}

	if _, err := service.Decide(ctx, session.ID, second.ID, true, ""); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("error = %v, want ErrSessionFull", err)
	}
	unchanged := store.sessions[session.ID]
	if len(unchanged.Approved) != 1 || unchanged.Status != lifecycle.SessionFull {
		t.Errorf("session changed by the rejected approval: %+v", unchanged)
	}
	for _, request := range unchanged.Requests {
		if request.VolunteerID == second.ID && request.Status != persistence.RequestPending {
			t.Errorf("second request status = %s, want still pending", request.Status)
		}
	}
}

func TestDecideRejectionRequiresReason(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	session := testfixtures.NewSessionFixture()
	seedSession(t, store, session)
	if _, err := service.RequestJoin(ctx, session.ID, volunteer.ID); err != nil {
		t.Fatalf("RequestJoin returned error: %v", err)
	}

	_, err := service.Decide(ctx, session.ID, volunteer.ID, false, "  ")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}

	updated, err := service.Decide(ctx, session.ID, volunteer.ID, false, "schedule conflict")
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	request := updated.Requests[0]
	if request.Status != persistence.RequestRejected {
		t.Errorf("request status = %s, want rejected", request.Status)
	}
	if request.Reason != "schedule conflict" {
		t.Errorf("reason = %q", request.Reason)
	}
	if request.DecidedAt == nil {
		t.Error("decision not timestamped")
	}
}

func TestDecideWithoutPendingRequest(t *testing.T) {
	service, store, _ := newParticipantHarness()
	session := testfixtures.NewSessionFixture()
	seedSession(t, store, session)

	_, err := service.Decide(context.Background(), session.ID, "nobody", true, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAddDirect(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	session := testfixtures.NewSessionFixture(testfixtures.WithSessionCapacity(1))
	seedSession(t, store, session)

	participant := persistence.Participant{ID: volunteer.ID, Kind: persistence.ParticipantVolunteer}
	updated, err := service.AddDirect(ctx, session.ID, participant, "")
	if err != nil {
		t.Fatalf("AddDirect returned error: %v", err)
	}
	if updated.Status != lifecycle.SessionFull {
		t.Errorf("status = %s, want full", updated.Status)
	}

	// Adding the same participant again returns the unchanged session.
	again, err := service.AddDirect(ctx, session.ID, participant, "")
	if err != nil {
		t.Fatalf("repeat AddDirect returned error: %v", err)
	}
	if len(again.Approved) != 1 {
		t.Errorf("approved after repeat = %d, want 1", len(again.Approved))
	}

	other := testfixtures.NewVolunteerFixture()
	store.volunteers[other.ID] = other
	if _, err := service.AddDirect(ctx, session.ID, persistence.Participant{ID: other.ID, Kind: persistence.ParticipantVolunteer}, ""); !errors.Is(err, ErrSessionFull) {
		t.Errorf("over-capacity error = %v, want ErrSessionFull", err)
	}
}

func TestAddDirectCreatesAppointmentLazily(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	session := testfixtures.NewSessionFixture()
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	if _, ok := store.appointments[session.ID]; ok {
		t.Fatal("appointment exists before any participant")
	}

	participant := persistence.Participant{ID: volunteer.ID, Kind: persistence.ParticipantVolunteer}
	if _, err := service.AddDirect(ctx, session.ID, participant, ""); err != nil {
		t.Fatalf("AddDirect returned error: %v", err)
	}
	appointment, ok := store.appointments[session.ID]
	if !ok {
		t.Fatal("first participant did not create the appointment")
	}
	if appointment.Status != lifecycle.AppointmentUpcoming {
		t.Errorf("appointment status = %s, want upcoming", appointment.Status)
	}
	if len(appointment.Participants) != 1 || appointment.Participants[0].ID != volunteer.ID {
		t.Errorf("appointment participants = %+v", appointment.Participants)
	}

	// Removing the last participant takes the appointment with it.
	if _, err := service.RemoveDirect(ctx, session.ID, volunteer.ID); err != nil {
		t.Fatalf("RemoveDirect returned error: %v", err)
	}
	if _, ok := store.appointments[session.ID]; ok {
		t.Error("appointment remains after the last participant left")
	}
}

func TestAddDirectOnPastSessionRecordsAttendance(t *testing.T) {
	service, store, clock := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	resident := testfixtures.NewResidentFixture()
	store.residents[resident.ID] = resident

	session := testfixtures.NewSessionFixture(
		testfixtures.WithSessionDate(recurrence.DateOf(clock.Now()).AddDays(-1)),
	)
	session.ResidentIDs = []string{resident.ID}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	participant := persistence.Participant{ID: volunteer.ID, Kind: persistence.ParticipantVolunteer}
	if _, err := service.AddDirect(ctx, session.ID, participant, "staff-9"); err != nil {
		t.Fatalf("AddDirect returned error: %v", err)
	}

	if len(store.attendance) != 1 {
		t.Fatalf("attendance records = %d, want 1", len(store.attendance))
	}
	for _, record := range store.attendance {
		if record.Status != persistence.AttendancePresent || record.ConfirmedBy != "staff-9" {
			t.Errorf("record = %+v, want present confirmed by staff-9", record)
		}
	}
	got := store.volunteers[volunteer.ID]
	if got.TotalSessions != 1 || got.TotalHours != 2 || got.Tally.Present != 1 {
		t.Errorf("volunteer aggregates = %d sessions, %v hours, %d present; want 1, 2, 1", got.TotalSessions, got.TotalHours, got.Tally.Present)
	}
	gotResident := store.residents[resident.ID]
	if gotResident.TotalSessions != 1 || gotResident.TotalHours != 2 {
		t.Errorf("resident aggregates = %d sessions, %v hours; want 1 and 2", gotResident.TotalSessions, gotResident.TotalHours)
	}

	// A second confirmed participant does not credit the resident again.
	other := testfixtures.NewVolunteerFixture()
	store.volunteers[other.ID] = other
	if _, err := service.AddDirect(ctx, session.ID, persistence.Participant{ID: other.ID, Kind: persistence.ParticipantVolunteer}, ""); err != nil {
		t.Fatalf("second AddDirect returned error: %v", err)
	}
	gotResident = store.residents[resident.ID]
	if gotResident.TotalSessions != 1 {
		t.Errorf("resident sessions = %d, want still 1", gotResident.TotalSessions)
	}
	for _, record := range store.attendance {
		if record.Participant.ID == other.ID && record.ConfirmedBy != "staff" {
			t.Errorf("default confirming staff = %q, want staff", record.ConfirmedBy)
		}
	}
}

func TestApprovalFilesHistoryBeforeAttendance(t *testing.T) {
	service, store, _ := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	resident := testfixtures.NewResidentFixture()
	store.residents[resident.ID] = resident

	session := testfixtures.NewSessionFixture()
	session.ResidentIDs = []string{resident.ID}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	if _, err := service.RequestJoin(ctx, session.ID, volunteer.ID); err != nil {
		t.Fatalf("RequestJoin returned error: %v", err)
	}
	if _, err := service.Decide(ctx, session.ID, volunteer.ID, true, ""); err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}

	// The session is still upcoming, so the entry exists without any counter
	// movement.
	got := store.volunteers[volunteer.ID]
	if len(got.History) != 1 {
		t.Fatalf("volunteer history = %+v, want one entry", got.History)
	}
	entry := got.History[0]
	if entry.AppointmentID != session.ID || entry.Date != session.Date {
		t.Errorf("entry = %+v, want the session's appointment and date", entry)
	}
	if len(entry.Counterparts) != 1 || entry.Counterparts[0] != resident.ID {
		t.Errorf("counterparts = %v, want the resident", entry.Counterparts)
	}
	if got.TotalSessions != 0 || got.TotalHours != 0 {
		t.Errorf("aggregates moved without attendance: %+v", got)
	}
	gotResident := store.residents[resident.ID]
	if len(gotResident.History) != 1 || gotResident.History[0].Counterparts[0] != volunteer.ID {
		t.Errorf("resident history = %+v, want one entry listing the volunteer", gotResident.History)
	}
	if gotResident.TotalSessions != 0 {
		t.Errorf("resident sessions = %d, want 0 before attendance", gotResident.TotalSessions)
	}

	// Leaving the session removes the entries again.
	if _, err := service.RemoveDirect(ctx, session.ID, volunteer.ID); err != nil {
		t.Fatalf("RemoveDirect returned error: %v", err)
	}
	if got := store.volunteers[volunteer.ID]; len(got.History) != 0 {
		t.Errorf("volunteer history after leaving = %+v, want empty", got.History)
	}
	if gotResident := store.residents[resident.ID]; len(gotResident.History) != 0 {
		t.Errorf("resident history after leaving = %+v, want empty", gotResident.History)
	}
}

func TestAddDirectRejectsUnknownVolunteer(t *testing.T) {
	service, store, _ := newParticipantHarness()
	session := testfixtures.NewSessionFixture()
	seedSession(t, store, session)

	_, err := service.AddDirect(context.Background(), session.ID, persistence.Participant{ID: "ghost", Kind: persistence.ParticipantVolunteer}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRemoveDirectReversesAttendance(t *testing.T) {
	service, store, clock := newParticipantHarness()
	ctx := context.Background()

	volunteer := testfixtures.NewVolunteerFixture()
	store.volunteers[volunteer.ID] = volunteer
	participant := persistence.Participant{ID: volunteer.ID, Kind: persistence.ParticipantVolunteer}
	session := testfixtures.NewSessionFixture(testfixtures.WithSessionApproved(participant))
	seedSession(t, store, session)

	ledger := NewLedgerService(store, store, store, store, store, testfixtures.NewIDGenerator("rec").NextFunc(), clock.NowFunc(), nil)
	if _, err := ledger.RecordAttendance(ctx, AttendanceInput{
		AppointmentID: session.ID,
		Participant:   participant,
		Status:        persistence.AttendancePresent,
		ConfirmedBy:   "staff-1",
	}); err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}

	updated, err := service.RemoveDirect(ctx, session.ID, volunteer.ID)
	if err != nil {
		t.Fatalf("RemoveDirect returned error: %v", err)
	}
	if len(updated.Approved) != 0 {
		t.Errorf("approved = %+v, want empty", updated.Approved)
	}
	if len(store.attendance) != 0 {
		t.Errorf("attendance records remain: %d", len(store.attendance))
	}
	got := store.volunteers[volunteer.ID]
	if got.TotalSessions != 0 || got.Tally.Present != 0 {
		t.Errorf("aggregates not reversed: %+v", got)
	}
}

func TestRemoveDirectUnknownParticipant(t *testing.T) {
	service, store, _ := newParticipantHarness()
	session := testfixtures.NewSessionFixture()
	seedSession(t, store, session)

	_, err := service.RemoveDirect(context.Background(), session.ID, "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
