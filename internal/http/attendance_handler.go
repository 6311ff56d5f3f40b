package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/care-scheduler/internal/application"
	"github.com/example/care-scheduler/internal/persistence"
)

type ledgerService interface {
	RecordAttendance(ctx context.Context, input application.AttendanceInput) (persistence.AttendanceRecord, error)
	ReverseAttendance(ctx context.Context, appointmentID string, participant persistence.Participant) (bool, error)
	StartVisit(ctx context.Context, volunteerID, confirmedBy string) (persistence.AttendanceRecord, error)
	EndVisit(ctx context.Context, recordID string) (persistence.AttendanceRecord, error)
}

// AttendanceHandler serves the attendance ledger and facility visit endpoints.
type AttendanceHandler struct {
	service   ledgerService
	responder responder
}

func NewAttendanceHandler(service ledgerService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: service, responder: newResponder(logger)}
}

type attendanceRequest struct {
	ParticipantID   string `json:"participantId"`
	ParticipantKind string `json:"participantKind,omitempty"`
	Status          string `json:"status"`
	ConfirmedBy     string `json:"confirmedBy"`
	Notes           string `json:"notes,omitempty"`
}

type attendanceDTO struct {
	ID            string  `json:"id"`
	AppointmentID *string `json:"appointmentId,omitempty"`
	ParticipantID string  `json:"participantId"`
	Kind          string  `json:"participantKind"`
	Status        string  `json:"status"`
	ConfirmedBy   string  `json:"confirmedBy,omitempty"`
	ConfirmedAt   string  `json:"confirmedAt"`
	Date          string  `json:"date,omitempty"`
	VisitStarted  string  `json:"visitStartedAt,omitempty"`
	VisitEnded    string  `json:"visitEndedAt,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	appointmentID := mux.Vars(r)["id"]
	if strings.TrimSpace(appointmentID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRecordID)
		return
	}

	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if req.ParticipantKind == "" {
		req.ParticipantKind = string(persistence.ParticipantVolunteer)
	}

	record, err := h.service.RecordAttendance(r.Context(), application.AttendanceInput{
		AppointmentID: appointmentID,
		Participant: persistence.Participant{
			ID:   req.ParticipantID,
			Kind: persistence.ParticipantKind(req.ParticipantKind),
		},
		Status:      persistence.AttendanceStatus(req.Status),
		ConfirmedBy: req.ConfirmedBy,
		Notes:       req.Notes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, attendanceToDTO(record))
}

func (h *AttendanceHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	vars := mux.Vars(r)
	appointmentID := vars["id"]
	participantID := vars["participantId"]
	if strings.TrimSpace(appointmentID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRecordID)
		return
	}
	if strings.TrimSpace(participantID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}

	kind := persistence.ParticipantKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = persistence.ParticipantVolunteer
	}

	reversed, err := h.service.ReverseAttendance(r.Context(), appointmentID, persistence.Participant{ID: participantID, Kind: kind})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if !reversed {
		h.responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: "no attendance record exists for the participant"})
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type startVisitRequest struct {
	VolunteerID string `json:"volunteerId"`
	ConfirmedBy string `json:"confirmedBy,omitempty"`
}

func (h *AttendanceHandler) StartVisit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req startVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.VolunteerID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}

	record, err := h.service.StartVisit(r.Context(), req.VolunteerID, req.ConfirmedBy)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, attendanceToDTO(record))
}

func (h *AttendanceHandler) EndVisit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	recordID := mux.Vars(r)["id"]
	if strings.TrimSpace(recordID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRecordID)
		return
	}

	record, err := h.service.EndVisit(r.Context(), recordID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, attendanceToDTO(record))
}

func attendanceToDTO(record persistence.AttendanceRecord) attendanceDTO {
	dto := attendanceDTO{
		ID:            record.ID,
		AppointmentID: record.AppointmentID,
		ParticipantID: record.Participant.ID,
		Kind:          string(record.Participant.Kind),
		Status:        string(record.Status),
		ConfirmedBy:   record.ConfirmedBy,
		ConfirmedAt:   record.ConfirmedAt.Format(time.RFC3339),
		Notes:         record.Notes,
	}
	if record.Date != nil {
		dto.Date = record.Date.String()
	}
	if record.VisitStarted != nil {
		dto.VisitStarted = record.VisitStarted.Format(time.RFC3339)
	}
	if record.VisitEnded != nil {
		dto.VisitEnded = record.VisitEnded.Format(time.RFC3339)
	}
	return dto
}
