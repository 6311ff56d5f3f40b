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

type participantService interface {
	RegisterVolunteer(ctx context.Context, input application.RegisterVolunteerInput) (persistence.Volunteer, error)
	RegisterResident(ctx context.Context, input application.RegisterResidentInput) (persistence.Resident, error)
	GetVolunteer(ctx context.Context, id string) (persistence.Volunteer, error)
	ListVolunteers(ctx context.Context) ([]persistence.Volunteer, error)
	GetResident(ctx context.Context, id string) (persistence.Resident, error)
	ListResidents(ctx context.Context) ([]persistence.Resident, error)
	RequestJoin(ctx context.Context, sessionID, volunteerID string) (persistence.Session, error)
	Decide(ctx context.Context, sessionID, volunteerID string, approve bool, reason string) (persistence.Session, error)
	AddDirect(ctx context.Context, sessionID string, participant persistence.Participant, confirmedBy string) (persistence.Session, error)
	RemoveDirect(ctx context.Context, sessionID, participantID string) (persistence.Session, error)
}

// ParticipantHandler serves the directory and session participation endpoints.
type ParticipantHandler struct {
	service   participantService
	responder responder
}

func NewParticipantHandler(service participantService, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{service: service, responder: newResponder(logger)}
}

type registerVolunteerRequest struct {
	FullName         string  `json:"fullName"`
	GroupAffiliation *string `json:"groupAffiliation,omitempty"`
}

type registerResidentRequest struct {
	FullName string `json:"fullName"`
}

type tallyDTO struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

type historyEntryDTO struct {
	AppointmentID string   `json:"appointmentId"`
	Date          string   `json:"date"`
	StartTime     string   `json:"startTime"`
	EndTime       string   `json:"endTime"`
	Counterparts  []string `json:"counterparts,omitempty"`
	Status        string   `json:"status"`
}

type volunteerDTO struct {
	ID               string            `json:"id"`
	FullName         string            `json:"fullName"`
	GroupAffiliation *string           `json:"groupAffiliation,omitempty"`
	Tally            tallyDTO          `json:"attendanceTally"`
	TotalSessions    int               `json:"totalSessions"`
	TotalHours       float64           `json:"totalHours"`
	History          []historyEntryDTO `json:"history,omitempty"`
	Active           bool              `json:"active"`
	CreatedAt        string            `json:"createdAt"`
}

type residentDTO struct {
	ID            string            `json:"id"`
	FullName      string            `json:"fullName"`
	TotalSessions int               `json:"totalSessions"`
	TotalHours    float64           `json:"totalHours"`
	History       []historyEntryDTO `json:"history,omitempty"`
	Active        bool              `json:"active"`
	CreatedAt     string            `json:"createdAt"`
}

func (h *ParticipantHandler) RegisterVolunteer(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerVolunteerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	volunteer, err := h.service.RegisterVolunteer(r.Context(), application.RegisterVolunteerInput{
		FullName:         req.FullName,
		GroupAffiliation: req.GroupAffiliation,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, volunteerToDTO(volunteer))
}

func (h *ParticipantHandler) GetVolunteer(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}

	volunteer, err := h.service.GetVolunteer(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, volunteerToDTO(volunteer))
}

func (h *ParticipantHandler) ListVolunteers(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	volunteers, err := h.service.ListVolunteers(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	payload := make([]volunteerDTO, 0, len(volunteers))
	for _, volunteer := range volunteers {
		payload = append(payload, volunteerToDTO(volunteer))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *ParticipantHandler) RegisterResident(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerResidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	resident, err := h.service.RegisterResident(r.Context(), application.RegisterResidentInput{FullName: req.FullName})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, residentToDTO(resident))
}

func (h *ParticipantHandler) GetResident(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}

	resident, err := h.service.GetResident(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, residentToDTO(resident))
}

func (h *ParticipantHandler) ListResidents(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	residents, err := h.service.ListResidents(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	payload := make([]residentDTO, 0, len(residents))
	for _, resident := range residents {
		payload = append(payload, residentToDTO(resident))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

type joinRequestBody struct {
	VolunteerID string `json:"volunteerId"`
}

func (h *ParticipantHandler) RequestJoin(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := mux.Vars(r)["id"]
	if strings.TrimSpace(sessionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req joinRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.VolunteerID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}

	session, err := h.service.RequestJoin(r.Context(), sessionID, req.VolunteerID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, sessionToDTO(session))
}

type decisionRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

func (h *ParticipantHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	vars := mux.Vars(r)
	sessionID := vars["id"]
	volunteerID := vars["volunteerId"]
	if strings.TrimSpace(sessionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}
	if strings.TrimSpace(volunteerID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.Decide(r.Context(), sessionID, volunteerID, req.Approve, req.Reason)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionToDTO(session))
}

type addParticipantRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
	// ConfirmedBy names the staff member confirming attendance when the
	// session has already happened. Defaults to "staff" when omitted.
	ConfirmedBy string `json:"confirmedBy,omitempty"`
}

func (h *ParticipantHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := mux.Vars(r)["id"]
	if strings.TrimSpace(sessionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req addParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}
	if req.Kind == "" {
		req.Kind = string(persistence.ParticipantVolunteer)
	}

	session, err := h.service.AddDirect(r.Context(), sessionID, persistence.Participant{
		ID:   req.ID,
		Kind: persistence.ParticipantKind(req.Kind),
	}, req.ConfirmedBy)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionToDTO(session))
}

func (h *ParticipantHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	vars := mux.Vars(r)
	sessionID := vars["id"]
	participantID := vars["participantId"]
	if strings.TrimSpace(sessionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}
	if strings.TrimSpace(participantID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPersonID)
		return
	}

	session, err := h.service.RemoveDirect(r.Context(), sessionID, participantID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionToDTO(session))
}

func volunteerToDTO(volunteer persistence.Volunteer) volunteerDTO {
	return volunteerDTO{
		ID:               volunteer.ID,
		FullName:         volunteer.FullName,
		GroupAffiliation: volunteer.GroupAffiliation,
		Tally: tallyDTO{
			Present: volunteer.Tally.Present,
			Late:    volunteer.Tally.Late,
			Absent:  volunteer.Tally.Absent,
		},
		TotalSessions: volunteer.TotalSessions,
		TotalHours:    volunteer.TotalHours,
		History:       historyToDTO(volunteer.History),
		Active:        volunteer.Active,
		CreatedAt:     volunteer.CreatedAt.Format(time.RFC3339),
	}
}

func residentToDTO(resident persistence.Resident) residentDTO {
	return residentDTO{
		ID:            resident.ID,
		FullName:      resident.FullName,
		TotalSessions: resident.TotalSessions,
		TotalHours:    resident.TotalHours,
		History:       historyToDTO(resident.History),
		Active:        resident.Active,
		CreatedAt:     resident.CreatedAt.Format(time.RFC3339),
	}
}

func historyToDTO(entries []persistence.HistoryEntry) []historyEntryDTO {
	dtos := make([]historyEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, historyEntryDTO{
			AppointmentID: entry.AppointmentID,
			Date:          entry.Date.String(),
			StartTime:     entry.StartTime,
			EndTime:       entry.EndTime,
			Counterparts:  entry.Counterparts,
			Status:        string(entry.Status),
		})
	}
	return dtos
}
