package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/care-scheduler/internal/application"
	"github.com/example/care-scheduler/internal/lifecycle"
	"github.com/example/care-scheduler/internal/persistence"
	"github.com/example/care-scheduler/internal/recurrence"
)

type sessionService interface {
	Create(ctx context.Context, input application.CreateSessionInput) (persistence.Session, error)
	Get(ctx context.Context, id string) (persistence.Session, error)
	List(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error)
	Edit(ctx context.Context, id string, input application.EditSessionInput) (persistence.Session, error)
	Cancel(ctx context.Context, id string) (persistence.Session, error)
	Restore(ctx context.Context, id string, confirmedBy string) (persistence.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteFutureOccurrences(ctx context.Context, id string) error
}

// SessionHandler serves the session CRUD and lifecycle endpoints.
type SessionHandler struct {
	service   sessionService
	responder responder
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, responder: newResponder(logger)}
}

type participantDTO struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type patternDTO struct {
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval"`
	Weekdays  []int  `json:"weekdays,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type externalGroupDTO struct {
	GroupName      string `json:"groupName"`
	ContactPerson  string `json:"contactPerson,omitempty"`
	ContactPhone   string `json:"contactPhone,omitempty"`
	PurposeOfVisit string `json:"purposeOfVisit,omitempty"`
	Size           int    `json:"numberOfParticipants"`
	Notes          string `json:"notes,omitempty"`
}

type createSessionRequest struct {
	Date          string            `json:"date"`
	StartTime     string            `json:"startTime"`
	EndTime       string            `json:"endTime"`
	Capacity      int               `json:"capacity"`
	ResidentIDs   []string          `json:"residentIds"`
	Preapproved   []participantDTO  `json:"preapproved,omitempty"`
	Category      *string           `json:"category,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	Pattern       *patternDTO       `json:"pattern,omitempty"`
	ExternalGroup *externalGroupDTO `json:"externalGroup,omitempty"`
	// ConfirmedBy names the staff member recording attendance when the
	// session is created with a date already in the past.
	ConfirmedBy string `json:"confirmedBy,omitempty"`
}

type editSessionRequest struct {
	StartTime   *string  `json:"startTime,omitempty"`
	EndTime     *string  `json:"endTime,omitempty"`
	Capacity    *int     `json:"capacity,omitempty"`
	ResidentIDs []string `json:"residentIds,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

type requestDTO struct {
	VolunteerID string `json:"volunteerId"`
	Status      string `json:"status"`
	RequestedAt string `json:"requestedAt"`
	DecidedAt   string `json:"decidedAt,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type sessionDTO struct {
	ID            string           `json:"id"`
	Date          string           `json:"date"`
	StartTime     string           `json:"startTime"`
	EndTime       string           `json:"endTime"`
	Capacity      int              `json:"capacity"`
	Status        string           `json:"status"`
	Approved      []participantDTO `json:"approved"`
	Requests      []requestDTO     `json:"requests,omitempty"`
	ResidentIDs   []string         `json:"residentIds"`
	RuleID        *string          `json:"ruleId,omitempty"`
	Pattern       *patternDTO      `json:"pattern,omitempty"`
	AppointmentID *string          `json:"appointmentId,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	CreatedAt     string           `json:"createdAt"`
	UpdatedAt     string           `json:"updatedAt"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	session, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionToDTO(session))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	session, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionToDTO(session))
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter, err := buildSessionFilter(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	sessions, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]sessionDTO, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, sessionToDTO(session))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req editSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.Edit(r.Context(), id, application.EditSessionInput{
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		ResidentIDs: req.ResidentIDs,
		Category:    req.Category,
		Notes:       req.Notes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionToDTO(session))
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	session, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionToDTO(session))
}

type restoreRequest struct {
	ConfirmedBy string `json:"confirmedBy"`
}

func (h *SessionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req restoreRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}
	if strings.TrimSpace(req.ConfirmedBy) == "" {
		req.ConfirmedBy = "staff"
	}

	session, err := h.service.Restore(r.Context(), id, req.ConfirmedBy)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionToDTO(session))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SessionHandler) DeleteFutureOccurrences(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	if err := h.service.DeleteFutureOccurrences(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (req createSessionRequest) toInput() (application.CreateSessionInput, error) {
	date, err := recurrence.ParseDate(req.Date)
	if err != nil {
		return application.CreateSessionInput{}, fmt.Errorf("date must be YYYY-MM-DD")
	}

	input := application.CreateSessionInput{
		Date:        date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		ResidentIDs: req.ResidentIDs,
		Category:    req.Category,
		Notes:       req.Notes,
		ConfirmedBy: req.ConfirmedBy,
	}
	for _, p := range req.Preapproved {
		input.Preapproved = append(input.Preapproved, persistence.Participant{
			ID:   p.ID,
			Kind: persistence.ParticipantKind(p.Kind),
		})
	}

	if req.Pattern != nil {
		pattern := application.PatternInput{
			Frequency: recurrence.Frequency(req.Pattern.Frequency),
			Interval:  req.Pattern.Interval,
		}
		for _, wd := range req.Pattern.Weekdays {
			if wd < 0 || wd > 6 {
				return application.CreateSessionInput{}, fmt.Errorf("weekdays must be 0 (Sunday) through 6 (Saturday)")
			}
			pattern.Weekdays = append(pattern.Weekdays, time.Weekday(wd))
		}
		if req.Pattern.EndDate != "" {
			endDate, err := recurrence.ParseDate(req.Pattern.EndDate)
			if err != nil {
				return application.CreateSessionInput{}, fmt.Errorf("pattern end date must be YYYY-MM-DD")
			}
			pattern.EndDate = &endDate
		}
		input.Pattern = &pattern
	}

	if req.ExternalGroup != nil {
		input.ExternalGroup = &application.ExternalGroupInput{
			GroupName:      req.ExternalGroup.GroupName,
			ContactPerson:  req.ExternalGroup.ContactPerson,
			ContactPhone:   req.ExternalGroup.ContactPhone,
			PurposeOfVisit: req.ExternalGroup.PurposeOfVisit,
			Size:           req.ExternalGroup.Size,
			Notes:          req.ExternalGroup.Notes,
		}
	}
	return input, nil
}

func buildSessionFilter(r *http.Request) (persistence.SessionFilter, error) {
	query := r.URL.Query()
	filter := persistence.SessionFilter{}

	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := recurrence.ParseDate(raw)
		if err != nil {
			return persistence.SessionFilter{}, errInvalidDateFilter
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := recurrence.ParseDate(raw)
		if err != nil {
			return persistence.SessionFilter{}, errInvalidDateFilter
		}
		filter.To = &to
	}
	if raw := strings.TrimSpace(query.Get("ruleId")); raw != "" {
		filter.RuleID = &raw
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := lifecycle.SessionStatus(raw)
		switch status {
		case lifecycle.SessionOpen, lifecycle.SessionFull, lifecycle.SessionCanceled:
			filter.Status = &status
		default:
			return persistence.SessionFilter{}, errInvalidStatusFilter
		}
	}
	return filter, nil
}

func sessionToDTO(session persistence.Session) sessionDTO {
	dto := sessionDTO{
		ID:            session.ID,
		Date:          session.Date.String(),
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		Capacity:      session.Capacity,
		Status:        string(session.Status),
		Approved:      participantsToDTO(session.Approved),
		ResidentIDs:   session.ResidentIDs,
		RuleID:        session.RuleID,
		AppointmentID: session.AppointmentID,
		Category:      session.Category,
		Notes:         session.Notes,
		CreatedAt:     session.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     session.UpdatedAt.Format(time.RFC3339),
	}
	for _, request := range session.Requests {
		entry := requestDTO{
			VolunteerID: request.VolunteerID,
			Status:      string(request.Status),
			RequestedAt: request.RequestedAt.Format(time.RFC3339),
			Reason:      request.Reason,
		}
		if request.DecidedAt != nil {
			entry.DecidedAt = request.DecidedAt.Format(time.RFC3339)
		}
		dto.Requests = append(dto.Requests, entry)
	}
	if session.Pattern != nil {
		dto.Pattern = patternToDTO(*session.Pattern)
	}
	return dto
}

func patternToDTO(pattern persistence.Pattern) *patternDTO {
	dto := &patternDTO{
		Frequency: string(pattern.Frequency),
		Interval:  pattern.Interval,
	}
	for _, wd := range pattern.Weekdays {
		dto.Weekdays = append(dto.Weekdays, int(wd))
	}
	if pattern.EndDate != nil {
		dto.EndDate = pattern.EndDate.String()
	}
	return dto
}

func participantsToDTO(participants []persistence.Participant) []participantDTO {
	dtos := make([]participantDTO, 0, len(participants))
	for _, p := range participants {
		dtos = append(dtos, participantDTO{ID: p.ID, Kind: string(p.Kind)})
	}
	return dtos
}
