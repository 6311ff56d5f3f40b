package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/example/care-scheduler/internal/application"
	"github.com/example/care-scheduler/internal/recurrence"
)

type materializeService interface {
	Materialize(ctx context.Context, visibleFrom, visibleTo *recurrence.Date) (application.Report, error)
}

// MaterializeHandler triggers on-demand materialization runs.
type MaterializeHandler struct {
	service   materializeService
	responder responder
}

func NewMaterializeHandler(service materializeService, logger *slog.Logger) *MaterializeHandler {
	return &MaterializeHandler{service: service, responder: newResponder(logger)}
}

type failureDTO struct {
	RuleID string `json:"ruleId"`
	Date   string `json:"date"`
	Error  string `json:"error"`
}

type reportDTO struct {
	Created  int          `json:"created"`
	Skipped  int          `json:"skipped"`
	Failures []failureDTO `json:"failures,omitempty"`
}

// Run materializes the horizon, widened to the client's visible range when
// the optional from/to query parameters are given, so a view scrolled past
// the horizon still gets its instances.
func (h *MaterializeHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	visibleFrom, err := optionalDateParam(r, "from")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	visibleTo, err := optionalDateParam(r, "to")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	report, err := h.service.Materialize(r.Context(), visibleFrom, visibleTo)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dto := reportDTO{Created: report.Created, Skipped: report.Skipped}
	for _, failure := range report.Failures {
		dto.Failures = append(dto.Failures, failureDTO{
			RuleID: failure.RuleID,
			Date:   failure.Date.String(),
			Error:  failure.Err.Error(),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dto)
}

func optionalDateParam(r *http.Request, name string) (*recurrence.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	date, err := recurrence.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return &date, nil
}
