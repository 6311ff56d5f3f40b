package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouterConfig bundles the handlers and middleware the router mounts.
type RouterConfig struct {
	Sessions     *SessionHandler
	Participants *ParticipantHandler
	Attendance   *AttendanceHandler
	Materialize  *MaterializeHandler
	Middleware   []func(http.Handler) http.Handler
}

// NewRouter mounts every handler on a gorilla router.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	for _, middleware := range cfg.Middleware {
		router.Use(middleware)
	}

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	if cfg.Sessions != nil {
		router.HandleFunc("/sessions", cfg.Sessions.List).Methods(http.MethodGet)
		router.HandleFunc("/sessions", cfg.Sessions.Create).Methods(http.MethodPost)
		router.HandleFunc("/sessions/{id}", cfg.Sessions.Get).Methods(http.MethodGet)
		router.HandleFunc("/sessions/{id}", cfg.Sessions.Update).Methods(http.MethodPut)
		router.HandleFunc("/sessions/{id}", cfg.Sessions.Delete).Methods(http.MethodDelete)
		router.HandleFunc("/sessions/{id}/cancel", cfg.Sessions.Cancel).Methods(http.MethodPost)
		router.HandleFunc("/sessions/{id}/restore", cfg.Sessions.Restore).Methods(http.MethodPost)
		router.HandleFunc("/sessions/{id}/occurrences", cfg.Sessions.DeleteFutureOccurrences).Methods(http.MethodDelete)
	}

	if cfg.Participants != nil {
		router.HandleFunc("/sessions/{id}/requests", cfg.Participants.RequestJoin).Methods(http.MethodPost)
		router.HandleFunc("/sessions/{id}/requests/{volunteerId}/decision", cfg.Participants.Decide).Methods(http.MethodPost)
		router.HandleFunc("/sessions/{id}/participants", cfg.Participants.AddParticipant).Methods(http.MethodPost)
		router.HandleFunc("/sessions/{id}/participants/{participantId}", cfg.Participants.RemoveParticipant).Methods(http.MethodDelete)

		router.HandleFunc("/volunteers", cfg.Participants.ListVolunteers).Methods(http.MethodGet)
		router.HandleFunc("/volunteers", cfg.Participants.RegisterVolunteer).Methods(http.MethodPost)
		router.HandleFunc("/volunteers/{id}", cfg.Participants.GetVolunteer).Methods(http.MethodGet)
		router.HandleFunc("/residents", cfg.Participants.ListResidents).Methods(http.MethodGet)
		router.HandleFunc("/residents", cfg.Participants.RegisterResident).Methods(http.MethodPost)
		router.HandleFunc("/residents/{id}", cfg.Participants.GetResident).Methods(http.MethodGet)
	}

	if cfg.Attendance != nil {
		router.HandleFunc("/appointments/{id}/attendance", cfg.Attendance.Record).Methods(http.MethodPost)
		router.HandleFunc("/appointments/{id}/attendance/{participantId}", cfg.Attendance.Reverse).Methods(http.MethodDelete)
		router.HandleFunc("/visits", cfg.Attendance.StartVisit).Methods(http.MethodPost)
		router.HandleFunc("/visits/{id}/end", cfg.Attendance.EndVisit).Methods(http.MethodPost)
	}

	if cfg.Materialize != nil {
		router.HandleFunc("/materialize", cfg.Materialize.Run).Methods(http.MethodPost)
	}

	return router
}
