// Package http provides HTTP handlers and middleware for the scheduler API.
//
// The router exposes the following endpoints:
//   - GET /sessions, POST /sessions, GET /sessions/{id}, PUT /sessions/{id},
//     DELETE /sessions/{id}: session management endpoints exchanging the
//     payloads defined in session_handler.go. Creation accepts an optional
//     recurrence pattern, which makes the created session the anchor of a new
//     series, or an external group descriptor, which dedicates the session to
//     a visiting party.
//   - POST /sessions/{id}/cancel, POST /sessions/{id}/restore: lifecycle
//     transitions. Cancel reverses confirmed attendance and closes pending
//     join requests; restore recomputes the status from the clock.
//   - DELETE /sessions/{id}/occurrences: removes the occurrence and every
//     later one in its series, truncating the rule so they never come back.
//   - POST /sessions/{id}/requests, POST /sessions/{id}/requests/{volunteerId}/decision:
//     the volunteer join-request flow. Rejection requires a reason.
//   - POST /sessions/{id}/participants, DELETE /sessions/{id}/participants/{participantId}:
//     staff-managed direct assignment.
//   - POST /appointments/{id}/attendance, DELETE /appointments/{id}/attendance/{participantId}:
//     attendance confirmation and reversal against the ledger.
//   - POST /visits, POST /visits/{id}/end: standalone facility visit check-in
//     and check-out for volunteers.
//   - GET /volunteers, POST /volunteers, GET /volunteers/{id} and the
//     equivalent /residents endpoints: participant directory with aggregate
//     engagement counters.
//   - POST /materialize: triggers a materialization run and returns its report.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
