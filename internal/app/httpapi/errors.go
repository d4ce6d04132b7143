package httpapi

import (
	"errors"
	"net/http"

	"github.com/openmuni/grievance-core/pkg/apperr"
)

// errorResponse is the uniform failure body every handler returns: a closed
// error kind, a human-readable message, and optional structured details.
// Administrators see Details in full; other roles never see it (writeAppError
// drops it for a non-admin actor).
type errorResponse struct {
	ErrorKind string         `json:"error_kind"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// statusForKind maps the closed apperr.Kind taxonomy to an HTTP status once,
// at the API boundary, so no handler needs its own switch.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.InvalidStateTransition:
		return http.StatusConflict
	case apperr.ProofRequired:
		return http.StatusUnprocessableEntity
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.DependencyUnavailable:
		return http.StatusServiceUnavailable
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError renders err at the API boundary. Internal-kind errors never
// leak their cause to the caller; every other kind surfaces its message, and
// details are added only for administrators, per §7's propagation policy (administrators see the full
// taxonomy, citizens/staff see action-oriented messages generated upstream).
func writeAppError(w http.ResponseWriter, actor requestActor, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.New(apperr.Internal, "internal error")
	}
	status := statusForKind(appErr.Kind)
	body := errorResponse{ErrorKind: string(appErr.Kind), Message: appErr.Message}
	if appErr.Kind == apperr.Internal {
		body.Message = "internal error"
	}
	if actor.isAdmin() {
		body.Details = appErr.Details
	}
	writeJSON(w, status, body)
}
