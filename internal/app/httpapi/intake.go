package httpapi

import (
	"io"
	"net/http"

	"github.com/openmuni/grievance-core/internal/app/services/intake"
)

// intakeWebhook accepts a channel-shaped payload from a messaging provider
// and relays the citizen's reply. It is one of the public, unauthenticated
// paths: the provider carries its own signature scheme, not a bearer token
// minted by this service.
func (h *Handler) intakeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAppError(w, requestActor{}, err)
		return
	}

	msg, err := intake.ParseChannelPayload(body)
	if err != nil {
		writeAppError(w, requestActor{}, err)
		return
	}

	reply, err := h.Intake.Process(r.Context(), msg)
	if err != nil {
		writeAppError(w, requestActor{}, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
