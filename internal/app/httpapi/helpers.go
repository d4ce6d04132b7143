package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/openmuni/grievance-core/internal/httputil"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

// pathComplaintID extracts and parses the {id} mux path variable.
func pathComplaintID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.InvalidInputf("invalid complaint id %q", raw)
	}
	return id, nil
}

func pathSignoffID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["signoffID"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.InvalidInputf("invalid signoff id %q", raw)
	}
	return id, nil
}

func requireActor(w http.ResponseWriter, r *http.Request) (requestActor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeAppError(w, requestActor{}, apperr.New(apperr.Unauthorized, "missing authenticated actor"))
		return requestActor{}, false
	}
	return actor, true
}
