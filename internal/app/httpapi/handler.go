// Package httpapi exposes the grievance core over HTTP: a gorilla/mux router
// guarded by JWT authentication, dispatching to the lifecycle, resolution,
// and intake services. Every handler decodes a validated actor
// from the request context, calls exactly one service operation, and maps
// the result (or *apperr.Error) to the uniform response envelope.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/openmuni/grievance-core/internal/app/attachment"
	"github.com/openmuni/grievance-core/internal/app/metrics"
	"github.com/openmuni/grievance-core/internal/app/services/intake"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/services/resolution"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/internal/httputil"
	"github.com/openmuni/grievance-core/pkg/logger"
)

// Handler bundles the dependencies every route needs.
type Handler struct {
	Engine     *lifecycle.Engine
	Resolution *resolution.Service
	Intake     *intake.Service
	Complaints storage.ComplaintStore
	Audit      storage.AuditStore
	Attachment attachment.Store
	Log        *logger.Logger

	StartedAt time.Time
}

// NewRouter builds the complete mux.Router for the grievance API, wiring
// JWT auth on every route except the public health/version/webhook paths.
func NewRouter(h *Handler, validator JWTValidator, corsOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.Use(authMiddleware(validator, h.Log))
	if len(corsOrigins) > 0 {
		r.Use(httputil.CORSMiddleware(corsOrigins))
	}

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/system/version", h.systemVersion).Methods(http.MethodGet)
	r.HandleFunc("/system/services", h.systemServices).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/complaints", h.createComplaint).Methods(http.MethodPost)
	r.HandleFunc("/complaints", h.listComplaints).Methods(http.MethodGet)
	r.HandleFunc("/complaints/pending-routing", h.listPendingRouting).Methods(http.MethodGet)
	r.HandleFunc("/complaints/pending-routing/count", h.countPendingRouting).Methods(http.MethodGet)
	r.HandleFunc("/complaints/duplicates", h.duplicateComplaints).Methods(http.MethodGet)
	r.HandleFunc("/complaints/{id}", h.getComplaint).Methods(http.MethodGet)
	r.HandleFunc("/complaints/{id}/state", h.applyState).Methods(http.MethodPost)
	r.HandleFunc("/complaints/{id}/transitions", h.availableTransitions).Methods(http.MethodGet)
	r.HandleFunc("/complaints/{id}/route", h.routeManually).Methods(http.MethodPost)
	r.HandleFunc("/complaints/{id}/assign", h.assignStaff).Methods(http.MethodPost)
	r.HandleFunc("/complaints/{id}/upvote", h.upvoteComplaint).Methods(http.MethodPost)
	r.HandleFunc("/complaints/{id}/proof", h.uploadProof).Methods(http.MethodPost)
	r.HandleFunc("/complaints/{id}/signoff", h.submitSignoff).Methods(http.MethodPost)
	r.HandleFunc("/complaints/{id}/dispute/{signoffID}/review", h.reviewDispute).Methods(http.MethodPost)

	r.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)
	r.HandleFunc("/intake/webhook", h.intakeWebhook).Methods(http.MethodPost)

	return r
}
