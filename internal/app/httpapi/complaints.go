package httpapi

import (
	"net/http"
	"strconv"
	"time"

	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/internal/httputil"
	"github.com/openmuni/grievance-core/pkg/apperr"
	"github.com/openmuni/grievance-core/pkg/displayid"
)

type createComplaintRequest struct {
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Location    string                   `json:"location"`
	Lat         *float64                 `json:"lat,omitempty"`
	Lon         *float64                 `json:"lon,omitempty"`
	ImageHandle *string                  `json:"image_handle,omitempty"`
}

type complaintResponse struct {
	ID                   string   `json:"id"`
	CitizenID            int64    `json:"citizen_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Location             string   `json:"location"`
	CategoryID           *int64   `json:"category_id,omitempty"`
	DepartmentID         *int64   `json:"department_id,omitempty"`
	Priority             string   `json:"priority"`
	AIConfidence         float64  `json:"ai_confidence"`
	NeedsManualRoute     bool     `json:"needs_manual_route"`
	State                string   `json:"state"`
	AssignedStaffID      *int64   `json:"assigned_staff_id,omitempty"`
	EscalationLevel      string   `json:"escalation_level"`
	SLADeadline          string   `json:"sla_deadline"`
	UpvoteCount          int      `json:"upvote_count"`
	NeedsManualAttention bool     `json:"needs_manual_attention"`
	Version              int64   `json:"version"`
}

func toComplaintResponse(c complaint.Complaint) complaintResponse {
	return complaintResponse{
		ID:                   displayid.Format(c.CreatedAt.Year(), c.ID),
		CitizenID:            c.CitizenID,
		Title:                c.Title,
		Description:          c.Description,
		Location:             c.Location,
		CategoryID:           c.CategoryID,
		DepartmentID:         c.DepartmentID,
		Priority:             string(c.Priority),
		AIConfidence:         c.AIConfidence,
		NeedsManualRoute:     c.NeedsManualRoute,
		State:                string(c.State),
		AssignedStaffID:      c.AssignedStaffID,
		EscalationLevel:      string(c.EscalationLevel),
		SLADeadline:          c.SLADeadline.Format(http.TimeFormat),
		UpvoteCount:          c.UpvoteCount,
		NeedsManualAttention: c.NeedsManualAttention,
		Version:              c.Version,
	}
}

func (h *Handler) createComplaint(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createComplaintRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	var coords *complaint.Coordinates
	if req.Lat != nil && req.Lon != nil {
		coords = &complaint.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
	}

	created, err := h.Engine.Create(r.Context(), lifecycle.CreateInput{
		CitizenID:   actor.UserID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Coords:      coords,
		ImageHandle: req.ImageHandle,
	})
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusCreated, toComplaintResponse(created))
}

func (h *Handler) getComplaint(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	c, err := h.Complaints.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusOK, toComplaintResponse(c))
}

func (h *Handler) listComplaints(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	offset, limit := httputil.PaginationParams(r, core.DefaultListLimit, core.MaxListLimit)
	filter := storage.ComplaintFilter{Limit: limit, Offset: offset}

	switch actor.Role {
	case identity.RoleCitizen:
		citizenID := actor.UserID
		filter.CitizenID = &citizenID
	case identity.RoleDeptHead:
		filter.DepartmentID = actor.DepartmentID
	}

	list, err := h.Complaints.List(r.Context(), filter)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	out := make([]complaintResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toComplaintResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listPendingRouting(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.isAdmin() {
		writeAppError(w, actor, apperr.Forbiddenf("pending-routing list is admin only"))
		return
	}
	offset, limit := httputil.PaginationParams(r, core.DefaultListLimit, core.MaxListLimit)
	list, err := h.Complaints.ListPendingRouting(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	out := make([]complaintResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toComplaintResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) countPendingRouting(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.isAdmin() {
		writeAppError(w, actor, apperr.Forbiddenf("pending-routing count is admin only"))
		return
	}
	count, err := h.Complaints.CountPendingRouting(r.Context())
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

type applyStateRequest struct {
	TargetState string `json:"target_state"`
	Reason      string `json:"reason,omitempty"`
	Rating      *int   `json:"rating,omitempty"`
}

func (h *Handler) applyState(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	var req applyStateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	updated, err := h.Engine.ApplyTransition(r.Context(), id, complaint.State(req.TargetState), actor.Actor, lifecycle.TransitionContext{
		Reason: req.Reason,
		Rating: req.Rating,
	})
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusOK, toComplaintResponse(updated))
}

func (h *Handler) availableTransitions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	states, err := h.Engine.AvailableTransitions(r.Context(), id, actor.Actor)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"transitions": out})
}

type routeManuallyRequest struct {
	CategoryID   int64  `json:"category_id"`
	DepartmentID int64  `json:"department_id"`
	Reason       string `json:"reason"`
}

func (h *Handler) routeManually(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	var req routeManuallyRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Engine.RouteManually(r.Context(), id, lifecycle.RouteManuallyInput{
		CategoryID:   req.CategoryID,
		DepartmentID: req.DepartmentID,
		Reason:       req.Reason,
	}, actor.Actor)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusOK, toComplaintResponse(updated))
}

type assignStaffRequest struct {
	StaffID int64 `json:"staff_id"`
}

func (h *Handler) assignStaff(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	var req assignStaffRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Engine.AssignStaff(r.Context(), id, req.StaffID, actor.Actor)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusOK, toComplaintResponse(updated))
}

func (h *Handler) upvoteComplaint(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	count, err := h.Complaints.AddUpvote(r.Context(), id, actor.UserID)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"upvote_count": count})
}

type duplicateComplaintResponse struct {
	ComplaintID string  `json:"complaint_id"`
	DistanceM   float64 `json:"distance_m"`
}

// duplicateComplaints answers the reference-data duplicate-detection query
// (§4.2): candidate complaints within radius metres of (lat, lon) filed
// since the given time. It is staff+ only; citizens file through Create and
// never see this check directly. Straight-line distance only, per the
// spec's non-goal of geospatial indexing beyond that.
func (h *Handler) duplicateComplaints(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role == identity.RoleCitizen {
		writeAppError(w, actor, apperr.Forbiddenf("duplicate search is staff and above only"))
		return
	}

	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	lon, err := queryFloat(r, "lon")
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	radius := httputil.QueryInt(r, "radius_m", 250)
	sinceDays := httputil.QueryInt(r, "since_days", 7)
	since := h.Engine.Clock.Now().Add(-time.Duration(sinceDays) * 24 * time.Hour)

	candidates, err := h.Complaints.FindDuplicates(r.Context(), lat, lon, float64(radius), since)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	out := make([]duplicateComplaintResponse, 0, len(candidates))
	for _, d := range candidates {
		c, err := h.Complaints.Get(r.Context(), d.ComplaintID)
		if err != nil {
			continue
		}
		out = append(out, duplicateComplaintResponse{
			ComplaintID: displayid.Format(c.CreatedAt.Year(), c.ID),
			DistanceM:   d.DistanceM,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func queryFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, apperr.InvalidInputf("query parameter %q is required", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.InvalidInputf("query parameter %q must be a number", key)
	}
	return v, nil
}
