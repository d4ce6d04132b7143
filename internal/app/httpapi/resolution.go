package httpapi

import (
	"net/http"

	"github.com/openmuni/grievance-core/internal/app/attachment"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/services/resolution"
	"github.com/openmuni/grievance-core/internal/httputil"
)

// proofResponse wraps a resolution proof with the short-lived fetch URL the
// client uses to retrieve the evidence image (§4.7's "Proof submit &
// fetch-URL"). Resolving the URL is best-effort: a failure to mint one never
// fails the upload itself, it just omits the field.
type proofResponse struct {
	complaint.ResolutionProof
	FetchURL string `json:"fetch_url,omitempty"`
}

func (h *Handler) withFetchURL(r *http.Request, proof complaint.ResolutionProof) proofResponse {
	resp := proofResponse{ResolutionProof: proof}
	if h.Attachment == nil {
		return resp
	}
	url, err := h.Attachment.FetchURL(r.Context(), proof.ImageHandle, attachment.DefaultURLTTL)
	if err == nil {
		resp.FetchURL = url
	}
	return resp
}

type uploadProofRequest struct {
	ImageHandle string  `json:"image_handle"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Remarks     string  `json:"remarks,omitempty"`
}

func (h *Handler) uploadProof(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	var req uploadProofRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	proof, err := h.Resolution.UploadProof(r.Context(), resolution.UploadProofInput{
		ComplaintID: id,
		ImageHandle: req.ImageHandle,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Remarks:     req.Remarks,
	}, actor.Actor)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.withFetchURL(r, proof))
}

type submitSignoffRequest struct {
	Accepted      bool    `json:"accepted"`
	Rating        *int    `json:"rating,omitempty"`
	Disputed      bool    `json:"disputed"`
	DisputeReason string  `json:"dispute_reason,omitempty"`
	CounterProof  *string `json:"counter_proof_handle,omitempty"`
}

func (h *Handler) submitSignoff(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	var req submitSignoffRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	signoff, err := h.Resolution.SubmitSignoff(r.Context(), resolution.SubmitSignoffInput{
		ComplaintID:   id,
		Accepted:      req.Accepted,
		Rating:        req.Rating,
		Disputed:      req.Disputed,
		DisputeReason: req.DisputeReason,
		CounterProof:  req.CounterProof,
	}, actor.Actor)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusCreated, signoff)
}

type reviewDisputeRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

func (h *Handler) reviewDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathComplaintID(r)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	// The signoff id path segment identifies the dispute being reviewed; the
	// lookup by complaint id already resolves the one pending dispute, so it
	// is only used here to validate the URL shape.
	if _, err := pathSignoffID(r); err != nil {
		writeAppError(w, actor, err)
		return
	}
	var req reviewDisputeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Resolution.ReviewDispute(r.Context(), resolution.ReviewDisputeInput{
		ComplaintID: id,
		Approve:     req.Approve,
		Reason:      req.Reason,
	}, actor.Actor)
	if err != nil {
		writeAppError(w, actor, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
