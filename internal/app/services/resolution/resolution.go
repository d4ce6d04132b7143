// Package resolution implements the proof-of-work and citizen sign-off
// subsystem (C8): a staff member must attach photographic proof before a
// complaint can be marked RESOLVED, and the citizen then accepts (closing
// it) or disputes that resolution; a RESOLVED complaint the citizen does not
// act on is closed by the scheduler's auto-close sweep once the window ends.
package resolution

import (
	"context"
	"time"

	"github.com/openmuni/grievance-core/internal/app/clock"
	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// casRetryPolicy bounds how many times a caller reattempts a mutation that
// races the lifecycle engine's optimistic concurrency check, per §5.
var casRetryPolicy = core.RetryPolicy{Attempts: 3, InitialBackoff: 10 * time.Millisecond, Multiplier: 2}

// Service orchestrates proof upload, resolution, and citizen sign-off/dispute
// review on top of the lifecycle engine, which remains the sole writer of
// complaint state.
type Service struct {
	Engine     *lifecycle.Engine
	Proofs     storage.ProofStore
	Signoffs   storage.SignoffStore
	Complaints storage.ComplaintStore
	Clock      clock.Clock
}

// New builds a resolution Service. clk may be nil, in which case the wall
// clock is used, matching lifecycle.New's convention.
func New(engine *lifecycle.Engine, proofs storage.ProofStore, signoffs storage.SignoffStore, complaints storage.ComplaintStore, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{Engine: engine, Proofs: proofs, Signoffs: signoffs, Complaints: complaints, Clock: clk}
}

// Descriptor advertises the resolution service's architectural placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "resolution-signoff",
		Domain:       "lifecycle",
		Layer:        core.LayerEngine,
		Capabilities: []string{"upload-proof", "resolve", "signoff", "dispute-review"},
	}
}

// UploadProofInput is the payload for attaching resolution evidence.
type UploadProofInput struct {
	ComplaintID int64
	ImageHandle string
	Lat, Lon    float64
	Remarks     string
}

// UploadProof records a staff member's evidence that a complaint has been
// fixed. It does not itself resolve the complaint; Resolve does, gated on an
// active proof existing. Uploading a new proof while one is already active
// (a staff member correcting a bad photo before resolving) supersedes it.
func (s *Service) UploadProof(ctx context.Context, in UploadProofInput, actor identity.Actor) (complaint.ResolutionProof, error) {
	if actor.Role != identity.RoleStaff && actor.Role != identity.RoleDeptHead {
		return complaint.ResolutionProof{}, apperr.Forbiddenf("role %s may not upload resolution proof", actor.Role)
	}
	if in.ImageHandle == "" {
		return complaint.ResolutionProof{}, apperr.InvalidInputf("an image handle is required")
	}

	c, err := s.Complaints.Get(ctx, in.ComplaintID)
	if err != nil {
		return complaint.ResolutionProof{}, err
	}
	if c.State != complaint.InProgress {
		return complaint.ResolutionProof{}, apperr.InvalidStateTransitionf("complaint %d is not in progress", c.ID)
	}
	if actor.Role == identity.RoleStaff && (c.AssignedStaffID == nil || *c.AssignedStaffID != actor.UserID) {
		return complaint.ResolutionProof{}, apperr.Forbiddenf("only the assigned staff member may upload proof")
	}

	cycle, err := s.currentCycle(ctx, in.ComplaintID)
	if err != nil {
		return complaint.ResolutionProof{}, err
	}
	if err := s.Proofs.ArchiveActive(ctx, in.ComplaintID); err != nil {
		return complaint.ResolutionProof{}, apperr.Wrap(apperr.Internal, "archive previous proof", err)
	}

	return s.Proofs.Create(ctx, complaint.ResolutionProof{
		ComplaintID: in.ComplaintID,
		ImageHandle: in.ImageHandle,
		CapturedAt:  s.Clock.Now(),
		Lat:         in.Lat,
		Lon:         in.Lon,
		StaffID:     actor.UserID,
		Remarks:     in.Remarks,
		Cycle:       cycle,
	})
}

func (s *Service) currentCycle(ctx context.Context, complaintID int64) (int, error) {
	proofs, err := s.Proofs.ListByComplaint(ctx, complaintID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "list proofs", err)
	}
	max := 0
	for _, p := range proofs {
		if p.Active {
			// A superseding upload stays in the active proof's cycle.
			return p.Cycle, nil
		}
		if p.Cycle > max {
			max = p.Cycle
		}
	}
	return max + 1, nil
}

// Resolve marks an IN_PROGRESS complaint RESOLVED. The lifecycle engine's
// transition guard enforces that an active proof exists.
func (s *Service) Resolve(ctx context.Context, complaintID int64, actor identity.Actor) (complaint.Complaint, error) {
	var result complaint.Complaint
	err := core.Retry(ctx, casRetryPolicy, func() error {
		updated, err := s.Engine.ApplyTransition(ctx, complaintID, complaint.Resolved, actor, lifecycle.TransitionContext{})
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// SubmitSignoffInput is the citizen's response to a claimed resolution.
type SubmitSignoffInput struct {
	ComplaintID    int64
	Accepted       bool
	Rating         *int
	Disputed       bool
	DisputeReason  string
	CounterProof   *string
}

// SubmitSignoff records the citizen's accept-or-dispute decision. An
// acceptance closes the complaint; a dispute leaves it RESOLVED, pending
// department-head review via ReviewDispute.
func (s *Service) SubmitSignoff(ctx context.Context, in SubmitSignoffInput, actor identity.Actor) (complaint.CitizenSignoff, error) {
	if actor.Role != identity.RoleCitizen {
		return complaint.CitizenSignoff{}, apperr.Forbiddenf("only the filing citizen may sign off")
	}
	if in.Accepted == in.Disputed {
		return complaint.CitizenSignoff{}, apperr.InvalidInputf("sign-off must either accept or dispute, not both or neither")
	}
	if in.Disputed && in.DisputeReason == "" {
		return complaint.CitizenSignoff{}, apperr.InvalidInputf("a dispute reason is required")
	}

	c, err := s.Complaints.Get(ctx, in.ComplaintID)
	if err != nil {
		return complaint.CitizenSignoff{}, err
	}
	if c.State != complaint.Resolved {
		return complaint.CitizenSignoff{}, apperr.InvalidStateTransitionf("complaint %d is not resolved", c.ID)
	}
	if c.CitizenID != actor.UserID {
		return complaint.CitizenSignoff{}, apperr.Forbiddenf("citizen does not own this complaint")
	}

	proof, err := s.Proofs.GetActive(ctx, in.ComplaintID)
	if err != nil {
		return complaint.CitizenSignoff{}, err
	}

	signoff, err := s.Signoffs.Create(ctx, complaint.CitizenSignoff{
		ComplaintID:   in.ComplaintID,
		Cycle:         proof.Cycle,
		Accepted:      in.Accepted,
		Disputed:      in.Disputed,
		Rating:        in.Rating,
		DisputeReason: in.DisputeReason,
		CounterProof:  in.CounterProof,
		SignedAt:      s.Clock.Now(),
	})
	if err != nil {
		return complaint.CitizenSignoff{}, apperr.Wrap(apperr.Internal, "create signoff", err)
	}

	if in.Accepted {
		err := core.Retry(ctx, casRetryPolicy, func() error {
			_, err := s.Engine.ApplyTransition(ctx, in.ComplaintID, complaint.Closed, actor, lifecycle.TransitionContext{
				SignoffAccepted: true,
				Rating:          in.Rating,
			})
			return err
		})
		if err != nil {
			return complaint.CitizenSignoff{}, err
		}
	}

	return signoff, nil
}

// ReviewDisputeInput is a department head's decision on a pending dispute.
type ReviewDisputeInput struct {
	ComplaintID int64
	Approve     bool
	Reason      string
}

// ReviewDispute records a department head's approve/reject decision on the
// complaint's pending dispute. Approval archives the current proof and
// reopens the complaint to IN_PROGRESS for a new resolution cycle; rejection
// leaves the complaint RESOLVED, awaiting the auto-close sweep.
func (s *Service) ReviewDispute(ctx context.Context, in ReviewDisputeInput, actor identity.Actor) (complaint.CitizenSignoff, error) {
	if actor.Role != identity.RoleDeptHead {
		return complaint.CitizenSignoff{}, apperr.Forbiddenf("only a department head may review a dispute")
	}
	if in.Reason == "" {
		return complaint.CitizenSignoff{}, apperr.InvalidInputf("a review reason is required")
	}

	c, err := s.Complaints.Get(ctx, in.ComplaintID)
	if err != nil {
		return complaint.CitizenSignoff{}, err
	}
	if actor.DepartmentID == nil || c.DepartmentID == nil || *actor.DepartmentID != *c.DepartmentID {
		return complaint.CitizenSignoff{}, apperr.Forbiddenf("department head does not own this complaint's department")
	}

	pending, err := s.Signoffs.GetPendingDispute(ctx, in.ComplaintID)
	if err != nil {
		return complaint.CitizenSignoff{}, err
	}

	now := s.Clock.Now()
	approved := in.Approve
	pending.Approved = &approved
	pending.ReviewReason = in.Reason
	pending.ReviewerID = &actor.UserID
	pending.ReviewedAt = &now

	updated, err := s.Signoffs.Update(ctx, pending)
	if err != nil {
		return complaint.CitizenSignoff{}, apperr.Wrap(apperr.Internal, "update signoff", err)
	}

	if in.Approve {
		if err := s.Proofs.ArchiveActive(ctx, in.ComplaintID); err != nil {
			return complaint.CitizenSignoff{}, apperr.Wrap(apperr.Internal, "archive disputed proof", err)
		}
		err := core.Retry(ctx, casRetryPolicy, func() error {
			_, err := s.Engine.ApplyTransition(ctx, in.ComplaintID, complaint.InProgress, actor, lifecycle.TransitionContext{
				DisputeApproved: true,
			})
			return err
		})
		if err != nil {
			return complaint.CitizenSignoff{}, err
		}
	}

	return updated, nil
}
