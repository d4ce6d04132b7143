package lifecycle

import (
	"context"
	"time"

	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// TransitionContext carries the per-call payload a transition guard or apply
// function may need beyond the complaint row itself.
type TransitionContext struct {
	// Reason is required by any rule whose Guard checks RequireReason.
	Reason string
	// SignoffAccepted must be true for the RESOLVED->CLOSED transition when
	// invoked by the owning citizen after accepting a resolution.
	SignoffAccepted bool
	// DisputeApproved must be true for the RESOLVED->IN_PROGRESS transition,
	// set by the resolution service only after it has recorded the dept
	// head's approval on the pending signoff.
	DisputeApproved bool
	// Rating is the citizen's satisfaction score carried by an accepted
	// sign-off into RESOLVED->CLOSED.
	Rating *int
}

// guardFunc performs the contextual checks a rule needs beyond role
// membership: ownership, required payload fields, and store-backed
// preconditions (active proof exists, pending dispute exists).
type guardFunc func(ctx context.Context, e *Engine, c complaint.Complaint, actor identity.Actor, tctx TransitionContext) error

// listableFunc is the subset of a guard evaluated for AvailableTransitions:
// structural preconditions only, never payload fields the caller has not
// supplied yet (e.g. a reason).
type listableFunc func(ctx context.Context, e *Engine, c complaint.Complaint, actor identity.Actor) bool

// applyFunc mutates c in place for the transition and returns any audit
// entries to append in addition to the standard STATE_CHANGE entry.
type applyFunc func(ctx context.Context, e *Engine, c *complaint.Complaint, actor identity.Actor, tctx TransitionContext, now time.Time) ([]audit.Entry, error)

type rule struct {
	From, To complaint.State
	Roles    []identity.Role
	Guard    guardFunc
	Listable listableFunc
	Apply    applyFunc
}

func (r rule) roleAllowed(role identity.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func requireOwnership(c complaint.Complaint, actor identity.Actor) error {
	if actor.Role == identity.RoleCitizen && actor.UserID != c.CitizenID {
		return apperr.Forbiddenf("citizen does not own this complaint")
	}
	return nil
}

func requireDeptMatch(c complaint.Complaint, actor identity.Actor) error {
	if actor.Role != identity.RoleDeptHead {
		return nil
	}
	if actor.DepartmentID == nil || c.DepartmentID == nil || *actor.DepartmentID != *c.DepartmentID {
		return apperr.Forbiddenf("department head does not own this complaint's department")
	}
	return nil
}

func requireReason(tctx TransitionContext) error {
	if tctx.Reason == "" {
		return apperr.InvalidInputf("a reason is required for this transition")
	}
	return nil
}

// rules encodes spec.md §4.1's transition table. Escalation-level mutation
// and admin manual routing are not rows here: they are the dedicated
// Engine.Escalate and Engine.RouteManually operations, since neither is a
// state change in the (from, to) sense this table models.
var rules = []rule{
	{
		From:  complaint.Filed,
		To:    complaint.InProgress,
		Roles: []identity.Role{identity.RoleStaff, identity.RoleDeptHead, identity.RoleAdmin, identity.RoleSuperAdmin},
		Guard: func(_ context.Context, _ *Engine, c complaint.Complaint, actor identity.Actor, _ TransitionContext) error {
			if c.AssignedStaffID == nil {
				return apperr.InvalidStateTransitionf("complaint has no assigned staff")
			}
			if actor.Role == identity.RoleStaff && *c.AssignedStaffID != actor.UserID {
				return apperr.Forbiddenf("only the assigned staff member may start work")
			}
			return requireDeptMatch(c, actor)
		},
		Listable: func(_ context.Context, _ *Engine, c complaint.Complaint, _ identity.Actor) bool {
			return c.AssignedStaffID != nil
		},
		Apply: func(_ context.Context, _ *Engine, c *complaint.Complaint, _ identity.Actor, _ TransitionContext, now time.Time) ([]audit.Entry, error) {
			if c.StartedAt == nil {
				c.StartedAt = &now
			}
			return nil, nil
		},
	},
	{
		From:  complaint.Filed,
		To:    complaint.Cancelled,
		Roles: []identity.Role{identity.RoleCitizen, identity.RoleAdmin, identity.RoleSuperAdmin},
		Guard: func(_ context.Context, _ *Engine, c complaint.Complaint, actor identity.Actor, _ TransitionContext) error {
			return requireOwnership(c, actor)
		},
	},
	{
		From:  complaint.Filed,
		To:    complaint.Hold,
		Roles: []identity.Role{identity.RoleDeptHead, identity.RoleAdmin, identity.RoleSuperAdmin},
		Guard: func(_ context.Context, _ *Engine, c complaint.Complaint, actor identity.Actor, tctx TransitionContext) error {
			if err := requireDeptMatch(c, actor); err != nil {
				return err
			}
			return requireReason(tctx)
		},
	},
	{
		From:  complaint.InProgress,
		To:    complaint.Resolved,
		Roles: []identity.Role{identity.RoleStaff, identity.RoleDeptHead},
		Guard: func(ctx context.Context, e *Engine, c complaint.Complaint, actor identity.Actor, _ TransitionContext) error {
			if actor.Role == identity.RoleStaff && (c.AssignedStaffID == nil || *c.AssignedStaffID != actor.UserID) {
				return apperr.Forbiddenf("only the assigned staff member may resolve this complaint")
			}
			if err := requireDeptMatch(c, actor); err != nil {
				return err
			}
			if _, err := e.Proofs.GetActive(ctx, c.ID); err != nil {
				return apperr.New(apperr.ProofRequired, "a resolution proof must be uploaded before resolving")
			}
			return nil
		},
		Listable: func(ctx context.Context, e *Engine, c complaint.Complaint, _ identity.Actor) bool {
			_, err := e.Proofs.GetActive(ctx, c.ID)
			return err == nil
		},
		Apply: func(_ context.Context, _ *Engine, c *complaint.Complaint, _ identity.Actor, _ TransitionContext, now time.Time) ([]audit.Entry, error) {
			c.ResolvedAt = &now
			return nil, nil
		},
	},
	{
		From:  complaint.InProgress,
		To:    complaint.Hold,
		Roles: []identity.Role{identity.RoleDeptHead, identity.RoleAdmin},
		Guard: func(_ context.Context, _ *Engine, c complaint.Complaint, actor identity.Actor, tctx TransitionContext) error {
			if err := requireDeptMatch(c, actor); err != nil {
				return err
			}
			return requireReason(tctx)
		},
	},
	{
		From:  complaint.InProgress,
		To:    complaint.Cancelled,
		Roles: []identity.Role{identity.RoleAdmin, identity.RoleSuperAdmin},
		Guard: func(_ context.Context, _ *Engine, _ complaint.Complaint, _ identity.Actor, tctx TransitionContext) error {
			return requireReason(tctx)
		},
	},
	{
		From:  complaint.Resolved,
		To:    complaint.Closed,
		Roles: []identity.Role{identity.RoleCitizen, identity.RoleSystem},
		Guard: func(_ context.Context, _ *Engine, c complaint.Complaint, actor identity.Actor, tctx TransitionContext) error {
			if actor.Role == identity.RoleCitizen {
				if err := requireOwnership(c, actor); err != nil {
					return err
				}
				if !tctx.SignoffAccepted {
					return apperr.InvalidInputf("a sign-off acceptance is required to close")
				}
				return nil
			}
			return requireReason(tctx)
		},
		Apply: func(_ context.Context, _ *Engine, c *complaint.Complaint, _ identity.Actor, tctx TransitionContext, now time.Time) ([]audit.Entry, error) {
			c.ClosedAt = &now
			if tctx.Rating != nil {
				c.CitizenSatisfaction = tctx.Rating
			}
			return nil, nil
		},
	},
	{
		From:  complaint.Resolved,
		To:    complaint.InProgress,
		Roles: []identity.Role{identity.RoleDeptHead},
		Guard: func(_ context.Context, _ *Engine, c complaint.Complaint, actor identity.Actor, tctx TransitionContext) error {
			if err := requireDeptMatch(c, actor); err != nil {
				return err
			}
			if !tctx.DisputeApproved {
				return apperr.InvalidInputf("an approved dispute is required to reopen")
			}
			return nil
		},
		Listable: func(ctx context.Context, e *Engine, c complaint.Complaint, _ identity.Actor) bool {
			_, err := e.Signoffs.GetPendingDispute(ctx, c.ID)
			return err == nil
		},
		Apply: func(_ context.Context, e *Engine, c *complaint.Complaint, _ identity.Actor, _ TransitionContext, now time.Time) ([]audit.Entry, error) {
			oldDeadline := c.SLADeadline
			oldPriority := c.Priority
			c.Priority = c.Priority.Bump()
			c.EscalationLevel = complaint.LevelNone
			c.ResolvedAt = nil
			c.ClosedAt = nil
			reducedDays := int(float64(c.SLADays) * e.Config.DisputeSLAFraction)
			if reducedDays < 1 {
				reducedDays = 1
			}
			c.SLADeadline = now.Add(time.Duration(reducedDays) * 24 * time.Hour)

			extra := []audit.Entry{{
				EntityType: "complaint",
				EntityID:   c.ID,
				Action:     audit.SLAUpdate,
				OldValue:   oldDeadline.Format(time.RFC3339),
				NewValue:   c.SLADeadline.Format(time.RFC3339),
				ActorKind:  audit.ActorSystem,
				Reason:     string(audit.ReasonDisputeApproved),
				CreatedAt:  now,
			}}
			if oldPriority != c.Priority {
				extra = append(extra, audit.Entry{
					EntityType: "complaint",
					EntityID:   c.ID,
					Action:     audit.Assignment,
					OldValue:   string(oldPriority),
					NewValue:   string(c.Priority),
					ActorKind:  audit.ActorSystem,
					Reason:     string(audit.ReasonDisputeApproved),
					CreatedAt:  now,
				})
			}
			return extra, nil
		},
	},
	{
		From:  complaint.Hold,
		To:    complaint.InProgress,
		Roles: []identity.Role{identity.RoleDeptHead, identity.RoleAdmin},
		Guard: func(_ context.Context, _ *Engine, c complaint.Complaint, actor identity.Actor, _ TransitionContext) error {
			return requireDeptMatch(c, actor)
		},
	},
	{
		From:  complaint.Hold,
		To:    complaint.Cancelled,
		Roles: []identity.Role{identity.RoleAdmin, identity.RoleSuperAdmin},
	},
}

func findRule(from, to complaint.State) (rule, bool) {
	for _, r := range rules {
		if r.From == from && r.To == to {
			return r, true
		}
	}
	return rule{}, false
}

// ApplyTransition is the single entry point for every complaint state
// mutation in the system. It validates the (from, to) pair against the
// transition table, checks role and contextual guards, mutates the
// complaint, persists it under optimistic concurrency control, and appends
// the audit trail. Callers are responsible for retrying on a Conflict error
// per §5.
func (e *Engine) ApplyTransition(ctx context.Context, complaintID int64, to complaint.State, actor identity.Actor, tctx TransitionContext) (complaint.Complaint, error) {
	c, err := e.Complaints.Get(ctx, complaintID)
	if err != nil {
		return complaint.Complaint{}, err
	}
	if c.State.IsTerminal() {
		return complaint.Complaint{}, apperr.InvalidStateTransitionf("complaint %d is in terminal state %s", c.ID, c.State)
	}

	r, ok := findRule(c.State, to)
	if !ok {
		return complaint.Complaint{}, apperr.InvalidStateTransitionf("no transition from %s to %s", c.State, to)
	}
	if !r.roleAllowed(actor.Role) {
		return complaint.Complaint{}, apperr.Forbiddenf("role %s may not perform %s -> %s", actor.Role, c.State, to)
	}
	if r.Guard != nil {
		if err := r.Guard(ctx, e, c, actor, tctx); err != nil {
			return complaint.Complaint{}, err
		}
	}

	now := e.Clock.Now()
	from := c.State
	var extraAudits []audit.Entry
	if r.Apply != nil {
		extraAudits, err = r.Apply(ctx, e, &c, actor, tctx, now)
		if err != nil {
			return complaint.Complaint{}, err
		}
	}
	c.State = to

	entries := append([]audit.Entry{{
		EntityType: "complaint",
		EntityID:   c.ID,
		Action:     audit.StateChange,
		OldValue:   string(from),
		NewValue:   string(to),
		ActorID:    actor.UserID,
		ActorKind:  actorKind(actor),
		Reason:     tctx.Reason,
		CreatedAt:  now,
	}}, extraAudits...)

	updated, err := e.commitWithAudit(ctx, c, entries...)
	if err != nil {
		return complaint.Complaint{}, err
	}

	return updated, nil
}

// AvailableTransitions returns the subset of target states actor may invoke
// on complaintID right now, given its role, ownership, and store-backed
// structural preconditions. It never evaluates payload-only guards (e.g. a
// required reason), since those are supplied at call time rather than known
// in advance.
func (e *Engine) AvailableTransitions(ctx context.Context, complaintID int64, actor identity.Actor) ([]complaint.State, error) {
	c, err := e.Complaints.Get(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if c.State.IsTerminal() {
		return nil, nil
	}

	var out []complaint.State
	for _, r := range rules {
		if r.From != c.State || !r.roleAllowed(actor.Role) {
			continue
		}
		if actor.Role == identity.RoleCitizen && actor.UserID != c.CitizenID {
			continue
		}
		if err := requireDeptMatch(c, actor); err != nil {
			continue
		}
		if r.Listable != nil && !r.Listable(ctx, e, c, actor) {
			continue
		}
		out = append(out, r.To)
	}
	return out, nil
}

func actorKind(actor identity.Actor) audit.ActorKind {
	if actor.IsSystem() {
		return audit.ActorSystem
	}
	return audit.ActorUser
}
