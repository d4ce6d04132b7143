package lifecycle

import (
	"context"
	"strconv"
	"time"

	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// AssignStaff assigns (or reassigns) the staff member responsible for a
// complaint. It is kept separate from the transition table because
// assignment is orthogonal to state: it is what lets FILED->IN_PROGRESS's
// guard pass, and it is also legal to reassign a complaint already
// IN_PROGRESS without touching state.
func (e *Engine) AssignStaff(ctx context.Context, complaintID int64, staffID int64, actor identity.Actor) (complaint.Complaint, error) {
	if !roleCanAssign(actor.Role) {
		return complaint.Complaint{}, apperr.Forbiddenf("role %s may not assign staff", actor.Role)
	}

	c, err := e.Complaints.Get(ctx, complaintID)
	if err != nil {
		return complaint.Complaint{}, err
	}
	if c.State.IsTerminal() {
		return complaint.Complaint{}, apperr.InvalidStateTransitionf("complaint %d is in terminal state %s", c.ID, c.State)
	}
	if err := requireDeptMatch(c, actor); err != nil {
		return complaint.Complaint{}, err
	}

	old := c.AssignedStaffID
	c.AssignedStaffID = &staffID

	oldValue := ""
	if old != nil {
		oldValue = formatInt64(*old)
	}
	updated, err := e.commitWithAudit(ctx, c, audit.Entry{
		EntityType: "complaint",
		EntityID:   c.ID,
		Action:     audit.Assignment,
		OldValue:   oldValue,
		NewValue:   formatInt64(staffID),
		ActorID:    actor.UserID,
		ActorKind:  actorKind(actor),
		CreatedAt:  e.Clock.Now(),
	})
	if err != nil {
		return complaint.Complaint{}, err
	}

	return updated, nil
}

func roleCanAssign(role identity.Role) bool {
	switch role {
	case identity.RoleDeptHead, identity.RoleAdmin, identity.RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// RouteManuallyInput is the payload for an administrator resolving a
// needs-manual-routing complaint (or rerouting a misclassified one).
type RouteManuallyInput struct {
	CategoryID   int64
	DepartmentID int64
	Reason       string
}

// RouteManually assigns a category and department to a complaint outside the
// classifier's automatic path, recomputes its SLA deadline against the new
// department, and clears the manual-routing flag. It is legal for any
// non-terminal complaint, not just ones the classifier flagged, so an
// administrator can correct a misrouted complaint later.
func (e *Engine) RouteManually(ctx context.Context, complaintID int64, in RouteManuallyInput, actor identity.Actor) (complaint.Complaint, error) {
	if actor.Role != identity.RoleAdmin && actor.Role != identity.RoleSuperAdmin {
		return complaint.Complaint{}, apperr.Forbiddenf("role %s may not route complaints", actor.Role)
	}
	if in.Reason == "" {
		return complaint.Complaint{}, apperr.InvalidInputf("a reason is required for manual routing")
	}

	c, err := e.Complaints.Get(ctx, complaintID)
	if err != nil {
		return complaint.Complaint{}, err
	}
	if c.State.IsTerminal() {
		return complaint.Complaint{}, apperr.InvalidStateTransitionf("complaint %d is in terminal state %s", c.ID, c.State)
	}

	if _, err := e.Reference.GetCategory(ctx, in.CategoryID); err != nil {
		return complaint.Complaint{}, err
	}
	if _, err := e.Reference.GetDepartment(ctx, in.DepartmentID); err != nil {
		return complaint.Complaint{}, err
	}

	slaDays, err := e.resolveSLADays(ctx, &in.DepartmentID, c.Priority)
	if err != nil {
		return complaint.Complaint{}, err
	}

	oldDept := c.DepartmentID
	now := e.Clock.Now()
	categoryID := in.CategoryID
	departmentID := in.DepartmentID
	c.CategoryID = &categoryID
	c.DepartmentID = &departmentID
	c.NeedsManualRoute = false
	c.SLADays = slaDays
	// Recompute the deadline from the complaint's original filed time, not
	// the moment it is routed, so rerouting never grants extra SLA runway.
	c.SLADeadline = c.CreatedAt.Add(time.Duration(slaDays) * 24 * time.Hour)

	oldValue := ""
	if oldDept != nil {
		oldValue = formatInt64(*oldDept)
	}
	updated, err := e.commitWithAudit(ctx, c, audit.Entry{
		EntityType: "complaint",
		EntityID:   c.ID,
		Action:     audit.Routing,
		OldValue:   oldValue,
		NewValue:   formatInt64(departmentID),
		ActorID:    actor.UserID,
		ActorKind:  actorKind(actor),
		Reason:     in.Reason,
		CreatedAt:  now,
	})
	if err != nil {
		return complaint.Complaint{}, err
	}

	return updated, nil
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}
