package lifecycle

import (
	"context"

	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// nextEscalationLevel returns the level one rung up the ladder from current,
// or ok=false if current is already at the top.
func nextEscalationLevel(current complaint.EscalationLevel) (complaint.EscalationLevel, bool) {
	switch current {
	case complaint.LevelNone:
		return complaint.LevelStaff, true
	case complaint.LevelStaff:
		return complaint.LevelDeptHead, true
	case complaint.LevelDeptHead:
		return complaint.LevelAdmin, true
	case complaint.LevelAdmin:
		return complaint.LevelCommissioner, true
	default:
		return complaint.LevelCommissioner, false
	}
}

// Escalate raises c's escalation level by one rung, under the same
// optimistic concurrency control every other mutation uses. c must be a
// recently-read complaint (the scheduler's overdue scan result); if its
// stored version has moved on since, Escalate returns a Conflict error and
// the scheduler skips the complaint for this tick rather than retrying,
// per §4.3's single-pass-per-tick design.
//
// This is not a row in the state transition table: escalation level is an
// organizational-visibility attribute orthogonal to the complaint's state,
// so it is never gated by the lifecycle's role/guard machinery.
func (e *Engine) Escalate(ctx context.Context, c complaint.Complaint, reason audit.ReservedReason) (complaint.Complaint, error) {
	next, ok := nextEscalationLevel(c.EscalationLevel)
	if !ok {
		return c, apperr.InvalidStateTransitionf("complaint %d is already at the top escalation level", c.ID)
	}

	now := e.Clock.Now()
	old := c.EscalationLevel
	c.EscalationLevel = next
	c.Priority = c.Priority.Bump()

	updated, err := e.commitWithAudit(ctx, c, audit.Entry{
		EntityType: "complaint",
		EntityID:   c.ID,
		Action:     audit.Escalation,
		OldValue:   string(old),
		NewValue:   string(next),
		ActorKind:  audit.ActorSystem,
		Reason:     string(reason),
		CreatedAt:  now,
	})
	if err != nil {
		return complaint.Complaint{}, err
	}

	event := audit.Event{
		ComplaintID:  updated.ID,
		FromLevel:    string(old),
		ToLevel:      string(next),
		TriggeredAt:  now,
		Reason:       string(reason),
		NotifiedRole: notifiedRoleFor(next),
	}
	if _, err := e.Audit.AppendEscalationEvent(ctx, event); err != nil {
		e.Log.WithError(err).WithField("complaint_id", updated.ID).Warn("failed to append escalation event")
	}

	if e.Bus != nil {
		if err := e.Bus.PublishEvent(ctx, "complaint.escalated", event); err != nil {
			e.Log.WithError(err).WithField("complaint_id", updated.ID).Warn("failed to publish escalation event")
		}
	}

	return updated, nil
}

// MarkNeedsManualAttention flags a complaint that has exhausted the
// escalation ladder (already at COMMISSIONER) and is still overdue, so it
// surfaces on an administrator's dashboard outside the normal ladder. It is
// a no-op if the flag is already set.
func (e *Engine) MarkNeedsManualAttention(ctx context.Context, c complaint.Complaint, reason audit.ReservedReason) (complaint.Complaint, error) {
	if c.NeedsManualAttention {
		return c, nil
	}
	c.NeedsManualAttention = true

	updated, err := e.commitWithAudit(ctx, c, audit.Entry{
		EntityType: "complaint",
		EntityID:   c.ID,
		Action:     audit.Suspension,
		NewValue:   "needs_manual_attention",
		ActorKind:  audit.ActorSystem,
		Reason:     string(reason),
		CreatedAt:  e.Clock.Now(),
	})
	if err != nil {
		return complaint.Complaint{}, err
	}

	return updated, nil
}

func notifiedRoleFor(level complaint.EscalationLevel) string {
	switch level {
	case complaint.LevelStaff:
		return "STAFF"
	case complaint.LevelDeptHead:
		return "DEPT_HEAD"
	case complaint.LevelAdmin:
		return "ADMIN"
	case complaint.LevelCommissioner:
		return "COMMISSIONER"
	default:
		return ""
	}
}
