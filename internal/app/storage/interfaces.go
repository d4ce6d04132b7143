// Package storage declares the persistence contracts the lifecycle engine,
// scheduler, intake machine, and API surface depend on. Concrete
// implementations live in ./memory (tests) and ./postgres (production).
package storage

import (
	"context"
	"time"

	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/app/domain/complaint"
	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/domain/session"
)

// ComplaintFilter narrows a complaint listing.
type ComplaintFilter struct {
	CitizenID    *int64
	DepartmentID *int64
	State        *complaint.State
	Limit        int
	Offset       int
}

// ComplaintStore persists complaint records. Update performs an optimistic
// concurrency check against the Complaint.Version field: if the stored
// version does not match the expected value, it returns an error whose
// apperr.Kind is apperr.Conflict rather than mutating the row.
type ComplaintStore interface {
	Create(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error)
	Get(ctx context.Context, id int64) (complaint.Complaint, error)
	Update(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error)

	List(ctx context.Context, filter ComplaintFilter) ([]complaint.Complaint, error)
	ListPendingRouting(ctx context.Context, limit, offset int) ([]complaint.Complaint, error)
	CountPendingRouting(ctx context.Context) (int64, error)

	// ListOverdue returns non-terminal complaints whose SLA deadline has
	// passed, ordered by (escalation level ascending, deadline ascending, id
	// ascending) per the scheduler's tick ordering requirement.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]complaint.Complaint, error)

	// AddUpvote enforces per-citizen uniqueness at write time and returns the
	// new total. A repeat upvote from the same citizen is a no-op that
	// returns the unchanged count.
	AddUpvote(ctx context.Context, complaintID, citizenID int64) (int, error)

	FindDuplicates(ctx context.Context, lat, lon, radiusMeters float64, since time.Time) ([]reference.DuplicateCandidate, error)
}

// ProofStore persists resolution proofs.
type ProofStore interface {
	Create(ctx context.Context, p complaint.ResolutionProof) (complaint.ResolutionProof, error)
	GetActive(ctx context.Context, complaintID int64) (complaint.ResolutionProof, error)
	ArchiveActive(ctx context.Context, complaintID int64) error
	ListByComplaint(ctx context.Context, complaintID int64) ([]complaint.ResolutionProof, error)
}

// SignoffStore persists citizen sign-offs and dispute reviews.
type SignoffStore interface {
	Create(ctx context.Context, s complaint.CitizenSignoff) (complaint.CitizenSignoff, error)
	Update(ctx context.Context, s complaint.CitizenSignoff) (complaint.CitizenSignoff, error)
	GetPendingDispute(ctx context.Context, complaintID int64) (complaint.CitizenSignoff, error)
	ListByComplaint(ctx context.Context, complaintID int64) ([]complaint.CitizenSignoff, error)
}

// AuditStore persists the append-only audit ledger and its escalation-event
// materialized view. Rows are never updated or deleted once appended.
type AuditStore interface {
	Append(ctx context.Context, e audit.Entry) (audit.Entry, error)
	ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]audit.Entry, error)
	ListByAction(ctx context.Context, action audit.Action, since, until time.Time, limit int) ([]audit.Entry, error)
	ListByActor(ctx context.Context, actorID int64, limit int) ([]audit.Entry, error)

	AppendEscalationEvent(ctx context.Context, ev audit.Event) (audit.Event, error)
	ListEscalationEvents(ctx context.Context, complaintID int64, limit int) ([]audit.Event, error)
}

// Transactor runs fn as a single atomic unit of work: every store call made
// with the ctx passed to fn participates in the same underlying transaction,
// so they either all commit or none do. Implementations must make every
// store method behave identically whether or not a transaction is active in
// ctx, so callers unaware of Transactor still work (see postgres.TxManager,
// memory's direct passthrough).
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionStore persists conversational intake sessions, partitioned by
// channel address.
type SessionStore interface {
	Get(ctx context.Context, channel, address string) (session.Session, bool, error)
	Save(ctx context.Context, s session.Session) error
	Delete(ctx context.Context, channel, address string) error
}

// ReferenceStore provides read-only access to categories, departments, and
// the SLA matrix. Implementations may wrap the read path with a small TTL
// cache, since this data is read-mostly and changes are rare.
type ReferenceStore interface {
	GetCategory(ctx context.Context, id int64) (reference.Category, error)
	GetDepartment(ctx context.Context, id int64) (reference.Department, error)
	GetSLADays(ctx context.Context, departmentID int64, priority string) (int, error)
}
