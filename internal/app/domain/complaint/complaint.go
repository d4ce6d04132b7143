// Package complaint holds the pivot entity of the grievance system and its
// tightly-owned satellites (resolution proof, citizen sign-off, upvotes).
package complaint

import (
	"strconv"
	"time"
)

// State is the lifecycle state of a complaint.
type State string

const (
	Filed      State = "FILED"
	InProgress State = "IN_PROGRESS"
	Resolved   State = "RESOLVED"
	Closed     State = "CLOSED"
	Cancelled  State = "CANCELLED"
	Hold       State = "HOLD"
)

// IsTerminal reports whether s admits no further transitions.
func (s State) IsTerminal() bool {
	return s == Closed || s == Cancelled
}

// Priority is the urgency tier assigned at intake and raised on escalation.
type Priority string

const (
	Low      Priority = "LOW"
	Medium   Priority = "MEDIUM"
	High     Priority = "HIGH"
	Critical Priority = "CRITICAL"
)

var priorityOrder = map[Priority]int{Low: 0, Medium: 1, High: 2, Critical: 3}

// Bump returns the next priority step, capped at Critical.
func (p Priority) Bump() Priority {
	switch p {
	case Low:
		return Medium
	case Medium:
		return High
	case High, Critical:
		return Critical
	default:
		return p
	}
}

// Less reports whether p is strictly lower urgency than other.
func (p Priority) Less(other Priority) bool {
	return priorityOrder[p] < priorityOrder[other]
}

// EscalationLevel is the organizational tier a complaint is currently
// surfaced to.
type EscalationLevel string

const (
	LevelNone         EscalationLevel = "NONE"
	LevelStaff        EscalationLevel = "STAFF"
	LevelDeptHead     EscalationLevel = "DEPT_HEAD"
	LevelAdmin        EscalationLevel = "ADMIN"
	LevelCommissioner EscalationLevel = "COMMISSIONER"
)

var escalationOrder = map[EscalationLevel]int{
	LevelNone:         0,
	LevelStaff:        1,
	LevelDeptHead:     2,
	LevelAdmin:        3,
	LevelCommissioner: 4,
}

// Rank returns the ordinal position of the level for monotonicity checks.
func (l EscalationLevel) Rank() int { return escalationOrder[l] }

// Coordinates is an optional lat/lon pair attached to the filed location.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Complaint is the pivot entity: a single citizen-filed civic grievance.
type Complaint struct {
	ID        int64
	CitizenID int64
	CreatedAt time.Time

	Title       string
	Description string
	Location    string
	Coords      *Coordinates

	CategoryID        *int64
	DepartmentID      *int64
	Priority          Priority
	AIConfidence      float64
	AIReasoning       string
	NeedsManualRoute  bool

	State             State
	AssignedStaffID   *int64
	EscalationLevel   EscalationLevel
	SLADays           int
	SLADeadline       time.Time
	StartedAt         *time.Time
	ResolvedAt        *time.Time
	ClosedAt          *time.Time

	ImageHandle   *string
	ImageAnalysis string

	UpvoteCount          int
	CitizenSatisfaction  *int

	NeedsManualAttention bool

	Version int64
}

// GetID returns the complaint id as a string key.
func (c Complaint) GetID() string { return formatInt(c.ID) }

// GetAccountID returns the owning citizen id as a string.
func (c Complaint) GetAccountID() string { return formatInt(c.CitizenID) }

// SetCreatedAt sets CreatedAt; complaints set CreatedAt at intake and never
// afterwards.
func (c *Complaint) SetCreatedAt(t time.Time) { c.CreatedAt = t }

// SetUpdatedAt is a no-op: Complaint does not track a generic "updated at"
// field, tracking instead the specific started/resolved/closed instants the
// lifecycle invariants reference.
func (c *Complaint) SetUpdatedAt(time.Time) {}

func formatInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
