// Package reference models the read-only reference data (categories,
// departments, SLA matrix) the core consumes by id. Ownership of this data
// lives with an external editor; the core never mutates it.
package reference

// Category names a classification bucket (e.g. ROAD, SANITATION).
type Category struct {
	ID   int64
	Name string
}

// Department names an organizational unit that owns a category of
// complaints and the user who heads it.
type Department struct {
	ID        int64
	Name      string
	HeadUserID int64
}

// SLAEntry gives the default resolution window, in days, for a
// (department, priority) pair.
type SLAEntry struct {
	DepartmentID int64
	Priority     string
	SLADays      int
}

// DuplicateCandidate is one match from a duplicate-detection query by
// location proximity and time window.
type DuplicateCandidate struct {
	ComplaintID int64
	DistanceM   float64
}
