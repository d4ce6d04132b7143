package complaint

import "time"

// ResolutionProof is mandatory evidence a complaint has been fixed, gating
// the IN_PROGRESS → RESOLVED transition. At most one is active per
// resolution cycle; an approved dispute archives the current proof and opens
// a new cycle.
type ResolutionProof struct {
	ID           int64
	ComplaintID  int64
	ImageHandle  string
	CapturedAt   time.Time
	Lat          float64
	Lon          float64
	StaffID      int64
	Remarks      string
	Verified     bool
	Cycle        int
	Active       bool
	CreatedAt    time.Time
}
