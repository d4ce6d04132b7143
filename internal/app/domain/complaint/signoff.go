package complaint

import "time"

// CitizenSignoff is the citizen's accept-or-dispute decision on a claimed
// resolution. At most one is ACTIVE (pending or just-decided) per resolution
// cycle; Approved is nil while a dispute awaits department-head review.
type CitizenSignoff struct {
	ID           int64
	ComplaintID  int64
	Cycle        int
	Accepted     bool
	Disputed     bool
	Rating       *int
	DisputeReason    string
	CounterProof     *string
	Approved     *bool
	ReviewReason string
	ReviewerID   *int64
	SignedAt     time.Time
	ReviewedAt   *time.Time
}

// PendingDispute reports whether this signoff is a dispute still awaiting
// department-head review.
func (s CitizenSignoff) PendingDispute() bool {
	return s.Disputed && s.Approved == nil
}
