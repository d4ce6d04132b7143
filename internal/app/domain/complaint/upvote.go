package complaint

import "time"

// Upvote records one citizen's support for a complaint. Uniqueness per
// (complaint, citizen) is enforced at write time by the store (open question
// in the source material: the data model implies it but does not enforce it
// consistently at the boundary).
type Upvote struct {
	ComplaintID int64
	CitizenID   int64
	CreatedAt   time.Time
}
