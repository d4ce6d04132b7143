package intake

import (
	"context"
	"sync"
)

// MemoryIdentityResolver is a dev/standalone IdentityResolver: it assigns a
// fresh citizen id the first time a (channel, address) registers and
// returns the same id on every later message from that address. The real
// citizen registry this core depends on (§2's "out of scope" credential
// verification) is expected to replace this with a lookup against whatever
// identity directory the deployment already has.
type MemoryIdentityResolver struct {
	mu   sync.Mutex
	next int64
	ids  map[string]int64
}

// NewMemoryIdentityResolver builds a resolver with no registered addresses.
func NewMemoryIdentityResolver() *MemoryIdentityResolver {
	return &MemoryIdentityResolver{ids: make(map[string]int64)}
}

// ResolveCitizenID returns the stable citizen id for (channel, address),
// assigning one on first contact. name is accepted to satisfy the
// IdentityResolver contract but is not required to disambiguate: citizen
// identity is keyed by channel address, matching how the intake machine
// partitions sessions.
func (r *MemoryIdentityResolver) ResolveCitizenID(ctx context.Context, channel, address, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := channel + ":" + address
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	r.next++
	r.ids[key] = r.next
	return r.next, nil
}
