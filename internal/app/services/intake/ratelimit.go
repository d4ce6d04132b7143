package intake

import (
	"sync"

	"golang.org/x/time/rate"
)

// addressLimiter hands out one token-bucket limiter per channel address, so
// one citizen flooding the webhook cannot starve others, per §5's
// per-address conversational rate limit.
type addressLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newAddressLimiter(r rate.Limit, burst int) *addressLimiter {
	return &addressLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (a *addressLimiter) allow(key string) bool {
	a.mu.Lock()
	l, ok := a.limiters[key]
	if !ok {
		l = rate.NewLimiter(a.r, a.burst)
		a.limiters[key] = l
	}
	a.mu.Unlock()
	return l.Allow()
}
