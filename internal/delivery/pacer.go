package delivery

import (
	"sync"

	"golang.org/x/time/rate"
)

// Pacer backstops the delivery worker's own per-attempt pacing with an
// in-process token bucket keyed by destination, so one noisy destination
// never starves the rest of a tick — grounded on the teacher-adjacent
// pack's rate.Limiter-per-key shape (infrastructure/ratelimit.RateLimiter).
type Pacer struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	rps         float64
	burst       int
}

// NewPacer constructs a Pacer allowing rps requests/sec per destination,
// with burst headroom.
func NewPacer(rps float64, burst int) *Pacer {
	if rps <= 0 {
		rps = 5
	}

	if burst <= 0 {
		burst = 10
	}

	return &Pacer{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

// Allow reports whether destinationID may send one more delivery right now.
func (p *Pacer) Allow(destinationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[destinationID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rps), p.burst)
		p.limiters[destinationID] = l
	}

	return l.Allow()
}
