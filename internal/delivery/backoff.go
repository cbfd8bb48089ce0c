package delivery

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes capped exponential backoff with jitter, grounded on the
// default constants documented by the teacher's pkg/mretry config tests
// (DefaultInitialBackoff=1s, DefaultMaxBackoff=30m, DefaultJitterFactor=0.25):
// baseMs * 2^attempt, capped at maxMs, plus up to jitterFactor of that value
// shaved off at random so a burst of failing deliveries doesn't retry in
// lockstep.
type Backoff struct {
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
	Rand         *rand.Rand
}

// DefaultBackoff mirrors pkg/mretry's DefaultMetadataOutboxConfig values.
func DefaultBackoff() Backoff {
	return Backoff{Base: 1 * time.Second, Max: 30 * time.Minute, JitterFactor: 0.25}
}

// Next returns the delay before the given attempt (1-indexed: the first
// retry is attempt 1).
func (b Backoff) Next(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}

	max := b.Max
	if max <= 0 {
		max = 30 * time.Minute
	}

	raw := float64(base) * math.Pow(2, float64(attempt))
	if raw > float64(max) {
		raw = float64(max)
	}

	jitter := b.JitterFactor
	if jitter <= 0 {
		return time.Duration(raw)
	}

	r := b.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter only, not security-sensitive
	}

	shave := raw * jitter * r.Float64()

	return time.Duration(raw - shave)
}
