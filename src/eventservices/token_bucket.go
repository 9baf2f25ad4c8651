package eventservices

import (
	"sync"
	"time"
)

// TokenBucket is a lock-guarded rate limiter refilled at an hourly rate up to
// a burst cap. Take fails silently when empty; callers drop the signal with a
// rate-limited reason rather than blocking.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	hourlyRate float64
	last       time.Time
	now        func() time.Time
}

func NewTokenBucket(hourlyRate, burst float64, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}

	return &TokenBucket{
		tokens:     burst,
		burst:      burst,
		hourlyRate: hourlyRate,
		last:       now(),
		now:        now,
	}
}

func (b *TokenBucket) refillLocked() {
	t := b.now()
	elapsed := t.Sub(b.last).Hours()
	if elapsed <= 0 {
		return
	}

	b.tokens += elapsed * b.hourlyRate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = t
}

// Take consumes one token, reporting whether one was available.
func (b *TokenBucket) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}

func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}
