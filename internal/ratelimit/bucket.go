package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a deterministic token bucket refilling at an integer rate
// (tokens/sec) read from the provided Clock.
//
// Refill is tracked in nanosecond-granularity credit to avoid float rounding:
// at a rate of R tokens/sec, one token costs 1e9/R nanoseconds of elapsed
// time.
type Bucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	available int64 // whole tokens
	creditNS  int64 // elapsed nanoseconds not yet converted to a token
	last      time.Time
}

// NewBucket returns a full bucket. A capacity or rate <= 0 disables the
// limiter: Allow always succeeds.
func NewBucket(clock Clock, capacity, rate int64) *Bucket {
	if clock == nil {
		clock = RealClock{}
	}
	return &Bucket{
		clock:     clock,
		capacity:  capacity,
		rate:      rate,
		available: capacity,
		last:      clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity <= 0 || b.rate <= 0 {
		return true
	}

	b.refillLocked()

	if b.available < 1 {
		return false
	}
	b.available--
	return true
}

func (b *Bucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards; move the reference point without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	if elapsed <= 0 {
		return
	}
	b.last = now

	nsPerToken := int64(time.Second) / b.rate
	if nsPerToken <= 0 {
		nsPerToken = 1
	}

	b.creditNS += elapsed
	if b.creditNS < 0 || b.creditNS/nsPerToken >= b.capacity {
		// Overflow or enough elapsed time to fill the bucket outright.
		b.available = b.capacity
		b.creditNS = 0
		return
	}

	refill := b.creditNS / nsPerToken
	b.creditNS -= refill * nsPerToken
	b.available += refill
	if b.available > b.capacity {
		b.available = b.capacity
		b.creditNS = 0
	}
}
