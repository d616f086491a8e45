package dispatch

import (
	"sync"
	"time"
)

// tokenBucket is the dispatcher's admission gate: events beyond the
// sustained per-second rate are dropped rather than queued, so a publish
// storm cannot grow an unbounded backlog behind the fan-out.
type tokenBucket struct {
	mu     sync.Mutex
	rate   float64 // tokens added per second; also the bucket capacity
	tokens float64
	last   time.Time
}

// newTokenBucket creates a gate admitting ratePerSec events per second.
// A non-positive rate disables the gate.
func newTokenBucket(ratePerSec int) *tokenBucket {
	return &tokenBucket{
		rate:   float64(ratePerSec),
		tokens: float64(ratePerSec),
		last:   time.Now(),
	}
}

// allow consumes one token if available.
func (b *tokenBucket) allow(now time.Time) bool {
	if b.rate <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// rateCounter tracks events per second over a 1-second sliding window.
type rateCounter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	lastRate    int
}

// tick records one event and returns the rate observed over the last
// completed window.
func (c *rateCounter) tick(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.windowStart) >= time.Second {
		c.lastRate = c.count
		c.count = 0
		c.windowStart = now
	}
	c.count++
	return c.lastRate
}

// rate returns the rate observed over the last completed window.
func (c *rateCounter) rate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRate
}
