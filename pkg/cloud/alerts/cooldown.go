package alerts

import (
	"sync"
	"time"
)

type cooldownTracker struct {
	period time.Duration
	mu     sync.Mutex
	last   map[string]time.Time
}

func newCooldownTracker(period time.Duration) *cooldownTracker {
	return &cooldownTracker{period: period, last: make(map[string]time.Time)}
}

// allow reports whether key may fire now and records the attempt if so.
func (c *cooldownTracker) allow(key string) bool {
	if c.period <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && time.Since(last) < c.period {
		return false
	}

	c.last[key] = time.Now()

	return true
}
