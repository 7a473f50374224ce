package orchestrator

import (
	"sync"
	"time"
)

// Cooldown rate-limits owner status notifications per conversation. The
// first check always passes; afterwards a send is allowed once the elapsed
// time reaches the interval.
type Cooldown struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown creates a cooldown gate
func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether a notification may be sent now and, if so, records
// the send time. Elapsed time equal to the interval counts as expired.
func (c *Cooldown) Allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[key]
	if ok && now.Sub(last) < c.interval {
		return false
	}
	c.last[key] = now
	return true
}
