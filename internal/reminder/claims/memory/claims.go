package memory

import (
	"context"
	"sync"
	"time"

	"corpdesk/internal/platform/clock"
)

// Claims is a process-local claim set. Expired claims are pruned on Claim.
type Claims struct {
	mu      sync.Mutex
	clock   clock.Clock
	expires map[string]time.Time
}

func New(c clock.Clock) *Claims {
	if c == nil {
		c = clock.Real{}
	}
	return &Claims{clock: c, expires: make(map[string]time.Time)}
}

func (c *Claims) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, exp := range c.expires {
		if !now.Before(exp) {
			delete(c.expires, k)
		}
	}
	if _, held := c.expires[key]; held {
		return false, nil
	}
	c.expires[key] = now.Add(ttl)
	return true, nil
}

func (c *Claims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.expires, key)
	c.mu.Unlock()
	return nil
}

func (c *Claims) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expires)
}
