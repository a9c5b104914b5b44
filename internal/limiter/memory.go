package limiter

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter is a process-local CounterStore. It exists for tests and
// single-instance deployments; shared limits need a store all instances
// can reach.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: map[string]*memoryWindow{},
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (c *MemoryCounter) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *MemoryCounter) IncrementWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, exists := c.windows[key]
	if !exists || !w.expiresAt.After(now) {
		// New window: the TTL is set here and never refreshed afterwards.
		w = &memoryWindow{expiresAt: now.Add(ttl)}
		c.windows[key] = w
	}

	w.count++
	return w.count, nil
}

func (c *MemoryCounter) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, exists := c.windows[key]
	if !exists {
		return 0, nil
	}

	ttl := w.expiresAt.Sub(c.now())
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
