package usage

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	n       int64
	expires time.Time
}

// MemoryCounter is an in-process Counter. Expired keys read as zero.
type MemoryCounter struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{m: map[string]memEntry{}, now: time.Now}
}

func (c *MemoryCounter) live(key string) (memEntry, bool) {
	e, ok := c.m[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.m, key)
		return memEntry{}, false
	}
	return e, true
}

func (c *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, _ := c.live(key)
	return e.n, nil
}

func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	e.n++
	if !ok && ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.m[key] = e
	return e.n, nil
}

func (c *MemoryCounter) Raise(_ context.Context, key string, n int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if n <= e.n {
		return nil
	}
	e.n = n
	if !ok && ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

// Sweep drops expired keys.
func (c *MemoryCounter) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for k := range c.m {
		if _, ok := c.live(k); !ok {
			dropped++
		}
	}
	return dropped
}
