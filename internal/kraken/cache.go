package kraken

import (
	"sync"
	"time"
)

// ttlCache is a single-value cache expired purely by TTL. Writes never
// invalidate it; reads within one strategy tick should hit the cached
// response instead of repeating a broker call.
type ttlCache[T any] struct {
	mu      sync.Mutex
	value   T
	setAt   time.Time
	ttl     time.Duration
	present bool
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{ttl: ttl}
}

func (c *ttlCache[T]) get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present || time.Since(c.setAt) > c.ttl {
		var zero T
		return zero, false
	}
	return c.value, true
}

func (c *ttlCache[T]) set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.setAt = time.Now()
	c.present = true
}

// age returns how old the cached value is, or zero when empty.
func (c *ttlCache[T]) age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present {
		return 0
	}
	return time.Since(c.setAt)
}
