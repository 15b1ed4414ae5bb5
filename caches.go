package scriptbus

import (
	"sync"
	"sync/atomic"
)

// cache is a concurrency-safe memo of successful results. It holds at
// most limit entries; once full, new results are not recorded.
type cache[K comparable, V any] struct {
	limit int64
	n     atomic.Int64
	m     sync.Map
}

// Get returns the cached result for k, if any.
func (c *cache[K, V]) Get(k K) (val V, found bool) {
	ent, ok := c.m.Load(k)
	if !ok {
		return val, false
	}
	return ent.(V), true
}

// Set records a successful result for k, if there is room.
func (c *cache[K, V]) Set(k K, v V) {
	if c.n.Add(1) > c.limit {
		c.n.Add(-1)
		return
	}
	if _, loaded := c.m.LoadOrStore(k, v); loaded {
		c.n.Add(-1)
	}
}

// Len returns the number of cached results.
func (c *cache[K, V]) Len() int { return int(c.n.Load()) }
