// Package dedupe drops replayed webhook deliveries. Gateways retry on
// slow acknowledgements, so the same message id can arrive more than
// once.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Cache remembers recently seen ids for a TTL, bounded by a max size
// with LRU eviction.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]*list.Element
	order   *list.List

	now func() time.Time
}

type entry struct {
	id   string
	seen time.Time
}

func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// CheckAndMark reports whether id was already seen within the TTL and
// marks it as seen either way.
func (c *Cache) CheckAndMark(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if el, ok := c.entries[id]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.seen) < c.ttl {
			e.seen = now
			c.order.MoveToFront(el)
			return true
		}
		e.seen = now
		c.order.MoveToFront(el)
		return false
	}

	c.evict(now)
	c.entries[id] = c.order.PushFront(&entry{id: id, seen: now})
	return false
}

// evict drops expired entries and, if still over capacity, the least
// recently used one. Caller holds the lock.
func (c *Cache) evict(now time.Time) {
	for el := c.order.Back(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.seen) < c.ttl {
			break
		}
		prev := el.Prev()
		c.order.Remove(el)
		delete(c.entries, e.id)
		el = prev
	}
	for len(c.entries) >= c.maxSize {
		el := c.order.Back()
		if el == nil {
			return
		}
		e := el.Value.(*entry)
		c.order.Remove(el)
		delete(c.entries, e.id)
	}
}

// Len reports the current number of tracked ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
