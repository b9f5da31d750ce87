package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryCache is an in-process LRU with per-entry TTL.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	clock    clockwork.Clock
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

// NewMemoryCache creates a cache holding at most capacity entries.
func NewMemoryCache(capacity int, clock clockwork.Clock) *MemoryCache {
	if capacity < 1 {
		capacity = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{
		capacity: capacity,
		clock:    clock,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *MemoryCache) Get(_ context.Context, key, hash string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return "", false, nil
	}
	e := el.Value.(Entry)
	if e.Expired(c.clock.Now()) {
		c.removeElement(el)
		return "", false, nil
	}
	if e.Hash != hash {
		return "", false, nil
	}
	c.order.MoveToFront(el)
	return e.Value, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key, hash, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{Key: key, Hash: hash, Value: value, InsertedAt: c.clock.Now(), TTL: ttl}
	if el, ok := c.items[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return nil
	}
	c.items[key] = c.order.PushFront(e)
	if c.order.Len() > c.capacity {
		c.sweepLocked()
	}
	for c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
	}
	return nil
}

func (c *MemoryCache) Peek(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Entry{}, false, nil
	}
	e := el.Value.(Entry)
	if e.Expired(c.clock.Now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	return nil
}

func (c *MemoryCache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(), nil
}

func (c *MemoryCache) sweepLocked() int {
	now := c.clock.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(Entry).Expired(now) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *MemoryCache) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), nil
}

func (c *MemoryCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(Entry).Key)
}
