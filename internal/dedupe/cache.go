// ABOUTME: Bounded TTL cache of inbound event IDs that were already handled
// ABOUTME: Lets the bot drop webhook redeliveries and sync replays before they touch dialogue state

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	id     string
	seenAt time.Time
}

// Cache remembers event IDs for ttl, holding at most maxSize of them.
// The list is ordered oldest first so eviction and expiry both pop from the front.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts a janitor that prunes expired IDs.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.janitor(janitorInterval(ttl))
	return c
}

func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

// Claim records id and reports whether this caller is the first to see it.
// A redelivered event gets false and should be dropped.
func (c *Cache) Claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.liveLocked(id, now) {
		return false
	}

	if el, ok := c.index[id]; ok {
		c.order.Remove(el)
		delete(c.index, id)
	}
	for len(c.index) >= c.maxSize {
		c.removeFront()
	}
	c.index[id] = c.order.PushBack(&entry{id: id, seenAt: now})
	return true
}

// Len returns how many IDs are held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *Cache) liveLocked(id string, now time.Time) bool {
	el, ok := c.index[id]
	if !ok {
		return false
	}
	return now.Sub(el.Value.(*entry).seenAt) < c.ttl
}

func (c *Cache) removeFront() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.index, front.Value.(*entry).id)
}

// prune drops expired IDs from the front of the list.
func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if now.Sub(front.Value.(*entry).seenAt) < c.ttl {
			return
		}
		c.removeFront()
	}
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.stop:
			return
		}
	}
}

// Close stops the janitor. Safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
