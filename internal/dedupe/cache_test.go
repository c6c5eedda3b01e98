// ABOUTME: Tests for the event ID dedupe cache
// ABOUTME: Validates first-claim semantics, TTL expiry, size bound and concurrent claims

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache, *stepClock) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(ttl, size)
	c.now = clock.Now
	return c, clock
}

func held(c *Cache, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

func TestCache_ClaimOnce(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)
	defer cache.Close()

	assert.True(t, cache.Claim("update-1"))
	assert.False(t, cache.Claim("update-1"), "redelivery must not be claimed again")
	assert.True(t, cache.Claim("update-2"))
}

func TestCache_ExpiredIDCanBeClaimedAgain(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)
	defer cache.Close()

	assert.True(t, cache.Claim("update-1"))
	clock.Advance(time.Minute)
	assert.True(t, cache.Claim("update-1"))
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache, clock := newTestCache(time.Hour, 3)
	defer cache.Close()

	for i := 1; i <= 4; i++ {
		assert.True(t, cache.Claim(fmt.Sprintf("e%d", i)))
		clock.Advance(time.Second)
	}

	assert.Equal(t, 3, cache.Len())
	assert.False(t, held(cache, "e1"))
	assert.True(t, held(cache, "e4"))
}

func TestCache_Prune(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)
	defer cache.Close()

	cache.Claim("old")
	clock.Advance(30 * time.Second)
	cache.Claim("new")
	clock.Advance(45 * time.Second)

	cache.prune()
	assert.Equal(t, 1, cache.Len())
	assert.True(t, held(cache, "new"))
	assert.False(t, held(cache, "old"))
}

func TestCache_ConcurrentClaims(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cache.Claim("same-event") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestCache_CloseTwice(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}

func TestJanitorInterval(t *testing.T) {
	assert.Equal(t, time.Second, janitorInterval(100*time.Millisecond))
	assert.Equal(t, 5*time.Second, janitorInterval(10*time.Second))
	assert.Equal(t, time.Minute, janitorInterval(time.Hour))
}
