package service

import (
	"phishguard/internal/model"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultCacheResetInterval = 60 * time.Minute

type cacheEntry struct {
	result     model.ClassificationResult
	computedAt time.Time
}

// ResultCache memoizes classification results per raw domain string. Entries
// are never expired one by one; the whole cache is dropped once the reset
// interval has elapsed.
type ResultCache struct {
	mu        sync.Mutex
	entries   map[string]cacheEntry
	lastReset time.Time
	interval  time.Duration
	clock     Clock
	group     singleflight.Group
}

func NewResultCache(interval time.Duration, clock Clock) *ResultCache {
	if interval <= 0 {
		interval = DefaultCacheResetInterval
	}
	if clock == nil {
		clock = SystemClock
	}
	return &ResultCache{
		entries:   make(map[string]cacheEntry),
		lastReset: clock.Now(),
		interval:  interval,
		clock:     clock,
	}
}

// GetOrCompute returns the cached result for domain, or runs compute once,
// stores its result and returns it. Concurrent misses for the same domain
// share a single compute call.
func (c *ResultCache) GetOrCompute(domain string, compute func() model.ClassificationResult) model.ClassificationResult {
	if res, ok := c.lookup(domain); ok {
		return res
	}

	v, _, _ := c.group.Do(domain, func() (interface{}, error) {
		// A caller that lost the race may find the entry already stored.
		if res, ok := c.lookup(domain); ok {
			return res, nil
		}
		res := compute()
		c.mu.Lock()
		c.entries[domain] = cacheEntry{result: res, computedAt: c.clock.Now()}
		c.mu.Unlock()
		return res, nil
	})
	return v.(model.ClassificationResult)
}

func (c *ResultCache) lookup(domain string) (model.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if now.Sub(c.lastReset) > c.interval {
		c.entries = make(map[string]cacheEntry)
		c.lastReset = now
	}

	e, ok := c.entries[domain]
	return e.result, ok
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.lastReset = c.clock.Now()
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
