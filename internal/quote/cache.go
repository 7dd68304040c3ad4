package quote

import (
	"context"
	"sync"
	"time"
)

// chartCache is a thread-safe in-memory cache of parsed chart blocks,
// keyed by ticker and range, with a fixed TTL.
type chartCache struct {
	mu      sync.RWMutex
	entries map[string]chartEntry
	ttl     time.Duration
}

type chartEntry struct {
	block     *chartResult
	expiresAt time.Time
}

func newChartCache(ttl time.Duration) *chartCache {
	return &chartCache{
		entries: make(map[string]chartEntry),
		ttl:     ttl,
	}
}

// get returns the cached block for key, or nil, false if absent or expired.
func (c *chartCache) get(key string) (*chartResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.block, true
}

func (c *chartCache) set(key string, block *chartResult) {
	c.mu.Lock()
	c.entries[key] = chartEntry{
		block:     block,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// flush removes all entries.
func (c *chartCache) flush() {
	c.mu.Lock()
	c.entries = make(map[string]chartEntry)
	c.mu.Unlock()
}

// rateLimiter is a simple token bucket: maxTokens requests per refill period.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

func newRateLimiter(maxTokens int, refillRate time.Duration) *rateLimiter {
	return &rateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// wait blocks until a token is available or the context is cancelled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			// Check again after a short sleep.
		}
	}
}

// refill adds tokens based on elapsed time. Must be called with mu held.
func (rl *rateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed >= rl.refillRate {
		periods := int(elapsed / rl.refillRate)
		rl.tokens += periods
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = rl.lastRefill.Add(time.Duration(periods) * rl.refillRate)
	}
}
