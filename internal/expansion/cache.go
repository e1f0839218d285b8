package expansion

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// ttlCache is a small in-memory, size-bounded, TTL-evicting cache keyed by a
// (prefix, normalized text) pair, mirroring the teacher's l1Cache
// (internal/cache/tiered_cache.go) mutex+map+expiresAt shape and the
// original query_expansion.py TTLCache's hash-keyed entries and
// evict-oldest-20%-when-full policy.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]ttlEntry
	maxSize int
	ttl     time.Duration
}

type ttlEntry struct {
	value     Result
	expiresAt time.Time
}

func newTTLCache(maxSize int, ttl time.Duration) *ttlCache {
	return &ttlCache{entries: make(map[string]ttlEntry), maxSize: maxSize, ttl: ttl}
}

func cacheKey(prefix, text string) string {
	sum := sha256.Sum256([]byte(text))
	return prefix + ":" + hex.EncodeToString(sum[:16])
}

func (c *ttlCache) get(prefix, text string) (Result, bool) {
	key := cacheKey(prefix, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Result{}, false
	}
	return entry.value, true
}

func (c *ttlCache) set(prefix, text string, value Result) {
	key := cacheKey(prefix, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = ttlEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// evictLocked removes expired entries first, then the oldest 20% by
// expiration if the cache is still at capacity. Caller holds c.mu.
func (c *ttlCache) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].expiresAt.Before(c.entries[keys[j]].expiresAt)
	})
	toRemove := len(keys) / 5
	for _, k := range keys[:toRemove] {
		delete(c.entries, k)
	}
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]ttlEntry)
}
