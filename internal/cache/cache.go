// Package cache provides a small in-memory TTL cache used to avoid
// repeating identical search invocations within a run.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Cache is an in-memory key/value store with per-entry expiry. Safe
// for concurrent use.
type Cache struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	entries    map[string]entry
	now        func() time.Time
}

type entry struct {
	value  any
	expiry time.Time
}

// New creates a cache with the given default TTL.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{
		defaultTTL: defaultTTL,
		entries:    make(map[string]entry),
		now:        time.Now,
	}
}

// Key derives a stable cache key from arbitrary arguments.
func Key(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			data = []byte("?")
		}
		parts = append(parts, string(data))
	}
	sort.Strings(parts)
	joined, _ := json.Marshal(parts)
	sum := md5.Sum(joined)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value when present and unexpired. Expired
// entries are removed on read.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiry) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value under the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores a value with an explicit TTL.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiry: c.now().Add(ttl)}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
