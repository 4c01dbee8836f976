// Package cache provides the in-process store for computed aggregates and
// pass-through external snapshots. Entries carry their creation time;
// freshness is judged by callers at read time. Nothing evicts on a timer,
// which keeps all temporal policy with the regeneration cycle.
package cache

import (
	"sync"
	"time"
)

// Entry is one cached payload stamped with its creation time.
type Entry struct {
	CreatedAt time.Time
	Data      any
}

// FreshWithin reports whether the entry was created within the given window
// of now.
func (e Entry) FreshWithin(window time.Duration, now time.Time) bool {
	return now.Sub(e.CreatedAt) < window
}

// Cache is a keyed entry store shared between the regeneration cycle, the
// pass-through cachers, and the read API.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// New constructs an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Has reports whether a key is present.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Find returns the entry for a key.
func (c *Cache) Find(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Add stores an entry, overwriting any existing value for the key.
func (c *Cache) Add(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Delete removes a key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// DeleteAndAdd replaces the entry for a key. The removal and insertion
// happen under one lock acquisition: no reader ever observes the key in a
// half-written state.
func (c *Cache) DeleteAndAdd(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.entries[key] = entry
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
