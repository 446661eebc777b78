package workspace

import (
	"sync"
	"time"
)

// Cache remembers detected project roots keyed by the directory the
// detection started from
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

// NewCache creates a root cache. A ttl <= 0 keeps entries until Clear.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) expired(e *cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.After(e.expiresAt)
}

// Get returns the cached project for dir, or nil if absent or expired.
// An expired entry is dropped.
func (c *Cache) Get(dir string) *Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[dir]
	if !ok {
		return nil
	}
	if c.expired(entry, c.now()) {
		delete(c.entries, dir)
		return nil
	}
	return entry.info
}

// Set stores the project detected for dir
func (c *Cache) Set(dir string, info *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[dir] = &cacheEntry{
		info:      info,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Forget drops every entry that resolved to root and returns how many of
// them were still live
func (c *Cache) Forget(root string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for dir, entry := range c.entries {
		if entry.info != nil && entry.info.Root == root {
			if !c.expired(entry, now) {
				count++
			}
			delete(c.entries, dir)
		}
	}
	return count
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
}

// CleanExpired removes expired entries and returns how many were dropped
func (c *Cache) CleanExpired() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for dir, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, dir)
			count++
		}
	}
	return count
}

// Size returns the number of live entries in cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	count := 0
	for _, entry := range c.entries {
		if !c.expired(entry, now) {
			count++
		}
	}
	return count
}
