package poller

import (
	"sync"
	"time"

	"github.com/rickgao/streamwatch/internal/model"
)

// profileCache holds broadcaster profiles with a sliding expiry: every hit
// extends the entry by ttl.
type profileCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	profile model.Broadcaster
	expires time.Time
}

func newProfileCache(ttl time.Duration, now func() time.Time) *profileCache {
	if now == nil {
		now = time.Now
	}
	return &profileCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the profile for id and slides its expiry.
func (c *profileCache) Get(id string) (model.Broadcaster, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return model.Broadcaster{}, false
	}

	now := c.now()
	if !now.Before(e.expires) {
		delete(c.entries, id)
		return model.Broadcaster{}, false
	}

	e.expires = now.Add(c.ttl)
	c.entries[id] = e
	return e.profile, true
}

// Has reports whether id is cached without sliding its expiry.
func (c *profileCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return ok && c.now().Before(e.expires)
}

// Set stores a profile.
func (c *profileCache) Set(profile model.Broadcaster) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[profile.ID] = cacheEntry{
		profile: profile,
		expires: c.now().Add(c.ttl),
	}
}

// Prune removes expired entries and returns how many were removed.
func (c *profileCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *profileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
