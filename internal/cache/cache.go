// Package cache implements the in-memory TTL cache used to avoid redundant
// oracle calls. Expired entries are purged lazily on access; insertion into
// a full cache evicts the entry with the smallest creation time.
package cache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
	hits      int
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int
	ttl     time.Duration
	enabled bool
	log     *logrus.Entry

	now func() time.Time
}

// Stats reports the current table shape for the run report.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	TotalHits int     `json:"total_hits"`
	AvgHits   float64 `json:"avg_hits"`
}

// New creates a cache holding at most maxSize entries with the given default
// TTL. When enabled is false every operation is a silent no-op.
func New(enabled bool, maxSize int, ttl time.Duration, log *logrus.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		ttl:     ttl,
		enabled: enabled,
		log:     log.WithField("component", "cache"),
		now:     time.Now,
	}
}

// Get returns the cached value for key. A missing or expired key returns
// (nil, false); reading an expired entry removes it.
func (c *Cache) Get(key string) (any, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	e.hits++
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL stores value under key with an explicit TTL. Overwriting an existing
// key resets its creation time, expiry, and hit counter. Inserting a new key
// into a full table first evicts the entry with the smallest creation time.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	c.log.WithField("key", key).Debug("cached")
}

// evictOldest removes the entry with the minimum createdAt. Callers hold the
// lock. Eviction is by age, not by recency or hit count.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.createdAt.Before(oldest) {
			oldestKey = key
			oldest = e.createdAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.log.WithField("key", oldestKey).Debug("evicted")
	}
}

func (c *Cache) Delete(key string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Clear() {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.log.Info("cache cleared")
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Size: len(c.entries), MaxSize: c.maxSize}
	for _, e := range c.entries {
		s.TotalHits += e.hits
	}
	if len(c.entries) > 0 {
		s.AvgHits = float64(s.TotalHits) / float64(len(c.entries))
	}
	return s
}
