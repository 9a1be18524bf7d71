// Package cache provides a thread-safe in-process TTL cache with a size
// ceiling, substring invalidation and a background sweep of expired entries.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Defaults applied when Options leaves a field zero
const (
	DefaultTTL           = 5 * time.Minute
	DefaultMaxEntries    = 1000
	DefaultSweepInterval = time.Minute
)

// entry is a cached value with its expiry
type entry struct {
	value     any
	expiresAt time.Time
}

// Options configures a Cache
type Options struct {
	DefaultTTL    time.Duration
	MaxEntries    int
	SweepInterval time.Duration
	Logger        *zap.Logger

	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

// Stats is a point-in-time snapshot of cache utilization
type Stats struct {
	Entries        int   `json:"entries"`
	MaxEntries     int   `json:"max_entries"`
	EstimatedBytes int64 `json:"estimated_bytes"`
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	Evictions      int64 `json:"evictions"`
	Expirations    int64 `json:"expirations"`
}

// Cache is a key/value store with per-entry expiry
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	defaultTTL    time.Duration
	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// New creates a Cache. The background sweep does not run until Start is called.
func New(opts Options) *Cache {
	c := &Cache{
		entries:       make(map[string]entry),
		defaultTTL:    opts.DefaultTTL,
		maxEntries:    opts.MaxEntries,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
		logger:        opts.Logger,
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.maxEntries <= 0 {
		c.maxEntries = DefaultMaxEntries
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Set stores a value with the default TTL
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value that expires after ttl. When the cache is full
// and key is new, the soonest-expiring tenth of the entries is evicted first.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// evictLocked removes the 10% (at least one) entries closest to expiry
func (c *Cache) evictLocked() {
	n := len(c.entries) / 10
	if n < 1 {
		n = 1
	}

	type candidate struct {
		key       string
		expiresAt time.Time
	}
	candidates := make([]candidate, 0, len(c.entries))
	for k, e := range c.entries {
		candidates = append(candidates, candidate{key: k, expiresAt: e.expiresAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].expiresAt.Before(candidates[j].expiresAt)
	})

	// Make room even if maxEntries shrank below the current size
	for len(c.entries)-n >= c.maxEntries {
		n++
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	for _, cand := range candidates[:n] {
		delete(c.entries, cand.key)
	}
	c.evictions.Add(int64(n))
}

// Get returns the value for key. Expired entries are removed and reported absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.lookupLocked(key)
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Has reports whether key holds an unexpired value. It does not touch hit counters.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(key)
	return ok
}

func (c *Cache) lookupLocked(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.expirations.Add(1)
		return entry{}, false
	}
	return e, true
}

// Delete removes a single key
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePattern removes every entry whose key contains substr and
// returns how many were removed.
func (c *Cache) InvalidatePattern(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if strings.Contains(k, substr) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet swept
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were removed
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.expirations.Add(int64(removed))
	return removed
}

// Start runs the background sweep until ctx is cancelled
func (c *Cache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()

		c.logger.Info("Cache sweep started", zap.Duration("interval", c.sweepInterval))

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Cache sweep stopped")
				return
			case <-ticker.C:
				if removed := c.Sweep(); removed > 0 {
					c.logger.Debug("Swept expired cache entries", zap.Int("count", removed))
				}
			}
		}
	}()
}

// Stats returns current utilization. EstimatedBytes counts key lengths plus
// the JSON-encoded size of each value.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	var size int64
	for k, e := range c.entries {
		size += int64(len(k))
		if data, err := json.Marshal(e.value); err == nil {
			size += int64(len(data))
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Entries:        count,
		MaxEntries:     c.maxEntries,
		EstimatedBytes: size,
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Evictions:      c.evictions.Load(),
		Expirations:    c.expirations.Load(),
	}
}
