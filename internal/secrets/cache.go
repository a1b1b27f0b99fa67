package secrets

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// Cached wraps a SecretProvider with a time-bounded in-process cache.
// Concurrent refreshes of the same name collapse into a single backend
// call via singleflight, giving the single-writer refresh discipline:
// under load only one goroutine ever holds a given name's raw value
// outside the cache. A zero TTL disables caching entirely.
type Cached struct {
	inner domain.SecretProvider
	ttl   time.Duration

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

// NewCached wraps inner with a cache holding values for at most ttl.
func NewCached(inner domain.SecretProvider, ttl time.Duration) *Cached {
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Resolve returns a cached value when fresh, otherwise fetches through
// the inner provider. Backend failures are never cached.
func (c *Cached) Resolve(ctx context.Context, name string) (string, error) {
	if c.ttl <= 0 {
		return c.inner.Resolve(ctx, name)
	}

	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.value, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		// Re-check under the flight: another caller may have refreshed
		// while we waited for the group slot.
		c.mu.RLock()
		entry, ok := c.entries[name]
		c.mu.RUnlock()
		if ok && time.Since(entry.fetchedAt) < c.ttl {
			return entry.value, nil
		}

		value, err := c.inner.Resolve(ctx, name)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.entries[name] = cacheEntry{value: value, fetchedAt: time.Now()}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Purge drops every cached value, bounding the exposure window after a
// credential rotation.
func (c *Cached) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Compile-time interface check.
var _ domain.SecretProvider = (*Cached)(nil)
