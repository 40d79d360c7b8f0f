package cache

import (
	"context"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// DefaultMaxItems is the MemoryCache capacity when none is given.
const DefaultMaxItems = 1000

// MemoryCache is a bounded in-process LRU cache with per-entry TTL.
type MemoryCache struct {
	mu       sync.Mutex
	items    *lru.Cache
	maxItems int
	size     int64
	hits     uint64
	misses   uint64
	now      func() time.Time
}

type memoryEntry struct {
	value   []byte
	created time.Time
	ttl     time.Duration
}

// NewMemoryCache creates a MemoryCache holding at most maxItems entries.
// A non-positive maxItems falls back to DefaultMaxItems.
func NewMemoryCache(maxItems int) *MemoryCache {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	c := &MemoryCache{
		items:    lru.New(maxItems),
		maxItems: maxItems,
		now:      time.Now,
	}
	c.items.OnEvicted = func(_ lru.Key, value any) {
		if e, ok := value.(*memoryEntry); ok {
			c.size -= int64(len(e.value))
		}
	}
	return c
}

// Get returns a fresh value and marks it most recently used.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items.Get(key)
	if !ok {
		c.misses++
		return nil, false, nil
	}
	e := v.(*memoryEntry) //nolint:forcetypeassert // only memoryEntry values are stored
	if expired(e.created, e.ttl, c.now()) {
		c.items.Remove(key)
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value. When the cache is full the least recently
// used entry is evicted.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Remove first so the size bookkeeping sees the old value leave.
	c.items.Remove(key)
	c.items.Add(key, &memoryEntry{
		value:   append([]byte(nil), value...),
		created: c.now(),
		ttl:     ttl,
	})
	c.size += int64(len(value))
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items.Get(key); !ok {
		return false, nil
	}
	c.items.Remove(key)
	return true, nil
}

// Clear drops every entry. Hit and miss counters are kept.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Clear()
	c.size = 0
	return nil
}

// Exists reports whether key holds a fresh entry. It does not count as a
// hit or a miss.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items.Get(key)
	if !ok {
		return false, nil
	}
	e := v.(*memoryEntry) //nolint:forcetypeassert // only memoryEntry values are stored
	if expired(e.created, e.ttl, c.now()) {
		c.items.Remove(key)
		return false, nil
	}
	return true, nil
}

// Stats reports the current item count and hit ratio.
func (c *MemoryCache) Stats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Backend:   KindMemory.String(),
		Items:     int64(c.items.Len()),
		SizeBytes: c.size,
		Capacity:  int64(c.maxItems),
		Hits:      c.hits,
		Misses:    c.misses,
	}, nil
}

// Close is a no-op.
func (c *MemoryCache) Close() error {
	return nil
}
