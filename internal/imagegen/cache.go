package imagegen

import (
	"sync"
	"time"
)

type cacheItem struct {
	data      []byte
	expiresAt time.Time
}

// DefaultMaxEntries bounds the image cache. Query strings are part of the
// key, so distinct intervals would otherwise accumulate until they expire.
const DefaultMaxEntries = 256

// Cache keeps rendered images in memory for a fixed TTL. Keys should
// include the data revision so a new import renders fresh images.
type Cache struct {
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheItem
	now        func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		entries:    make(map[string]cacheItem),
		now:        time.Now,
	}
}

// Get returns the cached image if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.entries[key]
	if !ok || c.now().After(item.expiresAt) {
		return nil, false
	}
	return item.data, true
}

// Set stores an image and drops any expired entries. When still full, the
// entry closest to expiry goes first.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, item := range c.entries {
		if now.After(item.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheItem{data: data, expiresAt: now.Add(c.ttl)}

	for len(c.entries) > c.maxEntries {
		oldest, first := "", true
		for k, item := range c.entries {
			if first || item.expiresAt.Before(c.entries[oldest].expiresAt) {
				oldest, first = k, false
			}
		}
		delete(c.entries, oldest)
	}
}

// GetOrRender returns the cached image for key, calling render on a miss.
// Render errors are not cached.
func (c *Cache) GetOrRender(key string, render func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}
	data, err := render()
	if err != nil {
		return nil, err
	}
	c.Set(key, data)
	return data, nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
