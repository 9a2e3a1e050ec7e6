package render

import (
	"container/list"
	"sync"

	"github.com/samsaffron/mdview/internal/blocks"
)

// DefaultCacheCapacity bounds the number of cached fragments.
const DefaultCacheCapacity = 100

// Cache holds rendered fragments keyed by blocks.Key.
// Eviction is by insertion order: once full, Put drops the entry that was
// inserted first. Get never changes that order.
//
// A preview only touches its cache from its rendering goroutine, but one
// Cache may be injected into several previews and one-shot renders through
// preview.Options, so access is serialized.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion

	hits      int
	misses    int
	evictions int
}

// cacheEntry holds a cache key-value pair for the insertion list.
type cacheEntry struct {
	key      string
	fragment string
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Size      int `json:"size"`
	Capacity  int `json:"capacity"`
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Evictions int `json:"evictions"`
}

// NewCache creates a cache holding at most capacity fragments.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached fragment for a block.
func (c *Cache) Get(b blocks.Block) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[blocks.Key(b)]; ok {
		c.hits++
		return elem.Value.(*cacheEntry).fragment, true
	}
	c.misses++
	return "", false
}

// Put stores the fragment for a block. Replacing an existing key keeps its
// original insertion position.
func (c *Cache) Put(b blocks.Block, fragment string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := blocks.Key(b)
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).fragment = fragment
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, fragment: fragment})
}

// evictOldest removes the first inserted entry.
// Must be called with lock held.
func (c *Cache) evictOldest() {
	oldest := c.order.Front()
	if oldest == nil {
		return
	}
	delete(c.entries, oldest.Value.(*cacheEntry).key)
	c.order.Remove(oldest)
	c.evictions++
}

// Clear removes all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the current number of cached fragments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the maximum number of cached fragments.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:      c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
