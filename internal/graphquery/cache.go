package graphquery

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

const (
	// DefaultCacheSize bounds the query cache.
	DefaultCacheSize = 256
	// DefaultCacheTTL expires entries even when untouched.
	DefaultCacheTTL = 60 * time.Second
)

type cacheEntry struct {
	key        string
	repository string
	value      any
	expiresAt  time.Time
}

// queryCache is an LRU with per-entry TTL, keyed by method plus a hash
// of the normalised arguments. Entries remember which repository their
// arguments referenced so writes can invalidate by repo.
type queryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
}

func newQueryCache(capacity int, ttl time.Duration) *queryCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &queryCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *queryCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

func (c *queryCache) put(key, repository string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.repository = repository
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:        key,
		repository: repository,
		value:      value,
		expiresAt:  time.Now().Add(c.ttl),
	})
	c.entries[key] = elem

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// clearRepository drops every entry whose arguments referenced the repo.
func (c *queryCache) clearRepository(repository string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*cacheEntry).repository == repository {
			c.removeLocked(elem)
			removed++
		}
		elem = next
	}
	return removed
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *queryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

// cacheKey hashes the normalised arguments. Struct field order fixes
// the JSON encoding, so equal requests hash identically and boolean
// variants hash apart.
func cacheKey(method string, args any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		// Unencodable args never collide with real keys.
		return method + ":raw:" + time.Now().String()
	}
	sum := sha256.Sum256(encoded)
	return method + ":" + hex.EncodeToString(sum[:])
}
