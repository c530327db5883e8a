package retrieval

import (
	"context"
	"sync"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

// DefaultCacheCapacity is used when a non-positive capacity is requested.
const DefaultCacheCapacity = 256

type cacheKey struct {
	query string
	topK  int
}

// FIFOCache memoizes retrieval results by (query, topK). It holds at most
// capacity entries and evicts the oldest insertion when full. Reads do not
// refresh an entry's position. Safe for concurrent use.
type FIFOCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[cacheKey][]entities.ContextChunk
	order    []cacheKey
}

// NewFIFOCache creates an empty cache.
func NewFIFOCache(capacity int) *FIFOCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &FIFOCache{
		capacity: capacity,
		entries:  make(map[cacheKey][]entities.ContextChunk, capacity),
	}
}

// Get returns a copy of the cached chunks.
func (c *FIFOCache) Get(query string, topK int) ([]entities.ContextChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunks, ok := c.entries[cacheKey{query, topK}]
	if !ok {
		return nil, false
	}
	return append([]entities.ContextChunk(nil), chunks...), true
}

// Put stores chunks. Overwriting an existing key keeps its original
// position in the eviction order.
func (c *FIFOCache) Put(query string, topK int, chunks []entities.ContextChunk) {
	key := cacheKey{query, topK}
	stored := append([]entities.ContextChunk(nil), chunks...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = stored
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = stored
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *FIFOCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheObserver is told about every lookup.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// CachedRetriever serves repeated queries from a FIFOCache and forwards
// misses to the wrapped retriever. Failed lookups are not cached.
type CachedRetriever struct {
	next     ports.ContextRetriever
	cache    *FIFOCache
	observer CacheObserver
}

// NewCachedRetriever wraps next. observer may be nil.
func NewCachedRetriever(next ports.ContextRetriever, cache *FIFOCache, observer CacheObserver) *CachedRetriever {
	if cache == nil {
		cache = NewFIFOCache(0)
	}
	return &CachedRetriever{next: next, cache: cache, observer: observer}
}

// Retrieve implements ports.ContextRetriever.
func (r *CachedRetriever) Retrieve(ctx context.Context, query string, topK int) ([]entities.ContextChunk, error) {
	if chunks, ok := r.cache.Get(query, topK); ok {
		if r.observer != nil {
			r.observer.CacheHit()
		}
		return chunks, nil
	}
	if r.observer != nil {
		r.observer.CacheMiss()
	}

	chunks, err := r.next.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	r.cache.Put(query, topK, chunks)
	return chunks, nil
}
