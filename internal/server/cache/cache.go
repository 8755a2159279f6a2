// Package cache holds rendered catalog reads for the HTTP API. Entries
// expire after a TTL and the whole cache is flushed whenever the pipeline
// changes an entity.
package cache

import (
	"net/url"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache wraps go-cache with hit and miss counters.
type Cache struct {
	store  *gocache.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache with the given TTL. Expired entries are swept every
// two TTLs.
func New(ttl time.Duration) *Cache {
	return &Cache{
		store: gocache.New(ttl, 2*ttl),
	}
}

// Key builds a cache key from a route name and its query, independent of
// query parameter order.
func Key(route string, query url.Values) string {
	if len(query) == 0 {
		return route
	}
	return route + "?" + query.Encode()
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.store.Flush()
}

// Stats reports cache usage.
type Stats struct {
	Items  int    `json:"items"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{Items: c.store.ItemCount(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
