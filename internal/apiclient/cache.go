package apiclient

import (
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	resp    *Response
	expires time.Time
}

// Cache is a bounded GET response cache with a TTL per entry. Expired entries
// are evicted lazily on read.
type Cache struct {
	entries *lru.Cache[string, cacheEntry]
	now     func() time.Time
}

// NewCache builds a cache holding at most size entries.
func NewCache(size int, now func() time.Time) *Cache {
	if size <= 0 {
		size = 256
	}
	if now == nil {
		now = time.Now
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Cache{entries: entries, now: now}
}

// CacheKey derives the cache key for a request.
func CacheKey(method, rawURL string) string {
	return strings.ToUpper(method) + " " + rawURL
}

// Get returns a live entry, evicting it once its TTL has been exceeded.
func (c *Cache) Get(key string) (*Response, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.resp, true
}

// Put stores resp for ttl.
func (c *Cache) Put(key string, resp *Response, ttl time.Duration) {
	if ttl <= 0 || resp == nil {
		return
	}
	c.entries.Add(key, cacheEntry{resp: resp, expires: c.now().Add(ttl)})
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len reports the number of stored entries, including expired ones not yet read.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// InvalidatePrefix drops entries whose URL path starts with prefix and returns
// how many were removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	removed := 0
	for _, key := range c.entries.Keys() {
		_, rawURL, ok := strings.Cut(key, " ")
		if !ok {
			continue
		}
		parsed, err := url.Parse(rawURL)
		if err != nil {
			continue
		}
		if strings.HasPrefix(parsed.Path, prefix) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}
