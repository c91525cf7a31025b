package rest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kestrelworks/roost/internal/logging"
)

// DefaultTTL is how long a cached lookup stays fresh.
const DefaultTTL = 30 * time.Minute

// fetcher is the lookup the cache memoizes. *Client satisfies it.
type fetcher interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Cache memoizes idempotent GET lookups by URL. Expiry is per entry and
// checked lazily on read; there is no sweep timer. Concurrent misses for the
// same key share a single in-flight request: the pending call is stored, not
// just its settled result.
type Cache struct {
	client fetcher
	ttl    time.Duration
	log    *logging.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// NewCache creates a cache over client. A non-positive ttl uses DefaultTTL.
func NewCache(client fetcher, ttl time.Duration, log *logging.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		log:     log.Sub("cache"),
	}
}

// Fetch returns the cached value for url, or performs the lookup and caches
// the outcome. A failed lookup is cached as nil for the full TTL so repeated
// calls do not turn into a retry loop; the triggering caller still receives
// the error.
func (c *Cache) Fetch(ctx context.Context, url string) (any, error) {
	if v, ok := c.lookup(url); ok {
		return v, nil
	}

	v, err, shared := c.group.Do(url, func() (any, error) {
		// A concurrent caller may have stored the value while this call
		// waited on the group.
		if v, ok := c.lookup(url); ok {
			return v, nil
		}

		var out any
		if err := c.client.GetJSON(ctx, url, &out); err != nil {
			c.store(url, nil)
			c.log.Warn().Err(err).Str("url", url).Msg("lookup failed, caching miss")
			return nil, err
		}
		c.store(url, out)
		return out, nil
	})
	if shared {
		c.log.Debug().Str("url", url).Msg("joined in-flight lookup")
	}
	return v, err
}

// Clear drops every entry unconditionally, expired or not.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of stored entries, including expired ones not yet
// evicted by a read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(url string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, url)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(url string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{value: v, expires: time.Now().Add(c.ttl)}
}
