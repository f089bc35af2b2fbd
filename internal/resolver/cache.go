package resolver

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores resolved signed URLs keyed by block id. Implementations must
// be safe for concurrent use.
type Cache interface {
	// Get returns the cached URL for blockID, or false when absent or no
	// longer trusted.
	Get(blockID string) (string, bool)

	// Put records a freshly resolved URL. Overwrites any existing entry.
	Put(blockID, url string)
}

// cacheEntry pairs a signed URL with the moment it stops being trusted.
type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// URLCache is an LRU-bounded TTL cache. The TTL must stay strictly below
// the upstream signing window: entries expire here before the CDN would
// reject the URL, so a hit is always fetchable.
type URLCache struct {
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration

	// now is swapped out in tests.
	now func() time.Time

	onExpired func()
}

const (
	defaultCacheSize = 1024

	// defaultTTL sits 5 minutes inside the roughly one-hour lifetime of
	// upstream signed URLs.
	defaultTTL = 55 * time.Minute
)

// NewURLCache creates a URLCache holding at most size entries, each trusted
// for ttl after insertion. Non-positive arguments fall back to defaults.
func NewURLCache(size int, ttl time.Duration) *URLCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		// lru.New only errors on a non-positive size, guarded above.
		panic(err)
	}
	return &URLCache{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the URL for blockID if present and unexpired. Expired entries
// are removed so the next resolution supersedes them.
func (c *URLCache) Get(blockID string) (string, bool) {
	entry, ok := c.cache.Get(blockID)
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expiresAt) {
		c.cache.Remove(blockID)
		if c.onExpired != nil {
			c.onExpired()
		}
		return "", false
	}
	return entry.url, true
}

// Put stores url for blockID with a fresh expiry. Last writer wins.
func (c *URLCache) Put(blockID, url string) {
	c.cache.Add(blockID, cacheEntry{
		url:       url,
		expiresAt: c.now().Add(c.ttl),
	})
}

// OnExpired registers fn to be invoked whenever a stale entry is dropped.
// Used to feed the expiry counter without coupling the cache to metrics.
func (c *URLCache) OnExpired(fn func()) {
	c.onExpired = fn
}

// Len reports the number of entries currently held, expired or not.
func (c *URLCache) Len() int {
	return c.cache.Len()
}
