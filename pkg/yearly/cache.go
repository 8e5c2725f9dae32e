package yearly

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is enough to keep a typical train/valid/test window resident
const DefaultCacheSize = 16

type cached struct {
	sample *Sample
}

// CachedLoader memoizes another Loader. Absent years are cached too, so a
// year without data is looked up once. Errors are not cached.
type CachedLoader struct {
	next  Loader
	cache *lru.Cache[int, cached]
}

// NewCachedLoader wraps next with an LRU of size entries
func NewCachedLoader(next Loader, size int) (*CachedLoader, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[int, cached](size)
	if err != nil {
		return nil, fmt.Errorf("create sample cache: %w", err)
	}
	return &CachedLoader{next: next, cache: cache}, nil
}

// Load implements Loader
func (c *CachedLoader) Load(year int) (*Sample, error) {
	if hit, ok := c.cache.Get(year); ok {
		return hit.sample, nil
	}

	sample, err := c.next.Load(year)
	if err != nil {
		return nil, err
	}
	c.cache.Add(year, cached{sample: sample})
	return sample, nil
}

// Len returns the number of cached years
func (c *CachedLoader) Len() int { return c.cache.Len() }

// Purge drops every cached year
func (c *CachedLoader) Purge() { c.cache.Purge() }
