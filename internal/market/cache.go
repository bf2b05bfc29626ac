package market

import (
	"context"
	"sync"
	"time"
)

// CachedMarket is the persisted "current best market" pointer. FetchedAt is
// the freshness stamp consumers check against their TTL.
type CachedMarket struct {
	Market    Market    `json:"market"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Age returns how long ago the entry was fetched.
func (c CachedMarket) Age(now time.Time) time.Duration {
	return now.Sub(c.FetchedAt)
}

// Cache stores the single best-market pointer.
type Cache interface {
	Get(ctx context.Context) (CachedMarket, bool, error)
	Put(ctx context.Context, entry CachedMarket) error
}

// MemoryCache is the in-process cache backend used when Redis is not
// configured.
type MemoryCache struct {
	mu    sync.RWMutex
	entry *CachedMarket
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the cached entry, if any.
func (c *MemoryCache) Get(_ context.Context) (CachedMarket, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil {
		return CachedMarket{}, false, nil
	}
	return *c.entry, true, nil
}

// Put stores the entry.
func (c *MemoryCache) Put(_ context.Context, entry CachedMarket) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entry = &entry
	return nil
}

var _ Cache = (*MemoryCache)(nil)
