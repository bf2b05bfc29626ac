package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Ranker selects and caches the best lending market. The system targets one
// asset at a time, so the cache is a single pointer with a freshness stamp.
type Ranker struct {
	feed   Feed
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewRanker constructs a Ranker with the given cache backend and TTL.
func NewRanker(feed Feed, cache Cache, ttl time.Duration, logger zerolog.Logger) *Ranker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Ranker{
		feed:   feed,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "market_ranker").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Best returns the current best market, refreshing the cache when the entry
// is missing or older than the TTL. Stale data is never silently served: a
// failed refresh surfaces as an error.
func (r *Ranker) Best(ctx context.Context) (CachedMarket, error) {
	if entry, ok := r.fresh(ctx); ok {
		return entry, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the lock; a concurrent caller may have refreshed.
	if entry, ok := r.fresh(ctx); ok {
		return entry, nil
	}

	return r.refresh(ctx)
}

// Refresh forces a fetch and re-ranking regardless of cache freshness.
func (r *Ranker) Refresh(ctx context.Context) (CachedMarket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refresh(ctx)
}

func (r *Ranker) fresh(ctx context.Context) (CachedMarket, bool) {
	entry, ok, err := r.cache.Get(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("market cache read failed")
		return CachedMarket{}, false
	}
	if !ok || entry.Age(r.now()) >= r.ttl {
		return CachedMarket{}, false
	}
	return entry, true
}

func (r *Ranker) refresh(ctx context.Context) (CachedMarket, error) {
	markets, err := r.feed.Markets(ctx)
	if err != nil {
		return CachedMarket{}, err
	}

	best, err := SelectBest(markets)
	if err != nil {
		return CachedMarket{}, err
	}

	entry := CachedMarket{Market: best, FetchedAt: r.now()}
	if err := r.cache.Put(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Msg("market cache write failed")
	}

	r.logger.Info().
		Str("asset", best.Asset).
		Float64("total_deposit_apy", best.TotalDepositAPY).
		Msg("best market refreshed")

	return entry, nil
}
