package correlation

import (
	"context"
	"sync"
	"time"

	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/metrics"
	"pairwatch/pkg/logger"
)

// CachedTicks is one cache entry: the raw ticks retrieved for a symbol and
// when they were retrieved
type CachedTicks struct {
	Symbol      string                 `json:"symbol"`
	RetrievedAt time.Time              `json:"retrieved_at"`
	Ticks       market_data.TickSeries `json:"ticks"`
}

// TickCache keeps the most recent tick retrieval per symbol for the cache
// TTL. A fresh entry is served as-is without re-checking the requested range,
// which keeps one monitor pass from fetching the same symbol once per pair.
type TickCache struct {
	mu       sync.Mutex
	provider market_data.Provider
	ttl      time.Duration
	entries  map[string]CachedTicks
	hits     int64
	misses   int64
	log      *logger.Logger
}

func NewTickCache(provider market_data.Provider, ttl time.Duration) *TickCache {
	return &TickCache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]CachedTicks),
		log:      logger.Get(),
	}
}

// SetTTL changes how long a retrieval stays fresh
func (c *TickCache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Ticks returns ticks for the symbol. With cacheOnly set it returns whatever
// is cached regardless of age and never touches the provider. Otherwise a
// fresh entry is served directly and a stale or missing one is refetched over
// the requested range.
func (c *TickCache) Ticks(ctx context.Context, symbol string, from, to time.Time, cacheOnly bool) (market_data.TickSeries, error) {
	c.mu.Lock()
	entry, ok := c.entries[symbol]
	if cacheOnly {
		c.mu.Unlock()
		if !ok {
			return nil, nil
		}
		return entry.Ticks, nil
	}
	if ok && c.ttl > 0 && time.Since(entry.RetrievedAt) < c.ttl {
		c.hits++
		c.mu.Unlock()
		metrics.RecordCacheLookup(true)
		return entry.Ticks, nil
	}
	c.misses++
	c.mu.Unlock()
	metrics.RecordCacheLookup(false)

	ticks, err := c.provider.Ticks(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[symbol] = CachedTicks{Symbol: symbol, RetrievedAt: time.Now().UTC(), Ticks: ticks}
	c.mu.Unlock()

	c.log.Debugf("Retrieved %d ticks for %s", len(ticks), symbol)
	return ticks, nil
}

// Snapshot returns a copy of every cache entry in no particular order
func (c *TickCache) Snapshot() []CachedTicks {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CachedTicks, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	return out
}

// Restore replaces the cache contents wholesale
func (c *TickCache) Restore(entries []CachedTicks) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]CachedTicks, len(entries))
	for _, entry := range entries {
		c.entries[entry.Symbol] = entry
	}
}

// Clear drops every cached entry and resets the counters
func (c *TickCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]CachedTicks)
	c.hits = 0
	c.misses = 0
}

// Stats returns how many lookups were served from cache and how many went to
// the provider
func (c *TickCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
