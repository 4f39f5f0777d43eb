package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairwatch/internal/domain/market_data"
)

func TestTickCacheServesFreshEntries(t *testing.T) {
	calls := 0
	provider := &mockProvider{
		ticksFn: func(symbol string, from, to time.Time) market_data.TickSeries {
			calls++
			return market_data.TickSeries{{Time: time.Now().UTC(), Ask: float64(calls)}}
		},
	}
	cache := NewTickCache(provider, 200*time.Millisecond)
	ctx := context.Background()
	from, to := time.Now().Add(-time.Minute), time.Now()

	first, err := cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	time.Sleep(250 * time.Millisecond)

	third, err := cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NotEqual(t, first[0].Ask, third[0].Ask)
}

func TestTickCacheCacheOnly(t *testing.T) {
	calls := 0
	provider := &mockProvider{
		ticksFn: func(symbol string, from, to time.Time) market_data.TickSeries {
			calls++
			return market_data.TickSeries{{Time: time.Now().UTC(), Ask: 1.1}}
		},
	}
	cache := NewTickCache(provider, 50*time.Millisecond)
	ctx := context.Background()
	from, to := time.Now().Add(-time.Minute), time.Now()

	// Nothing cached yet and cacheOnly never fetches
	ticks, err := cache.Ticks(ctx, "EURUSD", from, to, true)
	require.NoError(t, err)
	assert.Nil(t, ticks)
	assert.Equal(t, 0, calls)

	fetched, err := cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)
	require.Len(t, fetched, 1)

	// Stale entries are still served in cacheOnly mode
	time.Sleep(80 * time.Millisecond)
	cached, err := cache.Ticks(ctx, "EURUSD", from, to, true)
	require.NoError(t, err)
	assert.Equal(t, fetched, cached)
	assert.Equal(t, 1, calls)
}

func TestTickCacheStats(t *testing.T) {
	provider := &mockProvider{
		ticksFn: func(symbol string, from, to time.Time) market_data.TickSeries {
			return market_data.TickSeries{{Time: time.Now().UTC(), Ask: 1.1}}
		},
	}
	cache := NewTickCache(provider, time.Minute)
	ctx := context.Background()
	from, to := time.Now().Add(-time.Minute), time.Now()

	_, err := cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)
	_, err = cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)
	_, err = cache.Ticks(ctx, "GBPUSD", from, to, false)
	require.NoError(t, err)

	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestTickCacheZeroTTLAlwaysFetches(t *testing.T) {
	calls := 0
	provider := &mockProvider{
		ticksFn: func(symbol string, from, to time.Time) market_data.TickSeries {
			calls++
			return nil
		},
	}
	cache := NewTickCache(provider, 0)
	ctx := context.Background()
	from, to := time.Now().Add(-time.Minute), time.Now()

	for i := 0; i < 3; i++ {
		_, err := cache.Ticks(ctx, "EURUSD", from, to, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestTickCacheSnapshotRestore(t *testing.T) {
	provider := &mockProvider{
		ticksFn: func(symbol string, from, to time.Time) market_data.TickSeries {
			return market_data.TickSeries{{Time: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), Ask: 1.1}}
		},
	}
	cache := NewTickCache(provider, time.Minute)
	ctx := context.Background()
	from, to := time.Now().Add(-time.Minute), time.Now()

	_, err := cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)

	entries := cache.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "EURUSD", entries[0].Symbol)

	restored := NewTickCache(&mockProvider{}, time.Minute)
	restored.Restore(entries)

	ticks, err := restored.Ticks(ctx, "EURUSD", from, to, true)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 1.1, ticks[0].Ask)
}

func TestTickCacheClear(t *testing.T) {
	provider := &mockProvider{
		ticksFn: func(symbol string, from, to time.Time) market_data.TickSeries {
			return market_data.TickSeries{{Time: time.Now().UTC(), Ask: 1.1}}
		},
	}
	cache := NewTickCache(provider, time.Minute)
	ctx := context.Background()
	from, to := time.Now().Add(-time.Minute), time.Now()

	_, err := cache.Ticks(ctx, "EURUSD", from, to, false)
	require.NoError(t, err)

	cache.Clear()

	ticks, err := cache.Ticks(ctx, "EURUSD", from, to, true)
	require.NoError(t, err)
	assert.Nil(t, ticks)

	hits, misses := cache.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}
