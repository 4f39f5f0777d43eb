package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/testsupport"
)

func TestTickRepository_InsertAndWatermark(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	helper := testsupport.NewTestClickHouse(t)
	repo := NewTickRepository(helper.Client().Conn())
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))

	symbol := fmt.Sprintf("TST%d", time.Now().UnixNano()%1_000_000)
	helper.RegisterTableCleanup(t, "ticks", fmt.Sprintf("symbol = '%s'", symbol))

	base := time.Now().UTC().Truncate(time.Second)
	ticks := market_data.TickSeries{
		{Time: base, Bid: 1.08540, Ask: 1.08542},
		{Time: base.Add(250 * time.Millisecond), Bid: 1.08541, Ask: 1.08543},
		{Time: base.Add(500 * time.Millisecond), Bid: 1.08539, Ask: 1.08541},
	}

	require.NoError(t, repo.InsertBatch(ctx, symbol, ticks))

	count, err := repo.Count(ctx, symbol)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	latest, err := repo.LatestTickTime(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, base.Add(500*time.Millisecond), latest)
}

func TestTickRepository_WatermarkEmptySymbol(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	helper := testsupport.NewTestClickHouse(t)
	repo := NewTickRepository(helper.Client().Conn())
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))

	latest, err := repo.LatestTickTime(ctx, "NO_SUCH_SYMBOL")
	require.NoError(t, err)
	assert.True(t, latest.IsZero())
}

func TestTickRepository_InsertEmptyBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	helper := testsupport.NewTestClickHouse(t)
	repo := NewTickRepository(helper.Client().Conn())

	require.NoError(t, repo.InsertBatch(context.Background(), "EURUSD", nil))
}
