package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/testsupport"
)

// uniqueSymbol keeps natural keys from colliding across test runs
func uniqueSymbol(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%1_000_000)
}

func TestHistoryRepository_ArchiveBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewHistoryRepository(testDB.DB())
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))

	symbol1 := uniqueSymbol("TSTA")
	symbol2 := uniqueSymbol("TSTB")
	t.Cleanup(func() {
		_, _ = testDB.DB().ExecContext(context.Background(),
			`DELETE FROM correlation_history WHERE symbol1 = $1`, symbol1)
	})

	base := time.Now().UTC().Truncate(time.Second)
	entries := []domain.HistoryEntry{
		{SymbolPair: domain.NewPair(symbol1, symbol2), Coefficient: 0.95, LookbackMinutes: 60, DateTo: base},
		{SymbolPair: domain.NewPair(symbol1, symbol2), Coefficient: 0.91, LookbackMinutes: 30, DateTo: base},
		{SymbolPair: domain.NewPair(symbol1, symbol2), Coefficient: 0.88, LookbackMinutes: 60, DateTo: base.Add(time.Minute)},
	}

	inserted, err := repo.ArchiveBatch(ctx, entries)
	require.NoError(t, err)
	assert.EqualValues(t, 3, inserted)

	// Re-sending the same entries must not create duplicates
	inserted, err = repo.ArchiveBatch(ctx, entries)
	require.NoError(t, err)
	assert.EqualValues(t, 0, inserted)

	latest, err := repo.LatestRecordedAt(ctx)
	require.NoError(t, err)
	assert.False(t, latest.Before(base.Add(time.Minute)), "watermark should cover the newest archived row")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(3))
}

func TestHistoryRepository_ArchiveBatchEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewHistoryRepository(testDB.DB())
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))

	inserted, err := repo.ArchiveBatch(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, inserted)
}
