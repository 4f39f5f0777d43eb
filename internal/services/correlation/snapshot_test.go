package correlation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/pkg/errors"
)

func TestSnapshotRoundTrip(t *testing.T) {
	svc := calculatedService(t, monitorProvider())

	settings := MonitorSettings{Interval: time.Second, CacheTTL: time.Minute, Windows: monitorWindows()}
	svc.checkPairs(context.Background(), settings)
	require.Equal(t, 6, svc.HistorySize())

	path := filepath.Join(t.TempDir(), "state.cpd")
	require.NoError(t, svc.Save(path))

	restored := NewService(&mockProvider{}, relaxedSettings())
	require.NoError(t, restored.Load(path))

	assert.Equal(t, svc.Records(), restored.Records())
	assert.Equal(t, svc.History(domain.HistoryFilter{}), restored.History(domain.HistoryFilter{}))
	assert.Equal(t, svc.PriceData("EURUSD"), restored.PriceData("EURUSD"))
	assert.Equal(t, svc.PriceData("USDJPY"), restored.PriceData("USDJPY"))

	now := time.Now()
	original, err := svc.Ticks(context.Background(), "EURUSD", now.Add(-time.Minute), now, true)
	require.NoError(t, err)
	require.NotEmpty(t, original)

	cached, err := restored.Ticks(context.Background(), "EURUSD", now.Add(-time.Minute), now, true)
	require.NoError(t, err)
	assert.Equal(t, original, cached)
}

func TestSnapshotRoundTripEmptyState(t *testing.T) {
	svc := NewService(&mockProvider{}, relaxedSettings())
	path := filepath.Join(t.TempDir(), "state.cpd")

	require.NoError(t, svc.Save(path))

	restored := NewService(&mockProvider{}, relaxedSettings())
	require.NoError(t, restored.Load(path))
	assert.Zero(t, restored.RecordCount())
	assert.Zero(t, restored.HistorySize())
}

func TestSaveReplacesExistingFile(t *testing.T) {
	svc := calculatedService(t, monitorProvider())
	dir := t.TempDir()
	path := filepath.Join(dir, "state.cpd")

	require.NoError(t, svc.Save(path))

	svc.ClearHistory()
	settings := MonitorSettings{Interval: time.Second, CacheTTL: time.Minute, Windows: monitorWindows()}
	svc.checkPairs(context.Background(), settings)
	require.NoError(t, svc.Save(path))

	restored := NewService(&mockProvider{}, relaxedSettings())
	require.NoError(t, restored.Load(path))
	assert.Equal(t, svc.HistorySize(), restored.HistorySize())

	// No temp files left behind
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cpd")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o644))

	svc := NewService(&mockProvider{}, relaxedSettings())
	err := svc.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSnapshotVersion))
}

func TestLoadCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cpd")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot {{"), 0o644))

	svc := NewService(&mockProvider{}, relaxedSettings())
	err := svc.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSnapshotCorrupt))
}

func TestLoadMissingFile(t *testing.T) {
	svc := NewService(&mockProvider{}, relaxedSettings())
	err := svc.Load(filepath.Join(t.TempDir(), "missing.cpd"))
	require.Error(t, err)
}
