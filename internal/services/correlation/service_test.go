package correlation

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/pkg/errors"
)

// mockProvider is a hand-rolled market data provider for engine tests
type mockProvider struct {
	mu         sync.Mutex
	symbols    []string
	symbolsErr error
	barsFn     func(symbol string, from, to time.Time) market_data.PriceSeries
	barsErr    map[string]error
	ticksFn    func(symbol string, from, to time.Time) market_data.TickSeries
	ticksErr   map[string]error
	tickCalls  map[string]int
}

func (m *mockProvider) VisibleSymbols(ctx context.Context) ([]string, error) {
	if m.symbolsErr != nil {
		return nil, m.symbolsErr
	}
	return m.symbols, nil
}

func (m *mockProvider) Bars(ctx context.Context, symbol string, from, to time.Time, timeframe market_data.Timeframe) (market_data.PriceSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.barsErr[symbol]; err != nil {
		return nil, err
	}
	if m.barsFn == nil {
		return nil, nil
	}
	return m.barsFn(symbol, from, to), nil
}

func (m *mockProvider) Ticks(ctx context.Context, symbol string, from, to time.Time) (market_data.TickSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tickCalls == nil {
		m.tickCalls = make(map[string]int)
	}
	m.tickCalls[symbol]++
	if err := m.ticksErr[symbol]; err != nil {
		return nil, err
	}
	if m.ticksFn == nil {
		return nil, nil
	}
	return m.ticksFn(symbol, from, to), nil
}

func (m *mockProvider) Ping(ctx context.Context) error { return nil }

// calculationProvider serves three symbols where the first two track each
// other exactly and the third moves on its own
func calculationProvider() *mockProvider {
	return &mockProvider{
		symbols: []string{"EURUSD", "GBPUSD", "USDJPY"},
		barsFn: func(symbol string, from, to time.Time) market_data.PriceSeries {
			fn := minutePrice
			if symbol == "USDJPY" {
				fn = func(ts time.Time) float64 { return math.Sin(float64(ts.Unix()))*10 + 100 }
			}
			return priceSeries(from, 500, 5*time.Minute, fn)
		},
	}
}

func relaxedSettings() Settings {
	return Settings{
		MonitoringThreshold: 0.99,
		DivergenceThreshold: 0.8,
		MinPrices:           100,
		MaxSetSizeDiffPct:   100,
		OverlapPct:          100,
		MaxPValue:           1,
		CacheTTL:            time.Minute,
	}
}

func calcRange() (time.Time, time.Time) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return from, from.Add(500 * 5 * time.Minute)
}

func TestCalculateBuildsSortedTable(t *testing.T) {
	svc := NewService(calculationProvider(), relaxedSettings())
	from, to := calcRange()

	require.NoError(t, svc.Calculate(context.Background(), from, to, market_data.TimeframeM5))

	records := svc.Records()
	require.Len(t, records, 3)

	// Strongest pair first, display order as the provider listed the symbols
	assert.Equal(t, "EURUSD", records[0].Symbol1)
	assert.Equal(t, "GBPUSD", records[0].Symbol2)
	assert.InDelta(t, 1.0, records[0].BaseCoefficient, 1e-9)
	for i := 1; i < len(records); i++ {
		assert.GreaterOrEqual(t, records[i-1].BaseCoefficient, records[i].BaseCoefficient)
	}

	for _, record := range records {
		assert.Equal(t, from, record.DateFrom)
		assert.Equal(t, to, record.DateTo)
		assert.Equal(t, market_data.TimeframeM5, record.Timeframe)
		assert.Equal(t, domain.StatusNotCalculated, record.Status)
		assert.Nil(t, record.LastCheckedAt)
	}

	assert.NotEmpty(t, svc.PriceData("EURUSD"))
	assert.NotEmpty(t, svc.PriceData("USDJPY"))
}

func TestFilteredRecords(t *testing.T) {
	svc := NewService(calculationProvider(), relaxedSettings())
	from, to := calcRange()

	require.NoError(t, svc.Calculate(context.Background(), from, to, market_data.TimeframeM5))

	filtered := svc.FilteredRecords()
	require.Len(t, filtered, 1)
	assert.Equal(t, "EURUSD:GBPUSD", filtered[0].String())
}

func TestFilteredRecordsInverse(t *testing.T) {
	svc := NewService(&mockProvider{}, Settings{MonitoringThreshold: 0.9})

	negative := &domain.Record{SymbolPair: domain.NewPair("EURUSD", "USDCHF"), BaseCoefficient: -0.95}
	weak := &domain.Record{SymbolPair: domain.NewPair("EURUSD", "USDJPY"), BaseCoefficient: 0.5}
	svc.records = []*domain.Record{negative, weak}

	assert.Empty(t, svc.FilteredRecords())

	svc.SetMonitorInverse(true)
	filtered := svc.FilteredRecords()
	require.Len(t, filtered, 1)
	assert.Equal(t, "EURUSD:USDCHF", filtered[0].String())
}

func TestCalculateNonOverlappingSymbols(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	provider := &mockProvider{
		symbols: []string{"EURUSD", "GBPUSD"},
		barsFn: func(symbol string, from, to time.Time) market_data.PriceSeries {
			if symbol == "EURUSD" {
				return priceSeries(start, 100, time.Minute, minutePrice)
			}
			return priceSeries(start.Add(200*time.Hour), 100, time.Minute, minutePrice)
		},
	}
	svc := NewService(provider, relaxedSettings())

	require.NoError(t, svc.Calculate(context.Background(), start, start.Add(300*time.Hour), market_data.TimeframeM5))
	assert.Empty(t, svc.Records())
}

func TestCalculateSkipsFailingSymbol(t *testing.T) {
	provider := calculationProvider()
	provider.barsErr = map[string]error{"USDJPY": errors.New("gateway down")}
	svc := NewService(provider, relaxedSettings())
	from, to := calcRange()

	require.NoError(t, svc.Calculate(context.Background(), from, to, market_data.TimeframeM5))

	records := svc.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "EURUSD:GBPUSD", records[0].String())
}

func TestCalculateSymbolListFailure(t *testing.T) {
	provider := &mockProvider{symbolsErr: errors.New("gateway down")}
	svc := NewService(provider, relaxedSettings())
	from, to := calcRange()

	err := svc.Calculate(context.Background(), from, to, market_data.TimeframeM5)
	require.Error(t, err)
}

func TestCalculateEmptyRange(t *testing.T) {
	svc := NewService(calculationProvider(), relaxedSettings())
	from, _ := calcRange()

	err := svc.Calculate(context.Background(), from, from, market_data.TimeframeM5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestHistoryFilter(t *testing.T) {
	svc := NewService(&mockProvider{}, relaxedSettings())
	at := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	svc.history = []domain.HistoryEntry{
		{SymbolPair: domain.NewPair("EURUSD", "GBPUSD"), Coefficient: 0.95, LookbackMinutes: 15, DateTo: at},
		{SymbolPair: domain.NewPair("GBPUSD", "EURUSD"), Coefficient: 0.93, LookbackMinutes: 30, DateTo: at.Add(time.Minute)},
		{SymbolPair: domain.NewPair("EURUSD", "USDJPY"), Coefficient: 0.5, LookbackMinutes: 15, DateTo: at.Add(2 * time.Minute)},
	}

	assert.Len(t, svc.History(domain.HistoryFilter{}), 3)
	assert.Len(t, svc.History(domain.HistoryFilter{Symbol1: "EURUSD", Symbol2: "GBPUSD"}), 2)
	assert.Len(t, svc.History(domain.HistoryFilter{Symbol1: "GBPUSD", Symbol2: "EURUSD"}), 2)
	assert.Len(t, svc.History(domain.HistoryFilter{Symbol1: "USDJPY"}), 1)
	assert.Len(t, svc.History(domain.HistoryFilter{LookbackMinutes: 30}), 1)
	assert.Len(t, svc.History(domain.HistoryFilter{Symbol1: "EURUSD", Symbol2: "USDJPY", LookbackMinutes: 30}), 0)

	assert.Equal(t, at.Add(2*time.Minute), svc.LastCalculation("", ""))
	assert.Equal(t, at.Add(time.Minute), svc.LastCalculation("GBPUSD", "EURUSD"))
	assert.True(t, svc.LastCalculation("EURUSD", "AUDCAD").IsZero())
}

func TestLastCalculationEmpty(t *testing.T) {
	svc := NewService(&mockProvider{}, relaxedSettings())
	assert.True(t, svc.LastCalculation("", "").IsZero())
}

func TestLastStatus(t *testing.T) {
	svc := NewService(&mockProvider{}, relaxedSettings())
	record := &domain.Record{SymbolPair: domain.NewPair("EURUSD", "GBPUSD"), Status: domain.StatusDiverged}
	svc.records = []*domain.Record{record}
	svc.byKey = map[string]*domain.Record{record.Key(): record}

	assert.Equal(t, domain.StatusDiverged, svc.LastStatus("EURUSD", "GBPUSD"))
	assert.Equal(t, domain.StatusDiverged, svc.LastStatus("GBPUSD", "EURUSD"))
	assert.Equal(t, domain.StatusNotCalculated, svc.LastStatus("EURUSD", "USDJPY"))
}

func TestDivergedSymbols(t *testing.T) {
	svc := NewService(&mockProvider{}, relaxedSettings())
	svc.records = []*domain.Record{
		{SymbolPair: domain.NewPair("EURUSD", "GBPUSD"), Status: domain.StatusDiverged},
		{SymbolPair: domain.NewPair("EURUSD", "USDJPY"), Status: domain.StatusDiverging},
		{SymbolPair: domain.NewPair("GBPUSD", "USDCHF"), Status: domain.StatusCorrelated},
		{SymbolPair: domain.NewPair("AUDUSD", "NZDUSD"), Status: domain.StatusConverging},
	}

	diverged := svc.DivergedSymbols()
	require.Len(t, diverged, 5)
	assert.Equal(t, domain.SymbolDivergence{Symbol: "EURUSD", Count: 2}, diverged[0])

	// Ties resolve by symbol
	rest := []string{diverged[1].Symbol, diverged[2].Symbol, diverged[3].Symbol, diverged[4].Symbol}
	assert.Equal(t, []string{"AUDUSD", "GBPUSD", "NZDUSD", "USDJPY"}, rest)
}

func TestClearHistory(t *testing.T) {
	provider := &mockProvider{
		ticksFn: func(symbol string, from, to time.Time) market_data.TickSeries {
			return market_data.TickSeries{{Time: time.Now().UTC(), Ask: 1.1}}
		},
	}
	svc := NewService(provider, relaxedSettings())

	checkedAt := time.Now().UTC()
	coefficient := 0.42
	record := &domain.Record{
		SymbolPair:      domain.NewPair("EURUSD", "GBPUSD"),
		BaseCoefficient: 0.97,
		LastCheckedAt:   &checkedAt,
		LastCoefficient: &coefficient,
		Status:          domain.StatusDiverged,
	}
	svc.records = []*domain.Record{record}
	svc.history = []domain.HistoryEntry{{SymbolPair: record.SymbolPair, Coefficient: 0.42, LookbackMinutes: 15, DateTo: checkedAt}}

	_, err := svc.Ticks(context.Background(), "EURUSD", checkedAt.Add(-time.Minute), checkedAt, false)
	require.NoError(t, err)

	svc.ClearHistory()

	assert.Zero(t, svc.HistorySize())
	assert.Nil(t, record.LastCheckedAt)
	assert.Nil(t, record.LastCoefficient)
	assert.Equal(t, domain.StatusNotCalculated, record.Status)
	assert.Equal(t, 0.97, record.BaseCoefficient)

	cached, err := svc.Ticks(context.Background(), "EURUSD", checkedAt.Add(-time.Minute), checkedAt, true)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestSetThresholds(t *testing.T) {
	svc := NewService(&mockProvider{}, relaxedSettings())

	require.NoError(t, svc.SetThresholds(0.85, 0.7))
	monitoring, divergence, inverse := svc.Thresholds()
	assert.Equal(t, 0.85, monitoring)
	assert.Equal(t, 0.7, divergence)
	assert.False(t, inverse)

	err := svc.SetThresholds(1.5, 0.7)
	require.Error(t, err)
	var validationErr *errors.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	err = svc.SetThresholds(0.9, -0.1)
	require.Error(t, err)
}
