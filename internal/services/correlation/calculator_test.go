package correlation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/pkg/errors"
)

var testStart = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

// priceSeries builds count bars spaced by step, pricing each bar with fn
func priceSeries(start time.Time, count int, step time.Duration, fn func(t time.Time) float64) market_data.PriceSeries {
	series := make(market_data.PriceSeries, 0, count)
	for i := 0; i < count; i++ {
		ts := start.Add(time.Duration(i) * step)
		price := fn(ts)
		series = append(series, market_data.Bar{Time: ts, Open: price, High: price, Low: price, Close: price})
	}
	return series
}

func minutePrice(t time.Time) float64 { return float64(t.Minute()) }

func relaxedWindow() domain.Window {
	return domain.Window{MinPrices: 0, MaxSetSizeDiffPct: 0, OverlapPct: 0, MaxPValue: 1}
}

func TestCoefficientPerfectCorrelation(t *testing.T) {
	calc := NewCalculator()

	series1 := priceSeries(testStart, 500, 5*time.Minute, minutePrice)
	series2 := priceSeries(testStart, 500, 5*time.Minute, minutePrice)

	window := domain.Window{MinPrices: 100, MaxSetSizeDiffPct: 100, OverlapPct: 100, MaxPValue: 1}
	coefficient, err := calc.Coefficient(series1, series2, window)
	require.NoError(t, err)
	require.NotNil(t, coefficient)
	assert.InDelta(t, 1.0, *coefficient, 1e-9)
}

func TestCoefficientPerfectInverse(t *testing.T) {
	calc := NewCalculator()

	series1 := priceSeries(testStart, 200, time.Minute, minutePrice)
	series2 := priceSeries(testStart, 200, time.Minute, func(t time.Time) float64 { return -float64(t.Minute()) })

	coefficient, err := calc.Coefficient(series1, series2, relaxedWindow())
	require.NoError(t, err)
	require.NotNil(t, coefficient)
	assert.InDelta(t, -1.0, *coefficient, 1e-9)
}

func TestCoefficientKnownValue(t *testing.T) {
	calc := NewCalculator()

	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 5, 4, 5}
	series1 := make(market_data.PriceSeries, len(xs))
	series2 := make(market_data.PriceSeries, len(ys))
	for i := range xs {
		ts := testStart.Add(time.Duration(i) * time.Second)
		series1[i] = market_data.Bar{Time: ts, Close: xs[i]}
		series2[i] = market_data.Bar{Time: ts, Close: ys[i]}
	}

	coefficient, err := calc.Coefficient(series1, series2, relaxedWindow())
	require.NoError(t, err)
	require.NotNil(t, coefficient)
	assert.InDelta(t, 0.7746, *coefficient, 1e-4)
}

func TestCoefficientEmptySeries(t *testing.T) {
	calc := NewCalculator()

	series := priceSeries(testStart, 10, time.Second, minutePrice)

	_, err := calc.Coefficient(nil, series, relaxedWindow())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = calc.Coefficient(series, market_data.PriceSeries{}, relaxedWindow())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestCoefficientSizeGate(t *testing.T) {
	calc := NewCalculator()

	series1 := priceSeries(testStart, 500, time.Minute, minutePrice)
	series2 := priceSeries(testStart, 100, time.Minute, minutePrice)

	window := domain.Window{MinPrices: 0, MaxSetSizeDiffPct: 90, OverlapPct: 0, MaxPValue: 1}
	coefficient, err := calc.Coefficient(series1, series2, window)
	require.NoError(t, err)
	assert.Nil(t, coefficient)
}

func TestCoefficientOverlapGate(t *testing.T) {
	calc := NewCalculator()

	series1 := priceSeries(testStart, 100, time.Minute, minutePrice)
	series2 := priceSeries(testStart.Add(30*24*time.Hour), 100, time.Minute, minutePrice)

	window := domain.Window{MinPrices: 0, MaxSetSizeDiffPct: 0, OverlapPct: 90, MaxPValue: 1}
	coefficient, err := calc.Coefficient(series1, series2, window)
	require.NoError(t, err)
	assert.Nil(t, coefficient)
}

func TestCoefficientMinPricesGate(t *testing.T) {
	calc := NewCalculator()

	series1 := priceSeries(testStart, 10, time.Minute, minutePrice)
	series2 := priceSeries(testStart, 10, time.Minute, minutePrice)

	window := domain.Window{MinPrices: 100, MaxSetSizeDiffPct: 0, OverlapPct: 0, MaxPValue: 1}
	coefficient, err := calc.Coefficient(series1, series2, window)
	require.NoError(t, err)
	assert.Nil(t, coefficient)
}

func TestCoefficientInsignificant(t *testing.T) {
	calc := NewCalculator()

	xs := []float64{1, 2, 3, 4}
	ys := []float64{1, -1, 1, -1}
	series1 := make(market_data.PriceSeries, len(xs))
	series2 := make(market_data.PriceSeries, len(ys))
	for i := range xs {
		ts := testStart.Add(time.Duration(i) * time.Second)
		series1[i] = market_data.Bar{Time: ts, Close: xs[i]}
		series2[i] = market_data.Bar{Time: ts, Close: ys[i]}
	}

	window := domain.Window{MinPrices: 0, MaxSetSizeDiffPct: 0, OverlapPct: 0, MaxPValue: 0.05}
	coefficient, err := calc.Coefficient(series1, series2, window)
	require.NoError(t, err)
	assert.Nil(t, coefficient)
}

func TestCoefficientZeroVariance(t *testing.T) {
	calc := NewCalculator()

	flat := priceSeries(testStart, 50, time.Second, func(time.Time) float64 { return 1.2345 })
	moving := priceSeries(testStart, 50, time.Second, func(t time.Time) float64 { return float64(t.Second()) })

	coefficient, err := calc.Coefficient(flat, moving, relaxedWindow())
	require.NoError(t, err)
	assert.Nil(t, coefficient)
}

func TestIntersectByTime(t *testing.T) {
	series1 := priceSeries(testStart, 10, time.Minute, minutePrice)
	series2 := priceSeries(testStart.Add(5*time.Minute), 10, time.Minute, minutePrice)

	xs, ys := intersectByTime(series1, series2)
	assert.Len(t, xs, 5)
	assert.Len(t, ys, 5)
	assert.Equal(t, xs, ys)
}

func TestPValueEdges(t *testing.T) {
	assert.Equal(t, 0.0, pValue(1, 100))
	assert.Equal(t, 0.0, pValue(-1, 100))
	assert.Equal(t, 1.0, pValue(0.5, 2))

	// r=0.9, n=20 is significant well below 1%
	assert.Less(t, pValue(0.9, 20), 0.01)
	// r=0.1, n=10 is nowhere near significant
	assert.Greater(t, pValue(0.1, 10), 0.5)
}

func TestPearsonNaN(t *testing.T) {
	assert.True(t, math.IsNaN(pearson(nil, nil)))
	assert.True(t, math.IsNaN(pearson([]float64{1, 1, 1}, []float64{1, 2, 3})))
}
