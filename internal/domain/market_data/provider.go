package market_data

import (
	"context"
	"time"
)

// Provider supplies symbols, historical bars and raw ticks from the trading
// terminal. Implementations signal "no data" with an empty result, not an
// error; callers treat both the same way and never abort on a single failed
// fetch.
type Provider interface {
	// VisibleSymbols returns the instruments currently enabled in the terminal
	VisibleSymbols(ctx context.Context) ([]string, error)

	// Bars returns OHLC bars for the symbol within [from, to]
	Bars(ctx context.Context, symbol string, from, to time.Time, timeframe Timeframe) (PriceSeries, error)

	// Ticks returns raw ticks for the symbol within [from, to]
	Ticks(ctx context.Context, symbol string, from, to time.Time) (TickSeries, error)

	// Ping verifies the terminal connection
	Ping(ctx context.Context) error
}
