package correlation

import (
	"fmt"
	"time"

	"pairwatch/internal/domain/market_data"
)

// SymbolPair identifies an unordered pair of instruments. The display order
// (Symbol1, Symbol2) is fixed when the pair is first computed and never
// swapped; lookups go through Key so (B, A) finds a stored (A, B) row.
type SymbolPair struct {
	Symbol1 string `json:"symbol1"`
	Symbol2 string `json:"symbol2"`
}

// NewPair creates a pair preserving the given display order
func NewPair(symbol1, symbol2 string) SymbolPair {
	return SymbolPair{Symbol1: symbol1, Symbol2: symbol2}
}

// Key returns the canonical lookup key, identical for (A, B) and (B, A)
func (p SymbolPair) Key() string {
	if p.Symbol2 < p.Symbol1 {
		return p.Symbol2 + ":" + p.Symbol1
	}
	return p.Symbol1 + ":" + p.Symbol2
}

// String returns the pair in display order
func (p SymbolPair) String() string {
	return fmt.Sprintf("%s:%s", p.Symbol1, p.Symbol2)
}

// Contains reports whether the symbol is one side of the pair
func (p SymbolPair) Contains(symbol string) bool {
	return p.Symbol1 == symbol || p.Symbol2 == symbol
}

// Record is one row of the current coefficient table. Baseline fields are
// written only by a full calculation; the live fields (LastCheckedAt,
// LastCoefficient, Status) are written by the monitor loop and reset by a
// history clear.
type Record struct {
	SymbolPair
	BaseCoefficient float64               `json:"base_coefficient"`
	DateFrom        time.Time             `json:"date_from"`
	DateTo          time.Time             `json:"date_to"`
	Timeframe       market_data.Timeframe `json:"timeframe"`
	LastCheckedAt   *time.Time            `json:"last_checked_at,omitempty"`
	LastCoefficient *float64              `json:"last_coefficient,omitempty"`
	Status          Status                `json:"status"`
}

// HistoryEntry is one append-only coefficient observation produced during
// monitoring: one entry per (pair, lookback window) per monitor tick
type HistoryEntry struct {
	SymbolPair
	Coefficient     float64   `json:"coefficient"`
	LookbackMinutes float64   `json:"lookback_minutes"`
	DateTo          time.Time `json:"date_to"`
}

// HistoryFilter narrows a history query; zero fields match everything.
// A pair filter matches canonically regardless of symbol order.
type HistoryFilter struct {
	Symbol1         string
	Symbol2         string
	LookbackMinutes float64
}

// Window is one monitoring lookback window with its own suitability
// parameters
type Window struct {
	LookbackMinutes   float64 `json:"lookback_minutes"`
	MinPrices         int     `json:"min_prices"`
	MaxSetSizeDiffPct float64 `json:"max_set_size_diff_pct"`
	OverlapPct        float64 `json:"overlap_pct"`
	MaxPValue         float64 `json:"max_p_value"`
}

// Span returns the window length as a duration
func (w Window) Span() time.Duration {
	return time.Duration(w.LookbackMinutes * float64(time.Minute))
}

// SymbolDivergence is one row of the diverged-symbols summary: how many
// divergent pairs the symbol participates in
type SymbolDivergence struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}
