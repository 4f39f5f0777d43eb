package mt5

import (
	"github.com/shopspring/decimal"
)

// Wire types for the MT5 HTTP gateway. Prices travel as decimals so the
// gateway can emit exact quoted strings; conversion to float64 happens at
// the domain boundary.

type symbolsResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Name        string `json:"name"`
	Visible     bool   `json:"visible"`
	Description string `json:"description,omitempty"`
}

type barsResponse struct {
	Symbol string `json:"symbol"`
	Bars   []bar  `json:"bars"`
}

// bar mirrors one row of MT5 copy_rates output
type bar struct {
	Time  int64           `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

type ticksResponse struct {
	Symbol string `json:"symbol"`
	Ticks  []tick `json:"ticks"`
}

// tick mirrors one row of MT5 copy_ticks_range output; time_msc is unix
// milliseconds
type tick struct {
	TimeMsc int64           `json:"time_msc"`
	Bid     decimal.Decimal `json:"bid"`
	Ask     decimal.Decimal `json:"ask"`
}
