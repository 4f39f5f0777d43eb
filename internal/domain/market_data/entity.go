package market_data

import (
	"fmt"
	"time"
)

// Timeframe identifies the bar duration requested from the gateway
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// ParseTimeframe validates a timeframe code
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(s); tf {
	case TimeframeM1, TimeframeM5, TimeframeM15, TimeframeM30, TimeframeH1, TimeframeH4, TimeframeD1:
		return tf, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Bar represents one OHLC candle
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// PriceSeries is a sequence of bars ordered by time ascending
type PriceSeries []Bar

// Slice returns the bars whose timestamp falls within [from, to]
func (s PriceSeries) Slice(from, to time.Time) PriceSeries {
	out := make(PriceSeries, 0, len(s))
	for _, b := range s {
		if b.Time.Before(from) || b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Tick is a single timestamped quote
type Tick struct {
	Time time.Time `json:"time"`
	Bid  float64   `json:"bid"`
	Ask  float64   `json:"ask"`
}

// TickSeries is a sequence of ticks ordered by time ascending
type TickSeries []Tick
