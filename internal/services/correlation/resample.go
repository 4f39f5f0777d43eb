package correlation

import (
	"sort"
	"time"

	"pairwatch/internal/domain/market_data"
	"pairwatch/pkg/errors"
)

// ResampleTicks aggregates raw ticks into one-second OHLC bars built from the
// ask price. Seconds without a tick produce no bar; output is ascending by
// time. A tick with a zero timestamp cannot be bucketed and fails the whole
// batch.
func ResampleTicks(ticks market_data.TickSeries) (market_data.PriceSeries, error) {
	if len(ticks) == 0 {
		return nil, nil
	}

	buckets := make(map[int64]*market_data.Bar)
	for _, tick := range ticks {
		if tick.Time.IsZero() {
			return nil, errors.Wrap(errors.ErrInvalidInput, "tick with zero timestamp cannot be resampled")
		}

		second := tick.Time.Truncate(time.Second)
		key := second.Unix()

		bar, ok := buckets[key]
		if !ok {
			buckets[key] = &market_data.Bar{
				Time:  second,
				Open:  tick.Ask,
				High:  tick.Ask,
				Low:   tick.Ask,
				Close: tick.Ask,
			}
			continue
		}

		if tick.Ask > bar.High {
			bar.High = tick.Ask
		}
		if tick.Ask < bar.Low {
			bar.Low = tick.Ask
		}
		bar.Close = tick.Ask
	}

	keys := make([]int64, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	bars := make(market_data.PriceSeries, 0, len(keys))
	for _, key := range keys {
		bars = append(bars, *buckets[key])
	}
	return bars, nil
}
