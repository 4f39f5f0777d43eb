package archive

import (
	"context"
	"time"

	"pairwatch/internal/adapters/config"
	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/services/correlation"
	"pairwatch/internal/workers"
	"pairwatch/pkg/errors"
)

// TickSource yields the tick data currently held by the engine's cache
type TickSource interface {
	CachedTickData() []correlation.CachedTicks
}

// TickStore is the long-term tick archive
type TickStore interface {
	InsertBatch(ctx context.Context, symbol string, ticks market_data.TickSeries) error
	LatestTickTime(ctx context.Context, symbol string) (time.Time, error)
}

// TickRecorder drains the engine's tick cache into ClickHouse. The store has
// no deduplication, so each symbol carries a strictly-greater watermark and
// a tick is written at most once. Watermarks are seeded from the store on
// the first encounter of a symbol, so restarts do not re-insert ticks that
// are still in the cache.
type TickRecorder struct {
	*workers.BaseWorker
	source TickSource
	store  TickStore

	// Touched only from the scheduler's worker goroutine
	watermarks map[string]time.Time
}

// NewTickRecorder creates the recorder from the worker configuration
func NewTickRecorder(source TickSource, store TickStore, cfg config.WorkerConfig) *TickRecorder {
	return &TickRecorder{
		BaseWorker: workers.NewBaseWorker("tick-recorder", cfg.TickRecorderInterval, cfg.TickRecorderEnabled),
		source:     source,
		store:      store,
		watermarks: make(map[string]time.Time),
	}
}

// Run writes every cached tick newer than its symbol's watermark
func (w *TickRecorder) Run(ctx context.Context) error {
	var symbols, ticks int
	for _, entry := range w.source.CachedTickData() {
		n, err := w.record(ctx, entry)
		if err != nil {
			return errors.Wrapf(err, "record ticks for %s", entry.Symbol)
		}
		if n > 0 {
			symbols++
			ticks += n
		}
	}

	if ticks > 0 {
		w.Log().Infow("Recorded ticks", "symbols", symbols, "ticks", ticks)
	}
	return nil
}

func (w *TickRecorder) record(ctx context.Context, entry correlation.CachedTicks) (int, error) {
	watermark, ok := w.watermarks[entry.Symbol]
	if !ok {
		latest, err := w.store.LatestTickTime(ctx, entry.Symbol)
		if err != nil {
			return 0, errors.Wrap(err, "load tick watermark")
		}
		watermark = latest
		w.watermarks[entry.Symbol] = watermark
	}

	fresh := make(market_data.TickSeries, 0, len(entry.Ticks))
	newest := watermark
	for _, tick := range entry.Ticks {
		if !tick.Time.After(watermark) {
			continue
		}
		fresh = append(fresh, tick)
		if tick.Time.After(newest) {
			newest = tick.Time
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := w.store.InsertBatch(ctx, entry.Symbol, fresh); err != nil {
		return 0, err
	}

	w.watermarks[entry.Symbol] = newest
	return len(fresh), nil
}
