// Package archive contains the background workers that copy the engine's
// in-memory monitoring data into durable storage.
package archive

import (
	"context"
	"time"

	"pairwatch/internal/adapters/config"
	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/workers"
	"pairwatch/pkg/errors"
)

// HistorySource yields coefficient observations accumulated by the engine
type HistorySource interface {
	History(filter domain.HistoryFilter) []domain.HistoryEntry
}

// HistoryStore is the long-term archive for coefficient observations
type HistoryStore interface {
	ArchiveBatch(ctx context.Context, entries []domain.HistoryEntry) (int64, error)
	LatestRecordedAt(ctx context.Context) (time.Time, error)
}

// HistoryArchiver copies the monitoring history into Postgres in batches.
// It tracks a watermark of the newest observation archived and re-sends
// entries at the watermark itself, relying on the archive's natural-key
// constraint to drop duplicates. The watermark only advances after a full
// pass, so a failed batch is retried wholesale on the next run.
//
// Run is only ever called from the scheduler's single worker goroutine,
// so the watermark needs no locking.
type HistoryArchiver struct {
	*workers.BaseWorker
	source    HistorySource
	store     HistoryStore
	batchSize int

	watermark    time.Time
	bootstrapped bool
}

// NewHistoryArchiver creates the archiver from the worker configuration
func NewHistoryArchiver(source HistorySource, store HistoryStore, cfg config.WorkerConfig) *HistoryArchiver {
	return &HistoryArchiver{
		BaseWorker: workers.NewBaseWorker("history-archiver", cfg.HistoryArchiverInterval, cfg.HistoryArchiverEnabled),
		source:     source,
		store:      store,
		batchSize:  cfg.ArchiveBatchSize,
	}
}

// Run archives every history entry at or after the watermark
func (w *HistoryArchiver) Run(ctx context.Context) error {
	if !w.bootstrapped {
		latest, err := w.store.LatestRecordedAt(ctx)
		if err != nil {
			return errors.Wrap(err, "load archive watermark")
		}
		w.watermark = latest
		w.bootstrapped = true
		if !latest.IsZero() {
			w.Log().Infow("Resuming history archive", "watermark", latest)
		}
	}

	pending := w.pending()
	if len(pending) == 0 {
		return nil
	}

	newest := w.watermark
	for _, entry := range pending {
		if entry.DateTo.After(newest) {
			newest = entry.DateTo
		}
	}

	var inserted int64
	for start := 0; start < len(pending); start += w.batchSize {
		end := start + w.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		n, err := w.store.ArchiveBatch(ctx, pending[start:end])
		if err != nil {
			return errors.Wrap(err, "archive history batch")
		}
		inserted += n
	}

	w.watermark = newest
	w.Log().Infow("Archived monitoring history",
		"pending", len(pending),
		"inserted", inserted,
		"watermark", newest,
	)
	return nil
}

// pending returns the history entries not yet known to be archived. Entries
// exactly at the watermark are included again on purpose; the store
// deduplicates them.
func (w *HistoryArchiver) pending() []domain.HistoryEntry {
	all := w.source.History(domain.HistoryFilter{})

	out := make([]domain.HistoryEntry, 0, len(all))
	for _, entry := range all {
		if entry.DateTo.Before(w.watermark) {
			continue
		}
		out = append(out, entry)
	}
	return out
}
