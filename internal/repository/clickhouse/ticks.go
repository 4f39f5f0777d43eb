package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
)

// TickRepository records raw gateway ticks to ClickHouse for offline
// analysis. The engine itself never reads them back; the table exists so
// divergences can be replayed against the exact quotes that produced them.
type TickRepository struct {
	conn driver.Conn
}

// NewTickRepository creates a new tick archive repository
func NewTickRepository(conn driver.Conn) *TickRepository {
	return &TickRepository{conn: conn}
}

// EnsureSchema creates the ticks table when it does not exist yet
func (r *TickRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ticks (
			symbol String,
			time DateTime64(3, 'UTC'),
			bid Float64,
			ask Float64
		) ENGINE = MergeTree()
		ORDER BY (symbol, time)`

	if err := r.conn.Exec(ctx, query); err != nil {
		return errors.Wrap(err, "creating ticks table")
	}
	return nil
}

// InsertBatch appends ticks for one symbol in a single batch
func (r *TickRepository) InsertBatch(ctx context.Context, symbol string, ticks market_data.TickSeries) (err error) {
	if len(ticks) == 0 {
		return nil
	}

	started := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", "insert_ticks", time.Since(started), err) }()

	batch, err := r.conn.PrepareBatch(ctx, `INSERT INTO ticks (symbol, time, bid, ask)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, tick := range ticks {
		if err := batch.Append(symbol, tick.Time, tick.Bid, tick.Ask); err != nil {
			return errors.Wrap(err, "failed to append tick")
		}
	}

	return batch.Send()
}

// LatestTickTime returns the newest recorded tick time for the symbol. The
// zero time means nothing has been recorded yet.
func (r *TickRepository) LatestTickTime(ctx context.Context, symbol string) (time.Time, error) {
	var latest time.Time

	query := `SELECT max(time) FROM ticks WHERE symbol = $1`

	if err := r.conn.QueryRow(ctx, query, symbol).Scan(&latest); err != nil {
		return time.Time{}, errors.Wrap(err, "failed to read tick watermark")
	}

	// max() over an empty set yields the epoch
	if !latest.After(time.Unix(0, 0)) {
		return time.Time{}, nil
	}
	return latest.UTC(), nil
}

// Count returns the number of recorded ticks for the symbol
func (r *TickRepository) Count(ctx context.Context, symbol string) (uint64, error) {
	var count uint64

	query := `SELECT count() FROM ticks WHERE symbol = $1`

	if err := r.conn.QueryRow(ctx, query, symbol).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count ticks")
	}
	return count, nil
}
