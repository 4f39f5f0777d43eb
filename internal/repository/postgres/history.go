package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
)

// HistoryRepository archives coefficient history rows to Postgres. Rows are
// deduplicated on the natural key (pair, lookback, recorded_at) so the
// archiver can safely re-send entries around its watermark.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new history archive repository
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// EnsureSchema creates the archive table when it does not exist yet
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS correlation_history (
			id UUID PRIMARY KEY,
			symbol1 TEXT NOT NULL,
			symbol2 TEXT NOT NULL,
			coefficient DOUBLE PRECISION NOT NULL,
			lookback_minutes DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (symbol1, symbol2, lookback_minutes, recorded_at)
		)`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "creating correlation_history table")
	}
	return nil
}

// ArchiveBatch inserts history entries in a single transaction and reports
// how many rows were actually new
func (r *HistoryRepository) ArchiveBatch(ctx context.Context, entries []domain.HistoryEntry) (inserted int64, err error) {
	if len(entries) == 0 {
		return 0, nil
	}

	started := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "archive_history", time.Since(started), err) }()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO correlation_history (
			id, symbol1, symbol2, coefficient, lookback_minutes, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (symbol1, symbol2, lookback_minutes, recorded_at) DO NOTHING`

	for i, entry := range entries {
		result, err := tx.ExecContext(ctx, query,
			uuid.New(), entry.Symbol1, entry.Symbol2,
			entry.Coefficient, entry.LookbackMinutes, entry.DateTo,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to archive entry at index %d", i)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, errors.Wrapf(err, "failed to get rows affected at index %d", i)
		}
		inserted += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit history archive batch")
	}

	return inserted, nil
}

// LatestRecordedAt returns the recorded_at of the newest archived row. The
// zero time means the archive is empty.
func (r *HistoryRepository) LatestRecordedAt(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime

	query := `SELECT MAX(recorded_at) FROM correlation_history`

	if err := r.db.GetContext(ctx, &latest, query); err != nil {
		return time.Time{}, errors.Wrap(err, "failed to read archive watermark")
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time.UTC(), nil
}

// Count returns the number of archived rows
func (r *HistoryRepository) Count(ctx context.Context) (int64, error) {
	var count int64

	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM correlation_history`); err != nil {
		return 0, errors.Wrap(err, "failed to count archived history")
	}
	return count, nil
}
