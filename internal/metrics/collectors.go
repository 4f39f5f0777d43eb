package metrics

import (
	"context"
	"time"

	"pairwatch/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// EngineStats is the slice of the correlation service the collector scrapes
type EngineStats interface {
	RecordCount() int
	HistorySize() int
	CacheStats() (hits, misses int64)
}

// EngineCollector collects gauge metrics from the in-memory engine and, when
// the archive stores are enabled, row counts from Postgres and ClickHouse
type EngineCollector struct {
	log        *logger.Logger
	engine     EngineStats
	postgres   *sqlx.DB
	clickhouse driver.Conn

	historySize     *prometheus.Desc
	cacheEntriesHit *prometheus.Desc
	archivedHistory *prometheus.Desc
	recordedTicks   *prometheus.Desc
}

// NewEngineCollector creates a collector; postgres and clickhouse may be nil
// when the corresponding store is disabled
func NewEngineCollector(log *logger.Logger, engine EngineStats, postgres *sqlx.DB, clickhouse driver.Conn) *EngineCollector {
	return &EngineCollector{
		log:        log,
		engine:     engine,
		postgres:   postgres,
		clickhouse: clickhouse,

		historySize: prometheus.NewDesc(
			"pairwatch_history_entries",
			"Number of entries in the in-memory coefficient history",
			nil, nil,
		),
		cacheEntriesHit: prometheus.NewDesc(
			"pairwatch_tick_cache_hit_ratio",
			"Fraction of tick lookups served from cache",
			nil, nil,
		),
		archivedHistory: prometheus.NewDesc(
			"pairwatch_archived_history_rows",
			"Number of coefficient history rows archived to Postgres",
			nil, nil,
		),
		recordedTicks: prometheus.NewDesc(
			"pairwatch_recorded_tick_rows",
			"Number of tick rows recorded to ClickHouse",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.historySize
	ch <- c.cacheEntriesHit
	ch <- c.archivedHistory
	ch <- c.recordedTicks
}

// Collect implements prometheus.Collector
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch <- prometheus.MustNewConstMetric(
		c.historySize,
		prometheus.GaugeValue,
		float64(c.engine.HistorySize()),
	)

	hits, misses := c.engine.CacheStats()
	if total := hits + misses; total > 0 {
		ch <- prometheus.MustNewConstMetric(
			c.cacheEntriesHit,
			prometheus.GaugeValue,
			float64(hits)/float64(total),
		)
	}

	c.collectArchivedHistory(ctx, ch)
	c.collectRecordedTicks(ctx, ch)
}

func (c *EngineCollector) collectArchivedHistory(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.postgres == nil {
		return
	}

	var count int
	err := c.postgres.GetContext(ctx, &count, "SELECT COUNT(*) FROM correlation_history")
	if err != nil {
		c.log.Errorf("Failed to collect archived history metric: %v", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.archivedHistory,
		prometheus.GaugeValue,
		float64(count),
	)
}

func (c *EngineCollector) collectRecordedTicks(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.clickhouse == nil {
		return
	}

	row := c.clickhouse.QueryRow(ctx, "SELECT COUNT(*) FROM ticks")
	var count uint64
	if err := row.Scan(&count); err != nil {
		c.log.Errorf("Failed to collect recorded ticks metric: %v", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.recordedTicks,
		prometheus.GaugeValue,
		float64(count),
	)
}

// RegisterEngineCollector registers the engine collector
func RegisterEngineCollector(collector *EngineCollector) {
	prometheus.MustRegister(collector)
}
