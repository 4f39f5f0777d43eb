package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Calculation metrics
	CalculationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_calculation_runs_total",
			Help: "Total number of full coefficient calculations",
		},
		[]string{"status"}, // status: success|error
	)

	CalculationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pairwatch_calculation_duration_seconds",
			Help:    "Full coefficient calculation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	PairsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairwatch_pairs_tracked",
			Help: "Number of pairs in the current coefficient table",
		},
	)

	// Monitor metrics
	MonitorIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_monitor_iterations_total",
			Help: "Total number of monitor loop iterations",
		},
		[]string{"status"}, // status: success|error
	)

	MonitorIterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pairwatch_monitor_iteration_duration_seconds",
			Help:    "Monitor iteration duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	MonitorRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairwatch_monitor_running",
			Help: "Whether the monitor loop is running (0=stopped, 1=running)",
		},
	)

	PairsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairwatch_pairs_by_status",
			Help: "Number of pairs per live correlation status",
		},
		[]string{"status"},
	)

	// Tick cache metrics
	TickCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_tick_cache_lookups_total",
			Help: "Total tick cache lookups",
		},
		[]string{"result"}, // result: hit|miss
	)

	// Gateway metrics
	GatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_gateway_calls_total",
			Help: "Total number of market data gateway calls",
		},
		[]string{"endpoint", "status"}, // status: success|error|rate_limited
	)

	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairwatch_gateway_latency_seconds",
			Help:    "Market data gateway call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Snapshot metrics
	SnapshotOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_snapshot_operations_total",
			Help: "Total snapshot save/load operations",
		},
		[]string{"operation", "status"}, // operation: save|load
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairwatch_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairwatch_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairwatch_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// Messaging metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"}, // status: success|error
	)

	AlertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairwatch_alerts_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"channel", "status"}, // channel: telegram
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(CalculationRuns)
	prometheus.MustRegister(CalculationDuration)
	prometheus.MustRegister(PairsTracked)

	prometheus.MustRegister(MonitorIterations)
	prometheus.MustRegister(MonitorIterationDuration)
	prometheus.MustRegister(MonitorRunning)
	prometheus.MustRegister(PairsByStatus)

	prometheus.MustRegister(TickCacheLookups)

	prometheus.MustRegister(GatewayCalls)
	prometheus.MustRegister(GatewayLatency)

	prometheus.MustRegister(SnapshotOperations)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(AlertsSent)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCalculation records a full coefficient calculation
func RecordCalculation(duration time.Duration, pairs int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	CalculationRuns.WithLabelValues(status).Inc()
	CalculationDuration.Observe(duration.Seconds())
	if err == nil {
		PairsTracked.Set(float64(pairs))
	}
}

// RecordMonitorIteration records one monitor loop pass
func RecordMonitorIteration(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	MonitorIterations.WithLabelValues(status).Inc()
	MonitorIterationDuration.Observe(duration.Seconds())
}

// RecordCacheLookup records a tick cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	TickCacheLookups.WithLabelValues(result).Inc()
}

// RecordGatewayCall records a market data gateway call
func RecordGatewayCall(endpoint string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	GatewayCalls.WithLabelValues(endpoint, status).Inc()
	GatewayLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordSnapshot records a snapshot save or load
func RecordSnapshot(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SnapshotOperations.WithLabelValues(operation, status).Inc()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced Kafka message
func RecordKafkaMessage(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, status).Inc()
}

// RecordAlert records an outbound alert
func RecordAlert(channel string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AlertsSent.WithLabelValues(channel, status).Inc()
}

// SetPairStatusCounts replaces the per-status pair gauge
func SetPairStatusCounts(counts map[string]int) {
	PairsByStatus.Reset()
	for status, count := range counts {
		PairsByStatus.WithLabelValues(status).Set(float64(count))
	}
}
