package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"pairwatch/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Gateway       GatewayConfig
	Correlation   CorrelationConfig
	Monitor       MonitorConfig
	Snapshot      SnapshotConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"pairwatch"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type HTTPConfig struct {
	Port int `envconfig:"HTTP_PORT" default:"8080"`
}

// GatewayConfig points at the MetaTrader HTTP bridge that serves symbols,
// bars and ticks
type GatewayConfig struct {
	BaseURL    string        `envconfig:"MT5_GATEWAY_URL" default:"http://localhost:5000"`
	APIKey     string        `envconfig:"MT5_GATEWAY_API_KEY"`
	Timeout    time.Duration `envconfig:"MT5_GATEWAY_TIMEOUT" default:"30s"`
	RateLimit  int           `envconfig:"MT5_GATEWAY_RATE_LIMIT" default:"10"`
	RateBurst  int           `envconfig:"MT5_GATEWAY_RATE_BURST" default:"20"`
	MaxRetries int           `envconfig:"MT5_GATEWAY_MAX_RETRIES" default:"2"`
	RetryDelay time.Duration `envconfig:"MT5_GATEWAY_RETRY_DELAY" default:"500ms"`
}

// CorrelationConfig holds the engine tunables and the baseline calculation
// defaults used when a calculate request omits parameters
type CorrelationConfig struct {
	MonitoringThreshold float64 `envconfig:"MONITORING_THRESHOLD" default:"0.9"`
	DivergenceThreshold float64 `envconfig:"DIVERGENCE_THRESHOLD" default:"0.8"`
	MonitorInverse      bool    `envconfig:"MONITOR_INVERSE" default:"false"`

	CalculateFromDays int     `envconfig:"CALCULATE_FROM_DAYS" default:"90"`
	Timeframe         string  `envconfig:"CALCULATE_TIMEFRAME" default:"M15"`
	MinPrices         int     `envconfig:"CALCULATE_MIN_PRICES" default:"100"`
	MaxSetSizeDiffPct float64 `envconfig:"CALCULATE_MAX_SET_SIZE_DIFF_PCT" default:"90"`
	OverlapPct        float64 `envconfig:"CALCULATE_OVERLAP_PCT" default:"90"`
	MaxPValue         float64 `envconfig:"CALCULATE_MAX_P_VALUE" default:"0.05"`
}

// WindowConfig describes one monitoring lookback window
type WindowConfig struct {
	LookbackMinutes   float64
	MinPrices         int
	MaxSetSizeDiffPct float64
	OverlapPct        float64
	MaxPValue         float64
}

type MonitorConfig struct {
	Autostart bool          `envconfig:"MONITOR_AUTOSTART" default:"false"`
	Interval  time.Duration `envconfig:"MONITOR_INTERVAL" default:"1m"`
	CacheTTL  time.Duration `envconfig:"MONITOR_TICK_CACHE_TTL" default:"10s"`
	Autosave  bool          `envconfig:"MONITOR_AUTOSAVE" default:"false"`

	LongLookbackMinutes   float64 `envconfig:"MONITOR_LONG_LOOKBACK_MINUTES" default:"60"`
	MediumLookbackMinutes float64 `envconfig:"MONITOR_MEDIUM_LOOKBACK_MINUTES" default:"30"`
	ShortLookbackMinutes  float64 `envconfig:"MONITOR_SHORT_LOOKBACK_MINUTES" default:"15"`
	MinPrices             int     `envconfig:"MONITOR_MIN_PRICES" default:"100"`
	MaxSetSizeDiffPct     float64 `envconfig:"MONITOR_MAX_SET_SIZE_DIFF_PCT" default:"90"`
	OverlapPct            float64 `envconfig:"MONITOR_OVERLAP_PCT" default:"90"`
	MaxPValue             float64 `envconfig:"MONITOR_MAX_P_VALUE" default:"0.05"`
}

// Windows expands the long/medium/short settings into the ordered window list
func (c MonitorConfig) Windows() []WindowConfig {
	windows := make([]WindowConfig, 0, 3)
	for _, lookback := range []float64{c.LongLookbackMinutes, c.MediumLookbackMinutes, c.ShortLookbackMinutes} {
		if lookback <= 0 {
			continue
		}
		windows = append(windows, WindowConfig{
			LookbackMinutes:   lookback,
			MinPrices:         c.MinPrices,
			MaxSetSizeDiffPct: c.MaxSetSizeDiffPct,
			OverlapPct:        c.OverlapPct,
			MaxPValue:         c.MaxPValue,
		})
	}
	return windows
}

type SnapshotConfig struct {
	File           string `envconfig:"SNAPSHOT_FILE" default:"autosave.cpd"`
	LoadOnStart    bool   `envconfig:"SNAPSHOT_LOAD_ON_START" default:"true"`
	SaveOnShutdown bool   `envconfig:"SNAPSHOT_SAVE_ON_SHUTDOWN" default:"false"`
}

type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"pairwatch"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"pairwatch"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"pairwatch"`
}

func (c ClickHouseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
}

type TelegramConfig struct {
	Enabled       bool          `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken      string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID        int64         `envconfig:"TELEGRAM_CHAT_ID"`
	AlertCooldown time.Duration `envconfig:"TELEGRAM_ALERT_COOLDOWN" default:"15m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for the background archive workers
type WorkerConfig struct {
	HistoryArchiverEnabled  bool          `envconfig:"WORKER_HISTORY_ARCHIVER_ENABLED" default:"false"`
	HistoryArchiverInterval time.Duration `envconfig:"WORKER_HISTORY_ARCHIVER_INTERVAL" default:"1m"`
	TickRecorderEnabled     bool          `envconfig:"WORKER_TICK_RECORDER_ENABLED" default:"false"`
	TickRecorderInterval    time.Duration `envconfig:"WORKER_TICK_RECORDER_INTERVAL" default:"1m"`
	ArchiveBatchSize        int           `envconfig:"WORKER_ARCHIVE_BATCH_SIZE" default:"500"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that envconfig tags cannot express
func (c *Config) Validate() error {
	errs := &errors.MultiError{}

	if c.Gateway.BaseURL == "" {
		errs.Add(errors.Wrapf(errors.ErrMissingConfig, "MT5_GATEWAY_URL is required"))
	} else if _, err := url.Parse(c.Gateway.BaseURL); err != nil {
		errs.Add(errors.Wrapf(errors.ErrInvalidInput, "MT5_GATEWAY_URL: %v", err))
	}

	if c.Correlation.MonitoringThreshold < 0 || c.Correlation.MonitoringThreshold > 1 {
		errs.Add(errors.NewValidationError("MONITORING_THRESHOLD", "must be within [0, 1]", c.Correlation.MonitoringThreshold))
	}
	if c.Correlation.DivergenceThreshold < 0 || c.Correlation.DivergenceThreshold > 1 {
		errs.Add(errors.NewValidationError("DIVERGENCE_THRESHOLD", "must be within [0, 1]", c.Correlation.DivergenceThreshold))
	}
	if c.Monitor.Interval <= 0 {
		errs.Add(errors.NewValidationError("MONITOR_INTERVAL", "must be positive", c.Monitor.Interval))
	}
	if len(c.Monitor.Windows()) == 0 {
		errs.Add(errors.Wrapf(errors.ErrMissingConfig, "at least one monitor lookback window is required"))
	}

	if c.Postgres.Enabled && c.Postgres.Host == "" {
		errs.Add(errors.Wrapf(errors.ErrMissingConfig, "POSTGRES_HOST is required when POSTGRES_ENABLED"))
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		errs.Add(errors.Wrapf(errors.ErrMissingConfig, "CLICKHOUSE_HOST is required when CLICKHOUSE_ENABLED"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs.Add(errors.Wrapf(errors.ErrMissingConfig, "KAFKA_BROKERS is required when KAFKA_ENABLED"))
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			errs.Add(errors.Wrapf(errors.ErrMissingConfig, "TELEGRAM_BOT_TOKEN is required when TELEGRAM_ENABLED"))
		}
		if c.Telegram.ChatID == 0 {
			errs.Add(errors.Wrapf(errors.ErrMissingConfig, "TELEGRAM_CHAT_ID is required when TELEGRAM_ENABLED"))
		}
	}
	if c.Workers.HistoryArchiverEnabled && !c.Postgres.Enabled {
		errs.Add(errors.Wrapf(errors.ErrMissingConfig, "history archiver requires POSTGRES_ENABLED"))
	}
	if c.Workers.TickRecorderEnabled && !c.ClickHouse.Enabled {
		errs.Add(errors.Wrapf(errors.ErrMissingConfig, "tick recorder requires CLICKHOUSE_ENABLED"))
	}

	return errs.ToError()
}
