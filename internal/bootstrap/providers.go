package bootstrap

import (
	"context"
	"os"
	"time"

	chclient "pairwatch/internal/adapters/clickhouse"
	"pairwatch/internal/adapters/config"
	errnoop "pairwatch/internal/adapters/errors/noop"
	"pairwatch/internal/adapters/errors/sentry"
	"pairwatch/internal/adapters/kafka"
	"pairwatch/internal/adapters/mt5"
	pgclient "pairwatch/internal/adapters/postgres"
	"pairwatch/internal/adapters/telegram"
	"pairwatch/internal/api"
	"pairwatch/internal/api/health"
	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/events"
	"pairwatch/internal/metrics"
	"pairwatch/internal/services/correlation"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads and validates configuration and initializes the logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the enabled archive stores and builds the
// MetaTrader gateway client
func (c *Container) MustInitInfrastructure() {
	var err error

	if c.Config.Postgres.Enabled {
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	}

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	}

	c.Gateway = mt5.NewClient(c.Config.Gateway)

	// A dead gateway is not fatal at startup, monitoring just stays idle
	// until the bridge comes back.
	pingCtx, cancel := context.WithTimeout(c.Context, 5*time.Second)
	defer cancel()
	if err := c.Gateway.Ping(pingCtx); err != nil {
		c.Log.Warnf("Gateway not reachable at startup: %v", err)
	} else {
		c.Log.Infow("✓ Gateway reachable", "url", c.Config.Gateway.BaseURL)
	}
}

// ========================================
// Phase 3: Correlation Engine
// ========================================

// MustInitEngine builds the correlation service and optionally restores the
// last snapshot
func (c *Container) MustInitEngine() {
	c.Service = correlation.NewService(c.Gateway, engineSettings(c.Config))

	if c.Config.Snapshot.LoadOnStart {
		c.restoreSnapshot()
	}
	c.Log.Info("✓ Correlation engine initialized")
}

// restoreSnapshot loads the autosave file when one exists. A corrupt or
// unreadable snapshot is logged and skipped so the engine still comes up;
// the operator can load a different file through the API.
func (c *Container) restoreSnapshot() {
	path := c.Config.Snapshot.File
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.Log.Infow("No snapshot to restore", "path", path)
		return
	}

	if err := c.Service.Load(path); err != nil {
		c.Log.Errorf("Failed to restore snapshot %s: %v", path, err)
		return
	}
	c.Log.Infow("Snapshot restored",
		"path", path,
		"records", c.Service.RecordCount(),
		"history", c.Service.HistorySize(),
	)
}

// ========================================
// Phase 4: Outbound Adapters
// ========================================

// MustInitAdapters wires the enabled event sinks onto the engine
func (c *Container) MustInitAdapters() {
	if c.Config.Kafka.Enabled {
		c.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
		c.Publisher = events.NewPublisher(c.KafkaProducer)
		c.Publisher.Attach(c.Service)
		c.Log.Info("✓ Event publisher attached")
	}

	if c.Config.Telegram.Enabled {
		bot, err := telegram.NewBot(telegram.Config{Token: c.Config.Telegram.BotToken})
		if err != nil {
			c.Log.Fatalf("failed to initialize telegram bot: %v", err)
		}
		c.Notifier = telegram.NewNotifier(bot, c.Config.Telegram.ChatID, c.Config.Telegram.AlertCooldown)
		c.Notifier.Attach(c.Service)
		c.Log.Info("✓ Telegram alerts attached")
	}
}

// ========================================
// Phase 5: Background Processing
// ========================================

// MustInitBackground builds the worker scheduler with the enabled archive
// workers
func (c *Container) MustInitBackground() {
	c.Scheduler = provideWorkers(c.Service, c.PG, c.CH, c.Config, c.Log)
	c.Log.Info("✓ Background processing initialized")
}

// ========================================
// Phase 6: Application Layer
// ========================================

// MustInitApplication builds the HTTP server, health checks and metrics
func (c *Container) MustInitApplication() {
	defaults, err := provideDefaults(c.Config)
	if err != nil {
		c.Log.Fatalf("failed to build API defaults: %v", err)
	}
	c.Defaults = defaults

	var (
		pgDB   *sqlx.DB
		chConn driver.Conn
	)
	if c.PG != nil {
		pgDB = c.PG.DB()
	}
	if c.CH != nil {
		chConn = c.CH.Conn()
	}

	c.HealthHandler = health.New(c.Log, c.Gateway, pgDB, chConn, c.Config.App.Name, c.Config.App.Version)

	controlHandler := api.NewHandler(c.Context, c.Service, c.Defaults, c.Scheduler)
	c.HTTPServer = api.NewServer(api.ServerConfig{
		Port:        c.Config.HTTP.Port,
		ServiceName: c.Config.App.Name,
		Version:     c.Config.App.Version,
	}, c.HealthHandler, controlHandler, c.Log)

	metrics.Init()
	engineCollector := metrics.NewEngineCollector(c.Log, c.Service, pgDB, chConn)
	metrics.RegisterEngineCollector(engineCollector)
	c.Log.Info("✓ Metrics initialized")

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...")
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Async:   false,
	})
	log.Info("✓ Kafka producer initialized")
	return producer
}

// engineSettings converts the config into the engine's baseline settings
func engineSettings(cfg *config.Config) correlation.Settings {
	return correlation.Settings{
		MonitoringThreshold: cfg.Correlation.MonitoringThreshold,
		DivergenceThreshold: cfg.Correlation.DivergenceThreshold,
		MonitorInverse:      cfg.Correlation.MonitorInverse,
		MinPrices:           cfg.Correlation.MinPrices,
		MaxSetSizeDiffPct:   cfg.Correlation.MaxSetSizeDiffPct,
		OverlapPct:          cfg.Correlation.OverlapPct,
		MaxPValue:           cfg.Correlation.MaxPValue,
		CacheTTL:            cfg.Monitor.CacheTTL,
	}
}

// monitorSettings expands the configured lookback windows into the engine's
// monitor settings
func monitorSettings(cfg *config.Config) correlation.MonitorSettings {
	configured := cfg.Monitor.Windows()
	windows := make([]domain.Window, 0, len(configured))
	for _, w := range configured {
		windows = append(windows, domain.Window{
			LookbackMinutes:   w.LookbackMinutes,
			MinPrices:         w.MinPrices,
			MaxSetSizeDiffPct: w.MaxSetSizeDiffPct,
			OverlapPct:        w.OverlapPct,
			MaxPValue:         w.MaxPValue,
		})
	}

	return correlation.MonitorSettings{
		Interval:     cfg.Monitor.Interval,
		CacheTTL:     cfg.Monitor.CacheTTL,
		Windows:      windows,
		Autosave:     cfg.Monitor.Autosave,
		AutosavePath: cfg.Snapshot.File,
	}
}

// provideDefaults builds the request fallbacks served by the control API
func provideDefaults(cfg *config.Config) (api.Defaults, error) {
	timeframe, err := market_data.ParseTimeframe(cfg.Correlation.Timeframe)
	if err != nil {
		return api.Defaults{}, errors.Wrap(err, "CALCULATE_TIMEFRAME")
	}

	return api.Defaults{
		CalculateDays:      cfg.Correlation.CalculateFromDays,
		CalculateTimeframe: timeframe,
		Monitor:            monitorSettings(cfg),
		SnapshotFile:       cfg.Snapshot.File,
	}, nil
}
