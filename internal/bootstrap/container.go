package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "pairwatch/internal/adapters/clickhouse"
	"pairwatch/internal/adapters/config"
	"pairwatch/internal/adapters/kafka"
	"pairwatch/internal/adapters/mt5"
	pgclient "pairwatch/internal/adapters/postgres"
	"pairwatch/internal/adapters/telegram"
	"pairwatch/internal/api"
	"pairwatch/internal/api/health"
	"pairwatch/internal/events"
	"pairwatch/internal/services/correlation"
	"pairwatch/internal/workers"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer
	PG      *pgclient.Client // nil unless POSTGRES_ENABLED
	CH      *chclient.Client // nil unless CLICKHOUSE_ENABLED
	Gateway *mt5.Client

	// Correlation Engine
	Service  *correlation.Service
	Defaults api.Defaults

	// Outbound Adapters
	KafkaProducer *kafka.Producer    // nil unless KAFKA_ENABLED
	Publisher     *events.Publisher  // nil unless KAFKA_ENABLED
	Notifier      *telegram.Notifier // nil unless TELEGRAM_ENABLED

	// Background Processing
	Scheduler *workers.Scheduler

	// Application Layer
	HTTPServer    *api.Server
	HealthHandler *health.Handler

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Lifecycle: NewLifecycle(),
		WG:        &sync.WaitGroup{},
		Context:   ctx,
		Cancel:    cancel,
	}
}

// MustInit initializes all components in the correct order.
// Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitEngine()
	c.MustInitAdapters()
	c.MustInitBackground()
	c.MustInitApplication()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if err := c.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "start workers")
	}

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.autostart()

	c.Log.Info("✓ All systems operational")
	return nil
}

// autostart optionally computes a missing baseline and starts the monitor.
// Failures here are logged, not fatal: the HTTP API stays available so the
// operator can recover manually.
func (c *Container) autostart() {
	if !c.Config.Monitor.Autostart {
		return
	}

	if c.Service.RecordCount() == 0 {
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -c.Defaults.CalculateDays)
		c.Log.Infow("Autostart: calculating baseline coefficients",
			"from", from,
			"to", to,
			"timeframe", c.Defaults.CalculateTimeframe,
		)
		if err := c.Service.Calculate(c.Context, from, to, c.Defaults.CalculateTimeframe); err != nil {
			c.Log.Errorf("Autostart calculation failed: %v", err)
		}
	}

	if err := c.Service.StartMonitor(c.Context, c.Defaults.Monitor); err != nil {
		c.Log.Errorf("Autostart monitor failed: %v", err)
		return
	}
	c.Log.Info("✓ Monitor autostarted")
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// The monitor goes first so no new transitions are produced while the
	// rest of the stack drains.
	c.Service.StopMonitor()

	if c.Config.Snapshot.SaveOnShutdown {
		if err := c.Service.Save(c.Config.Snapshot.File); err != nil {
			c.Log.Errorf("Failed to save shutdown snapshot: %v", err)
		} else {
			c.Log.Infow("Snapshot saved", "path", c.Config.Snapshot.File)
		}
	}

	// Cancel application context to signal all other components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.HTTPServer,
		c.Scheduler,
		c.KafkaProducer,
		c.PG,
		c.CH,
		c.ErrorTracker,
		c.Log,
	)
}
