package bootstrap

import (
	"context"
	"time"

	chclient "pairwatch/internal/adapters/clickhouse"
	"pairwatch/internal/adapters/config"
	pgclient "pairwatch/internal/adapters/postgres"
	chrepo "pairwatch/internal/repository/clickhouse"
	pgrepo "pairwatch/internal/repository/postgres"
	"pairwatch/internal/services/correlation"
	"pairwatch/internal/workers"
	"pairwatch/internal/workers/archive"
	"pairwatch/pkg/logger"
)

// provideWorkers builds the scheduler with the enabled archive workers.
// Config validation guarantees each enabled worker has its store connected.
func provideWorkers(
	svc *correlation.Service,
	pg *pgclient.Client,
	ch *chclient.Client,
	cfg *config.Config,
	log *logger.Logger,
) *workers.Scheduler {
	log.Info("Initializing workers...")

	scheduler := workers.NewScheduler()

	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ========================================
	// History Archiver (Postgres)
	// ========================================

	if cfg.Workers.HistoryArchiverEnabled {
		repo := pgrepo.NewHistoryRepository(pg.DB())
		if err := repo.EnsureSchema(schemaCtx); err != nil {
			log.Fatalf("failed to ensure history archive schema: %v", err)
		}
		scheduler.Register(archive.NewHistoryArchiver(svc, repo, cfg.Workers))
	}

	// ========================================
	// Tick Recorder (ClickHouse)
	// ========================================

	if cfg.Workers.TickRecorderEnabled {
		repo := chrepo.NewTickRepository(ch.Conn())
		if err := repo.EnsureSchema(schemaCtx); err != nil {
			log.Fatalf("failed to ensure tick archive schema: %v", err)
		}
		scheduler.Register(archive.NewTickRecorder(svc, repo, cfg.Workers))
	}

	log.Infof("✓ Workers initialized: %d registered", len(scheduler.Workers()))
	return scheduler
}
