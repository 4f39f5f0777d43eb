package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "pairwatch/internal/adapters/clickhouse"
	"pairwatch/internal/adapters/kafka"
	pgclient "pairwatch/internal/adapters/postgres"
	"pairwatch/internal/api"
	"pairwatch/internal/workers"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
	}
}

// Shutdown performs coordinated cleanup of all components in the correct order:
// 1. No new requests accepted
// 2. Archive workers finish their current pass
// 3. Producer closes after nothing can publish
// 4. Logs and errors flushed
// 5. Database connections last (earlier steps may still need them)
func (l *Lifecycle) Shutdown(
	wg *sync.WaitGroup,
	httpServer *api.Server,
	workerScheduler *workers.Scheduler,
	kafkaProducer *kafka.Producer,
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	log.Info("[1/7] Stopping HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
	defer httpCancel()

	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Errorw("HTTP server shutdown failed", "error", err)
	}

	// ========================================
	// Step 2: Stop Background Workers
	// ========================================
	log.Info("[2/7] Stopping background workers...")
	if err := workerScheduler.Stop(); err != nil {
		log.Errorw("Workers shutdown failed", "error", err)
	} else {
		log.Info("✓ Workers stopped")
	}

	// ========================================
	// Step 3: Wait for Goroutines
	// ========================================
	log.Info("[3/7] Waiting for goroutines...")
	l.waitForGoroutines(wg, 5*time.Second, log)

	// ========================================
	// Step 4: Close Kafka Producer
	// ========================================
	log.Info("[4/7] Closing Kafka producer...")
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 5: Flush Error Tracker
	// ========================================
	log.Info("[5/7] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, errorTracker, log)

	// ========================================
	// Step 6: Sync Logs
	// ========================================
	log.Info("[6/7] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	} else {
		log.Info("✓ Logs synced")
	}

	// ========================================
	// Step 7: Close Database Connections
	// LAST - earlier steps may need them
	// ========================================
	log.Info("[7/7] Closing database connections...")
	l.closeDatabases(pgClient, chClient, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes the archive store connections
func (l *Lifecycle) closeDatabases(pgClient *pgclient.Client, chClient *chclient.Client, log *logger.Logger) {
	var dbErrors []error

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorw("Database close errors", "errors", dbErrors)
	} else {
		log.Info("✓ Database connections closed")
	}
}
