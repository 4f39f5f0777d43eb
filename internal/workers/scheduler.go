package workers

import (
	"context"
	"sync"
	"time"

	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// shutdownTimeout bounds how long Stop waits for in-flight worker
// iterations. Archive batches flush in seconds, so a worker stuck past
// this is a bug, not a slow batch.
const shutdownTimeout = 30 * time.Second

// recorder is implemented by workers that track their own run statistics,
// BaseWorker among them.
type recorder interface {
	RecordRun(duration time.Duration)
	RecordError(err error, duration time.Duration)
}

// Scheduler manages and coordinates multiple workers
type Scheduler struct {
	workers []Worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	log     *logger.Logger
	started bool
}

// NewScheduler creates a new worker scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		workers: make([]Worker, 0),
		log:     logger.Get(),
	}
}

// Register adds a worker to the scheduler
func (s *Scheduler) Register(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}

	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval(), "enabled", w.Enabled())
}

// Start begins running all registered workers. Workers disabled at start
// never get a loop; workers disabled later skip executions until re-enabled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Infow("Starting worker scheduler", "workers", len(s.workers))

	for _, worker := range s.workers {
		if !worker.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", worker.Name())
			continue
		}

		s.wg.Add(1)
		go s.runWorker(worker)
	}

	return nil
}

// Stop gracefully shuts down all workers
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.mu.Unlock()

	s.log.Info("Stopping worker scheduler...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		s.log.Info("All workers stopped")
	case <-time.After(shutdownTimeout):
		s.log.Warnw("Worker shutdown timed out", "timeout", shutdownTimeout)
		shutdownErr = errors.Wrapf(errors.ErrTimeout, "worker shutdown after %s", shutdownTimeout)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return shutdownErr
}

// runWorker executes a single worker in a loop
func (s *Scheduler) runWorker(worker Worker) {
	defer s.wg.Done()

	s.log.Infow("Worker started", "worker", worker.Name())

	ticker := time.NewTicker(worker.Interval())
	defer ticker.Stop()

	// First pass runs immediately so a restart does not sit idle for a
	// full interval.
	s.executeWorker(worker)

	for {
		select {
		case <-s.ctx.Done():
			s.log.Infow("Worker stopping", "worker", worker.Name())
			return

		case <-ticker.C:
			s.executeWorker(worker)
		}
	}
}

// executeWorker runs a single iteration of the worker with panic recovery,
// and feeds the outcome into the worker's health counters and the metrics.
func (s *Scheduler) executeWorker(worker Worker) {
	if !worker.Enabled() {
		return
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Worker panicked", "worker", worker.Name(), "panic", r)
		}
	}()

	err := worker.Run(s.ctx)
	duration := time.Since(start)

	metrics.RecordWorkerExecution(worker.Name(), duration, err)
	if rec, ok := worker.(recorder); ok {
		if err != nil {
			rec.RecordError(err, duration)
		} else {
			rec.RecordRun(duration)
		}
	}

	if err != nil {
		s.log.Errorw("Worker execution failed",
			"worker", worker.Name(),
			"error", err,
			"duration", duration,
		)
	} else {
		s.log.Debugw("Worker execution completed",
			"worker", worker.Name(),
			"duration", duration,
		)
	}
}

// Workers returns all registered workers
func (s *Scheduler) Workers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers := make([]Worker, len(s.workers))
	copy(workers, s.workers)
	return workers
}

// Health reports per-worker health for every registered worker that
// tracks it, keyed by worker name
func (s *Scheduler) Health() map[string]WorkerHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := make(map[string]WorkerHealth, len(s.workers))
	for _, w := range s.workers {
		if hw, ok := w.(WorkerWithHealth); ok {
			health[w.Name()] = hw.Health()
		}
	}
	return health
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
