package correlation

import (
	"context"
	"sort"
	"time"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// monitor drives the periodic divergence checks. The first check fires one
// full interval after start, never immediately.
type monitor struct {
	service  *Service
	settings MonitorSettings
	log      *logger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// StartMonitor launches the background monitor. Starting while already
// running stops the current monitor first and starts a fresh one with the
// given settings.
func (s *Service) StartMonitor(ctx context.Context, settings MonitorSettings) error {
	if settings.Interval <= 0 {
		return errors.Wrap(errors.ErrInvalidInput, "monitor interval must be positive")
	}
	if len(settings.Windows) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "monitor needs at least one lookback window")
	}
	for _, window := range settings.Windows {
		if window.LookbackMinutes <= 0 {
			return errors.Wrap(errors.ErrInvalidInput, "lookback windows must be positive")
		}
	}

	// Longest window first; classification and history writes depend on
	// this order.
	windows := make([]domain.Window, len(settings.Windows))
	copy(windows, settings.Windows)
	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].LookbackMinutes > windows[j].LookbackMinutes
	})
	settings.Windows = windows

	s.monMu.Lock()
	defer s.monMu.Unlock()

	if s.monitor != nil {
		s.log.Info("Monitor already running, restarting with new settings")
		s.stopMonitorLocked()
	}

	s.cache.SetTTL(settings.CacheTTL)

	runCtx, cancel := context.WithCancel(ctx)
	m := &monitor{
		service:  s,
		settings: settings,
		log:      s.log,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go m.run(runCtx)

	s.monitor = m
	s.monitorCtx = ctx
	s.monitorSettings = settings
	metrics.MonitorRunning.Set(1)
	s.log.Infof("Monitor started: interval=%s windows=%d autosave=%t", settings.Interval, len(settings.Windows), settings.Autosave)
	s.notifyMonitorState(true, settings)
	return nil
}

// StopMonitor stops the background monitor and waits for the current
// iteration to finish. Stopping an already stopped monitor is a no-op.
func (s *Service) StopMonitor() {
	s.monMu.Lock()
	defer s.monMu.Unlock()
	s.stopMonitorLocked()
}

func (s *Service) stopMonitorLocked() {
	if s.monitor == nil {
		s.log.Debug("Monitor already stopped")
		return
	}
	s.monitor.stop()
	s.monitor = nil
	metrics.MonitorRunning.Set(0)
	s.log.Info("Monitor stopped")
	s.notifyMonitorState(false, s.monitorSettings)
}

// MonitorRunning reports whether the background monitor is active
func (s *Service) MonitorRunning() bool {
	s.monMu.Lock()
	defer s.monMu.Unlock()
	return s.monitor != nil
}

// MonitorState reports whether the monitor runs together with the settings
// of the current or most recent run
func (s *Service) MonitorState() (running bool, settings MonitorSettings) {
	s.monMu.Lock()
	defer s.monMu.Unlock()
	return s.monitor != nil, s.monitorSettings
}

func (m *monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.iterate(ctx)
		}
	}
}

func (m *monitor) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("Recovered panic in monitor iteration: %v", r)
			metrics.MonitorIterations.WithLabelValues("error").Inc()
		}
	}()

	started := time.Now()
	m.service.checkPairs(ctx, m.settings)
	metrics.RecordMonitorIteration(time.Since(started), nil)

	if m.settings.Autosave && m.settings.AutosavePath != "" {
		if err := m.service.Save(m.settings.AutosavePath); err != nil {
			m.log.Errorf("Autosave failed: %v", err)
		}
	}
}

func (m *monitor) stop() {
	m.cancel()
	select {
	case <-m.done:
	case <-time.After(30 * time.Second):
		m.log.Warn("Monitor did not stop within 30s")
	}
}

// checkPairs runs one monitor pass: for every pair inside the monitoring
// filter, fetch ticks over the longest window, resample, compute per-window
// coefficients, update the pair's live status and append to the history
func (s *Service) checkPairs(ctx context.Context, settings MonitorSettings) {
	windows := settings.Windows
	now := time.Now().UTC()
	from := now.Add(-windows[0].Span())

	s.mu.RLock()
	records := make([]*domain.Record, 0, len(s.records))
	for _, record := range s.records {
		if record.BaseCoefficient >= s.monitoringThreshold ||
			(s.monitorInverse && record.BaseCoefficient <= -s.monitoringThreshold) {
			records = append(records, record)
		}
	}
	threshold := s.divergenceThreshold
	inverseEnabled := s.monitorInverse
	s.mu.RUnlock()

	if len(records) == 0 {
		s.log.Debug("No pairs to monitor")
		return
	}

	resampled := make(map[string]market_data.PriceSeries)
	var transitions []StatusTransition

	for _, record := range records {
		if ctx.Err() != nil {
			return
		}

		series1, err := s.monitorPrices(ctx, resampled, record.Symbol1, from, now)
		if err != nil {
			s.log.Warnf("Skipping %s, ticks for %s cannot be resampled: %v", record.String(), record.Symbol1, err)
			continue
		}
		series2, err := s.monitorPrices(ctx, resampled, record.Symbol2, from, now)
		if err != nil {
			s.log.Warnf("Skipping %s, ticks for %s cannot be resampled: %v", record.String(), record.Symbol2, err)
			continue
		}

		coefficients := make([]*float64, len(windows))
		for i, window := range windows {
			if len(series1) == 0 || len(series2) == 0 {
				continue
			}

			windowFrom := now.Add(-window.Span())
			slice1 := series1.Slice(windowFrom, now)
			slice2 := series2.Slice(windowFrom, now)
			if len(slice1) == 0 || len(slice2) == 0 {
				continue
			}

			coefficient, err := s.calc.Coefficient(slice1, slice2, window)
			if err != nil {
				s.log.Warnf("Coefficient failed for %s over %.2f minutes: %v", record.String(), window.LookbackMinutes, err)
				continue
			}
			coefficients[i] = coefficient
		}

		inverse := inverseEnabled && record.BaseCoefficient < 0
		status := Classify(coefficients, threshold, inverse)
		shortest := coefficients[len(coefficients)-1]

		s.mu.Lock()
		checkedAt := now
		record.LastCheckedAt = &checkedAt
		record.LastCoefficient = shortest
		previous := record.Status
		record.Status = status
		for i, window := range windows {
			if coefficients[i] == nil {
				continue
			}
			s.history = append(s.history, domain.HistoryEntry{
				SymbolPair:      record.SymbolPair,
				Coefficient:     *coefficients[i],
				LookbackMinutes: window.LookbackMinutes,
				DateTo:          now,
			})
		}
		s.mu.Unlock()

		if previous != status {
			transitions = append(transitions, StatusTransition{
				Pair:        record.SymbolPair,
				From:        previous,
				To:          status,
				Coefficient: shortest,
				At:          now,
			})
		}
	}

	statusCounts := make(map[string]int)
	s.mu.RLock()
	for _, record := range s.records {
		statusCounts[record.Status.String()]++
	}
	s.mu.RUnlock()
	metrics.SetPairStatusCounts(statusCounts)

	if len(transitions) > 0 {
		s.notify(transitions)
	}
}

// monitorPrices fetches ticks through the cache and resamples them, memoising
// the result so one pass resamples each symbol once. A fetch failure logs a
// warning and yields an empty series; a resample failure is returned to the
// caller.
func (s *Service) monitorPrices(ctx context.Context, resampled map[string]market_data.PriceSeries, symbol string, from, to time.Time) (market_data.PriceSeries, error) {
	if series, ok := resampled[symbol]; ok {
		return series, nil
	}

	ticks, err := s.cache.Ticks(ctx, symbol, from, to, false)
	if err != nil {
		s.log.Warnf("Tick fetch failed for %s: %v", symbol, err)
		resampled[symbol] = nil
		return nil, nil
	}

	series, err := ResampleTicks(ticks)
	if err != nil {
		return nil, err
	}

	resampled[symbol] = series
	return series, nil
}
