package correlation

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Settings holds the engine parameters for full coefficient calculations and
// for filtering the resulting table
type Settings struct {
	MonitoringThreshold float64
	DivergenceThreshold float64
	MonitorInverse      bool
	MinPrices           int
	MaxSetSizeDiffPct   float64
	OverlapPct          float64
	MaxPValue           float64
	CacheTTL            time.Duration
}

// MonitorSettings holds the parameters of one monitoring run
type MonitorSettings struct {
	Interval     time.Duration
	CacheTTL     time.Duration
	Windows      []domain.Window
	Autosave     bool
	AutosavePath string
}

// StatusTransition describes a pair moving from one live status to another
// during a monitor pass
type StatusTransition struct {
	Pair        domain.SymbolPair
	From        domain.Status
	To          domain.Status
	Coefficient *float64
	At          time.Time
}

// Service owns the coefficient table, its history and the tick cache, and
// coordinates full calculations with the background monitor. All state access
// is guarded by one RWMutex; the monitor lifecycle has its own small mutex so
// stopping the monitor never holds the state lock.
type Service struct {
	mu sync.RWMutex

	provider market_data.Provider
	calc     *Calculator
	cache    *TickCache
	log      *logger.Logger

	monitoringThreshold float64
	divergenceThreshold float64
	monitorInverse      bool
	baseGates           domain.Window

	records        []*domain.Record
	byKey          map[string]*domain.Record
	priceData      map[string]market_data.PriceSeries
	history        []domain.HistoryEntry
	listeners      []func(StatusTransition)
	stateListeners []func(bool, MonitorSettings)

	monMu           sync.Mutex
	monitor         *monitor
	monitorCtx      context.Context
	monitorSettings MonitorSettings
}

func NewService(provider market_data.Provider, settings Settings) *Service {
	return &Service{
		provider:            provider,
		calc:                NewCalculator(),
		cache:               NewTickCache(provider, settings.CacheTTL),
		log:                 logger.Get(),
		monitoringThreshold: settings.MonitoringThreshold,
		divergenceThreshold: settings.DivergenceThreshold,
		monitorInverse:      settings.MonitorInverse,
		baseGates: domain.Window{
			MinPrices:         settings.MinPrices,
			MaxSetSizeDiffPct: settings.MaxSetSizeDiffPct,
			OverlapPct:        settings.OverlapPct,
			MaxPValue:         settings.MaxPValue,
		},
		byKey:     make(map[string]*domain.Record),
		priceData: make(map[string]market_data.PriceSeries),
	}
}

// Calculate rebuilds the coefficient table from historic bars for every
// visible symbol pair. A running monitor is stopped for the duration and
// restarted with its previous settings afterwards. History is left untouched.
func (s *Service) Calculate(ctx context.Context, from, to time.Time, timeframe market_data.Timeframe) error {
	started := time.Now()

	s.monMu.Lock()
	wasRunning := s.monitor != nil
	restartCtx := s.monitorCtx
	restartSettings := s.monitorSettings
	s.monMu.Unlock()

	if wasRunning {
		s.log.Info("Stopping monitor for recalculation")
		s.StopMonitor()
	}

	err := s.calculate(ctx, from, to, timeframe)
	metrics.RecordCalculation(time.Since(started), s.RecordCount(), err)

	if wasRunning {
		if startErr := s.StartMonitor(restartCtx, restartSettings); startErr != nil {
			s.log.Errorf("Failed to restart monitor after calculation: %v", startErr)
		}
	}
	return err
}

func (s *Service) calculate(ctx context.Context, from, to time.Time, timeframe market_data.Timeframe) error {
	if !from.Before(to) {
		return errors.Wrap(errors.ErrInvalidInput, "calculation range is empty")
	}

	symbols, err := s.provider.VisibleSymbols(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching visible symbols")
	}
	s.log.Infof("Calculating coefficients for %d symbols between %s and %s", len(symbols), from.Format(time.RFC3339), to.Format(time.RFC3339))

	prices := make(map[string]market_data.PriceSeries, len(symbols))
	for _, symbol := range symbols {
		series, err := s.provider.Bars(ctx, symbol, from, to, timeframe)
		if err != nil {
			s.log.Warnf("Skipping %s, bar fetch failed: %v", symbol, err)
			continue
		}
		if len(series) == 0 {
			s.log.Debugf("No prices for %s in range", symbol)
			continue
		}
		prices[symbol] = series
	}

	records := make([]*domain.Record, 0)
	for i := 0; i < len(symbols); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j := i + 1; j < len(symbols); j++ {
			series1, ok1 := prices[symbols[i]]
			series2, ok2 := prices[symbols[j]]
			if !ok1 || !ok2 {
				continue
			}

			coefficient, err := s.calc.Coefficient(series1, series2, s.baseGates)
			if err != nil {
				return errors.Wrapf(err, "calculating %s:%s", symbols[i], symbols[j])
			}
			if coefficient == nil {
				continue
			}

			records = append(records, &domain.Record{
				SymbolPair:      domain.NewPair(symbols[i], symbols[j]),
				BaseCoefficient: *coefficient,
				DateFrom:        from,
				DateTo:          to,
				Timeframe:       timeframe,
				Status:          domain.StatusNotCalculated,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].BaseCoefficient > records[j].BaseCoefficient
	})

	byKey := make(map[string]*domain.Record, len(records))
	for _, record := range records {
		byKey[record.Key()] = record
	}

	s.mu.Lock()
	s.records = records
	s.byKey = byKey
	s.priceData = prices
	s.mu.Unlock()

	s.log.Infof("Calculation produced %d correlated pairs", len(records))
	return nil
}

// Records returns a copy of the coefficient table, ordered by base
// coefficient descending
func (s *Service) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Record, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, *record)
	}
	return out
}

// FilteredRecords returns the rows at or above the monitoring threshold.
// With inverse monitoring enabled, rows at or below the negated threshold
// are included as well.
func (s *Service) FilteredRecords() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Record, 0)
	for _, record := range s.records {
		if record.BaseCoefficient >= s.monitoringThreshold {
			out = append(out, *record)
			continue
		}
		if s.monitorInverse && record.BaseCoefficient <= -s.monitoringThreshold {
			out = append(out, *record)
		}
	}
	return out
}

// DivergedSymbols counts, per symbol, the monitored pairs currently in a
// divergent status. Ordered by count descending, ties by symbol.
func (s *Service) DivergedSymbols() []domain.SymbolDivergence {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, record := range s.records {
		if record.Status.Divergent() {
			counts[record.Symbol1]++
			counts[record.Symbol2]++
		}
	}
	s.mu.RUnlock()

	out := make([]domain.SymbolDivergence, 0, len(counts))
	for symbol, count := range counts {
		out = append(out, domain.SymbolDivergence{Symbol: symbol, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// History returns the monitoring history matching the filter, oldest first.
// A filter naming both symbols matches the pair in either order.
func (s *Service) History(filter domain.HistoryFilter) []domain.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pairKey string
	if filter.Symbol1 != "" && filter.Symbol2 != "" {
		pairKey = domain.NewPair(filter.Symbol1, filter.Symbol2).Key()
	}

	out := make([]domain.HistoryEntry, 0)
	for _, entry := range s.history {
		switch {
		case pairKey != "":
			if entry.Key() != pairKey {
				continue
			}
		case filter.Symbol1 != "":
			if !entry.Contains(filter.Symbol1) {
				continue
			}
		case filter.Symbol2 != "":
			if !entry.Contains(filter.Symbol2) {
				continue
			}
		}
		if filter.LookbackMinutes != 0 && entry.LookbackMinutes != filter.LookbackMinutes {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// LastStatus returns the live status of the pair, in either symbol order.
// Unknown pairs report StatusNotCalculated.
func (s *Service) LastStatus(symbol1, symbol2 string) domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.byKey[domain.NewPair(symbol1, symbol2).Key()]; ok {
		return record.Status
	}
	return domain.StatusNotCalculated
}

// LastCalculation returns the newest check time in the history for the
// pair, in either symbol order. Empty symbols match every pair. Zero time
// when nothing matched.
func (s *Service) LastCalculation(symbol1, symbol2 string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pairKey string
	if symbol1 != "" && symbol2 != "" {
		pairKey = domain.NewPair(symbol1, symbol2).Key()
	}

	var latest time.Time
	for _, entry := range s.history {
		if pairKey != "" && entry.Key() != pairKey {
			continue
		}
		if entry.DateTo.After(latest) {
			latest = entry.DateTo
		}
	}
	return latest
}

// PriceData returns the baseline price series captured for the symbol during
// the last full calculation
func (s *Service) PriceData(symbol string) market_data.PriceSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priceData[symbol]
}

// Ticks returns ticks for the symbol through the tick cache. With cacheOnly
// set, only already-cached ticks are returned and the provider is never
// called.
func (s *Service) Ticks(ctx context.Context, symbol string, from, to time.Time, cacheOnly bool) (market_data.TickSeries, error) {
	return s.cache.Ticks(ctx, symbol, from, to, cacheOnly)
}

// ClearHistory drops the monitoring history and the tick cache and resets
// every live field in the coefficient table. Baseline coefficients stay.
func (s *Service) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	for _, record := range s.records {
		record.LastCheckedAt = nil
		record.LastCoefficient = nil
		record.Status = domain.StatusNotCalculated
	}
	s.mu.Unlock()

	s.cache.Clear()
	s.log.Info("Cleared coefficient history and tick cache")
}

// SetThresholds changes the monitoring and divergence thresholds at runtime
func (s *Service) SetThresholds(monitoring, divergence float64) error {
	if monitoring < 0 || monitoring > 1 {
		return errors.NewValidationError("monitoring_threshold", "must be between 0 and 1", monitoring)
	}
	if divergence < 0 || divergence > 1 {
		return errors.NewValidationError("divergence_threshold", "must be between 0 and 1", divergence)
	}

	s.mu.Lock()
	s.monitoringThreshold = monitoring
	s.divergenceThreshold = divergence
	s.mu.Unlock()

	s.log.Infof("Thresholds updated: monitoring=%.2f divergence=%.2f", monitoring, divergence)
	return nil
}

// SetMonitorInverse toggles inverse monitoring of negatively correlated pairs
func (s *Service) SetMonitorInverse(inverse bool) {
	s.mu.Lock()
	s.monitorInverse = inverse
	s.mu.Unlock()
}

// Thresholds returns the current monitoring threshold, divergence threshold
// and inverse flag
func (s *Service) Thresholds() (monitoring, divergence float64, inverse bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitoringThreshold, s.divergenceThreshold, s.monitorInverse
}

// OnStatusChange registers a listener invoked after a monitor pass for every
// pair whose status changed. Listeners run outside the state lock.
func (s *Service) OnStatusChange(fn func(StatusTransition)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// OnMonitorStateChange registers a listener invoked when the monitor starts
// or stops. Listeners must not call back into the monitor lifecycle
// synchronously.
func (s *Service) OnMonitorStateChange(fn func(running bool, settings MonitorSettings)) {
	s.mu.Lock()
	s.stateListeners = append(s.stateListeners, fn)
	s.mu.Unlock()
}

func (s *Service) notifyMonitorState(running bool, settings MonitorSettings) {
	s.mu.RLock()
	listeners := make([]func(bool, MonitorSettings), len(s.stateListeners))
	copy(listeners, s.stateListeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(running, settings)
	}
}

func (s *Service) notify(transitions []StatusTransition) {
	s.mu.RLock()
	listeners := make([]func(StatusTransition), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, transition := range transitions {
		for _, fn := range listeners {
			fn(transition)
		}
	}
}

// RecordCount returns the number of rows in the coefficient table
func (s *Service) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// HistorySize returns the number of entries in the monitoring history
func (s *Service) HistorySize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// CacheStats returns the tick cache hit and miss counters
func (s *Service) CacheStats() (hits, misses int64) {
	return s.cache.Stats()
}

// CachedTickData returns a copy of every tick cache entry in no particular
// order
func (s *Service) CachedTickData() []CachedTicks {
	return s.cache.Snapshot()
}
