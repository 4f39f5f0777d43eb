package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/services/correlation"
	"pairwatch/internal/workers"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Defaults supplies the config-derived fallbacks applied when a request
// omits parameters
type Defaults struct {
	CalculateDays      int
	CalculateTimeframe market_data.Timeframe
	Monitor            correlation.MonitorSettings
	SnapshotFile       string
}

// Handler serves the engine control surface under /api/v1
type Handler struct {
	// appCtx outlives any single request; the monitor started through the
	// API must not stop when the request that started it completes.
	appCtx   context.Context
	svc      *correlation.Service
	defaults Defaults
	sched    *workers.Scheduler // nil when no workers are configured
	log      *logger.Logger
}

// NewHandler creates the control surface handler
func NewHandler(appCtx context.Context, svc *correlation.Service, defaults Defaults, sched *workers.Scheduler) *Handler {
	return &Handler{
		appCtx:   appCtx,
		svc:      svc,
		defaults: defaults,
		sched:    sched,
		log:      logger.Get().With("component", "api"),
	}
}

// Register attaches all control routes to the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/coefficients", h.handleCoefficients)
	mux.HandleFunc("/api/v1/diverged", h.handleDiverged)
	mux.HandleFunc("/api/v1/history", h.handleHistory)
	mux.HandleFunc("/api/v1/history/clear", h.handleHistoryClear)
	mux.HandleFunc("/api/v1/status", h.handleStatus)
	mux.HandleFunc("/api/v1/last-calculation", h.handleLastCalculation)
	mux.HandleFunc("/api/v1/prices", h.handlePrices)
	mux.HandleFunc("/api/v1/ticks", h.handleTicks)
	mux.HandleFunc("/api/v1/calculate", h.handleCalculate)
	mux.HandleFunc("/api/v1/monitor", h.handleMonitor)
	mux.HandleFunc("/api/v1/monitor/start", h.handleMonitorStart)
	mux.HandleFunc("/api/v1/monitor/stop", h.handleMonitorStop)
	mux.HandleFunc("/api/v1/snapshot/save", h.handleSnapshotSave)
	mux.HandleFunc("/api/v1/snapshot/load", h.handleSnapshotLoad)
	mux.HandleFunc("/api/v1/settings", h.handleSettings)
	mux.HandleFunc("/api/v1/workers", h.handleWorkers)
}

func (h *Handler) handleCoefficients(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	var records []domain.Record
	if r.URL.Query().Get("filtered") == "true" {
		records = h.svc.FilteredRecords()
	} else {
		records = h.svc.Records()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

func (h *Handler) handleDiverged(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	symbols := h.svc.DivergedSymbols()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(symbols),
		"symbols": symbols,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	filter := domain.HistoryFilter{
		Symbol1: query.Get("symbol1"),
		Symbol2: query.Get("symbol2"),
	}
	if raw := query.Get("lookback"); raw != "" {
		lookback, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, errors.Wrapf(errors.ErrInvalidInput, "lookback %q", raw))
			return
		}
		filter.LookbackMinutes = lookback
	}

	entries := h.svc.History(filter)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func (h *Handler) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodPost) {
		return
	}

	h.svc.ClearHistory()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	symbol1, symbol2 := query.Get("symbol1"), query.Get("symbol2")
	if symbol1 == "" || symbol2 == "" {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, "symbol1 and symbol2 are required"))
		return
	}

	response := map[string]interface{}{
		"symbol1": symbol1,
		"symbol2": symbol2,
		"status":  h.svc.LastStatus(symbol1, symbol2),
	}
	if last := h.svc.LastCalculation(symbol1, symbol2); !last.IsZero() {
		response["last_calculation"] = last
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleLastCalculation(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	last := h.svc.LastCalculation(query.Get("symbol1"), query.Get("symbol2"))

	response := map[string]interface{}{"last_calculation": nil}
	if !last.IsZero() {
		response["last_calculation"] = last
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handlePrices(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, "symbol is required"))
		return
	}

	series := h.svc.PriceData(symbol)
	if series == nil {
		series = market_data.PriceSeries{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"count":  len(series),
		"bars":   series,
	})
}

func (h *Handler) handleTicks(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	symbol := query.Get("symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, "symbol is required"))
		return
	}

	// Display consumers read from the cache; an explicit cache_only=false
	// fetches through the provider over the requested range.
	cacheOnly := query.Get("cache_only") != "false"

	to := time.Now().UTC()
	from := to.Add(-time.Hour)
	var err error
	if raw := query.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeError(w, http.StatusBadRequest, errors.Wrapf(errors.ErrInvalidInput, "from %q", raw))
			return
		}
	}
	if raw := query.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeError(w, http.StatusBadRequest, errors.Wrapf(errors.ErrInvalidInput, "to %q", raw))
			return
		}
	}

	ticks, err := h.svc.Ticks(r.Context(), symbol, from, to, cacheOnly)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	if ticks == nil {
		ticks = market_data.TickSeries{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"count":  len(ticks),
		"ticks":  ticks,
	})
}

type calculateRequest struct {
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Days      int        `json:"days"`
	Timeframe string     `json:"timeframe"`
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodPost) {
		return
	}

	var req calculateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		return
	}

	to := time.Now().UTC()
	if req.DateTo != nil {
		to = *req.DateTo
	}
	from := to.AddDate(0, 0, -h.defaults.CalculateDays)
	if req.Days > 0 {
		from = to.AddDate(0, 0, -req.Days)
	}
	if req.DateFrom != nil {
		from = *req.DateFrom
	}

	timeframe := h.defaults.CalculateTimeframe
	if req.Timeframe != "" {
		parsed, err := market_data.ParseTimeframe(req.Timeframe)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, err.Error()))
			return
		}
		timeframe = parsed
	}

	h.log.Infow("Calculate requested", "from", from, "to", to, "timeframe", timeframe)

	if err := h.svc.Calculate(r.Context(), from, to, timeframe); err != nil {
		if errors.Is(err, errors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.writeError(w, http.StatusBadGateway, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"records": h.svc.RecordCount(),
	})
}

func (h *Handler) handleMonitor(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	running, settings := h.svc.MonitorState()
	response := map[string]interface{}{"running": running}
	if settings.Interval > 0 {
		response["interval"] = settings.Interval.String()
		response["cache_ttl"] = settings.CacheTTL.String()
		response["autosave"] = settings.Autosave
		response["windows"] = settings.Windows
	}
	h.writeJSON(w, http.StatusOK, response)
}

type monitorStartRequest struct {
	IntervalSeconds float64         `json:"interval_seconds"`
	CacheTTLSeconds float64         `json:"cache_ttl_seconds"`
	Autosave        *bool           `json:"autosave"`
	Windows         []domain.Window `json:"windows"`
}

func (h *Handler) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodPost) {
		return
	}

	var req monitorStartRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		return
	}

	settings := h.defaults.Monitor
	if req.IntervalSeconds > 0 {
		settings.Interval = time.Duration(req.IntervalSeconds * float64(time.Second))
	}
	if req.CacheTTLSeconds > 0 {
		settings.CacheTTL = time.Duration(req.CacheTTLSeconds * float64(time.Second))
	}
	if len(req.Windows) > 0 {
		settings.Windows = req.Windows
	}
	if req.Autosave != nil {
		settings.Autosave = *req.Autosave
	}

	if err := h.svc.StartMonitor(h.appCtx, settings); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":  true,
		"interval": settings.Interval.String(),
		"windows":  len(settings.Windows),
	})
}

func (h *Handler) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodPost) {
		return
	}

	h.svc.StopMonitor()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"running": false})
}

type snapshotRequest struct {
	Path string `json:"path"`
}

func (h *Handler) handleSnapshotSave(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodPost) {
		return
	}

	var req snapshotRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		return
	}
	path := req.Path
	if path == "" {
		path = h.defaults.SnapshotFile
	}

	if err := h.svc.Save(path); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": path})
}

func (h *Handler) handleSnapshotLoad(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodPost) {
		return
	}

	var req snapshotRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		return
	}
	path := req.Path
	if path == "" {
		path = h.defaults.SnapshotFile
	}

	if err := h.svc.Load(path); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errors.ErrSnapshotVersion) || errors.Is(err, errors.ErrSnapshotCorrupt) {
			status = http.StatusBadRequest
		}
		h.writeError(w, status, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "loaded",
		"path":    path,
		"records": h.svc.RecordCount(),
	})
}

type settingsRequest struct {
	MonitoringThreshold *float64 `json:"monitoring_threshold"`
	DivergenceThreshold *float64 `json:"divergence_threshold"`
	MonitorInverse      *bool    `json:"monitor_inverse"`
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodPut) {
		return
	}

	var req settingsRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		return
	}

	monitoring, divergence, inverse := h.svc.Thresholds()
	if req.MonitoringThreshold != nil {
		monitoring = *req.MonitoringThreshold
	}
	if req.DivergenceThreshold != nil {
		divergence = *req.DivergenceThreshold
	}
	if err := h.svc.SetThresholds(monitoring, divergence); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.MonitorInverse != nil {
		inverse = *req.MonitorInverse
		h.svc.SetMonitorInverse(inverse)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitoring_threshold": monitoring,
		"divergence_threshold": divergence,
		"monitor_inverse":      inverse,
	})
}

func (h *Handler) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, http.MethodGet) {
		return
	}

	health := map[string]workers.WorkerHealth{}
	if h.sched != nil {
		health = h.sched.Health()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"workers": health})
}

func (h *Handler) require(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		h.writeError(w, http.StatusMethodNotAllowed, errors.Newf("method %s not allowed", r.Method))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorw("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody decodes an optional JSON body; an absent or empty body leaves
// the request struct at its zero value
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}
