package mt5

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pairwatch/internal/adapters/config"
	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Client implements market_data.Provider against the MT5 HTTP gateway, the
// small bridge process that exposes the terminal's symbols, bars and ticks
// over REST. Calls are rate limited and transient failures are retried with
// a linear backoff.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	log        *logger.Logger
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		log:        logger.Get(),
	}
}

// VisibleSymbols returns the names of the symbols shown in the terminal's
// market watch
func (c *Client) VisibleSymbols(ctx context.Context) ([]string, error) {
	query := url.Values{}
	query.Set("visible", "true")

	var out symbolsResponse
	if err := c.get(ctx, "/api/v1/symbols", query, &out); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(out.Symbols))
	for _, symbol := range out.Symbols {
		if symbol.Visible {
			symbols = append(symbols, symbol.Name)
		}
	}
	return symbols, nil
}

// Bars returns historic bars for the symbol. An empty result is not an
// error; the gateway reports unknown symbols with a 404.
func (c *Client) Bars(ctx context.Context, symbol string, from, to time.Time, timeframe market_data.Timeframe) (market_data.PriceSeries, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("from", strconv.FormatInt(from.Unix(), 10))
	query.Set("to", strconv.FormatInt(to.Unix(), 10))
	query.Set("timeframe", string(timeframe))

	var out barsResponse
	if err := c.get(ctx, "/api/v1/bars", query, &out); err != nil {
		return nil, err
	}

	series := make(market_data.PriceSeries, 0, len(out.Bars))
	for _, b := range out.Bars {
		series = append(series, market_data.Bar{
			Time:  time.Unix(b.Time, 0).UTC(),
			Open:  b.Open.InexactFloat64(),
			High:  b.High.InexactFloat64(),
			Low:   b.Low.InexactFloat64(),
			Close: b.Close.InexactFloat64(),
		})
	}
	return series, nil
}

// Ticks returns raw ticks for the symbol over [from, to]
func (c *Client) Ticks(ctx context.Context, symbol string, from, to time.Time) (market_data.TickSeries, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	query.Set("to", strconv.FormatInt(to.UnixMilli(), 10))

	var out ticksResponse
	if err := c.get(ctx, "/api/v1/ticks", query, &out); err != nil {
		return nil, err
	}

	series := make(market_data.TickSeries, 0, len(out.Ticks))
	for _, t := range out.Ticks {
		series = append(series, market_data.Tick{
			Time: time.UnixMilli(t.TimeMsc).UTC(),
			Bid:  t.Bid.InexactFloat64(),
			Ask:  t.Ask.InexactFloat64(),
		})
	}
	return series, nil
}

// Ping checks gateway liveness
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debugf("Retrying %s (attempt %d/%d): %v", endpoint, attempt, c.maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "gateway rate limiter")
		}

		lastErr = c.doGet(ctx, endpoint, query, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doGet(ctx context.Context, endpoint string, query url.Values, out interface{}) (err error) {
	started := time.Now()
	defer func() { metrics.RecordGatewayCall(endpoint, time.Since(started), err) }()

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "creating gateway request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(errors.ErrGatewayUnavailable, "calling %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		body, _ := io.ReadAll(resp.Body)
		return errors.Wrapf(errors.ErrInvalidSymbol, "%s: %s", endpoint, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimitExceeded, "%s", endpoint)
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return errors.Wrapf(errors.ErrGatewayUnavailable, "%s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding gateway response")
	}
	return nil
}

// retryable reports whether the call may succeed on another attempt
func retryable(err error) bool {
	return errors.Is(err, errors.ErrGatewayUnavailable) || errors.Is(err, errors.ErrRateLimitExceeded)
}
