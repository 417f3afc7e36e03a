package marketdata

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

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/metrics"
)

const (
	defaultYahooHost = "https://query1.finance.yahoo.com"
	chartPath        = "/v8/finance/chart/"
)

// YahooClient fetches daily candles from the Yahoo Finance chart API.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	maxElapsed time.Duration
}

// YahooOption customizes the client.
type YahooOption func(*YahooClient)

// WithBaseURL points the client at a different chart API host.
func WithBaseURL(host string) YahooOption {
	return func(c *YahooClient) {
		if host != "" {
			c.baseURL = strings.TrimSuffix(host, "/") + chartPath
		}
	}
}

// WithRequestTimeout overrides the per-request HTTP timeout.
func WithRequestTimeout(d time.Duration) YahooOption {
	return func(c *YahooClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewYahooClient creates a Yahoo Finance candle provider.
func NewYahooClient(logger zerolog.Logger, opts ...YahooOption) *YahooClient {
	c := &YahooClient{
		baseURL:    defaultYahooHost + chartPath,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "yahoo_client").Logger(),
		maxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeSymbol appends the BIST suffix for short local tickers, matching
// the upstream convention: short symbols without an exchange suffix and not
// USD pairs are treated as Borsa Istanbul listings.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) <= 5 && !strings.HasSuffix(s, ".IS") && !strings.Contains(s, "USD") {
		s += ".IS"
	}
	return s
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetCandles fetches daily bars for the symbol between since and until.
// Bars with missing fields are skipped, so the returned series may be
// shorter than the requested range.
func (c *YahooClient) GetCandles(ctx context.Context, symbol string, since, until time.Time) ([]Candle, error) {
	sym := NormalizeSymbol(symbol)

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(since.Unix(), 10))
	params.Set("period2", strconv.FormatInt(until.Unix(), 10))
	params.Set("interval", "1d")
	params.Set("includePrePost", "false")
	params.Set("events", "div,splits")

	reqURL := c.baseURL + url.PathEscape(sym) + "?" + params.Encode()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
				return backoff.Permanent(fmt.Errorf("chart request failed with status %d", resp.StatusCode))
			}
			return fmt.Errorf("chart request failed with status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = c.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		metrics.CandleFetchesTotal.WithLabelValues("yahoo", "error").Inc()
		return nil, fmt.Errorf("fetch candles for %s: %w", sym, err)
	}

	var parsed yahooChartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode chart response for %s: %w", sym, err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart api error for %s: %s", sym, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no chart data for %s", sym)
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		vol := 0.0
		if i < len(quote.Volume) && quote.Volume[i] != nil && *quote.Volume[i] > 0 {
			vol = *quote.Volume[i]
		}
		candles = append(candles, Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     *quote.Close[i],
			Volume:    vol,
		})
	}

	c.logger.Debug().
		Str("symbol", sym).
		Int("candles", len(candles)).
		Msg("Fetched candle history")

	metrics.CandleFetchesTotal.WithLabelValues("yahoo", "ok").Inc()
	return candles, nil
}
