package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
)

type fixedProvider struct {
	candles []marketdata.Candle
	err     error
}

func (p fixedProvider) GetCandles(ctx context.Context, symbol string, since, until time.Time) ([]marketdata.Candle, error) {
	return p.candles, p.err
}

func risingCandles(n int) []marketdata.Candle {
	candles := make([]marketdata.Candle, n)
	start := time.Now().Add(-time.Duration(n) * 24 * time.Hour)
	for i := range candles {
		price := 100 + float64(i)*0.8
		candles[i] = marketdata.Candle{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price - 0.3,
			High:      price + 0.6,
			Low:       price - 0.6,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles
}

func newTestServer(token string, provider marketdata.Provider) *Server {
	return NewServer(
		ServerConfig{Port: 0, Host: "127.0.0.1", ProductionMode: true, APIToken: token},
		nil, nil, nil, nil,
		provider,
		zerolog.Nop(),
	)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer("", fixedProvider{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health returned %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
}

func TestTokenMiddleware(t *testing.T) {
	s := newTestServer("sekret", fixedProvider{candles: risingCandles(90)})

	body := `{"symbol":"THYAO"}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token should give 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", "wrong")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token should give 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", "sekret")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("correct token should give 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	s := newTestServer("", fixedProvider{candles: risingCandles(90)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"symbol":"THYAO","period":"3mo"}`))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("analyze returned %d: %s", w.Code, w.Body.String())
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Symbol != "THYAO" {
		t.Errorf("symbol echoed wrong: %q", resp.Symbol)
	}
	if resp.Price <= 0 {
		t.Errorf("price must be positive, got %v", resp.Price)
	}
	if resp.RSI < 0 || resp.RSI > 100 {
		t.Errorf("RSI out of range: %v", resp.RSI)
	}
	// A steadily rising series should not read as a sell.
	if resp.Recommendation == "sell" {
		t.Errorf("rising series recommended sell (bias %v)", resp.Bias)
	}
}

func TestAnalyzeRequiresSymbol(t *testing.T) {
	s := newTestServer("", fixedProvider{candles: risingCandles(90)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("missing symbol should give 400, got %d", w.Code)
	}
}

func TestAnalyzeNoData(t *testing.T) {
	s := newTestServer("", fixedProvider{candles: nil})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"symbol":"NOPE"}`))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("empty candle set should give 404, got %d", w.Code)
	}
}

func TestAnalyzeInsufficientDataRecommendsHold(t *testing.T) {
	s := newTestServer("", fixedProvider{candles: risingCandles(10)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"symbol":"THYAO"}`))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("analyze returned %d", w.Code)
	}
	var resp AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Analysis.InsufficientData {
		t.Error("10 candles must flag insufficient data")
	}
	if resp.Recommendation != "hold" {
		t.Errorf("insufficient data must recommend hold, got %q", resp.Recommendation)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1 /predict") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1 /predict") {
		t.Error("fourth request inside the window should be rejected")
	}
	if !rl.Allow("10.0.0.1 /analyze") {
		t.Error("limits are per endpoint, a different path should pass")
	}
	if !rl.Allow("10.0.0.2 /predict") {
		t.Error("limits are per client, another caller should pass")
	}
}

func TestPeriodDuration(t *testing.T) {
	if periodDuration("1mo") != 30*24*time.Hour {
		t.Error("1mo should map to 30 days")
	}
	if periodDuration("") != 90*24*time.Hour {
		t.Error("empty period should default to 90 days")
	}
	if periodDuration("nonsense") != 90*24*time.Hour {
		t.Error("unknown period should default to 90 days")
	}
}
