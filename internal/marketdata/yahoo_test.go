package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"THYAO", "THYAO.IS"},
		{"thyao", "THYAO.IS"},
		{" asels ", "ASELS.IS"},
		{"THYAO.IS", "THYAO.IS"},
		{"EURUSD", "EURUSD"},
		{"USDTRY", "USDTRY"},
		{"GARAN", "GARAN.IS"},
	}
	for _, tc := range cases {
		if got := NormalizeSymbol(tc.in); got != tc.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func testClient(host string) *YahooClient {
	c := NewYahooClient(zerolog.Nop(), WithBaseURL(host))
	c.maxElapsed = 500 * time.Millisecond
	return c
}

func TestYahooClientOptions(t *testing.T) {
	c := NewYahooClient(zerolog.Nop(),
		WithBaseURL("https://query2.finance.yahoo.com/"),
		WithRequestTimeout(3*time.Second),
	)
	if c.baseURL != "https://query2.finance.yahoo.com/v8/finance/chart/" {
		t.Errorf("base URL = %q", c.baseURL)
	}
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", c.httpClient.Timeout)
	}

	// Zero values must leave the defaults alone.
	d := NewYahooClient(zerolog.Nop(), WithBaseURL(""), WithRequestTimeout(0))
	if d.baseURL != defaultYahooHost+chartPath {
		t.Errorf("empty host must keep the default, got %q", d.baseURL)
	}
	if d.httpClient.Timeout != 10*time.Second {
		t.Errorf("zero timeout must keep the default, got %v", d.httpClient.Timeout)
	}
}

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"THYAO.IS"},
"timestamp":[1700000000,1700086400,1700172800],
"indicators":{"quote":[{
"open":[100.0,null,102.0],
"high":[101.0,102.5,103.0],
"low":[99.5,100.0,101.5],
"close":[100.5,101.8,102.7],
"volume":[1000000,null,1200000]}]}}],"error":null}}`

func TestGetCandlesParsesAndSkipsNilBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/THYAO.IS") {
			t.Errorf("request path %q missing normalized symbol", r.URL.Path)
		}
		if r.URL.Query().Get("interval") != "1d" {
			t.Errorf("interval = %q, want 1d", r.URL.Query().Get("interval"))
		}
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/")
	candles, err := c.GetCandles(context.Background(), "THYAO", time.Now().AddDate(0, -1, 0), time.Now())
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2 (bar with null open skipped)", len(candles))
	}
	first := candles[0]
	if first.Open != 100.0 || first.Close != 100.5 || first.Volume != 1000000 {
		t.Errorf("unexpected first candle: %+v", first)
	}
	if !first.Timestamp.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, time.Unix(1700000000, 0).UTC())
	}
	// second bar in the payload has null open and volume
	if candles[1].Close != 102.7 {
		t.Errorf("second candle close = %v, want 102.7", candles[1].Close)
	}
	if candles[1].Volume != 1200000 {
		t.Errorf("second candle volume = %v, want 1200000", candles[1].Volume)
	}
}

func TestGetCandlesNotFoundIsPermanent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/")
	_, err := c.GetCandles(context.Background(), "NOPE", time.Now().AddDate(0, 0, -7), time.Now())
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if hits != 1 {
		t.Errorf("404 retried %d times, want a single attempt", hits)
	}
}

func TestGetCandlesChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/")
	_, err := c.GetCandles(context.Background(), "THYAO", time.Now().AddDate(0, 0, -7), time.Now())
	if err == nil || !strings.Contains(err.Error(), "No data found") {
		t.Fatalf("expected chart api error, got %v", err)
	}
}

func TestCandleHelpers(t *testing.T) {
	up := Candle{Open: 10, High: 12, Low: 9, Close: 11}
	down := Candle{Open: 11, High: 12, Low: 9, Close: 10}

	if !up.IsBullish() || up.IsBearish() {
		t.Error("up candle classified wrong")
	}
	if !down.IsBearish() || down.IsBullish() {
		t.Error("down candle classified wrong")
	}
	if up.Body() != 1 || down.Body() != 1 {
		t.Errorf("Body() = %v / %v, want 1 / 1", up.Body(), down.Body())
	}
	if up.Range() != 3 {
		t.Errorf("Range() = %v, want 3", up.Range())
	}

	closes := Closes([]Candle{up, down})
	if len(closes) != 2 || closes[0] != 11 || closes[1] != 10 {
		t.Errorf("Closes() = %v", closes)
	}
}
