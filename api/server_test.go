package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openfolio/folio/internal/config"
	"github.com/openfolio/folio/internal/quote"
	"github.com/openfolio/folio/internal/returns"
	"github.com/openfolio/folio/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

type fakeEngine struct {
	curve map[string]float64
	err   error
}

func (f *fakeEngine) TotalReturns(ctx context.Context, p *models.Portfolio) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.curve, nil
}

type fakeQuotes struct {
	quotes []models.Quote
	err    error
}

func (f *fakeQuotes) FetchQuotes(ctx context.Context, ticker string, start, end time.Time) ([]models.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func testServer(engine ReturnsEngine, quotes QuoteFetcher) *Server {
	cfg := &config.Config{}
	cfg.Options.Simulations = 2000
	return NewServer(cfg, engine, quotes)
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

const validPortfolio = `{"portfolio":[{
	"ticker": "AAPL",
	"buy": {"date": {"year": 2023, "month": 2, "day": 1}, "price": 150.0},
	"quantity": 10
}]}`

const validContract = `{
	"type": "call", "underlying": 100, "strike": 100,
	"maturity": 1, "volatility": 0.2, "risk_free": 0.05
}`

// ════════════════════════════════════════════════════════════════════
// Health
// ════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	rec := doRequest(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("expected success")
	}
}

// ════════════════════════════════════════════════════════════════════
// Returns endpoint
// ════════════════════════════════════════════════════════════════════

func TestReturnsSuccess(t *testing.T) {
	engine := &fakeEngine{curve: map[string]float64{
		"2023-02-01": 0.0,
		"2023-02-02": 10.0,
	}}
	srv := testServer(engine, &fakeQuotes{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/returns", validPortfolio)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	curve, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", resp.Data)
	}
	if curve["2023-02-02"].(float64) != 10.0 {
		t.Errorf("curve[2023-02-02] = %v, want 10.0", curve["2023-02-02"])
	}
}

func TestReturnsValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{{{`},
		{"empty portfolio", `{"portfolio":[]}`},
		{"missing ticker", `{"portfolio":[{"buy":{"date":{"year":2023,"month":2,"day":1},"price":1},"quantity":1}]}`},
		{"zero quantity", `{"portfolio":[{"ticker":"T","buy":{"date":{"year":2023,"month":2,"day":1},"price":1},"quantity":0}]}`},
		{"buy after sell", `{"portfolio":[{"ticker":"T",
			"buy":{"date":{"year":2023,"month":3,"day":1},"price":1},
			"sell":{"date":{"year":2023,"month":2,"day":1},"price":1},
			"quantity":1}]}`},
	}
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/v1/returns", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp := decodeResponse(t, rec); resp.Success || resp.Error == "" {
				t.Errorf("expected error response, got %+v", resp)
			}
		})
	}
}

func TestReturnsErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid date", fmt.Errorf("%w: 2023-04-31", returns.ErrInvalidDate), http.StatusBadRequest},
		{"provider failure", fmt.Errorf("%w: no chart result", quote.ErrProvider), http.StatusBadGateway},
		{"empty data set", quote.ErrEmptyDataSet, http.StatusBadGateway},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(&fakeEngine{err: tt.err}, &fakeQuotes{})
			rec := doRequest(srv, http.MethodPost, "/api/v1/returns", validPortfolio)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// ════════════════════════════════════════════════════════════════════
// Options endpoints
// ════════════════════════════════════════════════════════════════════

func TestOptionsBlackScholes(t *testing.T) {
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	rec := doRequest(srv, http.MethodPost, "/api/v1/options/bs", validContract)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	price := data["price"].(float64)
	if price < 10.0 || price > 11.0 {
		t.Errorf("price = %f, want ~10.45", price)
	}
}

func TestOptionsKellyRequiresMarketPrice(t *testing.T) {
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	rec := doRequest(srv, http.MethodPost, "/api/v1/options/kelly", validContract)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOptionsKelly(t *testing.T) {
	body := `{
		"type": "call", "underlying": 100, "strike": 100,
		"maturity": 1, "volatility": 0.2, "risk_free": 0.05,
		"market_price": 8.0
	}`
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	rec := doRequest(srv, http.MethodPost, "/api/v1/options/kelly", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if _, ok := data["kelly_fraction"].(float64); !ok {
		t.Errorf("missing kelly_fraction in %v", data)
	}
}

func TestOptionsMonteCarlo(t *testing.T) {
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	rec := doRequest(srv, http.MethodPost, "/api/v1/options/mc", validContract)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if data["simulations"].(float64) != 2000 {
		t.Errorf("simulations = %v, want 2000", data["simulations"])
	}
	ev := data["expected_value"].(float64)
	if ev < 5.0 || ev > 16.0 {
		t.Errorf("expected_value = %f, out of plausible range", ev)
	}
}

func TestOptionsValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{{{`},
		{"bad type", `{"type":"straddle","underlying":100,"strike":100,"maturity":1,"volatility":0.2}`},
		{"zero underlying", `{"type":"call","underlying":0,"strike":100,"maturity":1,"volatility":0.2}`},
		{"zero maturity", `{"type":"call","underlying":100,"strike":100,"maturity":0,"volatility":0.2}`},
	}
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/v1/options/bs", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

// ════════════════════════════════════════════════════════════════════
// Quotes endpoint
// ════════════════════════════════════════════════════════════════════

func TestQuotes(t *testing.T) {
	quotes := &fakeQuotes{quotes: []models.Quote{
		{Timestamp: 1675209600, Close: 150.0, AdjClose: 149.5},
	}}
	srv := testServer(&fakeEngine{}, quotes)

	rec := doRequest(srv, http.MethodGet, "/api/v1/quotes/AAPL?from=2023-02-01&to=2023-02-03", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	series, ok := resp.Data.([]interface{})
	if !ok || len(series) != 1 {
		t.Fatalf("data = %v, want 1-element array", resp.Data)
	}
}

func TestQuotesBadDates(t *testing.T) {
	srv := testServer(&fakeEngine{}, &fakeQuotes{})
	for _, path := range []string{
		"/api/v1/quotes/AAPL",
		"/api/v1/quotes/AAPL?from=yesterday",
		"/api/v1/quotes/AAPL?from=2023-02-01&to=later",
	} {
		rec := doRequest(srv, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestQuotesProviderError(t *testing.T) {
	srv := testServer(&fakeEngine{}, &fakeQuotes{err: quote.ErrEmptyDataSet})
	rec := doRequest(srv, http.MethodGet, "/api/v1/quotes/AAPL?from=2023-02-01", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}
