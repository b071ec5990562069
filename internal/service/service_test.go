package service_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/tax-engine/internal/accounting"
	"github.com/coinfolio/tax-engine/internal/model"
	"github.com/coinfolio/tax-engine/internal/pricing"
	"github.com/coinfolio/tax-engine/internal/service"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service over an in-memory price source and a
// chi router with the production routes.
func newTestEnv(t *testing.T) (*pricing.MemorySource, chi.Router) {
	t.Helper()
	src := pricing.NewMemorySource()
	acct, err := accounting.New(pricing.NewResolver(src, "EUR"), accounting.Config{
		ProfitCurrency: "EUR",
	})
	if err != nil {
		t.Fatalf("accountant init: %v", err)
	}
	svc := service.NewService(acct, src, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/reports", svc.RunReport)
	r.Post("/api/v1/prices", svc.AddPrice)
	return src, r
}

func postJSON(t *testing.T, r chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRunReport_HappyPath(t *testing.T) {
	_, router := newTestEnv(t)

	req := service.ReportRequest{
		Start: 0,
		End:   5000,
		Trades: []model.Trade{
			{Pair: "BTC_EUR", Type: model.TradeBuy, Amount: d(10), Rate: d(1),
				Cost: d(10), CostCurrency: "EUR", FeeCurrency: "EUR", Timestamp: 0},
			{Pair: "BTC_EUR", Type: model.TradeSell, Amount: d(4), Rate: d(2),
				Cost: d(8), CostCurrency: "EUR", FeeCurrency: "EUR", Timestamp: 1000},
		},
	}
	w := postJSON(t, router, "/api/v1/reports", req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.ReportResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Error("expected a run ID")
	}
	if resp.Report == nil {
		t.Fatal("expected a report")
	}
	if !resp.Report.TotalProfitLoss.Equal(d(4)) {
		t.Errorf("total P/L = %s, want 4", resp.Report.TotalProfitLoss)
	}
}

func TestRunReport_InvalidBody(t *testing.T) {
	_, router := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRunReport_EndBeforeStart(t *testing.T) {
	_, router := newTestEnv(t)

	w := postJSON(t, router, "/api/v1/reports", service.ReportRequest{Start: 5000, End: 1000})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRunReport_OutOfOrderHistoryIs422(t *testing.T) {
	_, router := newTestEnv(t)

	req := service.ReportRequest{
		Start: 0,
		End:   5000,
		Trades: []model.Trade{
			{Pair: "BTC_EUR", Type: model.TradeBuy, Amount: d(1), Rate: d(1),
				CostCurrency: "EUR", Timestamp: 2000},
			{Pair: "BTC_EUR", Type: model.TradeBuy, Amount: d(1), Rate: d(1),
				CostCurrency: "EUR", Timestamp: 1000},
		},
	}
	w := postJSON(t, router, "/api/v1/reports", req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRunReport_ZeroCostCounterBuyIs422(t *testing.T) {
	src, router := newTestEnv(t)
	src.AddObservation("BTC", "EUR", 2000, d(18000))
	src.AddObservation("USDT", "EUR", 2000, d(0.9))

	req := service.ReportRequest{
		Start: 0,
		End:   5000,
		Trades: []model.Trade{
			{Pair: "BTC_USDT", Type: model.TradeSell, Amount: d(1), Rate: d(20000),
				Cost: d(0), CostCurrency: "USDT", FeeCurrency: "USDT", Timestamp: 2000},
		},
	}
	w := postJSON(t, router, "/api/v1/reports", req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRunReport_MissingPriceIs502(t *testing.T) {
	_, router := newTestEnv(t)

	// A margin close needs a BTC/EUR rate the empty source cannot give.
	req := service.ReportRequest{
		Start:           0,
		End:             5000,
		MarginPositions: []model.MarginPosition{{BTCProfitLoss: d(1), CloseTime: 1000}},
	}
	w := postJSON(t, router, "/api/v1/reports", req)
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAddPrice_ThenReportUsesIt(t *testing.T) {
	_, router := newTestEnv(t)

	w := postJSON(t, router, "/api/v1/prices", service.PriceObservation{
		From: "BTC", To: "EUR", Timestamp: 1000, Price: d(100),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req := service.ReportRequest{
		Start:           0,
		End:             5000,
		MarginPositions: []model.MarginPosition{{BTCProfitLoss: d(1), CloseTime: 1000}},
	}
	w = postJSON(t, router, "/api/v1/reports", req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.ReportResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Report.MarginPositionsProfit.Equal(d(100)) {
		t.Errorf("margin profit = %s, want 100", resp.Report.MarginPositionsProfit)
	}
}

func TestAddPrice_Validation(t *testing.T) {
	_, router := newTestEnv(t)

	w := postJSON(t, router, "/api/v1/prices", service.PriceObservation{
		From: "", To: "EUR", Timestamp: 1000, Price: d(100),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing from: expected 400, got %d", w.Code)
	}

	w = postJSON(t, router, "/api/v1/prices", service.PriceObservation{
		From: "BTC", To: "EUR", Timestamp: 1000, Price: d(0),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero price: expected 400, got %d", w.Code)
	}
}

func TestAddPrice_ReadOnlySource(t *testing.T) {
	acct, err := accounting.New(
		pricing.NewResolver(pricing.NewMemorySource(), "EUR"),
		accounting.Config{ProfitCurrency: "EUR"})
	if err != nil {
		t.Fatalf("accountant init: %v", err)
	}
	svc := service.NewService(acct, nil, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/prices", svc.AddPrice)

	w := postJSON(t, r, "/api/v1/prices", service.PriceObservation{
		From: "BTC", To: "EUR", Timestamp: 1000, Price: d(100),
	})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", w.Code)
	}
}
