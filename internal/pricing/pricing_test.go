package pricing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- MemorySource ---

func TestMemorySource_NearestObservation(t *testing.T) {
	s := NewMemorySource()
	s.AddObservation("BTC", "EUR", 1000, d(500))
	s.AddObservation("BTC", "EUR", 2000, d(600))

	price, err := s.HistoricalPrice(context.Background(), "BTC", "EUR", 1400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(d(500)) {
		t.Errorf("expected 500 (nearest at t=1000), got %s", price)
	}

	price, _ = s.HistoricalPrice(context.Background(), "BTC", "EUR", 1600)
	if !price.Equal(d(600)) {
		t.Errorf("expected 600 (nearest at t=2000), got %s", price)
	}
}

func TestMemorySource_ToleranceExceeded(t *testing.T) {
	s := NewMemorySource()
	s.AddObservation("BTC", "EUR", 1000, d(500))

	_, err := s.HistoricalPrice(context.Background(), "BTC", "EUR", 1000+DefaultTolerance+1)
	if !errors.Is(err, ErrNoPriceForTimestamp) {
		t.Errorf("expected ErrNoPriceForTimestamp, got %v", err)
	}

	// Exactly at tolerance is still acceptable.
	if _, err := s.HistoricalPrice(context.Background(), "BTC", "EUR", 1000+DefaultTolerance); err != nil {
		t.Errorf("expected a price at tolerance edge: %v", err)
	}
}

func TestMemorySource_UnknownAsset(t *testing.T) {
	s := NewMemorySource()
	s.AddObservation("BTC", "EUR", 1000, d(500))

	_, err := s.HistoricalPrice(context.Background(), "XMR", "EUR", 1000)
	if !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}

	var uae *UnknownAssetError
	if !errors.As(err, &uae) || uae.Asset != "XMR" {
		t.Errorf("expected UnknownAssetError for XMR, got %v", err)
	}
}

func TestMemorySource_KnownAssetMissingPair(t *testing.T) {
	s := NewMemorySource()
	s.AddObservation("BTC", "EUR", 1000, d(500))

	_, err := s.HistoricalPrice(context.Background(), "BTC", "USD", 1000)
	if !errors.Is(err, ErrNoPriceForTimestamp) {
		t.Errorf("expected ErrNoPriceForTimestamp, got %v", err)
	}
}

func TestMemorySource_InsertObservation(t *testing.T) {
	s := NewMemorySource()
	if err := s.InsertObservation(context.Background(), "ETH", "EUR", 1000, d(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	price, err := s.HistoricalPrice(context.Background(), "ETH", "EUR", 1000)
	if err != nil || !price.Equal(d(10)) {
		t.Errorf("expected 10, got %s err=%v", price, err)
	}
}

// --- Resolver ---

// countingSource wraps a Source and counts lookups.
type countingSource struct {
	inner Source
	calls int64
}

func (c *countingSource) HistoricalPrice(ctx context.Context, from, to string, timestamp int64) (decimal.Decimal, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.inner.HistoricalPrice(ctx, from, to, timestamp)
}

func TestResolver_ProfitCurrencyIdentity(t *testing.T) {
	cs := &countingSource{inner: NewMemorySource()}
	r := NewResolver(cs, "EUR")

	rate, err := r.RateInProfitCurrency(context.Background(), "EUR", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected identity rate 1, got %s", rate)
	}
	if cs.calls != 0 {
		t.Errorf("identity lookup must not hit the source, got %d calls", cs.calls)
	}
}

func TestResolver_MemoizesLookups(t *testing.T) {
	mem := NewMemorySource()
	mem.AddObservation("BTC", "EUR", 1000, d(500))
	cs := &countingSource{inner: mem}
	r := NewResolver(cs, "EUR")

	for i := 0; i < 5; i++ {
		rate, err := r.RateInProfitCurrency(context.Background(), "BTC", 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !rate.Equal(d(500)) {
			t.Errorf("expected 500, got %s", rate)
		}
	}
	if cs.calls != 1 {
		t.Errorf("expected 1 source call after memoization, got %d", cs.calls)
	}
}

func TestResolver_FailuresNotMemoized(t *testing.T) {
	mem := NewMemorySource()
	cs := &countingSource{inner: mem}
	r := NewResolver(cs, "EUR")

	_, err := r.RateInProfitCurrency(context.Background(), "BTC", 1000)
	if !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}

	mem.AddObservation("BTC", "EUR", 1000, d(500))
	rate, err := r.RateInProfitCurrency(context.Background(), "BTC", 1000)
	if err != nil {
		t.Fatalf("expected recovery after observation added: %v", err)
	}
	if !rate.Equal(d(500)) {
		t.Errorf("expected 500, got %s", rate)
	}
}

func TestIsRecoverable(t *testing.T) {
	if !IsRecoverable(&NoPriceError{From: "BTC", To: "EUR", Timestamp: 1}) {
		t.Error("NoPriceError should be recoverable")
	}
	if !IsRecoverable(&UnknownAssetError{Asset: "BTC"}) {
		t.Error("UnknownAssetError should be recoverable")
	}
	if IsRecoverable(errors.New("pricing: connection refused")) {
		t.Error("arbitrary errors are not recoverable")
	}
}
