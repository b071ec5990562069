// Package pricing resolves historical asset prices into the profit
// currency.
//
// A Source answers "what did one unit of {from} cost in {to} at time t".
// Sources include an in-memory observation table (testing and seeded
// histories), PostgreSQL (source of truth), a Redis read-through cache
// wrapper, and a throttled remote HTTP API. The Resolver wraps a Source
// with in-process memoization and the profit-currency identity shortcut.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/tax-engine/internal/metrics"
)

var (
	// ErrNoPriceForTimestamp is returned when the asset is known but no
	// observation exists close enough to the requested time.
	ErrNoPriceForTimestamp = errors.New("pricing: no price for timestamp")

	// ErrUnknownAsset is returned when the source has never seen the asset.
	ErrUnknownAsset = errors.New("pricing: unknown asset")
)

// NoPriceError wraps ErrNoPriceForTimestamp with the lookup that failed.
type NoPriceError struct {
	From      string
	To        string
	Timestamp int64
}

func (e *NoPriceError) Error() string {
	return fmt.Sprintf("pricing: no %s/%s price at %d", e.From, e.To, e.Timestamp)
}

func (e *NoPriceError) Unwrap() error { return ErrNoPriceForTimestamp }

// UnknownAssetError wraps ErrUnknownAsset with the asset that failed.
type UnknownAssetError struct {
	Asset string
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("pricing: unknown asset %q", e.Asset)
}

func (e *UnknownAssetError) Unwrap() error { return ErrUnknownAsset }

// IsRecoverable reports whether err is a lookup miss a caller may degrade
// around (missing observation or unknown asset) rather than an
// infrastructure failure.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNoPriceForTimestamp) || errors.Is(err, ErrUnknownAsset)
}

// Source provides historical prices for asset pairs.
type Source interface {
	// HistoricalPrice returns the price of one unit of from in to terms at
	// the given unix time.
	HistoricalPrice(ctx context.Context, from, to string, timestamp int64) (decimal.Decimal, error)
}

// RateResolver is the engine-facing contract: every rate the accounting
// core needs goes through it.
type RateResolver interface {
	// RateInProfitCurrency returns the price of one unit of asset in the
	// profit currency at the given time.
	RateInProfitCurrency(ctx context.Context, a string, timestamp int64) (decimal.Decimal, error)

	// HistoricalPrice returns the price of one unit of from in to terms.
	HistoricalPrice(ctx context.Context, from, to string, timestamp int64) (decimal.Decimal, error)
}

// Resolver implements RateResolver on top of a Source with an in-process
// TTL memo. The memo keeps repeated lookups during a run (every trade leg
// asks for the same handful of rates) off the source.
type Resolver struct {
	source         Source
	profitCurrency string
	memo           *cache.Cache
}

// NewResolver creates a resolver reporting in profitCurrency.
func NewResolver(source Source, profitCurrency string) *Resolver {
	return &Resolver{
		source:         source,
		profitCurrency: profitCurrency,
		memo:           cache.New(15*time.Minute, 30*time.Minute),
	}
}

// ProfitCurrency returns the currency all rates are normalized into.
func (r *Resolver) ProfitCurrency() string { return r.profitCurrency }

func (r *Resolver) RateInProfitCurrency(ctx context.Context, a string, timestamp int64) (decimal.Decimal, error) {
	if a == r.profitCurrency {
		return decimal.NewFromInt(1), nil
	}
	return r.HistoricalPrice(ctx, a, r.profitCurrency, timestamp)
}

func (r *Resolver) HistoricalPrice(ctx context.Context, from, to string, timestamp int64) (decimal.Decimal, error) {
	key := memoKey(from, to, timestamp)
	if v, ok := r.memo.Get(key); ok {
		return v.(decimal.Decimal), nil
	}

	metrics.RateLookups.Inc()
	price, err := r.source.HistoricalPrice(ctx, from, to, timestamp)
	if err != nil {
		metrics.RateLookupFailures.Inc()
		return decimal.Zero, err
	}

	r.memo.Set(key, price, cache.DefaultExpiration)
	return price, nil
}

func memoKey(from, to string, timestamp int64) string {
	return fmt.Sprintf("%s:%s:%d", from, to, timestamp)
}
