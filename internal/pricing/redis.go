package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CachedSource wraps a primary Source with a Redis read-through cache.
// Historical prices never change, so cached entries only expire to bound
// memory, not for freshness. Lookup failures are not cached: a gap in the
// primary may be filled later.
type CachedSource struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedSource creates a cached wrapper around a primary source.
func NewCachedSource(primary Source, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedSource) HistoricalPrice(ctx context.Context, from, to string, timestamp int64) (decimal.Decimal, error) {
	key := priceKey(from, to, timestamp)

	// Try cache.
	if val, err := s.rdb.Get(ctx, key).Result(); err == nil {
		if price, perr := decimal.NewFromString(val); perr == nil {
			return price, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not take price resolution with it.
		return s.primary.HistoricalPrice(ctx, from, to, timestamp)
	}

	// Cache miss: read from primary.
	price, err := s.primary.HistoricalPrice(ctx, from, to, timestamp)
	if err != nil {
		return decimal.Zero, err
	}

	s.rdb.Set(ctx, key, price.String(), s.ttl)
	return price, nil
}

func priceKey(from, to string, timestamp int64) string {
	return fmt.Sprintf("price:%s:%s:%d", from, to, timestamp)
}
