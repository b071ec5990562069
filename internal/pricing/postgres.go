package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresSource implements Source using PostgreSQL as the source of truth
// for price observations. Prices are stored as NUMERIC for exact decimal
// precision.
//
// Expected schema:
//
//	CREATE TABLE price_observations (
//	    base      TEXT    NOT NULL,
//	    quote     TEXT    NOT NULL,
//	    ts        BIGINT  NOT NULL,
//	    price     NUMERIC NOT NULL,
//	    PRIMARY KEY (base, quote, ts)
//	);
type PostgresSource struct {
	pool      *pgxpool.Pool
	tolerance int64
}

// NewPostgresSource creates a PostgreSQL-backed price source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool, tolerance: DefaultTolerance}
}

func (s *PostgresSource) HistoricalPrice(ctx context.Context, from, to string, timestamp int64) (decimal.Decimal, error) {
	var priceS string
	err := s.pool.QueryRow(ctx,
		`SELECT price::TEXT
		 FROM price_observations
		 WHERE base = $1 AND quote = $2 AND ABS(ts - $3) <= $4
		 ORDER BY ABS(ts - $3)
		 LIMIT 1`,
		from, to, timestamp, s.tolerance).
		Scan(&priceS)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish an asset we have never seen from a time gap.
		var n int
		if cerr := s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM price_observations WHERE base = $1`, from).
			Scan(&n); cerr != nil {
			return decimal.Zero, fmt.Errorf("price lookup %s/%s: %w", from, to, cerr)
		}
		if n == 0 {
			return decimal.Zero, &UnknownAssetError{Asset: from}
		}
		return decimal.Zero, &NoPriceError{From: from, To: to, Timestamp: timestamp}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("price lookup %s/%s: %w", from, to, err)
	}

	price, err := decimal.NewFromString(priceS)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price lookup %s/%s: bad numeric %q: %w", from, to, priceS, err)
	}
	return price, nil
}

// InsertObservation records a price point, replacing any existing one for
// the same pair and time.
func (s *PostgresSource) InsertObservation(ctx context.Context, from, to string, timestamp int64, price decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_observations (base, quote, ts, price)
		 VALUES ($1, $2, $3, $4::NUMERIC)
		 ON CONFLICT (base, quote, ts) DO UPDATE SET price = EXCLUDED.price`,
		from, to, timestamp, price.String(),
	)
	return err
}
