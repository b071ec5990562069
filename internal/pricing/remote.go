package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// RemoteSource implements Source against a cryptocompare-style historical
// price API. Requests are throttled so a long history replay does not
// exhaust the upstream quota.
//
// Endpoint shape: GET {base}/data/pricehistorical?fsym={from}&tsyms={to}&ts={ts}
// Response shape: {"{from}": {"{to}": 123.45}} or
// {"Response":"Error","Message":"..."} for unknown symbols.
type RemoteSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewRemoteSource creates a throttled remote price source.
func NewRemoteSource(baseURL string) *RemoteSource {
	return &RemoteSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 30),
	}
}

func (s *RemoteSource) HistoricalPrice(ctx context.Context, from, to string, timestamp int64) (decimal.Decimal, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	q := url.Values{}
	q.Set("fsym", from)
	q.Set("tsyms", to)
	q.Set("ts", strconv.FormatInt(timestamp, 10))
	reqURL := s.baseURL + "/data/pricehistorical?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("remote price %s/%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("remote price %s/%s: status %d", from, to, resp.StatusCode)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("remote price %s/%s: %w", from, to, err)
	}

	if _, isErr := body["Response"]; isErr {
		slog.Warn("remote price API rejected symbol", "from", from, "to", to)
		return decimal.Zero, &UnknownAssetError{Asset: from}
	}

	var quotes map[string]decimal.Decimal
	raw, ok := body[from]
	if !ok {
		return decimal.Zero, &UnknownAssetError{Asset: from}
	}
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return decimal.Zero, fmt.Errorf("remote price %s/%s: %w", from, to, err)
	}

	price, ok := quotes[to]
	if !ok || price.IsZero() {
		// The API reports 0 when it has no observation for the timestamp.
		return decimal.Zero, &NoPriceError{From: from, To: to, Timestamp: timestamp}
	}
	return price, nil
}
