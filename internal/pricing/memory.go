package pricing

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is how far an observation may be from the requested
// timestamp before the source reports no price.
const DefaultTolerance = 3600 // seconds

// Observation is one recorded price point.
type Observation struct {
	Timestamp int64
	Price     decimal.Decimal
}

// MemorySource implements Source with in-memory observation tables, kept
// sorted by time per pair. Used for testing and for replaying seeded price
// histories. Lookups return the observation nearest to the requested time
// within the tolerance.
type MemorySource struct {
	mu        sync.RWMutex
	pairs     map[string][]Observation // "{from}/{to}" → sorted observations
	assets    map[string]bool
	tolerance int64
}

// NewMemorySource creates an empty in-memory source with DefaultTolerance.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		pairs:     make(map[string][]Observation),
		assets:    make(map[string]bool),
		tolerance: DefaultTolerance,
	}
}

// SetTolerance overrides the lookup tolerance in seconds.
func (s *MemorySource) SetTolerance(seconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tolerance = seconds
}

// AddObservation records a price point for the from/to pair.
func (s *MemorySource) AddObservation(from, to string, timestamp int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(from, to)
	obs := append(s.pairs[key], Observation{Timestamp: timestamp, Price: price})
	sort.Slice(obs, func(i, j int) bool { return obs[i].Timestamp < obs[j].Timestamp })
	s.pairs[key] = obs
	s.assets[from] = true
}

// InsertObservation records a price point with the same contract as the
// PostgreSQL source's writer.
func (s *MemorySource) InsertObservation(_ context.Context, from, to string, timestamp int64, price decimal.Decimal) error {
	s.AddObservation(from, to, timestamp, price)
	return nil
}

func (s *MemorySource) HistoricalPrice(_ context.Context, from, to string, timestamp int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.assets[from] {
		return decimal.Zero, &UnknownAssetError{Asset: from}
	}

	obs := s.pairs[pairKey(from, to)]
	if len(obs) == 0 {
		return decimal.Zero, &NoPriceError{From: from, To: to, Timestamp: timestamp}
	}

	// Nearest observation to the requested time.
	i := sort.Search(len(obs), func(i int) bool { return obs[i].Timestamp >= timestamp })
	best := -1
	for _, cand := range []int{i - 1, i} {
		if cand < 0 || cand >= len(obs) {
			continue
		}
		if best == -1 || absDiff(obs[cand].Timestamp, timestamp) < absDiff(obs[best].Timestamp, timestamp) {
			best = cand
		}
	}

	if best == -1 || absDiff(obs[best].Timestamp, timestamp) > s.tolerance {
		return decimal.Zero, &NoPriceError{From: from, To: to, Timestamp: timestamp}
	}
	return obs[best].Price, nil
}

func pairKey(from, to string) string { return from + "/" + to }

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
