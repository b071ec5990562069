// Package ledger implements the per-asset tax-lot ledger and the FIFO
// disposal matcher at the heart of the tax engine.
//
// Every acquisition of an asset creates a Lot. Disposals consume lots in
// strict FIFO order; a lot consumed only partially keeps its acquisition
// rate and fee rate and merely shrinks in amount. Whether a consumed lot
// counts as taxable or tax-exempt depends on its age at disposal time.
//
// All quantities use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// HoldingPeriodSeconds is the fixed holding threshold: lots held strictly
// longer than 365 days at disposal time are tax-exempt.
const HoldingPeriodSeconds int64 = 31536000 // 60 * 60 * 24 * 365

// ErrInvalidAcquisition is returned when an acquisition has a non-positive
// amount or a negative rate.
var ErrInvalidAcquisition = errors.New("ledger: invalid acquisition")

// Lot is one acquired quantity of an asset. Rate and FeeRate are per-unit
// prices in the profit currency at acquisition time. Cost is the total
// acquisition cost of the lot as originally recorded; it is not adjusted
// when the lot shrinks through partial consumption.
type Lot struct {
	Amount    decimal.Decimal
	Timestamp int64
	Rate      decimal.Decimal
	FeeRate   decimal.Decimal
	Cost      decimal.Decimal
}

// Disposal is an immutable record of one sell/consume event. Gain is the
// gross proceeds in the profit currency, net of fee.
type Disposal struct {
	Amount    decimal.Decimal
	Timestamp int64
	Rate      decimal.Decimal
	FeeRate   decimal.Decimal
	Gain      decimal.Decimal
}

// assetEntry holds the lot queue (oldest first) and disposal records for
// one asset.
type assetEntry struct {
	lots      []Lot
	disposals []Disposal
}

// Ledger owns all lot state for a single run. It is not safe for
// concurrent use; a run operates on an exclusively-owned instance.
type Ledger struct {
	entries map[string]*assetEntry
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*assetEntry)}
}

func (l *Ledger) entry(asset string) *assetEntry {
	e, ok := l.entries[asset]
	if !ok {
		e = &assetEntry{}
		l.entries[asset] = e
	}
	return e
}

// RecordAcquisition appends a lot to the asset's queue. The lot's total
// cost is derived as amount*rate + amount*feeRate.
func (l *Ledger) RecordAcquisition(asset string, amount, rate, feeRate decimal.Decimal, timestamp int64) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount %s must be positive", ErrInvalidAcquisition, amount)
	}
	if rate.IsNegative() || feeRate.IsNegative() {
		return fmt.Errorf("%w: rate %s and fee rate %s must not be negative", ErrInvalidAcquisition, rate, feeRate)
	}

	cost := amount.Mul(rate).Add(amount.Mul(feeRate))
	l.entry(asset).lots = append(l.entry(asset).lots, Lot{
		Amount:    amount,
		Timestamp: timestamp,
		Rate:      rate,
		FeeRate:   feeRate,
		Cost:      cost,
	})
	return nil
}

// RecordZeroCostAcquisition appends a lot with zero cost basis and zero
// fee. Used for loan interest and margin gains: the income was already
// taxed on receipt, so a later disposal of it realizes the full proceeds.
func (l *Ledger) RecordZeroCostAcquisition(asset string, amount, rate decimal.Decimal, timestamp int64) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount %s must be positive", ErrInvalidAcquisition, amount)
	}
	if rate.IsNegative() {
		return fmt.Errorf("%w: rate %s must not be negative", ErrInvalidAcquisition, rate)
	}

	l.entry(asset).lots = append(l.entry(asset).lots, Lot{
		Amount:    amount,
		Timestamp: timestamp,
		Rate:      rate,
	})
	return nil
}

// RecordDisposal appends an immutable disposal record for the asset.
func (l *Ledger) RecordDisposal(asset string, d Disposal) {
	e := l.entry(asset)
	e.disposals = append(e.disposals, d)
}

// PeekFront returns the oldest lot for the asset without removing it.
func (l *Ledger) PeekFront(asset string) (Lot, bool) {
	e, ok := l.entries[asset]
	if !ok || len(e.lots) == 0 {
		return Lot{}, false
	}
	return e.lots[0], true
}

// PopFront removes the oldest lot for the asset.
func (l *Ledger) PopFront(asset string) {
	e, ok := l.entries[asset]
	if !ok || len(e.lots) == 0 {
		return
	}
	e.lots = e.lots[1:]
}

// ReplaceFrontAmount shrinks the oldest lot to newAmount, keeping its
// timestamp, rate, fee rate and originally recorded cost.
func (l *Ledger) ReplaceFrontAmount(asset string, newAmount decimal.Decimal) {
	e, ok := l.entries[asset]
	if !ok || len(e.lots) == 0 {
		return
	}
	e.lots[0].Amount = newAmount
}

// TotalAmount returns the sum of all lot amounts currently held.
func (l *Ledger) TotalAmount(asset string) decimal.Decimal {
	total := decimal.Zero
	e, ok := l.entries[asset]
	if !ok {
		return total
	}
	for _, lot := range e.lots {
		total = total.Add(lot.Amount)
	}
	return total
}

// Lots returns a copy of the asset's lot queue, oldest first.
func (l *Ledger) Lots(asset string) []Lot {
	e, ok := l.entries[asset]
	if !ok {
		return nil
	}
	lots := make([]Lot, len(e.lots))
	copy(lots, e.lots)
	return lots
}

// Disposals returns a copy of the asset's disposal records.
func (l *Ledger) Disposals(asset string) []Disposal {
	e, ok := l.entries[asset]
	if !ok {
		return nil
	}
	ds := make([]Disposal, len(e.disposals))
	copy(ds, e.disposals)
	return ds
}

// Assets returns every asset the ledger has seen lots or disposals for.
func (l *Ledger) Assets() []string {
	assets := make([]string, 0, len(l.entries))
	for a := range l.entries {
		assets = append(assets, a)
	}
	return assets
}
