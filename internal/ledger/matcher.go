package ledger

import (
	"github.com/shopspring/decimal"
)

// MatchResult is the outcome of matching one disposal against an asset's
// lot queue. Amounts and costs are split into a taxable bucket (lots
// younger than the holding period at disposal time) and an exempt bucket.
type MatchResult struct {
	TaxableAmount decimal.Decimal
	ExemptAmount  decimal.Decimal
	TaxableCost   decimal.Decimal
	ExemptCost    decimal.Decimal

	// Undocumented is set when the lot queue could not cover the disposal.
	// The whole disposal is then treated as taxable with zero cost basis
	// and the queue is left untouched.
	Undocumented bool
}

// Consume matches a disposal of amount units of asset at the given time
// against the asset's lot queue, oldest lot first.
//
// A lot older than HoldingPeriodSeconds at disposal time (strict
// comparison: lot.Timestamp + HoldingPeriodSeconds < timestamp) feeds the
// exempt bucket, otherwise the taxable bucket. A fully consumed lot
// contributes its amount and its originally recorded total cost; the lot
// that satisfies the remainder contributes remaining*(rate+feeRate) and
// shrinks in place.
//
// If the queue cannot cover the disposal there is no proof of how the
// quantity was acquired: the entire disposal amount is reported as taxable
// with zero cost basis in both buckets, and no lot is removed or shrunk.
func (l *Ledger) Consume(asset string, amount decimal.Decimal, timestamp int64) MatchResult {
	var res MatchResult
	e := l.entries[asset]
	var lots []Lot
	if e != nil {
		lots = e.lots
	}

	remaining := amount
	satisfiedAt := -1
	var remainder decimal.Decimal

	for i, lot := range lots {
		exempt := lot.Timestamp+HoldingPeriodSeconds < timestamp

		if remaining.LessThan(lot.Amount) {
			// This lot satisfies the rest of the disposal.
			cost := remaining.Mul(lot.Rate).Add(remaining.Mul(lot.FeeRate))
			if exempt {
				res.ExemptAmount = res.ExemptAmount.Add(remaining)
				res.ExemptCost = res.ExemptCost.Add(cost)
			} else {
				res.TaxableAmount = res.TaxableAmount.Add(remaining)
				res.TaxableCost = res.TaxableCost.Add(cost)
			}
			satisfiedAt = i
			remainder = lot.Amount.Sub(remaining)
			remaining = decimal.Zero
			break
		}

		// Lot fully consumed: its original total cost applies.
		if exempt {
			res.ExemptAmount = res.ExemptAmount.Add(lot.Amount)
			res.ExemptCost = res.ExemptCost.Add(lot.Cost)
		} else {
			res.TaxableAmount = res.TaxableAmount.Add(lot.Amount)
			res.TaxableCost = res.TaxableCost.Add(lot.Cost)
		}
		remaining = remaining.Sub(lot.Amount)
	}

	if satisfiedAt >= 0 {
		// Drop the fully consumed lots and shrink the one we stopped in.
		for i := 0; i < satisfiedAt; i++ {
			l.PopFront(asset)
		}
		l.ReplaceFrontAmount(asset, remainder)
		return res
	}

	if remaining.IsZero() {
		// The disposal consumed the queue exactly.
		for range lots {
			l.PopFront(asset)
		}
		return res
	}

	// No documented acquisition covers the disposal. Unverifiable holdings
	// are fully taxed: the whole amount counts as taxable profit with zero
	// cost basis, and lot state is not mutated.
	return MatchResult{
		TaxableAmount: amount,
		Undocumented:  true,
	}
}
