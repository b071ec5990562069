package accounting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/tax-engine/internal/model"
)

// Fatal internal-consistency faults abort the whole run without a partial
// report. Each carries the offending action's identifying fields so the
// caller can present a precise diagnostic.

// OutOfOrderActionError reports an input stream whose timestamps go
// backwards. It indicates malformed caller-supplied history, never a
// state the engine recovers from.
type OutOfOrderActionError struct {
	Kind      model.ActionKind
	Timestamp int64
	Previous  int64
}

func (e *OutOfOrderActionError) Error() string {
	return fmt.Sprintf("accounting: %s action at %d before previous action at %d",
		e.Kind, e.Timestamp, e.Previous)
}

// NonPositiveGainError reports a loan or margin gain that resolved to a
// non-positive profit-currency value. That signals corrupt upstream data
// and fails fast instead of clamping to zero.
type NonPositiveGainError struct {
	Kind      model.ActionKind
	Asset     string
	Timestamp int64
	Gain      decimal.Decimal
}

func (e *NonPositiveGainError) Error() string {
	return fmt.Sprintf("accounting: %s gain %s for %s at %d is not positive",
		e.Kind, e.Gain, e.Asset, e.Timestamp)
}

// ZeroFeeWithdrawalError reports a withdrawal without a fee. Every
// exchange the engine models charges withdrawal fees; a missing fee means
// the movement record is incomplete.
type ZeroFeeWithdrawalError struct {
	Asset     string
	Timestamp int64
}

func (e *ZeroFeeWithdrawalError) Error() string {
	return fmt.Sprintf("accounting: withdrawal of %s at %d has zero fee", e.Asset, e.Timestamp)
}

// InvalidTradeError reports a trade whose amount or rate cannot be
// accounted for.
type InvalidTradeError struct {
	Type      model.TradeType
	Pair      string
	Timestamp int64
	Reason    string
}

func (e *InvalidTradeError) Error() string {
	return fmt.Sprintf("accounting: invalid %s trade on %s at %d: %s",
		e.Type, e.Pair, e.Timestamp, e.Reason)
}
