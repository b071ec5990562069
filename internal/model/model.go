// Package model defines the core domain types shared across the tax engine.
// All monetary values and quantities use shopspring/decimal — never float64
// for money.
package model

import (
	"github.com/shopspring/decimal"
)

// ActionKind identifies the category of a historical action. The history
// processor dispatches on this with an exhaustive switch.
type ActionKind string

const (
	KindTrade            ActionKind = "trade"
	KindLoan             ActionKind = "loan"
	KindMarginPosition   ActionKind = "margin_position"
	KindAssetMovement    ActionKind = "asset_movement"
	KindChainTransaction ActionKind = "chain_transaction"
)

// TradeType distinguishes regular trades from loan/margin settlements.
type TradeType string

const (
	TradeBuy            TradeType = "buy"
	TradeSell           TradeType = "sell"
	TradeSettlementBuy  TradeType = "settlement_buy"
	TradeSettlementSell TradeType = "settlement_sell"
)

// Trade is one executed spot trade on an exchange.
// Pair is "{base}_{quote}"; Rate prices one unit of the non-cost asset in
// CostCurrency terms.
type Trade struct {
	Pair         string          `json:"pair"` // e.g. "BTC_EUR"
	Type         TradeType       `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Rate         decimal.Decimal `json:"rate"`
	Cost         decimal.Decimal `json:"cost"`
	CostCurrency string          `json:"cost_currency"`
	Fee          decimal.Decimal `json:"fee"`
	FeeCurrency  string          `json:"fee_currency"`
	Timestamp    int64           `json:"timestamp"`
}

// Loan is a closed lending position: interest earned in Currency, net of Fee.
type Loan struct {
	Currency  string          `json:"currency"`
	Earned    decimal.Decimal `json:"earned"`
	Fee       decimal.Decimal `json:"fee"`
	CloseTime int64           `json:"close_time"`
}

// MarginPosition is a closed margin position. The upstream data source
// reports margin profit/loss denominated in BTC only.
type MarginPosition struct {
	BTCProfitLoss decimal.Decimal `json:"btc_profit_loss"`
	CloseTime     int64           `json:"close_time"`
}

// MovementCategory is the direction of an asset movement.
type MovementCategory string

const (
	MovementDeposit    MovementCategory = "deposit"
	MovementWithdrawal MovementCategory = "withdrawal"
)

// AssetMovement is a deposit or withdrawal between an exchange and a wallet.
type AssetMovement struct {
	Category  MovementCategory `json:"category"`
	Asset     string           `json:"asset"`
	Amount    decimal.Decimal  `json:"amount"`
	Fee       decimal.Decimal  `json:"fee"`
	Timestamp int64            `json:"timestamp"`
}

// ChainTransaction is an on-chain transaction whose gas burn counts as a
// cost. GasPrice -1 means the price was not observable for this transaction
// and the previously observed one applies.
type ChainTransaction struct {
	GasUsed   decimal.Decimal `json:"gas_used"`
	GasPrice  decimal.Decimal `json:"gas_price"` // wei; -1 → use previous
	Timestamp int64           `json:"timestamp"`
}

// HoldingSummary describes the lots still held for one asset at the end of
// a run: the amount already past the holding period and the volume-weighted
// average acquisition rate.
type HoldingSummary struct {
	TaxExemptAmount decimal.Decimal `json:"tax_exempt_amount"`
	AverageBuyRate  decimal.Decimal `json:"average_buy_rate"`
}

// Report is the aggregated result of one history run. All values are in the
// profit currency.
type Report struct {
	LoanProfit               decimal.Decimal           `json:"loan_profit"`
	MarginPositionsProfit    decimal.Decimal           `json:"margin_positions_profit"`
	SettlementLosses         decimal.Decimal           `json:"settlement_losses"`
	AssetMovementFees        decimal.Decimal           `json:"asset_movement_fees"`
	ChainTransactionGasCosts decimal.Decimal           `json:"chain_transaction_gas_costs"`
	GeneralTradeProfitLoss   decimal.Decimal           `json:"general_trade_profit_loss"`
	TaxableTradeProfitLoss   decimal.Decimal           `json:"taxable_trade_profit_loss"`
	TotalTaxableProfitLoss   decimal.Decimal           `json:"total_taxable_profit_loss"`
	TotalProfitLoss          decimal.Decimal           `json:"total_profit_loss"`
	Holdings                 map[string]HoldingSummary `json:"holdings"`
}
