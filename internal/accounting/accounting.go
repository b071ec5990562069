// Package accounting implements the history processor: it merges
// heterogeneous action streams into one chronological sequence, routes
// each action into lot-ledger mutations with rate conversion into the
// profit currency, and aggregates the taxable and general profit/loss of
// a query window.
//
// All monetary values use shopspring/decimal — never float64 for money.
package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/tax-engine/internal/asset"
	"github.com/coinfolio/tax-engine/internal/ledger"
	"github.com/coinfolio/tax-engine/internal/metrics"
	"github.com/coinfolio/tax-engine/internal/model"
	"github.com/coinfolio/tax-engine/internal/pricing"
)

// Config controls an Accountant's reporting policy.
type Config struct {
	// ProfitCurrency is the fiat currency all gains are normalized into.
	ProfitCurrency string

	// IgnoredAssets are skipped entirely when either trade leg touches one.
	IgnoredAssets []string

	// CountProfitForSettlements also adds settlement disposals' profit/loss
	// deltas to the trade totals. When false (the default), settlements only
	// feed the settlement-losses accumulator.
	CountProfitForSettlements bool
}

// Accountant computes realized-gain reports from action history. It holds
// no per-run state; every ProcessHistory call operates on a fresh run
// context, so independent windows can be processed concurrently as long
// as the resolver supports concurrent lookups.
type Accountant struct {
	resolver                  pricing.RateResolver
	profitCurrency            string
	ignored                   map[string]bool
	countProfitForSettlements bool
	now                       func() int64
}

// New creates an Accountant reporting in cfg.ProfitCurrency.
func New(resolver pricing.RateResolver, cfg Config) (*Accountant, error) {
	if err := asset.ValidateProfitCurrency(cfg.ProfitCurrency); err != nil {
		return nil, err
	}

	ignored := make(map[string]bool, len(cfg.IgnoredAssets))
	for _, a := range cfg.IgnoredAssets {
		ignored[a] = true
	}

	return &Accountant{
		resolver:                  resolver,
		profitCurrency:            cfg.ProfitCurrency,
		ignored:                   ignored,
		countProfitForSettlements: cfg.CountProfitForSettlements,
		now:                       func() int64 { return time.Now().Unix() },
	}, nil
}

// initialGasPrice seeds the last-seen gas price before any transaction
// carries one: 2 Gwei in wei.
var initialGasPrice = decimal.NewFromInt(2000000000)

// weiPerETH converts wei amounts to ETH.
var weiPerETH = decimal.New(1, 18)

// run is the short-lived context of one ProcessHistory call.
type run struct {
	a      *Accountant
	ledger *ledger.Ledger

	queryStart int64
	queryEnd   int64

	generalTradePL   decimal.Decimal
	taxableTradePL   decimal.Decimal
	settlementLosses decimal.Decimal
	loanProfit       decimal.Decimal
	marginProfit     decimal.Decimal
	movementFees     decimal.Decimal
	gasCosts         decimal.Decimal
	lastGasPrice     decimal.Decimal
}

// taggedAction is one entry of the merged history.
type taggedAction struct {
	kind      model.ActionKind
	timestamp int64

	trade    *model.Trade
	loan     *model.Loan
	margin   *model.MarginPosition
	movement *model.AssetMovement
	chainTx  *model.ChainTransaction
}

// kindPriority breaks ties among same-timestamp actions of different
// kinds: income-producing acquisitions settle before disposals at the
// same instant, so a same-second sell can match the lot a loan just
// created. Within a kind, input order is preserved (stable sort).
var kindPriority = map[model.ActionKind]int{
	model.KindLoan:             0,
	model.KindMarginPosition:   1,
	model.KindTrade:            2,
	model.KindAssetMovement:    3,
	model.KindChainTransaction: 4,
}

// ProcessHistory walks the merged action history and returns the window's
// report. Actions before start still build lot state (pre-window history
// seeds correct cost basis) but contribute nothing to the totals; actions
// after end are not processed at all. Any fatal fault aborts the run
// without a partial report.
func (a *Accountant) ProcessHistory(
	ctx context.Context,
	start, end int64,
	trades []model.Trade,
	loans []model.Loan,
	margins []model.MarginPosition,
	movements []model.AssetMovement,
	chainTxs []model.ChainTransaction,
) (*model.Report, error) {
	began := time.Now()

	r := &run{
		a:            a,
		ledger:       ledger.New(),
		queryStart:   start,
		queryEnd:     end,
		lastGasPrice: initialGasPrice,
	}

	report, err := r.process(ctx, trades, loans, margins, movements, chainTxs)

	metrics.ReportDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.ReportsTotal.WithLabelValues("success").Inc()
	return report, nil
}

func (r *run) process(
	ctx context.Context,
	trades []model.Trade,
	loans []model.Loan,
	margins []model.MarginPosition,
	movements []model.AssetMovement,
	chainTxs []model.ChainTransaction,
) (*model.Report, error) {
	if err := checkStreamOrder(trades, loans, margins, movements, chainTxs); err != nil {
		return nil, err
	}
	actions := mergeActions(trades, loans, margins, movements, chainTxs)

	for i := range actions {
		act := &actions[i]

		if act.timestamp > r.queryEnd {
			break
		}

		metrics.ActionsProcessed.WithLabelValues(string(act.kind)).Inc()

		var err error
		switch act.kind {
		case model.KindLoan:
			err = r.addLoanGain(ctx, act.loan)
		case model.KindMarginPosition:
			err = r.addMarginGain(ctx, act.margin)
		case model.KindAssetMovement:
			err = r.addAssetMovement(ctx, act.movement)
		case model.KindChainTransaction:
			err = r.addGasCost(ctx, act.chainTx)
		case model.KindTrade:
			err = r.addTrade(ctx, act.trade)
		default:
			err = fmt.Errorf("accounting: unexpected action kind %q", act.kind)
		}
		if err != nil {
			return nil, err
		}
	}

	return r.assembleReport(), nil
}

// checkStreamOrder verifies every input stream is internally sorted by
// time. A stream going backwards means the upstream source produced
// corrupt history; the run fails fast rather than silently reordering it.
func checkStreamOrder(
	trades []model.Trade,
	loans []model.Loan,
	margins []model.MarginPosition,
	movements []model.AssetMovement,
	chainTxs []model.ChainTransaction,
) error {
	check := func(kind model.ActionKind, ts func(int) int64, n int) error {
		var prev int64
		for i := 0; i < n; i++ {
			t := ts(i)
			if t < prev {
				return &OutOfOrderActionError{Kind: kind, Timestamp: t, Previous: prev}
			}
			prev = t
		}
		return nil
	}

	if err := check(model.KindTrade, func(i int) int64 { return trades[i].Timestamp }, len(trades)); err != nil {
		return err
	}
	if err := check(model.KindLoan, func(i int) int64 { return loans[i].CloseTime }, len(loans)); err != nil {
		return err
	}
	if err := check(model.KindMarginPosition, func(i int) int64 { return margins[i].CloseTime }, len(margins)); err != nil {
		return err
	}
	if err := check(model.KindAssetMovement, func(i int) int64 { return movements[i].Timestamp }, len(movements)); err != nil {
		return err
	}
	return check(model.KindChainTransaction, func(i int) int64 { return chainTxs[i].Timestamp }, len(chainTxs))
}

// mergeActions interleaves the input streams and sorts them by timestamp,
// breaking ties by kind priority, then by input order.
func mergeActions(
	trades []model.Trade,
	loans []model.Loan,
	margins []model.MarginPosition,
	movements []model.AssetMovement,
	chainTxs []model.ChainTransaction,
) []taggedAction {
	actions := make([]taggedAction, 0,
		len(trades)+len(loans)+len(margins)+len(movements)+len(chainTxs))

	for i := range trades {
		actions = append(actions, taggedAction{
			kind: model.KindTrade, timestamp: trades[i].Timestamp, trade: &trades[i],
		})
	}
	for i := range loans {
		actions = append(actions, taggedAction{
			kind: model.KindLoan, timestamp: loans[i].CloseTime, loan: &loans[i],
		})
	}
	for i := range margins {
		actions = append(actions, taggedAction{
			kind: model.KindMarginPosition, timestamp: margins[i].CloseTime, margin: &margins[i],
		})
	}
	for i := range movements {
		actions = append(actions, taggedAction{
			kind: model.KindAssetMovement, timestamp: movements[i].Timestamp, movement: &movements[i],
		})
	}
	for i := range chainTxs {
		actions = append(actions, taggedAction{
			kind: model.KindChainTransaction, timestamp: chainTxs[i].Timestamp, chainTx: &chainTxs[i],
		})
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].timestamp != actions[j].timestamp {
			return actions[i].timestamp < actions[j].timestamp
		}
		return kindPriority[actions[i].kind] < kindPriority[actions[j].kind]
	})
	return actions
}

// inWindow reports whether an action's result counts toward the totals.
// The upper bound is enforced by the walk itself.
func (r *run) inWindow(timestamp int64) bool {
	return timestamp >= r.queryStart
}

// --- Trade dispatch ---

func (r *run) addTrade(ctx context.Context, t *model.Trade) error {
	base, quote, err := asset.ParsePair(t.Pair)
	if err != nil {
		return err
	}
	if r.a.ignored[base] || r.a.ignored[quote] {
		slog.Debug("ignoring trade with ignored asset", "pair", t.Pair, "ts", t.Timestamp)
		return nil
	}

	if !t.Amount.IsPositive() {
		return &InvalidTradeError{Type: t.Type, Pair: t.Pair, Timestamp: t.Timestamp,
			Reason: "amount must be positive"}
	}
	if !t.Rate.IsPositive() {
		return &InvalidTradeError{Type: t.Type, Pair: t.Pair, Timestamp: t.Timestamp,
			Reason: "rate must be positive"}
	}

	switch t.Type {
	case model.TradeBuy:
		bought, err := asset.OtherPair(t.Pair, t.CostCurrency)
		if err != nil {
			return err
		}
		return r.addBuyWithCounterSell(ctx, bought, t.Amount, t.CostCurrency,
			t.Rate, t.Fee, t.FeeCurrency, t.Timestamp)
	case model.TradeSell:
		return r.sellTrade(ctx, t, false)
	case model.TradeSettlementSell:
		// Settlements sell an asset to raise BTC that repays a loan.
		return r.sellTrade(ctx, t, true)
	case model.TradeSettlementBuy:
		// Buying an asset with BTC to repay a loan consumes the BTC.
		return r.settlementBuy(ctx, t)
	default:
		return &InvalidTradeError{Type: t.Type, Pair: t.Pair, Timestamp: t.Timestamp,
			Reason: "unknown trade type"}
	}
}

// --- Acquisition builders ---

// addBuy records an acquisition lot for a buy-side trade leg, converting
// the trade rate (priced in the paid asset) into the profit currency.
func (r *run) addBuy(ctx context.Context, bought string, amount decimal.Decimal,
	paidWith string, tradeRate, fee decimal.Decimal, feeCurrency string, timestamp int64) error {

	// Guards the unit-fee division below; a zero amount can reach here
	// through a counter-buy whose trade carried a zero cost.
	if !amount.IsPositive() {
		return fmt.Errorf("%w: buy of %s %s with %s at %d",
			ledger.ErrInvalidAcquisition, amount, bought, paidWith, timestamp)
	}

	paidRate, err := r.a.resolver.RateInProfitCurrency(ctx, paidWith, timestamp)
	if err != nil {
		return err
	}
	buyRate := paidRate.Mul(tradeRate)

	feeCost := decimal.Zero
	if !fee.IsZero() {
		feeRate, err := r.a.resolver.RateInProfitCurrency(ctx, feeCurrency, timestamp)
		if err != nil {
			return err
		}
		feeCost = feeRate.Mul(fee)
	}

	unitFee := feeCost.Div(amount)
	if err := r.ledger.RecordAcquisition(bought, amount, buyRate, unitFee, timestamp); err != nil {
		return err
	}

	slog.Debug("buy",
		"asset", bought,
		"amount", amount.String(),
		"paid_with", paidWith,
		"rate", buyRate.String(),
		"fee_cost", feeCost.String(),
		"ts", timestamp,
	)
	return nil
}

// addBuyWithCounterSell records the buy leg and, unless the trade was paid
// in fiat, the implied simultaneous disposal of the paid asset. The
// counter-leg is valued at whichever of the two leg valuations yields the
// lower gain; when the bought asset's rate cannot be resolved, valuation
// degrades to the paid asset's side.
func (r *run) addBuyWithCounterSell(ctx context.Context, bought string, amount decimal.Decimal,
	paidWith string, tradeRate, fee decimal.Decimal, feeCurrency string, timestamp int64) error {

	if err := r.addBuy(ctx, bought, amount, paidWith, tradeRate, fee, feeCurrency, timestamp); err != nil {
		return err
	}

	if asset.IsFiat(paidWith) {
		return nil
	}

	boughtRate, err := r.a.resolver.RateInProfitCurrency(ctx, bought, timestamp)
	rateKnown := err == nil
	if err != nil && !pricing.IsRecoverable(err) {
		return err
	}

	soldAmount := tradeRate.Mul(amount)
	soldRate, err := r.a.resolver.RateInProfitCurrency(ctx, paidWith, timestamp)
	if err != nil {
		return err
	}
	withSoldGain := soldRate.Mul(soldAmount)

	receivingAsset := r.a.profitCurrency
	receivingAmount := withSoldGain
	effectiveRate := soldRate
	rateInProfitCurrency := soldRate
	gain := withSoldGain

	if rateKnown {
		withBoughtGain := boughtRate.Mul(amount)
		// Conservative valuation: take whichever side yields the lower gain.
		if withBoughtGain.LessThanOrEqual(withSoldGain) {
			receivingAsset = bought
			receivingAmount = amount
			effectiveRate = tradeRate
			rateInProfitCurrency = boughtRate.Div(tradeRate)
			gain = withBoughtGain
		}
	}

	return r.addSell(ctx, sellParams{
		sellingAsset:         paidWith,
		sellingAmount:        soldAmount,
		receivingAsset:       receivingAsset,
		receivingAmount:      receivingAmount,
		gainInProfitCurrency: gain,
		totalFee:             decimal.Zero, // fee was accounted on the buy leg
		tradeRate:            effectiveRate,
		rateInProfitCurrency: rateInProfitCurrency,
		timestamp:            timestamp,
	})
}

// addLoanGain registers loan interest as a zero-cost acquisition and, in
// window, as loan profit. A non-positive gain is an upstream data fault.
func (r *run) addLoanGain(ctx context.Context, l *model.Loan) error {
	rate, err := r.a.resolver.RateInProfitCurrency(ctx, l.Currency, l.CloseTime)
	if err != nil {
		return err
	}

	netGain := l.Earned.Sub(l.Fee)
	gain := netGain.Mul(rate)
	if !gain.IsPositive() {
		return &NonPositiveGainError{
			Kind: model.KindLoan, Asset: l.Currency, Timestamp: l.CloseTime, Gain: gain,
		}
	}

	if err := r.ledger.RecordZeroCostAcquisition(l.Currency, netGain, rate, l.CloseTime); err != nil {
		return err
	}
	if r.inWindow(l.CloseTime) {
		r.loanProfit = r.loanProfit.Add(gain)
	}
	return nil
}

// addMarginGain registers a closed margin position's BTC profit the same
// way as loan interest.
func (r *run) addMarginGain(ctx context.Context, m *model.MarginPosition) error {
	const gainedAsset = "BTC"

	rate, err := r.a.resolver.RateInProfitCurrency(ctx, gainedAsset, m.CloseTime)
	if err != nil {
		return err
	}

	gain := m.BTCProfitLoss.Mul(rate)
	if !gain.IsPositive() {
		return &NonPositiveGainError{
			Kind: model.KindMarginPosition, Asset: gainedAsset, Timestamp: m.CloseTime, Gain: gain,
		}
	}

	if err := r.ledger.RecordZeroCostAcquisition(gainedAsset, m.BTCProfitLoss, rate, m.CloseTime); err != nil {
		return err
	}
	if r.inWindow(m.CloseTime) {
		r.marginProfit = r.marginProfit.Add(gain)
	}
	return nil
}

// --- Fee/cost builders ---

func (r *run) addAssetMovement(ctx context.Context, m *model.AssetMovement) error {
	if m.Category == model.MovementWithdrawal && m.Fee.IsZero() {
		return &ZeroFeeWithdrawalError{Asset: m.Asset, Timestamp: m.Timestamp}
	}
	if m.Fee.IsZero() {
		return nil
	}

	rate, err := r.a.resolver.RateInProfitCurrency(ctx, m.Asset, m.Timestamp)
	if err != nil {
		return err
	}
	if r.inWindow(m.Timestamp) {
		r.movementFees = r.movementFees.Add(m.Fee.Mul(rate))
	}
	return nil
}

func (r *run) addGasCost(ctx context.Context, tx *model.ChainTransaction) error {
	gasPrice := tx.GasPrice
	if gasPrice.Equal(decimal.NewFromInt(-1)) {
		gasPrice = r.lastGasPrice
	} else {
		r.lastGasPrice = tx.GasPrice
	}

	rate, err := r.a.resolver.RateInProfitCurrency(ctx, "ETH", tx.Timestamp)
	if err != nil {
		return err
	}

	ethBurned := tx.GasUsed.Mul(gasPrice).Div(weiPerETH)
	if r.inWindow(tx.Timestamp) {
		r.gasCosts = r.gasCosts.Add(ethBurned.Mul(rate))
	}
	return nil
}

// --- Disposal builders ---

// sellParams carries one disposal through recording and matching.
type sellParams struct {
	sellingAsset         string
	sellingAmount        decimal.Decimal
	receivingAsset       string // empty for settlements
	receivingAmount      decimal.Decimal
	gainInProfitCurrency decimal.Decimal
	totalFee             decimal.Decimal
	tradeRate            decimal.Decimal
	rateInProfitCurrency decimal.Decimal
	timestamp            int64
	loanSettlement       bool
}

// addSell records the disposal, matches it against the lot queue, and adds
// the window's profit/loss deltas.
func (r *run) addSell(ctx context.Context, p sellParams) error {
	if p.timestamp > r.queryEnd {
		return fmt.Errorf("accounting: disposal of %s at %d after query end %d",
			p.sellingAsset, p.timestamp, r.queryEnd)
	}

	feeRate := decimal.Zero
	if p.sellingAmount.IsPositive() {
		feeRate = p.totalFee.Div(p.sellingAmount)
	}
	r.ledger.RecordDisposal(p.sellingAsset, ledger.Disposal{
		Amount:    p.sellingAmount,
		Timestamp: p.timestamp,
		Rate:      p.rateInProfitCurrency,
		FeeRate:   feeRate,
		Gain:      p.gainInProfitCurrency,
	})

	if p.loanSettlement {
		slog.Debug("settlement sell",
			"asset", p.sellingAsset,
			"amount", p.sellingAmount.String(),
			"gain", p.gainInProfitCurrency.String(),
			"ts", p.timestamp,
		)
	} else {
		slog.Debug("sell",
			"asset", p.sellingAsset,
			"amount", p.sellingAmount.String(),
			"receiving_asset", p.receivingAsset,
			"receiving_amount", p.receivingAmount.String(),
			"rate", p.rateInProfitCurrency.String(),
			"gain", p.gainInProfitCurrency.String(),
			"ts", p.timestamp,
		)
	}

	res := r.ledger.Consume(p.sellingAsset, p.sellingAmount, p.timestamp)
	if res.Undocumented {
		metrics.UndocumentedDisposals.Inc()
		slog.Warn("no documented acquisition for disposal",
			"asset", p.sellingAsset,
			"amount", p.sellingAmount.String(),
			"ts", p.timestamp,
		)
	}

	generalPL := decimal.Zero
	taxablePL := decimal.Zero
	if !p.loanSettlement || r.a.countProfitForSettlements {
		taxableGain := p.rateInProfitCurrency.Mul(res.TaxableAmount)
		if p.sellingAmount.IsPositive() {
			taxableGain = taxableGain.Sub(p.totalFee.Mul(res.TaxableAmount.Div(p.sellingAmount)))
		}
		generalPL = p.gainInProfitCurrency.Sub(res.ExemptCost.Add(res.TaxableCost))
		taxablePL = taxableGain.Sub(res.TaxableCost)
	}

	if r.inWindow(p.timestamp) {
		if p.loanSettlement {
			r.settlementLosses = r.settlementLosses.Add(p.gainInProfitCurrency)
		}
		r.generalTradePL = r.generalTradePL.Add(generalPL)
		r.taxableTradePL = r.taxableTradePL.Add(taxablePL)
	}
	return nil
}

// addSellWithCounterBuy records the sell leg and, unless the proceeds are
// fiat, the implied acquisition of the received asset.
func (r *run) addSellWithCounterBuy(ctx context.Context, p sellParams) error {
	if err := r.addSell(ctx, p); err != nil {
		return err
	}

	if asset.IsFiat(p.receivingAsset) {
		return nil
	}

	// The received asset was bought with the sold one at the inverse rate;
	// the fee was already accounted on the sell leg.
	inverseRate := decimal.NewFromInt(1).Div(p.tradeRate)
	return r.addBuy(ctx, p.receivingAsset, p.receivingAmount, p.sellingAsset,
		inverseRate, decimal.Zero, p.receivingAsset, p.timestamp)
}

// sellTrade builds the disposal for a sell or settlement-sell trade.
func (r *run) sellTrade(ctx context.Context, t *model.Trade, loanSettlement bool) error {
	selling, err := asset.OtherPair(t.Pair, t.CostCurrency)
	if err != nil {
		return err
	}

	costRate, err := r.a.resolver.RateInProfitCurrency(ctx, t.CostCurrency, t.Timestamp)
	if err != nil {
		return err
	}
	sellingRate := costRate.Mul(t.Rate)

	totalFee := decimal.Zero
	if !t.Fee.IsZero() {
		feeRate, err := r.a.resolver.RateInProfitCurrency(ctx, t.FeeCurrency, t.Timestamp)
		if err != nil {
			return err
		}
		totalFee = feeRate.Mul(t.Fee)
	}
	gain := sellingRate.Mul(t.Amount).Sub(totalFee)

	p := sellParams{
		sellingAsset:         selling,
		sellingAmount:        t.Amount,
		receivingAsset:       t.CostCurrency,
		receivingAmount:      t.Cost,
		gainInProfitCurrency: gain,
		totalFee:             totalFee,
		tradeRate:            t.Rate,
		rateInProfitCurrency: sellingRate,
		timestamp:            t.Timestamp,
	}

	if loanSettlement {
		p.receivingAsset = ""
		p.receivingAmount = decimal.Zero
		p.loanSettlement = true
		return r.addSell(ctx, p)
	}
	return r.addSellWithCounterBuy(ctx, p)
}

// settlementBuy handles buying an asset with BTC to repay a loan: in
// essence the BTC is sold to cover the debt.
func (r *run) settlementBuy(ctx context.Context, t *model.Trade) error {
	const sellingAsset = "BTC"

	btcRate, err := r.a.resolver.RateInProfitCurrency(ctx, sellingAsset, t.Timestamp)
	if err != nil {
		return err
	}
	sellingRate := btcRate.Mul(t.Rate)

	totalFee := decimal.Zero
	if !t.Fee.IsZero() {
		feeRate, err := r.a.resolver.RateInProfitCurrency(ctx, t.FeeCurrency, t.Timestamp)
		if err != nil {
			return err
		}
		totalFee = feeRate.Mul(t.Fee)
	}
	gain := sellingRate.Mul(t.Amount).Sub(totalFee)

	return r.addSell(ctx, sellParams{
		sellingAsset:         sellingAsset,
		sellingAmount:        t.Cost,
		gainInProfitCurrency: gain,
		totalFee:             totalFee,
		tradeRate:            t.Rate,
		rateInProfitCurrency: sellingRate,
		timestamp:            t.Timestamp,
		loanSettlement:       true,
	})
}

// --- Report assembly ---

// assembleReport computes per-asset holding summaries and the aggregate
// totals.
func (r *run) assembleReport() *model.Report {
	now := r.a.now()
	holdings := make(map[string]model.HoldingSummary)

	for _, a := range r.ledger.Assets() {
		lots := r.ledger.Lots(a)
		if len(lots) == 0 {
			continue
		}

		exemptLeft := decimal.Zero
		amountSum := decimal.Zero
		weighted := decimal.Zero
		for _, lot := range lots {
			if lot.Timestamp+ledger.HoldingPeriodSeconds < now {
				exemptLeft = exemptLeft.Add(lot.Amount)
			}
			amountSum = amountSum.Add(lot.Amount)
			weighted = weighted.Add(lot.Amount.Mul(lot.Rate))
		}
		if amountSum.IsZero() {
			continue
		}

		holdings[a] = model.HoldingSummary{
			TaxExemptAmount: exemptLeft,
			AverageBuyRate:  weighted.Div(amountSum),
		}
	}

	// Every non-trade stream contributes to both totals the same way.
	sumOtherActions := r.marginProfit.
		Add(r.loanProfit).
		Sub(r.settlementLosses).
		Sub(r.movementFees).
		Sub(r.gasCosts)

	return &model.Report{
		LoanProfit:               r.loanProfit,
		MarginPositionsProfit:    r.marginProfit,
		SettlementLosses:         r.settlementLosses,
		AssetMovementFees:        r.movementFees,
		ChainTransactionGasCosts: r.gasCosts,
		GeneralTradeProfitLoss:   r.generalTradePL,
		TaxableTradeProfitLoss:   r.taxableTradePL,
		TotalTaxableProfitLoss:   r.taxableTradePL.Add(sumOtherActions),
		TotalProfitLoss:          r.generalTradePL.Add(sumOtherActions),
		Holdings:                 holdings,
	}
}
