// Package service provides the HTTP handlers for running tax reports and
// managing price observations.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/tax-engine/internal/accounting"
	"github.com/coinfolio/tax-engine/internal/asset"
	"github.com/coinfolio/tax-engine/internal/ledger"
	"github.com/coinfolio/tax-engine/internal/model"
	"github.com/coinfolio/tax-engine/internal/pricing"
)

// ObservationStore accepts historical price observations. Implemented by
// the in-memory and PostgreSQL price sources.
type ObservationStore interface {
	InsertObservation(ctx context.Context, from, to string, timestamp int64, price decimal.Decimal) error
}

// Service handles report runs over HTTP. The accountant itself is
// stateless per run, so concurrent report requests are safe.
type Service struct {
	accountant *accounting.Accountant
	prices     ObservationStore // optional; nil when the price source is read-only
	hub        *RunHub          // optional WebSocket hub for run lifecycle events
}

// NewService creates a new report service.
// Pass nil for prices or hub when not needed.
func NewService(acct *accounting.Accountant, prices ObservationStore, hub *RunHub) *Service {
	return &Service{
		accountant: acct,
		prices:     prices,
		hub:        hub,
	}
}

// --- Request/Response types ---

// ReportRequest is the JSON body for POST /api/v1/reports: the query
// window plus the full action history (including pre-window actions that
// seed cost basis).
type ReportRequest struct {
	Start             int64                    `json:"start"`
	End               int64                    `json:"end"`
	Trades            []model.Trade            `json:"trades"`
	Loans             []model.Loan             `json:"loans"`
	MarginPositions   []model.MarginPosition   `json:"margin_positions"`
	AssetMovements    []model.AssetMovement    `json:"asset_movements"`
	ChainTransactions []model.ChainTransaction `json:"chain_transactions"`
}

// ReportResponse is the JSON body returned from POST /api/v1/reports.
type ReportResponse struct {
	RunID  string        `json:"run_id"`
	Start  int64         `json:"start"`
	End    int64         `json:"end"`
	Report *model.Report `json:"report"`
}

// --- HTTP Handlers ---

// RunReport handles POST /api/v1/reports
func (s *Service) RunReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.End < req.Start {
		writeError(w, "end must not precede start", http.StatusBadRequest)
		return
	}

	runID := uuid.New().String()
	if s.hub != nil {
		s.hub.Broadcast(RunEvent{
			Type:  "run_started",
			RunID: runID,
			Start: req.Start,
			End:   req.End,
		})
	}

	report, err := s.accountant.ProcessHistory(r.Context(), req.Start, req.End,
		req.Trades, req.Loans, req.MarginPositions, req.AssetMovements, req.ChainTransactions)
	if err != nil {
		slog.Error("report run failed", "run_id", runID, "err", err)
		if s.hub != nil {
			s.hub.Broadcast(RunEvent{
				Type:  "run_failed",
				RunID: runID,
				Start: req.Start,
				End:   req.End,
				Error: err.Error(),
			})
		}
		writeError(w, err.Error(), statusForError(err))
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(RunEvent{
			Type:                   "run_completed",
			RunID:                  runID,
			Start:                  req.Start,
			End:                    req.End,
			TotalProfitLoss:        report.TotalProfitLoss.String(),
			TotalTaxableProfitLoss: report.TotalTaxableProfitLoss.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ReportResponse{
		RunID:  runID,
		Start:  req.Start,
		End:    req.End,
		Report: report,
	})
}

// PriceObservation is the JSON body for POST /api/v1/prices.
type PriceObservation struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// AddPrice handles POST /api/v1/prices
func (s *Service) AddPrice(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeError(w, "price source is read-only", http.StatusNotImplemented)
		return
	}

	var obs PriceObservation
	if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if obs.From == "" || obs.To == "" {
		writeError(w, "from and to are required", http.StatusBadRequest)
		return
	}
	if !obs.Price.IsPositive() {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	if err := s.prices.InsertObservation(r.Context(), obs.From, obs.To, obs.Timestamp, obs.Price); err != nil {
		slog.Error("price insert failed", "from", obs.From, "to", obs.To, "err", err)
		writeError(w, "failed to store observation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(obs)
}

// statusForError maps run failures to HTTP statuses: history faults are
// the client's data (422), rate lookup misses are upstream (502),
// anything else is internal.
func statusForError(err error) int {
	var (
		outOfOrder *accounting.OutOfOrderActionError
		nonPos     *accounting.NonPositiveGainError
		zeroFee    *accounting.ZeroFeeWithdrawalError
		badTrade   *accounting.InvalidTradeError
	)
	switch {
	case errors.As(err, &outOfOrder),
		errors.As(err, &nonPos),
		errors.As(err, &zeroFee),
		errors.As(err, &badTrade),
		errors.Is(err, asset.ErrInvalidPair),
		errors.Is(err, asset.ErrAssetNotInPair),
		errors.Is(err, ledger.ErrInvalidAcquisition):
		return http.StatusUnprocessableEntity
	case pricing.IsRecoverable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
