/*
handlers.go - HTTP handlers for the bonus wallet

PURPOSE:
  Exposes the wallet service over REST. Handles JSON serialization and
  error-to-status mapping; all business rules live in wallet and ledger.

ENDPOINTS:
  POST /api/events/order-completed        accrue on order completion (idempotent)
  POST /api/accounts/{id}/accrue          promo / support accrual
  POST /api/accounts/{id}/spend           spend at checkout
  GET  /api/accounts/{id}/balance         cached balance + tier + expiring soon
  GET  /api/accounts/{id}/history         full entry list
  POST /api/accounts/{id}/expire          manual expiration sweep
  GET  /api/admin/expiration-runs         sweep audit trail

ERROR HANDLING:
  - 400: invalid amount, malformed body
  - 404: unknown account on reads
  - 409: insufficient balance (checkout degrades to a capped option)
  - 500: integrity violations, store failures

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/bonus-ledger/ledger"
	"github.com/warp/bonus-ledger/store/sqlite"
	"github.com/warp/bonus-ledger/wallet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Wallet *wallet.Service

	// Runs is optional; when backed by the SQLite store it serves the
	// expiration audit endpoint.
	Runs ExpirationRunLister

	// RetentionDays is the default sweep window surfaced in balance reads.
	RetentionDays int
}

// ExpirationRunLister is the slice of the SQLite store the audit endpoint needs.
type ExpirationRunLister interface {
	ListExpirationRuns(ctx context.Context, limit int) ([]sqlite.ExpirationRun, error)
}

// NewHandler creates a handler over the wallet service.
func NewHandler(w *wallet.Service) *Handler {
	return &Handler{Wallet: w, RetentionDays: ledger.DefaultRetentionDays}
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// OrderCompleted accrues points for a completed order.
// POST /api/events/order-completed
//
// Idempotent per order id: redelivered events return the current balance.
func (h *Handler) OrderCompleted(w http.ResponseWriter, r *http.Request) {
	var req OrderCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AccountID == "" || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "account_id and order_id are required", nil)
		return
	}

	id := ledger.AccountID(req.AccountID)
	var (
		balance int64
		err     error
	)
	switch {
	case req.BonusAmount > 0:
		balance, err = h.Wallet.Accrue(r.Context(), id, req.BonusAmount, ledger.ReasonOrderAccrual, req.OrderID)
	case req.OrderTotal > 0:
		balance, err = h.Wallet.AccrueForOrder(r.Context(), id, req.OrderID, req.OrderTotal)
	default:
		writeError(w, http.StatusBadRequest, "bonus_amount or order_total must be positive", nil)
		return
	}
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	accrualsTotal.Inc()
	writeJSON(w, http.StatusOK, MutationResponse{AccountID: req.AccountID, NewBalance: balance})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// Accrue credits points outside the order flow.
// POST /api/accounts/{id}/accrue
func (h *Handler) Accrue(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req AccrueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reason := ledger.Reason(req.Reason)
	if reason == "" {
		reason = ledger.ReasonPromo
	}

	balance, err := h.Wallet.Accrue(r.Context(), id, req.Amount, reason, "")
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	accrualsTotal.Inc()
	writeJSON(w, http.StatusOK, MutationResponse{AccountID: string(id), NewBalance: balance})
}

// Spend debits points at checkout.
// POST /api/accounts/{id}/spend
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	balance, err := h.Wallet.Spend(r.Context(), id, req.Amount, ledger.Reason(req.Reason))
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			insufficientTotal.Inc()
		}
		writeLedgerError(w, err)
		return
	}

	spendsTotal.Inc()
	writeJSON(w, http.StatusOK, MutationResponse{AccountID: string(id), NewBalance: balance})
}

// GetBalance returns the cached balance with tier and expiring-soon info.
// GET /api/accounts/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	ctx := r.Context()

	balance, err := h.Wallet.Balance(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	// Never-seen accounts read as zero; the lookup must not create them.
	acc, err := h.Wallet.Account(ctx, id)
	if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
		writeLedgerError(w, err)
		return
	}
	tier := acc.Tier
	if tier == "" {
		tier = ledger.TierStandard
	}
	updatedAt := ""
	if !acc.UpdatedAt.IsZero() {
		updatedAt = acc.UpdatedAt.UTC().Format(time.RFC3339)
	}

	retention := h.RetentionDays
	if retention <= 0 {
		retention = ledger.DefaultRetentionDays
	}
	expiring, err := h.Wallet.ExpiringSoon(ctx, id, retention, 30*24*time.Hour)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		AccountID:     string(id),
		Balance:       balance,
		Tier:          string(tier),
		LifetimeBonus: acc.LifetimeBonus,
		LifetimeSpent: acc.LifetimeSpent,
		ExpiringSoon:  expiring,
		UpdatedAt:     updatedAt,
	})
}

// GetHistory returns the account's entry list, chronologically.
// GET /api/accounts/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	entries, err := h.Wallet.History(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			EntryID:   string(e.ID),
			Amount:    e.Amount,
			Reason:    string(e.Reason),
			OrderID:   e.OrderID,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Expire runs a manual expiration sweep for one account.
// POST /api/accounts/{id}/expire
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req ExpireRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	result, err := h.Wallet.RunExpiration(r.Context(), id, req.RetentionDays)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	expiredTotal.Add(float64(result.Expired))
	writeJSON(w, http.StatusOK, ExpireResponse{
		AccountID:     string(id),
		ExpiredAmount: result.Expired,
		NewBalance:    result.NewBalance,
	})
}

// ListExpirationRuns returns the sweep audit trail.
// GET /api/admin/expiration-runs
func (h *Handler) ListExpirationRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, []ExpirationRunDTO{})
		return
	}

	runs, err := h.Runs.ListExpirationRuns(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list expiration runs", err)
		return
	}

	dtos := make([]ExpirationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = ExpirationRunDTO{
			ID:            run.ID,
			AccountID:     run.AccountID,
			RetentionDays: run.RetentionDays,
			Expired:       run.Expired,
			BalanceAfter:  run.BalanceAfter,
			RanAt:         run.RanAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Amount must be positive", err)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "Insufficient balance", err)
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found", err)
	case errors.Is(err, ledger.ErrDataIntegrity):
		writeError(w, http.StatusInternalServerError, "Ledger integrity violation", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
