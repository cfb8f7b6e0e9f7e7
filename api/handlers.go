/*
handlers.go - HTTP API handlers for the loan servicing system

PURPOSE:
  Exposes the servicing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the service.

ENDPOINTS:
  Loans:
    GET    /api/loans                         List all loans
    POST   /api/loans                         Originate a loan
    GET    /api/loans/{id}                    Get loan details
    PUT    /api/loans/{id}/terms              Replace the terms snapshot
    GET    /api/loans/{id}/schedule           Current amortization schedule
    GET    /api/loans/{id}/transactions       Capital movement history
    POST   /api/loans/{id}/repayments         Record a repayment
    POST   /api/loans/{id}/advances           Record a further advance
    POST   /api/loans/{id}/regenerate         Force a schedule rebuild
    DELETE /api/loans/{id}/transactions/{txID} Soft-delete a transaction

  Figures (read-only, ?as_of=YYYY-MM-DD, default today):
    GET    /api/loans/{id}/statement          Day-count accrual breakdown
    GET    /api/loans/{id}/settlement-quote   Early settlement figure
    GET    /api/loans/{id}/reconciliation     Cross-check of the calculators

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Loan or transaction not found
  - 409: Capital movement against a loan that is no longer live
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lendward/loan-engine/engine"
	"github.com/lendward/loan-engine/loan"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *loan.Service
	Logger  *zap.Logger
}

// NewHandler creates a new handler backed by the given service.
func NewHandler(svc *loan.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, Logger: logger}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns all loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Service.List(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list loans", err)
		return
	}

	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLoan originates a loan and generates its first schedule.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Borrower == "" {
		writeError(w, http.StatusBadRequest, "Borrower is required", nil)
		return
	}

	terms, err := req.Terms.toTerms()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid terms", err)
		return
	}

	l, err := h.Service.CreateLoan(r.Context(), req.Borrower, terms, req.Config.toConfig())
	if err != nil {
		h.writeDomainError(w, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(l))
}

// GetLoan returns a single loan.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	l, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// UpdateTerms replaces the loan's terms snapshot and rebuilds the schedule.
func (h *Handler) UpdateTerms(w http.ResponseWriter, r *http.Request) {
	var req UpdateTermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	terms, err := req.Terms.toTerms()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid terms", err)
		return
	}

	l, err := h.Service.UpdateTerms(r.Context(), chi.URLParam(r, "id"), terms)
	if err != nil {
		h.writeDomainError(w, "Failed to update terms", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// GetSchedule returns the loan's current schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Schedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleRowDTOs(rows))
}

// GetTransactions returns the loan's capital movement history.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Service.TransactionHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// CAPITAL MOVEMENT HANDLERS
// =============================================================================

// RecordRepayment records a payment and rebuilds the loan state.
func (h *Handler) RecordRepayment(w http.ResponseWriter, r *http.Request) {
	var req RepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	l, err := h.Service.RecordRepayment(r.Context(), chi.URLParam(r, "id"), loan.RepaymentInput{
		Date:       date,
		Amount:     req.Amount,
		Interest:   req.Interest,
		Principal:  req.Principal,
		Fees:       req.Fees,
		Settlement: req.Settlement,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record repayment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(l))
}

// RecordAdvance records a further advance and rebuilds the loan state.
func (h *Handler) RecordAdvance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	l, err := h.Service.RecordFurtherAdvance(r.Context(), chi.URLParam(r, "id"), date, req.Amount, req.Deductions)
	if err != nil {
		h.writeDomainError(w, "Failed to record advance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(l))
}

// DeleteTransaction soft-deletes a transaction and rebuilds the loan state.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	l, err := h.Service.RemoveTransaction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "txID"))
	if err != nil {
		h.writeDomainError(w, "Failed to delete transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// Regenerate forces a schedule rebuild.
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	l, err := h.Service.Regenerate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to regenerate schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// =============================================================================
// FIGURE HANDLERS - Read-only views at an as-of date
// =============================================================================

// GetStatement returns the day-count accrual breakdown.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of, expected YYYY-MM-DD", err)
		return
	}

	stmt, err := h.Service.Statement(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to compute statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(asOf, stmt))
}

// GetSettlementQuote returns the early settlement figure.
func (h *Handler) GetSettlementQuote(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of, expected YYYY-MM-DD", err)
		return
	}

	quote, err := h.Service.SettlementQuote(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to compute settlement quote", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementQuoteDTO(quote))
}

// GetReconciliation cross-checks the two interest calculators.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of, expected YYYY-MM-DD", err)
		return
	}

	report, err := h.Service.Reconciliation(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(report))
}

// asOfParam reads ?as_of=YYYY-MM-DD, defaulting to today.
func asOfParam(r *http.Request) (engine.Date, error) {
	s := r.URL.Query().Get("as_of")
	if s == "" {
		return engine.DateOf(time.Now()), nil
	}
	return engine.ParseDate(s)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeDomainError maps service errors onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, loan.ErrNotFound):
		writeError(w, http.StatusNotFound, "Loan not found", nil)
	case errors.Is(err, loan.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
	case errors.Is(err, loan.ErrLoanNotLive):
		writeError(w, http.StatusConflict, "Loan is not live", nil)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

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
