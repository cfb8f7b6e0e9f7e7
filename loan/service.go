/*
service.go - Loan servicing orchestration

PURPOSE:
  Runs the engine against persisted state. Every capital movement or term
  edit ends in the same two-phase sequence: regenerate the schedule, then
  replay every historical repayment against the fresh rows. The service
  serializes that sequence per loan - one in-flight rebuild per loan id -
  because concurrent edits during a rebuild can produce an inconsistent
  schedule. Different loans rebuild concurrently without interference.

READ PATHS:
  Statement, settlement quote and reconciliation never mutate state; they
  derive everything from the transaction history at the requested as-of
  date.
*/
package loan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lendward/loan-engine/engine"
)

// Service coordinates the engine and the store.
type Service struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-loan rebuild serialization
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// loanLock returns the rebuild mutex for one loan id.
func (s *Service) loanLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// CreateLoan validates the terms, persists the loan and generates its first
// schedule. The fees carried on the terms are cash-flow only: the
// arrangement fee reduces the cash advanced at drawdown and the exit fee is
// charged on the settlement quote; neither enters the interest-bearing
// balance.
func (s *Service) CreateLoan(ctx context.Context, borrower string, terms engine.LoanTerms, cfg engine.ProductConfig) (*Loan, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	l := &Loan{
		ID:                uuid.NewString(),
		Borrower:          borrower,
		Terms:             terms,
		Config:            cfg,
		Status:            StatusLive,
		OverpaymentCredit: decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateLoan(ctx, l); err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}

	// The origination disbursement is implied by the terms; the ledger
	// derives it directly, so no transaction is recorded for it.
	if err := s.rebuild(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info("loan created",
		zap.String("loan_id", l.ID),
		zap.String("principal", terms.Principal.StringFixed(2)),
		zap.String("start", terms.StartDate.String()),
	)
	return l, nil
}

// UpdateTerms replaces the terms snapshot wholesale and rebuilds.
func (s *Service) UpdateTerms(ctx context.Context, loanID string, terms engine.LoanTerms) (*Loan, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	lock := s.loanLock(loanID)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	l.Terms = terms
	l.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateLoan(ctx, l); err != nil {
		return nil, fmt.Errorf("update loan %s: %w", loanID, err)
	}
	if err := s.rebuild(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// =============================================================================
// CAPITAL MOVEMENTS - every write path ends in regenerate-and-replay
// =============================================================================

// RepaymentInput describes one incoming payment.
type RepaymentInput struct {
	Date   engine.Date
	Amount decimal.Decimal

	// Interest/Principal, when set, record a manual split. They must sum to
	// Amount net of Fees or the engine rejects the allocation.
	Interest  decimal.Decimal
	Principal decimal.Decimal
	Fees      decimal.Decimal

	Settlement bool
}

// RecordRepayment appends the repayment and rebuilds the loan state. A
// manual split that does not sum to the amount net of fees is rejected
// before anything is recorded.
func (s *Service) RecordRepayment(ctx context.Context, loanID string, in RepaymentInput) (*Loan, error) {
	if in.Interest.IsPositive() || in.Principal.IsPositive() {
		allocatable := in.Amount.Sub(in.Fees)
		if !in.Interest.Add(in.Principal).Equal(allocatable) {
			return nil, &engine.ManualSplitError{
				Amount:    allocatable,
				Interest:  in.Interest,
				Principal: in.Principal,
			}
		}
	}

	tx := engine.Transaction{
		ID:               uuid.NewString(),
		Date:             in.Date,
		Type:             engine.TxRepayment,
		Amount:           in.Amount,
		InterestApplied:  in.Interest,
		PrincipalApplied: in.Principal,
		FeesApplied:      in.Fees,
		Settlement:       in.Settlement,
	}
	return s.recordAndRebuild(ctx, loanID, tx)
}

// RecordFurtherAdvance appends a disbursement and rebuilds. The gross
// amount becomes interest-bearing; deductions only reduce the cash paid out.
func (s *Service) RecordFurtherAdvance(ctx context.Context, loanID string, date engine.Date, amount, deductions decimal.Decimal) (*Loan, error) {
	tx := engine.Transaction{
		ID:          uuid.NewString(),
		Date:        date,
		Type:        engine.TxDisbursement,
		Amount:      amount,
		FeesApplied: deductions,
	}
	return s.recordAndRebuild(ctx, loanID, tx)
}

// RemoveTransaction soft-deletes a transaction and rebuilds: deleting a
// capital event invalidates every later expected figure.
func (s *Service) RemoveTransaction(ctx context.Context, loanID, txID string) (*Loan, error) {
	lock := s.loanLock(loanID)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteTransaction(ctx, loanID, txID); err != nil {
		return nil, err
	}
	if err := s.rebuild(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Regenerate rebuilds on explicit request.
func (s *Service) Regenerate(ctx context.Context, loanID string) (*Loan, error) {
	lock := s.loanLock(loanID)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := s.rebuild(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) recordAndRebuild(ctx context.Context, loanID string, tx engine.Transaction) (*Loan, error) {
	lock := s.loanLock(loanID)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.Status != StatusLive {
		return nil, fmt.Errorf("loan %s: %w", loanID, ErrLoanNotLive)
	}
	if err := s.store.AppendTransaction(ctx, loanID, tx); err != nil {
		return nil, fmt.Errorf("append transaction to loan %s: %w", loanID, err)
	}
	if err := s.rebuild(ctx, l); err != nil {
		// The transaction must not outlive its failed rebuild, or every
		// later rebuild replays it and fails the same way.
		if delErr := s.store.DeleteTransaction(ctx, loanID, tx.ID); delErr != nil {
			s.logger.Error("rollback of transaction after failed rebuild",
				zap.String("loan_id", loanID),
				zap.String("tx_id", tx.ID),
				zap.Error(delErr),
			)
		}
		return nil, err
	}
	return l, nil
}

// rebuild is the two-phase protocol: regenerate the schedule from the
// authoritative transaction history, replay every repayment, persist the
// replacement rows and the derived loan fields. Callers hold the loan lock.
func (s *Service) rebuild(ctx context.Context, l *Loan) error {
	txs, err := s.store.Transactions(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("load transactions for loan %s: %w", l.ID, err)
	}

	result, err := engine.Replay(l.Terms, l.Config, txs, engine.ReplayOptions{})
	if err != nil {
		return fmt.Errorf("replay loan %s: %w", l.ID, err)
	}
	if result.Ledger.Unordered {
		s.logger.Warn("transactions arrived out of date order; sorted defensively",
			zap.String("loan_id", l.ID))
	}

	if err := s.store.ReplaceSchedule(ctx, l.ID, result.Rows); err != nil {
		return fmt.Errorf("replace schedule for loan %s: %w", l.ID, err)
	}

	l.OverpaymentCredit = result.OverpaymentCredit
	l.Status = StatusLive
	if result.Settled {
		l.Status = StatusSettled
	}
	l.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateLoan(ctx, l); err != nil {
		return fmt.Errorf("update loan %s: %w", l.ID, err)
	}

	s.logger.Debug("schedule rebuilt",
		zap.String("loan_id", l.ID),
		zap.Int("rows", len(result.Rows)),
		zap.String("credit", result.OverpaymentCredit.StringFixed(2)),
	)
	return nil
}

// =============================================================================
// READ PATHS - never mutate state
// =============================================================================

func (s *Service) Get(ctx context.Context, loanID string) (*Loan, error) {
	return s.store.GetLoan(ctx, loanID)
}

func (s *Service) List(ctx context.Context) ([]*Loan, error) {
	return s.store.ListLoans(ctx)
}

func (s *Service) Schedule(ctx context.Context, loanID string) ([]engine.ScheduleRow, error) {
	return s.store.Schedule(ctx, loanID)
}

func (s *Service) TransactionHistory(ctx context.Context, loanID string) ([]engine.Transaction, error) {
	return s.store.Transactions(ctx, loanID)
}

// replayState re-derives the loan's replayed state for a read path. The
// effective ledger inside carries the splits the waterfall actually applied,
// so automatically allocated repayments reduce the accrual balance the same
// way recorded splits do.
func (s *Service) replayState(ctx context.Context, loanID string) (*Loan, engine.ReplayResult, error) {
	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, engine.ReplayResult{}, err
	}
	txs, err := s.store.Transactions(ctx, loanID)
	if err != nil {
		return nil, engine.ReplayResult{}, err
	}
	result, err := engine.Replay(l.Terms, l.Config, txs, engine.ReplayOptions{})
	if err != nil {
		return nil, engine.ReplayResult{}, fmt.Errorf("replay loan %s: %w", loanID, err)
	}
	return l, result, nil
}

// Statement returns the per-segment day-count breakdown to asOf, the
// auditable backing for any displayed or exported interest figure.
func (s *Service) Statement(ctx context.Context, loanID string, asOf engine.Date) (engine.AccrualResult, error) {
	_, result, err := s.replayState(ctx, loanID)
	if err != nil {
		return engine.AccrualResult{}, err
	}
	return engine.Accrue(result.EffectiveLedger, asOf), nil
}

// SettlementQuote computes the figure that closes the loan on a chosen
// date: outstanding principal plus accrued unpaid interest plus the exit
// fee, less any credit held.
func (s *Service) SettlementQuote(ctx context.Context, loanID string, asOf engine.Date) (SettlementQuote, error) {
	l, result, err := s.replayState(ctx, loanID)
	if err != nil {
		return SettlementQuote{}, err
	}

	accrual := engine.Accrue(result.EffectiveLedger, asOf)

	unpaidInterest := accrual.TotalInterest.Sub(result.TotalInterestPaid)
	if unpaidInterest.IsNegative() {
		unpaidInterest = decimal.Zero
	}

	total := accrual.ClosingPrincipal.
		Add(unpaidInterest).
		Add(l.Terms.ExitFee).
		Sub(result.OverpaymentCredit)

	return SettlementQuote{
		LoanID:               loanID,
		AsOf:                 asOf,
		OutstandingPrincipal: accrual.ClosingPrincipal,
		AccruedInterest:      accrual.TotalInterest,
		InterestAlreadyPaid:  result.TotalInterestPaid,
		ExitFee:              l.Terms.ExitFee,
		CreditHeld:           result.OverpaymentCredit,
		Total:                total,
	}, nil
}

// Reconciliation cross-checks the two interest calculators for one loan.
// Drift is informational; it never blocks servicing.
func (s *Service) Reconciliation(ctx context.Context, loanID string, asOf engine.Date) (engine.ReconciliationReport, error) {
	_, result, err := s.replayState(ctx, loanID)
	if err != nil {
		return engine.ReconciliationReport{}, err
	}
	rows, err := s.store.Schedule(ctx, loanID)
	if err != nil {
		return engine.ReconciliationReport{}, err
	}

	report := engine.Reconcile(rows, result.EffectiveLedger, asOf)
	if report.Drift() {
		s.logger.Info("reconciliation drift",
			zap.String("loan_id", loanID),
			zap.String("schedule", report.ScheduleInterest.StringFixed(2)),
			zap.String("ledger", report.LedgerInterest.StringFixed(2)),
			zap.Int("boundary_lag_days", report.BoundaryLagDays),
		)
	}
	return report, nil
}
