package loan

import (
	"context"
	"errors"

	"github.com/lendward/loan-engine/engine"
)

// =============================================================================
// STORE - Persistence contract for loans, transactions, schedules
// =============================================================================

var (
	ErrNotFound            = errors.New("loan not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrLoanNotLive rejects capital movements against a settled loan: a
	// settlement removed the pending rows, so there is nothing left to
	// allocate a payment to.
	ErrLoanNotLive = errors.New("loan is not live")
)

// Store handles persistence. Transactions are soft-deleted, never removed:
// the non-deleted, date-ordered subset is the engine's authoritative input.
// Schedules are replaced wholesale - ReplaceSchedule must be atomic so a
// reader never observes a half-replaced schedule.
type Store interface {
	CreateLoan(ctx context.Context, l *Loan) error
	GetLoan(ctx context.Context, id string) (*Loan, error)
	ListLoans(ctx context.Context) ([]*Loan, error)
	UpdateLoan(ctx context.Context, l *Loan) error

	// AppendTransaction records a capital movement against a loan.
	AppendTransaction(ctx context.Context, loanID string, tx engine.Transaction) error

	// Transactions returns the non-deleted transactions, date-ascending.
	Transactions(ctx context.Context, loanID string) ([]engine.Transaction, error)

	// DeleteTransaction soft-deletes; replay then rebuilds the schedule.
	DeleteTransaction(ctx context.Context, loanID, txID string) error

	// ReplaceSchedule atomically swaps the loan's schedule rows.
	ReplaceSchedule(ctx context.Context, loanID string, rows []engine.ScheduleRow) error

	// Schedule returns rows in installment order.
	Schedule(ctx context.Context, loanID string) ([]engine.ScheduleRow, error)
}
