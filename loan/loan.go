/*
Package loan ties the servicing engine to persistence.

PURPOSE:
  The engine package is pure; this package owns the loan record, the
  store contract, and the service that runs the regenerate-and-replay
  protocol whenever a capital event or term edit invalidates a schedule.

SEE ALSO:
  - service.go: Orchestration and per-loan serialization
  - store.go: Persistence contract
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lendward/loan-engine/engine"
)

type Status string

const (
	StatusLive    Status = "live"
	StatusSettled Status = "settled"
)

// Loan is the persisted loan record. Terms are an immutable snapshot,
// replaced wholesale on edit; the credit and status fields are derived by
// replay and cached here for display.
type Loan struct {
	ID       string
	Borrower string
	Terms    engine.LoanTerms
	Config   engine.ProductConfig
	Status   Status

	OverpaymentCredit decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettlementQuote is the figure needed to close a loan on a chosen date.
type SettlementQuote struct {
	LoanID string
	AsOf   engine.Date

	OutstandingPrincipal decimal.Decimal
	AccruedInterest      decimal.Decimal
	InterestAlreadyPaid  decimal.Decimal
	ExitFee              decimal.Decimal
	CreditHeld           decimal.Decimal

	// Total is principal + accrued unpaid interest + exit fee - credit.
	Total decimal.Decimal
}
