/*
Package engine provides the loan servicing calculation core.

PURPOSE:
  This package contains the pure computation layer for interest accrual and
  repayment bookkeeping. Given a loan's terms and its chronological capital
  movements, it derives the capital-event ledger, accrues day-count interest,
  generates and regenerates amortization schedules, allocates payments across
  outstanding interest and principal, and cross-checks the two independent
  interest calculations against each other.

KEY CONCEPTS IN THIS FILE (types.go):
  - CapitalEvent: A change to the interest-bearing principal or to the rate
  - Segment: A date range with constant principal and rate (day-count accrual)
  - ScheduleRow: One amortization period with expected and paid amounts
  - Transaction: An externally-owned capital movement (disbursement/repayment)
  - WaterfallResult: The outcome of allocating one payment

DESIGN PRINCIPLES:
  1. Purity: No component holds state between calls or reads a clock; the
     single as-of date is always an input
  2. Precision: decimal.Decimal for every monetary and rate value, rounded
     to 2dp only at segment/period level
  3. Reproducibility: Identical inputs always yield identical output
  4. Two calculators, reconciled: schedule periods for billing, continuous
     day-count for settlement; neither is collapsed into the other

SEE ALSO:
  - ledger.go: Derives CapitalEvents from terms + transactions
  - accrual.go: Day-count interest over the event ledger
  - schedule.go: Period schedule generation and regeneration
  - waterfall.go: Payment allocation
  - reconcile.go: Cross-validation of the two interest totals
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// Tolerance is the uniform rounding tolerance across the engine: amounts
// within 0.01 of a currency unit are treated as settled.
var Tolerance = decimal.New(1, -2)

var (
	daysInYear = decimal.NewFromInt(365)
	hundred    = decimal.NewFromInt(100)
)

// =============================================================================
// CAPITAL EVENTS - Derived ledger of principal and rate changes
// =============================================================================

type EventKind string

const (
	EventOrigination        EventKind = "origination"
	EventFurtherAdvance     EventKind = "further_advance"
	EventPrincipalRepayment EventKind = "principal_repayment"
	EventRateChange         EventKind = "rate_change"
)

// CapitalEvent is a single point where the interest-bearing balance or the
// applicable annual rate changes. Events are derived from the transaction
// history on every calculation, never persisted.
type CapitalEvent struct {
	Date           Date
	PrincipalDelta decimal.Decimal
	Kind           EventKind

	// RateAfter, when set, is the annual rate applying from this date.
	// The origination event always carries the loan's opening rate.
	RateAfter *decimal.Decimal

	// PenaltyRate marks RateAfter as a penalty rate for reporting.
	PenaltyRate bool
}

// Ledger is the ordered capital-event sequence for one loan.
type Ledger struct {
	Events []CapitalEvent

	// Unordered flags that the input transactions arrived out of date order.
	// The builder sorts defensively; the flag exists so callers can log the
	// upstream ordering bug.
	Unordered bool
}

// Start returns the date of the first event, the accrual origin.
func (l Ledger) Start() Date {
	if len(l.Events) == 0 {
		return Date{}
	}
	return l.Events[0].Date
}

// =============================================================================
// SEGMENTS - Day-count accrual breakdown
// =============================================================================

// Segment is a contiguous date range with constant principal and rate.
// End is exclusive: the segment covers the nights from Start up to End.
type Segment struct {
	Start            Date
	End              Date
	Days             int
	PrincipalAtStart decimal.Decimal
	AnnualRate       decimal.Decimal
	PenaltyRate      bool
	Interest         decimal.Decimal
}

// AccrualResult is the full day-count accrual breakdown up to an as-of date.
type AccrualResult struct {
	Segments         []Segment
	TotalInterest    decimal.Decimal
	TotalDays        int
	ClosingPrincipal decimal.Decimal
}

// =============================================================================
// SCHEDULE ROWS - Amortization periods
// =============================================================================

type RowStatus string

const (
	StatusPending RowStatus = "pending"
	StatusPaid    RowStatus = "paid"
)

// ScheduleRow is one amortization period. Expected amounts come from the
// generator; paid amounts are written only by the waterfall, and the whole
// row set is replaced wholesale on regeneration.
type ScheduleRow struct {
	Installment   int
	DueDate       Date
	PeriodStart   Date
	PeriodEnd     Date
	PrincipalDue  decimal.Decimal
	InterestDue   decimal.Decimal
	PrincipalPaid decimal.Decimal
	InterestPaid  decimal.Decimal
	Status        RowStatus
}

// OutstandingInterest returns interest still due on this row, never negative.
func (r ScheduleRow) OutstandingInterest() decimal.Decimal {
	out := r.InterestDue.Sub(r.InterestPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// OutstandingPrincipal returns principal still due on this row, never negative.
func (r ScheduleRow) OutstandingPrincipal() decimal.Decimal {
	out := r.PrincipalDue.Sub(r.PrincipalPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Covered reports whether paid amounts cover due amounts within Tolerance.
// Overpayment counts as covered.
func (r ScheduleRow) Covered() bool {
	due := r.PrincipalDue.Add(r.InterestDue)
	paid := r.PrincipalPaid.Add(r.InterestPaid)
	return due.Sub(paid).LessThanOrEqual(Tolerance)
}

// =============================================================================
// TRANSACTIONS - Externally-owned capital movements
// =============================================================================

type TxType string

const (
	TxDisbursement TxType = "disbursement"
	TxRepayment    TxType = "repayment"
)

// Transaction is a capital movement owned by the surrounding application.
// The engine treats the non-deleted subset, date-ascending, as the
// authoritative source for ledger building and waterfall replay.
type Transaction struct {
	ID     string
	Date   Date
	Type   TxType
	Amount decimal.Decimal

	// Split recorded against a repayment. When both are zero the replay
	// allocates automatically; when set they are applied as a manual split.
	PrincipalApplied decimal.Decimal
	InterestApplied  decimal.Decimal

	// FeesApplied is cash-flow only: fees never enter the interest-bearing
	// balance and never reach the waterfall.
	FeesApplied decimal.Decimal

	// Settlement marks a repayment that closes the loan: remaining pending
	// rows are removed from the schedule after allocation.
	Settlement bool

	Deleted bool
}

// =============================================================================
// WATERFALL RESULT - Outcome of allocating one payment
// =============================================================================

// RowUpdate is the paid-amount delta applied to one schedule row.
type RowUpdate struct {
	Installment   int
	InterestPaid  decimal.Decimal
	PrincipalPaid decimal.Decimal
	Status        RowStatus
}

// WaterfallResult is ephemeral: the engine returns it for the caller to
// persist and holds no state between calls.
type WaterfallResult struct {
	// Rows is the updated schedule. On settlement, rows left pending after
	// allocation have been removed.
	Rows []ScheduleRow

	// Updates lists the rows whose paid amounts or status changed.
	Updates []RowUpdate

	InterestPaid       decimal.Decimal
	PrincipalReduction decimal.Decimal
	OverpaymentCredit  decimal.Decimal
}
