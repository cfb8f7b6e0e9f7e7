/*
waterfall.go - Payment allocation across the schedule

PURPOSE:
  Allocates an incoming payment (or a caller-specified manual split) across
  outstanding interest and principal, oldest row first, interest before
  principal within a row. Any existing overpayment credit is consumed
  together with the new amount; whatever is left over becomes the new
  credit, or is forced against the next pending row's principal when the
  caller asks for immediate application.

MODES:
  automatic:  strict precedence, excess is never an error (it becomes credit)
  manual:     caller states the interest and principal amounts; they must sum
              to the payment exactly or the allocation is rejected
  settlement: after allocation, rows still pending are removed - settlement
              closes the loan outside the normal amortization

CONSERVATION:
  For every allocation: interest paid + principal paid + new credit - old
  credit == payment amount. Exact, not within tolerance.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// AllocationOptions selects the waterfall mode for one payment.
type AllocationOptions struct {
	// Manual applies the stated Interest/Principal amounts instead of the
	// automatic precedence rule. Interest + Principal must equal the
	// payment amount exactly.
	Manual    bool
	Interest  decimal.Decimal
	Principal decimal.Decimal

	// Settlement removes rows still pending after allocation.
	Settlement bool

	// ApplyCreditToNext forces leftover funds against the next pending
	// row's principal instead of carrying them as credit.
	ApplyCreditToNext bool
}

// Allocate runs the waterfall for one payment. The input rows are not
// mutated; the result carries the updated schedule and per-row deltas for
// the caller to persist.
func Allocate(rows []ScheduleRow, payment, credit decimal.Decimal, opts AllocationOptions) (WaterfallResult, error) {
	if len(rows) == 0 {
		return WaterfallResult{}, ErrEmptySchedule
	}

	updated := make([]ScheduleRow, len(rows))
	copy(updated, rows)

	var interestPaid, principalPaid decimal.Decimal
	var err error

	if opts.Manual {
		interestPaid, principalPaid, err = allocateManual(updated, payment, opts)
		if err != nil {
			return WaterfallResult{}, err
		}
	} else {
		interestPaid, principalPaid = allocateAuto(updated, payment.Add(credit))
	}

	// Leftover after the waterfall. Existing credit is part of the available
	// funds in automatic mode; in manual mode it is carried forward untouched.
	leftover := payment.Add(credit).Sub(interestPaid).Sub(principalPaid)

	if opts.ApplyCreditToNext && leftover.IsPositive() {
		if i := firstPending(updated); i >= 0 {
			updated[i].PrincipalPaid = updated[i].PrincipalPaid.Add(leftover)
			principalPaid = principalPaid.Add(leftover)
			refreshStatus(&updated[i])
			leftover = decimal.Zero
		}
	}

	if opts.Settlement {
		kept := updated[:0]
		for _, r := range updated {
			if r.Status != StatusPending {
				kept = append(kept, r)
			}
		}
		updated = kept
	}

	return WaterfallResult{
		Rows:               updated,
		Updates:            diffRows(rows, updated),
		InterestPaid:       interestPaid,
		PrincipalReduction: principalPaid,
		OverpaymentCredit:  leftover,
	}, nil
}

// allocateAuto applies available funds with full interest-before-principal
// precedence within a row, oldest row first.
func allocateAuto(rows []ScheduleRow, funds decimal.Decimal) (interestPaid, principalPaid decimal.Decimal) {
	interestPaid, principalPaid = decimal.Zero, decimal.Zero

	for i := range rows {
		if !funds.IsPositive() {
			break
		}

		if out := rows[i].OutstandingInterest(); out.IsPositive() {
			take := decimal.Min(funds, out)
			rows[i].InterestPaid = rows[i].InterestPaid.Add(take)
			interestPaid = interestPaid.Add(take)
			funds = funds.Sub(take)
		}
		if !funds.IsPositive() {
			refreshStatus(&rows[i])
			continue
		}
		if out := rows[i].OutstandingPrincipal(); out.IsPositive() {
			take := decimal.Min(funds, out)
			rows[i].PrincipalPaid = rows[i].PrincipalPaid.Add(take)
			principalPaid = principalPaid.Add(take)
			funds = funds.Sub(take)
		}
		refreshStatus(&rows[i])
	}
	return interestPaid, principalPaid
}

// allocateManual applies a caller-specified split, still oldest row first.
// The split must equal the payment amount; the engine never reconciles the
// difference on the caller's behalf.
func allocateManual(rows []ScheduleRow, payment decimal.Decimal, opts AllocationOptions) (interestPaid, principalPaid decimal.Decimal, err error) {
	if !opts.Interest.Add(opts.Principal).Equal(payment) {
		return decimal.Zero, decimal.Zero, &ManualSplitError{
			Amount:    payment,
			Interest:  opts.Interest,
			Principal: opts.Principal,
		}
	}

	interestPool := opts.Interest
	principalPool := opts.Principal

	for i := range rows {
		if out := rows[i].OutstandingInterest(); out.IsPositive() && interestPool.IsPositive() {
			take := decimal.Min(interestPool, out)
			rows[i].InterestPaid = rows[i].InterestPaid.Add(take)
			interestPool = interestPool.Sub(take)
		}
		if out := rows[i].OutstandingPrincipal(); out.IsPositive() && principalPool.IsPositive() {
			take := decimal.Min(principalPool, out)
			rows[i].PrincipalPaid = rows[i].PrincipalPaid.Add(take)
			principalPool = principalPool.Sub(take)
		}
		refreshStatus(&rows[i])
	}

	// Whatever the rows could not absorb flows back as leftover.
	return opts.Interest.Sub(interestPool), opts.Principal.Sub(principalPool), nil
}

func firstPending(rows []ScheduleRow) int {
	for i := range rows {
		if rows[i].Status == StatusPending {
			return i
		}
	}
	return -1
}

func refreshStatus(r *ScheduleRow) {
	if r.Covered() {
		r.Status = StatusPaid
	}
}

// diffRows records the paid-amount deltas between the original and updated
// schedule, keyed by installment number.
func diffRows(before, after []ScheduleRow) []RowUpdate {
	prior := make(map[int]ScheduleRow, len(before))
	for _, r := range before {
		prior[r.Installment] = r
	}

	var updates []RowUpdate
	for _, r := range after {
		p, ok := prior[r.Installment]
		if !ok {
			continue
		}
		di := r.InterestPaid.Sub(p.InterestPaid)
		dp := r.PrincipalPaid.Sub(p.PrincipalPaid)
		if di.IsZero() && dp.IsZero() && r.Status == p.Status {
			continue
		}
		updates = append(updates, RowUpdate{
			Installment:   r.Installment,
			InterestPaid:  di,
			PrincipalPaid: dp,
			Status:        r.Status,
		})
	}
	return updates
}
