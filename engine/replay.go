/*
replay.go - Regenerate-and-replay orchestration

PURPOSE:
  The two-phase protocol that keeps a loan's schedule valid after any
  capital event or term edit: rebuild the capital-event ledger, regenerate
  the schedule from scratch, then re-apply every historical repayment in
  date order against the fresh rows. Incremental patching is deliberately
  not attempted - period boundaries are not stable across term edits, and
  detecting boundary shifts is strictly harder than full regeneration.

CALLER CONTRACT:
  The caller must treat one replay as a single logical transaction per
  loan: exclusive access to the loan's schedule and transaction set for
  its duration, and whole-sequence retry on interruption. The engine side
  is pure, so a retry is always safe.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// Allocation is the split the waterfall actually applied for one replayed
// repayment, whether the transaction carried a recorded split or was
// allocated automatically.
type Allocation struct {
	Interest  decimal.Decimal
	Principal decimal.Decimal
}

// ReplayResult is the rebuilt state of one loan after regenerate-and-replay.
type ReplayResult struct {
	Ledger             Ledger
	Rows               []ScheduleRow
	OverpaymentCredit  decimal.Decimal
	TotalInterestPaid  decimal.Decimal
	TotalPrincipalPaid decimal.Decimal

	// Allocations records the applied split per transaction id.
	Allocations map[string]Allocation

	// EffectiveLedger is the capital-event ledger rebuilt with the applied
	// splits. A repayment recorded without a split carries no principal
	// reduction in the raw Ledger; here the waterfall's allocation does
	// reduce the balance, so day-count accrual matches what the schedule
	// shows as paid.
	EffectiveLedger Ledger

	// Settled reports that a settlement repayment was replayed: the loan is
	// closed outside the normal amortization.
	Settled bool
}

// ReplayOptions tunes regeneration; zero value is correct for most loans.
type ReplayOptions struct {
	// EndDate is passed through to the schedule generator for auto-extending
	// loans.
	EndDate *Date
}

// Replay rebuilds a loan's schedule and payment state from first principles.
// Pure: identical terms, config and transactions always produce the same
// result, so interrupted callers simply run it again.
func Replay(terms LoanTerms, cfg ProductConfig, txs []Transaction, opts ReplayOptions) (ReplayResult, error) {
	ledger := BuildLedger(terms, txs)

	endDate := opts.EndDate
	if endDate == nil && terms.AutoExtend {
		if last := lastEventDate(ledger); last.After(terms.StartDate) {
			endDate = scheduleEndFor(terms, last)
		}
	}

	rows, err := GenerateSchedule(terms, cfg, ScheduleOptions{Events: ledger.Events, EndDate: endDate})
	if err != nil {
		return ReplayResult{}, err
	}

	result := ReplayResult{
		Ledger:             ledger,
		Rows:               rows,
		OverpaymentCredit:  decimal.Zero,
		TotalInterestPaid:  decimal.Zero,
		TotalPrincipalPaid: decimal.Zero,
		Allocations:        make(map[string]Allocation),
	}

	repayments, _ := orderedLive(txs)
	for _, tx := range repayments {
		if tx.Type != TxRepayment {
			continue
		}
		allocatable := tx.Amount.Sub(tx.FeesApplied)
		if !allocatable.IsPositive() {
			continue
		}

		wf, err := Allocate(result.Rows, allocatable, result.OverpaymentCredit, allocationFor(tx, allocatable))
		if err != nil {
			return ReplayResult{}, err
		}

		result.Rows = wf.Rows
		result.OverpaymentCredit = wf.OverpaymentCredit
		result.TotalInterestPaid = result.TotalInterestPaid.Add(wf.InterestPaid)
		result.TotalPrincipalPaid = result.TotalPrincipalPaid.Add(wf.PrincipalReduction)
		result.Allocations[tx.ID] = Allocation{
			Interest:  wf.InterestPaid,
			Principal: wf.PrincipalReduction,
		}
		if tx.Settlement {
			result.Settled = true
		}
	}

	result.EffectiveLedger = effectiveLedger(terms, txs, result.Allocations)
	return result, nil
}

// effectiveLedger rebuilds the ledger with the applied splits substituted for
// the recorded ones, so automatic allocations reduce the accrual balance.
func effectiveLedger(terms LoanTerms, txs []Transaction, allocs map[string]Allocation) Ledger {
	applied := make([]Transaction, len(txs))
	copy(applied, txs)
	for i := range applied {
		a, ok := allocs[applied[i].ID]
		if !ok {
			continue
		}
		applied[i].InterestApplied = a.Interest
		applied[i].PrincipalApplied = a.Principal
	}
	return BuildLedger(terms, applied)
}

// allocationFor replays a transaction in manual-split mode when it carries a
// split that accounts for the full allocatable amount, automatically
// otherwise.
func allocationFor(tx Transaction, allocatable decimal.Decimal) AllocationOptions {
	split := tx.InterestApplied.Add(tx.PrincipalApplied)
	if (tx.InterestApplied.IsPositive() || tx.PrincipalApplied.IsPositive()) && split.Equal(allocatable) {
		return AllocationOptions{
			Manual:     true,
			Interest:   tx.InterestApplied,
			Principal:  tx.PrincipalApplied,
			Settlement: tx.Settlement,
		}
	}
	return AllocationOptions{Settlement: tx.Settlement}
}

func lastEventDate(l Ledger) Date {
	if len(l.Events) == 0 {
		return Date{}
	}
	return l.Events[len(l.Events)-1].Date
}

// scheduleEndFor extends an auto-extending loan's schedule to the first
// contractual boundary on or after the given date.
func scheduleEndFor(terms LoanTerms, at Date) *Date {
	end := terms.StartDate
	for i := 1; ; i++ {
		if terms.PeriodUnit == PeriodWeekly {
			end = terms.StartDate.AddDays(7 * i)
		} else {
			end = terms.StartDate.AddMonths(i)
		}
		if end.AfterOrEqual(at) && i >= terms.Duration {
			break
		}
	}
	return &end
}
