/*
reconcile.go - Consistency check between the two interest calculators

PURPOSE:
  The engine keeps two independently-implemented interest calculations:
  schedule periods (billing, display) and continuous day-count (settlement
  figures on an arbitrary date). This checker cross-validates them and is
  the engine's correctness harness - runnable standalone against any loan's
  ledger and schedule, mutating neither.

READING THE REPORT:
  The schedule total only advances at period boundaries while the ledger
  total advances daily, so the day lag between the last boundary on or
  before asOf and asOf itself is the dominant source of any difference.
  Drift beyond tolerance is a diagnostic for human review, never a blocking
  error: the checker does not decide which figure is "correct".
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// ReconciliationReport carries both figures and enough diagnostics to
// explain a discrepancy.
type ReconciliationReport struct {
	AsOf Date

	// ScheduleInterest is the expected interest of all periods ending on or
	// before asOf.
	ScheduleInterest decimal.Decimal

	// LedgerInterest is the continuous day-count accrual to asOf.
	LedgerInterest decimal.Decimal

	Difference decimal.Decimal
	Matches    bool

	// LastBoundary is the latest period end counted into ScheduleInterest;
	// BoundaryLagDays is the day span from there to asOf.
	LastBoundary    Date
	BoundaryLagDays int
}

// Drift reports whether the difference exceeds tolerance. Informational:
// callers surface it, they do not fail on it.
func (r ReconciliationReport) Drift() bool { return !r.Matches }

// Reconcile cross-validates schedule-based against ledger-based interest at
// asOf. Read-only over both inputs.
func Reconcile(rows []ScheduleRow, ledger Ledger, asOf Date) ReconciliationReport {
	scheduleInterest := decimal.Zero
	lastBoundary := ledger.Start()

	for _, r := range rows {
		if r.PeriodEnd.BeforeOrEqual(asOf) {
			scheduleInterest = scheduleInterest.Add(r.InterestDue)
			if r.PeriodEnd.After(lastBoundary) {
				lastBoundary = r.PeriodEnd
			}
		}
	}

	ledgerInterest := Accrue(ledger, asOf).TotalInterest
	diff := scheduleInterest.Sub(ledgerInterest).Abs()

	return ReconciliationReport{
		AsOf:             asOf,
		ScheduleInterest: scheduleInterest,
		LedgerInterest:   ledgerInterest,
		Difference:       diff,
		Matches:          diff.LessThanOrEqual(Tolerance),
		LastBoundary:     lastBoundary,
		BoundaryLagDays:  DaysBetween(lastBoundary, asOf),
	}
}
