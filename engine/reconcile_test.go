package engine_test

import (
	"testing"
	"time"

	"github.com/lendward/loan-engine/engine"
)

// =============================================================================
// RECONCILIATION TESTS
// =============================================================================

func TestReconcile_MatchesAtPeriodBoundary(t *testing.T) {
	// GIVEN: A daily-method schedule and its ledger
	// WHEN: Reconciling exactly at a period boundary
	// THEN: Both calculators agree within tolerance with zero boundary lag

	terms := standardTerms()
	rows, _ := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})
	ledger := engine.BuildLedger(terms, nil)

	report := engine.Reconcile(rows, ledger, rows[2].PeriodEnd)

	if !report.Matches {
		t.Errorf("expected match, schedule %s vs ledger %s",
			report.ScheduleInterest.StringFixed(2), report.LedgerInterest.StringFixed(2))
	}
	if report.BoundaryLagDays != 0 {
		t.Errorf("expected zero lag at a boundary, got %d days", report.BoundaryLagDays)
	}
}

func TestReconcile_FirstPeriodExample(t *testing.T) {
	// The canonical check: 10,000 at 12% simple, evaluated at the first
	// 30-day-out boundary, gives 98.63 on both sides.
	terms := standardTerms()
	terms.StartDate = date(2025, time.April, 15) // April 15 + 1 month = 30 days
	rows, _ := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})
	ledger := engine.BuildLedger(terms, nil)

	if got := engine.DaysBetween(rows[0].PeriodStart, rows[0].PeriodEnd); got != 30 {
		t.Fatalf("test setup: expected a 30-day first period, got %d", got)
	}

	report := engine.Reconcile(rows[:1], ledger, rows[0].PeriodEnd)

	equalMoney(t, money(98.63), report.LedgerInterest, "ledger side")
	equalMoney(t, money(98.63), report.ScheduleInterest, "schedule side")
	if !report.Matches {
		t.Error("the two calculators must agree at the boundary")
	}
}

func TestReconcile_MidPeriodLagExplainsDifference(t *testing.T) {
	// GIVEN: An as-of date 10 days past the last period boundary
	// WHEN: Reconciling
	// THEN: The report names the lag; the difference is the lag's accrual

	terms := standardTerms()
	rows, _ := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})
	ledger := engine.BuildLedger(terms, nil)

	asOf := rows[1].PeriodEnd.AddDays(10)
	report := engine.Reconcile(rows, ledger, asOf)

	if report.BoundaryLagDays != 10 {
		t.Errorf("expected 10 lag days, got %d", report.BoundaryLagDays)
	}
	if !report.LastBoundary.Equal(rows[1].PeriodEnd) {
		t.Errorf("expected last boundary %s, got %s", rows[1].PeriodEnd, report.LastBoundary)
	}
	// 10 extra days on 10,000 at 12%: 32.88 of ledger-side accrual.
	equalMoney(t, money(32.88), report.Difference, "lag accrual")
	if report.Matches {
		t.Error("a 10-day lag should exceed tolerance")
	}
	if !report.Drift() {
		t.Error("drift flag should be set")
	}
}

func TestReconcile_MonthlyFixedDriftIsDiagnosticOnly(t *testing.T) {
	// GIVEN: A monthly-fixed schedule (rate/12) against a day-count ledger
	// WHEN: Reconciling at a boundary
	// THEN: The drift is surfaced, not hidden - the checker never decides
	//       which figure is correct

	terms := standardTerms()
	cfg := interestOnlyConfig()
	cfg.Method = engine.MethodMonthlyFixed
	rows, _ := engine.GenerateSchedule(terms, cfg, engine.ScheduleOptions{})
	ledger := engine.BuildLedger(terms, nil)

	report := engine.Reconcile(rows, ledger, rows[0].PeriodEnd)

	// 100.00 fixed vs 101.92 day-count over the 31-day January period.
	equalMoney(t, money(100), report.ScheduleInterest, "schedule side")
	equalMoney(t, money(101.92), report.LedgerInterest, "ledger side")
	if report.Matches {
		t.Error("drift beyond tolerance must be reported")
	}
}

func TestReconcile_ReadOnly(t *testing.T) {
	terms := standardTerms()
	rows, _ := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})
	ledger := engine.BuildLedger(terms, nil)
	before := len(rows)

	_ = engine.Reconcile(rows, ledger, date(2025, time.June, 1))
	_ = engine.Reconcile(rows, ledger, date(2025, time.June, 1))

	if len(rows) != before || !rows[0].InterestPaid.IsZero() {
		t.Error("reconciliation must not mutate the schedule")
	}
}
