package engine_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lendward/loan-engine/engine"
)

func interestOnlyConfig() engine.ProductConfig {
	return engine.ProductConfig{
		Method:       engine.MethodDaily,
		Alignment:    engine.AlignLoanStart,
		Amortization: engine.AmortizeInterestOnly,
	}
}

// =============================================================================
// SCHEDULE GENERATION TESTS
// =============================================================================

func TestGenerateSchedule_MonthlyAnchoredToStartDay(t *testing.T) {
	// GIVEN: A 12-month loan starting Jan 15
	// WHEN: Generating with loan-start alignment
	// THEN: Periods run 15th-to-15th, 12 rows, due at period end

	rows, err := engine.GenerateSchedule(standardTerms(), interestOnlyConfig(), engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
	if !rows[0].PeriodStart.Equal(date(2025, time.January, 15)) {
		t.Errorf("first period start: got %s", rows[0].PeriodStart)
	}
	if !rows[0].PeriodEnd.Equal(date(2025, time.February, 15)) {
		t.Errorf("first period end: got %s", rows[0].PeriodEnd)
	}
	if !rows[0].DueDate.Equal(rows[0].PeriodEnd) {
		t.Error("due date should be the period end")
	}
	if !rows[11].PeriodEnd.Equal(date(2026, time.January, 15)) {
		t.Errorf("last period end: got %s", rows[11].PeriodEnd)
	}
	for i, r := range rows {
		if r.Installment != i+1 || r.Status != engine.StatusPending {
			t.Fatalf("row %d: wrong installment number or status", i)
		}
		if !r.PrincipalPaid.IsZero() || !r.InterestPaid.IsZero() {
			t.Fatalf("row %d: fresh schedule must have zero paid amounts", i)
		}
	}
}

func TestGenerateSchedule_MonthEndStartDayClamps(t *testing.T) {
	// GIVEN: A loan starting Jan 31
	// WHEN: Generating monthly periods
	// THEN: The February boundary clamps to Feb 28, not Mar 2/3

	terms := standardTerms()
	terms.StartDate = date(2025, time.January, 31)

	rows, err := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rows[0].PeriodEnd.Equal(date(2025, time.February, 28)) {
		t.Errorf("expected clamp to Feb 28, got %s", rows[0].PeriodEnd)
	}
}

func TestGenerateSchedule_CalendarAlignmentOpensWithStub(t *testing.T) {
	// GIVEN: Calendar-month alignment, loan starting Jan 15
	// WHEN: Generating
	// THEN: Period 1 is a stub to Feb 1, later periods are calendar months

	cfg := interestOnlyConfig()
	cfg.Alignment = engine.AlignCalendarMonth

	rows, err := engine.GenerateSchedule(standardTerms(), cfg, engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rows[0].PeriodEnd.Equal(date(2025, time.February, 1)) {
		t.Errorf("stub should end Feb 1, got %s", rows[0].PeriodEnd)
	}
	if !rows[1].PeriodStart.Equal(date(2025, time.February, 1)) || !rows[1].PeriodEnd.Equal(date(2025, time.March, 1)) {
		t.Error("second period should be the full calendar month of February")
	}
}

func TestGenerateSchedule_WeeklyPeriods(t *testing.T) {
	terms := standardTerms()
	terms.PeriodUnit = engine.PeriodWeekly
	terms.Duration = 4

	rows, err := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if engine.DaysBetween(r.PeriodStart, r.PeriodEnd) != 7 {
			t.Errorf("row %d: weekly period should span 7 days", i)
		}
		// 10000 x 0.12 x 7/365 = 23.01
		equalMoney(t, money(23.01), r.InterestDue, "weekly interest")
	}
}

func TestGenerateSchedule_DailyMethodMatchesDayCount(t *testing.T) {
	// The schedule's first-period interest must equal the continuous
	// day-count figure at the same boundary (reconciliation example).
	terms := standardTerms()
	rows, _ := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})

	ledger := engine.BuildLedger(terms, nil)
	accrued := engine.Accrue(ledger, rows[0].PeriodEnd).TotalInterest

	equalMoney(t, accrued, rows[0].InterestDue, "first-period interest vs day count")
}

func TestGenerateSchedule_MonthlyFixedMethod(t *testing.T) {
	// GIVEN: Monthly-fixed interest method
	// WHEN: Generating
	// THEN: Every period charges rate/12 regardless of period length

	cfg := interestOnlyConfig()
	cfg.Method = engine.MethodMonthlyFixed

	rows, _ := engine.GenerateSchedule(standardTerms(), cfg, engine.ScheduleOptions{})

	// 10000 x 12% / 12 = 100.00 every month
	for i, r := range rows {
		equalMoney(t, money(100), r.InterestDue, "fixed monthly interest")
		if i > 0 && !r.InterestDue.Equal(rows[0].InterestDue) {
			t.Fatal("monthly-fixed interest must not vary with period length")
		}
	}
}

func TestGenerateSchedule_InterestOnlyPrincipalDueLast(t *testing.T) {
	rows, _ := engine.GenerateSchedule(standardTerms(), interestOnlyConfig(), engine.ScheduleOptions{})

	for i := 0; i < len(rows)-1; i++ {
		if !rows[i].PrincipalDue.IsZero() {
			t.Fatalf("row %d: interest-only schedule should defer principal", i)
		}
	}
	equalMoney(t, money(10000), rows[len(rows)-1].PrincipalDue, "balloon principal")
}

func TestGenerateSchedule_AnnuityClearsBalance(t *testing.T) {
	// GIVEN: An annuity product
	// WHEN: Generating
	// THEN: Principal dues sum exactly to the loan principal

	terms := standardTerms()
	terms.InterestType = engine.InterestReducing
	cfg := interestOnlyConfig()
	cfg.Method = engine.MethodMonthlyFixed
	cfg.Amortization = engine.AmortizeAnnuity

	rows, err := engine.GenerateSchedule(terms, cfg, engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.PrincipalDue)
	}
	equalMoney(t, money(10000), total, "principal dues sum")

	// Interest declines as the balance amortizes.
	if !rows[len(rows)-1].InterestDue.LessThan(rows[0].InterestDue) {
		t.Error("annuity interest should decline over the term")
	}
}

func TestGenerateSchedule_PenaltyRateFromEffectiveDate(t *testing.T) {
	// GIVEN: Penalty rate 24% effective at the 7th period boundary
	// WHEN: Generating
	// THEN: Periods starting on/after the date use the penalty rate

	terms := standardTerms()
	penalty := money(24)
	from := date(2025, time.July, 15)
	terms.PenaltyRate = &penalty
	terms.PenaltyFrom = &from
	cfg := interestOnlyConfig()
	cfg.Method = engine.MethodMonthlyFixed

	rows, _ := engine.GenerateSchedule(terms, cfg, engine.ScheduleOptions{})

	for _, r := range rows {
		want := money(100) // 12%/12 on 10000
		if r.PeriodStart.AfterOrEqual(from) {
			want = money(200) // 24%/12
		}
		equalMoney(t, want, r.InterestDue, "period starting "+r.PeriodStart.String())
	}
}

func TestGenerateSchedule_InterestInAdvanceMovesDueDates(t *testing.T) {
	cfg := interestOnlyConfig()
	cfg.InterestInAdvance = true

	rows, _ := engine.GenerateSchedule(standardTerms(), cfg, engine.ScheduleOptions{})

	for i, r := range rows {
		if !r.DueDate.Equal(r.PeriodStart) {
			t.Fatalf("row %d: interest-in-advance due date should be the period start", i)
		}
	}
}

func TestGenerateSchedule_RegenerationAppliesCapitalEvents(t *testing.T) {
	// GIVEN: A 5000 advance during period 2
	// WHEN: Regenerating with the ledger's events
	// THEN: Expected interest rises from period 3 onward, not retroactively

	terms := standardTerms()
	cfg := interestOnlyConfig()
	cfg.Method = engine.MethodMonthlyFixed

	txs := []engine.Transaction{advance("t1", date(2025, time.March, 1), 5000)}
	ledger := engine.BuildLedger(terms, txs)

	rows, err := engine.GenerateSchedule(terms, cfg, engine.ScheduleOptions{Events: ledger.Events})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	equalMoney(t, money(100), rows[0].InterestDue, "period 1 on 10000")
	equalMoney(t, money(100), rows[1].InterestDue, "period 2 unchanged (mid-period event)")
	equalMoney(t, money(150), rows[2].InterestDue, "period 3 on 15000")
	equalMoney(t, money(15000), rows[len(rows)-1].PrincipalDue, "balloon reflects the advance")
}

func TestGenerateSchedule_ExplicitEndDateExtends(t *testing.T) {
	// Auto-extending loans generate periods until the explicit end date.
	terms := standardTerms()
	terms.AutoExtend = true
	end := date(2026, time.July, 1)

	rows, err := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{EndDate: &end})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rows) <= 12 {
		t.Fatalf("expected more than 12 rows, got %d", len(rows))
	}
	if !rows[len(rows)-1].PeriodEnd.Equal(end) {
		t.Errorf("last period should truncate at the end date, got %s", rows[len(rows)-1].PeriodEnd)
	}
}

func TestGenerateSchedule_Idempotent(t *testing.T) {
	// Generating twice from identical inputs yields identical rows.
	a, err := engine.GenerateSchedule(standardTerms(), interestOnlyConfig(), engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := engine.GenerateSchedule(standardTerms(), interestOnlyConfig(), engine.ScheduleOptions{})

	if !reflect.DeepEqual(a, b) {
		t.Error("regeneration is not idempotent")
	}
}

// =============================================================================
// TERMS VALIDATION TESTS
// =============================================================================

func TestGenerateSchedule_InvalidTermsRejected(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*engine.LoanTerms)
		field  string
	}{
		{"zero principal", func(tm *engine.LoanTerms) { tm.Principal = money(0) }, "principal"},
		{"negative principal", func(tm *engine.LoanTerms) { tm.Principal = money(-100) }, "principal"},
		{"negative rate", func(tm *engine.LoanTerms) { tm.AnnualRate = money(-1) }, "annual_rate"},
		{"zero duration", func(tm *engine.LoanTerms) { tm.Duration = 0 }, "duration"},
		{"missing start", func(tm *engine.LoanTerms) { tm.StartDate = engine.Date{} }, "start_date"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := standardTerms()
			tc.mutate(&terms)

			_, err := engine.GenerateSchedule(terms, interestOnlyConfig(), engine.ScheduleOptions{})

			if !errors.Is(err, engine.ErrInvalidTerms) {
				t.Fatalf("expected ErrInvalidTerms, got %v", err)
			}
			var details *engine.InvalidTermsError
			if !errors.As(err, &details) || details.Field != tc.field {
				t.Errorf("expected offending field %q, got %+v", tc.field, details)
			}
		})
	}
}

func TestLoanTerms_OverrideRateWins(t *testing.T) {
	terms := standardTerms()
	override := money(9.5)
	terms.OverrideRate = &override

	equalMoney(t, money(9.5), terms.EffectiveRate(), "override rate")
	equalMoney(t, money(9.5), terms.RateOn(terms.StartDate), "rate on start")
}

func TestGenerateSchedule_QuarterlyPostingCarriesInterest(t *testing.T) {
	// GIVEN: A monthly-fixed product posting interest every third period
	// WHEN: Generating the schedule
	// THEN: Intermediate rows carry zero interest due and each posting row
	//       collects the three accrued months

	cfg := interestOnlyConfig()
	cfg.Method = engine.MethodMonthlyFixed
	cfg.PostingFrequency = 3

	rows, err := engine.GenerateSchedule(standardTerms(), cfg, engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	for i, r := range rows {
		want := money(0)
		if (i+1)%3 == 0 {
			want = money(300)
		}
		equalMoney(t, want, r.InterestDue, "row interest")
	}

	total := money(0)
	for _, r := range rows {
		total = total.Add(r.InterestDue)
	}
	equalMoney(t, money(1200), total, "posting never changes the total")
}

func TestGenerateSchedule_PostingFrequencyFinalRowAlwaysPosts(t *testing.T) {
	// A frequency that does not divide the duration still posts the tail
	// accrual with the final installment.
	terms := standardTerms()
	terms.Duration = 7
	cfg := interestOnlyConfig()
	cfg.Method = engine.MethodMonthlyFixed
	cfg.PostingFrequency = 3

	rows, err := engine.GenerateSchedule(terms, cfg, engine.ScheduleOptions{})
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	equalMoney(t, money(300), rows[2].InterestDue, "first posting")
	equalMoney(t, money(300), rows[5].InterestDue, "second posting")
	equalMoney(t, money(100), rows[6].InterestDue, "tail month posts with the last row")
}
