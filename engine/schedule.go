/*
schedule.go - Installment schedule generator and regenerator

PURPOSE:
  Builds the discrete amortization schedule from loan terms and product
  configuration, independent of actual payments. Regeneration is destructive
  and total: period boundaries are not stable across term edits, so the
  previous schedule is always discarded and replaced, never patched.

PERIOD BOUNDARIES:
  monthly + loan_start:      same day each month from the start date,
                             clamped to shorter months
  monthly + calendar_month:  stub period from the start date to the first
                             of the next month, then calendar months
  weekly:                    every 7 days from the start date

EXPECTED AMOUNTS:
  Interest per period uses the expected principal at period start and the
  rate current at period start (penalty rate once effective). The expected
  principal is the origination amount adjusted by any known capital events,
  and, for reducing-interest products, by scheduled principal collections.

AMORTIZATION:
  interest_only: principal due only with the final installment
  annuity:       level payment, interest first, remainder to principal,
                 final installment adjusted to clear the balance exactly
*/
package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// ScheduleOptions carries the regeneration inputs that are not part of the
// loan's terms.
type ScheduleOptions struct {
	// Events adjusts the expected principal for capital movements that have
	// already happened. Nil for a fresh loan.
	Events []CapitalEvent

	// EndDate overrides Duration for auto-extending loans: periods are
	// generated until the end date is covered.
	EndDate *Date
}

// GenerateSchedule builds a fresh schedule: all statuses pending, all paid
// amounts zero. Deterministic: identical inputs produce identical rows.
func GenerateSchedule(terms LoanTerms, cfg ProductConfig, opts ScheduleOptions) ([]ScheduleRow, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	boundaries := periodBoundaries(terms, cfg, opts.EndDate)
	if len(boundaries) < 2 {
		return nil, nil
	}

	annuity := decimal.Zero
	if cfg.Amortization == AmortizeAnnuity {
		annuity = annuityPayment(terms, cfg)
	}

	rows := make([]ScheduleRow, 0, len(boundaries)-1)
	balance := expectedPrincipalAt(terms, opts.Events, boundaries[0])
	carry := decimal.Zero // interest accrued but not yet posted

	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]

		// Capital events between the previous boundary and this period's
		// start move the expected balance; mid-period events take effect
		// from the next period.
		if i > 0 {
			balance = balance.Add(eventDelta(opts.Events, boundaries[i-1], start))
		}

		rate := terms.RateOn(start)
		interest := periodInterest(balance, rate, start, end, terms.PeriodUnit, cfg.Method)

		var principal decimal.Decimal
		last := i == len(boundaries)-2
		switch cfg.Amortization {
		case AmortizeAnnuity:
			principal = annuity.Sub(interest)
			if principal.IsNegative() {
				principal = decimal.Zero
			}
			if last || principal.GreaterThan(balance) {
				principal = balance
			}
		default: // interest only
			principal = decimal.Zero
			if last {
				principal = balance
			}
		}

		dueDate := end
		if cfg.InterestInAdvance {
			dueDate = start
		}

		// Interest posts every PostingFrequency periods; intermediate periods
		// carry their accrual forward, and the final installment always posts.
		carry = carry.Add(interest)
		posted := decimal.Zero
		if (i+1)%cfg.PostingFrequency == 0 || last {
			posted = carry
			carry = decimal.Zero
		}

		rows = append(rows, ScheduleRow{
			Installment:   i + 1,
			DueDate:       dueDate,
			PeriodStart:   start,
			PeriodEnd:     end,
			PrincipalDue:  principal,
			InterestDue:   posted,
			PrincipalPaid: decimal.Zero,
			InterestPaid:  decimal.Zero,
			Status:        StatusPending,
		})

		// Only reducing-interest products shrink the interest base by
		// scheduled collections; simple interest waits for actual events.
		if terms.InterestType == InterestReducing || cfg.Amortization == AmortizeAnnuity {
			balance = balance.Sub(principal)
		}
	}

	return rows, nil
}

// periodBoundaries returns the ordered fence posts of the schedule:
// len(rows) == len(boundaries) - 1.
func periodBoundaries(terms LoanTerms, cfg ProductConfig, endDate *Date) []Date {
	boundaries := []Date{terms.StartDate}

	next := func(i int) Date {
		if terms.PeriodUnit == PeriodWeekly {
			return terms.StartDate.AddDays(7 * i)
		}
		if cfg.Alignment == AlignCalendarMonth {
			// Boundary 1 is the stub end; later boundaries walk calendar
			// months from there.
			return StartOfNextMonth(terms.StartDate).AddMonths(i - 1)
		}
		return terms.StartDate.AddMonths(i)
	}

	if endDate != nil {
		for i := 1; ; i++ {
			b := next(i)
			if b.AfterOrEqual(*endDate) {
				boundaries = append(boundaries, *endDate)
				break
			}
			boundaries = append(boundaries, b)
		}
		return boundaries
	}

	for i := 1; i <= terms.Duration; i++ {
		boundaries = append(boundaries, next(i))
	}
	return boundaries
}

// periodInterest computes one period's expected interest.
func periodInterest(balance, rate decimal.Decimal, start, end Date, unit PeriodUnit, method InterestMethod) decimal.Decimal {
	if method == MethodMonthlyFixed {
		periodsPerYear := decimal.NewFromInt(12)
		if unit == PeriodWeekly {
			periodsPerYear = decimal.NewFromInt(52)
		}
		return balance.Mul(rate).Div(hundred).Div(periodsPerYear).Round(2)
	}
	return segmentInterest(balance, rate, DaysBetween(start, end))
}

// annuityPayment is the standard level payment P*r*(1+r)^n / ((1+r)^n - 1),
// computed in float64 for the power term and rounded to 2dp.
func annuityPayment(terms LoanTerms, cfg ProductConfig) decimal.Decimal {
	n := terms.Duration
	periodsPerYear := 12.0
	if terms.PeriodUnit == PeriodWeekly {
		periodsPerYear = 52.0
	}
	r := terms.EffectiveRate().InexactFloat64() / 100.0 / periodsPerYear
	principal := terms.Principal.InexactFloat64()

	if r == 0 {
		return terms.Principal.Div(decimal.NewFromInt(int64(n))).Round(2)
	}
	factor := math.Pow(1+r, float64(n))
	return decimal.NewFromFloat(principal * r * factor / (factor - 1)).Round(2)
}

// expectedPrincipalAt sums the origination principal with all event deltas
// dated on or before the given boundary.
func expectedPrincipalAt(terms LoanTerms, events []CapitalEvent, at Date) decimal.Decimal {
	if events == nil {
		return terms.Principal
	}
	balance := decimal.Zero
	for _, e := range events {
		if e.Date.BeforeOrEqual(at) {
			balance = balance.Add(e.PrincipalDelta)
		}
	}
	return balance
}

// eventDelta sums event deltas with prev < date <= at.
func eventDelta(events []CapitalEvent, prev, at Date) decimal.Decimal {
	delta := decimal.Zero
	for _, e := range events {
		if e.Date.After(prev) && e.Date.BeforeOrEqual(at) {
			delta = delta.Add(e.PrincipalDelta)
		}
	}
	return delta
}
