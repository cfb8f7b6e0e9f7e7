/*
accrual.go - Day-count interest accrual calculator

PURPOSE:
  Walks the capital-event ledger and partitions time into segments bounded
  by capital events and rate changes, accruing interest per segment as

      principal_at_start x (annual_rate / 100) x days / 365

  Rounding to the currency's 2dp happens once per segment, never per day,
  so no rounding drift can compound across a segment.

INVARIANTS:
  - Segments are contiguous and non-overlapping
  - Sum of segment days equals the whole-day span from ledger start to asOf
  - Zero-day segments are dropped (same-day events were already merged)
  - A segment never straddles a rate change; the split is exact

CONCURRENCY:
  Read-only over its inputs. Safe to call concurrently for any number of
  loans.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// Accrue computes the day-count interest breakdown from the ledger start up
// to asOf. Events on asOf itself do not accrue (whole days only), but the
// closing principal reflects them.
func Accrue(ledger Ledger, asOf Date) AccrualResult {
	result := AccrualResult{
		TotalInterest:    decimal.Zero,
		ClosingPrincipal: decimal.Zero,
	}
	if len(ledger.Events) == 0 || asOf.BeforeOrEqual(ledger.Start()) {
		for _, e := range ledger.Events {
			if e.Date.BeforeOrEqual(asOf) {
				result.ClosingPrincipal = result.ClosingPrincipal.Add(e.PrincipalDelta)
			}
		}
		return result
	}

	principal := decimal.Zero
	rate := decimal.Zero
	penalty := false

	for i, e := range ledger.Events {
		if e.Date.After(asOf) {
			break
		}

		// Same-day deltas apply before the first segment of that day.
		principal = principal.Add(e.PrincipalDelta)
		if e.RateAfter != nil {
			rate = *e.RateAfter
			penalty = e.PenaltyRate
		}

		end := asOf
		if i+1 < len(ledger.Events) && ledger.Events[i+1].Date.Before(asOf) {
			end = ledger.Events[i+1].Date
		}

		days := DaysBetween(e.Date, end)
		if days <= 0 {
			continue
		}

		interest := segmentInterest(principal, rate, days)
		result.Segments = append(result.Segments, Segment{
			Start:            e.Date,
			End:              end,
			Days:             days,
			PrincipalAtStart: principal,
			AnnualRate:       rate,
			PenaltyRate:      penalty,
			Interest:         interest,
		})
		result.TotalDays += days
		result.TotalInterest = result.TotalInterest.Add(interest)
	}

	result.ClosingPrincipal = principal
	return result
}

// segmentInterest rounds once, at segment level.
func segmentInterest(principal, annualRate decimal.Decimal, days int) decimal.Decimal {
	return principal.
		Mul(annualRate).Div(hundred).
		Mul(decimal.NewFromInt(int64(days))).Div(daysInYear).
		Round(2)
}
