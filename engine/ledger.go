/*
ledger.go - Capital event ledger builder

PURPOSE:
  Turns a loan's terms plus its transaction history into the ordered
  capital-event sequence every other calculation feeds on. The ledger is
  derived on every call and never persisted: the transaction history is the
  single source of truth.

EVENT RULES:
  - Origination at the start date carries the opening principal and rate
  - Disbursements become FurtherAdvance events at their GROSS amount;
    fees and deductions affect cash flow, not the interest-bearing balance
  - Repayments with principal applied become PrincipalRepayment events
  - A configured penalty rate emits a RateChange at its effective date
  - Same-day events merge by net principal delta so no zero-day segment
    can ever appear downstream

ORDERING:
  Input is sorted defensively. Out-of-order input indicates an upstream
  bug, so the ledger carries an Unordered flag for the caller to log; it
  is never an error.
*/
package engine

import (
	"sort"
)

// BuildLedger derives the capital-event sequence for a loan. Pure function:
// no side effects, identical inputs yield identical ledgers.
func BuildLedger(terms LoanTerms, txs []Transaction) Ledger {
	live, unordered := orderedLive(txs)

	openingRate := terms.EffectiveRate()
	events := []CapitalEvent{{
		Date:           terms.StartDate,
		PrincipalDelta: terms.Principal,
		Kind:           EventOrigination,
		RateAfter:      &openingRate,
	}}

	for _, tx := range live {
		switch tx.Type {
		case TxDisbursement:
			// Gross amount: deductions are cash-flow only.
			events = append(events, CapitalEvent{
				Date:           tx.Date,
				PrincipalDelta: tx.Amount,
				Kind:           EventFurtherAdvance,
			})
		case TxRepayment:
			if tx.PrincipalApplied.IsPositive() {
				events = append(events, CapitalEvent{
					Date:           tx.Date,
					PrincipalDelta: tx.PrincipalApplied.Neg(),
					Kind:           EventPrincipalRepayment,
				})
			}
		}
	}

	if terms.PenaltyRate != nil && terms.PenaltyFrom != nil {
		rate := *terms.PenaltyRate
		effective := *terms.PenaltyFrom
		if effective.Before(terms.StartDate) {
			effective = terms.StartDate
		}
		events = append(events, CapitalEvent{
			Date:        effective,
			Kind:        EventRateChange,
			RateAfter:   &rate,
			PenaltyRate: true,
		})
	}

	return Ledger{Events: mergeByDate(events), Unordered: unordered}
}

// orderedLive filters deleted transactions and returns the rest in date
// order, reporting whether the input needed reordering.
func orderedLive(txs []Transaction) ([]Transaction, bool) {
	live := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Deleted {
			live = append(live, tx)
		}
	}

	unordered := false
	for i := 1; i < len(live); i++ {
		if live[i].Date.Before(live[i-1].Date) {
			unordered = true
			break
		}
	}
	if unordered {
		sort.SliceStable(live, func(i, j int) bool {
			return live[i].Date.Before(live[j].Date)
		})
	}
	return live, unordered
}

// mergeByDate collapses same-day events into one event with the net
// principal delta, keeping any rate change of that day. The origination
// event always absorbs same-day movements so the ledger starts with a
// single opening event.
func mergeByDate(events []CapitalEvent) []CapitalEvent {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})

	merged := make([]CapitalEvent, 0, len(events))
	for _, e := range events {
		if len(merged) == 0 || !merged[len(merged)-1].Date.Equal(e.Date) {
			merged = append(merged, e)
			continue
		}
		last := &merged[len(merged)-1]
		last.PrincipalDelta = last.PrincipalDelta.Add(e.PrincipalDelta)
		if e.RateAfter != nil {
			last.RateAfter = e.RateAfter
			last.PenaltyRate = e.PenaltyRate
		}
		if last.Kind == EventRateChange && e.Kind != EventRateChange {
			last.Kind = e.Kind
		}
	}
	return merged
}
