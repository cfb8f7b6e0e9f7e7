package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// LOAN TERMS - Immutable calculation input, replaced wholesale on edit
// =============================================================================

type InterestType string

const (
	// InterestSimple charges interest on the capital balance only; scheduled
	// repayments do not reduce the interest base until they actually happen.
	InterestSimple InterestType = "simple"

	// InterestReducing charges interest on the declining expected balance.
	InterestReducing InterestType = "reducing"
)

type PeriodUnit string

const (
	PeriodMonthly PeriodUnit = "monthly"
	PeriodWeekly  PeriodUnit = "weekly"
)

// LoanTerms is the immutable snapshot of a loan's commercial terms. The
// engine never mutates it; term edits replace the whole value.
type LoanTerms struct {
	Principal    decimal.Decimal
	AnnualRate   decimal.Decimal // percent, e.g. 12 for 12% p.a.
	InterestType InterestType
	Duration     int // number of periods
	PeriodUnit   PeriodUnit
	StartDate    Date

	// OverrideRate, when set, replaces AnnualRate for all calculations.
	OverrideRate *decimal.Decimal

	// PenaltyRate applies from PenaltyFrom onward. Both must be set for a
	// rate-change event to be emitted.
	PenaltyRate *decimal.Decimal
	PenaltyFrom *Date

	// Fees are cash-flow only; they never enter the interest-bearing balance.
	ArrangementFee decimal.Decimal
	ExitFee        decimal.Decimal

	// AutoExtend keeps the schedule open past Duration until an explicit
	// end date is supplied.
	AutoExtend bool
}

// EffectiveRate returns the opening annual rate, honoring any override.
func (t LoanTerms) EffectiveRate() decimal.Decimal {
	if t.OverrideRate != nil {
		return *t.OverrideRate
	}
	return t.AnnualRate
}

// RateOn returns the annual rate applying on a given date, selecting the
// penalty rate once its effective date is reached.
func (t LoanTerms) RateOn(d Date) decimal.Decimal {
	if t.PenaltyRate != nil && t.PenaltyFrom != nil && d.AfterOrEqual(*t.PenaltyFrom) {
		return *t.PenaltyRate
	}
	return t.EffectiveRate()
}

// PenaltyOn reports whether the penalty rate applies on a given date.
func (t LoanTerms) PenaltyOn(d Date) bool {
	return t.PenaltyRate != nil && t.PenaltyFrom != nil && d.AfterOrEqual(*t.PenaltyFrom)
}

// Validate rejects terms no schedule or segment computation should ever see.
// Failures are fatal to the request, never retried.
func (t LoanTerms) Validate() error {
	if !t.Principal.IsPositive() {
		return &InvalidTermsError{Field: "principal", Reason: "must be positive", Value: t.Principal.String()}
	}
	if t.AnnualRate.IsNegative() {
		return &InvalidTermsError{Field: "annual_rate", Reason: "must not be negative", Value: t.AnnualRate.String()}
	}
	if t.OverrideRate != nil && t.OverrideRate.IsNegative() {
		return &InvalidTermsError{Field: "override_rate", Reason: "must not be negative", Value: t.OverrideRate.String()}
	}
	if t.PenaltyRate != nil && t.PenaltyRate.IsNegative() {
		return &InvalidTermsError{Field: "penalty_rate", Reason: "must not be negative", Value: t.PenaltyRate.String()}
	}
	if t.Duration <= 0 {
		return &InvalidTermsError{Field: "duration", Reason: "must be at least one period"}
	}
	if t.StartDate.IsZero() {
		return &InvalidTermsError{Field: "start_date", Reason: "must be set"}
	}
	switch t.PeriodUnit {
	case PeriodMonthly, PeriodWeekly:
	default:
		return &InvalidTermsError{Field: "period_unit", Reason: "unknown period unit", Value: string(t.PeriodUnit)}
	}
	return nil
}

// =============================================================================
// PRODUCT CONFIG - How the product computes and aligns interest
// =============================================================================

type InterestMethod string

const (
	// MethodDaily computes period interest from actual days elapsed.
	MethodDaily InterestMethod = "daily"

	// MethodMonthlyFixed charges rate/12 (or rate/52 weekly) per period
	// regardless of period length.
	MethodMonthlyFixed InterestMethod = "monthly_fixed"
)

type Alignment string

const (
	// AlignLoanStart anchors periods to the loan's start day of month.
	AlignLoanStart Alignment = "loan_start"

	// AlignCalendarMonth opens with a stub period to the first of the next
	// month, then runs on calendar months.
	AlignCalendarMonth Alignment = "calendar_month"
)

type AmortizationKind string

const (
	// AmortizeInterestOnly collects interest each period and the full
	// principal with the final installment.
	AmortizeInterestOnly AmortizationKind = "interest_only"

	// AmortizeAnnuity collects a level payment each period, split between
	// interest and principal.
	AmortizeAnnuity AmortizationKind = "annuity"
)

// ProductConfig is supplied by the surrounding application and read-only to
// the engine.
type ProductConfig struct {
	Method            InterestMethod
	Alignment         Alignment
	InterestInAdvance bool
	Amortization      AmortizationKind

	// PostingFrequency is how many periods elapse between interest postings.
	// Zero means every period.
	PostingFrequency int
}

// normalized fills zero-value fields with product defaults so a partially
// specified config behaves predictably.
func (c ProductConfig) normalized() ProductConfig {
	if c.Method == "" {
		c.Method = MethodDaily
	}
	if c.Alignment == "" {
		c.Alignment = AlignLoanStart
	}
	if c.Amortization == "" {
		c.Amortization = AmortizeInterestOnly
	}
	if c.PostingFrequency <= 0 {
		c.PostingFrequency = 1
	}
	return c
}
