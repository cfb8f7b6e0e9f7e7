/*
errors.go - Centralized error types for the servicing engine

PURPOSE:
  All engine error types in one place. Callers wrap these with loan context.

ERROR CATEGORIES:
  1. Input errors - terms or splits the engine refuses to compute from
  2. Diagnostic flags - conditions surfaced but never fatal (unordered
     input, reconciliation drift)

USAGE:
  if errors.Is(err, engine.ErrInvalidTerms) {
      // reject the request, do not retry
  }
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTerms is returned when loan terms fail validation. Fatal to
	// the request; the caller must correct the terms.
	ErrInvalidTerms = errors.New("invalid loan terms")

	// ErrManualSplitMismatch is returned when a manual interest/principal
	// split does not sum to the payment amount. The engine never reconciles
	// the difference implicitly.
	ErrManualSplitMismatch = errors.New("manual split does not equal payment amount")

	// ErrEmptySchedule is returned when a payment is allocated against a
	// loan with no schedule rows.
	ErrEmptySchedule = errors.New("schedule has no rows")
)

// =============================================================================
// STRUCTURED ERRORS - Carry enough context to act on
// =============================================================================

// InvalidTermsError names the offending field so the caller can surface it.
type InvalidTermsError struct {
	Field  string
	Reason string
	Value  string
}

func (e *InvalidTermsError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid terms: %s %s (got %s)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid terms: %s %s", e.Field, e.Reason)
}

func (e *InvalidTermsError) Unwrap() error { return ErrInvalidTerms }

// ManualSplitError reports the stated amount against the split it disagrees
// with.
type ManualSplitError struct {
	Amount    decimal.Decimal
	Interest  decimal.Decimal
	Principal decimal.Decimal
}

func (e *ManualSplitError) Error() string {
	return fmt.Sprintf("manual split mismatch: interest %s + principal %s != amount %s",
		e.Interest.StringFixed(2), e.Principal.StringFixed(2), e.Amount.StringFixed(2))
}

func (e *ManualSplitError) Unwrap() error { return ErrManualSplitMismatch }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTerms) ||
		errors.Is(err, ErrManualSplitMismatch) ||
		errors.Is(err, ErrEmptySchedule)
}
