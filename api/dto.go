/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Monetary amounts travel as JSON numbers (decimal.Decimal accepts both
  numbers and strings on decode). Dates travel as "2006-01-02" strings.

SEE ALSO:
  - handlers.go: Uses these types
  - loan/service.go: The operations behind them
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lendward/loan-engine/engine"
	"github.com/lendward/loan-engine/loan"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// TermsDTO mirrors engine.LoanTerms on the wire.
type TermsDTO struct {
	Principal    decimal.Decimal `json:"principal"`
	AnnualRate   decimal.Decimal `json:"annual_rate"`
	InterestType string          `json:"interest_type"`
	Duration     int             `json:"duration"`
	PeriodUnit   string          `json:"period_unit"`
	StartDate    string          `json:"start_date"`

	OverrideRate *decimal.Decimal `json:"override_rate,omitempty"`
	PenaltyRate  *decimal.Decimal `json:"penalty_rate,omitempty"`
	PenaltyFrom  *string          `json:"penalty_from,omitempty"`

	ArrangementFee decimal.Decimal `json:"arrangement_fee"`
	ExitFee        decimal.Decimal `json:"exit_fee"`
	AutoExtend     bool            `json:"auto_extend"`
}

// ConfigDTO mirrors engine.ProductConfig on the wire.
type ConfigDTO struct {
	Method            string `json:"method"`
	Alignment         string `json:"alignment"`
	InterestInAdvance bool   `json:"interest_in_advance"`
	Amortization      string `json:"amortization"`
	PostingFrequency  int    `json:"posting_frequency"`
}

// CreateLoanRequest is the request to originate a loan.
type CreateLoanRequest struct {
	Borrower string    `json:"borrower"`
	Terms    TermsDTO  `json:"terms"`
	Config   ConfigDTO `json:"config"`
}

// UpdateTermsRequest replaces a loan's terms snapshot wholesale.
type UpdateTermsRequest struct {
	Terms TermsDTO `json:"terms"`
}

// RepaymentRequest records an incoming payment.
type RepaymentRequest struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`

	Interest   decimal.Decimal `json:"interest"`
	Principal  decimal.Decimal `json:"principal"`
	Fees       decimal.Decimal `json:"fees"`
	Settlement bool            `json:"settlement"`
}

// AdvanceRequest records a further advance.
type AdvanceRequest struct {
	Date       string          `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Deductions decimal.Decimal `json:"deductions"`
}

// LoanDTO represents a loan in API responses.
type LoanDTO struct {
	ID                string    `json:"id"`
	Borrower          string    `json:"borrower"`
	Status            string    `json:"status"`
	OverpaymentCredit string    `json:"overpayment_credit"`
	Terms             TermsDTO  `json:"terms"`
	Config            ConfigDTO `json:"config"`
	CreatedAt         string    `json:"created_at,omitempty"`
	UpdatedAt         string    `json:"updated_at,omitempty"`
}

// ScheduleRowDTO represents one amortization period.
type ScheduleRowDTO struct {
	Installment   int    `json:"installment"`
	DueDate       string `json:"due_date"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
	PrincipalDue  string `json:"principal_due"`
	InterestDue   string `json:"interest_due"`
	PrincipalPaid string `json:"principal_paid"`
	InterestPaid  string `json:"interest_paid"`
	Status        string `json:"status"`
}

// TransactionDTO represents a capital movement.
type TransactionDTO struct {
	ID               string `json:"id"`
	Date             string `json:"date"`
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	PrincipalApplied string `json:"principal_applied"`
	InterestApplied  string `json:"interest_applied"`
	FeesApplied      string `json:"fees_applied"`
	Settlement       bool   `json:"settlement"`
}

// SegmentDTO represents one constant-principal accrual span.
type SegmentDTO struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Days        int    `json:"days"`
	Principal   string `json:"principal"`
	AnnualRate  string `json:"annual_rate"`
	PenaltyRate bool   `json:"penalty_rate"`
	Interest    string `json:"interest"`
}

// StatementDTO is the day-count accrual breakdown to an as-of date.
type StatementDTO struct {
	AsOf             string       `json:"as_of"`
	Segments         []SegmentDTO `json:"segments"`
	TotalInterest    string       `json:"total_interest"`
	TotalDays        int          `json:"total_days"`
	ClosingPrincipal string       `json:"closing_principal"`
}

// SettlementQuoteDTO is the figure that closes a loan on a chosen date.
type SettlementQuoteDTO struct {
	LoanID               string `json:"loan_id"`
	AsOf                 string `json:"as_of"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	AccruedInterest      string `json:"accrued_interest"`
	InterestAlreadyPaid  string `json:"interest_already_paid"`
	ExitFee              string `json:"exit_fee"`
	CreditHeld           string `json:"credit_held"`
	Total                string `json:"total"`
}

// ReconciliationDTO cross-checks the two interest calculators.
type ReconciliationDTO struct {
	AsOf             string `json:"as_of"`
	ScheduleInterest string `json:"schedule_interest"`
	LedgerInterest   string `json:"ledger_interest"`
	Difference       string `json:"difference"`
	Matches          bool   `json:"matches"`
	LastBoundary     string `json:"last_boundary"`
	BoundaryLagDays  int    `json:"boundary_lag_days"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func (d TermsDTO) toTerms() (engine.LoanTerms, error) {
	start, err := engine.ParseDate(d.StartDate)
	if err != nil {
		return engine.LoanTerms{}, &engine.InvalidTermsError{
			Field: "start_date", Reason: "must be YYYY-MM-DD", Value: d.StartDate,
		}
	}

	terms := engine.LoanTerms{
		Principal:      d.Principal,
		AnnualRate:     d.AnnualRate,
		InterestType:   engine.InterestType(d.InterestType),
		Duration:       d.Duration,
		PeriodUnit:     engine.PeriodUnit(d.PeriodUnit),
		StartDate:      start,
		OverrideRate:   d.OverrideRate,
		PenaltyRate:    d.PenaltyRate,
		ArrangementFee: d.ArrangementFee,
		ExitFee:        d.ExitFee,
		AutoExtend:     d.AutoExtend,
	}
	if terms.InterestType == "" {
		terms.InterestType = engine.InterestSimple
	}
	if terms.PeriodUnit == "" {
		terms.PeriodUnit = engine.PeriodMonthly
	}
	if d.PenaltyFrom != nil {
		from, err := engine.ParseDate(*d.PenaltyFrom)
		if err != nil {
			return engine.LoanTerms{}, &engine.InvalidTermsError{
				Field: "penalty_from", Reason: "must be YYYY-MM-DD", Value: *d.PenaltyFrom,
			}
		}
		terms.PenaltyFrom = &from
	}
	return terms, nil
}

func (d ConfigDTO) toConfig() engine.ProductConfig {
	return engine.ProductConfig{
		Method:            engine.InterestMethod(d.Method),
		Alignment:         engine.Alignment(d.Alignment),
		InterestInAdvance: d.InterestInAdvance,
		Amortization:      engine.AmortizationKind(d.Amortization),
		PostingFrequency:  d.PostingFrequency,
	}
}

func toTermsDTO(t engine.LoanTerms) TermsDTO {
	dto := TermsDTO{
		Principal:      t.Principal,
		AnnualRate:     t.AnnualRate,
		InterestType:   string(t.InterestType),
		Duration:       t.Duration,
		PeriodUnit:     string(t.PeriodUnit),
		StartDate:      t.StartDate.String(),
		OverrideRate:   t.OverrideRate,
		PenaltyRate:    t.PenaltyRate,
		ArrangementFee: t.ArrangementFee,
		ExitFee:        t.ExitFee,
		AutoExtend:     t.AutoExtend,
	}
	if t.PenaltyFrom != nil {
		s := t.PenaltyFrom.String()
		dto.PenaltyFrom = &s
	}
	return dto
}

func toConfigDTO(c engine.ProductConfig) ConfigDTO {
	return ConfigDTO{
		Method:            string(c.Method),
		Alignment:         string(c.Alignment),
		InterestInAdvance: c.InterestInAdvance,
		Amortization:      string(c.Amortization),
		PostingFrequency:  c.PostingFrequency,
	}
}

func toLoanDTO(l *loan.Loan) LoanDTO {
	return LoanDTO{
		ID:                l.ID,
		Borrower:          l.Borrower,
		Status:            string(l.Status),
		OverpaymentCredit: l.OverpaymentCredit.StringFixed(2),
		Terms:             toTermsDTO(l.Terms),
		Config:            toConfigDTO(l.Config),
		CreatedAt:         l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         l.UpdatedAt.Format(time.RFC3339),
	}
}

func toScheduleRowDTOs(rows []engine.ScheduleRow) []ScheduleRowDTO {
	dtos := make([]ScheduleRowDTO, len(rows))
	for i, r := range rows {
		dtos[i] = ScheduleRowDTO{
			Installment:   r.Installment,
			DueDate:       r.DueDate.String(),
			PeriodStart:   r.PeriodStart.String(),
			PeriodEnd:     r.PeriodEnd.String(),
			PrincipalDue:  r.PrincipalDue.StringFixed(2),
			InterestDue:   r.InterestDue.StringFixed(2),
			PrincipalPaid: r.PrincipalPaid.StringFixed(2),
			InterestPaid:  r.InterestPaid.StringFixed(2),
			Status:        string(r.Status),
		}
	}
	return dtos
}

func toTransactionDTOs(txs []engine.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			ID:               tx.ID,
			Date:             tx.Date.String(),
			Type:             string(tx.Type),
			Amount:           tx.Amount.StringFixed(2),
			PrincipalApplied: tx.PrincipalApplied.StringFixed(2),
			InterestApplied:  tx.InterestApplied.StringFixed(2),
			FeesApplied:      tx.FeesApplied.StringFixed(2),
			Settlement:       tx.Settlement,
		}
	}
	return dtos
}

func toStatementDTO(asOf engine.Date, a engine.AccrualResult) StatementDTO {
	segments := make([]SegmentDTO, len(a.Segments))
	for i, seg := range a.Segments {
		segments[i] = SegmentDTO{
			Start:       seg.Start.String(),
			End:         seg.End.String(),
			Days:        seg.Days,
			Principal:   seg.PrincipalAtStart.StringFixed(2),
			AnnualRate:  seg.AnnualRate.String(),
			PenaltyRate: seg.PenaltyRate,
			Interest:    seg.Interest.StringFixed(2),
		}
	}
	return StatementDTO{
		AsOf:             asOf.String(),
		Segments:         segments,
		TotalInterest:    a.TotalInterest.StringFixed(2),
		TotalDays:        a.TotalDays,
		ClosingPrincipal: a.ClosingPrincipal.StringFixed(2),
	}
}

func toSettlementQuoteDTO(q loan.SettlementQuote) SettlementQuoteDTO {
	return SettlementQuoteDTO{
		LoanID:               q.LoanID,
		AsOf:                 q.AsOf.String(),
		OutstandingPrincipal: q.OutstandingPrincipal.StringFixed(2),
		AccruedInterest:      q.AccruedInterest.StringFixed(2),
		InterestAlreadyPaid:  q.InterestAlreadyPaid.StringFixed(2),
		ExitFee:              q.ExitFee.StringFixed(2),
		CreditHeld:           q.CreditHeld.StringFixed(2),
		Total:                q.Total.StringFixed(2),
	}
}

func toReconciliationDTO(r engine.ReconciliationReport) ReconciliationDTO {
	return ReconciliationDTO{
		AsOf:             r.AsOf.String(),
		ScheduleInterest: r.ScheduleInterest.StringFixed(2),
		LedgerInterest:   r.LedgerInterest.StringFixed(2),
		Difference:       r.Difference.StringFixed(2),
		Matches:          r.Matches,
		LastBoundary:     r.LastBoundary.String(),
		BoundaryLagDays:  r.BoundaryLagDays,
	}
}
