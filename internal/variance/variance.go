// Package variance computes per-category differences between what a property
// should have produced and what was observed, and the resulting verdict.
//
// Two comparisons live here and are deliberately separate. Per-property
// variances are compared exactly: 1500.00 against 1500.01 is a discrepancy.
// Manager-level totals are compared with SummaryTolerance.
package variance

import (
	"rent-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// SummaryTolerance is the largest absolute difference between a manager's
// statement total and its deposits that still reads as matched, exclusive.
var SummaryTolerance = decimal.New(1, -2)

// Target is the expected monthly figures from the current property parameters.
type Target struct {
	ExpectedRent    decimal.Decimal
	HOAFee          decimal.Decimal
	MortgagePayment decimal.Decimal
	HOAFrequency    models.HOAFrequency
}

// TargetFor builds a Target from a property parameter.
func TargetFor(p *models.PropertyParameter) Target {
	return Target{
		ExpectedRent:    p.ExpectedRent,
		HOAFee:          p.HOAFee,
		MortgagePayment: p.MortgagePayment,
		HOAFrequency:    p.HOAFrequency,
	}
}

// Actual is what was observed for the property during the month.
type Actual struct {
	Rent     decimal.Decimal
	HOA      decimal.Decimal
	Mortgage decimal.Decimal
}

// Result holds the three variances and the verdict.
type Result struct {
	RentVariance     decimal.Decimal
	HOAVariance      decimal.Decimal
	MortgageVariance decimal.Decimal
	Status           models.Status
}

// Calculate computes actual - target for rent, HOA and mortgage.
//
// Dues billed less often than monthly are not expected every month, so a
// month without HOA activity for such a property has no HOA variance.
// Otherwise the observed amount is compared against the fee.
func Calculate(target Target, actual Actual) Result {
	r := Result{
		RentVariance:     actual.Rent.Sub(target.ExpectedRent),
		HOAVariance:      actual.HOA.Sub(target.HOAFee),
		MortgageVariance: actual.Mortgage.Sub(target.MortgagePayment),
	}
	if !target.HOAFrequency.IsMonthly() && actual.HOA.IsZero() {
		r.HOAVariance = decimal.Zero
	}
	r.Status = DetermineStatus(actual, r)
	return r
}

// DetermineStatus applies the verdict rules in order:
// no rent and no HOA observed is MISSING, even when the targets are zero;
// all three variances exactly zero is MATCHED; anything else is DISCREPANCY.
func DetermineStatus(actual Actual, r Result) models.Status {
	if actual.Rent.IsZero() && actual.HOA.IsZero() {
		return models.StatusMissing
	}
	if r.RentVariance.IsZero() && r.HOAVariance.IsZero() && r.MortgageVariance.IsZero() {
		return models.StatusMatched
	}
	return models.StatusDiscrepancy
}

// WithinTolerance reports whether |a-b| < SummaryTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(SummaryTolerance)
}

// CompareTotals compares a manager's statement total with its bank deposits.
// The difference is statement - bank, rounded to cents.
func CompareTotals(statementTotal, bankTotal decimal.Decimal) (decimal.Decimal, models.Status) {
	diff := statementTotal.Sub(bankTotal).Round(2)
	if WithinTolerance(statementTotal, bankTotal) {
		return diff, models.StatusMatched
	}
	return diff, models.StatusDiscrepancy
}
