package variance

import (
	"testing"

	"rent-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name           string
		target         Target
		actual         Actual
		expectRent     string
		expectHOA      string
		expectMortgage string
		expectStatus   models.Status
	}{
		{
			name:         "exact match",
			target:       Target{ExpectedRent: dec("1500.00"), HOAFee: dec("200"), MortgagePayment: dec("900")},
			actual:       Actual{Rent: dec("1500.00"), HOA: dec("200"), Mortgage: dec("900")},
			expectRent:   "0", expectHOA: "0", expectMortgage: "0",
			expectStatus: models.StatusMatched,
		},
		{
			name:         "one cent over is a discrepancy",
			target:       Target{ExpectedRent: dec("1500.00")},
			actual:       Actual{Rent: dec("1500.01")},
			expectRent:   "0.01", expectHOA: "0", expectMortgage: "0",
			expectStatus: models.StatusDiscrepancy,
		},
		{
			name:         "nothing observed and nothing expected is missing",
			target:       Target{},
			actual:       Actual{},
			expectRent:   "0", expectHOA: "0", expectMortgage: "0",
			expectStatus: models.StatusMissing,
		},
		{
			name:         "mortgage alone does not prevent missing",
			target:       Target{ExpectedRent: dec("1833"), MortgagePayment: dec("1210.33")},
			actual:       Actual{Mortgage: dec("1210.33")},
			expectRent:   "-1833", expectHOA: "0", expectMortgage: "0",
			expectStatus: models.StatusMissing,
		},
		{
			name:         "hoa only observed is not missing",
			target:       Target{HOAFee: dec("450")},
			actual:       Actual{HOA: dec("450")},
			expectRent:   "0", expectHOA: "0", expectMortgage: "0",
			expectStatus: models.StatusMatched,
		},
		{
			name:         "monthly hoa not paid",
			target:       Target{ExpectedRent: dec("1833"), HOAFee: dec("150"), HOAFrequency: models.HOAMonthly},
			actual:       Actual{Rent: dec("1833")},
			expectRent:   "0", expectHOA: "-150", expectMortgage: "0",
			expectStatus: models.StatusDiscrepancy,
		},
		{
			name:         "quarterly hoa in an off-cycle month",
			target:       Target{ExpectedRent: dec("1833"), HOAFee: dec("450"), HOAFrequency: models.HOAQuarterly},
			actual:       Actual{Rent: dec("1833")},
			expectRent:   "0", expectHOA: "0", expectMortgage: "0",
			expectStatus: models.StatusMatched,
		},
		{
			name:         "quarterly hoa billed with a different amount",
			target:       Target{ExpectedRent: dec("1833"), HOAFee: dec("450"), HOAFrequency: models.HOAQuarterly},
			actual:       Actual{Rent: dec("1833"), HOA: dec("475")},
			expectRent:   "0", expectHOA: "25", expectMortgage: "0",
			expectStatus: models.StatusDiscrepancy,
		},
		{
			name:         "annual hoa billed on cycle",
			target:       Target{ExpectedRent: dec("1833"), HOAFee: dec("1200"), HOAFrequency: models.HOAAnnual},
			actual:       Actual{Rent: dec("1833"), HOA: dec("1200")},
			expectRent:   "0", expectHOA: "0", expectMortgage: "0",
			expectStatus: models.StatusMatched,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.target, tt.actual)

			if !got.RentVariance.Equal(dec(tt.expectRent)) {
				t.Errorf("rent variance: expected %s, got %s", tt.expectRent, got.RentVariance)
			}
			if !got.HOAVariance.Equal(dec(tt.expectHOA)) {
				t.Errorf("hoa variance: expected %s, got %s", tt.expectHOA, got.HOAVariance)
			}
			if !got.MortgageVariance.Equal(dec(tt.expectMortgage)) {
				t.Errorf("mortgage variance: expected %s, got %s", tt.expectMortgage, got.MortgageVariance)
			}
			if got.Status != tt.expectStatus {
				t.Errorf("status: expected %s, got %s", tt.expectStatus, got.Status)
			}
		})
	}
}

func TestTargetFor(t *testing.T) {
	p := &models.PropertyParameter{
		ExpectedRent:    dec("6751.50"),
		HOAFee:          dec("300"),
		MortgagePayment: dec("2100"),
		HOAFrequency:    models.HOAQuarterly,
	}
	target := TargetFor(p)
	if !target.ExpectedRent.Equal(p.ExpectedRent) || target.HOAFrequency != models.HOAQuarterly {
		t.Errorf("unexpected target %+v", target)
	}
}

func TestCompareTotals(t *testing.T) {
	tests := []struct {
		name         string
		statement    string
		bank         string
		expectDiff   string
		expectStatus models.Status
	}{
		{name: "equal", statement: "1833.00", bank: "1833.00", expectDiff: "0", expectStatus: models.StatusMatched},
		{name: "sub cent drift", statement: "1833.004", bank: "1833.00", expectDiff: "0", expectStatus: models.StatusMatched},
		{name: "one cent", statement: "1833.01", bank: "1833.00", expectDiff: "0.01", expectStatus: models.StatusDiscrepancy},
		{name: "no deposit", statement: "6751.50", bank: "0", expectDiff: "6751.5", expectStatus: models.StatusDiscrepancy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, status := CompareTotals(dec(tt.statement), dec(tt.bank))
			if !diff.Equal(dec(tt.expectDiff)) {
				t.Errorf("expected diff %s, got %s", tt.expectDiff, diff)
			}
			if status != tt.expectStatus {
				t.Errorf("expected status %s, got %s", tt.expectStatus, status)
			}
		})
	}
}

func TestExactAndToleranceComparisonsDiffer(t *testing.T) {
	actual := dec("1500.005")
	target := dec("1500.00")

	if !WithinTolerance(actual, target) {
		t.Error("expected half a cent to be within the summary tolerance")
	}
	r := Calculate(Target{ExpectedRent: target}, Actual{Rent: actual})
	if r.Status != models.StatusDiscrepancy {
		t.Errorf("expected per-property comparison to stay exact, got %s", r.Status)
	}
}
