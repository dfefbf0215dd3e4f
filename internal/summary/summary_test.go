package summary

import (
	"testing"
	"time"

	"rent-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var jan = models.Month{Year: 2025, Month: time.January}

func createTestLogs() []models.PropertyReconLog {
	return []models.PropertyReconLog{
		{
			Month: jan, PropertyManagementName: "Sure Realty", Address: "2560 Coventry St",
			TargetRent: dec("1833"), ActualRent: dec("1833"), RentVariance: dec("0"),
			TargetHOA: dec("0"), ActualHOA: dec("0"), HOAVariance: dec("0"),
			TargetMortgage: dec("1210.33"), ActualMortgage: dec("1210.33"), MortgageVariance: dec("0"),
			BankDepositTotal: dec("1833"), Status: models.StatusMatched,
		},
		{
			Month: jan, PropertyManagementName: "GOGO PROPERTY", Address: "1047 Millison Pl",
			TargetRent: dec("6751.50"), ActualRent: dec("6700"), RentVariance: dec("-51.50"),
			TargetHOA: dec("300"), ActualHOA: dec("300"), HOAVariance: dec("0"),
			TargetMortgage: dec("2100"), ActualMortgage: dec("0"), MortgageVariance: dec("-2100"),
			BankDepositTotal: dec("8000"), Status: models.StatusDiscrepancy,
		},
		{
			Month: jan, PropertyManagementName: "GOGO PROPERTY", Address: "407 Wards Creek",
			TargetRent: dec("1400"), ActualRent: dec("0"), RentVariance: dec("-1400"),
			TargetHOA: dec("450"), ActualHOA: dec("0"), HOAVariance: dec("0"),
			TargetMortgage: dec("0"), ActualMortgage: dec("0"), MortgageVariance: dec("0"),
			BankDepositTotal: dec("8000"), Status: models.StatusMissing,
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(createTestLogs())

	if s.PropertyCount != 3 {
		t.Errorf("expected 3 properties, got %d", s.PropertyCount)
	}

	tests := []struct {
		name           string
		got            CategorySummary
		expectActual   string
		expectTarget   string
		expectVerified int
		expectPercent  string
	}{
		{name: "rent", got: s.Rent, expectActual: "8533", expectTarget: "9984.5", expectVerified: 1, expectPercent: "33.33"},
		{name: "hoa", got: s.HOA, expectActual: "300", expectTarget: "750", expectVerified: 3, expectPercent: "100"},
		{name: "mortgage", got: s.Mortgage, expectActual: "1210.33", expectTarget: "3310.33", expectVerified: 2, expectPercent: "66.67"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Actual.Equal(dec(tt.expectActual)) {
				t.Errorf("actual: expected %s, got %s", tt.expectActual, tt.got.Actual)
			}
			if !tt.got.Target.Equal(dec(tt.expectTarget)) {
				t.Errorf("target: expected %s, got %s", tt.expectTarget, tt.got.Target)
			}
			if tt.got.Verified != tt.expectVerified {
				t.Errorf("verified: expected %d, got %d", tt.expectVerified, tt.got.Verified)
			}
			if tt.got.Total != 3 {
				t.Errorf("total: expected 3, got %d", tt.got.Total)
			}
			if !tt.got.Percentage.Equal(dec(tt.expectPercent)) {
				t.Errorf("percentage: expected %s, got %s", tt.expectPercent, tt.got.Percentage)
			}
		})
	}

	if s.StatusCounts[models.StatusMissing] != 1 || s.StatusCounts[models.StatusMatched] != 1 {
		t.Errorf("unexpected status counts %v", s.StatusCounts)
	}
	if !s.BankDepositTotal.Equal(dec("9833")) {
		t.Errorf("expected deposits counted once per manager, got %s", s.BankDepositTotal)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)

	if s.PropertyCount != 0 {
		t.Errorf("expected 0 properties, got %d", s.PropertyCount)
	}
	for name, c := range map[string]CategorySummary{"rent": s.Rent, "hoa": s.HOA, "mortgage": s.Mortgage} {
		if !c.Percentage.IsZero() {
			t.Errorf("%s: expected 0%% for no properties, got %s", name, c.Percentage)
		}
	}
}

func TestSummarizeIsRepeatable(t *testing.T) {
	logs := createTestLogs()
	first := Summarize(logs)
	second := Summarize(logs)

	if !first.Rent.Actual.Equal(second.Rent.Actual) || first.PropertyCount != second.PropertyCount {
		t.Error("expected identical summaries on repeated calls")
	}
	if !logs[0].ActualRent.Equal(dec("1833")) {
		t.Error("expected input logs to be left untouched")
	}
}

func TestByManager(t *testing.T) {
	logs := createTestLogs()
	feb := models.Month{Year: 2025, Month: time.February}
	logs = append(logs, models.PropertyReconLog{
		Month: feb, PropertyManagementName: "Sure Realty", Status: models.StatusMissing,
	})

	groups := ByManager(logs)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}

	order := []struct {
		month   models.Month
		manager string
		count   int
	}{
		{jan, "GOGO PROPERTY", 2},
		{jan, "Sure Realty", 1},
		{feb, "Sure Realty", 1},
	}
	for i, want := range order {
		g := groups[i]
		if g.Month != want.month || g.PropertyManagementName != want.manager || g.PropertyCount != want.count {
			t.Errorf("group %d: expected %s/%s/%d, got %s/%s/%d", i,
				want.month, want.manager, want.count, g.Month, g.PropertyManagementName, g.PropertyCount)
		}
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		verified, total int
		expected        string
	}{
		{0, 0, "0"},
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{4, 4, "100"},
	}
	for _, tt := range tests {
		if got := Percentage(tt.verified, tt.total); !got.Equal(dec(tt.expected)) {
			t.Errorf("Percentage(%d, %d) = %s, want %s", tt.verified, tt.total, got, tt.expected)
		}
	}
}
